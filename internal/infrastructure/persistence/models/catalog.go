package models

import (
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// FeeItemModel is the persistence model for one fee item revision
type FeeItemModel struct {
	AggregateModel
	LineageID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_fee_item_lineage_revision,priority:1"`
	ItemKey       string            `gorm:"type:varchar(50);not null;index"`
	Revision      int               `gorm:"not null;uniqueIndex:idx_fee_item_lineage_revision,priority:2"`
	Name          string            `gorm:"type:varchar(200);not null"`
	Description   string            `gorm:"type:text"`
	AmountMinor   int64             `gorm:"not null"`
	Currency      string            `gorm:"type:varchar(3);not null"`
	Frequency     catalog.Frequency `gorm:"type:varchar(20);not null"`
	Scope         catalog.Scope     `gorm:"type:varchar(20);not null;index"`
	ScopeStudent  *uuid.UUID        `gorm:"type:uuid"`
	Category      string            `gorm:"type:varchar(50)"`
	ClassID       string            `gorm:"type:varchar(50)"`
	SectionID     string            `gorm:"type:varchar(50)"`
	EffectiveFrom time.Time         `gorm:"not null"`
	EffectiveTo   *time.Time
	SortOrder     int                   `gorm:"not null;default:0"`
	Status        catalog.FeeItemStatus `gorm:"type:varchar(20);not null;index"`
	SupersedesID  *uuid.UUID            `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (FeeItemModel) TableName() string {
	return "fee_items"
}

// ToDomain converts the persistence model to a domain FeeItemDefinition
func (m *FeeItemModel) ToDomain() *catalog.FeeItemDefinition {
	return &catalog.FeeItemDefinition{
		BaseAggregateRoot: m.AggregateRoot(),
		LineageID:         m.LineageID,
		ItemKey:           m.ItemKey,
		Revision:          m.Revision,
		Name:              m.Name,
		Description:       m.Description,
		Amount:            valueobject.MustNewMoney(m.AmountMinor, valueobject.Currency(m.Currency)),
		Frequency:         m.Frequency,
		Applicability: catalog.Applicability{
			Scope:     m.Scope,
			StudentID: m.ScopeStudent,
			Category:  m.Category,
			ClassID:   m.ClassID,
			SectionID: m.SectionID,
		},
		EffectiveFrom: m.EffectiveFrom,
		EffectiveTo:   m.EffectiveTo,
		SortOrder:     m.SortOrder,
		Status:        m.Status,
		SupersedesID:  m.SupersedesID,
	}
}

// FeeItemModelFromDomain creates a new persistence model from a domain FeeItemDefinition
func FeeItemModelFromDomain(d *catalog.FeeItemDefinition) *FeeItemModel {
	m := &FeeItemModel{
		LineageID:     d.LineageID,
		ItemKey:       d.ItemKey,
		Revision:      d.Revision,
		Name:          d.Name,
		Description:   d.Description,
		AmountMinor:   d.Amount.Minor(),
		Currency:      d.Amount.Currency().String(),
		Frequency:     d.Frequency,
		Scope:         d.Applicability.Scope,
		ScopeStudent:  d.Applicability.StudentID,
		Category:      d.Applicability.Category,
		ClassID:       d.Applicability.ClassID,
		SectionID:     d.Applicability.SectionID,
		EffectiveFrom: d.EffectiveFrom,
		EffectiveTo:   d.EffectiveTo,
		SortOrder:     d.SortOrder,
		Status:        d.Status,
		SupersedesID:  d.SupersedesID,
	}
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	return m
}

// DiscountRuleModel is the persistence model for a discount rule
type DiscountRuleModel struct {
	AggregateModel
	Name            string                 `gorm:"type:varchar(200);not null"`
	Target          catalog.DiscountTarget `gorm:"type:varchar(20);not null"`
	StudentID       *uuid.UUID             `gorm:"type:uuid;index"`
	Category        string                 `gorm:"type:varchar(50);index"`
	ItemKey         string                 `gorm:"type:varchar(50)"`
	Kind            catalog.DiscountKind   `gorm:"type:varchar(20);not null"`
	Currency        string                 `gorm:"type:varchar(3);not null"`
	AmountMinor     int64                  `gorm:"not null;default:0"`
	RateBasisPoints int64                  `gorm:"not null;default:0"`
	CapMinor        *int64
	ValidFrom       time.Time `gorm:"not null"`
	ValidTo         *time.Time
	Active          bool `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (DiscountRuleModel) TableName() string {
	return "discount_rules"
}

// ToDomain converts the persistence model to a domain DiscountRule
func (m *DiscountRuleModel) ToDomain() *catalog.DiscountRule {
	cur := valueobject.Currency(m.Currency)
	return &catalog.DiscountRule{
		BaseAggregateRoot: m.AggregateRoot(),
		Name:              m.Name,
		Target:            m.Target,
		StudentID:         m.StudentID,
		Category:          m.Category,
		ItemKey:           m.ItemKey,
		Kind:              m.Kind,
		Amount:            valueobject.MustNewMoney(m.AmountMinor, cur),
		RateBasisPoints:   m.RateBasisPoints,
		Cap:               capToDomain(m.CapMinor, cur),
		ValidFrom:         m.ValidFrom,
		ValidTo:           m.ValidTo,
		Active:            m.Active,
	}
}

// DiscountRuleModelFromDomain creates a new persistence model from a domain DiscountRule
func DiscountRuleModelFromDomain(r *catalog.DiscountRule, cur valueobject.Currency) *DiscountRuleModel {
	if !r.Amount.IsZero() {
		cur = r.Amount.Currency()
	}
	m := &DiscountRuleModel{
		Name:            r.Name,
		Target:          r.Target,
		StudentID:       r.StudentID,
		Category:        r.Category,
		ItemKey:         r.ItemKey,
		Kind:            r.Kind,
		Currency:        cur.String(),
		AmountMinor:     r.Amount.Minor(),
		RateBasisPoints: r.RateBasisPoints,
		CapMinor:        capFromDomain(r.Cap),
		ValidFrom:       r.ValidFrom,
		ValidTo:         r.ValidTo,
		Active:          r.Active,
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// FineRuleModel is the persistence model for a late fine rule
type FineRuleModel struct {
	AggregateModel
	Name            string           `gorm:"type:varchar(200);not null"`
	Kind            catalog.FineKind `gorm:"type:varchar(30);not null"`
	Currency        string           `gorm:"type:varchar(3);not null"`
	AmountMinor     int64            `gorm:"not null;default:0"`
	RateBasisPoints int64            `gorm:"not null;default:0"`
	CapMinor        *int64
	GraceDays       int       `gorm:"not null;default:0"`
	ValidFrom       time.Time `gorm:"not null"`
	ValidTo         *time.Time
	Active          bool `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (FineRuleModel) TableName() string {
	return "fine_rules"
}

// ToDomain converts the persistence model to a domain FineRule
func (m *FineRuleModel) ToDomain() *catalog.FineRule {
	cur := valueobject.Currency(m.Currency)
	return &catalog.FineRule{
		BaseAggregateRoot: m.AggregateRoot(),
		Name:              m.Name,
		Kind:              m.Kind,
		Amount:            valueobject.MustNewMoney(m.AmountMinor, cur),
		RateBasisPoints:   m.RateBasisPoints,
		Cap:               capToDomain(m.CapMinor, cur),
		GraceDays:         m.GraceDays,
		ValidFrom:         m.ValidFrom,
		ValidTo:           m.ValidTo,
		Active:            m.Active,
	}
}

// FineRuleModelFromDomain creates a new persistence model from a domain FineRule
func FineRuleModelFromDomain(r *catalog.FineRule, cur valueobject.Currency) *FineRuleModel {
	if !r.Amount.IsZero() {
		cur = r.Amount.Currency()
	}
	m := &FineRuleModel{
		Name:            r.Name,
		Kind:            r.Kind,
		Currency:        cur.String(),
		AmountMinor:     r.Amount.Minor(),
		RateBasisPoints: r.RateBasisPoints,
		CapMinor:        capFromDomain(r.Cap),
		GraceDays:       r.GraceDays,
		ValidFrom:       r.ValidFrom,
		ValidTo:         r.ValidTo,
		Active:          r.Active,
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// StudentProfileModel is the persistence model for a student's billing profile
type StudentProfileModel struct {
	StudentID uuid.UUID             `gorm:"type:uuid;primary_key"`
	FullName  string                `gorm:"type:varchar(200)"`
	ClassID   string                `gorm:"type:varchar(50);not null;index"`
	SectionID string                `gorm:"type:varchar(50)"`
	Category  string                `gorm:"type:varchar(50);index"`
	Status    catalog.StudentStatus `gorm:"type:varchar(20);not null"`
	UpdatedAt time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StudentProfileModel) TableName() string {
	return "student_profiles"
}

// ToDomain converts the persistence model to a domain StudentProfile
func (m *StudentProfileModel) ToDomain() *catalog.StudentProfile {
	return &catalog.StudentProfile{
		StudentID: m.StudentID,
		FullName:  m.FullName,
		ClassID:   m.ClassID,
		SectionID: m.SectionID,
		Category:  m.Category,
		Status:    m.Status,
		UpdatedAt: m.UpdatedAt,
	}
}

// StudentProfileModelFromDomain creates a new persistence model from a domain StudentProfile
func StudentProfileModelFromDomain(p *catalog.StudentProfile) *StudentProfileModel {
	return &StudentProfileModel{
		StudentID: p.StudentID,
		FullName:  p.FullName,
		ClassID:   p.ClassID,
		SectionID: p.SectionID,
		Category:  p.Category,
		Status:    p.Status,
		UpdatedAt: p.UpdatedAt,
	}
}

func capToDomain(minor *int64, cur valueobject.Currency) *valueobject.Money {
	if minor == nil {
		return nil
	}
	m := valueobject.MustNewMoney(*minor, cur)
	return &m
}

func capFromDomain(m *valueobject.Money) *int64 {
	if m == nil {
		return nil
	}
	v := m.Minor()
	return &v
}

// All returns every model the fee ledger persists, in dependency order
func All() []any {
	return []any{
		&StudentProfileModel{},
		&FeeItemModel{},
		&DiscountRuleModel{},
		&FineRuleModel{},
		&InvoiceModel{},
		&InvoiceLineModel{},
		&PaymentModel{},
		&AllocationModel{},
		&CarryForwardModel{},
		&AdjustmentModel{},
		&PeriodCloseModel{},
		&OutboxEntryModel{},
	}
}
