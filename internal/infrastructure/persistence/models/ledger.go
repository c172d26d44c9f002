package models

import (
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// ActiveKey is set while the invoice is not void; its unique index keeps one
// live invoice per student and period.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber string                `gorm:"type:varchar(64);not null;uniqueIndex"`
	StudentID     uuid.UUID             `gorm:"type:uuid;not null;index;uniqueIndex:idx_invoice_student_sequence,priority:1"`
	BillingPeriod string                `gorm:"type:varchar(16);not null;index"`
	Sequence      int64                 `gorm:"not null;uniqueIndex:idx_invoice_student_sequence,priority:2"`
	ActiveKey     *string               `gorm:"type:varchar(80);uniqueIndex"`
	Currency      string                `gorm:"type:varchar(3);not null"`
	Status        finance.InvoiceStatus `gorm:"type:varchar(20);not null;index"`
	DueDate       time.Time             `gorm:"not null;index"`
	CreatedBy     string                `gorm:"type:varchar(100)"`
	ReconciledAt  *time.Time
	VoidedAt      *time.Time
	VoidReason    string             `gorm:"type:varchar(500)"`
	Lines         []InvoiceLineModel `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// InvoiceLineModel is the persistence model for an invoice line
type InvoiceLineModel struct {
	ID              uuid.UUID        `gorm:"type:uuid;primary_key"`
	InvoiceID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	Position        int              `gorm:"not null"`
	Kind            finance.LineKind `gorm:"type:varchar(20);not null"`
	FeeItemID       *uuid.UUID       `gorm:"type:uuid"`
	FeeItemRevision int
	ItemKey         string     `gorm:"type:varchar(50)"`
	CarryForwardID  *uuid.UUID `gorm:"type:uuid;index"`
	DiscountRuleID  *uuid.UUID `gorm:"type:uuid"`
	Description     string     `gorm:"type:varchar(300)"`
	GrossMinor      int64      `gorm:"not null"`
	DiscountMinor   int64      `gorm:"not null"`
	NetMinor        int64      `gorm:"not null"`
	PaidMinor       int64      `gorm:"not null"`
	CarriedMinor    int64      `gorm:"not null"`
	CreatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceLineModel) TableName() string {
	return "invoice_lines"
}

// ActiveInvoiceKey is the uniqueness key of a live invoice
func ActiveInvoiceKey(studentID uuid.UUID, period string) string {
	return studentID.String() + ":" + period
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *finance.Invoice {
	cur := valueobject.Currency(m.Currency)
	inv := &finance.Invoice{
		BaseAggregateRoot: m.AggregateRoot(),
		InvoiceNumber:     m.InvoiceNumber,
		StudentID:         m.StudentID,
		BillingPeriod:     m.BillingPeriod,
		Sequence:          m.Sequence,
		Currency:          cur,
		Status:            m.Status,
		DueDate:           m.DueDate,
		CreatedBy:         m.CreatedBy,
		ReconciledAt:      m.ReconciledAt,
		VoidedAt:          m.VoidedAt,
		VoidReason:        m.VoidReason,
		Lines:             make([]finance.InvoiceLine, len(m.Lines)),
	}
	for i, l := range m.Lines {
		inv.Lines[i] = finance.InvoiceLine{
			ID:              l.ID,
			InvoiceID:       l.InvoiceID,
			Position:        l.Position,
			Kind:            l.Kind,
			FeeItemID:       l.FeeItemID,
			FeeItemRevision: l.FeeItemRevision,
			ItemKey:         l.ItemKey,
			CarryForwardID:  l.CarryForwardID,
			DiscountRuleID:  l.DiscountRuleID,
			Description:     l.Description,
			Gross:           valueobject.MustNewMoney(l.GrossMinor, cur),
			Discount:        valueobject.MustNewMoney(l.DiscountMinor, cur),
			Net:             valueobject.MustNewMoney(l.NetMinor, cur),
			AmountPaid:      valueobject.MustNewMoney(l.PaidMinor, cur),
			AmountCarried:   valueobject.MustNewMoney(l.CarriedMinor, cur),
			CreatedAt:       l.CreatedAt,
		}
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *finance.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.StudentID = inv.StudentID
	m.BillingPeriod = inv.BillingPeriod
	m.Sequence = inv.Sequence
	m.Currency = inv.Currency.String()
	m.Status = inv.Status
	m.DueDate = inv.DueDate
	m.CreatedBy = inv.CreatedBy
	m.ReconciledAt = inv.ReconciledAt
	m.VoidedAt = inv.VoidedAt
	m.VoidReason = inv.VoidReason
	m.ActiveKey = nil
	if inv.Status != finance.InvoiceStatusVoid {
		key := ActiveInvoiceKey(inv.StudentID, inv.BillingPeriod)
		m.ActiveKey = &key
	}
	m.Lines = make([]InvoiceLineModel, len(inv.Lines))
	for i, l := range inv.Lines {
		m.Lines[i] = InvoiceLineModel{
			ID:              l.ID,
			InvoiceID:       inv.ID,
			Position:        l.Position,
			Kind:            l.Kind,
			FeeItemID:       l.FeeItemID,
			FeeItemRevision: l.FeeItemRevision,
			ItemKey:         l.ItemKey,
			CarryForwardID:  l.CarryForwardID,
			DiscountRuleID:  l.DiscountRuleID,
			Description:     l.Description,
			GrossMinor:      l.Gross.Minor(),
			DiscountMinor:   l.Discount.Minor(),
			NetMinor:        l.Net.Minor(),
			PaidMinor:       l.AmountPaid.Minor(),
			CarriedMinor:    l.AmountCarried.Minor(),
			CreatedAt:       l.CreatedAt,
		}
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *finance.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root
type PaymentModel struct {
	AggregateModel
	StudentID         uuid.UUID             `gorm:"type:uuid;not null;index"`
	Method            finance.PaymentMethod `gorm:"type:varchar(20);not null"`
	AmountMinor       int64                 `gorm:"not null"`
	Currency          string                `gorm:"type:varchar(3);not null"`
	ExternalReference *string               `gorm:"type:varchar(128);uniqueIndex"`
	RecordedAt        time.Time             `gorm:"not null;index"`
	RecordedBy        string                `gorm:"type:varchar(100)"`
	Note              string                `gorm:"type:varchar(500)"`
	Allocations       []AllocationModel     `gorm:"foreignKey:PaymentID;references:ID"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// AllocationModel is the persistence model for one slice of a payment
type AllocationModel struct {
	ID             uuid.UUID                    `gorm:"type:uuid;primary_key"`
	PaymentID      uuid.UUID                    `gorm:"type:uuid;not null;index"`
	Sequence       int                          `gorm:"not null"`
	TargetType     finance.AllocationTargetType `gorm:"type:varchar(20);not null"`
	InvoiceID      *uuid.UUID                   `gorm:"type:uuid;index"`
	InvoiceLineID  *uuid.UUID                   `gorm:"type:uuid"`
	CarryForwardID *uuid.UUID                   `gorm:"type:uuid;index"`
	AmountMinor    int64                        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *finance.Payment {
	cur := valueobject.Currency(m.Currency)
	p := &finance.Payment{
		BaseAggregateRoot: m.AggregateRoot(),
		StudentID:         m.StudentID,
		Method:            m.Method,
		Amount:            valueobject.MustNewMoney(m.AmountMinor, cur),
		ExternalReference: m.ExternalReference,
		RecordedAt:        m.RecordedAt,
		RecordedBy:        m.RecordedBy,
		Note:              m.Note,
		Allocations:       make([]finance.Allocation, len(m.Allocations)),
	}
	for i, a := range m.Allocations {
		p.Allocations[i] = finance.Allocation{
			ID:             a.ID,
			PaymentID:      a.PaymentID,
			Sequence:       a.Sequence,
			TargetType:     a.TargetType,
			InvoiceID:      a.InvoiceID,
			InvoiceLineID:  a.InvoiceLineID,
			CarryForwardID: a.CarryForwardID,
			Amount:         valueobject.MustNewMoney(a.AmountMinor, cur),
		}
	}
	return p
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *finance.Payment) *PaymentModel {
	m := &PaymentModel{
		StudentID:         p.StudentID,
		Method:            p.Method,
		AmountMinor:       p.Amount.Minor(),
		Currency:          p.Amount.Currency().String(),
		ExternalReference: p.ExternalReference,
		RecordedAt:        p.RecordedAt,
		RecordedBy:        p.RecordedBy,
		Note:              p.Note,
		Allocations:       make([]AllocationModel, len(p.Allocations)),
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	for i, a := range p.Allocations {
		m.Allocations[i] = AllocationModel{
			ID:             a.ID,
			PaymentID:      p.ID,
			Sequence:       a.Sequence,
			TargetType:     a.TargetType,
			InvoiceID:      a.InvoiceID,
			InvoiceLineID:  a.InvoiceLineID,
			CarryForwardID: a.CarryForwardID,
			AmountMinor:    a.Amount.Minor(),
		}
	}
	return m
}

// CarryForwardModel is the persistence model for a carry-forward entry
type CarryForwardModel struct {
	ID              uuid.UUID                  `gorm:"type:uuid;primary_key"`
	StudentID       uuid.UUID                  `gorm:"type:uuid;not null;index"`
	FromPeriod      string                     `gorm:"type:varchar(16)"`
	ToPeriod        string                     `gorm:"type:varchar(16);not null;index"`
	AmountMinor     int64                      `gorm:"not null"`
	Currency        string                     `gorm:"type:varchar(3);not null"`
	Source          finance.CarryForwardSource `gorm:"type:varchar(20);not null"`
	SourceInvoiceID *uuid.UUID                 `gorm:"type:uuid"`
	SourcePaymentID *uuid.UUID                 `gorm:"type:uuid"`
	DueDate         time.Time                  `gorm:"not null"`
	CreatedAt       time.Time                  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CarryForwardModel) TableName() string {
	return "carry_forwards"
}

// ToDomain converts the persistence model to a domain CarryForwardEntry
func (m *CarryForwardModel) ToDomain() *finance.CarryForwardEntry {
	return &finance.CarryForwardEntry{
		ID:              m.ID,
		StudentID:       m.StudentID,
		FromPeriod:      m.FromPeriod,
		ToPeriod:        m.ToPeriod,
		Amount:          valueobject.MustNewMoney(m.AmountMinor, valueobject.Currency(m.Currency)),
		Source:          m.Source,
		SourceInvoiceID: m.SourceInvoiceID,
		SourcePaymentID: m.SourcePaymentID,
		DueDate:         m.DueDate,
		CreatedAt:       m.CreatedAt,
	}
}

// CarryForwardModelFromDomain creates a new persistence model from a domain entry
func CarryForwardModelFromDomain(e *finance.CarryForwardEntry) *CarryForwardModel {
	return &CarryForwardModel{
		ID:              e.ID,
		StudentID:       e.StudentID,
		FromPeriod:      e.FromPeriod,
		ToPeriod:        e.ToPeriod,
		AmountMinor:     e.Amount.Minor(),
		Currency:        e.Amount.Currency().String(),
		Source:          e.Source,
		SourceInvoiceID: e.SourceInvoiceID,
		SourcePaymentID: e.SourcePaymentID,
		DueDate:         e.DueDate,
		CreatedAt:       e.CreatedAt,
	}
}

// AdjustmentModel is the persistence model for a ledger adjustment
type AdjustmentModel struct {
	ID             uuid.UUID              `gorm:"type:uuid;primary_key"`
	StudentID      uuid.UUID              `gorm:"type:uuid;not null;index"`
	Kind           finance.AdjustmentKind `gorm:"type:varchar(30);not null"`
	InvoiceID      *uuid.UUID             `gorm:"type:uuid;index"`
	InvoiceLineID  *uuid.UUID             `gorm:"type:uuid"`
	PaymentID      *uuid.UUID             `gorm:"type:uuid;index"`
	CarryForwardID *uuid.UUID             `gorm:"type:uuid"`
	AmountMinor    int64                  `gorm:"not null"`
	Currency       string                 `gorm:"type:varchar(3);not null"`
	Reason         string                 `gorm:"type:varchar(500)"`
	Actor          string                 `gorm:"type:varchar(100)"`
	CreatedAt      time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AdjustmentModel) TableName() string {
	return "adjustments"
}

// ToDomain converts the persistence model to a domain Adjustment
func (m *AdjustmentModel) ToDomain() *finance.Adjustment {
	return &finance.Adjustment{
		ID:             m.ID,
		StudentID:      m.StudentID,
		Kind:           m.Kind,
		InvoiceID:      m.InvoiceID,
		InvoiceLineID:  m.InvoiceLineID,
		PaymentID:      m.PaymentID,
		CarryForwardID: m.CarryForwardID,
		Amount:         valueobject.MustNewMoney(m.AmountMinor, valueobject.Currency(m.Currency)),
		Reason:         m.Reason,
		Actor:          m.Actor,
		CreatedAt:      m.CreatedAt,
	}
}

// AdjustmentModelFromDomain creates a new persistence model from a domain Adjustment
func AdjustmentModelFromDomain(a *finance.Adjustment) *AdjustmentModel {
	return &AdjustmentModel{
		ID:             a.ID,
		StudentID:      a.StudentID,
		Kind:           a.Kind,
		InvoiceID:      a.InvoiceID,
		InvoiceLineID:  a.InvoiceLineID,
		PaymentID:      a.PaymentID,
		CarryForwardID: a.CarryForwardID,
		AmountMinor:    a.Amount.Minor(),
		Currency:       a.Amount.Currency().String(),
		Reason:         a.Reason,
		Actor:          a.Actor,
		CreatedAt:      a.CreatedAt,
	}
}

// PeriodCloseModel is the persistence model for a period close record
type PeriodCloseModel struct {
	ID                 uuid.UUID                 `gorm:"type:uuid;primary_key"`
	BillingPeriod      string                    `gorm:"type:varchar(16);not null;index"`
	Status             finance.PeriodCloseStatus `gorm:"type:varchar(20);not null"`
	Forced             bool                      `gorm:"not null;default:false"`
	ClosedAt           time.Time                 `gorm:"not null"`
	ClosedBy           string                    `gorm:"type:varchar(100)"`
	ReopenedAt         *time.Time
	ReopenedBy         string `gorm:"type:varchar(100)"`
	InvoicesReconciled int    `gorm:"not null"`
	Currency           string `gorm:"type:varchar(3);not null"`
	FinesMinor         int64  `gorm:"not null"`
	CarriedDebtMinor   int64  `gorm:"not null"`
	CarriedCreditMinor int64  `gorm:"not null"`
	ReportLocation     string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PeriodCloseModel) TableName() string {
	return "period_closes"
}

// ToDomain converts the persistence model to a domain PeriodClose
func (m *PeriodCloseModel) ToDomain() *finance.PeriodClose {
	cur := valueobject.Currency(m.Currency)
	return &finance.PeriodClose{
		ID:                 m.ID,
		BillingPeriod:      m.BillingPeriod,
		Status:             m.Status,
		Forced:             m.Forced,
		ClosedAt:           m.ClosedAt,
		ClosedBy:           m.ClosedBy,
		ReopenedAt:         m.ReopenedAt,
		ReopenedBy:         m.ReopenedBy,
		InvoicesReconciled: m.InvoicesReconciled,
		FinesApplied:       valueobject.MustNewMoney(m.FinesMinor, cur),
		CarriedDebt:        valueobject.MustNewMoney(m.CarriedDebtMinor, cur),
		CarriedCredit:      valueobject.MustNewMoney(m.CarriedCreditMinor, cur),
		ReportLocation:     m.ReportLocation,
	}
}

// PeriodCloseModelFromDomain creates a new persistence model from a domain PeriodClose
func PeriodCloseModelFromDomain(pc *finance.PeriodClose) *PeriodCloseModel {
	return &PeriodCloseModel{
		ID:                 pc.ID,
		BillingPeriod:      pc.BillingPeriod,
		Status:             pc.Status,
		Forced:             pc.Forced,
		ClosedAt:           pc.ClosedAt,
		ClosedBy:           pc.ClosedBy,
		ReopenedAt:         pc.ReopenedAt,
		ReopenedBy:         pc.ReopenedBy,
		InvoicesReconciled: pc.InvoicesReconciled,
		Currency:           pc.FinesApplied.Currency().String(),
		FinesMinor:         pc.FinesApplied.Minor(),
		CarriedDebtMinor:   pc.CarriedDebt.Minor(),
		CarriedCreditMinor: pc.CarriedCredit.Minor(),
		ReportLocation:     pc.ReportLocation,
	}
}
