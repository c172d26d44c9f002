package dto

import (
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// dateLayout is how calendar dates travel over the API
const dateLayout = "2006-01-02"

// ApplicabilityView says which students a fee item applies to
type ApplicabilityView struct {
	Scope     string     `json:"scope"`
	StudentID *uuid.UUID `json:"studentId,omitempty"`
	Category  string     `json:"category,omitempty"`
	ClassID   string     `json:"classId,omitempty"`
	SectionID string     `json:"sectionId,omitempty"`
}

// FeeItemView is one revision of a fee item definition
type FeeItemView struct {
	ID            uuid.UUID         `json:"id"`
	LineageID     uuid.UUID         `json:"lineageId"`
	ItemKey       string            `json:"itemKey"`
	Revision      int               `json:"revision"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Amount        valueobject.Money `json:"amount"`
	Frequency     string            `json:"frequency"`
	Applicability ApplicabilityView `json:"applicability"`
	EffectiveFrom string            `json:"effectiveFrom"`
	EffectiveTo   string            `json:"effectiveTo,omitempty"`
	SortOrder     int               `json:"sortOrder"`
	Status        string            `json:"status"`
	SupersedesID  *uuid.UUID        `json:"supersedesId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// NewFeeItemView converts a fee item definition
func NewFeeItemView(f *catalog.FeeItemDefinition) FeeItemView {
	return FeeItemView{
		ID:          f.ID,
		LineageID:   f.LineageID,
		ItemKey:     f.ItemKey,
		Revision:    f.Revision,
		Name:        f.Name,
		Description: f.Description,
		Amount:      f.Amount,
		Frequency:   string(f.Frequency),
		Applicability: ApplicabilityView{
			Scope:     string(f.Applicability.Scope),
			StudentID: f.Applicability.StudentID,
			Category:  f.Applicability.Category,
			ClassID:   f.Applicability.ClassID,
			SectionID: f.Applicability.SectionID,
		},
		EffectiveFrom: formatDate(f.EffectiveFrom),
		EffectiveTo:   formatOptionalDate(f.EffectiveTo),
		SortOrder:     f.SortOrder,
		Status:        string(f.Status),
		SupersedesID:  f.SupersedesID,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// NewFeeItemViews converts a list of fee item definitions
func NewFeeItemViews(items []catalog.FeeItemDefinition) []FeeItemView {
	views := make([]FeeItemView, 0, len(items))
	for i := range items {
		views = append(views, NewFeeItemView(&items[i]))
	}
	return views
}

// DiscountView is a discount rule
type DiscountView struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	Target          string             `json:"target"`
	StudentID       *uuid.UUID         `json:"studentId,omitempty"`
	Category        string             `json:"category,omitempty"`
	ItemKey         string             `json:"itemKey,omitempty"`
	Kind            string             `json:"kind"`
	Amount          *valueobject.Money `json:"amount,omitempty"`
	RateBasisPoints int64              `json:"rateBasisPoints,omitempty"`
	Cap             *valueobject.Money `json:"cap,omitempty"`
	ValidFrom       string             `json:"validFrom"`
	ValidTo         string             `json:"validTo,omitempty"`
	Active          bool               `json:"active"`
	Version         int                `json:"version"`
}

// NewDiscountView converts a discount rule
func NewDiscountView(r *catalog.DiscountRule) DiscountView {
	view := DiscountView{
		ID:              r.ID,
		Name:            r.Name,
		Target:          string(r.Target),
		StudentID:       r.StudentID,
		Category:        r.Category,
		ItemKey:         r.ItemKey,
		Kind:            string(r.Kind),
		RateBasisPoints: r.RateBasisPoints,
		Cap:             r.Cap,
		ValidFrom:       formatDate(r.ValidFrom),
		ValidTo:         formatOptionalDate(r.ValidTo),
		Active:          r.Active,
		Version:         r.Version,
	}
	if r.Kind == catalog.DiscountKindFixedAmount {
		amount := r.Amount
		view.Amount = &amount
	}
	return view
}

// NewDiscountViews converts a list of discount rules
func NewDiscountViews(rules []catalog.DiscountRule) []DiscountView {
	views := make([]DiscountView, 0, len(rules))
	for i := range rules {
		views = append(views, NewDiscountView(&rules[i]))
	}
	return views
}

// FineRuleView is a late-payment fine rule
type FineRuleView struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	Kind            string             `json:"kind"`
	Amount          *valueobject.Money `json:"amount,omitempty"`
	RateBasisPoints int64              `json:"rateBasisPoints,omitempty"`
	Cap             *valueobject.Money `json:"cap,omitempty"`
	GraceDays       int                `json:"graceDays"`
	ValidFrom       string             `json:"validFrom"`
	ValidTo         string             `json:"validTo,omitempty"`
	Active          bool               `json:"active"`
}

// NewFineRuleView converts a fine rule
func NewFineRuleView(r *catalog.FineRule) FineRuleView {
	view := FineRuleView{
		ID:              r.ID,
		Name:            r.Name,
		Kind:            string(r.Kind),
		RateBasisPoints: r.RateBasisPoints,
		Cap:             r.Cap,
		GraceDays:       r.GraceDays,
		ValidFrom:       formatDate(r.ValidFrom),
		ValidTo:         formatOptionalDate(r.ValidTo),
		Active:          r.Active,
	}
	if r.Kind == catalog.FineKindFixedAmount {
		amount := r.Amount
		view.Amount = &amount
	}
	return view
}

// NewFineRuleViews converts a list of fine rules
func NewFineRuleViews(rules []catalog.FineRule) []FineRuleView {
	views := make([]FineRuleView, 0, len(rules))
	for i := range rules {
		views = append(views, NewFineRuleView(&rules[i]))
	}
	return views
}

// ApplicableItemView is a fee item billable to a student in one period
type ApplicableItemView struct {
	Item        FeeItemView       `json:"item"`
	Occurrences int               `json:"occurrences"`
	Gross       valueobject.Money `json:"gross"`
}

// NewApplicableItemViews converts resolved items
func NewApplicableItemViews(items []catalog.ApplicableItem) []ApplicableItemView {
	views := make([]ApplicableItemView, 0, len(items))
	for _, it := range items {
		views = append(views, ApplicableItemView{
			Item:        NewFeeItemView(it.Definition),
			Occurrences: it.Occurrences,
			Gross:       it.Gross,
		})
	}
	return views
}

// ProfileView is the billing profile of a student
type ProfileView struct {
	StudentID uuid.UUID `json:"studentId"`
	FullName  string    `json:"fullName,omitempty"`
	ClassID   string    `json:"classId"`
	SectionID string    `json:"sectionId,omitempty"`
	Category  string    `json:"category,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewProfileView converts a student profile
func NewProfileView(p *catalog.StudentProfile) ProfileView {
	return ProfileView{
		StudentID: p.StudentID,
		FullName:  p.FullName,
		ClassID:   p.ClassID,
		SectionID: p.SectionID,
		Category:  p.Category,
		Status:    string(p.Status),
		UpdatedAt: p.UpdatedAt,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// ParseOptionalDate parses an optional date; empty stays nil
func ParseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
