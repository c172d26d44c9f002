package catalog

import (
	"regexp"
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// FeeItemStatus represents the lifecycle of one revision of a fee item
type FeeItemStatus string

const (
	FeeItemStatusActive     FeeItemStatus = "ACTIVE"
	FeeItemStatusSuperseded FeeItemStatus = "SUPERSEDED"
	FeeItemStatusRetired    FeeItemStatus = "RETIRED"
)

var itemKeyPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,49}$`)

// FeeItemDefinition is one revision of a chargeable fee item.
// Revisions are never edited once created; a change produces revision n+1
// and marks revision n superseded, so invoices keep pointing at the revision
// they were generated from.
type FeeItemDefinition struct {
	shared.BaseAggregateRoot
	LineageID     uuid.UUID // shared by every revision of one definition
	ItemKey       string
	Revision      int
	Name          string
	Description   string
	Amount        valueobject.Money
	Frequency     Frequency
	Applicability Applicability
	EffectiveFrom time.Time
	EffectiveTo   *time.Time // last billable day, inclusive
	SortOrder     int
	Status        FeeItemStatus
	SupersedesID  *uuid.UUID
}

// FeeItemParams carries the editable attributes of a fee item
type FeeItemParams struct {
	ItemKey       string
	Name          string
	Description   string
	Amount        valueobject.Money
	Frequency     Frequency
	Applicability Applicability
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	SortOrder     int
}

// NewFeeItemDefinition creates revision 1 of a fee item
func NewFeeItemDefinition(params FeeItemParams) (*FeeItemDefinition, error) {
	params, err := validateFeeItemParams(params)
	if err != nil {
		return nil, err
	}
	base := shared.NewBaseAggregateRoot()
	return &FeeItemDefinition{
		BaseAggregateRoot: base,
		LineageID:         base.ID,
		ItemKey:           params.ItemKey,
		Revision:          1,
		Name:              params.Name,
		Description:       params.Description,
		Amount:            params.Amount,
		Frequency:         params.Frequency,
		Applicability:     params.Applicability,
		EffectiveFrom:     params.EffectiveFrom,
		EffectiveTo:       params.EffectiveTo,
		SortOrder:         params.SortOrder,
		Status:            FeeItemStatusActive,
	}, nil
}

// Revise supersedes this revision with a new one carrying params.
// The item key cannot change across revisions.
func (d *FeeItemDefinition) Revise(params FeeItemParams) (*FeeItemDefinition, error) {
	if d.Status != FeeItemStatusActive {
		return nil, shared.NewDomainError("FEE_ITEM_NOT_ACTIVE", "Only the active revision of a fee item can be revised")
	}
	if params.ItemKey == "" {
		params.ItemKey = d.ItemKey
	}
	if !strings.EqualFold(params.ItemKey, d.ItemKey) {
		return nil, shared.NewDomainError("INVALID_ITEM_KEY", "Item key cannot change between revisions")
	}
	next, err := NewFeeItemDefinition(params)
	if err != nil {
		return nil, err
	}
	next.LineageID = d.LineageID
	next.Revision = d.Revision + 1
	id := d.ID
	next.SupersedesID = &id

	d.Status = FeeItemStatusSuperseded
	d.UpdatedAt = time.Now()
	d.IncrementVersion()
	return next, nil
}

// Retire stops the item from being billed in any future generation
func (d *FeeItemDefinition) Retire() error {
	if d.Status != FeeItemStatusActive {
		return shared.NewDomainError("FEE_ITEM_NOT_ACTIVE", "Only an active fee item can be retired")
	}
	d.Status = FeeItemStatusRetired
	d.UpdatedAt = time.Now()
	d.IncrementVersion()
	return nil
}

// IsActive returns true if this revision is billable
func (d *FeeItemDefinition) IsActive() bool {
	return d.Status == FeeItemStatusActive
}

// WindowEnd returns the exclusive end of the effective window, zero when open-ended
func (d *FeeItemDefinition) WindowEnd() time.Time {
	if d.EffectiveTo == nil {
		return time.Time{}
	}
	return d.EffectiveTo.AddDate(0, 0, 1)
}

// Occurrences counts how many times the item is charged in the period
func (d *FeeItemDefinition) Occurrences(cal valueobject.Calendar, p valueobject.BillingPeriod) int {
	return d.Frequency.Occurrences(cal, p, d.EffectiveFrom, d.WindowEnd())
}

func validateFeeItemParams(p FeeItemParams) (FeeItemParams, error) {
	p.ItemKey = strings.ToUpper(strings.TrimSpace(p.ItemKey))
	if !itemKeyPattern.MatchString(p.ItemKey) {
		return p, shared.NewDomainError("INVALID_ITEM_KEY", "Item key must be 1-50 characters of A-Z, 0-9, '_' or '-'")
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, shared.NewDomainError("INVALID_NAME", "Fee item name cannot be empty")
	}
	if len(p.Name) > 200 {
		return p, shared.NewDomainError("INVALID_NAME", "Fee item name cannot exceed 200 characters")
	}
	if !p.Amount.IsPositive() {
		return p, shared.NewDomainError("INVALID_AMOUNT", "Fee item amount must be positive")
	}
	if !p.Amount.WithinTransactionLimit() {
		return p, shared.NewDomainError("AMOUNT_TOO_LARGE", "Fee item amount exceeds the single transaction limit")
	}
	if !p.Frequency.IsValid() {
		return p, shared.NewDomainError("INVALID_FREQUENCY", "Unknown fee frequency")
	}
	p.Applicability = p.Applicability.Normalize()
	if err := p.Applicability.Validate(); err != nil {
		return p, err
	}
	if p.EffectiveFrom.IsZero() {
		return p, shared.NewDomainError("INVALID_EFFECTIVE_DATE", "Effective from date is required")
	}
	p.EffectiveFrom = valueobject.DateOnly(p.EffectiveFrom)
	if p.EffectiveTo != nil {
		to := valueobject.DateOnly(*p.EffectiveTo)
		if to.Before(p.EffectiveFrom) {
			return p, shared.NewDomainError("INVALID_EFFECTIVE_DATE", "Effective to date cannot precede effective from date")
		}
		p.EffectiveTo = &to
	}
	return p, nil
}
