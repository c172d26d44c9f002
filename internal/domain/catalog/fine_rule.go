package catalog

import (
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
)

// FineKind is how a late fine is computed
type FineKind string

const (
	FineKindFixedAmount      FineKind = "FIXED_AMOUNT"
	FineKindPercentagePerDay FineKind = "PERCENTAGE_PER_DAY"
)

// FineRule is the late-payment penalty applied when a period is closed
type FineRule struct {
	shared.BaseAggregateRoot
	Name            string
	Kind            FineKind
	Amount          valueobject.Money // FixedAmount only
	RateBasisPoints int64             // per day late, PercentagePerDay only
	Cap             *valueobject.Money
	GraceDays       int
	ValidFrom       time.Time
	ValidTo         *time.Time // inclusive
	Active          bool
}

// FineRuleParams carries the attributes of a fine rule
type FineRuleParams struct {
	Name            string
	Kind            FineKind
	Amount          valueobject.Money
	RateBasisPoints int64
	Cap             *valueobject.Money
	GraceDays       int
	ValidFrom       time.Time
	ValidTo         *time.Time
}

// NewFineRule creates an active fine rule
func NewFineRule(p FineRuleParams) (*FineRule, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Fine rule name cannot be empty")
	}
	switch p.Kind {
	case FineKindFixedAmount:
		if !p.Amount.IsPositive() {
			return nil, shared.NewDomainError("INVALID_AMOUNT", "Fixed fine amount must be positive")
		}
		if !p.Amount.WithinTransactionLimit() {
			return nil, shared.NewDomainError("AMOUNT_TOO_LARGE", "Fixed fine amount exceeds the single transaction limit")
		}
	case FineKindPercentagePerDay:
		if p.RateBasisPoints <= 0 || p.RateBasisPoints > 10000 {
			return nil, shared.NewDomainError("INVALID_RATE", "Daily fine rate must be between 1 and 10000 basis points")
		}
	default:
		return nil, shared.NewDomainError("INVALID_KIND", "Fine kind must be FIXED_AMOUNT or PERCENTAGE_PER_DAY")
	}
	if p.GraceDays < 0 {
		return nil, shared.NewDomainError("INVALID_GRACE", "Grace days cannot be negative")
	}
	if p.Cap != nil && !p.Cap.IsPositive() {
		return nil, shared.NewDomainError("INVALID_CAP", "Fine cap must be positive")
	}
	if p.ValidFrom.IsZero() {
		return nil, shared.NewDomainError("INVALID_VALIDITY", "Valid from date is required")
	}
	p.ValidFrom = valueobject.DateOnly(p.ValidFrom)
	if p.ValidTo != nil {
		to := valueobject.DateOnly(*p.ValidTo)
		if to.Before(p.ValidFrom) {
			return nil, shared.NewDomainError("INVALID_VALIDITY", "Valid to date cannot precede valid from date")
		}
		p.ValidTo = &to
	}
	return &FineRule{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              p.Name,
		Kind:              p.Kind,
		Amount:            p.Amount,
		RateBasisPoints:   p.RateBasisPoints,
		Cap:               p.Cap,
		GraceDays:         p.GraceDays,
		ValidFrom:         p.ValidFrom,
		ValidTo:           p.ValidTo,
		Active:            true,
	}, nil
}

// Deactivate withdraws the rule
func (r *FineRule) Deactivate() {
	r.Active = false
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
}

// Covers reports whether the rule is in force for the period
func (r *FineRule) Covers(period valueobject.BillingPeriod) bool {
	if !r.Active {
		return false
	}
	var to time.Time
	if r.ValidTo != nil {
		to = r.ValidTo.AddDate(0, 0, 1)
	}
	return period.Overlaps(r.ValidFrom, to)
}

// DaysLate returns the whole days, rounded up, that asOf lies past dueDate plus grace
func (r *FineRule) DaysLate(dueDate, asOf time.Time) int64 {
	deadline := dueDate.AddDate(0, 0, r.GraceDays)
	if !asOf.After(deadline) {
		return 0
	}
	late := asOf.Sub(deadline)
	days := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Compute returns the fine owed on an unpaid amount. Nothing is owed on a
// non-positive amount or before the grace period has passed.
func (r *FineRule) Compute(unpaid valueobject.Money, dueDate, asOf time.Time) (valueobject.Money, error) {
	zero := valueobject.Zero(unpaid.Currency())
	if !unpaid.IsPositive() {
		return zero, nil
	}
	days := r.DaysLate(dueDate, asOf)
	if days == 0 {
		return zero, nil
	}
	var fine valueobject.Money
	switch r.Kind {
	case FineKindFixedAmount:
		if r.Amount.Currency() != unpaid.Currency() {
			return zero, shared.NewConfigurationError("FINE_CURRENCY_MISMATCH", "Fine currency does not match the invoice currency")
		}
		fine = r.Amount
	case FineKindPercentagePerDay:
		var err error
		fine, err = unpaid.ApplyRate(r.RateBasisPoints, days)
		if err != nil {
			return zero, shared.NewConfigurationError("INVALID_FINE_RATE", err.Error())
		}
	default:
		return zero, shared.NewConfigurationError("INVALID_FINE_KIND", "Unknown fine kind")
	}
	if r.Cap != nil && r.Cap.Currency() == unpaid.Currency() {
		fine = fine.Min(*r.Cap)
	}
	return fine, nil
}
