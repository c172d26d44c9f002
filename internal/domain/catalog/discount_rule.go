package catalog

import (
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// DiscountTarget is who a discount rule is granted to
type DiscountTarget string

const (
	DiscountTargetStudent  DiscountTarget = "STUDENT"
	DiscountTargetCategory DiscountTarget = "CATEGORY"
)

// DiscountKind is how a discount is computed
type DiscountKind string

const (
	DiscountKindFixedAmount DiscountKind = "FIXED_AMOUNT"
	DiscountKindPercentage  DiscountKind = "PERCENTAGE"
)

// DiscountRule grants a reduction on one fee item, or every item when ItemKey is empty.
// Only one rule ever applies to an invoice line.
type DiscountRule struct {
	shared.BaseAggregateRoot
	Name            string
	Target          DiscountTarget
	StudentID       *uuid.UUID
	Category        string
	ItemKey         string
	Kind            DiscountKind
	Amount          valueobject.Money // FixedAmount only
	RateBasisPoints int64             // Percentage only, 1000 = 10%
	Cap             *valueobject.Money
	ValidFrom       time.Time
	ValidTo         *time.Time // inclusive
	Active          bool
}

// DiscountRuleParams carries the editable attributes of a discount rule
type DiscountRuleParams struct {
	Name            string
	Target          DiscountTarget
	StudentID       *uuid.UUID
	Category        string
	ItemKey         string
	Kind            DiscountKind
	Amount          valueobject.Money
	RateBasisPoints int64
	Cap             *valueobject.Money
	ValidFrom       time.Time
	ValidTo         *time.Time
}

// NewDiscountRule creates an active discount rule
func NewDiscountRule(params DiscountRuleParams) (*DiscountRule, error) {
	params, err := validateDiscountParams(params)
	if err != nil {
		return nil, err
	}
	rule := &DiscountRule{BaseAggregateRoot: shared.NewBaseAggregateRoot(), Active: true}
	rule.apply(params)
	return rule, nil
}

// Update replaces the rule's attributes. Lines already generated keep the
// discount amount they were given.
func (r *DiscountRule) Update(params DiscountRuleParams) error {
	params, err := validateDiscountParams(params)
	if err != nil {
		return err
	}
	r.apply(params)
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
	return nil
}

// Deactivate withdraws the rule from future generations
func (r *DiscountRule) Deactivate() {
	r.Active = false
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
}

func (r *DiscountRule) apply(p DiscountRuleParams) {
	r.Name = p.Name
	r.Target = p.Target
	r.StudentID = p.StudentID
	r.Category = p.Category
	r.ItemKey = p.ItemKey
	r.Kind = p.Kind
	r.Amount = p.Amount
	r.RateBasisPoints = p.RateBasisPoints
	r.Cap = p.Cap
	r.ValidFrom = p.ValidFrom
	r.ValidTo = p.ValidTo
}

// Priority orders matching rules: student before category, item-specific before all-items
func (r *DiscountRule) Priority() int {
	p := 1
	if r.Target == DiscountTargetStudent {
		p = 3
	}
	if r.ItemKey != "" {
		p++
	}
	return p
}

// Matches reports whether the rule applies to the student, item and period
func (r *DiscountRule) Matches(profile StudentProfile, itemKey string, period valueobject.BillingPeriod) bool {
	if !r.Active {
		return false
	}
	if r.ItemKey != "" && r.ItemKey != itemKey {
		return false
	}
	switch r.Target {
	case DiscountTargetStudent:
		if r.StudentID == nil || *r.StudentID != profile.StudentID {
			return false
		}
	case DiscountTargetCategory:
		if profile.Category == "" || r.Category != profile.Category {
			return false
		}
	default:
		return false
	}
	var to time.Time
	if r.ValidTo != nil {
		to = r.ValidTo.AddDate(0, 0, 1)
	}
	return period.Overlaps(r.ValidFrom, to)
}

// Compute returns the discount on gross. The result never exceeds gross,
// so the discounted net is never negative.
func (r *DiscountRule) Compute(gross valueobject.Money) (valueobject.Money, error) {
	if !gross.IsPositive() {
		return valueobject.Zero(gross.Currency()), nil
	}
	var discount valueobject.Money
	switch r.Kind {
	case DiscountKindFixedAmount:
		if r.Amount.Currency() != gross.Currency() {
			return valueobject.Money{}, shared.NewConfigurationError("DISCOUNT_CURRENCY_MISMATCH", "Discount currency does not match the fee currency")
		}
		discount = r.Amount
	case DiscountKindPercentage:
		var err error
		discount, err = gross.ApplyBasisPoints(r.RateBasisPoints)
		if err != nil {
			return valueobject.Money{}, shared.NewConfigurationError("INVALID_DISCOUNT_RATE", err.Error())
		}
	default:
		return valueobject.Money{}, shared.NewConfigurationError("INVALID_DISCOUNT_KIND", "Unknown discount kind")
	}
	if r.Cap != nil && r.Cap.Currency() == gross.Currency() {
		discount = discount.Min(*r.Cap)
	}
	return discount.Min(gross), nil
}

func validateDiscountParams(p DiscountRuleParams) (DiscountRuleParams, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, shared.NewDomainError("INVALID_NAME", "Discount rule name cannot be empty")
	}
	p.ItemKey = strings.ToUpper(strings.TrimSpace(p.ItemKey))
	p.Category = strings.ToUpper(strings.TrimSpace(p.Category))
	switch p.Target {
	case DiscountTargetStudent:
		if p.StudentID == nil || *p.StudentID == uuid.Nil {
			return p, shared.NewDomainError("INVALID_TARGET", "Student discount requires a student ID")
		}
		p.Category = ""
	case DiscountTargetCategory:
		if p.Category == "" {
			return p, shared.NewDomainError("INVALID_TARGET", "Category discount requires a category")
		}
		p.StudentID = nil
	default:
		return p, shared.NewDomainError("INVALID_TARGET", "Discount target must be STUDENT or CATEGORY")
	}
	switch p.Kind {
	case DiscountKindFixedAmount:
		if !p.Amount.IsPositive() {
			return p, shared.NewDomainError("INVALID_AMOUNT", "Fixed discount amount must be positive")
		}
		p.RateBasisPoints = 0
	case DiscountKindPercentage:
		if p.RateBasisPoints <= 0 || p.RateBasisPoints > 10000 {
			return p, shared.NewDomainError("INVALID_RATE", "Discount rate must be between 1 and 10000 basis points")
		}
		p.Amount = valueobject.Money{}
	default:
		return p, shared.NewDomainError("INVALID_KIND", "Discount kind must be FIXED_AMOUNT or PERCENTAGE")
	}
	if p.Cap != nil && p.Cap.IsNegative() {
		return p, shared.NewDomainError("INVALID_CAP", "Discount cap cannot be negative")
	}
	if p.ValidFrom.IsZero() {
		return p, shared.NewDomainError("INVALID_VALIDITY", "Valid from date is required")
	}
	p.ValidFrom = valueobject.DateOnly(p.ValidFrom)
	if p.ValidTo != nil {
		to := valueobject.DateOnly(*p.ValidTo)
		if to.Before(p.ValidFrom) {
			return p, shared.NewDomainError("INVALID_VALIDITY", "Valid to date cannot precede valid from date")
		}
		p.ValidTo = &to
	}
	return p, nil
}
