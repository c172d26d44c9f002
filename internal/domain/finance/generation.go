package finance

import (
	"fmt"
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// DiscountLookup returns the discount rule for one fee item, or nil
type DiscountLookup func(itemKey string) (*catalog.DiscountRule, error)

// GenerationInput is everything needed to build one invoice
type GenerationInput struct {
	StudentID uuid.UUID
	Period    valueobject.BillingPeriod
	Calendar  valueobject.Calendar
	Sequence  int64
	Currency  valueobject.Currency
	DueDate   time.Time
	Now       time.Time
	Actor     string
	Items     []catalog.ApplicableItem
	Discounts DiscountLookup
	Pending   []PendingCarryForward
	Policy    AllocationPolicy
}

// GenerationResult is a built invoice and the records created with it
type GenerationResult struct {
	Invoice     *Invoice
	Adjustments []*Adjustment
	Transfers   []CreditTransfer
}

// GenerateInvoice builds an invoice from the applicable fee items and the
// pending carry-forwards due by the period, then consumes any credit it holds.
func GenerateInvoice(in GenerationInput) (*GenerationResult, error) {
	inv, err := NewInvoice(in.StudentID, in.Period.Key(), in.Sequence, in.Currency, in.DueDate, in.Now, in.Actor)
	if err != nil {
		return nil, err
	}

	for _, item := range in.Items {
		def := item.Definition
		if item.Gross.Currency() != in.Currency {
			return nil, shared.NewConfigurationError("FEE_CURRENCY_MISMATCH",
				fmt.Sprintf("fee item %s is priced in %s, ledger currency is %s", def.ItemKey, item.Gross.Currency(), in.Currency)).
				WithDetail("item_key", def.ItemKey)
		}
		discount := valueobject.Zero(in.Currency)
		var ruleID *uuid.UUID
		if in.Discounts != nil {
			rule, err := in.Discounts(def.ItemKey)
			if err != nil {
				return nil, err
			}
			if rule != nil {
				discount, err = rule.Compute(item.Gross)
				if err != nil {
					return nil, err
				}
				if discount.IsPositive() {
					id := rule.ID
					ruleID = &id
				}
			}
		}
		desc := def.Name
		if item.Occurrences > 1 {
			desc = fmt.Sprintf("%s x%d", def.Name, item.Occurrences)
		}
		if _, err := inv.AddFeeLine(FeeLine{
			FeeItemID:      def.ID,
			Revision:       def.Revision,
			ItemKey:        def.ItemKey,
			Description:    desc,
			Gross:          item.Gross,
			Discount:       discount,
			DiscountRuleID: ruleID,
		}); err != nil {
			return nil, err
		}
	}

	for _, p := range in.Pending {
		due, err := carryForwardDue(in.Calendar, p.Entry, in.Period)
		if err != nil {
			return nil, err
		}
		if !due {
			continue
		}
		if p.Entry.Amount.Currency() != in.Currency {
			return nil, shared.NewStorageError("generate invoice",
				fmt.Errorf("carry-forward %s is in %s", p.Entry.ID, p.Entry.Amount.Currency()))
		}
		if !p.Entry.IsCredit() && !p.Remaining().IsPositive() && p.Settled.IsZero() {
			continue
		}
		if _, err := inv.AddCarryForwardLine(p.Entry, p.Settled); err != nil {
			return nil, err
		}
	}

	if len(inv.Lines) == 0 {
		return nil, shared.NewDomainError("NOTHING_TO_INVOICE",
			fmt.Sprintf("no fee items apply to the student for period %s", in.Period.Key()))
	}

	result := &GenerationResult{Invoice: inv}
	result.Transfers = inv.ApplyCredits(in.Policy.CarryForwardFirst, in.Now)
	for _, t := range result.Transfers {
		to := t.ToLineID
		adj := NewAdjustment(in.StudentID, AdjustmentCreditApplied, t.Amount, "credit brought forward applied", in.Actor, in.Now).
			ForInvoice(inv.ID, &to)
		if line, err := inv.Line(t.FromLineID); err == nil && line.CarryForwardID != nil {
			adj.ForCarryForward(*line.CarryForwardID)
		}
		result.Adjustments = append(result.Adjustments, adj)
	}
	inv.Refresh(in.Now)
	inv.AddDomainEvent(NewInvoiceGeneratedEvent(inv))
	return result, nil
}

// carryForwardDue reports whether an entry targets the period or one before it
func carryForwardDue(cal valueobject.Calendar, e *CarryForwardEntry, period valueobject.BillingPeriod) (bool, error) {
	target, err := cal.ParsePeriod(e.ToPeriod)
	if err != nil {
		return false, shared.NewStorageError("generate invoice", fmt.Errorf("carry-forward %s: %w", e.ID, err))
	}
	return !target.Start().After(period.Start()), nil
}

// DueDateFor returns the payment due date of an invoice for the period
func DueDateFor(period valueobject.BillingPeriod, dueDays int) time.Time {
	return period.Start().AddDate(0, 0, dueDays)
}
