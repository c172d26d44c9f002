package finance

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// CollectionInput describes a payment to record against a student's ledger
type CollectionInput struct {
	StudentID         uuid.UUID
	Amount            valueobject.Money
	Method            PaymentMethod
	ExternalReference string
	RecordedBy        string
	Note              string
	Now               time.Time
	Calendar          valueobject.Calendar
	Policy            AllocationPolicy
}

// CollectionResult holds the records a collection produces
type CollectionResult struct {
	Payment  *Payment
	Touched  []*Invoice
	Credit   *CarryForwardEntry // set when the payment exceeded everything owed
	Strategy string
}

// CollectPayment allocates a payment across the student's open obligations,
// oldest first. The history's invoices are updated in place.
func CollectPayment(h *LedgerHistory, in CollectionInput) (*CollectionResult, error) {
	if in.Amount.Currency() != h.Currency {
		return nil, shared.NewDomainError("CURRENCY_MISMATCH", "Payment currency does not match the ledger currency").
			WithDetail("currency", in.Amount.Currency().String())
	}
	payment, err := NewPayment(in.StudentID, in.Amount, in.Method, in.ExternalReference, in.RecordedBy, in.Note, in.Now)
	if err != nil {
		return nil, err
	}

	strategy := NewFIFOAllocationStrategy()
	targets := BuildAllocationTargets(h.OpenInvoices(), h.PendingCarryForwards(), in.Policy)
	plan, err := strategy.Allocate(in.Amount, targets)
	if err != nil {
		return nil, err
	}

	result := &CollectionResult{Payment: payment, Strategy: strategy.Name()}
	if plan.RemainingAmount.IsPositive() {
		if !in.Policy.AllowCreditCarry {
			return nil, shared.NewOverpaymentRejectedError(plan.RemainingAmount.Minor(), plan.RemainingAmount.Currency().String())
		}
		from, to := creditPeriods(h, in.Calendar, in.Now)
		credit, err := NewCarryForwardEntry(in.StudentID, from, to, plan.RemainingAmount.Negate(),
			CarryForwardSourceOverpayment, in.Now, in.Now)
		if err != nil {
			return nil, err
		}
		credit.WithSourcePayment(payment.ID)
		result.Credit = credit
	}

	touched := make(map[uuid.UUID]bool)
	for _, alloc := range plan.Allocations {
		switch alloc.Target.Type {
		case AllocationTargetInvoiceLine:
			inv := h.Invoice(alloc.Target.InvoiceID)
			if inv == nil {
				return nil, shared.NewNotFoundError("invoice", alloc.Target.InvoiceID.String())
			}
			if err := inv.ApplyPayment(alloc.Target.LineID, alloc.Amount, in.Now); err != nil {
				return nil, err
			}
			payment.AllocateToLine(inv.ID, alloc.Target.LineID, alloc.Amount)
			if !touched[inv.ID] {
				touched[inv.ID] = true
				result.Touched = append(result.Touched, inv)
			}
		case AllocationTargetCarryForward:
			payment.AllocateToCarryForward(alloc.Target.CarryForwardID, alloc.Amount)
		}
	}
	if result.Credit != nil {
		payment.AllocateToCarryForward(result.Credit.ID, plan.RemainingAmount)
	}

	if err := payment.CheckBalanced(); err != nil {
		return nil, err
	}

	creditAmount := valueobject.Zero(h.Currency)
	if result.Credit != nil {
		creditAmount = plan.RemainingAmount
	}
	payment.AddDomainEvent(NewPaymentCollectedEvent(payment, creditAmount))
	return result, nil
}

// creditPeriods picks where overpayment credit lands: the period after the
// student's latest invoice, or after the current month when there is none.
func creditPeriods(h *LedgerHistory, cal valueobject.Calendar, now time.Time) (string, string) {
	if latest := h.LatestInvoice(); latest != nil {
		if p, err := cal.ParsePeriod(latest.BillingPeriod); err == nil {
			return p.Key(), cal.Next(p).Key()
		}
	}
	current := valueobject.MonthContaining(now)
	return current.Key(), cal.Next(current).Key()
}

// Apply writes the collection result back into the history
func (r *CollectionResult) Apply(h *LedgerHistory) {
	h.Payments = append(h.Payments, r.Payment)
	if r.Credit != nil {
		h.CarryForwards = append(h.CarryForwards, r.Credit)
	}
}
