package finance

import (
	"sort"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AllocationPolicy holds the institution's payment allocation settings
type AllocationPolicy struct {
	// CarryForwardFirst pays brought-forward balances before the invoice's own charges
	CarryForwardFirst bool
	// AllowCreditCarry turns overpayments into credit instead of rejecting them
	AllowCreditCarry bool
}

// DefaultAllocationPolicy returns the default policy
func DefaultAllocationPolicy() AllocationPolicy {
	return AllocationPolicy{AllowCreditCarry: true}
}

// AllocationTarget is one obligation a payment can settle
type AllocationTarget struct {
	Type           AllocationTargetType
	InvoiceID      uuid.UUID
	InvoiceNumber  string
	LineID         uuid.UUID
	CarryForwardID uuid.UUID
	Outstanding    valueobject.Money
	DueDate        time.Time
	Sequence       int64 // invoice creation order
	Rank           int   // position within the invoice's payment order
	CreatedAt      time.Time
}

// AllocationResult is a single planned allocation
type AllocationResult struct {
	Target AllocationTarget
	Amount valueobject.Money
}

// AllocationPlan is the complete result of allocating one payment
type AllocationPlan struct {
	Allocations          []AllocationResult
	TotalAllocated       valueobject.Money
	RemainingAmount      valueobject.Money
	FullyAllocated       bool
	TargetsFullyPaid     []AllocationTarget
	TargetsPartiallyPaid []AllocationTarget
}

// BuildAllocationTargets lists the open obligations of a student.
// Lines of open invoices come in the invoice's payment order; pending debt
// carry-forwards come ahead of invoices sharing their due date.
func BuildAllocationTargets(invoices []*Invoice, pending []PendingCarryForward, policy AllocationPolicy) []AllocationTarget {
	targets := make([]AllocationTarget, 0)
	for _, p := range pending {
		if p.Entry.IsCredit() || !p.Remaining().IsPositive() {
			continue
		}
		targets = append(targets, AllocationTarget{
			Type:           AllocationTargetCarryForward,
			CarryForwardID: p.Entry.ID,
			Outstanding:    p.Remaining(),
			DueDate:        p.Entry.DueDate,
			Sequence:       0,
			CreatedAt:      p.Entry.CreatedAt,
		})
	}
	for _, inv := range invoices {
		if inv.Status == InvoiceStatusVoid {
			continue
		}
		for rank, line := range inv.OrderedLines(policy.CarryForwardFirst) {
			if line.IsCredit() || !line.Due().IsPositive() {
				continue
			}
			targets = append(targets, AllocationTarget{
				Type:          AllocationTargetInvoiceLine,
				InvoiceID:     inv.ID,
				InvoiceNumber: inv.InvoiceNumber,
				LineID:        line.ID,
				Outstanding:   line.Due(),
				DueDate:       inv.DueDate,
				Sequence:      inv.Sequence,
				Rank:          rank,
				CreatedAt:     inv.CreatedAt,
			})
		}
	}
	return targets
}

// FIFOAllocationStrategy allocates to the oldest obligations first:
// due date, then invoice creation order, then line order within the invoice.
type FIFOAllocationStrategy struct{}

// NewFIFOAllocationStrategy creates a new FIFO allocation strategy
func NewFIFOAllocationStrategy() *FIFOAllocationStrategy {
	return &FIFOAllocationStrategy{}
}

// Name returns the strategy name
func (s *FIFOAllocationStrategy) Name() string {
	return "fifo_allocation"
}

// Allocate plans how the amount settles the targets
func (s *FIFOAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	sorted := make([]AllocationTarget, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	plan := &AllocationPlan{
		Allocations:          make([]AllocationResult, 0),
		TotalAllocated:       valueobject.Zero(amount.Currency()),
		TargetsFullyPaid:     make([]AllocationTarget, 0),
		TargetsPartiallyPaid: make([]AllocationTarget, 0),
	}
	remaining := amount

	for _, target := range sorted {
		if remaining.IsZero() {
			break
		}
		if !target.Outstanding.IsPositive() {
			continue
		}
		if target.Outstanding.Currency() != amount.Currency() {
			return nil, shared.NewDomainError("CURRENCY_MISMATCH", "Allocation target currency differs from payment currency")
		}

		alloc := remaining.Min(target.Outstanding)
		plan.Allocations = append(plan.Allocations, AllocationResult{Target: target, Amount: alloc})
		plan.TotalAllocated = plan.TotalAllocated.MustAdd(alloc)
		remaining = remaining.MustSubtract(alloc)

		if alloc.Equals(target.Outstanding) {
			plan.TargetsFullyPaid = append(plan.TargetsFullyPaid, target)
		} else {
			plan.TargetsPartiallyPaid = append(plan.TargetsPartiallyPaid, target)
		}
	}

	plan.RemainingAmount = remaining
	plan.FullyAllocated = remaining.IsZero()
	return plan, nil
}
