package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// ReversalResult holds the records a payment reversal produces
type ReversalResult struct {
	Payment       *Payment
	Touched       []*Invoice
	CarryForwards []*CarryForwardEntry
	Adjustment    *Adjustment
}

// ReversePayment undoes a payment's allocations. Payments are never deleted;
// the reversal is an adjustment, and amounts that can no longer be taken back
// off a line (void invoices, consumed credit) become debt carry-forwards.
func ReversePayment(h *LedgerHistory, paymentID uuid.UUID, reason, actor string, now time.Time) (*ReversalResult, error) {
	var payment *Payment
	for _, p := range h.Payments {
		if p.ID == paymentID {
			payment = p
			break
		}
	}
	if payment == nil {
		return nil, shared.NewNotFoundError("payment", paymentID.String())
	}
	if h.IsReversed(paymentID) {
		return nil, shared.NewDomainError("PAYMENT_ALREADY_REVERSED", "Payment has already been reversed")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "A reversal reason is required")
	}

	result := &ReversalResult{Payment: payment}
	touched := make(map[uuid.UUID]bool)
	touch := func(inv *Invoice) {
		if !touched[inv.ID] {
			touched[inv.ID] = true
			result.Touched = append(result.Touched, inv)
		}
	}
	owe := func(from, to string, amount valueobject.Money, due time.Time) error {
		e, err := NewCarryForwardEntry(payment.StudentID, from, to, amount, CarryForwardSourceReversal, due, now)
		if err != nil {
			return err
		}
		e.WithSourcePayment(payment.ID)
		result.CarryForwards = append(result.CarryForwards, e)
		return nil
	}

	for _, a := range payment.Allocations {
		switch a.TargetType {
		case AllocationTargetInvoiceLine:
			inv := h.Invoice(*a.InvoiceID)
			if inv == nil {
				return nil, shared.NewNotFoundError("invoice", a.InvoiceID.String())
			}
			if inv.Status == InvoiceStatusVoid {
				if err := owe(inv.BillingPeriod, inv.BillingPeriod, a.Amount, inv.DueDate); err != nil {
					return nil, err
				}
				continue
			}
			if err := inv.RevertPayment(*a.InvoiceLineID, a.Amount, now); err != nil {
				return nil, err
			}
			touch(inv)
		case AllocationTargetCarryForward:
			entry := h.CarryForward(*a.CarryForwardID)
			if entry == nil {
				return nil, shared.NewNotFoundError("carry-forward", a.CarryForwardID.String())
			}
			if entry.IsCredit() {
				// the credit may already be spent, so it is cancelled by an equal debt
				if err := owe(entry.FromPeriod, entry.ToPeriod, a.Amount, now); err != nil {
					return nil, err
				}
				continue
			}
			inv, line := h.MaterializingLine(entry.ID)
			switch {
			case line == nil:
				// still pending; dropping the allocation reopens the entry
			case inv.Status == InvoiceStatusVoid:
				if err := owe(inv.BillingPeriod, inv.BillingPeriod, a.Amount, inv.DueDate); err != nil {
					return nil, err
				}
			default:
				if err := inv.RevertPayment(line.ID, a.Amount, now); err != nil {
					return nil, err
				}
				touch(inv)
			}
		default:
			return nil, shared.NewStorageError("reverse payment", fmt.Errorf("allocation %s has unknown target %q", a.ID, a.TargetType))
		}
	}

	result.Adjustment = NewAdjustment(payment.StudentID, AdjustmentPaymentReversal, payment.Amount, reason, actor, now).
		ForPayment(payment.ID)
	payment.AddDomainEvent(NewPaymentReversedEvent(payment, reason, now))
	return result, nil
}

// VoidResult holds the records an invoice void produces
type VoidResult struct {
	Invoice      *Invoice
	Compensation *CarryForwardEntry
	Adjustment   *Adjustment
}

// VoidInvoice cancels an invoice, preserving what was paid into it and what
// it brought forward as a carry-forward back into the same period.
func VoidInvoice(inv *Invoice, reason, actor string, now time.Time) (*VoidResult, error) {
	net := inv.TotalNet()
	compensation, err := inv.Void(reason, now)
	if err != nil {
		return nil, err
	}
	result := &VoidResult{Invoice: inv}
	if !compensation.IsZero() {
		e, err := NewCarryForwardEntry(inv.StudentID, inv.BillingPeriod, inv.BillingPeriod, compensation,
			CarryForwardSourceVoid, inv.DueDate, now)
		if err != nil {
			return nil, err
		}
		e.WithSourceInvoice(inv.ID)
		result.Compensation = e
	}
	result.Adjustment = NewAdjustment(inv.StudentID, AdjustmentVoid, net, inv.VoidReason, actor, now).
		ForInvoice(inv.ID, nil)
	if result.Compensation != nil {
		result.Adjustment.ForCarryForward(result.Compensation.ID)
	}
	return result, nil
}
