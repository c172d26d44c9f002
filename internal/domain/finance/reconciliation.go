package finance

import (
	"fmt"
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InvoiceCloseResult is what closing the period did to one invoice
type InvoiceCloseResult struct {
	Invoice      *Invoice
	FineLine     *InvoiceLine
	CarryForward *CarryForwardEntry
	Adjustments  []*Adjustment
}

// StudentCloseOutcome is what closing the period did to one student's invoices
type StudentCloseOutcome struct {
	StudentID uuid.UUID
	Examined  int
	Skipped   int // already reconciled by an earlier close
	NotYetDue int
	Results   []*InvoiceCloseResult
}

// CloseInput carries the parameters shared by every invoice of a close
type CloseInput struct {
	Period     string
	NextPeriod string
	AsOf       time.Time
	FineRule   *catalog.FineRule
	Actor      string
}

// CloseStudentPeriod reconciles one student's invoices of the period.
// Invoices already reconciled are skipped, so repeating a close never fines twice.
func CloseStudentPeriod(studentID uuid.UUID, invoices []*Invoice, in CloseInput) (*StudentCloseOutcome, error) {
	out := &StudentCloseOutcome{StudentID: studentID}
	for _, inv := range invoices {
		if inv.StudentID != studentID || inv.BillingPeriod != in.Period || inv.Status == InvoiceStatusVoid {
			continue
		}
		out.Examined++
		if inv.IsReconciled() {
			out.Skipped++
			continue
		}
		res, err := ReconcileInvoice(inv, in)
		if err != nil {
			return nil, err
		}
		if res == nil {
			out.NotYetDue++
			continue
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

// ReconcileInvoice applies the close to one invoice. An invoice still owing
// but not yet due is left untouched and nil is returned. Otherwise a fine is
// added when the invoice is past due, every remainder is carried to the next
// period, and the invoice is stamped reconciled.
func ReconcileInvoice(inv *Invoice, in CloseInput) (*InvoiceCloseResult, error) {
	if inv.IsReconciled() {
		return nil, shared.NewDomainError("INVOICE_RECONCILED", "Invoice has already been reconciled")
	}
	outstanding := inv.Outstanding()
	pastDue := in.AsOf.After(inv.DueDate)
	if outstanding.IsPositive() && !pastDue {
		return nil, nil
	}

	res := &InvoiceCloseResult{Invoice: inv}
	if outstanding.IsPositive() && in.FineRule != nil {
		fine, err := in.FineRule.Compute(outstanding, inv.DueDate, in.AsOf)
		if err != nil {
			return nil, err
		}
		if fine.IsPositive() {
			desc := fmt.Sprintf("Late payment fine (%s)", in.FineRule.Name)
			line, err := inv.AddFineLine(fine, desc, in.AsOf)
			if err != nil {
				return nil, err
			}
			res.FineLine = line
			lineID := line.ID
			res.Adjustments = append(res.Adjustments,
				NewAdjustment(inv.StudentID, AdjustmentFine, fine, desc, in.Actor, in.AsOf).ForInvoice(inv.ID, &lineID))
		}
	}

	carried := inv.CarryForwardRemainder(in.AsOf)
	if !carried.IsZero() {
		e, err := NewCarryForwardEntry(inv.StudentID, in.Period, in.NextPeriod, carried,
			CarryForwardSourcePeriodClose, inv.DueDate, in.AsOf)
		if err != nil {
			return nil, err
		}
		e.WithSourceInvoice(inv.ID)
		res.CarryForward = e
		res.Adjustments = append(res.Adjustments,
			NewAdjustment(inv.StudentID, AdjustmentCarryForward, carried,
				fmt.Sprintf("carried from %s to %s", in.Period, in.NextPeriod), in.Actor, in.AsOf).
				ForInvoice(inv.ID, nil).ForCarryForward(e.ID))
	}
	inv.MarkReconciled(in.AsOf)
	return res, nil
}
