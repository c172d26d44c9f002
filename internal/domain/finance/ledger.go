package finance

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// LedgerHistory is everything the ledger holds for one student
type LedgerHistory struct {
	StudentID     uuid.UUID
	Currency      valueobject.Currency
	Invoices      []*Invoice
	Payments      []*Payment
	CarryForwards []*CarryForwardEntry
	Adjustments   []*Adjustment
}

// ReversedPayments returns the ids of payments that carry a reversal adjustment
func (h *LedgerHistory) ReversedPayments() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for _, a := range h.Adjustments {
		if a.Kind == AdjustmentPaymentReversal && a.PaymentID != nil {
			out[*a.PaymentID] = true
		}
	}
	return out
}

// IsReversed returns true if the payment has been reversed
func (h *LedgerHistory) IsReversed(paymentID uuid.UUID) bool {
	return h.ReversedPayments()[paymentID]
}

// Invoice returns the invoice with the given id from the history
func (h *LedgerHistory) Invoice(id uuid.UUID) *Invoice {
	for _, inv := range h.Invoices {
		if inv.ID == id {
			return inv
		}
	}
	return nil
}

// CarryForward returns the entry with the given id from the history
func (h *LedgerHistory) CarryForward(id uuid.UUID) *CarryForwardEntry {
	for _, e := range h.CarryForwards {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// MaterializingLine returns the invoice line that picked up the entry, if any
func (h *LedgerHistory) MaterializingLine(entryID uuid.UUID) (*Invoice, *InvoiceLine) {
	for _, inv := range h.Invoices {
		if line := inv.LineForCarryForward(entryID); line != nil {
			return inv, line
		}
	}
	return nil, nil
}

// OpenInvoices returns non-void invoices with something still owed, oldest due first
func (h *LedgerHistory) OpenInvoices() []*Invoice {
	var out []*Invoice
	for _, inv := range h.Invoices {
		if inv.IsOpen() {
			out = append(out, inv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// LatestInvoice returns the most recently created non-void invoice
func (h *LedgerHistory) LatestInvoice() *Invoice {
	var latest *Invoice
	for _, inv := range h.Invoices {
		if inv.Status == InvoiceStatusVoid {
			continue
		}
		if latest == nil || inv.Sequence > latest.Sequence {
			latest = inv
		}
	}
	return latest
}

// PendingCarryForwards returns the entries no invoice line references yet.
// A line on a void invoice still counts as a reference.
func (h *LedgerHistory) PendingCarryForwards() []PendingCarryForward {
	consumed := make(map[uuid.UUID]bool)
	for _, inv := range h.Invoices {
		for _, l := range inv.Lines {
			if l.CarryForwardID != nil {
				consumed[*l.CarryForwardID] = true
			}
		}
	}
	settled := h.settledByEntry()
	var out []PendingCarryForward
	for _, e := range h.CarryForwards {
		if consumed[e.ID] {
			continue
		}
		s, ok := settled[e.ID]
		if !ok || e.IsCredit() {
			s = valueobject.Zero(e.Amount.Currency())
		}
		out = append(out, PendingCarryForward{Entry: e, Settled: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Entry, out[j].Entry
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// settledByEntry sums live allocations per carry-forward entry
func (h *LedgerHistory) settledByEntry() map[uuid.UUID]valueobject.Money {
	reversed := h.ReversedPayments()
	out := make(map[uuid.UUID]valueobject.Money)
	for _, p := range h.Payments {
		if reversed[p.ID] {
			continue
		}
		for _, a := range p.Allocations {
			if a.TargetType != AllocationTargetCarryForward || a.CarryForwardID == nil {
				continue
			}
			cur, ok := out[*a.CarryForwardID]
			if !ok {
				cur = valueobject.Zero(a.Amount.Currency())
			}
			out[*a.CarryForwardID] = cur.MustAdd(a.Amount)
		}
	}
	return out
}

// LedgerBalance is a student's position derived from the ledger
type LedgerBalance struct {
	StudentID uuid.UUID
	Currency  valueobject.Currency
	// Charged is every fee and fine line on non-void invoices
	Charged valueobject.Money
	// Paid is every payment not reversed
	Paid valueobject.Money
	// Outstanding is what the student owes now
	Outstanding valueobject.Money
	// Credit is what the student has paid in advance
	Credit       valueobject.Money
	Net          valueobject.Money
	OpenInvoices []*Invoice
	Pending      []PendingCarryForward
	Checksum     string
}

// ComputeBalance folds the history into a balance. Two independent sums are
// taken: charges minus payments, and open line remainders plus pending
// carry-forwards. They must agree or the ledger is inconsistent.
func ComputeBalance(h *LedgerHistory) (*LedgerBalance, error) {
	cur := h.Currency
	zero := valueobject.Zero(cur)
	b := &LedgerBalance{
		StudentID:   h.StudentID,
		Currency:    cur,
		Charged:     zero,
		Paid:        zero,
		Outstanding: zero,
		Credit:      zero,
	}

	var sum checkedSum
	for _, inv := range h.Invoices {
		if inv.Status == InvoiceStatusVoid {
			continue
		}
		if inv.Currency != cur {
			return nil, shared.NewStorageError("fold ledger", fmt.Errorf("invoice %s is in %s, ledger is %s", inv.ID, inv.Currency, cur))
		}
		b.Charged = sum.add(b.Charged, inv.ChargedAmount())
		b.Outstanding = sum.add(b.Outstanding, inv.Outstanding())
		b.Credit = sum.add(b.Credit, inv.UnusedCredit())
	}

	reversed := h.ReversedPayments()
	for _, p := range h.Payments {
		if reversed[p.ID] {
			continue
		}
		b.Paid = sum.add(b.Paid, p.Amount)
	}

	pendingNet := zero
	b.Pending = h.PendingCarryForwards()
	for _, p := range b.Pending {
		pendingNet = sum.add(pendingNet, p.Remaining())
	}
	if pendingNet.IsPositive() {
		b.Outstanding = sum.add(b.Outstanding, pendingNet)
	} else {
		b.Credit = sum.add(b.Credit, pendingNet.Negate())
	}

	b.Net = sum.add(b.Charged, b.Paid.Negate())
	derived := sum.add(b.Outstanding, b.Credit.Negate())
	if sum.err != nil {
		return nil, shared.NewStorageError("fold ledger",
			fmt.Errorf("ledger for student %s cannot be summed: %w", h.StudentID, sum.err)).
			WithDetail("student_id", h.StudentID.String())
	}
	if !derived.Equals(b.Net) {
		return nil, shared.NewStorageError("fold ledger",
			fmt.Errorf("ledger for student %s is inconsistent: charges less payments %s, open balance %s",
				h.StudentID, b.Net.Major(), derived.Major())).
			WithDetail("student_id", h.StudentID.String())
	}

	b.OpenInvoices = h.OpenInvoices()
	b.Checksum = Checksum(h)
	return b, nil
}

// checkedSum adds amounts and keeps the first failure instead of panicking
type checkedSum struct {
	err error
}

func (c *checkedSum) add(a, b valueobject.Money) valueobject.Money {
	if c.err != nil {
		return a
	}
	out, err := a.Add(b)
	if err != nil {
		c.err = err
		return a
	}
	return out
}

// Checksum hashes the ledger in a canonical order so two reads of an
// unchanged ledger always agree.
func Checksum(h *LedgerHistory) string {
	hash, _ := blake2b.New256(nil)
	write := func(format string, args ...any) {
		_, _ = fmt.Fprintf(hash, format, args...)
		_, _ = hash.Write([]byte{'\n'})
	}

	invoices := append([]*Invoice(nil), h.Invoices...)
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].Sequence < invoices[j].Sequence })
	for _, inv := range invoices {
		write("I|%s|%s|%s|%d", inv.ID, inv.BillingPeriod, inv.Status, inv.Sequence)
		for _, l := range inv.Lines {
			write("L|%s|%s|%d|%d|%d", l.ID, l.Kind, l.Net.Minor(), l.AmountPaid.Minor(), l.AmountCarried.Minor())
		}
	}

	payments := append([]*Payment(nil), h.Payments...)
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].RecordedAt.Equal(payments[j].RecordedAt) {
			return payments[i].RecordedAt.Before(payments[j].RecordedAt)
		}
		return payments[i].ID.String() < payments[j].ID.String()
	})
	for _, p := range payments {
		write("P|%s|%d|%s", p.ID, p.Amount.Minor(), p.Method)
		for _, a := range p.Allocations {
			write("A|%s|%s|%d", a.ID, a.TargetType, a.Amount.Minor())
		}
	}

	entries := append([]*CarryForwardEntry(nil), h.CarryForwards...)
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	for _, e := range entries {
		write("C|%s|%s|%d", e.ID, e.ToPeriod, e.Amount.Minor())
	}

	adjustments := append([]*Adjustment(nil), h.Adjustments...)
	sort.Slice(adjustments, func(i, j int) bool {
		if !adjustments[i].CreatedAt.Equal(adjustments[j].CreatedAt) {
			return adjustments[i].CreatedAt.Before(adjustments[j].CreatedAt)
		}
		return adjustments[i].ID.String() < adjustments[j].ID.String()
	})
	for _, a := range adjustments {
		write("J|%s|%s|%d", a.ID, a.Kind, a.Amount.Minor())
	}

	return hex.EncodeToString(hash.Sum(nil))
}
