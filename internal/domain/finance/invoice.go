package finance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "OPEN"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
)

// IsValid checks if the status is a valid value
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusOpen, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusVoid:
		return true
	}
	return false
}

// String returns the string representation
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no payment can change the status
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// LineKind is what produced an invoice line
type LineKind string

const (
	LineKindFee          LineKind = "FEE"
	LineKindFine         LineKind = "FINE"
	LineKindCarryForward LineKind = "CARRY_FORWARD"
)

// InvoiceLine is one chargeable component of an invoice.
// Debit lines keep 0 <= AmountPaid <= Net; credit lines (negative Net) keep
// Net <= AmountPaid <= 0, where AmountPaid records how much of the credit has
// been consumed by the invoice's other lines.
type InvoiceLine struct {
	ID              uuid.UUID
	InvoiceID       uuid.UUID
	Position        int
	Kind            LineKind
	FeeItemID       *uuid.UUID
	FeeItemRevision int
	ItemKey         string
	CarryForwardID  *uuid.UUID
	DiscountRuleID  *uuid.UUID
	Description     string
	Gross           valueobject.Money
	Discount        valueobject.Money
	Net             valueobject.Money
	AmountPaid      valueobject.Money
	AmountCarried   valueobject.Money // moved to a carry-forward entry at period close
	CreatedAt       time.Time
}

// IsCredit returns true for a negative (credit) line
func (l *InvoiceLine) IsCredit() bool {
	return l.Net.IsNegative()
}

// Remaining returns what is left on the line after payments and carry-forward.
// Positive means owed, negative means unconsumed credit.
func (l *InvoiceLine) Remaining() valueobject.Money {
	return l.Net.MustSubtract(l.AmountPaid).MustSubtract(l.AmountCarried)
}

// Due returns the positive part of Remaining
func (l *InvoiceLine) Due() valueobject.Money {
	return l.Remaining().Max(valueobject.Zero(l.Net.Currency()))
}

// IsSettled returns true if payments (or consumed credit) cover the whole line
func (l *InvoiceLine) IsSettled() bool {
	if l.IsCredit() {
		return true
	}
	return l.AmountPaid.Minor() >= l.Net.Minor()
}

// Invoice is a student's obligation for one billing period
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string
	StudentID     uuid.UUID
	BillingPeriod string
	Sequence      int64 // per-student creation order
	Currency      valueobject.Currency
	Status        InvoiceStatus
	Lines         []InvoiceLine
	DueDate       time.Time
	CreatedBy     string
	ReconciledAt  *time.Time
	VoidedAt      *time.Time
	VoidReason    string
}

// NewInvoice creates an empty invoice. Lines are added before the invoice is stored.
func NewInvoice(studentID uuid.UUID, period string, sequence int64, currency valueobject.Currency, dueDate, now time.Time, createdBy string) (*Invoice, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STUDENT", "Student ID cannot be empty")
	}
	if strings.TrimSpace(period) == "" {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Billing period cannot be empty")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if dueDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_DUE_DATE", "Due date is required")
	}
	if sequence <= 0 {
		return nil, shared.NewDomainError("INVALID_SEQUENCE", "Invoice sequence must be positive")
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(now),
		StudentID:         studentID,
		BillingPeriod:     period,
		Sequence:          sequence,
		Currency:          currency,
		Status:            InvoiceStatusOpen,
		DueDate:           dueDate,
		CreatedBy:         createdBy,
	}
	inv.InvoiceNumber = fmt.Sprintf("INV-%s-%s-%03d", period, strings.ToUpper(studentID.String()[:8]), sequence)
	return inv, nil
}

func (inv *Invoice) checkCurrency(m valueobject.Money) error {
	if m.Currency() != inv.Currency {
		return shared.NewDomainError("CURRENCY_MISMATCH",
			fmt.Sprintf("amount in %s does not match invoice currency %s", m.Currency(), inv.Currency))
	}
	return nil
}

func (inv *Invoice) newLine(kind LineKind, description string, gross, discount valueobject.Money, at time.Time) InvoiceLine {
	zero := valueobject.Zero(inv.Currency)
	return InvoiceLine{
		ID:            uuid.New(),
		InvoiceID:     inv.ID,
		Position:      len(inv.Lines) + 1,
		Kind:          kind,
		Description:   description,
		Gross:         gross,
		Discount:      discount,
		Net:           gross.MustSubtract(discount),
		AmountPaid:    zero,
		AmountCarried: zero,
		CreatedAt:     at,
	}
}

// FeeLine describes a catalog charge to add to an invoice
type FeeLine struct {
	FeeItemID      uuid.UUID
	Revision       int
	ItemKey        string
	Description    string
	Gross          valueobject.Money
	Discount       valueobject.Money
	DiscountRuleID *uuid.UUID
}

// AddFeeLine appends a catalog charge. 0 <= discount <= gross is enforced.
func (inv *Invoice) AddFeeLine(fl FeeLine) (*InvoiceLine, error) {
	if err := inv.ensureOpenForLines(); err != nil {
		return nil, err
	}
	if err := inv.checkCurrency(fl.Gross); err != nil {
		return nil, err
	}
	if err := inv.checkCurrency(fl.Discount); err != nil {
		return nil, err
	}
	if !fl.Gross.IsPositive() {
		return nil, shared.NewDomainError("INVALID_GROSS", "Fee line gross amount must be positive")
	}
	if fl.Discount.IsNegative() || fl.Discount.Minor() > fl.Gross.Minor() {
		return nil, shared.NewDomainError("INVALID_DISCOUNT", "Discount must be between zero and the gross amount")
	}
	line := inv.newLine(LineKindFee, fl.Description, fl.Gross, fl.Discount, inv.CreatedAt)
	id := fl.FeeItemID
	line.FeeItemID = &id
	line.FeeItemRevision = fl.Revision
	line.ItemKey = fl.ItemKey
	line.DiscountRuleID = fl.DiscountRuleID
	inv.Lines = append(inv.Lines, line)
	return &inv.Lines[len(inv.Lines)-1], nil
}

// AddCarryForwardLine materializes a pending carry-forward entry. prepaid is
// what was already paid against the entry before it reached an invoice.
func (inv *Invoice) AddCarryForwardLine(entry *CarryForwardEntry, prepaid valueobject.Money) (*InvoiceLine, error) {
	if err := inv.ensureOpenForLines(); err != nil {
		return nil, err
	}
	if err := inv.checkCurrency(entry.Amount); err != nil {
		return nil, err
	}
	if entry.Amount.IsZero() {
		return nil, shared.NewDomainError("INVALID_CARRY_FORWARD", "Carry-forward amount cannot be zero")
	}
	if prepaid.IsNegative() || (prepaid.IsPositive() && prepaid.Minor() > entry.Amount.Minor()) {
		return nil, shared.NewDomainError("INVALID_CARRY_FORWARD", "Prepaid amount exceeds the carried debt")
	}
	desc := fmt.Sprintf("Balance brought forward from %s", entry.FromPeriod)
	if entry.IsCredit() {
		desc = fmt.Sprintf("Credit brought forward from %s", entry.FromPeriod)
	}
	line := inv.newLine(LineKindCarryForward, desc, entry.Amount, valueobject.Zero(inv.Currency), inv.CreatedAt)
	id := entry.ID
	line.CarryForwardID = &id
	if prepaid.IsPositive() {
		line.AmountPaid = prepaid
	}
	inv.Lines = append(inv.Lines, line)
	return &inv.Lines[len(inv.Lines)-1], nil
}

// AddFineLine appends a late fine dated at the close instant
func (inv *Invoice) AddFineLine(amount valueobject.Money, description string, at time.Time) (*InvoiceLine, error) {
	if inv.Status == InvoiceStatusVoid {
		return nil, shared.NewDomainError("INVOICE_VOID", "Cannot add a fine to a void invoice")
	}
	if err := inv.checkCurrency(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_FINE", "Fine amount must be positive")
	}
	line := inv.newLine(LineKindFine, description, amount, valueobject.Zero(inv.Currency), at)
	inv.Lines = append(inv.Lines, line)
	inv.touch(at)
	return &inv.Lines[len(inv.Lines)-1], nil
}

func (inv *Invoice) ensureOpenForLines() error {
	if inv.Status == InvoiceStatusVoid {
		return shared.NewDomainError("INVOICE_VOID", "Cannot add lines to a void invoice")
	}
	if inv.ReconciledAt != nil {
		return shared.NewDomainError("INVOICE_RECONCILED", "Cannot add charges to a reconciled invoice")
	}
	return nil
}

// Line returns the line with the given id
func (inv *Invoice) Line(lineID uuid.UUID) (*InvoiceLine, error) {
	for i := range inv.Lines {
		if inv.Lines[i].ID == lineID {
			return &inv.Lines[i], nil
		}
	}
	return nil, shared.NewNotFoundError("invoice line", lineID.String())
}

// LineForCarryForward returns the line that materialized a carry-forward entry, if any
func (inv *Invoice) LineForCarryForward(entryID uuid.UUID) *InvoiceLine {
	for i := range inv.Lines {
		if l := &inv.Lines[i]; l.CarryForwardID != nil && *l.CarryForwardID == entryID {
			return l
		}
	}
	return nil
}

// OrderedLines returns the lines in payment order: fee lines, then fines, then
// carry-forward lines. With carryForwardFirst the carry-forward lines lead.
func (inv *Invoice) OrderedLines(carryForwardFirst bool) []*InvoiceLine {
	out := make([]*InvoiceLine, len(inv.Lines))
	for i := range inv.Lines {
		out[i] = &inv.Lines[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := lineRank(out[i].Kind, carryForwardFirst), lineRank(out[j].Kind, carryForwardFirst)
		if ri != rj {
			return ri < rj
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func lineRank(kind LineKind, carryForwardFirst bool) int {
	switch kind {
	case LineKindCarryForward:
		if carryForwardFirst {
			return 0
		}
		return 3
	case LineKindFine:
		return 2
	default:
		return 1
	}
}

// ApplyPayment records part of a payment against a debit line
func (inv *Invoice) ApplyPayment(lineID uuid.UUID, amount valueobject.Money, now time.Time) error {
	if inv.Status == InvoiceStatusVoid {
		return shared.NewDomainError("INVOICE_VOID", "Cannot pay a void invoice")
	}
	if err := inv.checkCurrency(amount); err != nil {
		return err
	}
	line, err := inv.Line(lineID)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Applied amount must be positive")
	}
	if amount.Minor() > line.Due().Minor() {
		return shared.NewDomainError("OVER_ALLOCATION",
			fmt.Sprintf("cannot apply %s to line %d with %s due", amount.Major(), line.Position, line.Due().Major()))
	}
	line.AmountPaid = line.AmountPaid.MustAdd(amount)
	inv.Refresh(now)
	return nil
}

// RevertPayment takes a previously applied amount back off a debit line
func (inv *Invoice) RevertPayment(lineID uuid.UUID, amount valueobject.Money, now time.Time) error {
	if err := inv.checkCurrency(amount); err != nil {
		return err
	}
	line, err := inv.Line(lineID)
	if err != nil {
		return err
	}
	if !amount.IsPositive() || amount.Minor() > line.AmountPaid.Minor() {
		return shared.NewDomainError("INVALID_REVERSAL", "Reversed amount exceeds what was paid on the line")
	}
	line.AmountPaid = line.AmountPaid.MustSubtract(amount)
	inv.Refresh(now)
	return nil
}

// CreditTransfer records credit moved from a credit line onto a debit line
type CreditTransfer struct {
	FromLineID uuid.UUID
	ToLineID   uuid.UUID
	Amount     valueobject.Money
}

// ApplyCredits consumes credit lines against the invoice's debit lines in payment order
func (inv *Invoice) ApplyCredits(carryForwardFirst bool, now time.Time) []CreditTransfer {
	var transfers []CreditTransfer
	ordered := inv.OrderedLines(carryForwardFirst)
	for _, credit := range ordered {
		if !credit.IsCredit() {
			continue
		}
		for _, debit := range ordered {
			available := credit.Remaining().Negate()
			if !available.IsPositive() {
				break
			}
			if debit.IsCredit() || !debit.Due().IsPositive() {
				continue
			}
			take := available.Min(debit.Due())
			debit.AmountPaid = debit.AmountPaid.MustAdd(take)
			credit.AmountPaid = credit.AmountPaid.MustSubtract(take)
			transfers = append(transfers, CreditTransfer{FromLineID: credit.ID, ToLineID: debit.ID, Amount: take})
		}
	}
	if len(transfers) > 0 {
		inv.Refresh(now)
	}
	return transfers
}

// CarryForwardRemainder moves every line's remainder out of the invoice and
// returns the total moved (positive debt or negative credit).
func (inv *Invoice) CarryForwardRemainder(now time.Time) valueobject.Money {
	total := valueobject.Zero(inv.Currency)
	for i := range inv.Lines {
		l := &inv.Lines[i]
		r := l.Remaining()
		if r.IsZero() {
			continue
		}
		l.AmountCarried = l.AmountCarried.MustAdd(r)
		total = total.MustAdd(r)
	}
	inv.touch(now)
	return total
}

// MarkReconciled stamps the invoice as processed by a period close
func (inv *Invoice) MarkReconciled(now time.Time) {
	t := now
	inv.ReconciledAt = &t
	inv.Refresh(now)
}

// IsReconciled returns true if a period close has processed the invoice
func (inv *Invoice) IsReconciled() bool {
	return inv.ReconciledAt != nil
}

// Void cancels the invoice. It returns the amount a compensating
// carry-forward entry must hold so that money paid into the invoice, and
// balances brought into it, survive the void.
func (inv *Invoice) Void(reason string, now time.Time) (valueobject.Money, error) {
	if inv.Status == InvoiceStatusVoid {
		return valueobject.Money{}, shared.NewDomainError("INVOICE_ALREADY_VOID", "Invoice is already void")
	}
	if inv.ReconciledAt != nil {
		return valueobject.Money{}, shared.NewDomainError("INVOICE_RECONCILED", "A reconciled invoice cannot be voided")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return valueobject.Money{}, shared.NewDomainError("INVALID_REASON", "A void reason is required")
	}
	compensation := valueobject.Zero(inv.Currency)
	for _, l := range inv.Lines {
		if l.Kind == LineKindCarryForward {
			compensation = compensation.MustAdd(l.Net)
		}
		compensation = compensation.MustSubtract(l.AmountPaid)
	}
	t := now
	inv.VoidedAt = &t
	inv.VoidReason = reason
	inv.Refresh(now)
	inv.AddDomainEvent(NewInvoiceVoidedEvent(inv, compensation))
	return compensation, nil
}

// DeriveStatus computes the status from line states and the due date
func (inv *Invoice) DeriveStatus(now time.Time) InvoiceStatus {
	if inv.VoidedAt != nil {
		return InvoiceStatusVoid
	}
	settled := true
	anyPaid := false
	for i := range inv.Lines {
		l := &inv.Lines[i]
		if l.IsCredit() {
			continue
		}
		if !l.IsSettled() {
			settled = false
		}
		if l.AmountPaid.IsPositive() {
			anyPaid = true
		}
	}
	switch {
	case settled:
		return InvoiceStatusPaid
	case now.After(inv.DueDate):
		return InvoiceStatusOverdue
	case anyPaid:
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusOpen
	}
}

// Refresh recomputes the stored status
func (inv *Invoice) Refresh(now time.Time) {
	inv.Status = inv.DeriveStatus(now)
	inv.touch(now)
}

func (inv *Invoice) touch(now time.Time) {
	inv.UpdatedAt = now
}

// TotalGross sums line gross amounts
func (inv *Invoice) TotalGross() valueobject.Money {
	return inv.sum(func(l *InvoiceLine) valueobject.Money { return l.Gross })
}

// TotalDiscount sums line discounts
func (inv *Invoice) TotalDiscount() valueobject.Money {
	return inv.sum(func(l *InvoiceLine) valueobject.Money { return l.Discount })
}

// TotalNet sums line net amounts, credits included
func (inv *Invoice) TotalNet() valueobject.Money {
	return inv.sum(func(l *InvoiceLine) valueobject.Money { return l.Net })
}

// TotalPaid sums line payments, consumed credit included
func (inv *Invoice) TotalPaid() valueobject.Money {
	return inv.sum(func(l *InvoiceLine) valueobject.Money { return l.AmountPaid })
}

// ChargedAmount sums the net of fee and fine lines, the invoice's own charges
func (inv *Invoice) ChargedAmount() valueobject.Money {
	return inv.sum(func(l *InvoiceLine) valueobject.Money {
		if l.Kind == LineKindCarryForward {
			return valueobject.Zero(inv.Currency)
		}
		return l.Net
	})
}

// Outstanding sums what is still owed on the invoice
func (inv *Invoice) Outstanding() valueobject.Money {
	if inv.Status == InvoiceStatusVoid {
		return valueobject.Zero(inv.Currency)
	}
	return inv.sum(func(l *InvoiceLine) valueobject.Money { return l.Due() })
}

// UnusedCredit sums credit on the invoice not yet consumed
func (inv *Invoice) UnusedCredit() valueobject.Money {
	if inv.Status == InvoiceStatusVoid {
		return valueobject.Zero(inv.Currency)
	}
	return inv.sum(func(l *InvoiceLine) valueobject.Money {
		r := l.Remaining()
		if r.IsNegative() {
			return r.Negate()
		}
		return valueobject.Zero(inv.Currency)
	})
}

// IsOpen returns true if the invoice still has something to pay
func (inv *Invoice) IsOpen() bool {
	return inv.Status != InvoiceStatusVoid && inv.Outstanding().IsPositive()
}

func (inv *Invoice) sum(f func(l *InvoiceLine) valueobject.Money) valueobject.Money {
	total := valueobject.Zero(inv.Currency)
	for i := range inv.Lines {
		total = total.MustAdd(f(&inv.Lines[i]))
	}
	return total
}
