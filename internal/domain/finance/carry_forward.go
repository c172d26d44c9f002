package finance

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// CarryForwardSource is what created a carry-forward entry
type CarryForwardSource string

const (
	CarryForwardSourcePeriodClose CarryForwardSource = "PERIOD_CLOSE"
	CarryForwardSourceOverpayment CarryForwardSource = "OVERPAYMENT"
	CarryForwardSourceVoid        CarryForwardSource = "VOID"
	CarryForwardSourceReversal    CarryForwardSource = "REVERSAL"
)

// CarryForwardEntry moves a balance between billing periods. Positive amounts
// are debt, negative amounts are credit. Entries are never updated; an entry
// stays pending until an invoice line materializes it.
type CarryForwardEntry struct {
	ID              uuid.UUID
	StudentID       uuid.UUID
	FromPeriod      string
	ToPeriod        string
	Amount          valueobject.Money
	Source          CarryForwardSource
	SourceInvoiceID *uuid.UUID
	SourcePaymentID *uuid.UUID
	DueDate         time.Time // orders pending debt among payable obligations
	CreatedAt       time.Time
}

// NewCarryForwardEntry creates an entry
func NewCarryForwardEntry(studentID uuid.UUID, from, to string, amount valueobject.Money, source CarryForwardSource, dueDate, now time.Time) (*CarryForwardEntry, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STUDENT", "Student ID cannot be empty")
	}
	if amount.IsZero() {
		return nil, shared.NewDomainError("INVALID_CARRY_FORWARD", "Carry-forward amount cannot be zero")
	}
	if to == "" {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Target period is required")
	}
	if dueDate.IsZero() {
		dueDate = now
	}
	return &CarryForwardEntry{
		ID:         uuid.New(),
		StudentID:  studentID,
		FromPeriod: from,
		ToPeriod:   to,
		Amount:     amount,
		Source:     source,
		DueDate:    dueDate,
		CreatedAt:  now,
	}, nil
}

// IsCredit returns true for a credit entry
func (e *CarryForwardEntry) IsCredit() bool {
	return e.Amount.IsNegative()
}

// WithSourceInvoice links the entry to the invoice it came from
func (e *CarryForwardEntry) WithSourceInvoice(id uuid.UUID) *CarryForwardEntry {
	e.SourceInvoiceID = &id
	return e
}

// WithSourcePayment links the entry to the payment it came from
func (e *CarryForwardEntry) WithSourcePayment(id uuid.UUID) *CarryForwardEntry {
	e.SourcePaymentID = &id
	return e
}

// PendingCarryForward is an entry no invoice has picked up yet, with what has
// already been paid against it.
type PendingCarryForward struct {
	Entry   *CarryForwardEntry
	Settled valueobject.Money
}

// Remaining returns the part of the entry still open
func (p PendingCarryForward) Remaining() valueobject.Money {
	if p.Entry.IsCredit() {
		return p.Entry.Amount
	}
	return p.Entry.Amount.MustSubtract(p.Settled)
}
