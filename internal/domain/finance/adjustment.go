package finance

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AdjustmentKind classifies a ledger adjustment
type AdjustmentKind string

const (
	AdjustmentFine            AdjustmentKind = "FINE"
	AdjustmentCreditApplied   AdjustmentKind = "CREDIT_APPLIED"
	AdjustmentVoid            AdjustmentKind = "VOID"
	AdjustmentPaymentReversal AdjustmentKind = "PAYMENT_REVERSAL"
	AdjustmentCarryForward    AdjustmentKind = "CARRY_FORWARD"
)

// Adjustment is an append-only audit record of a ledger correction
type Adjustment struct {
	ID             uuid.UUID
	StudentID      uuid.UUID
	Kind           AdjustmentKind
	InvoiceID      *uuid.UUID
	InvoiceLineID  *uuid.UUID
	PaymentID      *uuid.UUID
	CarryForwardID *uuid.UUID
	Amount         valueobject.Money
	Reason         string
	Actor          string
	CreatedAt      time.Time
}

// NewAdjustment creates an adjustment record
func NewAdjustment(studentID uuid.UUID, kind AdjustmentKind, amount valueobject.Money, reason, actor string, at time.Time) *Adjustment {
	return &Adjustment{
		ID:        uuid.New(),
		StudentID: studentID,
		Kind:      kind,
		Amount:    amount,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: at,
	}
}

// ForInvoice links the adjustment to an invoice and optionally a line
func (a *Adjustment) ForInvoice(invoiceID uuid.UUID, lineID *uuid.UUID) *Adjustment {
	a.InvoiceID = &invoiceID
	a.InvoiceLineID = lineID
	return a
}

// ForPayment links the adjustment to a payment
func (a *Adjustment) ForPayment(paymentID uuid.UUID) *Adjustment {
	a.PaymentID = &paymentID
	return a
}

// ForCarryForward links the adjustment to a carry-forward entry
func (a *Adjustment) ForCarryForward(entryID uuid.UUID) *Adjustment {
	a.CarryForwardID = &entryID
	return a
}
