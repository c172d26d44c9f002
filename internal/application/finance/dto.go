package finance

import (
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// GenerateInvoiceRequest asks for a student's invoice for one period
type GenerateInvoiceRequest struct {
	StudentID uuid.UUID
	Period    string
	Actor     string
}

// InvoiceResult is a generated invoice
type InvoiceResult struct {
	Invoice *finance.Invoice
	// CreditApplied is set when credit brought forward was consumed on generation
	CreditApplied bool
}

// VoidInvoiceRequest asks to cancel an invoice
type VoidInvoiceRequest struct {
	InvoiceID uuid.UUID
	Reason    string
	Actor     string
}

// ListInvoicesRequest filters a student's invoices
type ListInvoicesRequest struct {
	shared.Filter
	StudentID uuid.UUID
	Period    string
}

// CollectPaymentRequest records money received from a student
type CollectPaymentRequest struct {
	StudentID         uuid.UUID
	Amount            valueobject.Money
	Method            finance.PaymentMethod
	ExternalReference string
	Note              string
	Actor             string
}

// OnlinePaymentRequest is a payment confirmation pushed by the online gateway
type OnlinePaymentRequest struct {
	StudentID uuid.UUID
	Amount    valueobject.Money
	Reference string
	Note      string
}

// CollectionOutcome is a recorded payment and the balance it left
type CollectionOutcome struct {
	Payment *finance.Payment
	// Credit is the carry-forward created from an overpayment
	Credit  *finance.CarryForwardEntry
	Balance *finance.LedgerBalance
	// Replayed is set when the reference had already been collected and
	// the original payment is returned instead of a new one
	Replayed bool
}

// ReversePaymentRequest asks to undo a payment
type ReversePaymentRequest struct {
	PaymentID uuid.UUID
	Reason    string
	Actor     string
}

// PaymentView is a payment with its derived reversal state
type PaymentView struct {
	Payment  *finance.Payment
	Reversed bool
}

// CarryForwardView is a carry-forward entry with what is still pending on it
type CarryForwardView struct {
	Entry   *finance.CarryForwardEntry
	Pending bool
	Settled valueobject.Money
}

// Statement is a student's complete ledger with its folded balance
type Statement struct {
	Balance       *finance.LedgerBalance
	Invoices      []*finance.Invoice
	Payments      []PaymentView
	CarryForwards []CarryForwardView
	Adjustments   []*finance.Adjustment
}

// ArchivedReport is a download link for an archived close report
type ArchivedReport struct {
	Period    string
	Location  string
	URL       string
	ExpiresAt time.Time
}
