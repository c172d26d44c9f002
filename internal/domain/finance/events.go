package finance

import (
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Aggregate type names used in events
const (
	AggregateTypeInvoice     = "Invoice"
	AggregateTypePayment     = "Payment"
	AggregateTypePeriodClose = "PeriodClose"
)

// Event type names
const (
	EventTypeInvoiceGenerated = "InvoiceGenerated"
	EventTypeInvoiceVoided    = "InvoiceVoided"
	EventTypePaymentCollected = "PaymentCollected"
	EventTypePaymentReversed  = "PaymentReversed"
	EventTypePeriodClosed     = "PeriodClosed"
)

// InvoiceGeneratedEvent is raised when an invoice is created
type InvoiceGeneratedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string            `json:"invoice_number"`
	StudentID     uuid.UUID         `json:"student_id"`
	BillingPeriod string            `json:"billing_period"`
	TotalNet      valueobject.Money `json:"total_net"`
	LineCount     int               `json:"line_count"`
}

// NewInvoiceGeneratedEvent creates the event
func NewInvoiceGeneratedEvent(inv *Invoice) *InvoiceGeneratedEvent {
	return &InvoiceGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceGenerated, AggregateTypeInvoice, inv.ID, inv.CreatedAt),
		InvoiceNumber:   inv.InvoiceNumber,
		StudentID:       inv.StudentID,
		BillingPeriod:   inv.BillingPeriod,
		TotalNet:        inv.TotalNet(),
		LineCount:       len(inv.Lines),
	}
}

// InvoiceVoidedEvent is raised when an invoice is voided
type InvoiceVoidedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string            `json:"invoice_number"`
	StudentID     uuid.UUID         `json:"student_id"`
	Reason        string            `json:"reason"`
	Compensation  valueobject.Money `json:"compensation"`
}

// NewInvoiceVoidedEvent creates the event
func NewInvoiceVoidedEvent(inv *Invoice, compensation valueobject.Money) *InvoiceVoidedEvent {
	return &InvoiceVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceVoided, AggregateTypeInvoice, inv.ID, inv.UpdatedAt),
		InvoiceNumber:   inv.InvoiceNumber,
		StudentID:       inv.StudentID,
		Reason:          inv.VoidReason,
		Compensation:    compensation,
	}
}

// PaymentCollectedEvent is raised when a payment is recorded
type PaymentCollectedEvent struct {
	shared.BaseDomainEvent
	StudentID   uuid.UUID         `json:"student_id"`
	Method      PaymentMethod     `json:"method"`
	Amount      valueobject.Money `json:"amount"`
	Allocations int               `json:"allocations"`
	CreditCarry valueobject.Money `json:"credit_carry"`
}

// NewPaymentCollectedEvent creates the event
func NewPaymentCollectedEvent(p *Payment, creditCarry valueobject.Money) *PaymentCollectedEvent {
	return &PaymentCollectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCollected, AggregateTypePayment, p.ID, p.RecordedAt),
		StudentID:       p.StudentID,
		Method:          p.Method,
		Amount:          p.Amount,
		Allocations:     len(p.Allocations),
		CreditCarry:     creditCarry,
	}
}

// PaymentReversedEvent is raised when a payment is reversed
type PaymentReversedEvent struct {
	shared.BaseDomainEvent
	StudentID uuid.UUID         `json:"student_id"`
	Amount    valueobject.Money `json:"amount"`
	Reason    string            `json:"reason"`
}

// NewPaymentReversedEvent creates the event
func NewPaymentReversedEvent(p *Payment, reason string, at time.Time) *PaymentReversedEvent {
	return &PaymentReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentReversed, AggregateTypePayment, p.ID, at),
		StudentID:       p.StudentID,
		Amount:          p.Amount,
		Reason:          reason,
	}
}

// PeriodClosedEvent is raised after a period close completes
type PeriodClosedEvent struct {
	shared.BaseDomainEvent
	Period             string            `json:"period"`
	Forced             bool              `json:"forced"`
	InvoicesReconciled int               `json:"invoices_reconciled"`
	FinesTotal         valueobject.Money `json:"fines_total"`
	CarriedDebt        valueobject.Money `json:"carried_debt"`
	CarriedCredit      valueobject.Money `json:"carried_credit"`
}

// NewPeriodClosedEvent creates the event
func NewPeriodClosedEvent(pc *PeriodClose) *PeriodClosedEvent {
	return &PeriodClosedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypePeriodClosed, AggregateTypePeriodClose, pc.ID, pc.ClosedAt),
		Period:             pc.BillingPeriod,
		Forced:             pc.Forced,
		InvoicesReconciled: pc.InvoicesReconciled,
		FinesTotal:         pc.FinesApplied,
		CarriedDebt:        pc.CarriedDebt,
		CarriedCredit:      pc.CarriedCredit,
	}
}
