package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// PaymentMethod is how the money was received
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodBank   PaymentMethod = "BANK"
	PaymentMethodCheque PaymentMethod = "CHEQUE"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

// IsValid checks if the method is a valid value
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBank, PaymentMethodCheque, PaymentMethodOnline:
		return true
	}
	return false
}

// String returns the string representation
func (m PaymentMethod) String() string {
	return string(m)
}

// RequiresReference returns true if the method must carry an external reference
func (m PaymentMethod) RequiresReference() bool {
	return m != PaymentMethodCash
}

// ParsePaymentMethod parses a method name case-insensitively
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", shared.NewDomainError("INVALID_PAYMENT_METHOD", fmt.Sprintf("unknown payment method %q", s))
	}
	return m, nil
}

// AllocationTargetType is what an allocation settles
type AllocationTargetType string

const (
	AllocationTargetInvoiceLine  AllocationTargetType = "INVOICE_LINE"
	AllocationTargetCarryForward AllocationTargetType = "CARRY_FORWARD"
)

// Allocation binds part of a payment to one obligation
type Allocation struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	Sequence       int
	TargetType     AllocationTargetType
	InvoiceID      *uuid.UUID
	InvoiceLineID  *uuid.UUID
	CarryForwardID *uuid.UUID
	Amount         valueobject.Money
}

// MaxExternalReferenceLength bounds an external reference. The HTTP bindings
// and the payments.external_reference column use the same bound.
const MaxExternalReferenceLength = 128

// Payment is an immutable receipt of money from a student
type Payment struct {
	shared.BaseAggregateRoot
	StudentID         uuid.UUID
	Method            PaymentMethod
	Amount            valueobject.Money
	ExternalReference *string
	RecordedAt        time.Time
	RecordedBy        string
	Note              string
	Allocations       []Allocation
}

// NewPayment validates and creates a payment without allocations
func NewPayment(studentID uuid.UUID, amount valueobject.Money, method PaymentMethod, externalRef, recordedBy, note string, at time.Time) (*Payment, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STUDENT", "Student ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !amount.WithinTransactionLimit() {
		return nil, shared.NewDomainError("AMOUNT_TOO_LARGE", "Payment amount exceeds the single transaction limit")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", fmt.Sprintf("unknown payment method %q", method))
	}
	externalRef = strings.TrimSpace(externalRef)
	if method.RequiresReference() && externalRef == "" {
		return nil, shared.NewDomainError("REFERENCE_REQUIRED",
			fmt.Sprintf("%s payments require an external reference", method))
	}
	if len(externalRef) > MaxExternalReferenceLength {
		return nil, shared.NewDomainError("INVALID_REFERENCE",
			fmt.Sprintf("External reference cannot exceed %d characters", MaxExternalReferenceLength))
	}

	p := &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(at),
		StudentID:         studentID,
		Method:            method,
		Amount:            amount,
		RecordedAt:        at,
		RecordedBy:        recordedBy,
		Note:              strings.TrimSpace(note),
	}
	if externalRef != "" {
		p.ExternalReference = &externalRef
	}
	return p, nil
}

// Reference returns the external reference or an empty string
func (p *Payment) Reference() string {
	if p.ExternalReference == nil {
		return ""
	}
	return *p.ExternalReference
}

// AllocateToLine adds an allocation against an invoice line
func (p *Payment) AllocateToLine(invoiceID, lineID uuid.UUID, amount valueobject.Money) {
	inv, line := invoiceID, lineID
	p.addAllocation(Allocation{
		TargetType:    AllocationTargetInvoiceLine,
		InvoiceID:     &inv,
		InvoiceLineID: &line,
		Amount:        amount,
	})
}

// AllocateToCarryForward adds an allocation against a carry-forward entry
func (p *Payment) AllocateToCarryForward(entryID uuid.UUID, amount valueobject.Money) {
	id := entryID
	p.addAllocation(Allocation{
		TargetType:     AllocationTargetCarryForward,
		CarryForwardID: &id,
		Amount:         amount,
	})
}

func (p *Payment) addAllocation(a Allocation) {
	a.ID = uuid.New()
	a.PaymentID = p.ID
	a.Sequence = len(p.Allocations) + 1
	p.Allocations = append(p.Allocations, a)
}

// Allocated sums the payment's allocations
func (p *Payment) Allocated() valueobject.Money {
	total := valueobject.Zero(p.Amount.Currency())
	for _, a := range p.Allocations {
		total = total.MustAdd(a.Amount)
	}
	return total
}

// CheckBalanced verifies the allocations add up to exactly the payment amount
func (p *Payment) CheckBalanced() error {
	for _, a := range p.Allocations {
		if !a.Amount.IsPositive() {
			return shared.NewDomainError("INVALID_ALLOCATION", "Allocation amounts must be positive")
		}
	}
	if allocated := p.Allocated(); !allocated.Equals(p.Amount) {
		return shared.NewDomainError("UNBALANCED_ALLOCATION",
			fmt.Sprintf("allocations total %s but payment is %s", allocated.Major(), p.Amount.Major()))
	}
	return nil
}

// SameAs reports whether another collection request describes this payment
func (p *Payment) SameAs(studentID uuid.UUID, amount valueobject.Money, method PaymentMethod) bool {
	return p.StudentID == studentID && p.Amount.Equals(amount) && p.Method == method
}
