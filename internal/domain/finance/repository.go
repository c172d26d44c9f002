package finance

import (
	"context"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	StudentID     *uuid.UUID
	BillingPeriod string
	Statuses      []InvoiceStatus
}

// LedgerStore is the append-only store of invoices, payments, carry-forwards
// and adjustments. Payments, allocations, carry-forwards and adjustments are
// insert-only; invoices change only through UpdateInvoice under optimistic locking.
type LedgerStore interface {
	// WithinTransaction runs fn against a store bound to one transaction.
	// Nothing fn writes is visible unless it returns nil.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx LedgerStore) error) error

	FindInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindActiveInvoice returns the non-void invoice of the student for the period
	FindActiveInvoice(ctx context.Context, studentID uuid.UUID, period string) (*Invoice, error)

	FindInvoices(ctx context.Context, filter InvoiceFilter) ([]*Invoice, int64, error)

	// NextInvoiceSequence returns the next per-student invoice sequence number
	NextInvoiceSequence(ctx context.Context, studentID uuid.UUID) (int64, error)

	// StudentsWithInvoices lists students holding non-void invoices for the period
	StudentsWithInvoices(ctx context.Context, period string) ([]uuid.UUID, error)

	FindPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindPaymentByReference(ctx context.Context, reference string) (*Payment, error)

	// LoadHistory reads the student's complete ledger
	LoadHistory(ctx context.Context, studentID uuid.UUID) (*LedgerHistory, error)

	CreateInvoice(ctx context.Context, inv *Invoice) error
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	CreatePayment(ctx context.Context, p *Payment) error
	CreateCarryForward(ctx context.Context, e *CarryForwardEntry) error
	CreateAdjustment(ctx context.Context, a *Adjustment) error

	// FindPeriodClose returns the latest close record for the period
	FindPeriodClose(ctx context.Context, period string) (*PeriodClose, error)
	FindPeriodCloses(ctx context.Context, filter shared.Filter) ([]*PeriodClose, int64, error)
	SavePeriodClose(ctx context.Context, pc *PeriodClose) error

	// AppendEvents records domain events with the current transaction
	AppendEvents(ctx context.Context, events ...shared.DomainEvent) error
}
