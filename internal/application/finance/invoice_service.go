package finance

import (
	"context"
	"time"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService generates, voids and reads invoices
type InvoiceService struct {
	store   finance.LedgerStore
	catalog FeeCatalog
	policy  Policy
	leases  leaser
	logger  *zap.Logger
	now     func() time.Time
}

// InvoiceServiceOption configures an InvoiceService
type InvoiceServiceOption func(*InvoiceService)

// WithInvoiceLogger sets the logger
func WithInvoiceLogger(logger *zap.Logger) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInvoiceMetrics sets the metrics recorder
func WithInvoiceMetrics(m Metrics) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if m != nil {
			s.leases.metrics = m
		}
	}
}

// WithInvoiceClock overrides the clock
func WithInvoiceClock(now func() time.Time) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.now = now
	}
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(store finance.LedgerStore, feeCatalog FeeCatalog, leases shared.LeaseManager, policy Policy, opts ...InvoiceServiceOption) *InvoiceService {
	s := &InvoiceService{
		store:   store,
		catalog: feeCatalog,
		policy:  policy,
		leases:  leaser{leases: leases, timeout: policy.LeaseTimeout, metrics: noopMetrics{}},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds the student's invoice for the period.
// A second call while a non-void invoice exists fails with DuplicateInvoiceError.
func (s *InvoiceService) Generate(ctx context.Context, req GenerateInvoiceRequest) (*InvoiceResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "InvoiceService", "Generate")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrStudentID, req.StudentID.String(), telemetry.SpanAttrBillingPeriod, req.Period)

	period, err := s.policy.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}
	profile, err := s.catalog.StudentProfile(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !profile.IsActive() {
		return nil, shared.NewValidationError("STUDENT_INACTIVE", "Inactive students cannot be invoiced")
	}

	var result *finance.GenerationResult
	// period lease before student lease, the order a close takes them in
	err = s.leases.with(ctx, "generate", PeriodLeaseKey(period.Key()), func(ctx context.Context) error {
		if pc, err := s.store.FindPeriodClose(ctx, period.Key()); err == nil && pc.IsClosed() {
			return shared.NewValidationError("PERIOD_CLOSED", "The billing period is closed; reopen it before generating invoices").
				WithDetail("billing_period", period.Key())
		} else if err != nil && !shared.IsKind(err, shared.KindNotFound) {
			return err
		}
		return s.leases.student(ctx, "generate", req.StudentID, func(ctx context.Context) error {
			var err error
			result, err = s.generateLocked(ctx, req, profile, period)
			return err
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logWarn("Invoice generation rejected", err, zap.String("student_id", req.StudentID.String()), zap.String("billing_period", req.Period))
		return nil, err
	}

	inv := result.Invoice
	s.logger.Info("Invoice generated",
		zap.String("student_id", inv.StudentID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("billing_period", inv.BillingPeriod),
		zap.Int64("net_minor", inv.TotalNet().Minor()),
		zap.Int("lines", len(inv.Lines)))
	return &InvoiceResult{Invoice: inv, CreditApplied: len(result.Transfers) > 0}, nil
}

// generateLocked builds and persists the invoice. The caller holds the period
// and student leases.
func (s *InvoiceService) generateLocked(ctx context.Context, req GenerateInvoiceRequest, profile *catalog.StudentProfile, period valueobject.BillingPeriod) (*finance.GenerationResult, error) {
	if _, err := s.store.FindActiveInvoice(ctx, req.StudentID, period.Key()); err == nil {
		return nil, shared.NewDuplicateInvoiceError(req.StudentID.String(), period.Key())
	} else if !shared.IsKind(err, shared.KindNotFound) {
		return nil, err
	}

	items, err := s.catalog.ApplicableItems(ctx, *profile, period)
	if err != nil {
		return nil, err
	}
	discounts, err := s.catalog.DiscountLookup(ctx, *profile, period)
	if err != nil {
		return nil, err
	}
	history, err := s.store.LoadHistory(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	seq, err := s.store.NextInvoiceSequence(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	result, err := finance.GenerateInvoice(finance.GenerationInput{
		StudentID: req.StudentID,
		Period:    period,
		Calendar:  s.policy.Calendar,
		Sequence:  seq,
		Currency:  s.policy.Currency,
		DueDate:   finance.DueDateFor(period, s.policy.DueDays),
		Now:       s.now(),
		Actor:     req.Actor,
		Items:     items,
		Discounts: discounts,
		Pending:   history.PendingCarryForwards(),
		Policy:    s.policy.Allocation,
	})
	if err != nil {
		return nil, err
	}

	inv := result.Invoice
	if err := s.store.WithinTransaction(ctx, func(ctx context.Context, tx finance.LedgerStore) error {
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		for _, adj := range result.Adjustments {
			if err := tx.CreateAdjustment(ctx, adj); err != nil {
				return err
			}
		}
		return tx.AppendEvents(ctx, collectEvents(inv)...)
	}); err != nil {
		return nil, err
	}
	clearEvents(inv)
	return result, nil
}

// Void cancels an invoice so the period can be invoiced again
func (s *InvoiceService) Void(ctx context.Context, req VoidInvoiceRequest) (*finance.VoidResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "InvoiceService", "Void",
		telemetry.WithAttribute(telemetry.SpanAttrInvoiceID, req.InvoiceID))
	defer span.End()

	existing, err := s.store.FindInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	var result *finance.VoidResult
	err = s.leases.student(ctx, "void", existing.StudentID, func(ctx context.Context) error {
		inv, err := s.store.FindInvoice(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		result, err = finance.VoidInvoice(inv, req.Reason, req.Actor, s.now())
		if err != nil {
			return err
		}
		if err := s.store.WithinTransaction(ctx, func(ctx context.Context, tx finance.LedgerStore) error {
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
			if result.Compensation != nil {
				if err := tx.CreateCarryForward(ctx, result.Compensation); err != nil {
					return err
				}
			}
			if err := tx.CreateAdjustment(ctx, result.Adjustment); err != nil {
				return err
			}
			return tx.AppendEvents(ctx, collectEvents(inv)...)
		}); err != nil {
			return err
		}
		clearEvents(inv)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logWarn("Invoice void rejected", err, zap.String("invoice_id", req.InvoiceID.String()))
		return nil, err
	}

	fields := []zap.Field{
		zap.String("student_id", result.Invoice.StudentID.String()),
		zap.String("invoice_id", result.Invoice.ID.String()),
		zap.String("actor", req.Actor),
	}
	if result.Compensation != nil {
		fields = append(fields, zap.Int64("compensation_minor", result.Compensation.Amount.Minor()))
	}
	s.logger.Info("Invoice voided", fields...)
	return result, nil
}

// GetInvoice returns one invoice
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*finance.Invoice, error) {
	return s.store.FindInvoice(ctx, id)
}

// ListInvoices lists a student's invoices, optionally for one period
func (s *InvoiceService) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]*finance.Invoice, int64, error) {
	if req.Period != "" {
		if _, err := s.policy.ParsePeriod(req.Period); err != nil {
			return nil, 0, err
		}
	}
	filter := finance.InvoiceFilter{
		Filter:        req.Filter,
		StudentID:     &req.StudentID,
		BillingPeriod: req.Period,
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "sequence"
		filter.OrderDir = "asc"
	}
	return s.store.FindInvoices(ctx, filter)
}

func (s *InvoiceService) logWarn(msg string, err error, fields ...zap.Field) {
	logRejection(s.logger, msg, err, fields...)
}

// logRejection logs caller errors at Warn and everything else at Error
func logRejection(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.String("error_kind", string(shared.KindOf(err))))
	switch shared.KindOf(err) {
	case shared.KindStorage, "":
		logger.Error(msg, fields...)
	default:
		logger.Warn(msg, fields...)
	}
}
