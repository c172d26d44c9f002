package finance

import (
	"context"
	"sync"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReconciliationService closes billing periods: overdue invoices are fined
// and every remainder is carried into the next period.
type ReconciliationService struct {
	store   finance.LedgerStore
	catalog FeeCatalog
	policy  Policy
	leases  leaser
	archive ReportArchive
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// ReconciliationServiceOption configures a ReconciliationService
type ReconciliationServiceOption func(*ReconciliationService)

// WithReconciliationLogger sets the logger
func WithReconciliationLogger(logger *zap.Logger) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReportArchive uploads every close report to the archive
func WithReportArchive(archive ReportArchive) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		s.archive = archive
	}
}

// WithReconciliationMetrics sets the metrics recorder
func WithReconciliationMetrics(m Metrics) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		if m != nil {
			s.metrics = m
			s.leases.metrics = m
		}
	}
}

// WithReconciliationClock overrides the clock
func WithReconciliationClock(now func() time.Time) ReconciliationServiceOption {
	return func(s *ReconciliationService) {
		s.now = now
	}
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(store finance.LedgerStore, feeCatalog FeeCatalog, leases shared.LeaseManager, policy Policy, opts ...ReconciliationServiceOption) *ReconciliationService {
	if policy.CloseWorkers <= 0 {
		policy.CloseWorkers = 1
	}
	s := &ReconciliationService{
		store:   store,
		catalog: feeCatalog,
		policy:  policy,
		leases:  leaser{leases: leases, timeout: policy.LeaseTimeout, metrics: noopMetrics{}},
		metrics: noopMetrics{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClosePeriod reconciles every student's invoices of the period. A period
// already closed fails with PeriodAlreadyClosedError unless force is set;
// a forced close only touches invoices no earlier close reconciled.
//
// Students are closed independently. When some fail the report lists them,
// the period is not marked closed, and a rerun picks up where this one stopped.
func (s *ReconciliationService) ClosePeriod(ctx context.Context, periodKey string, force bool, actor string) (report *finance.ReconciliationReport, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ReconciliationService", "ClosePeriod")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrBillingPeriod, periodKey, telemetry.SpanAttrForce, force)

	started := s.now()
	defer func() {
		s.metrics.RecordCloseDuration(ctx, periodKey, s.now().Sub(started), err)
		if err != nil {
			telemetry.RecordError(span, err)
			logRejection(s.logger, "Period close failed", err, zap.String("billing_period", periodKey))
		}
	}()

	period, err := s.policy.ParsePeriod(periodKey)
	if err != nil {
		return nil, err
	}
	periodKey = period.Key()

	err = s.leases.with(ctx, "close", PeriodLeaseKey(periodKey), func(ctx context.Context) error {
		existing, err := s.store.FindPeriodClose(ctx, periodKey)
		if err != nil && !shared.IsKind(err, shared.KindNotFound) {
			return err
		}
		if existing.IsClosed() && !force {
			return shared.NewPeriodAlreadyClosedError(periodKey)
		}

		fineRule, err := s.catalog.FineRule(ctx, period)
		if err != nil {
			return err
		}
		students, err := s.store.StudentsWithInvoices(ctx, periodKey)
		if err != nil {
			return err
		}

		asOf := s.now()
		in := finance.CloseInput{
			Period:     periodKey,
			NextPeriod: s.policy.Calendar.Next(period).Key(),
			AsOf:       asOf,
			FineRule:   fineRule,
			Actor:      actor,
		}
		report = finance.NewReconciliationReport(periodKey, in.NextPeriod, s.policy.Currency, force, asOf)
		if fineRule != nil {
			id := fineRule.ID
			report.FineRuleID = &id
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.policy.CloseWorkers)
		for _, studentID := range students {
			studentID := studentID
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				var (
					outcome *finance.StudentCloseOutcome
					err     error
				)
				telemetry.WithProfilingLabels(gctx, map[string]string{
					telemetry.ProfilingLabelOperation: "period_close",
					telemetry.ProfilingLabelPeriod:    periodKey,
				}, func(ctx context.Context) {
					outcome, err = s.closeStudent(ctx, studentID, in)
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					report.Fail(studentID, err)
					s.logger.Warn("Student close failed",
						zap.String("billing_period", periodKey),
						zap.String("student_id", studentID.String()),
						zap.Error(err))
					return nil
				}
				report.Merge(outcome)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if s.archive != nil {
			location, err := s.archive.Archive(ctx, report)
			if err != nil {
				s.logger.Warn("Failed to archive reconciliation report",
					zap.String("billing_period", periodKey), zap.Error(err))
			} else {
				report.ReportLocation = location
			}
		}

		if !report.Complete() {
			return nil
		}
		pc := finance.NewPeriodClose(report, actor)
		pc.ReportLocation = report.ReportLocation
		return s.store.WithinTransaction(ctx, func(ctx context.Context, tx finance.LedgerStore) error {
			if err := tx.SavePeriodClose(ctx, pc); err != nil {
				return err
			}
			return tx.AppendEvents(ctx, finance.NewPeriodClosedEvent(pc))
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Period closed",
		zap.String("billing_period", report.Period),
		zap.Bool("forced", report.Forced),
		zap.Bool("complete", report.Complete()),
		zap.Int("students", report.StudentsProcessed),
		zap.Int("reconciled", report.InvoicesReconciled),
		zap.Int("overdue", report.InvoicesOverdue),
		zap.Int64("fines_minor", report.FinesTotal.Minor()),
		zap.Int64("carried_debt_minor", report.CarriedDebt.Minor()),
		zap.Int64("carried_credit_minor", report.CarriedCredit.Minor()),
		zap.Int("failures", len(report.Failures)),
		zap.String("actor", actor))
	return report, nil
}

// closeStudent reconciles one student's invoices under the student lease.
// Everything the student's close writes commits together or not at all.
func (s *ReconciliationService) closeStudent(ctx context.Context, studentID uuid.UUID, in finance.CloseInput) (*finance.StudentCloseOutcome, error) {
	var outcome *finance.StudentCloseOutcome
	err := s.leases.student(ctx, "close", studentID, func(ctx context.Context) error {
		history, err := s.store.LoadHistory(ctx, studentID)
		if err != nil {
			return err
		}
		outcome, err = finance.CloseStudentPeriod(studentID, history.Invoices, in)
		if err != nil {
			return err
		}
		if len(outcome.Results) == 0 {
			return nil
		}
		return s.store.WithinTransaction(ctx, func(ctx context.Context, tx finance.LedgerStore) error {
			for _, res := range outcome.Results {
				if err := tx.UpdateInvoice(ctx, res.Invoice); err != nil {
					return err
				}
				if res.CarryForward != nil {
					if err := tx.CreateCarryForward(ctx, res.CarryForward); err != nil {
						return err
					}
				}
				for _, adj := range res.Adjustments {
					if err := tx.CreateAdjustment(ctx, adj); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	return outcome, err
}

// ReopenPeriod marks the period open again so a later close runs
func (s *ReconciliationService) ReopenPeriod(ctx context.Context, periodKey, actor string) (*finance.PeriodClose, error) {
	period, err := s.policy.ParsePeriod(periodKey)
	if err != nil {
		return nil, err
	}
	periodKey = period.Key()

	var pc *finance.PeriodClose
	err = s.leases.with(ctx, "reopen", PeriodLeaseKey(periodKey), func(ctx context.Context) error {
		pc, err = s.store.FindPeriodClose(ctx, periodKey)
		if shared.IsKind(err, shared.KindNotFound) {
			return shared.NewValidationError("PERIOD_NOT_CLOSED", "Period is not closed").
				WithDetail("billing_period", periodKey)
		}
		if err != nil {
			return err
		}
		if err := pc.Reopen(actor, s.now()); err != nil {
			return err
		}
		return s.store.SavePeriodClose(ctx, pc)
	})
	if err != nil {
		logRejection(s.logger, "Period reopen rejected", err, zap.String("billing_period", periodKey))
		return nil, err
	}
	s.logger.Info("Period reopened", zap.String("billing_period", periodKey), zap.String("actor", actor))
	return pc, nil
}

// GetPeriodClose returns the latest close record of the period
func (s *ReconciliationService) GetPeriodClose(ctx context.Context, periodKey string) (*finance.PeriodClose, error) {
	period, err := s.policy.ParsePeriod(periodKey)
	if err != nil {
		return nil, err
	}
	return s.store.FindPeriodClose(ctx, period.Key())
}

// ListPeriodCloses lists close records, newest first by default
func (s *ReconciliationService) ListPeriodCloses(ctx context.Context, filter shared.Filter) ([]*finance.PeriodClose, int64, error) {
	return s.store.FindPeriodCloses(ctx, filter)
}

// ReportURL returns a download link for the archived report of the period's latest close
func (s *ReconciliationService) ReportURL(ctx context.Context, periodKey string) (*ArchivedReport, error) {
	if s.archive == nil {
		return nil, shared.NewNotFoundError("report archive", periodKey)
	}
	pc, err := s.GetPeriodClose(ctx, periodKey)
	if err != nil {
		return nil, err
	}
	if pc.ReportLocation == "" {
		return nil, shared.NewNotFoundError("reconciliation report", pc.BillingPeriod)
	}
	url, expires, err := s.archive.ReportURL(ctx, pc.ReportLocation)
	if err != nil {
		return nil, err
	}
	return &ArchivedReport{Period: pc.BillingPeriod, Location: pc.ReportLocation, URL: url, ExpiresAt: expires}, nil
}
