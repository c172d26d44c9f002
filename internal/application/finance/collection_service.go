package finance

import (
	"context"
	"strings"
	"time"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// webhookPending marks a webhook reference whose collection is in progress
const webhookPending = "pending"

// ErrWebhookInFlight is returned while another delivery of the same
// reference is still being collected
var ErrWebhookInFlight = shared.NewConflictError("WEBHOOK_IN_FLIGHT", "A delivery with this reference is being processed, retry later")

// CollectionService records, reverses and reads payments
type CollectionService struct {
	store       finance.LedgerStore
	catalog     FeeCatalog
	policy      Policy
	leases      leaser
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	logger      *zap.Logger
	now         func() time.Time
}

// CollectionServiceOption configures a CollectionService
type CollectionServiceOption func(*CollectionService)

// WithCollectionLogger sets the logger
func WithCollectionLogger(logger *zap.Logger) CollectionServiceOption {
	return func(s *CollectionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollectionMetrics sets the metrics recorder
func WithCollectionMetrics(m Metrics) CollectionServiceOption {
	return func(s *CollectionService) {
		if m != nil {
			s.leases.metrics = m
		}
	}
}

// WithIdempotencyStore puts a fast dedupe store in front of webhook collections
func WithIdempotencyStore(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) CollectionServiceOption {
	return func(s *CollectionService) {
		s.idempotency = store
		s.idemConfig = cfg
	}
}

// WithCollectionClock overrides the clock
func WithCollectionClock(now func() time.Time) CollectionServiceOption {
	return func(s *CollectionService) {
		s.now = now
	}
}

// NewCollectionService creates a new CollectionService
func NewCollectionService(store finance.LedgerStore, feeCatalog FeeCatalog, leases shared.LeaseManager, policy Policy, opts ...CollectionServiceOption) *CollectionService {
	s := &CollectionService{
		store:      store,
		catalog:    feeCatalog,
		policy:     policy,
		leases:     leaser{leases: leases, timeout: policy.LeaseTimeout, metrics: noopMetrics{}},
		idemConfig: shared.DefaultIdempotencyConfig(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect allocates a payment across the student's open dues, oldest first.
// A reference already collected returns the original payment with Replayed set.
func (s *CollectionService) Collect(ctx context.Context, req CollectPaymentRequest) (*CollectionOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CollectionService", "Collect")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrStudentID, req.StudentID.String(), telemetry.SpanAttrMethod, string(req.Method))

	out, err := s.collect(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		logRejection(s.logger, "Payment collection rejected", err,
			zap.String("student_id", req.StudentID.String()),
			zap.Int64("amount_minor", req.Amount.Minor()),
			zap.String("method", string(req.Method)),
			zap.String("reference", req.ExternalReference))
		return nil, err
	}
	if out.Replayed {
		s.logger.Info("Payment reference replayed",
			zap.String("student_id", req.StudentID.String()),
			zap.String("payment_id", out.Payment.ID.String()),
			zap.String("reference", out.Payment.Reference()))
		return out, nil
	}

	fields := []zap.Field{
		zap.String("student_id", out.Payment.StudentID.String()),
		zap.String("payment_id", out.Payment.ID.String()),
		zap.Int64("amount_minor", out.Payment.Amount.Minor()),
		zap.String("method", string(out.Payment.Method)),
		zap.Int("allocations", len(out.Payment.Allocations)),
	}
	if out.Credit != nil {
		fields = append(fields, zap.Int64("credit_minor", out.Credit.Amount.Negate().Minor()))
	}
	s.logger.Info("Payment collected", fields...)
	return out, nil
}

func (s *CollectionService) collect(ctx context.Context, req CollectPaymentRequest) (*CollectionOutcome, error) {
	req.ExternalReference = strings.TrimSpace(req.ExternalReference)
	if !req.Amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !req.Amount.WithinTransactionLimit() {
		return nil, shared.NewValidationError("AMOUNT_TOO_LARGE", "Payment amount exceeds the single transaction limit")
	}
	if req.Amount.Currency() != s.policy.Currency {
		return nil, shared.NewValidationError("CURRENCY_MISMATCH", "Payment currency does not match the ledger currency").
			WithDetail("currency", req.Amount.Currency().String())
	}
	if !req.Method.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_METHOD", "Unknown payment method")
	}
	if _, err := s.catalog.StudentProfile(ctx, req.StudentID); err != nil {
		return nil, err
	}

	if req.ExternalReference != "" {
		if out, err := s.replay(ctx, req); out != nil || err != nil {
			return out, err
		}
	}

	var out *CollectionOutcome
	err := s.leases.student(ctx, "collect", req.StudentID, func(ctx context.Context) error {
		// a concurrent delivery of the same reference may have landed while waiting
		if req.ExternalReference != "" {
			replayed, err := s.replay(ctx, req)
			if err != nil {
				return err
			}
			if replayed != nil {
				out = replayed
				return nil
			}
		}

		history, err := s.store.LoadHistory(ctx, req.StudentID)
		if err != nil {
			return err
		}
		result, err := finance.CollectPayment(history, finance.CollectionInput{
			StudentID:         req.StudentID,
			Amount:            req.Amount,
			Method:            req.Method,
			ExternalReference: req.ExternalReference,
			RecordedBy:        req.Actor,
			Note:              req.Note,
			Now:               s.now(),
			Calendar:          s.policy.Calendar,
			Policy:            s.policy.Allocation,
		})
		if err != nil {
			return err
		}

		// the balance must fold before anything is committed
		result.Apply(history)
		balance, err := finance.ComputeBalance(history)
		if err != nil {
			return err
		}

		payment := result.Payment
		if err := s.store.WithinTransaction(ctx, func(ctx context.Context, tx finance.LedgerStore) error {
			for _, inv := range result.Touched {
				if err := tx.UpdateInvoice(ctx, inv); err != nil {
					return err
				}
			}
			if result.Credit != nil {
				if err := tx.CreateCarryForward(ctx, result.Credit); err != nil {
					return err
				}
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return err
			}
			return tx.AppendEvents(ctx, collectEvents(payment)...)
		}); err != nil {
			// another student's payment may hold the reference
			if req.ExternalReference != "" && shared.IsKind(err, shared.KindConflict) {
				if replayed, rerr := s.replay(ctx, req); rerr != nil || replayed != nil {
					out = replayed
					return rerr
				}
			}
			return err
		}
		clearEvents(payment)
		out = &CollectionOutcome{Payment: payment, Credit: result.Credit, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// replay returns the original collection of the request's reference, nil
// when the reference is unused, or a ValidationError when the reference was
// used for a different payment.
func (s *CollectionService) replay(ctx context.Context, req CollectPaymentRequest) (*CollectionOutcome, error) {
	existing, err := s.store.FindPaymentByReference(ctx, req.ExternalReference)
	if shared.IsKind(err, shared.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.replayOf(ctx, existing, req)
}

func (s *CollectionService) replayOf(ctx context.Context, existing *finance.Payment, req CollectPaymentRequest) (*CollectionOutcome, error) {
	if !existing.SameAs(req.StudentID, req.Amount, req.Method) {
		return nil, shared.NewValidationError("REFERENCE_REUSED",
			"External reference was already used for a different payment").
			WithDetail("payment_id", existing.ID.String())
	}
	balance, err := s.balance(ctx, existing.StudentID)
	if err != nil {
		return nil, err
	}
	return &CollectionOutcome{Payment: existing, Balance: balance, Replayed: true}, nil
}

func (s *CollectionService) balance(ctx context.Context, studentID uuid.UUID) (*finance.LedgerBalance, error) {
	history, err := s.store.LoadHistory(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return finance.ComputeBalance(history)
}

// ConfirmOnlinePayment collects a gateway confirmation. Webhooks are
// delivered at least once, so the reference is checked in the idempotency
// store first and then against the ledger's unique reference.
func (s *CollectionService) ConfirmOnlinePayment(ctx context.Context, req OnlinePaymentRequest) (*CollectionOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CollectionService", "ConfirmOnlinePayment")
	defer span.End()

	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		return nil, shared.NewValidationError("REFERENCE_REQUIRED", "Online payments require a gateway reference")
	}
	collectReq := CollectPaymentRequest{
		StudentID:         req.StudentID,
		Amount:            req.Amount,
		Method:            finance.PaymentMethodOnline,
		ExternalReference: req.Reference,
		Note:              req.Note,
		Actor:             "webhook",
	}
	if s.idempotency == nil || !s.idemConfig.Enabled {
		return s.Collect(ctx, collectReq)
	}

	key := shared.WebhookReferenceKey(req.Reference)
	claimed, err := s.idempotency.Remember(ctx, key, webhookPending, s.pendingClaimTTL())
	if err != nil {
		// the store is only a fast path; the ledger still dedupes
		s.logger.Warn("Idempotency store unavailable", zap.String("key", key), zap.Error(err))
		return s.Collect(ctx, collectReq)
	}
	if !claimed {
		value, found, err := s.idempotency.Lookup(ctx, key)
		if err != nil || !found {
			return s.Collect(ctx, collectReq)
		}
		if value == webhookPending {
			// the claimant may have committed without recording the payment id
			existing, ferr := s.store.FindPaymentByReference(ctx, req.Reference)
			if ferr != nil {
				if shared.IsKind(ferr, shared.KindNotFound) {
					return nil, ErrWebhookInFlight
				}
				return nil, ferr
			}
			return s.replayOf(ctx, existing, collectReq)
		}
		paymentID, err := uuid.Parse(value)
		if err != nil {
			return s.Collect(ctx, collectReq)
		}
		existing, err := s.store.FindPayment(ctx, paymentID)
		if err != nil {
			return s.Collect(ctx, collectReq)
		}
		s.logger.Info("Webhook replay answered from idempotency store",
			zap.String("reference", req.Reference),
			zap.String("payment_id", existing.ID.String()))
		return s.replayOf(ctx, existing, collectReq)
	}

	out, err := s.Collect(ctx, collectReq)
	release := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := s.idempotency.Forget(release, key); ferr != nil {
			s.logger.Warn("Failed to release webhook reference", zap.String("key", key), zap.Error(ferr))
		}
		return nil, err
	}
	if ferr := s.idempotency.Forget(release, key); ferr == nil {
		if _, rerr := s.idempotency.Remember(release, key, out.Payment.ID.String(), s.idemConfig.TTL); rerr != nil {
			s.logger.Warn("Failed to remember webhook reference", zap.String("key", key), zap.Error(rerr))
		}
	}
	return out, nil
}

// pendingClaimTTL bounds how long an unfinished delivery blocks redeliveries.
// It covers the wait for the student lease plus the collection itself.
func (s *CollectionService) pendingClaimTTL() time.Duration {
	if s.policy.LeaseTimeout <= 0 {
		return 30 * time.Second
	}
	return 3 * s.policy.LeaseTimeout
}

// ReversePayment undoes a payment's allocations with an audit adjustment
func (s *CollectionService) ReversePayment(ctx context.Context, req ReversePaymentRequest) (*finance.ReversalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CollectionService", "ReversePayment",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, req.PaymentID))
	defer span.End()

	payment, err := s.store.FindPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	var result *finance.ReversalResult
	err = s.leases.student(ctx, "reverse", payment.StudentID, func(ctx context.Context) error {
		history, err := s.store.LoadHistory(ctx, payment.StudentID)
		if err != nil {
			return err
		}
		result, err = finance.ReversePayment(history, req.PaymentID, req.Reason, req.Actor, s.now())
		if err != nil {
			return err
		}
		if err := s.store.WithinTransaction(ctx, func(ctx context.Context, tx finance.LedgerStore) error {
			for _, inv := range result.Touched {
				if err := tx.UpdateInvoice(ctx, inv); err != nil {
					return err
				}
			}
			for _, e := range result.CarryForwards {
				if err := tx.CreateCarryForward(ctx, e); err != nil {
					return err
				}
			}
			if err := tx.CreateAdjustment(ctx, result.Adjustment); err != nil {
				return err
			}
			return tx.AppendEvents(ctx, collectEvents(result.Payment)...)
		}); err != nil {
			return err
		}
		clearEvents(result.Payment)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logRejection(s.logger, "Payment reversal rejected", err, zap.String("payment_id", req.PaymentID.String()))
		return nil, err
	}

	s.logger.Info("Payment reversed",
		zap.String("student_id", payment.StudentID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("amount_minor", payment.Amount.Minor()),
		zap.Int("carry_forwards", len(result.CarryForwards)),
		zap.String("actor", req.Actor))
	return result, nil
}

// GetPayment returns one payment and whether it has been reversed
func (s *CollectionService) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentView, error) {
	payment, err := s.store.FindPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.LoadHistory(ctx, payment.StudentID)
	if err != nil {
		return nil, err
	}
	return &PaymentView{Payment: payment, Reversed: history.IsReversed(id)}, nil
}

// ListPayments lists a student's payments in the order they were recorded
func (s *CollectionService) ListPayments(ctx context.Context, studentID uuid.UUID) ([]PaymentView, error) {
	history, err := s.store.LoadHistory(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return paymentViews(history), nil
}

func paymentViews(h *finance.LedgerHistory) []PaymentView {
	reversed := h.ReversedPayments()
	out := make([]PaymentView, 0, len(h.Payments))
	for _, p := range h.Payments {
		out = append(out, PaymentView{Payment: p, Reversed: reversed[p.ID]})
	}
	return out
}
