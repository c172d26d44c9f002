package finance

import (
	"context"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// LedgerQueryService answers balance questions by folding the full ledger
// on every read; nothing is cached.
type LedgerQueryService struct {
	store   finance.LedgerStore
	catalog FeeCatalog
}

// NewLedgerQueryService creates a new LedgerQueryService
func NewLedgerQueryService(store finance.LedgerStore, feeCatalog FeeCatalog) *LedgerQueryService {
	return &LedgerQueryService{store: store, catalog: feeCatalog}
}

func (s *LedgerQueryService) history(ctx context.Context, studentID uuid.UUID) (*finance.LedgerHistory, error) {
	if _, err := s.catalog.StudentProfile(ctx, studentID); err != nil {
		return nil, err
	}
	return s.store.LoadHistory(ctx, studentID)
}

// GetBalance returns the student's current balance and open invoices
func (s *LedgerQueryService) GetBalance(ctx context.Context, studentID uuid.UUID) (*finance.LedgerBalance, error) {
	h, err := s.history(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return finance.ComputeBalance(h)
}

// GetStatement returns the student's complete ledger with its balance
func (s *LedgerQueryService) GetStatement(ctx context.Context, studentID uuid.UUID) (*Statement, error) {
	h, err := s.history(ctx, studentID)
	if err != nil {
		return nil, err
	}
	balance, err := finance.ComputeBalance(h)
	if err != nil {
		return nil, err
	}
	return &Statement{
		Balance:       balance,
		Invoices:      h.Invoices,
		Payments:      paymentViews(h),
		CarryForwards: carryForwardViews(h),
		Adjustments:   h.Adjustments,
	}, nil
}

// ListCarryForwards returns every carry-forward entry of the student, oldest first
func (s *LedgerQueryService) ListCarryForwards(ctx context.Context, studentID uuid.UUID) ([]CarryForwardView, error) {
	h, err := s.history(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return carryForwardViews(h), nil
}

func carryForwardViews(h *finance.LedgerHistory) []CarryForwardView {
	pending := make(map[uuid.UUID]finance.PendingCarryForward)
	for _, p := range h.PendingCarryForwards() {
		pending[p.Entry.ID] = p
	}
	out := make([]CarryForwardView, 0, len(h.CarryForwards))
	for _, e := range h.CarryForwards {
		v := CarryForwardView{Entry: e, Settled: valueobject.Zero(e.Amount.Currency())}
		if p, ok := pending[e.ID]; ok {
			v.Pending = true
			v.Settled = p.Settled
		}
		out = append(out, v)
	}
	return out
}
