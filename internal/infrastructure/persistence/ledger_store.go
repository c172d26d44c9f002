package persistence

import (
	"context"
	"errors"

	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLedgerStore implements finance.LedgerStore using GORM
type GormLedgerStore struct {
	db       *gorm.DB
	currency valueobject.Currency
	outbox   shared.OutboxEventSaver
}

// LedgerStoreOption configures a GormLedgerStore
type LedgerStoreOption func(*GormLedgerStore)

// WithOutbox stores appended domain events through saver in the ledger transaction
func WithOutbox(saver shared.OutboxEventSaver) LedgerStoreOption {
	return func(s *GormLedgerStore) {
		s.outbox = saver
	}
}

// NewGormLedgerStore creates a new GormLedgerStore for a single-currency ledger
func NewGormLedgerStore(db *gorm.DB, currency valueobject.Currency, opts ...LedgerStoreOption) *GormLedgerStore {
	s := &GormLedgerStore{db: db, currency: currency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTransaction runs fn against a store bound to one database transaction
func (s *GormLedgerStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx finance.LedgerStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormLedgerStore{db: tx, currency: s.currency, outbox: s.outbox})
	})
}

// AppendEvents writes events to the outbox on the store's connection. Without
// an outbox the events are dropped.
func (s *GormLedgerStore) AppendEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if s.outbox == nil || len(events) == 0 {
		return nil
	}
	if err := s.outbox.SaveEvents(ctx, s.db.WithContext(ctx), events...); err != nil {
		return shared.NewStorageError("append events", err)
	}
	return nil
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func preloadAllocations(db *gorm.DB) *gorm.DB {
	return db.Preload("Allocations", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	})
}

// FindInvoice finds an invoice with its lines
func (s *GormLedgerStore) FindInvoice(ctx context.Context, id uuid.UUID) (*finance.Invoice, error) {
	var model models.InvoiceModel
	if err := preloadLines(s.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("invoice", id.String())
		}
		return nil, shared.NewStorageError("find invoice", err)
	}
	return model.ToDomain(), nil
}

// FindActiveInvoice returns the student's non-void invoice for the period
func (s *GormLedgerStore) FindActiveInvoice(ctx context.Context, studentID uuid.UUID, period string) (*finance.Invoice, error) {
	var model models.InvoiceModel
	err := preloadLines(s.db.WithContext(ctx)).
		Where("student_id = ? AND billing_period = ? AND status <> ?", studentID, period, finance.InvoiceStatusVoid).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("invoice", studentID.String()+"/"+period)
		}
		return nil, shared.NewStorageError("find active invoice", err)
	}
	return model.ToDomain(), nil
}

// FindInvoices lists invoices matching the filter
func (s *GormLedgerStore) FindInvoices(ctx context.Context, filter finance.InvoiceFilter) ([]*finance.Invoice, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.InvoiceModel{})
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.BillingPeriod != "" {
		query = query.Where("billing_period = ?", filter.BillingPeriod)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Search != "" {
		query = query.Where("invoice_number LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count invoices", err)
	}

	var rows []models.InvoiceModel
	if err := preloadLines(query).
		Order(invoiceSort.orderClause(filter.Filter)).
		Order("id ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list invoices", err)
	}

	invoices := make([]*finance.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].ToDomain()
	}
	return invoices, total, nil
}

// NextInvoiceSequence returns one past the student's highest sequence
func (s *GormLedgerStore) NextInvoiceSequence(ctx context.Context, studentID uuid.UUID) (int64, error) {
	var maxSeq int64
	if err := s.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("student_id = ?", studentID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, shared.NewStorageError("next invoice sequence", err)
	}
	return maxSeq + 1, nil
}

// StudentsWithInvoices lists students holding non-void invoices for the period
func (s *GormLedgerStore) StudentsWithInvoices(ctx context.Context, period string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("billing_period = ? AND status <> ?", period, finance.InvoiceStatusVoid).
		Distinct().
		Order("student_id ASC").
		Pluck("student_id", &ids).Error; err != nil {
		return nil, shared.NewStorageError("list students for period", err)
	}
	return ids, nil
}

// FindPayment finds a payment with its allocations
func (s *GormLedgerStore) FindPayment(ctx context.Context, id uuid.UUID) (*finance.Payment, error) {
	var model models.PaymentModel
	if err := preloadAllocations(s.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("payment", id.String())
		}
		return nil, shared.NewStorageError("find payment", err)
	}
	return model.ToDomain(), nil
}

// FindPaymentByReference finds the payment recorded under an external reference
func (s *GormLedgerStore) FindPaymentByReference(ctx context.Context, reference string) (*finance.Payment, error) {
	var model models.PaymentModel
	if err := preloadAllocations(s.db.WithContext(ctx)).
		First(&model, "external_reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("payment", reference)
		}
		return nil, shared.NewStorageError("find payment by reference", err)
	}
	return model.ToDomain(), nil
}

// LoadHistory reads every ledger record of the student
func (s *GormLedgerStore) LoadHistory(ctx context.Context, studentID uuid.UUID) (*finance.LedgerHistory, error) {
	db := s.db.WithContext(ctx)
	h := &finance.LedgerHistory{StudentID: studentID, Currency: s.currency}

	var invoices []models.InvoiceModel
	if err := preloadLines(db).Where("student_id = ?", studentID).Order("sequence ASC").Find(&invoices).Error; err != nil {
		return nil, shared.NewStorageError("load invoices", err)
	}
	for i := range invoices {
		h.Invoices = append(h.Invoices, invoices[i].ToDomain())
	}

	var payments []models.PaymentModel
	if err := preloadAllocations(db).Where("student_id = ?", studentID).Order("recorded_at ASC, id ASC").Find(&payments).Error; err != nil {
		return nil, shared.NewStorageError("load payments", err)
	}
	for i := range payments {
		h.Payments = append(h.Payments, payments[i].ToDomain())
	}

	var entries []models.CarryForwardModel
	if err := db.Where("student_id = ?", studentID).Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, shared.NewStorageError("load carry-forwards", err)
	}
	for i := range entries {
		h.CarryForwards = append(h.CarryForwards, entries[i].ToDomain())
	}

	var adjustments []models.AdjustmentModel
	if err := db.Where("student_id = ?", studentID).Order("created_at ASC, id ASC").Find(&adjustments).Error; err != nil {
		return nil, shared.NewStorageError("load adjustments", err)
	}
	for i := range adjustments {
		h.Adjustments = append(h.Adjustments, adjustments[i].ToDomain())
	}
	return h, nil
}

// CreateInvoice inserts an invoice and its lines
func (s *GormLedgerStore) CreateInvoice(ctx context.Context, inv *finance.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDuplicateInvoiceError(inv.StudentID.String(), inv.BillingPeriod)
		}
		return shared.NewStorageError("create invoice", err)
	}
	return nil
}

// UpdateInvoice persists line balances and status under optimistic locking.
// Lines are never removed; new lines (fines, carry-forwards) are inserted.
func (s *GormLedgerStore) UpdateInvoice(ctx context.Context, inv *finance.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	db := s.db.WithContext(ctx)

	result := db.Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]any{
			"status":        model.Status,
			"active_key":    model.ActiveKey,
			"reconciled_at": model.ReconciledAt,
			"voided_at":     model.VoidedAt,
			"void_reason":   model.VoidReason,
			"version":       inv.Version + 1,
			"updated_at":    inv.UpdatedAt,
		})
	if result.Error != nil {
		return shared.NewStorageError("update invoice", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}

	for i := range model.Lines {
		line := &model.Lines[i]
		res := db.Model(&models.InvoiceLineModel{}).
			Where("id = ?", line.ID).
			Updates(map[string]any{
				"paid_minor":    line.PaidMinor,
				"carried_minor": line.CarriedMinor,
			})
		if res.Error != nil {
			return shared.NewStorageError("update invoice line", res.Error)
		}
		if res.RowsAffected == 0 {
			if err := db.Create(line).Error; err != nil {
				return shared.NewStorageError("insert invoice line", err)
			}
		}
	}
	inv.IncrementVersion()
	return nil
}

// CreatePayment inserts a payment and its allocations
func (s *GormLedgerStore) CreatePayment(ctx context.Context, p *finance.Payment) error {
	if err := s.db.WithContext(ctx).Create(models.PaymentModelFromDomain(p)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("DUPLICATE_REFERENCE", "A payment with this external reference already exists")
		}
		return shared.NewStorageError("create payment", err)
	}
	return nil
}

// CreateCarryForward inserts a carry-forward entry
func (s *GormLedgerStore) CreateCarryForward(ctx context.Context, e *finance.CarryForwardEntry) error {
	if err := s.db.WithContext(ctx).Create(models.CarryForwardModelFromDomain(e)).Error; err != nil {
		return shared.NewStorageError("create carry-forward", err)
	}
	return nil
}

// CreateAdjustment inserts an adjustment
func (s *GormLedgerStore) CreateAdjustment(ctx context.Context, a *finance.Adjustment) error {
	if err := s.db.WithContext(ctx).Create(models.AdjustmentModelFromDomain(a)).Error; err != nil {
		return shared.NewStorageError("create adjustment", err)
	}
	return nil
}

// FindPeriodClose returns the most recent close record for the period
func (s *GormLedgerStore) FindPeriodClose(ctx context.Context, period string) (*finance.PeriodClose, error) {
	var model models.PeriodCloseModel
	if err := s.db.WithContext(ctx).
		Where("billing_period = ?", period).
		Order("closed_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("period close", period)
		}
		return nil, shared.NewStorageError("find period close", err)
	}
	return model.ToDomain(), nil
}

// FindPeriodCloses lists close records
func (s *GormLedgerStore) FindPeriodCloses(ctx context.Context, filter shared.Filter) ([]*finance.PeriodClose, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PeriodCloseModel{})
	if filter.Search != "" {
		query = query.Where("billing_period LIKE ?", filter.Search+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count period closes", err)
	}
	var rows []models.PeriodCloseModel
	if err := query.Order(periodCloseSort.orderClause(filter)).
		Offset(filter.Offset()).Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list period closes", err)
	}
	out := make([]*finance.PeriodClose, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// SavePeriodClose inserts or updates a close record
func (s *GormLedgerStore) SavePeriodClose(ctx context.Context, pc *finance.PeriodClose) error {
	if err := s.db.WithContext(ctx).Save(models.PeriodCloseModelFromDomain(pc)).Error; err != nil {
		return shared.NewStorageError("save period close", err)
	}
	return nil
}

// Ensure interface compliance
var _ finance.LedgerStore = (*GormLedgerStore)(nil)
