package event

import (
	"context"
	"time"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	if err := r.db.WithContext(ctx).Create(rows).Error; err != nil {
		return shared.NewStorageError("save outbox entries", err)
	}
	return nil
}

// FindDue returns pending entries and failed entries whose retry time has
// passed, keeping each aggregate's events in the order they were raised.
func (r *GormOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("(status = ? OR (status = ? AND next_retry_at <= ?))",
			shared.OutboxStatusPending, shared.OutboxStatusFailed, now).
		Where(`NOT EXISTS (SELECT 1 FROM outbox_events AS prior
			WHERE prior.aggregate_id = outbox_events.aggregate_id
			AND prior.created_at < outbox_events.created_at
			AND prior.status IN ?)`,
			[]shared.OutboxStatus{shared.OutboxStatusFailed, shared.OutboxStatusProcessing}).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, shared.NewStorageError("find due outbox entries", err)
	}
	return toDomainEntries(rows), nil
}

// MarkProcessing claims each entry with a conditional update. Entries already
// claimed by another processor are skipped.
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := r.db.WithContext(ctx)

	claimed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		res := db.Model(&models.OutboxEntryModel{}).
			Where("id = ? AND status IN ?", id, []shared.OutboxStatus{
				shared.OutboxStatusPending,
				shared.OutboxStatusFailed,
			}).
			Updates(map[string]any{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, shared.NewStorageError("claim outbox entry", res.Error)
		}
		if res.RowsAffected == 1 {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	var rows []models.OutboxEntryModel
	if err := db.Where("id IN ?", claimed).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("load claimed outbox entries", err)
	}
	return toDomainEntries(rows), nil
}

// Update writes back an entry's delivery state
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	if err := r.db.WithContext(ctx).Save(models.OutboxEntryModelFromDomain(entry)).Error; err != nil {
		return shared.NewStorageError("update outbox entry", err)
	}
	return nil
}

// DeleteSentBefore deletes delivered entries processed before the cutoff
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, cutoff).
		Delete(&models.OutboxEntryModel{})
	if result.Error != nil {
		return 0, shared.NewStorageError("delete sent outbox entries", result.Error)
	}
	return result.RowsAffected, nil
}

// FindDead retrieves dead letter entries with pagination
func (r *GormOutboxRepository) FindDead(ctx context.Context, filter shared.Filter) ([]*shared.OutboxEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OutboxEntryModel{}).Where("status = ?", shared.OutboxStatusDead)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count dead outbox entries", err)
	}

	var rows []models.OutboxEntryModel
	if err := query.Order("updated_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list dead outbox entries", err)
	}
	return toDomainEntries(rows), total, nil
}

// CountByStatus returns the number of entries in each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type statusCount struct {
		Status shared.OutboxStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, shared.NewStorageError("count outbox entries", err)
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, c := range results {
		counts[c.Status] = c.Count
	}
	return counts, nil
}

func toDomainEntries(rows []models.OutboxEntryModel) []*shared.OutboxEntry {
	out := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
