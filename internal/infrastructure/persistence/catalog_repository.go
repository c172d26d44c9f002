package persistence

import (
	"context"
	"errors"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFeeItemRepository implements catalog.FeeItemRepository using GORM
type GormFeeItemRepository struct {
	db *gorm.DB
}

// NewGormFeeItemRepository creates a new GormFeeItemRepository
func NewGormFeeItemRepository(db *gorm.DB) *GormFeeItemRepository {
	return &GormFeeItemRepository{db: db}
}

// FindByID finds a fee item revision by its ID
func (r *GormFeeItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.FeeItemDefinition, error) {
	var model models.FeeItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("fee item", id.String())
		}
		return nil, shared.NewStorageError("find fee item", err)
	}
	return model.ToDomain(), nil
}

// FindRevisions returns every revision of an item, oldest first
func (r *GormFeeItemRepository) FindRevisions(ctx context.Context, itemKey string) ([]catalog.FeeItemDefinition, error) {
	var rows []models.FeeItemModel
	if err := r.db.WithContext(ctx).
		Where("item_key = ?", itemKey).
		Order("revision ASC").
		Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("find fee item revisions", err)
	}
	return feeItemsToDomain(rows), nil
}

// FindBillable returns active revisions whose effective window overlaps the period
func (r *GormFeeItemRepository) FindBillable(ctx context.Context, period valueobject.BillingPeriod) ([]catalog.FeeItemDefinition, error) {
	var rows []models.FeeItemModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", catalog.FeeItemStatusActive).
		Where("effective_from < ?", period.End()).
		Where("effective_to IS NULL OR effective_to >= ?", period.Start()).
		Order("sort_order ASC, item_key ASC").
		Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("find billable fee items", err)
	}
	return feeItemsToDomain(rows), nil
}

// FindAll lists fee items matching the filter
func (r *GormFeeItemRepository) FindAll(ctx context.Context, filter catalog.FeeItemFilter) ([]catalog.FeeItemDefinition, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FeeItemModel{})
	if filter.ItemKey != "" {
		query = query.Where("item_key = ?", filter.ItemKey)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Scope != nil {
		query = query.Where("scope = ?", *filter.Scope)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR item_key LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count fee items", err)
	}

	var rows []models.FeeItemModel
	if err := query.
		Order(feeItemSort.orderClause(filter.Filter)).
		Order("revision ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list fee items", err)
	}
	return feeItemsToDomain(rows), total, nil
}

// Save inserts a new revision or persists a status change
func (r *GormFeeItemRepository) Save(ctx context.Context, def *catalog.FeeItemDefinition) error {
	if err := r.db.WithContext(ctx).Save(models.FeeItemModelFromDomain(def)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("DUPLICATE_FEE_ITEM", "A fee item with this key and revision already exists")
		}
		return shared.NewStorageError("save fee item", err)
	}
	return nil
}

// SaveRevision supersedes the old revision and inserts the new one in one transaction.
// The superseded row is updated only if nobody revised it first.
func (r *GormFeeItemRepository) SaveRevision(ctx context.Context, superseded, revision *catalog.FeeItemDefinition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FeeItemModel{}).
			Where("id = ? AND version = ?", superseded.ID, superseded.Version-1).
			Updates(map[string]any{
				"status":     superseded.Status,
				"version":    superseded.Version,
				"updated_at": superseded.UpdatedAt,
			})
		if result.Error != nil {
			return shared.NewStorageError("supersede fee item", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		if err := tx.Create(models.FeeItemModelFromDomain(revision)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrConcurrencyConflict
			}
			return shared.NewStorageError("insert fee item revision", err)
		}
		return nil
	})
}

func feeItemsToDomain(rows []models.FeeItemModel) []catalog.FeeItemDefinition {
	out := make([]catalog.FeeItemDefinition, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// GormDiscountRuleRepository implements catalog.DiscountRuleRepository using GORM
type GormDiscountRuleRepository struct {
	db       *gorm.DB
	currency valueobject.Currency
}

// NewGormDiscountRuleRepository creates a new GormDiscountRuleRepository
func NewGormDiscountRuleRepository(db *gorm.DB, currency valueobject.Currency) *GormDiscountRuleRepository {
	return &GormDiscountRuleRepository{db: db, currency: currency}
}

// FindByID finds a discount rule by its ID
func (r *GormDiscountRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.DiscountRule, error) {
	var model models.DiscountRuleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("discount rule", id.String())
		}
		return nil, shared.NewStorageError("find discount rule", err)
	}
	return model.ToDomain(), nil
}

// FindCandidates returns active rules granted to the student or the student's category
func (r *GormDiscountRuleRepository) FindCandidates(ctx context.Context, profile catalog.StudentProfile) ([]catalog.DiscountRule, error) {
	query := r.db.WithContext(ctx).Where("active = ?", true)
	if profile.Category != "" {
		query = query.Where("(target = ? AND student_id = ?) OR (target = ? AND category = ?)",
			catalog.DiscountTargetStudent, profile.StudentID, catalog.DiscountTargetCategory, profile.Category)
	} else {
		query = query.Where("target = ? AND student_id = ?", catalog.DiscountTargetStudent, profile.StudentID)
	}
	var rows []models.DiscountRuleModel
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("find discount candidates", err)
	}
	return discountsToDomain(rows), nil
}

// FindAll lists discount rules matching the filter
func (r *GormDiscountRuleRepository) FindAll(ctx context.Context, filter catalog.DiscountRuleFilter) ([]catalog.DiscountRule, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.DiscountRuleModel{})
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count discount rules", err)
	}
	var rows []models.DiscountRuleModel
	if err := query.Order("created_at DESC").
		Offset(filter.Offset()).Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list discount rules", err)
	}
	return discountsToDomain(rows), total, nil
}

// Save creates or updates a discount rule
func (r *GormDiscountRuleRepository) Save(ctx context.Context, rule *catalog.DiscountRule) error {
	if err := r.db.WithContext(ctx).Save(models.DiscountRuleModelFromDomain(rule, r.currency)).Error; err != nil {
		return shared.NewStorageError("save discount rule", err)
	}
	return nil
}

func discountsToDomain(rows []models.DiscountRuleModel) []catalog.DiscountRule {
	out := make([]catalog.DiscountRule, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// GormFineRuleRepository implements catalog.FineRuleRepository using GORM
type GormFineRuleRepository struct {
	db       *gorm.DB
	currency valueobject.Currency
}

// NewGormFineRuleRepository creates a new GormFineRuleRepository
func NewGormFineRuleRepository(db *gorm.DB, currency valueobject.Currency) *GormFineRuleRepository {
	return &GormFineRuleRepository{db: db, currency: currency}
}

// FindByID finds a fine rule by its ID
func (r *GormFineRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.FineRule, error) {
	var model models.FineRuleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("fine rule", id.String())
		}
		return nil, shared.NewStorageError("find fine rule", err)
	}
	return model.ToDomain(), nil
}

// FindActive returns every active fine rule
func (r *GormFineRuleRepository) FindActive(ctx context.Context) ([]catalog.FineRule, error) {
	var rows []models.FineRuleModel
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("valid_from ASC").Find(&rows).Error; err != nil {
		return nil, shared.NewStorageError("find active fine rules", err)
	}
	return finesToDomain(rows), nil
}

// FindAll lists fine rules
func (r *GormFineRuleRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.FineRule, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FineRuleModel{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, shared.NewStorageError("count fine rules", err)
	}
	var rows []models.FineRuleModel
	if err := query.Order("valid_from DESC").
		Offset(filter.Offset()).Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, shared.NewStorageError("list fine rules", err)
	}
	return finesToDomain(rows), total, nil
}

// Save creates or updates a fine rule
func (r *GormFineRuleRepository) Save(ctx context.Context, rule *catalog.FineRule) error {
	if err := r.db.WithContext(ctx).Save(models.FineRuleModelFromDomain(rule, r.currency)).Error; err != nil {
		return shared.NewStorageError("save fine rule", err)
	}
	return nil
}

func finesToDomain(rows []models.FineRuleModel) []catalog.FineRule {
	out := make([]catalog.FineRule, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// GormStudentProfileRepository implements catalog.StudentProfileRepository using GORM
type GormStudentProfileRepository struct {
	db *gorm.DB
}

// NewGormStudentProfileRepository creates a new GormStudentProfileRepository
func NewGormStudentProfileRepository(db *gorm.DB) *GormStudentProfileRepository {
	return &GormStudentProfileRepository{db: db}
}

// FindByID finds a student's profile
func (r *GormStudentProfileRepository) FindByID(ctx context.Context, studentID uuid.UUID) (*catalog.StudentProfile, error) {
	var model models.StudentProfileModel
	if err := r.db.WithContext(ctx).First(&model, "student_id = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("student", studentID.String())
		}
		return nil, shared.NewStorageError("find student profile", err)
	}
	return model.ToDomain(), nil
}

// Save upserts a student's profile
func (r *GormStudentProfileRepository) Save(ctx context.Context, profile *catalog.StudentProfile) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "class_id", "section_id", "category", "status", "updated_at"}),
		}).
		Create(models.StudentProfileModelFromDomain(profile)).Error
	if err != nil {
		return shared.NewStorageError("save student profile", err)
	}
	return nil
}

var (
	_ catalog.FeeItemRepository        = (*GormFeeItemRepository)(nil)
	_ catalog.DiscountRuleRepository   = (*GormDiscountRuleRepository)(nil)
	_ catalog.FineRuleRepository       = (*GormFineRuleRepository)(nil)
	_ catalog.StudentProfileRepository = (*GormStudentProfileRepository)(nil)
)
