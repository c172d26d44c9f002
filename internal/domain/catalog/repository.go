package catalog

import (
	"context"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// FeeItemFilter defines filtering options for fee item listings
type FeeItemFilter struct {
	shared.Filter
	ItemKey string
	Status  *FeeItemStatus
	Scope   *Scope
}

// FeeItemRepository persists fee item revisions
type FeeItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FeeItemDefinition, error)

	// FindRevisions returns every revision of an item, oldest first
	FindRevisions(ctx context.Context, itemKey string) ([]FeeItemDefinition, error)

	// FindBillable returns active revisions whose effective window overlaps the period
	FindBillable(ctx context.Context, period valueobject.BillingPeriod) ([]FeeItemDefinition, error)

	FindAll(ctx context.Context, filter FeeItemFilter) ([]FeeItemDefinition, int64, error)

	// Save inserts a new revision or persists a status change
	Save(ctx context.Context, def *FeeItemDefinition) error

	// SaveRevision atomically supersedes the old revision and inserts the new one
	SaveRevision(ctx context.Context, superseded, revision *FeeItemDefinition) error
}

// DiscountRuleFilter defines filtering options for discount listings
type DiscountRuleFilter struct {
	shared.Filter
	StudentID  *uuid.UUID
	Category   string
	ActiveOnly bool
}

// DiscountRuleRepository persists discount rules
type DiscountRuleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*DiscountRule, error)

	// FindCandidates returns active rules targeting the student or the student's category
	FindCandidates(ctx context.Context, profile StudentProfile) ([]DiscountRule, error)

	FindAll(ctx context.Context, filter DiscountRuleFilter) ([]DiscountRule, int64, error)
	Save(ctx context.Context, rule *DiscountRule) error
}

// FineRuleRepository persists fine rules
type FineRuleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FineRule, error)
	FindActive(ctx context.Context) ([]FineRule, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]FineRule, int64, error)
	Save(ctx context.Context, rule *FineRule) error
}

// StudentProfileRepository persists the student profiles pushed by the school application
type StudentProfileRepository interface {
	FindByID(ctx context.Context, studentID uuid.UUID) (*StudentProfile, error)
	Save(ctx context.Context, profile *StudentProfile) error
}
