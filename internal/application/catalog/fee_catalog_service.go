package catalog

import (
	"context"

	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeeCatalogService manages fee items, discounts, fine rules and student
// profiles, and answers the resolve queries invoice generation relies on.
type FeeCatalogService struct {
	feeItems  catalog.FeeItemRepository
	discounts catalog.DiscountRuleRepository
	fines     catalog.FineRuleRepository
	profiles  catalog.StudentProfileRepository
	resolver  *catalog.Resolver
	currency  valueobject.Currency
	logger    *zap.Logger
}

// Repositories groups the catalog's persistence ports
type Repositories struct {
	FeeItems  catalog.FeeItemRepository
	Discounts catalog.DiscountRuleRepository
	Fines     catalog.FineRuleRepository
	Profiles  catalog.StudentProfileRepository
}

// NewFeeCatalogService creates a new FeeCatalogService
func NewFeeCatalogService(repos Repositories, calendar valueobject.Calendar, currency valueobject.Currency, logger *zap.Logger) *FeeCatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeCatalogService{
		feeItems:  repos.FeeItems,
		discounts: repos.Discounts,
		fines:     repos.Fines,
		profiles:  repos.Profiles,
		resolver:  catalog.NewResolver(calendar),
		currency:  currency,
		logger:    logger,
	}
}

func (s *FeeCatalogService) checkCurrency(m valueobject.Money, field string) error {
	if m.Currency() != "" && m.Currency() != s.currency {
		return shared.NewValidationError("CURRENCY_MISMATCH", field+" must be in "+s.currency.String()).
			WithDetail("currency", m.Currency().String())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fee items
// ---------------------------------------------------------------------------

// CreateFeeItem creates revision 1 of a fee item. An active revision with the
// same key and applicability whose window overlaps must be revised instead.
func (s *FeeCatalogService) CreateFeeItem(ctx context.Context, params catalog.FeeItemParams) (*catalog.FeeItemDefinition, error) {
	if err := s.checkCurrency(params.Amount, "Amount"); err != nil {
		return nil, err
	}
	def, err := catalog.NewFeeItemDefinition(params)
	if err != nil {
		return nil, err
	}

	revisions, err := s.feeItems.FindRevisions(ctx, def.ItemKey)
	if err != nil {
		return nil, err
	}
	for i := range revisions {
		other := &revisions[i]
		if other.IsActive() && sameApplicability(other.Applicability, def.Applicability) && windowsOverlap(other, def) {
			return nil, shared.NewConflictError("FEE_ITEM_EXISTS",
				"An active fee item with this key and applicability already exists; revise it instead").
				WithDetail("fee_item_id", other.ID.String())
		}
	}

	if err := s.feeItems.Save(ctx, def); err != nil {
		return nil, err
	}
	s.logger.Info("Fee item created",
		zap.String("fee_item_id", def.ID.String()),
		zap.String("item_key", def.ItemKey),
		zap.String("scope", string(def.Applicability.Scope)),
		zap.Int64("amount_minor", def.Amount.Minor()))
	return def, nil
}

// ReviseFeeItem supersedes the active revision with a new one
func (s *FeeCatalogService) ReviseFeeItem(ctx context.Context, id uuid.UUID, params catalog.FeeItemParams) (*catalog.FeeItemDefinition, error) {
	if err := s.checkCurrency(params.Amount, "Amount"); err != nil {
		return nil, err
	}
	current, err := s.feeItems.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := current.Revise(params)
	if err != nil {
		return nil, err
	}
	if err := s.feeItems.SaveRevision(ctx, current, next); err != nil {
		return nil, err
	}
	s.logger.Info("Fee item revised",
		zap.String("item_key", next.ItemKey),
		zap.String("superseded_id", current.ID.String()),
		zap.String("fee_item_id", next.ID.String()),
		zap.Int("revision", next.Revision))
	return next, nil
}

// RetireFeeItem stops a fee item from being billed again
func (s *FeeCatalogService) RetireFeeItem(ctx context.Context, id uuid.UUID) (*catalog.FeeItemDefinition, error) {
	def, err := s.feeItems.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := def.Retire(); err != nil {
		return nil, err
	}
	if err := s.feeItems.Save(ctx, def); err != nil {
		return nil, err
	}
	s.logger.Info("Fee item retired", zap.String("fee_item_id", def.ID.String()), zap.String("item_key", def.ItemKey))
	return def, nil
}

// GetFeeItem returns one fee item revision
func (s *FeeCatalogService) GetFeeItem(ctx context.Context, id uuid.UUID) (*catalog.FeeItemDefinition, error) {
	return s.feeItems.FindByID(ctx, id)
}

// FeeItemHistory returns every revision of an item key, oldest first
func (s *FeeCatalogService) FeeItemHistory(ctx context.Context, itemKey string) ([]catalog.FeeItemDefinition, error) {
	return s.feeItems.FindRevisions(ctx, itemKey)
}

// ListFeeItems lists fee item revisions
func (s *FeeCatalogService) ListFeeItems(ctx context.Context, filter catalog.FeeItemFilter) ([]catalog.FeeItemDefinition, int64, error) {
	return s.feeItems.FindAll(ctx, filter)
}

func sameApplicability(a, b catalog.Applicability) bool {
	if a.Scope != b.Scope || a.Category != b.Category || a.ClassID != b.ClassID || a.SectionID != b.SectionID {
		return false
	}
	switch {
	case a.StudentID == nil && b.StudentID == nil:
		return true
	case a.StudentID == nil || b.StudentID == nil:
		return false
	}
	return *a.StudentID == *b.StudentID
}

func windowsOverlap(a, b *catalog.FeeItemDefinition) bool {
	aEnd, bEnd := a.WindowEnd(), b.WindowEnd()
	if !aEnd.IsZero() && !aEnd.After(b.EffectiveFrom) {
		return false
	}
	if !bEnd.IsZero() && !bEnd.After(a.EffectiveFrom) {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Discounts
// ---------------------------------------------------------------------------

// CreateDiscount creates an active discount rule
func (s *FeeCatalogService) CreateDiscount(ctx context.Context, params catalog.DiscountRuleParams) (*catalog.DiscountRule, error) {
	if err := s.checkDiscountCurrency(params); err != nil {
		return nil, err
	}
	rule, err := catalog.NewDiscountRule(params)
	if err != nil {
		return nil, err
	}
	if err := s.discounts.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Discount rule created",
		zap.String("discount_rule_id", rule.ID.String()),
		zap.String("target", string(rule.Target)),
		zap.String("item_key", rule.ItemKey))
	return rule, nil
}

// UpdateDiscount replaces a discount rule's attributes
func (s *FeeCatalogService) UpdateDiscount(ctx context.Context, id uuid.UUID, params catalog.DiscountRuleParams) (*catalog.DiscountRule, error) {
	if err := s.checkDiscountCurrency(params); err != nil {
		return nil, err
	}
	rule, err := s.discounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rule.Update(params); err != nil {
		return nil, err
	}
	if err := s.discounts.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Discount rule updated", zap.String("discount_rule_id", rule.ID.String()))
	return rule, nil
}

// DeactivateDiscount withdraws a discount rule
func (s *FeeCatalogService) DeactivateDiscount(ctx context.Context, id uuid.UUID) (*catalog.DiscountRule, error) {
	rule, err := s.discounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Deactivate()
	if err := s.discounts.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Discount rule deactivated", zap.String("discount_rule_id", rule.ID.String()))
	return rule, nil
}

// GetDiscount returns one discount rule
func (s *FeeCatalogService) GetDiscount(ctx context.Context, id uuid.UUID) (*catalog.DiscountRule, error) {
	return s.discounts.FindByID(ctx, id)
}

// ListDiscounts lists discount rules
func (s *FeeCatalogService) ListDiscounts(ctx context.Context, filter catalog.DiscountRuleFilter) ([]catalog.DiscountRule, int64, error) {
	return s.discounts.FindAll(ctx, filter)
}

func (s *FeeCatalogService) checkDiscountCurrency(p catalog.DiscountRuleParams) error {
	if p.Kind == catalog.DiscountKindFixedAmount {
		if err := s.checkCurrency(p.Amount, "Amount"); err != nil {
			return err
		}
	}
	if p.Cap != nil {
		return s.checkCurrency(*p.Cap, "Cap")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fine rules
// ---------------------------------------------------------------------------

// CreateFineRule creates an active fine rule
func (s *FeeCatalogService) CreateFineRule(ctx context.Context, params catalog.FineRuleParams) (*catalog.FineRule, error) {
	if params.Kind == catalog.FineKindFixedAmount {
		if err := s.checkCurrency(params.Amount, "Amount"); err != nil {
			return nil, err
		}
	}
	if params.Cap != nil {
		if err := s.checkCurrency(*params.Cap, "Cap"); err != nil {
			return nil, err
		}
	}
	rule, err := catalog.NewFineRule(params)
	if err != nil {
		return nil, err
	}
	if err := s.fines.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Fine rule created",
		zap.String("fine_rule_id", rule.ID.String()),
		zap.String("kind", string(rule.Kind)))
	return rule, nil
}

// DeactivateFineRule withdraws a fine rule
func (s *FeeCatalogService) DeactivateFineRule(ctx context.Context, id uuid.UUID) (*catalog.FineRule, error) {
	rule, err := s.fines.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Deactivate()
	if err := s.fines.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Fine rule deactivated", zap.String("fine_rule_id", rule.ID.String()))
	return rule, nil
}

// ListFineRules lists fine rules
func (s *FeeCatalogService) ListFineRules(ctx context.Context, filter shared.Filter) ([]catalog.FineRule, int64, error) {
	return s.fines.FindAll(ctx, filter)
}

// ---------------------------------------------------------------------------
// Student profiles
// ---------------------------------------------------------------------------

// ProfileRequest is a student profile pushed by the school application
type ProfileRequest struct {
	StudentID uuid.UUID
	FullName  string
	ClassID   string
	SectionID string
	Category  string
	Active    *bool
}

// PutProfile creates or replaces a student's profile
func (s *FeeCatalogService) PutProfile(ctx context.Context, req ProfileRequest) (*catalog.StudentProfile, error) {
	profile, err := catalog.NewStudentProfile(req.StudentID, req.FullName, req.ClassID, req.SectionID, req.Category)
	if err != nil {
		return nil, err
	}
	if req.Active != nil && !*req.Active {
		profile.Deactivate()
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, err
	}
	s.logger.Info("Student profile saved",
		zap.String("student_id", profile.StudentID.String()),
		zap.String("class_id", profile.ClassID),
		zap.String("status", string(profile.Status)))
	return profile, nil
}

// StudentProfile returns a student's profile, NotFound for unknown students
func (s *FeeCatalogService) StudentProfile(ctx context.Context, studentID uuid.UUID) (*catalog.StudentProfile, error) {
	return s.profiles.FindByID(ctx, studentID)
}

// ---------------------------------------------------------------------------
// Resolve queries
// ---------------------------------------------------------------------------

// ApplicableItems returns the fee item revisions billable to the student in the period
func (s *FeeCatalogService) ApplicableItems(ctx context.Context, profile catalog.StudentProfile, period valueobject.BillingPeriod) ([]catalog.ApplicableItem, error) {
	candidates, err := s.feeItems.FindBillable(ctx, period)
	if err != nil {
		return nil, err
	}
	return s.resolver.ApplicableItems(profile, period, candidates)
}

// DiscountLookup loads the student's candidate rules once and returns a
// lookup answering the single discount for each fee item
func (s *FeeCatalogService) DiscountLookup(ctx context.Context, profile catalog.StudentProfile, period valueobject.BillingPeriod) (func(itemKey string) (*catalog.DiscountRule, error), error) {
	rules, err := s.discounts.FindCandidates(ctx, profile)
	if err != nil {
		return nil, err
	}
	return func(itemKey string) (*catalog.DiscountRule, error) {
		return s.resolver.Discount(profile, itemKey, period, rules)
	}, nil
}

// FineRule returns the fine rule in force for the period, nil when none is
func (s *FeeCatalogService) FineRule(ctx context.Context, period valueobject.BillingPeriod) (*catalog.FineRule, error) {
	rules, err := s.fines.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolver.FineRule(period, rules)
}

// ResolveApplicableItems answers which fee items apply to a student in a period
func (s *FeeCatalogService) ResolveApplicableItems(ctx context.Context, studentID uuid.UUID, period valueobject.BillingPeriod) ([]catalog.ApplicableItem, error) {
	profile, err := s.profiles.FindByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.ApplicableItems(ctx, *profile, period)
}

// ResolveDiscount answers which discount applies to one fee item of a student
func (s *FeeCatalogService) ResolveDiscount(ctx context.Context, studentID uuid.UUID, itemKey string, period valueobject.BillingPeriod) (*catalog.DiscountRule, error) {
	profile, err := s.profiles.FindByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	lookup, err := s.DiscountLookup(ctx, *profile, period)
	if err != nil {
		return nil, err
	}
	return lookup(itemKey)
}
