package handler

import (
	"strings"
	"time"

	catalogapp "github.com/feeledger/backend/internal/application/catalog"
	"github.com/feeledger/backend/internal/domain/catalog"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CatalogHandler manages fee items, discount rules and fine rules
type CatalogHandler struct {
	BaseHandler
	catalog  *catalogapp.FeeCatalogService
	currency valueobject.Currency
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(feeCatalog *catalogapp.FeeCatalogService, currency valueobject.Currency) *CatalogHandler {
	return &CatalogHandler{catalog: feeCatalog, currency: currency}
}

// ApplicabilityRequest selects the students a fee item applies to
type ApplicabilityRequest struct {
	Scope     string `json:"scope" binding:"required,oneof=STUDENT CATEGORY SECTION CLASS ALL"`
	StudentID string `json:"studentId" binding:"omitempty,uuid"`
	Category  string `json:"category" binding:"max=50"`
	ClassID   string `json:"classId" binding:"max=50"`
	SectionID string `json:"sectionId" binding:"max=50"`
}

// FeeItemRequest creates or revises a fee item. On revision the item key
// may be omitted.
type FeeItemRequest struct {
	dto.AmountInput
	ItemKey       string               `json:"itemKey" binding:"max=50"`
	Name          string               `json:"name" binding:"required,min=1,max=200"`
	Description   string               `json:"description" binding:"max=1000"`
	Frequency     string               `json:"frequency" binding:"required,oneof=ONE_TIME MONTHLY QUARTERLY TERM YEARLY"`
	Applicability ApplicabilityRequest `json:"applicability"`
	EffectiveFrom string               `json:"effectiveFrom" binding:"required,datetime=2006-01-02"`
	EffectiveTo   string               `json:"effectiveTo" binding:"omitempty,datetime=2006-01-02"`
	SortOrder     int                  `json:"sortOrder" binding:"gte=0"`
}

// DiscountRequest creates or replaces a discount rule
type DiscountRequest struct {
	Name            string           `json:"name" binding:"required,min=1,max=200"`
	Target          string           `json:"target" binding:"required,oneof=STUDENT CATEGORY"`
	StudentID       string           `json:"studentId" binding:"omitempty,uuid"`
	Category        string           `json:"category" binding:"max=50"`
	ItemKey         string           `json:"itemKey" binding:"max=50"`
	Kind            string           `json:"kind" binding:"required,oneof=FIXED_AMOUNT PERCENTAGE"`
	Amount          *dto.AmountInput `json:"amount"`
	RateBasisPoints int64            `json:"rateBasisPoints" binding:"gte=0,lte=10000"`
	Cap             *dto.AmountInput `json:"cap"`
	ValidFrom       string           `json:"validFrom" binding:"required,datetime=2006-01-02"`
	ValidTo         string           `json:"validTo" binding:"omitempty,datetime=2006-01-02"`
}

// FineRuleRequest creates a late fine rule
type FineRuleRequest struct {
	Name            string           `json:"name" binding:"required,min=1,max=200"`
	Kind            string           `json:"kind" binding:"required,oneof=FIXED_AMOUNT PERCENTAGE_PER_DAY"`
	Amount          *dto.AmountInput `json:"amount"`
	RateBasisPoints int64            `json:"rateBasisPoints" binding:"gte=0,lte=10000"`
	Cap             *dto.AmountInput `json:"cap"`
	GraceDays       int              `json:"graceDays" binding:"gte=0,lte=365"`
	ValidFrom       string           `json:"validFrom" binding:"required,datetime=2006-01-02"`
	ValidTo         string           `json:"validTo" binding:"omitempty,datetime=2006-01-02"`
}

// FeeItemQuery filters the fee item list
type FeeItemQuery struct {
	dto.ListRequest
	ItemKey string `form:"itemKey"`
	Status  string `form:"status" binding:"omitempty,oneof=ACTIVE SUPERSEDED RETIRED"`
	Scope   string `form:"scope" binding:"omitempty,oneof=STUDENT CATEGORY SECTION CLASS ALL"`
}

// DiscountQuery filters the discount rule list
type DiscountQuery struct {
	dto.ListRequest
	StudentID  string `form:"studentId" binding:"omitempty,uuid"`
	Category   string `form:"category"`
	ActiveOnly bool   `form:"activeOnly"`
}

// ---------------------------------------------------------------------------
// Fee items
// ---------------------------------------------------------------------------

// ListFeeItems lists fee item revisions.
//
// @Summary      List fee items
// @Tags         catalog
// @Produce      json
// @Param        itemKey query string false "Item key"
// @Param        status query string false "Revision status" Enums(ACTIVE, SUPERSEDED, RETIRED)
// @Param        scope query string false "Applicability scope" Enums(STUDENT, CATEGORY, SECTION, CLASS, ALL)
// @Param        page query int false "Page number"
// @Param        pageSize query int false "Page size"
// @Success      200 {object} dto.Response{data=[]dto.FeeItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fee-items [get]
func (h *CatalogHandler) ListFeeItems(c *gin.Context) {
	var query FeeItemQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}
	filter := catalog.FeeItemFilter{Filter: query.ToFilter(), ItemKey: query.ItemKey}
	if query.Status != "" {
		status := catalog.FeeItemStatus(query.Status)
		filter.Status = &status
	}
	if query.Scope != "" {
		scope := catalog.Scope(query.Scope)
		filter.Scope = &scope
	}

	items, total, err := h.catalog.ListFeeItems(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewFeeItemViews(items), total, filter.Page, filter.Limit())
}

// GetFeeItem returns one fee item revision.
//
// @Summary      Get fee item by ID
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Fee item revision ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.FeeItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fee-items/{id} [get]
func (h *CatalogHandler) GetFeeItem(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.catalog.GetFeeItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewFeeItemView(item))
}

// FeeItemRevisions returns every revision of the item the id belongs to, oldest first.
//
// @Summary      List fee item revisions
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Fee item revision ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]dto.FeeItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fee-items/{id}/revisions [get]
func (h *CatalogHandler) FeeItemRevisions(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.catalog.GetFeeItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items, err := h.catalog.FeeItemHistory(c.Request.Context(), item.ItemKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewFeeItemViews(items))
}

// CreateFeeItem creates revision 1 of a fee item.
//
// @Summary      Create a fee item
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        request body FeeItemRequest true "Fee item"
// @Success      201 {object} dto.Response{data=dto.FeeItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fee-items [post]
func (h *CatalogHandler) CreateFeeItem(c *gin.Context) {
	params, ok := h.bindFeeItem(c)
	if !ok {
		return
	}
	item, err := h.catalog.CreateFeeItem(c.Request.Context(), params)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewFeeItemView(item))
}

// ReviseFeeItem supersedes the active revision. Invoices already generated
// keep the amounts they were billed with.
//
// @Summary      Revise a fee item
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Active revision ID" format(uuid)
// @Param        request body FeeItemRequest true "Revised fee item"
// @Success      200 {object} dto.Response{data=dto.FeeItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fee-items/{id} [put]
func (h *CatalogHandler) ReviseFeeItem(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	params, ok := h.bindFeeItem(c)
	if !ok {
		return
	}
	item, err := h.catalog.ReviseFeeItem(c.Request.Context(), id, params)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewFeeItemView(item))
}

// RetireFeeItem stops a fee item from being billed again.
//
// @Summary      Retire a fee item
// @Tags         catalog
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Active revision ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.FeeItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fee-items/{id} [delete]
func (h *CatalogHandler) RetireFeeItem(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.catalog.RetireFeeItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewFeeItemView(item))
}

func (h *CatalogHandler) bindFeeItem(c *gin.Context) (catalog.FeeItemParams, bool) {
	var req FeeItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return catalog.FeeItemParams{}, false
	}
	amount, err := req.ToMoney(h.currency)
	if err != nil {
		h.HandleError(c, err)
		return catalog.FeeItemParams{}, false
	}
	from, to, err := parseWindow(req.EffectiveFrom, req.EffectiveTo)
	if err != nil {
		h.HandleError(c, err)
		return catalog.FeeItemParams{}, false
	}
	return catalog.FeeItemParams{
		ItemKey:     req.ItemKey,
		Name:        req.Name,
		Description: req.Description,
		Amount:      amount,
		Frequency:   catalog.Frequency(req.Frequency),
		Applicability: catalog.Applicability{
			Scope:     catalog.Scope(req.Applicability.Scope),
			StudentID: optionalUUID(req.Applicability.StudentID),
			Category:  req.Applicability.Category,
			ClassID:   req.Applicability.ClassID,
			SectionID: req.Applicability.SectionID,
		},
		EffectiveFrom: from,
		EffectiveTo:   to,
		SortOrder:     req.SortOrder,
	}, true
}

// ---------------------------------------------------------------------------
// Discounts
// ---------------------------------------------------------------------------

// ListDiscounts lists discount rules.
//
// @Summary      List discount rules
// @Tags         catalog
// @Produce      json
// @Param        studentId query string false "Student ID" format(uuid)
// @Param        category query string false "Student category"
// @Param        activeOnly query bool false "Only active rules"
// @Param        page query int false "Page number"
// @Param        pageSize query int false "Page size"
// @Success      200 {object} dto.Response{data=[]dto.DiscountView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/discounts [get]
func (h *CatalogHandler) ListDiscounts(c *gin.Context) {
	var query DiscountQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}
	filter := catalog.DiscountRuleFilter{
		Filter:     query.ToFilter(),
		StudentID:  optionalUUID(query.StudentID),
		Category:   strings.ToUpper(strings.TrimSpace(query.Category)),
		ActiveOnly: query.ActiveOnly,
	}
	rules, total, err := h.catalog.ListDiscounts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewDiscountViews(rules), total, filter.Page, filter.Limit())
}

// GetDiscount returns one discount rule.
//
// @Summary      Get discount rule by ID
// @Tags         catalog
// @Produce      json
// @Param        id path string true "Discount rule ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.DiscountView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/discounts/{id} [get]
func (h *CatalogHandler) GetDiscount(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.catalog.GetDiscount(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewDiscountView(rule))
}

// CreateDiscount creates a discount rule.
//
// @Summary      Create a discount rule
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        request body DiscountRequest true "Discount rule"
// @Success      201 {object} dto.Response{data=dto.DiscountView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/discounts [post]
func (h *CatalogHandler) CreateDiscount(c *gin.Context) {
	params, ok := h.bindDiscount(c)
	if !ok {
		return
	}
	rule, err := h.catalog.CreateDiscount(c.Request.Context(), params)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewDiscountView(rule))
}

// UpdateDiscount replaces a discount rule's attributes.
//
// @Summary      Update a discount rule
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Discount rule ID" format(uuid)
// @Param        request body DiscountRequest true "Discount rule"
// @Success      200 {object} dto.Response{data=dto.DiscountView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/discounts/{id} [put]
func (h *CatalogHandler) UpdateDiscount(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	params, ok := h.bindDiscount(c)
	if !ok {
		return
	}
	rule, err := h.catalog.UpdateDiscount(c.Request.Context(), id, params)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewDiscountView(rule))
}

// DeactivateDiscount stops a discount rule from applying to new invoices.
//
// @Summary      Deactivate a discount rule
// @Tags         catalog
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Discount rule ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.DiscountView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/discounts/{id} [delete]
func (h *CatalogHandler) DeactivateDiscount(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.catalog.DeactivateDiscount(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewDiscountView(rule))
}

func (h *CatalogHandler) bindDiscount(c *gin.Context) (catalog.DiscountRuleParams, bool) {
	var req DiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return catalog.DiscountRuleParams{}, false
	}
	params := catalog.DiscountRuleParams{
		Name:            req.Name,
		Target:          catalog.DiscountTarget(req.Target),
		StudentID:       optionalUUID(req.StudentID),
		Category:        req.Category,
		ItemKey:         req.ItemKey,
		Kind:            catalog.DiscountKind(req.Kind),
		RateBasisPoints: req.RateBasisPoints,
	}
	var err error
	if params.Kind == catalog.DiscountKindFixedAmount {
		if params.Amount, err = requiredMoney(req.Amount, h.currency); err != nil {
			h.HandleError(c, err)
			return catalog.DiscountRuleParams{}, false
		}
	}
	if params.Cap, err = dto.OptionalMoney(req.Cap, h.currency); err != nil {
		h.HandleError(c, err)
		return catalog.DiscountRuleParams{}, false
	}
	if params.ValidFrom, params.ValidTo, err = parseWindow(req.ValidFrom, req.ValidTo); err != nil {
		h.HandleError(c, err)
		return catalog.DiscountRuleParams{}, false
	}
	return params, true
}

// ---------------------------------------------------------------------------
// Fine rules
// ---------------------------------------------------------------------------

// ListFineRules lists fine rules.
//
// @Summary      List fine rules
// @Tags         catalog
// @Produce      json
// @Param        page query int false "Page number"
// @Param        pageSize query int false "Page size"
// @Success      200 {object} dto.Response{data=[]dto.FineRuleView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fine-rules [get]
func (h *CatalogHandler) ListFineRules(c *gin.Context) {
	var query dto.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}
	filter := query.ToFilter()
	rules, total, err := h.catalog.ListFineRules(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewFineRuleViews(rules), total, filter.Page, filter.Limit())
}

// CreateFineRule creates a late fine rule.
//
// @Summary      Create a fine rule
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        request body FineRuleRequest true "Fine rule"
// @Success      201 {object} dto.Response{data=dto.FineRuleView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fine-rules [post]
func (h *CatalogHandler) CreateFineRule(c *gin.Context) {
	var req FineRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	params := catalog.FineRuleParams{
		Name:            req.Name,
		Kind:            catalog.FineKind(req.Kind),
		RateBasisPoints: req.RateBasisPoints,
		GraceDays:       req.GraceDays,
	}
	var err error
	if params.Kind == catalog.FineKindFixedAmount {
		if params.Amount, err = requiredMoney(req.Amount, h.currency); err != nil {
			h.HandleError(c, err)
			return
		}
	}
	if params.Cap, err = dto.OptionalMoney(req.Cap, h.currency); err != nil {
		h.HandleError(c, err)
		return
	}
	if params.ValidFrom, params.ValidTo, err = parseWindow(req.ValidFrom, req.ValidTo); err != nil {
		h.HandleError(c, err)
		return
	}

	rule, err := h.catalog.CreateFineRule(c.Request.Context(), params)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewFineRuleView(rule))
}

// DeactivateFineRule stops a fine rule from applying at future closes.
//
// @Summary      Deactivate a fine rule
// @Tags         catalog
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Fine rule ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.FineRuleView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /catalog/fine-rules/{id} [delete]
func (h *CatalogHandler) DeactivateFineRule(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rule, err := h.catalog.DeactivateFineRule(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewFineRuleView(rule))
}

func requiredMoney(a *dto.AmountInput, fallback valueobject.Currency) (valueobject.Money, error) {
	if a == nil {
		return valueobject.Money{}, shared.NewValidationError("AMOUNT_REQUIRED", "amount is required for a fixed amount rule")
	}
	return a.ToMoney(fallback)
}

func parseWindow(from, to string) (time.Time, *time.Time, error) {
	start, err := dto.ParseDate(from)
	if err != nil {
		return time.Time{}, nil, shared.NewValidationError("INVALID_DATE", err.Error())
	}
	end, err := dto.ParseOptionalDate(to)
	if err != nil {
		return time.Time{}, nil, shared.NewValidationError("INVALID_DATE", err.Error())
	}
	return start, end, nil
}

// optionalUUID parses an already validated UUID; empty stays nil
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
