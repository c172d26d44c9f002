package handler

import (
	catalogapp "github.com/feeledger/backend/internal/application/catalog"
	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// StudentHandler serves a student's ledger and billing profile
type StudentHandler struct {
	BaseHandler
	ledger   *financeapp.LedgerQueryService
	catalog  *catalogapp.FeeCatalogService
	calendar valueobject.Calendar
}

// NewStudentHandler creates a new StudentHandler
func NewStudentHandler(ledger *financeapp.LedgerQueryService, feeCatalog *catalogapp.FeeCatalogService, calendar valueobject.Calendar) *StudentHandler {
	return &StudentHandler{ledger: ledger, catalog: feeCatalog, calendar: calendar}
}

// PutProfileRequest is the profile pushed by the school application
type PutProfileRequest struct {
	FullName  string `json:"fullName" binding:"max=200"`
	ClassID   string `json:"classId" binding:"required,max=50"`
	SectionID string `json:"sectionId" binding:"max=50"`
	Category  string `json:"category" binding:"max=50"`
	Active    *bool  `json:"active"`
}

// ApplicableItemsQuery selects the period to resolve fee items for
type ApplicableItemsQuery struct {
	Period string `form:"period" binding:"required,billingperiod"`
}

// Balance returns the folded balance with a checksum of the ledger it came from.
//
// @Summary      Get a student's balance
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.BalanceView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/balance [get]
func (h *StudentHandler) Balance(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(c.Request.Context(), studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBalanceView(balance))
}

// Statement returns every ledger entry of the student.
//
// @Summary      Get a student's statement
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.StatementView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/statement [get]
func (h *StudentHandler) Statement(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	statement, err := h.ledger.GetStatement(c.Request.Context(), studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewStatementView(statement))
}

// CarryForwards lists the student's carry-forward entries.
//
// @Summary      List a student's carry-forwards
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]dto.CarryForwardView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/carry-forwards [get]
func (h *StudentHandler) CarryForwards(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.ledger.ListCarryForwards(c.Request.Context(), studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewCarryForwardViews(entries))
}

// PutProfile creates or replaces the student's billing profile.
//
// @Summary      Put a student's billing profile
// @Tags         students
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Student ID" format(uuid)
// @Param        request body PutProfileRequest true "Billing profile"
// @Success      200 {object} dto.Response{data=dto.ProfileView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/profile [put]
func (h *StudentHandler) PutProfile(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req PutProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	profile, err := h.catalog.PutProfile(c.Request.Context(), catalogapp.ProfileRequest{
		StudentID: studentID,
		FullName:  req.FullName,
		ClassID:   req.ClassID,
		SectionID: req.SectionID,
		Category:  req.Category,
		Active:    req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewProfileView(profile))
}

// GetProfile returns the student's billing profile.
//
// @Summary      Get a student's billing profile
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.ProfileView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/profile [get]
func (h *StudentHandler) GetProfile(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	profile, err := h.catalog.StudentProfile(c.Request.Context(), studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewProfileView(profile))
}

// ApplicableItems previews the fee items an invoice for the period would bill.
//
// @Summary      Preview applicable fee items
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Param        period query string true "Billing period key"
// @Success      200 {object} dto.Response{data=[]dto.ApplicableItemView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/fee-items [get]
func (h *StudentHandler) ApplicableItems(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var query ApplicableItemsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}
	period, err := h.calendar.ParsePeriod(query.Period)
	if err != nil {
		h.HandleError(c, shared.NewValidationError("INVALID_PERIOD", err.Error()))
		return
	}

	items, err := h.catalog.ResolveApplicableItems(c.Request.Context(), studentID, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewApplicableItemViews(items))
}
