package handler

import (
	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InvoiceHandler handles invoice generation and lookup
type InvoiceHandler struct {
	BaseHandler
	invoices *financeapp.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices *financeapp.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// GenerateInvoiceRequest asks for one student's invoice for a billing period
type GenerateInvoiceRequest struct {
	StudentID string `json:"studentId" binding:"required,uuid"`
	Period    string `json:"period" binding:"required,billingperiod"`
}

// VoidInvoiceRequest cancels an invoice
type VoidInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// ListInvoicesQuery filters a student's invoices
type ListInvoicesQuery struct {
	dto.ListRequest
	Period string `form:"period" binding:"omitempty,billingperiod"`
}

// Generate creates the invoice for a student and period.
//
// @Summary      Generate an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        request body GenerateInvoiceRequest true "Student and billing period"
// @Success      201 {object} dto.Response{data=dto.GeneratedInvoiceView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/generate [post]
func (h *InvoiceHandler) Generate(c *gin.Context) {
	var req GenerateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	res, err := h.invoices.Generate(c.Request.Context(), financeapp.GenerateInvoiceRequest{
		StudentID: uuid.MustParse(req.StudentID),
		Period:    req.Period,
		Actor:     h.actor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.GeneratedInvoiceView{
		Invoice:       dto.NewInvoiceView(res.Invoice),
		CreditApplied: res.CreditApplied,
	})
}

// Void cancels an invoice, turning anything already paid on it into credit.
//
// @Summary      Void an invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body VoidInvoiceRequest true "Void reason"
// @Success      200 {object} dto.Response{data=dto.VoidView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id}/void [post]
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req VoidInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	res, err := h.invoices.Void(c.Request.Context(), financeapp.VoidInvoiceRequest{
		InvoiceID: id,
		Reason:    req.Reason,
		Actor:     h.actor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewVoidView(res))
}

// Get returns one invoice with its lines.
//
// @Summary      Get invoice by ID
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.InvoiceView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewInvoiceView(inv))
}

// ListByStudent pages through a student's invoices, optionally for one period.
//
// @Summary      List a student's invoices
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Param        period query string false "Billing period key"
// @Param        page query int false "Page number"
// @Param        pageSize query int false "Page size"
// @Success      200 {object} dto.Response{data=[]dto.InvoiceView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/invoices [get]
func (h *InvoiceHandler) ListByStudent(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var query ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}

	filter := query.ToFilter()
	invoices, total, err := h.invoices.ListInvoices(c.Request.Context(), financeapp.ListInvoicesRequest{
		Filter:    filter,
		StudentID: studentID,
		Period:    query.Period,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewInvoiceViews(invoices), total, filter.Page, filter.Limit())
}
