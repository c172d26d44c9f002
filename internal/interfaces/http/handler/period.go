package handler

import (
	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// PeriodHandler handles period close and reopen
type PeriodHandler struct {
	BaseHandler
	reconciliation *financeapp.ReconciliationService
}

// NewPeriodHandler creates a new PeriodHandler
func NewPeriodHandler(reconciliation *financeapp.ReconciliationService) *PeriodHandler {
	return &PeriodHandler{reconciliation: reconciliation}
}

// ClosePeriodQuery carries the close options
type ClosePeriodQuery struct {
	Force bool `form:"force"`
}

// Close reconciles every open invoice of the period and carries balances forward.
// A close that could not reach every student answers with complete=false
// and leaves the period open for a rerun.
//
// @Summary      Close a billing period
// @Tags         periods
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        period path string true "Billing period key"
// @Param        force query bool false "Close before the period has ended"
// @Success      200 {object} dto.Response{data=dto.CloseReportView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /periods/{period}/close [post]
func (h *PeriodHandler) Close(c *gin.Context) {
	var query ClosePeriodQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}

	report, err := h.reconciliation.ClosePeriod(c.Request.Context(), c.Param("period"), query.Force, h.actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CloseReportView{Report: report, Complete: report.Complete()})
}

// Reopen marks a closed period open again. Reconciled invoices stay reconciled.
//
// @Summary      Reopen a billing period
// @Tags         periods
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        period path string true "Billing period key"
// @Success      200 {object} dto.Response{data=dto.PeriodCloseView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /periods/{period}/reopen [post]
func (h *PeriodHandler) Reopen(c *gin.Context) {
	pc, err := h.reconciliation.ReopenPeriod(c.Request.Context(), c.Param("period"), h.actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPeriodCloseView(pc))
}

// Get returns the latest close record of the period.
//
// @Summary      Get a period close record
// @Tags         periods
// @Produce      json
// @Param        period path string true "Billing period key"
// @Success      200 {object} dto.Response{data=dto.PeriodCloseView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /periods/{period} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	pc, err := h.reconciliation.GetPeriodClose(c.Request.Context(), c.Param("period"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPeriodCloseView(pc))
}

// List pages through close records.
//
// @Summary      List period close records
// @Tags         periods
// @Produce      json
// @Param        page query int false "Page number"
// @Param        pageSize query int false "Page size"
// @Success      200 {object} dto.Response{data=[]dto.PeriodCloseView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	var query dto.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err)
		return
	}
	filter := query.ToFilter()
	closes, total, err := h.reconciliation.ListPeriodCloses(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	views := make([]dto.PeriodCloseView, 0, len(closes))
	for _, pc := range closes {
		views = append(views, dto.NewPeriodCloseView(pc))
	}
	h.SuccessWithMeta(c, views, total, filter.Page, filter.Limit())
}

// Report returns a time-limited download link for the archived close report.
//
// @Summary      Get the archived close report link
// @Tags         periods
// @Produce      json
// @Param        period path string true "Billing period key"
// @Success      200 {object} dto.Response{data=dto.ArchivedReportView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /periods/{period}/report [get]
func (h *PeriodHandler) Report(c *gin.Context) {
	archived, err := h.reconciliation.ReportURL(c.Request.Context(), c.Param("period"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewArchivedReportView(archived))
}
