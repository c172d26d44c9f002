package handler

import (
	"net/http"

	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles payment collection and reversal
type PaymentHandler struct {
	BaseHandler
	collections *financeapp.CollectionService
	currency    valueobject.Currency
}

// NewPaymentHandler creates a new PaymentHandler. Amounts sent without a
// currency are read in currency.
func NewPaymentHandler(collections *financeapp.CollectionService, currency valueobject.Currency) *PaymentHandler {
	return &PaymentHandler{collections: collections, currency: currency}
}

// CollectPaymentRequest records money received at the counter or the bank
type CollectPaymentRequest struct {
	dto.AmountInput
	StudentID         string `json:"studentId" binding:"required,uuid"`
	Method            string `json:"method" binding:"required,max=20"`
	ExternalReference string `json:"externalReference" binding:"max=128"`
	Note              string `json:"note" binding:"max=500"`
}

// OnlinePaymentWebhook is the confirmation pushed by the payment gateway
type OnlinePaymentWebhook struct {
	dto.AmountInput
	StudentID string `json:"studentId" binding:"required,uuid"`
	Reference string `json:"reference" binding:"required,max=128"`
	Note      string `json:"note" binding:"max=500"`
}

// ReversePaymentRequest undoes a payment
type ReversePaymentRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// Collect records a payment and allocates it across the student's dues.
// A replayed reference answers 200 with the original payment.
//
// @Summary      Collect a payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        request body CollectPaymentRequest true "Payment received"
// @Success      201 {object} dto.Response{data=dto.CollectionView}
// @Success      200 {object} dto.Response{data=dto.CollectionView} "Replayed reference"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/collect [post]
func (h *PaymentHandler) Collect(c *gin.Context) {
	var req CollectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	amount, err := req.ToMoney(h.currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	method, err := finance.ParsePaymentMethod(req.Method)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out, err := h.collections.Collect(c.Request.Context(), financeapp.CollectPaymentRequest{
		StudentID:         uuid.MustParse(req.StudentID),
		Amount:            amount,
		Method:            method,
		ExternalReference: req.ExternalReference,
		Note:              req.Note,
		Actor:             h.actor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondCollection(c, out)
}

// OnlineWebhook confirms a gateway payment. Redelivery of a reference is
// answered with the original payment.
//
// @Summary      Confirm an online payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        X-Webhook-Secret header string false "Shared webhook secret"
// @Param        request body OnlinePaymentWebhook true "Gateway confirmation"
// @Success      201 {object} dto.Response{data=dto.CollectionView}
// @Success      200 {object} dto.Response{data=dto.CollectionView} "Replayed reference"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/webhooks/online [post]
func (h *PaymentHandler) OnlineWebhook(c *gin.Context) {
	var req OnlinePaymentWebhook
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	amount, err := req.ToMoney(h.currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out, err := h.collections.ConfirmOnlinePayment(c.Request.Context(), financeapp.OnlinePaymentRequest{
		StudentID: uuid.MustParse(req.StudentID),
		Amount:    amount,
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondCollection(c, out)
}

func (h *PaymentHandler) respondCollection(c *gin.Context, out *financeapp.CollectionOutcome) {
	view := dto.NewCollectionView(out)
	if out.Replayed {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(view))
		return
	}
	h.Created(c, view)
}

// Reverse undoes a payment and reopens what it settled.
//
// @Summary      Reverse a payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Actor-ID header string false "Acting user, recorded on audit entries"
// @Param        id path string true "Payment ID" format(uuid)
// @Param        request body ReversePaymentRequest true "Reversal reason"
// @Success      200 {object} dto.Response{data=dto.ReversalView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/{id}/reverse [post]
func (h *PaymentHandler) Reverse(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req ReversePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}

	res, err := h.collections.ReversePayment(c.Request.Context(), financeapp.ReversePaymentRequest{
		PaymentID: id,
		Reason:    req.Reason,
		Actor:     h.actor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewReversalView(res))
}

// Get returns one payment with its allocations.
//
// @Summary      Get payment by ID
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.PaymentView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.collections.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPaymentView(view.Payment, view.Reversed))
}

// ListByStudent returns a student's payments, oldest first.
//
// @Summary      List a student's payments
// @Tags         students
// @Produce      json
// @Param        id path string true "Student ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]dto.PaymentView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /students/{id}/payments [get]
func (h *PaymentHandler) ListByStudent(c *gin.Context) {
	studentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	payments, err := h.collections.ListPayments(c.Request.Context(), studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	views := make([]dto.PaymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, dto.NewPaymentView(p.Payment, p.Reversed))
	}
	h.Success(c, views)
}
