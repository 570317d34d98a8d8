package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/middleware"
	"bikeshare/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// Authorize handles POST /v1/payments/authorize
func (h *PaymentHandler) Authorize(c *gin.Context) {
	var req service.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.RideID == "" {
		badRequest(c, "ride_id is required")
		return
	}

	out, err := h.paymentService.Authorize(c.Request.Context(), req, middleware.IdempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

// Capture handles POST /v1/payments/capture
func (h *PaymentHandler) Capture(c *gin.Context) {
	h.action(c, h.paymentService.Capture)
}

// Refund handles POST /v1/payments/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	h.action(c, h.paymentService.Refund)
}

type paymentAction func(ctx context.Context, req service.PaymentActionRequest, idemKey string) (*service.Outcome, error)

func (h *PaymentHandler) action(c *gin.Context, do paymentAction) {
	var req service.PaymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.PaymentID == "" {
		badRequest(c, "payment_id is required")
		return
	}

	out, err := do(c.Request.Context(), req, middleware.IdempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

// GetPayment handles GET /v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, payment)
}

// Summary handles GET /v1/payments/summary
func (h *PaymentHandler) Summary(c *gin.Context) {
	summary, err := h.paymentService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, summary)
}
