package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/middleware"
	"bikeshare/internal/service"
)

// PricingHandler handles HTTP requests for dynamic pricing.
type PricingHandler struct {
	pricingService *service.PricingService
}

// NewPricingHandler creates a new PricingHandler.
func NewPricingHandler(pricingService *service.PricingService) *PricingHandler {
	return &PricingHandler{pricingService: pricingService}
}

// GetConfig handles GET /v1/pricing/config
func (h *PricingHandler) GetConfig(c *gin.Context) {
	cfg, err := h.pricingService.GetConfig(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, cfg)
}

// UpdateConfig handles PUT /v1/pricing/config
func (h *PricingHandler) UpdateConfig(c *gin.Context) {
	var upd service.PricingConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	principal, _ := middleware.PrincipalFrom(c)
	cfg, err := h.pricingService.UpdateConfig(c.Request.Context(), principal, upd)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, cfg)
}

// Current handles GET /v1/pricing/current
func (h *PricingHandler) Current(c *gin.Context) {
	snap, err := h.pricingService.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, snap)
}

// Plans handles GET /v1/pricing/plans
func (h *PricingHandler) Plans(c *gin.Context) {
	plans, err := h.pricingService.Plans(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, plans)
}
