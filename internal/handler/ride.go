package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/middleware"
	"bikeshare/internal/service"
)

// RideHandler handles HTTP requests for the ride lifecycle.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// Unlock handles POST /v1/unlock
func (h *RideHandler) Unlock(c *gin.Context) {
	var req service.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.QRPublicID == "" {
		badRequest(c, "qr_public_id is required")
		return
	}

	principal, _ := middleware.PrincipalFrom(c)
	out, err := h.rideService.Unlock(c.Request.Context(), principal, req, middleware.IdempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

// Telemetry handles POST /v1/rides/:id/telemetry
func (h *RideHandler) Telemetry(c *gin.Context) {
	var req service.TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	resp, err := h.rideService.Telemetry(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, resp)
}

// Lock handles POST /v1/lock
func (h *RideHandler) Lock(c *gin.Context) {
	var req service.LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.RideID == "" {
		badRequest(c, "ride_id is required")
		return
	}

	out, err := h.rideService.Lock(c.Request.Context(), req, middleware.IdempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOutcome(c, out)
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, ride)
}
