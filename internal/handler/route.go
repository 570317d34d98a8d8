package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/service"
)

// RouteHandler handles ad-hoc routing requests.
type RouteHandler struct {
	routeService *service.RouteService
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(routeService *service.RouteService) *RouteHandler {
	return &RouteHandler{routeService: routeService}
}

// Compute handles POST /v1/routes
func (h *RouteHandler) Compute(c *gin.Context) {
	var req service.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	route, err := h.routeService.Compute(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, route)
}
