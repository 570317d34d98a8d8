package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/service"
)

// ReplayedHeader marks responses served from idempotency storage.
const ReplayedHeader = "Idempotent-Replayed"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NoParkResponse is the 409 body of a lock attempt inside a no-park zone.
type NoParkResponse struct {
	Error               string             `json:"error"`
	NearestParkingRoute *service.RouteView `json:"nearest_parking_route"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	var noPark *service.RouteConflictError
	if errors.As(err, &noPark) {
		c.JSON(http.StatusConflict, NoParkResponse{
			Error:               "Cannot lock in no-park zone",
			NearestParkingRoute: noPark.Route,
		})
		return
	}

	code := mapErrorToHTTPStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.JSON(code, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// respondOutcome writes the stored bytes of a guarded call unchanged so a
// replay is byte-identical to the first response.
func respondOutcome(c *gin.Context, out *service.Outcome) {
	if out.Replayed {
		c.Header(ReplayedHeader, "true")
	}
	c.Data(out.Status, "application/json; charset=utf-8", out.Body)
}

// badRequest rejects a malformed body.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// mapErrorToHTTPStatus maps the service error taxonomy to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
