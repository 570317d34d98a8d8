package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/middleware"
	"bikeshare/internal/service"
)

// BikeHandler handles HTTP requests for the fleet.
type BikeHandler struct {
	bikeService *service.BikeService
}

// NewBikeHandler creates a new BikeHandler.
func NewBikeHandler(bikeService *service.BikeService) *BikeHandler {
	return &BikeHandler{bikeService: bikeService}
}

// List handles GET /v1/bikes?near_lat=&near_lon=&radius_m=
func (h *BikeHandler) List(c *gin.Context) {
	near, err := parseNear(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	bikes, err := h.bikeService.List(c.Request.Context(), near)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, bikes)
}

// GetBike handles GET /v1/bikes/:id
func (h *BikeHandler) GetBike(c *gin.Context) {
	bike, err := h.bikeService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, bike)
}

// Patch handles PATCH /v1/bikes/:id
func (h *BikeHandler) Patch(c *gin.Context) {
	var patch service.BikePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	principal, _ := middleware.PrincipalFrom(c)
	bike, err := h.bikeService.Patch(c.Request.Context(), principal, c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, bike)
}

// LowBattery handles POST /v1/internal/battery/low-battery
func (h *BikeHandler) LowBattery(c *gin.Context) {
	var notice service.LowBatteryNotice
	if err := c.ShouldBindJSON(&notice); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if err := h.bikeService.LowBattery(c.Request.Context(), notice); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, gin.H{"ok": true})
}

// parseNear reads the optional proximity filter. All three parameters are
// required once any of them is present.
func parseNear(c *gin.Context) (*service.NearQuery, error) {
	rawLat, rawLon, rawRadius := c.Query("near_lat"), c.Query("near_lon"), c.Query("radius_m")
	if rawLat == "" && rawLon == "" && rawRadius == "" {
		return nil, nil
	}

	var q service.NearQuery
	var err error
	if q.Lat, err = strconv.ParseFloat(rawLat, 64); err != nil {
		return nil, errInvalidQuery("near_lat")
	}
	if q.Lon, err = strconv.ParseFloat(rawLon, 64); err != nil {
		return nil, errInvalidQuery("near_lon")
	}
	if q.RadiusM, err = strconv.ParseFloat(rawRadius, 64); err != nil || q.RadiusM <= 0 {
		return nil, errInvalidQuery("radius_m")
	}
	return &q, nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string { return "invalid or missing query parameter " + string(e) }
