package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bikeshare/internal/handler"
	"bikeshare/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	AuthHandler    *handler.AuthHandler
	RideHandler    *handler.RideHandler
	PaymentHandler *handler.PaymentHandler
	BikeHandler    *handler.BikeHandler
	PricingHandler *handler.PricingHandler
	RouteHandler   *handler.RouteHandler
	Tokens         *middleware.TokenManager
	ServiceToken   string
	AllowedOrigins []string
	Logger         *slog.Logger
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/auth/login", deps.AuthHandler.Login)

	// Collaborator callbacks.
	internal := v1.Group("/internal", middleware.RequireServiceToken(deps.ServiceToken))
	{
		internal.POST("/battery/low-battery", deps.BikeHandler.LowBattery)
	}

	authed := v1.Group("", middleware.Authenticate(deps.Tokens), middleware.NewRelicAttributes())
	admin := middleware.RequireAdmin()
	idem := middleware.RequireIdempotencyKey()

	// Ride lifecycle.
	authed.POST("/unlock", idem, deps.RideHandler.Unlock)
	authed.POST("/lock", idem, deps.RideHandler.Lock)
	rides := authed.Group("/rides")
	{
		rides.GET("/:id", deps.RideHandler.GetRide)
		rides.POST("/:id/telemetry", deps.RideHandler.Telemetry)
	}

	// Fleet.
	bikes := authed.Group("/bikes")
	{
		bikes.GET("", deps.BikeHandler.List)
		bikes.GET("/:id", deps.BikeHandler.GetBike)
		bikes.PATCH("/:id", admin, deps.BikeHandler.Patch)
	}

	// Payments are an operator surface.
	payments := authed.Group("/payments", admin)
	{
		payments.POST("/authorize", idem, deps.PaymentHandler.Authorize)
		payments.POST("/capture", idem, deps.PaymentHandler.Capture)
		payments.POST("/refund", idem, deps.PaymentHandler.Refund)
		payments.GET("/summary", deps.PaymentHandler.Summary)
		payments.GET("/:id", deps.PaymentHandler.GetPayment)
	}

	// Pricing.
	pricing := authed.Group("/pricing")
	{
		pricing.GET("/config", deps.PricingHandler.GetConfig)
		pricing.PUT("/config", admin, deps.PricingHandler.UpdateConfig)
		pricing.GET("/current", deps.PricingHandler.Current)
		pricing.GET("/plans", deps.PricingHandler.Plans)
	}

	authed.POST("/routes", deps.RouteHandler.Compute)

	return router
}
