package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bikeshare/internal/app"
	"bikeshare/internal/config"
	"bikeshare/internal/handler"
	"bikeshare/internal/idempotency"
	"bikeshare/internal/logging"
	"bikeshare/internal/middleware"
	"bikeshare/internal/notify"
	"bikeshare/internal/payments"
	bikeredis "bikeshare/internal/redis"
	"bikeshare/internal/repository"
	"bikeshare/internal/repository/memory"
	"bikeshare/internal/repository/postgres"
	"bikeshare/internal/routing"
	"bikeshare/internal/seed"
	"bikeshare/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", slog.Any("error", err))
		} else {
			logger.Info("New Relic enabled", slog.String("app", cfg.NewRelic.AppName))
		}
	}

	store, closeStore, err := openStore(ctx, cfg, nrApp, logger)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	if cfg.Storage.Seed || cfg.Storage.Driver == "memory" {
		if err := seed.Demo(ctx, store, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), logger); err != nil {
			logger.Error("failed to seed demo data", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			logger.Warn("redis unavailable, running without location index and replay cache", slog.Any("error", err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info("connected to redis", slog.String("addr", cfg.Redis.Addr))
		}
	}

	dispatcher, closeSinks := newDispatcher(cfg, logger)
	defer closeSinks()
	dispatcher.Start(context.Background())

	server := wireServer(ctx, store, redisClient, dispatcher, nrApp, cfg, logger)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Server.Port), slog.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", slog.Any("error", err))
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// openStore selects the persistence backend.
func openStore(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *slog.Logger) (repository.Store, func(), error) {
	if cfg.Storage.Driver == "memory" {
		logger.Info("using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to postgres", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.DBName))

	if cfg.Storage.Migrate {
		applied, err := postgres.Migrate(ctx, db, cfg.Storage.MigrationsDir)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("migrations applied", slog.Any("files", applied))
	}
	return postgres.NewStore(db), func() { closeDB(db, logger) }, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("closing database", slog.Any("error", err))
	}
}

// newDispatcher builds the notification boundary and its sinks.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*notify.Dispatcher, func()) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}
	closers := []func() error{}

	if cfg.Notify.BatteryURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.BatteryURL, cfg.Auth.ServiceToken, &http.Client{Timeout: cfg.Notify.Timeout}))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, kafkaSink)
		closers = append(closers, kafkaSink.Close)
	}

	d := notify.NewDispatcher(notify.Options{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     cfg.Notify.Backoff,
		Timeout:     cfg.Notify.Timeout,
	}, logger, sinks...)

	return d, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing notification sink", slog.Any("error", err))
			}
		}
	}
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	ctx context.Context,
	store repository.Store,
	redisClient *redis.Client,
	notifier service.Notifier,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) *http.Server {
	// Redis-backed helpers stay nil when Redis is off.
	var cache idempotency.Cache
	var locations service.LocationIndex
	if redisClient != nil {
		cache = bikeredis.NewReplayCache(redisClient, cfg.Redis.ReplayTTL)
		locationStore := bikeredis.NewLocationStore(redisClient, cfg.Redis.GeoKey)
		locations = app.NewLocationIndex(locationStore)
		primeLocations(ctx, store, locationStore, logger)
	}

	rounding, _ := service.ParseRoundingMode(cfg.Ride.Rounding)
	rideCfg := service.RideConfig{
		TelemetryMinInterval: cfg.Ride.TelemetryMinInterval,
		GeofenceBufferM:      cfg.Ride.GeofenceBufferM,
		Rounding:             rounding,
		MET:                  cfg.Ride.MET,
		DefaultWeightKg:      cfg.Ride.DefaultWeightKg,
	}

	var psp payments.PSP = payments.NewMockPSP()
	if cfg.Payments.StripeAPIKey != "" {
		psp = payments.NewStripePSP(cfg.Payments.StripeAPIKey, cfg.Payments.StripePaymentMethod)
		logger.Info("using stripe payment provider")
	}

	// Initialize services.
	guard := idempotency.NewGuard(cache, logger)
	router := routing.NewRouter(routing.NewLoader(), cfg.Ride.GraphsDir, cfg.Ride.GraphName, cfg.Ride.DefaultSpeedMps, logger)
	pricingService := service.NewPricingService(store, notifier, logger)
	rideService := service.NewRideService(store, guard, pricingService, router, notifier, locations, rideCfg, logger)
	paymentService := service.NewPaymentService(store, guard, psp, cfg.Payments.Currency, notifier, logger)
	bikeService := service.NewBikeService(store, locations, notifier, logger)
	routeService := service.NewRouteService(router)
	authService := service.NewAuthService(store, logger)
	tokens := middleware.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Create router.
	engine := app.NewRouter(app.RouterDeps{
		AuthHandler:    handler.NewAuthHandler(authService, tokens, cfg.Auth.TokenTTL),
		RideHandler:    handler.NewRideHandler(rideService),
		PaymentHandler: handler.NewPaymentHandler(paymentService),
		BikeHandler:    handler.NewBikeHandler(bikeService),
		PricingHandler: handler.NewPricingHandler(pricingService),
		RouteHandler:   handler.NewRouteHandler(routeService),
		Tokens:         tokens,
		ServiceToken:   cfg.Auth.ServiceToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		NewRelicApp:    nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// primeLocations loads every stored bike position into the GEO index.
func primeLocations(ctx context.Context, store repository.Store, locations *bikeredis.LocationStore, logger *slog.Logger) {
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		bikes, err := tx.Bikes().List(ctx)
		if err != nil {
			return err
		}
		for _, b := range bikes {
			if err := locations.UpdateLocation(ctx, b.ID, b.Lat, b.Lon); err != nil {
				return err
			}
		}
		logger.Info("bike location index primed", slog.Int("bikes", len(bikes)))
		return nil
	})
	if err != nil {
		logger.Warn("priming bike location index failed", slog.Any("error", err))
	}
}
