package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Ride     RideConfig
	Notify   NotifyConfig
	Payments PaymentsConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver        string // postgres or memory
	Migrate       bool
	MigrationsDir string
	Seed          bool
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	GeoKey    string
	ReplayTTL time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// KafkaConfig holds the ride event stream configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AuthConfig holds bearer token and service token settings.
type AuthConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	ServiceToken string
}

// RideConfig holds ride lifecycle tunables.
type RideConfig struct {
	TelemetryMinInterval time.Duration
	GeofenceBufferM      float64
	Rounding             string // bankers or ceil
	MET                  float64
	DefaultWeightKg      float64
	DefaultSpeedMps      float64
	GraphName            string
	GraphsDir            string
}

// NotifyConfig holds outbound notification settings.
type NotifyConfig struct {
	BatteryURL  string
	QueueSize   int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// PaymentsConfig holds payment service provider settings.
type PaymentsConfig struct {
	StripeAPIKey        string
	StripePaymentMethod string // confirms intents at authorize time when set
	Currency            string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
			Migrate:       getBoolEnv("MIGRATE", false),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
			Seed:          getBoolEnv("SEED_DEMO_DATA", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "bikeshare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:   getBoolEnv("REDIS_ENABLED", true),
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getIntEnv("REDIS_DB", 0),
			GeoKey:    getEnv("REDIS_GEO_KEY", "bikes:locations"),
			ReplayTTL: getDurationEnv("IDEMPOTENCY_REPLAY_TTL", 24*time.Hour),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "bikeshare-core"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "ride-events"),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", "change-me"),
			TokenTTL:     getDurationEnv("JWT_TOKEN_TTL", 12*time.Hour),
			ServiceToken: getEnv("INTERNAL_SERVICE_TOKEN", "local-service-token"),
		},
		Ride: RideConfig{
			TelemetryMinInterval: getDurationEnv("TELEMETRY_MIN_INTERVAL", 2*time.Second),
			GeofenceBufferM:      getFloatEnv("GEOFENCE_BUFFER_M", 5),
			Rounding:             strings.ToLower(getEnv("PRICING_ROUNDING", "bankers")),
			MET:                  getFloatEnv("CALORIES_MET", 8.0),
			DefaultWeightKg:      getFloatEnv("DEFAULT_WEIGHT_KG", 70),
			DefaultSpeedMps:      getFloatEnv("DEFAULT_SPEED_MPS", 4.5),
			GraphName:            getEnv("DEFAULT_GRAPH_NAME", "toy"),
			GraphsDir:            getEnv("GRAPHS_DIR", "graphs"),
		},
		Notify: NotifyConfig{
			BatteryURL:  getEnv("BATTERY_SERVICE_URL", ""),
			QueueSize:   getIntEnv("NOTIFY_QUEUE_SIZE", 256),
			Workers:     getIntEnv("NOTIFY_WORKERS", 2),
			MaxAttempts: getIntEnv("NOTIFY_MAX_ATTEMPTS", 3),
			Backoff:     getDurationEnv("NOTIFY_BACKOFF", 200*time.Millisecond),
			Timeout:     getDurationEnv("NOTIFY_TIMEOUT", 2*time.Second),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:        getEnv("STRIPE_API_KEY", ""),
			StripePaymentMethod: getEnv("STRIPE_PAYMENT_METHOD", ""),
			Currency:            getEnv("PAYMENT_CURRENCY", "sgd"),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.Storage.Driver))
	}
	switch c.Ride.Rounding {
	case "bankers", "ceil":
	default:
		errs = append(errs, fmt.Errorf("PRICING_ROUNDING must be bankers or ceil, got %q", c.Ride.Rounding))
	}
	if c.Ride.TelemetryMinInterval <= 0 {
		errs = append(errs, errors.New("TELEMETRY_MIN_INTERVAL must be > 0"))
	}
	if c.Ride.GeofenceBufferM < 0 {
		errs = append(errs, errors.New("GEOFENCE_BUFFER_M must be >= 0"))
	}
	if c.Ride.DefaultWeightKg <= 0 || c.Ride.MET <= 0 {
		errs = append(errs, errors.New("CALORIES_MET and DEFAULT_WEIGHT_KG must be > 0"))
	}
	if c.Notify.QueueSize <= 0 || c.Notify.Workers <= 0 || c.Notify.MaxAttempts <= 0 {
		errs = append(errs, errors.New("NOTIFY_QUEUE_SIZE, NOTIFY_WORKERS and NOTIFY_MAX_ATTEMPTS must be > 0"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}

	return errors.Join(errs...)
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
