// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, document store addressing and credentials, rate limiting, web
// protection and observability settings.
//
// The store addressing values (database id, collection id, partition-key
// path) have no defaults: a missing value is a startup error wrapping
// ErrConfigMissing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/car-manager/internal/store"
)

// ErrConfigMissing is wrapped by Load when a required value is absent.
var ErrConfigMissing = errors.New("required configuration missing")

// Supported STORE_DRIVER values.
const (
	DriverCosmos    = "cosmos"
	DriverMongo     = "mongo"
	DriverDynamoDB  = "dynamodb"
	DriverFirestore = "firestore"
	DriverSQLite    = "sqlite"
	DriverMemory    = "memory"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "car-manager")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CosmosConfig holds Azure Cosmos DB settings.
type CosmosConfig struct {
	ConnectionString string // COSMOS_CONNECTION_STRING
}

// MongoConfig holds MongoDB settings.
type MongoConfig struct {
	URI string // MONGO_URI
}

// DynamoConfig holds DynamoDB settings. Region and credentials otherwise
// come from the default AWS chain.
type DynamoConfig struct {
	Region   string // AWS_REGION
	Endpoint string // DYNAMODB_ENDPOINT (local emulators)
}

// FirestoreConfig holds Google Cloud Firestore settings.
type FirestoreConfig struct {
	ProjectID       string // FIRESTORE_PROJECT_ID
	CredentialsFile string // FIRESTORE_CREDENTIALS_FILE (empty = ADC)
}

// SQLiteConfig holds the embedded SQLite document table settings.
type SQLiteConfig struct {
	Path string // SQLITE_PATH
}

// StoreConfig selects the document store and where car records live in it.
type StoreConfig struct {
	Driver     string // STORE_DRIVER
	Addressing store.Addressing

	Cosmos    CosmosConfig
	Mongo     MongoConfig
	Dynamo    DynamoConfig
	Firestore FirestoreConfig
	SQLite    SQLiteConfig
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful shutdown budget
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs / UI
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	StaticDir      string // pre-built SPA assets; empty disables hosting

	// Store
	Store StoreConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs / UI
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),
		StaticDir:      strings.TrimSpace(getenv("STATIC_DIR", "")),

		// Store
		Store: StoreConfig{
			Driver: strings.ToLower(strings.TrimSpace(getenv("STORE_DRIVER", DriverCosmos))),
			Addressing: store.Addressing{
				DatabaseID:       strings.TrimSpace(getenv("CARS_DATABASE_ID", "")),
				CollectionID:     strings.TrimSpace(getenv("CARS_CONTAINER_ID", "")),
				PartitionKeyPath: strings.TrimSpace(getenv("CARS_PARTITION_KEY_PATH", "")),
			},
			Cosmos: CosmosConfig{
				ConnectionString: getenv("COSMOS_CONNECTION_STRING", ""),
			},
			Mongo: MongoConfig{
				URI: getenv("MONGO_URI", ""),
			},
			Dynamo: DynamoConfig{
				Region:   getenv("AWS_REGION", ""),
				Endpoint: getenv("DYNAMODB_ENDPOINT", ""),
			},
			Firestore: FirestoreConfig{
				ProjectID:       getenv("FIRESTORE_PROJECT_ID", ""),
				CredentialsFile: getenv("FIRESTORE_CREDENTIALS_FILE", ""),
			},
			SQLite: SQLiteConfig{
				Path: getenv("SQLITE_PATH", "cars.db"),
			},
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 30*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "car-manager"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if err := validateStore(cfg.Store); err != nil {
		return cfg, err
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// validateStore checks the addressing values and the settings required by
// the selected driver.
func validateStore(s StoreConfig) error {
	a := s.Addressing
	if a.DatabaseID == "" {
		return missing("CARS_DATABASE_ID")
	}
	if a.CollectionID == "" {
		return missing("CARS_CONTAINER_ID")
	}
	if a.PartitionKeyPath == "" {
		return missing("CARS_PARTITION_KEY_PATH")
	}
	if !strings.HasPrefix(a.PartitionKeyPath, "/") || len(a.PartitionKeyPath) < 2 || strings.Contains(a.PartitionKeyPath[1:], "/") {
		return errors.New("CARS_PARTITION_KEY_PATH must be a single top-level path such as /id")
	}

	switch s.Driver {
	case DriverCosmos:
		if strings.TrimSpace(s.Cosmos.ConnectionString) == "" {
			return missing("COSMOS_CONNECTION_STRING")
		}
	case DriverMongo:
		if strings.TrimSpace(s.Mongo.URI) == "" {
			return missing("MONGO_URI")
		}
	case DriverFirestore:
		if strings.TrimSpace(s.Firestore.ProjectID) == "" {
			return missing("FIRESTORE_PROJECT_ID")
		}
	case DriverSQLite:
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return missing("SQLITE_PATH")
		}
	case DriverDynamoDB, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: %s, %s, %s, %s, %s, %s",
			DriverCosmos, DriverMongo, DriverDynamoDB, DriverFirestore, DriverSQLite, DriverMemory)
	}
	return nil
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrConfigMissing, name)
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
