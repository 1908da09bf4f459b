package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendHydraide = "hydraide"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Tracing   TracingConfig   `json:"tracing"`
	Metrics   MetricsConfig   `json:"metrics"`
	Log       LogConfig       `json:"log"`
	Events    EventsConfig    `json:"events"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port string `json:"port" validate:"required,numeric"`
	Host string `json:"host"`
	// PublicURL is the base that offer_url links are resolved against.
	PublicURL       string        `json:"public_url" validate:"required,url"`
	EnableTLS       bool          `json:"enable_tls"`
	CertFile        string        `json:"cert_file" validate:"required_if=EnableTLS true"`
	KeyFile         string        `json:"key_file" validate:"required_if=EnableTLS true"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// StoreConfig selects and configures the offer store.
type StoreConfig struct {
	Backend   string `json:"backend" validate:"oneof=memory sqlite postgres mysql redis mongo hydraide"`
	Namespace string `json:"namespace" validate:"required"`

	SQLitePath  string `json:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN string `json:"postgres_dsn" validate:"required_if=Backend postgres"`
	MySQLDSN    string `json:"mysql_dsn" validate:"required_if=Backend mysql"`

	RedisAddr     string `json:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db" validate:"gte=0"`

	MongoURI      string `json:"mongo_uri" validate:"required_if=Backend mongo"`
	MongoDatabase string `json:"mongo_database"`

	HydraideHost string `json:"hydraide_host" validate:"required_if=Backend hydraide"`
	HydraideCert string `json:"hydraide_cert"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 10MB)
	MaxRequestBodySize int64 `json:"max_request_body_size" validate:"gt=0"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `json:"trust_proxy_headers"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate" validate:"required_if=Enabled true,gte=0"`
	// WriteRate limits POST, PUT and DELETE separately; 0 uses Rate.
	WriteRate int `json:"write_rate" validate:"gte=0"`
	Window    int `json:"window" validate:"required_if=Enabled true,gte=0"` // in seconds
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"service_name"`
	// Exporter is "jaeger" or "otlp".
	Exporter string `json:"exporter" validate:"omitempty,oneof=jaeger otlp"`
	Endpoint string `json:"endpoint"`
	Insecure bool   `json:"insecure"`
}

// MetricsConfig holds OpenTelemetry metrics configuration.
type MetricsConfig struct {
	Enabled  bool          `json:"enabled"`
	Endpoint string        `json:"endpoint"`
	Insecure bool          `json:"insecure"`
	Interval time.Duration `json:"interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `json:"format" validate:"oneof=json text"`
}

// EventsConfig holds domain event configuration.
type EventsConfig struct {
	AuditEnabled bool `json:"audit_enabled"`
}

// LoadConfig loads configuration from defaults, an optional JSON file and
// environment variables, in that order. A .env file in the working
// directory is loaded into the environment first if present.
func LoadConfig(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:" + cfg.Server.Port
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendMemory,
			Namespace:     "offers",
			SQLitePath:    "./offers.db",
			MongoDatabase: "offer_api",
		},
		Security: SecurityConfig{
			MaxRequestBodySize: 10 << 20,
			AllowedOrigins:     "*",
			TrustProxyHeaders:  true,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Rate:      100,
			WriteRate: 30,
			Window:    60,
		},
		Tracing: TracingConfig{
			ServiceName: "offer-api",
			Exporter:    "jaeger",
			Endpoint:    "http://localhost:14268/api/traces",
		},
		Metrics: MetricsConfig{
			Endpoint: "localhost:4318",
			Interval: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Events: EventsConfig{
			AuditEnabled: true,
		},
	}
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	s := &cfg.Server
	s.Port = getEnv("SERVER_PORT", s.Port)
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.PublicURL = getEnv("PUBLIC_URL", s.PublicURL)
	s.EnableTLS = getEnvBool("SERVER_ENABLE_TLS", s.EnableTLS)
	s.CertFile = getEnv("SERVER_CERT_FILE", s.CertFile)
	s.KeyFile = getEnv("SERVER_KEY_FILE", s.KeyFile)
	s.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	st := &cfg.Store
	st.Backend = strings.ToLower(getEnv("STORE_BACKEND", st.Backend))
	st.Namespace = getEnv("STORE_NAMESPACE", st.Namespace)
	st.SQLitePath = getEnv("SQLITE_PATH", st.SQLitePath)
	st.PostgresDSN = getEnv("POSTGRES_DSN", st.PostgresDSN)
	st.MySQLDSN = getEnv("MYSQL_DSN", st.MySQLDSN)
	st.RedisAddr = getEnv("REDIS_ADDR", st.RedisAddr)
	st.RedisPassword = getEnv("REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("REDIS_DB", st.RedisDB)
	st.MongoURI = getEnv("MONGO_URI", st.MongoURI)
	st.MongoDatabase = getEnv("MONGO_DATABASE", st.MongoDatabase)
	st.HydraideHost = getEnv("HYDRAIDE_HOST", st.HydraideHost)
	st.HydraideCert = getEnv("HYDRAIDE_CERT", st.HydraideCert)

	cfg.Security.MaxRequestBodySize = getEnvInt64("MAX_REQUEST_BODY_SIZE", cfg.Security.MaxRequestBodySize)
	cfg.Security.AllowedOrigins = getEnv("ALLOWED_ORIGINS", cfg.Security.AllowedOrigins)
	cfg.Security.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", cfg.Security.TrustProxyHeaders)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Rate = getEnvInt("RATE_LIMIT_RATE", cfg.RateLimit.Rate)
	cfg.RateLimit.WriteRate = getEnvInt("RATE_LIMIT_WRITE_RATE", cfg.RateLimit.WriteRate)
	cfg.RateLimit.Window = getEnvInt("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	t := &cfg.Tracing
	t.Enabled = getEnvBool("TRACING_ENABLED", t.Enabled)
	t.ServiceName = getEnv("TRACING_SERVICE_NAME", t.ServiceName)
	t.Exporter = strings.ToLower(getEnv("TRACING_EXPORTER", t.Exporter))
	t.Endpoint = getEnv("TRACING_ENDPOINT", t.Endpoint)
	t.Insecure = getEnvBool("TRACING_INSECURE", t.Insecure)

	m := &cfg.Metrics
	m.Enabled = getEnvBool("METRICS_ENABLED", m.Enabled)
	m.Endpoint = getEnv("METRICS_ENDPOINT", m.Endpoint)
	m.Insecure = getEnvBool("METRICS_INSECURE", m.Insecure)
	m.Interval = getEnvDuration("METRICS_INTERVAL", m.Interval)

	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", cfg.Log.Format))

	cfg.Events.AuditEnabled = getEnvBool("AUDIT_EVENTS_ENABLED", cfg.Events.AuditEnabled)
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable ("15s", "1m") or
// returns the default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var validate = validator.New()

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Origins splits AllowedOrigins into a list.
func (s SecurityConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
