package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Signing SigningConfig

	VerifyBaseURL string

	IssuerAuthRequired    bool
	BootstrapAdminAPIKey  string
	BootstrapAdminKeyName string

	RateLimit RateLimitConfig

	RiskConfigPath string
}

type SigningConfig struct {
	Algorithm       string
	PrivateKeyPath  string
	PublicKeyPath   string
	AgeIdentityPath string
	Autogenerate    bool
	DefaultExpiry   time.Duration
	Compression     string
}

// TelemetryConfig carries the logging and OpenTelemetry settings. The
// OTEL_EXPORTER_* names follow the OpenTelemetry conventions.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	VerifyRate    float64
	VerifyBurst   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "trustmark"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "trustmark"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Signing: SigningConfig{
			Algorithm:       strings.ToLower(getenv("SIGNING_ALGORITHM", "es256")),
			PrivateKeyPath:  strings.TrimSpace(getenv("SIGNING_PRIVATE_KEY_PATH", "")),
			PublicKeyPath:   strings.TrimSpace(getenv("SIGNING_PUBLIC_KEY_PATH", "")),
			AgeIdentityPath: strings.TrimSpace(getenv("SIGNING_AGE_IDENTITY_PATH", "")),
			Autogenerate:    getenvBool("SIGNING_KEY_AUTOGENERATE", environment != "production"),
			DefaultExpiry:   getenvDuration("SIGNING_DEFAULT_EXPIRY", 0),
			Compression:     strings.ToLower(getenv("TOKEN_COMPRESSION", "none")),
		},
		VerifyBaseURL:         strings.TrimSpace(getenv("VERIFY_BASE_URL", "http://localhost:8080/verify")),
		IssuerAuthRequired:    getenvBool("ISSUER_AUTH_REQUIRED", true),
		BootstrapAdminAPIKey:  strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_API_KEY", "")),
		BootstrapAdminKeyName: getenv("BOOTSTRAP_ADMIN_KEY_NAME", "bootstrap-admin"),
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			VerifyRate:    getenvFloat("RATE_LIMIT_VERIFY_RATE", 5),
			VerifyBurst:   getenvInt("RATE_LIMIT_VERIFY_BURST", 20),
		},
		RiskConfigPath: strings.TrimSpace(getenv("RISK_CONFIG_PATH", "")),
	}

	if cfg.Signing.PrivateKeyPath == "" && cfg.Signing.Autogenerate {
		cfg.Signing.PrivateKeyPath = "var/keys/signing.pem"
		if cfg.Signing.PublicKeyPath == "" {
			cfg.Signing.PublicKeyPath = "var/keys/signing.pub.pem"
		}
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
