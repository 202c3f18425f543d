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
	NodeID      int64

	// DBType must be postgres; the db module refuses anything else at startup.
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

	Auth           AuthConfig
	Payment        PaymentConfig
	Email          EmailConfig
	Slack          SlackConfig
	RateLimit      RateLimitConfig
	Reconciliation ReconciliationConfig
	Telemetry      TelemetryConfig
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

type PaymentConfig struct {
	Gateway string

	PayPalClientID     string
	PayPalClientSecret string
	PayPalEnvironment  string
	PayPalBaseURL      string

	StripeSecretKey string
	StripeBaseURL   string

	RequestTimeout time.Duration
}

type EmailConfig struct {
	Provider string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	SendGridAPIKey string

	From string
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StudentRate  float64
	StudentBurst int

	CaptureLockTTLSeconds int
}

type ReconciliationConfig struct {
	SweepSchedule string
}

// TelemetryConfig covers logs, traces and OTLP metrics. Prometheus scraping
// on /metrics is always on.
type TelemetryConfig struct {
	LogLevel  string
	LogFormat string

	TracingEnabled bool
	MetricsEnabled bool
	OTLPEndpoint   string
	OTLPProtocol   string
	SamplingRatio  float64
}

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	GatewayPayPal = "paypal"
	GatewayStripe = "stripe"

	EmailProviderSMTP     = "smtp"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderNoop     = "noop"

	defaultEmailFrom = `"My Course Platform" <no-reply@courses.com>`
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", EnvDevelopment)

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "lms"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		NodeID:      int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "lms"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			Issuer:    getenv("AUTH_JWT_ISSUER", "lms"),
			TokenTTL:  time.Duration(getenvInt("AUTH_TOKEN_TTL_SECONDS", 3600)) * time.Second,
		},
		Payment: PaymentConfig{
			Gateway:            strings.ToLower(getenv("PAYMENT_GATEWAY", GatewayPayPal)),
			PayPalClientID:     strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			PayPalClientSecret: strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			PayPalEnvironment:  strings.ToLower(getenv("PAYPAL_ENVIRONMENT", "sandbox")),
			PayPalBaseURL:      strings.TrimSpace(getenv("PAYPAL_BASE_URL", "")),
			StripeSecretKey:    strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			StripeBaseURL:      strings.TrimSpace(getenv("STRIPE_BASE_URL", "")),
			RequestTimeout:     time.Duration(getenvInt("PAYMENT_REQUEST_TIMEOUT_SECONDS", 12)) * time.Second,
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getenv("EMAIL_PROVIDER", EmailProviderNoop)),
			SMTPHost:       getenv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:       getenvInt("SMTP_PORT", 587),
			SMTPUsername:   getenv("EMAIL_USER", ""),
			SMTPPassword:   getenv("EMAIL_PASS", ""),
			SendGridAPIKey: strings.TrimSpace(getenv("SENDGRID_API_KEY", "")),
			From:           getenv("EMAIL_FROM", defaultEmailFrom),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    getenv("SLACK_CHANNEL", "#payments-ops"),
		},
		RateLimit: RateLimitConfig{
			Enabled:               getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:             getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword:         getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:               getenvInt("RATE_LIMIT_REDIS_DB", 0),
			StudentRate:           getenvFloat("RATE_LIMIT_STUDENT_RATE", 1),
			StudentBurst:          getenvInt("RATE_LIMIT_STUDENT_BURST", 5),
			CaptureLockTTLSeconds: getenvInt("RATE_LIMIT_CAPTURE_LOCK_TTL_SECONDS", 30),
		},
		Reconciliation: ReconciliationConfig{
			SweepSchedule: getenv("RECONCILIATION_SWEEP_SCHEDULE", "*/15 * * * *"),
		},
		Telemetry: TelemetryConfig{
			LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getenv("LOG_FORMAT", "json")),
			TracingEnabled: getenvBool("OTEL_TRACES_ENABLED", false),
			MetricsEnabled: getenvBool("OTEL_METRICS_ENABLED", false),
			OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OTLPProtocol:   strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvProduction)
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
