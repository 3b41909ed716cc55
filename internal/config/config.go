package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AuthJWTSecret string
	AuthJWTIssuer string
	SnowflakeNode int64

	Observability ObservabilityConfig

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
	DBAutoMigrate     bool
	DBSeed            bool

	SchedulerInterval   time.Duration
	SchedulerJobTimeout time.Duration
	SchedulerEventBatch int
	SchedulerJobs       []string

	Redis   RedisConfig
	Kafka   KafkaConfig
	SMTP    SMTPConfig
	Console ConsoleConfig
}

// ObservabilityConfig drives logging, tracing and metrics labels.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	OtelSampling  float64
	DeploymentEnv string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint has been configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type KafkaConfig struct {
	Brokers      []string
	InvoiceTopic string
	ClientID     string
	BatchTimeout time.Duration
}

// Enabled reports whether at least one broker has been configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ConsoleConfig points the operator CLI at a billing API.
type ConsoleConfig struct {
	BaseURL   string
	TokenPath string
	Timeout   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "digiurban-billing"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":3001"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "digiurban")),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			OtelSampling:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			DeploymentEnv: strings.TrimSpace(getenv("DEPLOYMENT_ENV", "")),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "digiurban"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", false),
		DBSeed:            getenvBool("DATABASE_SEED", false),

		SchedulerInterval:   time.Duration(getenvInt64("SCHEDULER_RUN_INTERVAL_SECONDS", 60)) * time.Second,
		SchedulerJobTimeout: time.Duration(getenvInt64("SCHEDULER_JOB_TIMEOUT_SECONDS", 30)) * time.Second,
		SchedulerEventBatch: int(getenvInt64("SCHEDULER_EVENT_BATCH_SIZE", 100)),
		SchedulerJobs:       splitList(getenv("SCHEDULER_JOBS", "")),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(getenv("KAFKA_BROKERS", "")),
			InvoiceTopic: getenv("KAFKA_INVOICE_TOPIC", "digiurban.billing.invoices"),
			ClientID:     getenv("KAFKA_CLIENT_ID", "digiurban-billing"),
			BatchTimeout: time.Duration(getenvInt64("KAFKA_BATCH_TIMEOUT_MS", 50)) * time.Millisecond,
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     int(getenvInt64("SMTP_PORT", 587)),
			Username: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "financeiro@digiurban.com.br"),
		},
		Console: ConsoleConfig{
			BaseURL:   strings.TrimRight(getenv("CONSOLE_API_URL", "http://localhost:3001"), "/"),
			TokenPath: getenv("CONSOLE_TOKEN_PATH", defaultTokenPath()),
			Timeout:   time.Duration(getenvInt64("CONSOLE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in a production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "digiurban-token.json"
	}
	return filepath.Join(dir, "digiurban", "token.json")
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

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
