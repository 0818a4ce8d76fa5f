package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MOLIMOR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	FulfillmentModeInline = "inline"
	FulfillmentModeOutbox = "outbox"
)

const (
	EnvAppEnv           = "MOLIMOR_APP_ENV"
	EnvPort             = "MOLIMOR_APP_PORT"
	EnvPublicBaseURL    = "MOLIMOR_PUBLIC_BASE_URL"
	EnvDBDSN            = "MOLIMOR_DB_DSN"
	EnvDBHost           = "MOLIMOR_DB_HOST"
	EnvDBUser           = "MOLIMOR_DB_USER"
	EnvDBName           = "MOLIMOR_DB_NAME"
	EnvRedisURL         = "MOLIMOR_REDIS_URL"
	EnvJWTSecret        = "MOLIMOR_JWT_SECRET"
	EnvJWTIssuer        = "MOLIMOR_JWT_ISSUER"
	EnvJWTExpMins       = "MOLIMOR_JWT_EXPIRATION_MINUTES"
	EnvFulfillmentMode  = "MOLIMOR_FULFILLMENT_MODE"
	EnvPubSubOrdersTop  = "MOLIMOR_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub  = "MOLIMOR_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvGCPProjectID     = "MOLIMOR_GCP_PROJECT_ID"
	EnvSendgridAPIKey   = "MOLIMOR_SENDGRID_API_KEY"
	EnvSendgridFrom     = "MOLIMOR_SENDGRID_FROM_EMAIL"
	EnvPushEnabled      = "MOLIMOR_PUSH_ENABLED"
	EnvPushProjectID    = "MOLIMOR_FCM_PROJECT_ID"
	EnvTelemetryEnabled = "MOLIMOR_OTEL_ENABLED"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Fulfillment  FulfillmentConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Sendgrid     SendgridConfig
	Push         PushConfig
	Telemetry    TelemetryConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Fulfillment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string   `envconfig:"MOLIMOR_APP_ENV" required:"true"`
	Port          string   `envconfig:"MOLIMOR_APP_PORT" required:"true"`
	LogLevel      string   `envconfig:"MOLIMOR_LOG_LEVEL" default:"info"`
	LogWarnStack  bool     `envconfig:"MOLIMOR_LOG_WARN_STACK" default:"false"`
	PublicBaseURL string   `envconfig:"MOLIMOR_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	CORSOrigins   []string `envconfig:"MOLIMOR_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MOLIMOR_DB_DSN"`
	Driver string `envconfig:"MOLIMOR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MOLIMOR_DB_HOST"`
	LegacyPort     int    `envconfig:"MOLIMOR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MOLIMOR_DB_USER"`
	LegacyPassword string `envconfig:"MOLIMOR_DB_PASSWORD"`
	LegacyName     string `envconfig:"MOLIMOR_DB_NAME"`
	LegacySSLMode  string `envconfig:"MOLIMOR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MOLIMOR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MOLIMOR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MOLIMOR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MOLIMOR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration past which a query is logged as a warning. Zero disables it.
	SlowQuery time.Duration `envconfig:"MOLIMOR_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MOLIMOR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MOLIMOR_REDIS_ADDR"`
	Password     string        `envconfig:"MOLIMOR_REDIS_PASSWORD"`
	DB           int           `envconfig:"MOLIMOR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MOLIMOR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MOLIMOR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MOLIMOR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MOLIMOR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MOLIMOR_REDIS_WRITE_TIMEOUT" default:"5s"`
	// KeyPrefix namespaces every key so environments can share one instance.
	KeyPrefix string `envconfig:"MOLIMOR_REDIS_KEY_PREFIX" default:"molimor"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MOLIMOR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MOLIMOR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MOLIMOR_JWT_EXPIRATION_MINUTES" default:"60"`
	// Leeway tolerates clock drift between the issuing service and this one.
	Leeway time.Duration `envconfig:"MOLIMOR_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MOLIMOR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MOLIMOR_AUTO_MIGRATE" default:"false"`
}

// FulfillmentConfig controls how post-order side effects are run.
type FulfillmentConfig struct {
	Mode              string        `envconfig:"MOLIMOR_FULFILLMENT_MODE" default:"inline"`
	DrainTimeout      time.Duration `envconfig:"MOLIMOR_FULFILLMENT_DRAIN_TIMEOUT" default:"15s"`
	StepTimeout       time.Duration `envconfig:"MOLIMOR_FULFILLMENT_STEP_TIMEOUT" default:"30s"`
	AllocationRetries int           `envconfig:"MOLIMOR_ORDER_ID_ALLOCATION_RETRIES" default:"0"`
	InvoiceSubject    string        `envconfig:"MOLIMOR_INVOICE_EMAIL_SUBJECT" default:"Molimor Purchase Invoice"`
}

func (f FulfillmentConfig) IsOutbox() bool {
	return strings.EqualFold(f.Mode, FulfillmentModeOutbox)
}

func (f FulfillmentConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(f.Mode)) {
	case FulfillmentModeInline, FulfillmentModeOutbox:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvFulfillmentMode, FulfillmentModeInline, FulfillmentModeOutbox, f.Mode)
	}
	if f.AllocationRetries < 0 {
		return fmt.Errorf("order id allocation retries must not be negative")
	}
	return nil
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"MOLIMOR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MOLIMOR_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MOLIMOR_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MOLIMOR_PUBSUB_ORDERS_TOPIC" default:"molimor-order-events"`
	OrdersSubscription string `envconfig:"MOLIMOR_PUBSUB_ORDERS_SUBSCRIPTION" default:"molimor-order-fulfillment"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MOLIMOR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MOLIMOR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MOLIMOR_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// PublishTimeout bounds how long one batch waits for broker acks.
	PublishTimeout time.Duration `envconfig:"MOLIMOR_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"MOLIMOR_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"MOLIMOR_SENDGRID_FROM_EMAIL" default:"no-reply@molimor.com"`
	FromName    string `envconfig:"MOLIMOR_SENDGRID_FROM_NAME" default:"Molimor"`
}

// Enabled reports whether outbound email is configured.
func (s SendgridConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type PushConfig struct {
	Enabled         bool   `envconfig:"MOLIMOR_PUSH_ENABLED" default:"false"`
	ProjectID       string `envconfig:"MOLIMOR_FCM_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MOLIMOR_FCM_CREDENTIALS_JSON"`
}

type TelemetryConfig struct {
	Enabled      bool   `envconfig:"MOLIMOR_OTEL_ENABLED" default:"false"`
	OTLPEndpoint string `envconfig:"MOLIMOR_OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	ServiceName  string `envconfig:"MOLIMOR_OTEL_SERVICE_NAME" default:"molimor-backend"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:molimor.db?_foreign_keys=on"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// CronConfig drives the housekeeping worker. A retention of zero days turns
// the matching job off.
type CronConfig struct {
	Interval                  time.Duration `envconfig:"MOLIMOR_CRON_INTERVAL" default:"24h"`
	JobTimeout                time.Duration `envconfig:"MOLIMOR_CRON_JOB_TIMEOUT" default:"15m"`
	OutboxRetentionDays       int           `envconfig:"MOLIMOR_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"MOLIMOR_CRON_NOTIFICATION_RETENTION_DAYS" default:"0"`
}
