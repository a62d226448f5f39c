package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Payouts      PayoutsConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payouts.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREATORPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"CREATORPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CREATORPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREATORPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"CREATORPAY_DB_DSN"`

	LegacyHost     string `envconfig:"CREATORPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"CREATORPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CREATORPAY_DB_USER"`
	LegacyPassword string `envconfig:"CREATORPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"CREATORPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"CREATORPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREATORPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREATORPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREATORPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREATORPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREATORPAY_REDIS_URL"`
	Address      string        `envconfig:"CREATORPAY_REDIS_ADDR"`
	Password     string        `envconfig:"CREATORPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREATORPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREATORPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREATORPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREATORPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREATORPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREATORPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"CREATORPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CREATORPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CREATORPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CREATORPAY_AUTO_MIGRATE" default:"false"`
	// EmitEvents toggles outbox writes; the release itself never depends on it.
	EmitEvents bool `envconfig:"CREATORPAY_EMIT_EVENTS" default:"true"`
}

// PayoutsConfig tunes the per-creator credit retry loop.
type PayoutsConfig struct {
	CreditMaxRetries uint64        `envconfig:"CREATORPAY_PAYOUT_CREDIT_MAX_RETRIES" default:"3"`
	CreditRetryBase  time.Duration `envconfig:"CREATORPAY_PAYOUT_CREDIT_RETRY_BASE" default:"100ms"`
	CreditRetryCap   time.Duration `envconfig:"CREATORPAY_PAYOUT_CREDIT_RETRY_CAP" default:"2s"`
}

func (p PayoutsConfig) validate() error {
	if p.CreditRetryBase <= 0 {
		return fmt.Errorf("%s must be positive", EnvPayoutRetryBase)
	}
	if p.CreditRetryCap < p.CreditRetryBase {
		return fmt.Errorf("%s must be >= %s", EnvPayoutRetryCap, EnvPayoutRetryBase)
	}
	return nil
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"CREATORPAY_IDEMPOTENCY_TTL" default:"168h"`
}

// RateLimitConfig throttles money-moving routes per actor. Zero disables it.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"CREATORPAY_MONEY_RATE_LIMIT_WINDOW" default:"1m"`
	ActorLimit   int           `envconfig:"CREATORPAY_MONEY_RATE_LIMIT_PER_ACTOR" default:"30"`
	AddressLimit int           `envconfig:"CREATORPAY_MONEY_RATE_LIMIT_PER_IP" default:"60"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CREATORPAY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CREATORPAY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CREATORPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PayoutsTopic          string `envconfig:"CREATORPAY_PUBSUB_PAYOUTS_TOPIC" default:"creatorpay-payout-events"`
	PayoutsSubscription   string `envconfig:"CREATORPAY_PUBSUB_PAYOUTS_SUBSCRIPTION"`
	AnalyticsSubscription string `envconfig:"CREATORPAY_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

// BigQueryConfig points the ledger analytics sink at its dataset. An empty
// dataset disables the sink.
type BigQueryConfig struct {
	Dataset           string `envconfig:"CREATORPAY_BIGQUERY_DATASET"`
	LedgerEventsTable string `envconfig:"CREATORPAY_BIGQUERY_LEDGER_EVENTS_TABLE" default:"ledger_events"`
	InsertBatchSize   int    `envconfig:"CREATORPAY_BIGQUERY_INSERT_BATCH_SIZE" default:"1"`
}

func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CREATORPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CREATORPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CREATORPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig schedules the maintenance jobs of cmd/cron-worker.
type CronConfig struct {
	Interval                  time.Duration `envconfig:"CREATORPAY_CRON_INTERVAL" default:"1h"`
	LockTTL                   time.Duration `envconfig:"CREATORPAY_CRON_LOCK_TTL" default:"55m"`
	OutboxRetentionDays       int           `envconfig:"CREATORPAY_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int           `envconfig:"CREATORPAY_NOTIFICATION_RETENTION_DAYS" default:"90"`
	StalledReleaseAfter       time.Duration `envconfig:"CREATORPAY_STALLED_RELEASE_AFTER" default:"15m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
