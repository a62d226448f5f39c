package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the
// prefix only matters for untagged fields.
const EnvPrefix = "CREATORPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "CREATORPAY_APP_ENV"
	EnvPort            = "CREATORPAY_APP_PORT"
	EnvDBDSN           = "CREATORPAY_DB_DSN"
	EnvDBHost          = "CREATORPAY_DB_HOST"
	EnvDBUser          = "CREATORPAY_DB_USER"
	EnvDBName          = "CREATORPAY_DB_NAME"
	EnvDBPassword      = "CREATORPAY_DB_PASSWORD"
	EnvRedisURL        = "CREATORPAY_REDIS_URL"
	EnvJWTSecret       = "CREATORPAY_JWT_SECRET"
	EnvJWTIssuer       = "CREATORPAY_JWT_ISSUER"
	EnvPayoutRetryBase = "CREATORPAY_PAYOUT_CREDIT_RETRY_BASE"
	EnvPayoutRetryCap  = "CREATORPAY_PAYOUT_CREDIT_RETRY_CAP"
	EnvGCPProjectID    = "CREATORPAY_GCP_PROJECT_ID"
	EnvPayoutsTopic    = "CREATORPAY_PUBSUB_PAYOUTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
