package config

// EnvPrefix is handed to envconfig; every tag below spells out the full name anyway.
const EnvPrefix = "DELIVERYDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// DefaultWalletMinimum mirrors the admin console's minimum top-up and payout amount.
const DefaultWalletMinimum = 100

const (
	EnvAppEnv            = "DELIVERYDESK_APP_ENV"
	EnvPort              = "DELIVERYDESK_APP_PORT"
	EnvDBDSN             = "DELIVERYDESK_DB_DSN"
	EnvDBHost            = "DELIVERYDESK_DB_HOST"
	EnvDBUser            = "DELIVERYDESK_DB_USER"
	EnvDBName            = "DELIVERYDESK_DB_NAME"
	EnvRedisURL          = "DELIVERYDESK_REDIS_URL"
	EnvJWTSecret         = "DELIVERYDESK_JWT_SECRET"
	EnvPaystackSecretKey = "DELIVERYDESK_PAYSTACK_SECRET_KEY"
	EnvGoogleMapsAPIKey  = "DELIVERYDESK_GOOGLE_MAPS_API_KEY"
	EnvWalletMinAmount   = "DELIVERYDESK_WALLET_MIN_AMOUNT"
	EnvSweeperBatch      = "DELIVERYDESK_SWEEPER_RECONCILE_BATCH"
	EnvDistanceLimit     = "DELIVERYDESK_RATE_LIMIT_DISTANCE_LIMIT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
