package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvFrontendURL = "STOREFRONT_FRONTEND_URL"

	EnvEsewaSecretKey      = "STOREFRONT_ESEWA_SECRET_KEY"
	EnvEsewaProductCode    = "STOREFRONT_ESEWA_PRODUCT_CODE"
	EnvEsewaDeliveryCharge = "STOREFRONT_ESEWA_DELIVERY_CHARGE"

	EnvPaymentsStaleAfter  = "STOREFRONT_PAYMENTS_STALE_AFTER"
	EnvPaymentsExpireAfter = "STOREFRONT_PAYMENTS_EXPIRE_AFTER"
	EnvPubSubOrdersTopic   = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvCronInterval        = "STOREFRONT_CRON_INTERVAL"
	EnvCronLockTTL         = "STOREFRONT_CRON_LOCK_TTL"
)
