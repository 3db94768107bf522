package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Storefront   StorefrontConfig
	Esewa        EsewaConfig
	Payments     PaymentsConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads the STOREFRONT_* environment and rejects settings that cannot
// work together.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.DB.DSN == "" {
		dsn, err := cfg.DB.assembleDSN()
		if err != nil {
			return nil, err
		}
		cfg.DB.DSN = dsn
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// check covers the cross-field rules envconfig tags cannot express.
func (c *Config) check() error {
	var err error
	if _, perr := url.ParseRequestURI(c.Storefront.FrontendURL); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvFrontendURL, perr))
	}
	if c.Cron.LockTTL >= c.Cron.Interval {
		err = multierr.Append(err, fmt.Errorf("cron lock ttl %s must be shorter than the interval %s", c.Cron.LockTTL, c.Cron.Interval))
	}
	if c.Payments.ExpirePendingAfter <= c.Payments.StalePendingAfter {
		err = multierr.Append(err, fmt.Errorf("pending sessions must go stale (%s) before they expire (%s)", c.Payments.StalePendingAfter, c.Payments.ExpirePendingAfter))
	}
	if c.JWT.ExpirationMinutes <= 0 {
		err = multierr.Append(err, errors.New("jwt expiration must be positive"))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool  { return strings.EqualFold(a.Env, AppEnvDev) }
func (a AppConfig) IsProd() bool { return strings.EqualFold(a.Env, AppEnvProd) }

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	// Used only when DSN is empty.
	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite is true for local development against a file database.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StorefrontConfig struct {
	FrontendURL    string   `envconfig:"STOREFRONT_FRONTEND_URL" required:"true"`
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

// EsewaConfig carries the merchant credentials and the fixed surcharges applied to every
// online checkout. The secret and product code are mandatory; NewInitiator refuses to
// build without them.
type EsewaConfig struct {
	SecretKey      string          `envconfig:"STOREFRONT_ESEWA_SECRET_KEY"`
	ProductCode    string          `envconfig:"STOREFRONT_ESEWA_PRODUCT_CODE"`
	FormURL        string          `envconfig:"STOREFRONT_ESEWA_FORM_URL" default:"https://rc-epay.esewa.com.np/api/epay/main/v2/form"`
	StatusURL      string          `envconfig:"STOREFRONT_ESEWA_STATUS_URL" default:"https://rc.esewa.com.np/api/epay/transaction/status/"`
	TaxAmount      decimal.Decimal `envconfig:"STOREFRONT_ESEWA_TAX_AMOUNT" default:"0"`
	ServiceCharge  decimal.Decimal `envconfig:"STOREFRONT_ESEWA_SERVICE_CHARGE" default:"0"`
	DeliveryCharge decimal.Decimal `envconfig:"STOREFRONT_ESEWA_DELIVERY_CHARGE" default:"0"`
	HTTPTimeout    time.Duration   `envconfig:"STOREFRONT_ESEWA_HTTP_TIMEOUT" default:"10s"`
}

// Validate reports missing merchant credentials.
func (e EsewaConfig) Validate() error {
	var missing []string
	for env, value := range map[string]string{EnvEsewaSecretKey: e.SecretKey, EnvEsewaProductCode: e.ProductCode} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("esewa configuration incomplete: %s required", strings.Join(missing, ", "))
}

type PaymentsConfig struct {
	CallbackIdempotencyTTL time.Duration `envconfig:"STOREFRONT_PAYMENTS_CALLBACK_TTL" default:"168h"`
	VerifyWindow           time.Duration `envconfig:"STOREFRONT_PAYMENTS_VERIFY_WINDOW" default:"1m"`
	VerifyLimit            int           `envconfig:"STOREFRONT_PAYMENTS_VERIFY_LIMIT" default:"10"`
	StalePendingAfter      time.Duration `envconfig:"STOREFRONT_PAYMENTS_STALE_AFTER" default:"15m"`
	ExpirePendingAfter     time.Duration `envconfig:"STOREFRONT_PAYMENTS_EXPIRE_AFTER" default:"24h"`
	SweepBatchSize         int           `envconfig:"STOREFRONT_PAYMENTS_SWEEP_BATCH" default:"50"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
	PaymentsTopic string `envconfig:"STOREFRONT_PUBSUB_PAYMENTS_TOPIC" default:"storefront-payments"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"4m"`
}

func (db DBConfig) assembleDSN() (string, error) {
	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: DBDriverPostgres,
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		dsn.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	return dsn.String(), nil
}
