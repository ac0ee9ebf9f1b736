package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Paystack     PaystackConfig
	GoogleMaps   GoogleMapsConfig
	Wallet       WalletConfig
	RateLimit    RateLimitConfig
	Sweeper      SweeperConfig
	FeatureFlags FeatureFlagsConfig
}

// Load reads the environment and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) check() error {
	var errs error
	if c.DB.DSN == "" {
		dsn, err := c.DB.legacyDSN()
		c.DB.DSN = dsn
		errs = multierr.Append(errs, err)
	}
	if _, err := c.Wallet.Minimum(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Sweeper.ReconcileBatch <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvSweeperBatch))
	}
	if c.RateLimit.DistanceLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must not be negative", EnvDistanceLimit))
	}
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"DELIVERYDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"DELIVERYDESK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DELIVERYDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DELIVERYDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"DELIVERYDESK_DB_DSN"`

	LegacyHost     string `envconfig:"DELIVERYDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"DELIVERYDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DELIVERYDESK_DB_USER"`
	LegacyPassword string `envconfig:"DELIVERYDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"DELIVERYDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"DELIVERYDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DELIVERYDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DELIVERYDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DELIVERYDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DELIVERYDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DELIVERYDESK_REDIS_URL"`
	Address      string        `envconfig:"DELIVERYDESK_REDIS_ADDR"`
	Password     string        `envconfig:"DELIVERYDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"DELIVERYDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DELIVERYDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DELIVERYDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DELIVERYDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DELIVERYDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DELIVERYDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes how bearer tokens issued by the auth provider are verified.
// Issuer is optional because hosted auth tokens do not always carry one.
type JWTConfig struct {
	Secret string `envconfig:"DELIVERYDESK_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"DELIVERYDESK_JWT_ISSUER"`
}

type PaystackConfig struct {
	SecretKey     string        `envconfig:"DELIVERYDESK_PAYSTACK_SECRET_KEY" required:"true"`
	BaseURL       string        `envconfig:"DELIVERYDESK_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL   string        `envconfig:"DELIVERYDESK_PAYSTACK_CALLBACK_URL"`
	PreferredBank string        `envconfig:"DELIVERYDESK_PAYSTACK_PREFERRED_BANK" default:"wema-bank"`
	WebhookTTL    time.Duration `envconfig:"DELIVERYDESK_PAYSTACK_WEBHOOK_TTL" default:"72h"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"DELIVERYDESK_GOOGLE_MAPS_API_KEY"`
}

type WalletConfig struct {
	MinimumAmount string `envconfig:"DELIVERYDESK_WALLET_MIN_AMOUNT" default:"100"`
}

// Minimum parses the configured minimum wallet movement.
func (w WalletConfig) Minimum() (decimal.Decimal, error) {
	raw := strings.TrimSpace(w.MinimumAmount)
	if raw == "" {
		return decimal.NewFromInt(DefaultWalletMinimum), nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvWalletMinAmount, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvWalletMinAmount)
	}
	return value, nil
}

type RateLimitConfig struct {
	DistanceWindow time.Duration `envconfig:"DELIVERYDESK_RATE_LIMIT_DISTANCE_WINDOW" default:"1m"`
	DistanceLimit  int           `envconfig:"DELIVERYDESK_RATE_LIMIT_DISTANCE_LIMIT" default:"30"`
}

type SweeperConfig struct {
	Interval       time.Duration `envconfig:"DELIVERYDESK_SWEEPER_INTERVAL" default:"1h"`
	LockTTL        time.Duration `envconfig:"DELIVERYDESK_SWEEPER_LOCK_TTL" default:"30m"`
	ReconcileBatch int           `envconfig:"DELIVERYDESK_SWEEPER_RECONCILE_BATCH" default:"200"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DELIVERYDESK_AUTO_MIGRATE" default:"false"`
}

// legacyDSN assembles a postgres URL from the discrete host/user/name
// variables older deployments still set.
func (db DBConfig) legacyDSN() (string, error) {
	parts := map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName}
	var missing []string
	for _, env := range legacyDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		u.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return u.String(), nil
}
