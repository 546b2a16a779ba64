package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"
	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvGCPProjectID  = "STOREFRONT_GCP_PROJECT_ID"
	EnvOrdersTopic   = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvStockTopic    = "STOREFRONT_PUBSUB_STOCK_TOPIC"
	EnvPendingTTL    = "STOREFRONT_INVENTORY_PENDING_ORDER_TTL"
	EnvOutboxBatch   = "STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvIdempotentTTL = "STOREFRONT_IDEMPOTENCY_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	Inventory    InventoryConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	Payments     PaymentsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.checkBounds(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// checkBounds rejects tunables that would stall a loop or disable a limit.
func (c *Config) checkBounds() error {
	var err error
	bound := func(name string, ok bool) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%s is out of range", name))
		}
	}
	bound("STOREFRONT_DB_TX_RETRIES", c.DB.TxRetries >= 0)
	bound("STOREFRONT_JWT_EXPIRATION_MINUTES", c.JWT.ExpirationMinutes > 0)
	bound("STOREFRONT_JWT_CLOCK_SKEW", c.JWT.ClockSkew >= 0)
	bound("STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE", c.Outbox.BatchSize > 0)
	bound("STOREFRONT_OUTBOX_MAX_ATTEMPTS", c.Outbox.MaxAttempts > 0)
	bound("STOREFRONT_INVENTORY_PENDING_ORDER_TTL", c.Inventory.PendingOrderTTL > 0)
	bound("STOREFRONT_INVENTORY_SWEEP_INTERVAL", c.Inventory.SweepInterval > 0)
	bound("STOREFRONT_RATE_LIMIT_CHECKOUT_WINDOW", c.RateLimit.CheckoutWindow > 0)
	bound("STOREFRONT_RATE_LIMIT_CHECKOUT_LIMIT", c.RateLimit.CheckoutLimit > 0)
	bound("STOREFRONT_RATE_LIMIT_AVAILABILITY_WINDOW", c.RateLimit.AvailabilityWindow > 0)
	bound("STOREFRONT_RATE_LIMIT_AVAILABILITY_LIMIT", c.RateLimit.AvailabilityLimit > 0)
	return err
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
	// MetricsAddr enables a standalone /metrics listener for the workers.
	MetricsAddr string `envconfig:"STOREFRONT_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
	TxRetries          int           `envconfig:"STOREFRONT_DB_TX_RETRIES" default:"2"`
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

// JWTConfig holds the shared secret used to verify bearer tokens minted by the
// session service.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`

	ExpirationMinutes int           `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
	ClockSkew         time.Duration `envconfig:"STOREFRONT_JWT_CLOCK_SKEW" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"sf-order-events"`
	StockTopic        string `envconfig:"STOREFRONT_PUBSUB_STOCK_TOPIC" default:"sf-stock-events"`
	StockSubscription string `envconfig:"STOREFRONT_PUBSUB_STOCK_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"14"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// InventoryConfig tunes the pending-order expiry sweep.
type InventoryConfig struct {
	PendingOrderTTL time.Duration `envconfig:"STOREFRONT_INVENTORY_PENDING_ORDER_TTL" default:"24h"`
	SweepInterval   time.Duration `envconfig:"STOREFRONT_INVENTORY_SWEEP_INTERVAL" default:"5m"`
	SweepBatchSize  int           `envconfig:"STOREFRONT_INVENTORY_SWEEP_BATCH_SIZE" default:"200"`
	SweepJobTimeout time.Duration `envconfig:"STOREFRONT_INVENTORY_SWEEP_JOB_TIMEOUT" default:"2m"`
	// AvailabilityCacheTTL bounds public availability staleness. Zero disables the cache.
	AvailabilityCacheTTL time.Duration `envconfig:"STOREFRONT_INVENTORY_AVAILABILITY_CACHE_TTL" default:"30s"`
}

// RateLimitConfig sets fixed-window budgets for the write-heavy surfaces.
type RateLimitConfig struct {
	CheckoutWindow     time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_LIMIT" default:"10"`
	AvailabilityWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_AVAILABILITY_WINDOW" default:"1m"`
	AvailabilityLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_AVAILABILITY_LIMIT" default:"120"`
}

// PaymentsConfig authenticates the payment gateway adapter callback.
type PaymentsConfig struct {
	CallbackSecret string `envconfig:"STOREFRONT_PAYMENTS_CALLBACK_SECRET"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"24h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:storefront.db?cache=shared"
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
