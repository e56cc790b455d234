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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Flutterwave  FlutterwaveConfig
	Stripe       StripeConfig
	BankTransfer BankTransferConfig
	Gateway      GatewayConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAGEHAVEN_APP_ENV" required:"true"`
	Port         string `envconfig:"PAGEHAVEN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAGEHAVEN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAGEHAVEN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PAGEHAVEN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAGEHAVEN_DB_DSN"`
	Driver string `envconfig:"PAGEHAVEN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAGEHAVEN_DB_HOST"`
	LegacyPort     int    `envconfig:"PAGEHAVEN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAGEHAVEN_DB_USER"`
	LegacyPassword string `envconfig:"PAGEHAVEN_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAGEHAVEN_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAGEHAVEN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAGEHAVEN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAGEHAVEN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAGEHAVEN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAGEHAVEN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAGEHAVEN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAGEHAVEN_REDIS_ADDR"`
	Password     string        `envconfig:"PAGEHAVEN_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAGEHAVEN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAGEHAVEN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAGEHAVEN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAGEHAVEN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAGEHAVEN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAGEHAVEN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PAGEHAVEN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAGEHAVEN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PAGEHAVEN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAGEHAVEN_AUTO_MIGRATE" default:"false"`
}

// FlutterwaveConfig configures the Flutterwave payment provider. The provider
// is disabled when the secret key is absent.
type FlutterwaveConfig struct {
	SecretKey     string `envconfig:"PAGEHAVEN_FLUTTERWAVE_SECRET_KEY"`
	WebhookSecret string `envconfig:"PAGEHAVEN_FLUTTERWAVE_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"PAGEHAVEN_FLUTTERWAVE_BASE_URL" default:"https://api.flutterwave.com/v3"`
	RedirectURL   string `envconfig:"PAGEHAVEN_FLUTTERWAVE_REDIRECT_URL"`
}

func (f FlutterwaveConfig) Enabled() bool {
	return strings.TrimSpace(f.SecretKey) != ""
}

// StripeConfig configures the Stripe payment provider. The provider is
// disabled when the API key is absent.
type StripeConfig struct {
	APIKey        string `envconfig:"PAGEHAVEN_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"PAGEHAVEN_STRIPE_WEBHOOK_SECRET"`
}

func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// BankTransferConfig holds the account details rendered to buyers plus the
// proof review policy.
type BankTransferConfig struct {
	BankName         string        `envconfig:"PAGEHAVEN_BANK_TRANSFER_BANK_NAME"`
	AccountName      string        `envconfig:"PAGEHAVEN_BANK_TRANSFER_ACCOUNT_NAME"`
	AccountNumber    string        `envconfig:"PAGEHAVEN_BANK_TRANSFER_ACCOUNT_NUMBER"`
	Expiry           time.Duration `envconfig:"PAGEHAVEN_BANK_TRANSFER_EXPIRY" default:"48h"`
	MaxProofAttempts int           `envconfig:"PAGEHAVEN_BANK_TRANSFER_MAX_PROOF_ATTEMPTS" default:"3"`
}

func (b BankTransferConfig) Enabled() bool {
	return strings.TrimSpace(b.AccountNumber) != ""
}

type GatewayConfig struct {
	Timeout     time.Duration `envconfig:"PAGEHAVEN_GATEWAY_TIMEOUT" default:"10s"`
	MaxAttempts int           `envconfig:"PAGEHAVEN_GATEWAY_MAX_ATTEMPTS" default:"3"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"PAGEHAVEN_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAGEHAVEN_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"PAGEHAVEN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"PAGEHAVEN_PUBSUB_ORDER_EVENTS_TOPIC" default:"ph-order-events"`
	OrderEventsSubscription string `envconfig:"PAGEHAVEN_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAGEHAVEN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAGEHAVEN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAGEHAVEN_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"PAGEHAVEN_CRON_INTERVAL" default:"5m"`
	OutboxRetention time.Duration `envconfig:"PAGEHAVEN_CRON_OUTBOX_RETENTION" default:"168h"`
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
