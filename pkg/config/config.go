package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Marketplace  MarketplaceConfig
	Worker       WorkerConfig
	Admin        AdminConfig
	Password     PasswordConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
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
	Env          string `envconfig:"FULFILLMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"FULFILLMENT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FULFILLMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FULFILLMENT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"FULFILLMENT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FULFILLMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FULFILLMENT_DB_DSN"`
	Driver string `envconfig:"FULFILLMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FULFILLMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"FULFILLMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FULFILLMENT_DB_USER"`
	LegacyPassword string `envconfig:"FULFILLMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FULFILLMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FULFILLMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FULFILLMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FULFILLMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FULFILLMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this as warnings; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"FULFILLMENT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FULFILLMENT_REDIS_URL"`
	Address      string        `envconfig:"FULFILLMENT_REDIS_ADDR"`
	Password     string        `envconfig:"FULFILLMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FULFILLMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FULFILLMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FULFILLMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FULFILLMENT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"FULFILLMENT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// IsConfigured reports whether a redis endpoint was provided.
func (r RedisConfig) IsConfigured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FULFILLMENT_AUTO_MIGRATE" default:"false"`
}

// MarketplaceConfig holds the partner API credentials used to read orders and push codes.
type MarketplaceConfig struct {
	BaseURL    string        `envconfig:"FULFILLMENT_MARKETPLACE_BASE_URL" default:"https://api.partner.market.yandex.ru"`
	CampaignID string        `envconfig:"FULFILLMENT_MARKETPLACE_CAMPAIGN_ID"`
	BusinessID string        `envconfig:"FULFILLMENT_MARKETPLACE_BUSINESS_ID"`
	OAuthToken string        `envconfig:"FULFILLMENT_MARKETPLACE_OAUTH_TOKEN"`
	Timeout    time.Duration `envconfig:"FULFILLMENT_MARKETPLACE_TIMEOUT" default:"30s"`

	// NotificationName is echoed in the notification PING handshake.
	NotificationName string `envconfig:"FULFILLMENT_MARKETPLACE_NOTIFICATION_NAME" default:"digital-fulfillment"`
}

// Validate reports every missing credential at once.
func (m MarketplaceConfig) Validate() error {
	var err error
	if strings.TrimSpace(m.BaseURL) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required", EnvMarketplaceBaseURL))
	}
	if strings.TrimSpace(m.CampaignID) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required", EnvMarketplaceCampaignID))
	}
	if strings.TrimSpace(m.OAuthToken) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required", EnvMarketplaceOAuthToken))
	}
	return err
}

// WorkerConfig drives the fulfillment dispatch loop.
type WorkerConfig struct {
	BatchSize     int           `envconfig:"FULFILLMENT_WORKER_BATCH_SIZE" default:"10"`
	IdleInterval  time.Duration `envconfig:"FULFILLMENT_WORKER_IDLE_INTERVAL" default:"5s"`
	BatchInterval time.Duration `envconfig:"FULFILLMENT_WORKER_BATCH_INTERVAL" default:"2s"`
	ErrorBackoff  time.Duration `envconfig:"FULFILLMENT_WORKER_ERROR_BACKOFF" default:"10s"`
	MetricsAddr   string        `envconfig:"FULFILLMENT_WORKER_METRICS_ADDR"`
}

type AdminConfig struct {
	Password          string `envconfig:"FULFILLMENT_ADMIN_PASSWORD"`
	PasswordHash      string `envconfig:"FULFILLMENT_ADMIN_PASSWORD_HASH"`
	JWTSecret         string `envconfig:"FULFILLMENT_ADMIN_JWT_SECRET"`
	JWTIssuer         string `envconfig:"FULFILLMENT_ADMIN_JWT_ISSUER" default:"digital-fulfillment"`
	ExpirationMinutes int    `envconfig:"FULFILLMENT_ADMIN_JWT_EXP_MINUTES" default:"720"`

	LoginWindow  time.Duration `envconfig:"FULFILLMENT_ADMIN_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit int           `envconfig:"FULFILLMENT_ADMIN_LOGIN_IP_LIMIT" default:"10"`

	CORSOrigins []string `envconfig:"FULFILLMENT_ADMIN_CORS_ORIGINS" default:"http://localhost:3000"`
}

// HasCredentials reports whether any admin authentication method is configured.
func (a AdminConfig) HasCredentials() bool {
	return strings.TrimSpace(a.Password) != "" || strings.TrimSpace(a.PasswordHash) != ""
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FULFILLMENT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FULFILLMENT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"FULFILLMENT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"FULFILLMENT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FULFILLMENT_ARGON_KEY_LEN" default:"32"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FULFILLMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FULFILLMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FULFILLMENT_OUTBOX_RETENTION_DAYS" default:"30"`

	// IdempotencyTTL bounds how long consumers remember a processed event id.
	IdempotencyTTL time.Duration `envconfig:"FULFILLMENT_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
	MetricsAddr    string        `envconfig:"FULFILLMENT_OUTBOX_METRICS_ADDR"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"FULFILLMENT_CRON_INTERVAL" default:"15m"`
	StaleReservationAfter time.Duration `envconfig:"FULFILLMENT_CRON_STALE_RESERVATION_AFTER" default:"30m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FULFILLMENT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FULFILLMENT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	FulfillmentTopic        string `envconfig:"FULFILLMENT_PUBSUB_FULFILLMENT_TOPIC"`
	FulfillmentSubscription string `envconfig:"FULFILLMENT_PUBSUB_FULFILLMENT_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset                string `envconfig:"FULFILLMENT_BIGQUERY_DATASET" default:"fulfillment"`
	FulfillmentEventsTable string `envconfig:"FULFILLMENT_BIGQUERY_EVENTS_TABLE" default:"fulfillment_events"`
	CreateTables           bool   `envconfig:"FULFILLMENT_BIGQUERY_CREATE_TABLES" default:"false"`
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
