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
	GCP          GCPConfig
	PubSub       PubSubConfig
	Marketplace  MarketplaceConfig
	Sync         SyncConfig
	Lock         LockConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MPSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"MPSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MPSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MPSYNC_LOG_WARN_STACK" default:"false"`
	// APIToken guards the operator endpoints. Empty disables the check.
	APIToken    string   `envconfig:"MPSYNC_API_TOKEN"`
	CORSOrigins []string `envconfig:"MPSYNC_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"MPSYNC_SERVICE_KIND" default:"sync-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"MPSYNC_DB_DSN"`
	Driver string `envconfig:"MPSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MPSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"MPSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MPSYNC_DB_USER"`
	LegacyPassword string `envconfig:"MPSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"MPSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"MPSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MPSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MPSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MPSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MPSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MPSYNC_DB_SLOW_QUERY" default:"0s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MPSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MPSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"MPSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"MPSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MPSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MPSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MPSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MPSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MPSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MPSYNC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"MPSYNC_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	SyncTopic        string        `envconfig:"MPSYNC_PUBSUB_SYNC_TOPIC" default:"mps-sync-tasks"`
	SyncSubscription string        `envconfig:"MPSYNC_PUBSUB_SYNC_SUBSCRIPTION" required:"true"`
	MaxOutstanding   int           `envconfig:"MPSYNC_PUBSUB_MAX_OUTSTANDING" default:"4"`
	IdempotencyTTL   time.Duration `envconfig:"MPSYNC_PUBSUB_IDEMPOTENCY_TTL" default:"24h"`
}

// MarketplaceConfig carries endpoints and per-call ceilings of the marketplace APIs.
type MarketplaceConfig struct {
	SellerBaseURL      string        `envconfig:"MPSYNC_MP_SELLER_BASE_URL" default:"https://api-seller.ozon.ru"`
	PerformanceBaseURL string        `envconfig:"MPSYNC_MP_PERFORMANCE_BASE_URL" default:"https://api-performance.ozon.ru"`
	RequestTimeout     time.Duration `envconfig:"MPSYNC_MP_REQUEST_TIMEOUT" default:"300s"`
	APILimitDays       int           `envconfig:"MPSYNC_MP_API_LIMIT_DAYS" default:"90"`
	TransactionDays    int           `envconfig:"MPSYNC_MP_TRANSACTION_LIMIT_DAYS" default:"30"`
	LimitCampaigns     int           `envconfig:"MPSYNC_MP_LIMIT_CAMPAIGNS" default:"10"`
	APILimitMetrics    int           `envconfig:"MPSYNC_MP_API_LIMIT_METRICS" default:"14"`
	ReportLimitDays    int           `envconfig:"MPSYNC_MP_REPORT_LIMIT_DAYS" default:"62"`
	ProductChunkSize   int           `envconfig:"MPSYNC_MP_PRODUCT_CHUNK_SIZE" default:"1000"`
	Debug              bool          `envconfig:"MPSYNC_MP_DEBUG" default:"false"`
}

type SyncConfig struct {
	DefaultDays          int           `envconfig:"MPSYNC_SYNC_DEFAULT_DAYS" default:"1"`
	FullSyncDays         int           `envconfig:"MPSYNC_SYNC_FULL_DAYS" default:"180"`
	OrderChunkSize       int           `envconfig:"MPSYNC_SYNC_ORDER_CHUNK_SIZE" default:"3000"`
	TransactionChunkSize int           `envconfig:"MPSYNC_SYNC_TRANSACTION_CHUNK_SIZE" default:"5000"`
	InitialOrderDays     int           `envconfig:"MPSYNC_SYNC_INITIAL_ORDER_DAYS" default:"360"`
	WindowBoundary       string        `envconfig:"MPSYNC_SYNC_WINDOW_BOUNDARY" default:"overlap"`
	CoolDown             time.Duration `envconfig:"MPSYNC_SYNC_COOL_DOWN" default:"15m"`
	ReportRetention      time.Duration `envconfig:"MPSYNC_SYNC_REPORT_RETENTION" default:"72h"`
	ReportCheckBatch     int           `envconfig:"MPSYNC_SYNC_REPORT_CHECK_BATCH" default:"5"`
	MaxStatisticsDays    int           `envconfig:"MPSYNC_SYNC_MAX_STATISTICS_DAYS" default:"60"`
}

func (s SyncConfig) validate() error {
	switch strings.ToLower(s.WindowBoundary) {
	case WindowBoundaryOverlap, WindowBoundaryContiguous:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvSyncWindowBoundary, WindowBoundaryOverlap, WindowBoundaryContiguous)
	}
}

type LockConfig struct {
	Timeout     time.Duration `envconfig:"MPSYNC_LOCK_TIMEOUT" default:"60s"`
	Expire      time.Duration `envconfig:"MPSYNC_LOCK_EXPIRE" default:"300s"`
	MinimumLife time.Duration `envconfig:"MPSYNC_LOCK_MINIMUM_LIFE" default:"0s"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"MPSYNC_CRON_INTERVAL" default:"5m"`
	StocksEvery            time.Duration `envconfig:"MPSYNC_CRON_STOCKS_EVERY" default:"1h"`
	AnalyticsEvery         time.Duration `envconfig:"MPSYNC_CRON_ANALYTICS_EVERY" default:"6h"`
	TransactionsEvery      time.Duration `envconfig:"MPSYNC_CRON_TRANSACTIONS_EVERY" default:"1h"`
	OrdersEvery            time.Duration `envconfig:"MPSYNC_CRON_ORDERS_EVERY" default:"30m"`
	CampaignsEvery         time.Duration `envconfig:"MPSYNC_CRON_CAMPAIGNS_EVERY" default:"1h"`
	CampaignReportsEvery   time.Duration `envconfig:"MPSYNC_CRON_CAMPAIGN_REPORTS_EVERY" default:"24h"`
	CheckReportsEvery      time.Duration `envconfig:"MPSYNC_CRON_CHECK_REPORTS_EVERY" default:"5m"`
	CampaignStatisticsDays int           `envconfig:"MPSYNC_CRON_CAMPAIGN_STATISTICS_DAYS" default:"3"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MPSYNC_AUTO_MIGRATE" default:"false"`
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
