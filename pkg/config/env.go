package config

// EnvPrefix is passed to envconfig; every field carries an explicit name.
const EnvPrefix = "MPSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	WindowBoundaryOverlap    = "overlap"
	WindowBoundaryContiguous = "contiguous"
)

const (
	EnvAppEnv   = "MPSYNC_APP_ENV"
	EnvPort     = "MPSYNC_APP_PORT"
	EnvLogLevel = "MPSYNC_LOG_LEVEL"
	EnvAPIToken = "MPSYNC_API_TOKEN"

	EnvDBDSN  = "MPSYNC_DB_DSN"
	EnvDBHost = "MPSYNC_DB_HOST"
	EnvDBUser = "MPSYNC_DB_USER"
	EnvDBName = "MPSYNC_DB_NAME"

	EnvRedisURL = "MPSYNC_REDIS_URL"

	EnvGCPProjectID = "MPSYNC_GCP_PROJECT_ID"

	EnvPubSubSyncTopic        = "MPSYNC_PUBSUB_SYNC_TOPIC"
	EnvPubSubSyncSubscription = "MPSYNC_PUBSUB_SYNC_SUBSCRIPTION"

	EnvMarketplaceLimitDays = "MPSYNC_MP_API_LIMIT_DAYS"

	EnvSyncWindowBoundary = "MPSYNC_SYNC_WINDOW_BOUNDARY"
	EnvLockMinimumLife    = "MPSYNC_LOCK_MINIMUM_LIFE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
