package config

const (
	EnvPrefix = "FULFILLMENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv  = "FULFILLMENT_APP_ENV"
	EnvAppPort = "FULFILLMENT_APP_PORT"

	EnvDBDSN    = "FULFILLMENT_DB_DSN"
	EnvDBDriver = "FULFILLMENT_DB_DRIVER"
	EnvDBHost   = "FULFILLMENT_DB_HOST"
	EnvDBUser   = "FULFILLMENT_DB_USER"
	EnvDBName   = "FULFILLMENT_DB_NAME"

	EnvRedisURL = "FULFILLMENT_REDIS_URL"

	EnvMarketplaceBaseURL    = "FULFILLMENT_MARKETPLACE_BASE_URL"
	EnvMarketplaceCampaignID = "FULFILLMENT_MARKETPLACE_CAMPAIGN_ID"
	EnvMarketplaceOAuthToken = "FULFILLMENT_MARKETPLACE_OAUTH_TOKEN"

	EnvWorkerBatchSize    = "FULFILLMENT_WORKER_BATCH_SIZE"
	EnvWorkerIdleInterval = "FULFILLMENT_WORKER_IDLE_INTERVAL"

	EnvAdminPassword  = "FULFILLMENT_ADMIN_PASSWORD"
	EnvAdminJWTSecret = "FULFILLMENT_ADMIN_JWT_SECRET"

	EnvGCPProjectID             = "FULFILLMENT_GCP_PROJECT_ID"
	EnvPubSubFulfillmentTopic   = "FULFILLMENT_PUBSUB_FULFILLMENT_TOPIC"
	EnvPubSubFulfillmentSub     = "FULFILLMENT_PUBSUB_FULFILLMENT_SUBSCRIPTION"
	EnvBigQueryFulfillmentTable = "FULFILLMENT_BIGQUERY_EVENTS_TABLE"
)

// legacyDBEnvVars are required together when no DSN is provided.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
