package constants

// SSM Parameter Store keys. Every Lambda loads the whole /homecare tree at
// cold start.
const (
	SSM_PATH                = "/homecare"
	ALLOWED_ORIGINS         = "/homecare/ALLOWED_ORIGINS"
	DATABASE_RDS_ENDPOINT   = "/homecare/DATABASE_RDS_ENDPOINT"
	DATABASE_PORT           = "/homecare/DATABASE_PORT"
	DATABASE_NAME           = "/homecare/DATABASE_NAME"
	DATABASE_USERNAME       = "/homecare/DATABASE_USERNAME"
	DATABASE_PASSWORD       = "/homecare/DATABASE_PASSWORD"
	SSL_MODE                = "/homecare/SSL_MODE"
	COGNITO_USER_POOL_ID    = "/homecare/COGNITO_USER_POOL_ID"
	ATTACHMENTS_BUCKET      = "/homecare/ATTACHMENTS_BUCKET"
	STRIPE_SECRET_KEY       = "/homecare/STRIPE_SECRET_KEY"
	STRIPE_WEBHOOK_SECRET   = "/homecare/STRIPE_WEBHOOK_SECRET"
	REDIS_ADDR              = "/homecare/REDIS_ADDR"
	REDIS_PASSWORD          = "/homecare/REDIS_PASSWORD"
	REDIS_TLS               = "/homecare/REDIS_TLS"
	WHATSAPP_BRIDGE_URL     = "/homecare/WHATSAPP_BRIDGE_URL"
	WHATSAPP_BRIDGE_API_KEY = "/homecare/WHATSAPP_BRIDGE_API_KEY"
	DRIVER_NAME             = "postgres"
)
