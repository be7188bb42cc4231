package config

// EnvPrefix namespaces every environment variable consumed by the platform.
const EnvPrefix = "STORELANE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv    = "STORELANE_APP_ENV"
	EnvPort      = "STORELANE_APP_PORT"
	EnvDBDSN     = "STORELANE_DB_DSN"
	EnvDBHost    = "STORELANE_DB_HOST"
	EnvDBUser    = "STORELANE_DB_USER"
	EnvDBName    = "STORELANE_DB_NAME"
	EnvRedisURL  = "STORELANE_REDIS_URL"
	EnvJWTSecret = "STORELANE_JWT_SECRET"
	EnvJWTIssuer = "STORELANE_JWT_ISSUER"

	EnvGatewayBaseURL      = "STORELANE_GATEWAY_BASE_URL"
	EnvGatewayClientID     = "STORELANE_GATEWAY_CLIENT_ID"
	EnvGatewayClientSecret = "STORELANE_GATEWAY_CLIENT_SECRET"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
