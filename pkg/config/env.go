package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "PAGEHAVEN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PAGEHAVEN_DB_DSN"
	EnvDBHost = "PAGEHAVEN_DB_HOST"
	EnvDBUser = "PAGEHAVEN_DB_USER"
	EnvDBName = "PAGEHAVEN_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
