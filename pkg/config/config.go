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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Gateway      GatewayConfig
	Billing      BillingConfig
	Sweep        SweepConfig
	Mailer       MailerConfig
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
	Env          string `envconfig:"STORELANE_APP_ENV" required:"true"`
	Port         string `envconfig:"STORELANE_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"STORELANE_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"STORELANE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STORELANE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STORELANE_DB_DSN"`
	Driver string `envconfig:"STORELANE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STORELANE_DB_HOST"`
	Port     int    `envconfig:"STORELANE_DB_PORT" default:"5432"`
	User     string `envconfig:"STORELANE_DB_USER"`
	Password string `envconfig:"STORELANE_DB_PASSWORD"`
	Name     string `envconfig:"STORELANE_DB_NAME"`
	SSLMode  string `envconfig:"STORELANE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STORELANE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STORELANE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STORELANE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STORELANE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STORELANE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STORELANE_REDIS_ADDR"`
	Password     string        `envconfig:"STORELANE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STORELANE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STORELANE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STORELANE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STORELANE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STORELANE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STORELANE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STORELANE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STORELANE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STORELANE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STORELANE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STORELANE_AUTO_MIGRATE" default:"false"`
}

// GatewayConfig holds the payment provider credentials and endpoints.
type GatewayConfig struct {
	BaseURL           string        `envconfig:"STORELANE_GATEWAY_BASE_URL" required:"true"`
	ClientID          string        `envconfig:"STORELANE_GATEWAY_CLIENT_ID" required:"true"`
	ClientSecret      string        `envconfig:"STORELANE_GATEWAY_CLIENT_SECRET" required:"true"`
	CallbackPublicKey string        `envconfig:"STORELANE_GATEWAY_CALLBACK_PUBLIC_KEY"`
	HTTPTimeout       time.Duration `envconfig:"STORELANE_GATEWAY_HTTP_TIMEOUT" default:"30s"`
	TokenExpiryMargin time.Duration `envconfig:"STORELANE_GATEWAY_TOKEN_EXPIRY_MARGIN" default:"60s"`
	SuccessPath       string        `envconfig:"STORELANE_GATEWAY_SUCCESS_PATH" default:"/checkout/success"`
	FailPath          string        `envconfig:"STORELANE_GATEWAY_FAIL_PATH" default:"/checkout/fail"`
}

type BillingConfig struct {
	SetupFeeCents   int64 `envconfig:"STORELANE_BILLING_SETUP_FEE_CENTS" default:"9900"`
	MonthlyFeeCents int64 `envconfig:"STORELANE_BILLING_MONTHLY_FEE_CENTS" default:"2900"`
}

type SweepConfig struct {
	Interval time.Duration `envconfig:"STORELANE_SWEEP_INTERVAL" default:"1h"`
}

type MailerConfig struct {
	APIKey      string `envconfig:"STORELANE_MAILER_API_KEY"`
	BaseURL     string `envconfig:"STORELANE_MAILER_BASE_URL" default:"https://api.sendgrid.com"`
	DefaultFrom string `envconfig:"STORELANE_MAILER_FROM_EMAIL"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
