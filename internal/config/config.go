package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	API              APIHTTPConfig           `env:",prefix=API_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	Auth             AuthConfig              `env:",prefix=AUTH_"`
	Protect          ProtectConfig           `env:",prefix=PROTECT_"`
	SMTP             SMTPConfig              `env:",prefix=SMTP_"`
	Workflow         WorkflowConfig          `env:",prefix=WORKFLOW_"`
	Reminder         ReminderConfig          `env:",prefix=REMINDER_"`
	Workers          WorkersConfig           `env:",prefix=WORKERS_"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
	// Format is text or json. Empty picks text for the local env.
	Format    string `env:"FORMAT"`
	AddSource bool   `env:"ADD_SOURCE,default=false"`
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type APIHTTPConfig struct {
	Host           string        `env:"HOST,default=0.0.0.0"`
	Port           uint16        `env:"PORT,default=5500"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT,default=1m"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=60s"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS,delimiter=;"`
	TrustProxy     bool          `env:"TRUST_PROXY,default=false"`
}

func (a APIHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string `env:"PATH,default=./data/subtracker.db"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS,default=1"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS,default=1"`
	MaxLifetime  string `env:"MAX_LIFETIME,default=5m"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h"`
}

// ProtectConfig drives the per-IP token bucket and the bot detection rule
// that guard /api/v1.
type ProtectConfig struct {
	Capacity       int           `env:"RATE_CAPACITY,default=10"`
	RefillTokens   int           `env:"RATE_REFILL,default=5"`
	RefillInterval time.Duration `env:"RATE_INTERVAL,default=10s"`
	BotMode        string        `env:"BOT_MODE,default=dry_run"`
	BotAllow       []string      `env:"BOT_ALLOW,delimiter=;,default=CATEGORY:SEARCH_ENGINE;CATEGORY:MONITOR;CATEGORY:PREVIEW;ip:127.0.0.1"`
}

type SMTPConfig struct {
	Host      string  `env:"HOST,default=smtp.gmail.com"`
	Port      int     `env:"PORT,default=587"`
	Username  string  `env:"USERNAME"`
	Password  string  `env:"PASSWORD"`
	From      string  `env:"FROM,default=no-reply@subtracker.local"`
	TLSPolicy string  `env:"TLS_POLICY,default=mandatory"`
	CACert    string  `env:"CA_CERT"`
	RateRPS   float64 `env:"RATE_RPS,default=5"`
	Mock      bool    `env:"MOCK,default=false"`
}

type WorkflowConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL,default=5s"`
	BatchSize    int           `env:"BATCH_SIZE,default=50"`
	Concurrency  int           `env:"CONCURRENCY,default=4"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS,default=3"`
	RetryBase    time.Duration `env:"RETRY_BASE,default=30s"`
	RetryMax     time.Duration `env:"RETRY_MAX,default=10m"`
	Lease        time.Duration `env:"LEASE,default=2m"`
}

type ReminderConfig struct {
	Timezone           string `env:"TIMEZONE,default=UTC"`
	RecheckStatus      bool   `env:"RECHECK_STATUS,default=false"`
	AccountSettingsURL string `env:"ACCOUNT_SETTINGS_URL,default=#"`
	SupportURL         string `env:"SUPPORT_URL,default=#"`
}

func (r ReminderConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load reminder timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

type WorkersConfig struct {
	ExpirationSchedule   string `env:"EXPIRATION_SCHEDULE,default=10 0 * * *"`
	RetryTriggerSchedule string `env:"RETRY_TRIGGER_SCHEDULE,default=*/5 * * * *"`
	RetryTriggerBatch    int    `env:"RETRY_TRIGGER_BATCH,default=100"`
}
