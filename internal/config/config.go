package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Store     StoreConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Scheduler SchedulerConfig
	Delivery  DeliveryConfig
	Vapi      VapiConfig
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS,default=:8080"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL,default=info"`
}

type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER,default=postgres"`
	PostgresURL string `env:"POSTGRES_URL"`
	MaxConns    int32  `env:"POSTGRES_MAX_CONNS,default=10"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=false"`
}

type RedisConfig struct {
	Address    string `env:"REDIS_ADDR"`
	Password   string `env:"REDIS_PASSWORD"`
	DB         int    `env:"REDIS_DB,default=0"`
	TTLSeconds int    `env:"REDIS_TTL_SECONDS,default=604800"`
}

type AMQPConfig struct {
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE,default=reminders.events"`
}

type SchedulerConfig struct {
	IntervalSeconds       int `env:"SCHED_INTERVAL_SECONDS,default=60"`
	WindowSeconds         int `env:"SCHED_WINDOW_SECONDS"`
	BatchSize             int `env:"SCHED_BATCH_SIZE,default=50"`
	Workers               int `env:"SCHED_WORKERS,default=4"`
	StuckTimeoutSeconds   int `env:"STUCK_TIMEOUT_SECONDS,default=600"`
	ReaperIntervalSeconds int `env:"REAPER_INTERVAL_SECONDS,default=300"`
}

type DeliveryConfig struct {
	MaxAttempts           int `env:"MAX_ATTEMPTS,default=3"`
	RetryBaseDelaySeconds int `env:"RETRY_BASE_DELAY_SECONDS,default=60"`
	CallTimeoutSeconds    int `env:"CALL_TIMEOUT_SECONDS,default=30"`
}

type VapiConfig struct {
	BaseURL        string `env:"VAPI_BASE_URL,default=https://api.vapi.ai"`
	APIKey         string `env:"VAPI_API_KEY"`
	PhoneNumberID  string `env:"VAPI_PHONE_NUMBER_ID"`
	AssistantModel string `env:"VAPI_ASSISTANT_MODEL,default=gpt-3.5-turbo"`
	VoiceID        string `env:"VAPI_VOICE_ID,default=21m00Tcm4TlvDq8ikWAM"`
}

// LoadAll reads an optional .env file and then the process environment.
func LoadAll(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(ctx, envconfig.OsLookuper())
}

func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []error

	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.Store.PostgresURL == "" {
			errs = append(errs, errors.New("missing required env var: POSTGRES_URL"))
		}
		if cfg.Store.MaxConns <= 0 {
			errs = append(errs, errors.New("POSTGRES_MAX_CONNS must be > 0"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.Store.Driver))
	}

	if _, err := cfg.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if cfg.Vapi.APIKey == "" {
		errs = append(errs, errors.New("missing required env var: VAPI_API_KEY"))
	}
	if cfg.Vapi.PhoneNumberID == "" {
		errs = append(errs, errors.New("missing required env var: VAPI_PHONE_NUMBER_ID"))
	}

	s := cfg.Scheduler
	if s.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if s.WindowSeconds < 0 {
		errs = append(errs, errors.New("SCHED_WINDOW_SECONDS must be >= 0"))
	}
	if s.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}
	if s.Workers <= 0 {
		errs = append(errs, errors.New("SCHED_WORKERS must be > 0"))
	}
	if s.ReaperIntervalSeconds <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL_SECONDS must be > 0"))
	}

	d := cfg.Delivery
	if d.MaxAttempts <= 0 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be > 0"))
	}
	if d.RetryBaseDelaySeconds <= 0 {
		errs = append(errs, errors.New("RETRY_BASE_DELAY_SECONDS must be > 0"))
	}
	if d.CallTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("CALL_TIMEOUT_SECONDS must be > 0"))
	}
	// A live call must never look stuck to the reaper.
	if s.StuckTimeoutSeconds <= d.CallTimeoutSeconds {
		errs = append(errs, fmt.Errorf("STUCK_TIMEOUT_SECONDS (%d) must be greater than CALL_TIMEOUT_SECONDS (%d)",
			s.StuckTimeoutSeconds, d.CallTimeoutSeconds))
	}

	if cfg.Redis.Address != "" && cfg.Redis.TTLSeconds <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}

	return errors.Join(errs...)
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

func (r RedisConfig) TTL() time.Duration {
	return seconds(r.TTLSeconds)
}

func (a AMQPConfig) Enabled() bool {
	return a.URL != ""
}

func (s SchedulerConfig) Interval() time.Duration {
	return seconds(s.IntervalSeconds)
}

// Window defaults to the poll interval so that consecutive cycles overlap
// without gaps.
func (s SchedulerConfig) Window() time.Duration {
	if s.WindowSeconds == 0 {
		return s.Interval()
	}
	return seconds(s.WindowSeconds)
}

func (s SchedulerConfig) StuckTimeout() time.Duration {
	return seconds(s.StuckTimeoutSeconds)
}

func (s SchedulerConfig) ReaperInterval() time.Duration {
	return seconds(s.ReaperIntervalSeconds)
}

func (d DeliveryConfig) RetryBaseDelay() time.Duration {
	return seconds(d.RetryBaseDelaySeconds)
}

func (d DeliveryConfig) CallTimeout() time.Duration {
	return seconds(d.CallTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
