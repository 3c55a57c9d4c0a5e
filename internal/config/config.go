package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/josh-kwaku/umrah-va-gateway/internal/gateway"
	"github.com/josh-kwaku/umrah-va-gateway/internal/queue"
	"github.com/josh-kwaku/umrah-va-gateway/internal/repository"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int           `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int           `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`

	GatewayMode       string        `env:"GATEWAY_MODE" envDefault:"simulated"`
	MidtransServerKey string        `env:"MIDTRANS_SERVER_KEY"`
	MidtransBaseURL   string        `env:"MIDTRANS_BASE_URL" envDefault:"https://api.sandbox.midtrans.com"`
	GatewayTimeout    time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	VATTL           time.Duration `env:"VA_TTL" envDefault:"24h"`
	VASweepInterval time.Duration `env:"VA_SWEEP_INTERVAL" envDefault:"5m"`

	QueueWorkers      int           `env:"QUEUE_WORKERS" envDefault:"5"`
	QueueMaxAttempts  int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"8"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`
	QueueBackoffBase  time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"5s"`
	QueueBackoffMax   time.Duration `env:"QUEUE_BACKOFF_MAX" envDefault:"30m"`
	QueueLease        time.Duration `env:"QUEUE_LEASE" envDefault:"5m"`

	RedisURL       string `env:"REDIS_URL"`
	KafkaBrokers   string `env:"KAFKA_BROKERS"`
	KafkaTopic     string `env:"KAFKA_TOPIC" envDefault:"payments.confirmed"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads a .env file when one exists and then parses the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: dotenv: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	mode := gateway.Mode(c.GatewayMode)
	if !mode.IsValid() {
		return fmt.Errorf("GATEWAY_MODE must be %q or %q, got %q", gateway.ModeSimulated, gateway.ModeLive, c.GatewayMode)
	}
	if mode == gateway.ModeLive && c.MidtransServerKey == "" {
		return errors.New("MIDTRANS_SERVER_KEY is required in live mode")
	}
	if c.QueueWorkers <= 0 {
		return errors.New("QUEUE_WORKERS must be positive")
	}
	if c.QueueMaxAttempts <= 0 {
		return errors.New("QUEUE_MAX_ATTEMPTS must be positive")
	}
	if c.VATTL <= 0 {
		return errors.New("VA_TTL must be positive")
	}
	if c.VASweepInterval <= 0 {
		return errors.New("VA_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Mode:      gateway.Mode(c.GatewayMode),
		ServerKey: c.MidtransServerKey,
		BaseURL:   c.MidtransBaseURL,
		Timeout:   c.GatewayTimeout,
	}
}

func (c *Config) QueueConfig() queue.Config {
	return queue.Config{
		Workers:      c.QueueWorkers,
		MaxAttempts:  c.QueueMaxAttempts,
		PollInterval: c.QueuePollInterval,
		BackoffBase:  c.QueueBackoffBase,
		BackoffMax:   c.QueueBackoffMax,
		Lease:        c.QueueLease,
	}
}

func (c *Config) PoolConfig() repository.PoolConfig {
	return repository.PoolConfig{
		MaxOpenConns:     c.DBMaxOpenConns,
		MaxIdleConns:     c.DBMaxIdleConns,
		ConnMaxLifetimeS: c.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: c.DBConnMaxIdleTimeS,
		ConnectTimeout:   c.DBConnectTimeout,
	}
}

// Brokers splits KAFKA_BROKERS on commas. An empty value disables Kafka.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
