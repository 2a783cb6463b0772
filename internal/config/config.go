package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

const envPrefix = "PHOTOSHOP_"

type Config struct {
	App struct {
		Name            string        `koanf:"name"`
		HTTPAddr        string        `koanf:"http_addr"`
		LogLevel        string        `koanf:"log_level"`
		LogFile         string        `koanf:"log_file"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
		MaxBodyBytes   int64         `koanf:"max_body_bytes"`
	} `koanf:"http"`

	Postgres struct {
		Host         string `koanf:"host"`
		Port         int    `koanf:"port"`
		User         string `koanf:"user"`
		Password     string `koanf:"password"`
		DBName       string `koanf:"dbname"`
		Migrations   string `koanf:"migrations"`
		MaxOpenConns int    `koanf:"max_open_conns"`
		MaxIdleConns int    `koanf:"max_idle_conns"`
	} `koanf:"postgres"`

	Catalog struct {
		Path       string `koanf:"path"`
		Migrations string `koanf:"migrations"`
	} `koanf:"catalog"`

	Redis struct {
		Addr       string        `koanf:"addr"`
		Password   string        `koanf:"password"`
		SessionTTL time.Duration `koanf:"session_ttl"`
	} `koanf:"redis"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Checkout struct {
		Currency string `koanf:"currency"`
		TaxRate  string `koanf:"tax_rate"`
	} `koanf:"checkout"`

	Gateway struct {
		BaseURL   string        `koanf:"base_url"`
		PublicKey string        `koanf:"public_key"`
		SecretKey string        `koanf:"secret_key"`
		ReturnURL string        `koanf:"return_url"`
		CancelURL string        `koanf:"cancel_url"`
		Timeout   time.Duration `koanf:"timeout"`
		Breaker   struct {
			MaxRequests      uint32        `koanf:"max_requests"`
			Interval         time.Duration `koanf:"interval"`
			Timeout          time.Duration `koanf:"timeout"`
			FailureThreshold uint32        `koanf:"failure_threshold"`
		} `koanf:"breaker"`
	} `koanf:"gateway"`

	Notifier struct {
		Kind  string `koanf:"kind"`
		Kafka struct {
			Brokers []string `koanf:"brokers"`
			Topic   string   `koanf:"topic"`
		} `koanf:"kafka"`
		RabbitMQ struct {
			URL      string `koanf:"url"`
			Exchange string `koanf:"exchange"`
		} `koanf:"rabbitmq"`
	} `koanf:"notifier"`

	Outbox struct {
		Tick    time.Duration `koanf:"tick"`
		Batch   int           `koanf:"batch"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"outbox"`

	Telemetry struct {
		Enabled      bool   `koanf:"enabled"`
		OTLPEndpoint string `koanf:"otlp_endpoint"`
		Environment  string `koanf:"environment"`
	} `koanf:"telemetry"`
}

// Load reads base.yaml, an optional <envName>.yaml overlay, then PHOTOSHOP_*
// environment variables (nesting with "__", e.g. PHOTOSHOP_GATEWAY__SECRET_KEY).
func Load(pathDir, envName string) (Config, error) {
	// a local .env is a convenience, not a requirement
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.Postgres.Host == "" || c.Postgres.DBName == "" {
		return fmt.Errorf("postgres.host and postgres.dbname required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url required")
	}
	if c.Gateway.SecretKey == "" {
		return fmt.Errorf("gateway.secret_key required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if len(c.Checkout.Currency) != 3 {
		return fmt.Errorf("checkout.currency must be a 3-letter code, got %q", c.Checkout.Currency)
	}
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	switch c.Notifier.Kind {
	case "kafka":
		if len(c.Notifier.Kafka.Brokers) == 0 {
			return fmt.Errorf("notifier.kafka.brokers required")
		}
	case "rabbitmq":
		if c.Notifier.RabbitMQ.URL == "" {
			return fmt.Errorf("notifier.rabbitmq.url required")
		}
	case "log":
	default:
		return fmt.Errorf("notifier.kind must be kafka, rabbitmq or log, got %q", c.Notifier.Kind)
	}
	return nil
}

func (c Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Checkout.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("checkout.tax_rate: %w", err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("checkout.tax_rate must not be negative")
	}
	return rate, nil
}
