// Package config loads service settings from an optional YAML file and lets
// ESCROW_* environment variables override individual values.
package config

import (
	"errors"
	"fmt"
	"lc_escrow/pkg/validator"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Protocol      ProtocolConfig      `yaml:"protocol"`
	Journal       JournalConfig       `yaml:"journal"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	LogLevel      string              `yaml:"log_level" env:"ESCROW_LOG_LEVEL"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" env:"ESCROW_HTTP_ADDR"`
	MetricsAddr     string        `yaml:"metrics_addr" env:"ESCROW_METRICS_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ESCROW_SHUTDOWN_TIMEOUT"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"ESCROW_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"ESCROW_TOKEN_TTL"`
}

// ProtocolConfig names the fixed accounts of a deployment.
type ProtocolConfig struct {
	AdminAccount  string `yaml:"admin_account" env:"ESCROW_ADMIN_ACCOUNT"`
	EngineAccount string `yaml:"engine_account" env:"ESCROW_ENGINE_ACCOUNT"`
	TokenSymbol   string `yaml:"token_symbol" env:"ESCROW_TOKEN_SYMBOL"`
	TokenMinter   string `yaml:"token_minter" env:"ESCROW_TOKEN_MINTER"`
}

type JournalConfig struct {
	Path string `yaml:"path" env:"ESCROW_JOURNAL_PATH"`
}

// KafkaConfig is optional; with no brokers events are not streamed.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"ESCROW_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"ESCROW_KAFKA_TOPIC"`
}

type NotificationsConfig struct {
	Workers         int           `yaml:"workers" env:"ESCROW_NOTIFICATION_WORKERS"`
	QueueSize       int           `yaml:"queue_size" env:"ESCROW_NOTIFICATION_QUEUE_SIZE"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"ESCROW_NOTIFICATION_DELIVERY_TIMEOUT"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"ESCROW_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"ESCROW_RATE_LIMIT_BURST"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			MetricsAddr:     ":9090",
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Protocol: ProtocolConfig{
			TokenSymbol: "USD",
		},
		Journal: JournalConfig{
			Path: "data/events.db",
		},
		Kafka: KafkaConfig{
			Topic: "lc-escrow.events",
		},
		Notifications: NotificationsConfig{
			Workers:         4,
			QueueSize:       1000,
			DeliveryTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
		LogLevel: "info",
	}
}

// Load applies defaults, then the YAML file at path (skipped when path is
// empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Protocol.TokenMinter == "" {
		cfg.Protocol.TokenMinter = cfg.Protocol.AdminAccount
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	for name, account := range map[string]string{
		"protocol.admin_account":  c.Protocol.AdminAccount,
		"protocol.engine_account": c.Protocol.EngineAccount,
		"protocol.token_minter":   c.Protocol.TokenMinter,
	} {
		if err := validator.ValidateAccount(account); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path is required"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Notifications.Workers <= 0 {
		errs = append(errs, errors.New("notifications.workers must be positive"))
	}
	if c.Notifications.QueueSize <= 0 {
		errs = append(errs, errors.New("notifications.queue_size must be positive"))
	}
	if c.Notifications.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("notifications.delivery_timeout must be positive"))
	}
	return errors.Join(errs...)
}
