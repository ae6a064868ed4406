// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Gateway modes
const (
	ModeLive = "live"
	ModeMock = "mock"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Tables      TablesConfig      `mapstructure:"tables"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	RunLocal bool   `mapstructure:"run_local"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // local DynamoDB/SQS emulators
}

type TablesConfig struct {
	Orders      string `mapstructure:"orders"`
	Earnings    string `mapstructure:"earnings"`
	Idempotency string `mapstructure:"idempotency"`
}

type QueueConfig struct {
	URL string `mapstructure:"url"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// GatewayConfig holds Razorpay credentials. Secrets are never logged.
type GatewayConfig struct {
	Mode          string        `mapstructure:"mode"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	MockSecret    string        `mapstructure:"mock_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Configured reports whether live credentials are present.
func (g GatewayConfig) Configured() bool {
	return g.KeyID != "" && g.KeySecret != ""
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

var defaults = map[string]any{
	"server.addr":                ":8080",
	"server.run_local":           false,
	"aws.region":                 "us-east-1",
	"aws.endpoint":               "",
	"tables.orders":              "orders",
	"tables.earnings":            "instructor_earnings",
	"tables.idempotency":         "idempotency",
	"queue.url":                  "",
	"idempotency.ttl":            "48h",
	"gateway.mode":               ModeLive,
	"gateway.key_id":             "",
	"gateway.key_secret":         "",
	"gateway.webhook_secret":     "",
	"gateway.mock_secret":        "mock_key_secret",
	"gateway.timeout":            "10s",
	"auth.jwt_secret":            "",
	"database.dsn":               "",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "30m",
	"log.level":                  "info",
	"log.format":                 "json",
	"metrics.namespace":          "CourseOrderflow",
}

// env names kept from the deployment templates; every other key also reads
// its upper-cased dotted name with "_" (TABLES_ORDERS, GATEWAY_TIMEOUT, ...)
var envAliases = map[string][]string{
	"server.run_local":       {"RUN_LOCAL"},
	"aws.region":             {"AWS_REGION"},
	"aws.endpoint":           {"AWS_ENDPOINT_URL"},
	"tables.orders":          {"ORDERS_TABLE"},
	"tables.earnings":        {"EARNINGS_TABLE"},
	"tables.idempotency":     {"IDEMPOTENCY_TABLE"},
	"queue.url":              {"PAYMENTS_QUEUE_URL", "ORDERS_QUEUE_URL"},
	"gateway.mode":           {"PAYMENT_MODE"},
	"gateway.key_id":         {"RAZORPAY_KEY_ID"},
	"gateway.key_secret":     {"RAZORPAY_KEY_SECRET"},
	"gateway.webhook_secret": {"RAZORPAY_WEBHOOK_SECRET"},
	"auth.jwt_secret":        {"JWT_SECRET"},
	"database.dsn":           {"DATABASE_DSN"},
	"log.level":              {"LOG_LEVEL"},
	"metrics.namespace":      {"METRICS_NAMESPACE"},
}

// Load reads the file named by CONFIG_FILE, if any, and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Gateway.Mode = strings.ToLower(cfg.Gateway.Mode)
	return &cfg, nil
}

// ValidateAPI checks what the HTTP API needs to start.
func (c *Config) ValidateAPI() error {
	var errs []error
	errs = append(errs, c.validateCommon()...)
	if c.Tables.Earnings == "" {
		errs = append(errs, errors.New("tables.earnings is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Gateway.Mode {
	case ModeLive, ModeMock:
	default:
		errs = append(errs, fmt.Errorf("gateway.mode must be %q or %q, got %q", ModeLive, ModeMock, c.Gateway.Mode))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateWorker checks what the event worker needs to start.
func (c *Config) ValidateWorker() error {
	errs := c.validateCommon()
	if c.Metrics.Namespace == "" {
		errs = append(errs, errors.New("metrics.namespace is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateCommon() []error {
	var errs []error
	if c.Tables.Orders == "" {
		errs = append(errs, errors.New("tables.orders is required"))
	}
	if c.Tables.Idempotency == "" {
		errs = append(errs, errors.New("tables.idempotency is required"))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, errors.New("idempotency.ttl must be positive"))
	}
	return errs
}
