package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all control-plane configuration. Values are resolved in
// order: defaults, optional YAML file, environment variables.
type Config struct {
	// Database connection
	DBHost     string `yaml:"db_host" validate:"required"`
	DBPort     int    `yaml:"db_port" validate:"min=1,max=65535"`
	DBName     string `yaml:"db_name" validate:"required"`
	DBUser     string `yaml:"db_user" validate:"required"`
	DBPassword string `yaml:"db_password"`
	DBSSLMode  string `yaml:"db_sslmode" validate:"oneof=disable require verify-ca verify-full"`

	// HTTP surface
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// Workload template
	ChartPath string `yaml:"chart_path" validate:"required"`
	DNSSuffix string `yaml:"dns_suffix" validate:"required,hostname"`

	// Quota and rate limits
	MaxStoresGlobal    int `yaml:"max_stores_global" validate:"min=1"`
	MaxStoresPerTenant int `yaml:"max_stores_per_tenant" validate:"min=1"`
	MaxStoresPerHour   int `yaml:"max_stores_per_hour" validate:"min=1"`

	// Readiness watch loop
	ProvisioningTimeout    time.Duration `yaml:"provisioning_timeout" validate:"min=1s"`
	ReadinessCheckInterval time.Duration `yaml:"readiness_check_interval" validate:"min=100ms"`
	MaxReadinessChecks     int           `yaml:"max_readiness_checks" validate:"min=1"`

	// Idempotent create replay
	IdempotencyWindow time.Duration `yaml:"idempotency_window" validate:"min=1s"`

	// Background maintenance
	JanitorInterval time.Duration `yaml:"janitor_interval" validate:"min=1s"`

	// External command invocations
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"min=1s"`
	HelmBin        string        `yaml:"helm_bin" validate:"required"`
	KubectlBin     string        `yaml:"kubectl_bin" validate:"required"`

	// Logging
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DBHost:     "localhost",
		DBPort:     5432,
		DBName:     "storeplane",
		DBUser:     "storeplane",
		DBPassword: "",
		DBSSLMode:  "disable",

		ListenAddr: ":8080",

		ChartPath: "./charts/store",
		DNSSuffix: "stores.local",

		MaxStoresGlobal:    100,
		MaxStoresPerTenant: 10,
		MaxStoresPerHour:   5,

		ProvisioningTimeout:    300 * time.Second,
		ReadinessCheckInterval: 5 * time.Second,
		MaxReadinessChecks:     60,

		IdempotencyWindow: 5 * time.Minute,
		JanitorInterval:   5 * time.Minute,

		CommandTimeout: 60 * time.Second,
		HelmBin:        "helm",
		KubectlBin:     "kubectl",

		LogLevel: "info",
		LogJSON:  true,
	}
}

// Load builds the effective configuration. path may be empty, in which case
// only defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its declared constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string for the pgx stdlib driver
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode)
}

func (c *Config) applyEnv() {
	envString(&c.DBHost, "DB_HOST")
	envInt(&c.DBPort, "DB_PORT")
	envString(&c.DBName, "DB_NAME")
	envString(&c.DBUser, "DB_USER")
	envString(&c.DBPassword, "DB_PASSWORD")
	envString(&c.DBSSLMode, "DB_SSLMODE")

	envString(&c.ListenAddr, "LISTEN_ADDR")
	envString(&c.ChartPath, "CHART_PATH")
	envString(&c.DNSSuffix, "DNS_SUFFIX")

	envInt(&c.MaxStoresGlobal, "MAX_STORES_GLOBAL")
	envInt(&c.MaxStoresPerTenant, "MAX_STORES_PER_TENANT")
	envInt(&c.MaxStoresPerHour, "MAX_STORES_PER_HOUR")

	envMillis(&c.ProvisioningTimeout, "PROVISIONING_TIMEOUT_MS")
	envMillis(&c.ReadinessCheckInterval, "READINESS_CHECK_INTERVAL_MS")
	envInt(&c.MaxReadinessChecks, "MAX_READINESS_CHECKS")
	envMillis(&c.IdempotencyWindow, "IDEMPOTENCY_WINDOW_MS")
	envMillis(&c.JanitorInterval, "JANITOR_INTERVAL_MS")
	envMillis(&c.CommandTimeout, "ORCH_COMMAND_TIMEOUT_MS")

	envString(&c.HelmBin, "HELM_BIN")
	envString(&c.KubectlBin, "KUBECTL_BIN")
	envString(&c.LogLevel, "LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envMillis(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
