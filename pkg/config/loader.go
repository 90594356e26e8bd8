package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("queue.nats.url", "NATS_URL", "APP_QUEUE_NATS_URL")
	viper.BindEnv("queue.rabbitmq.url", "RABBITMQ_URL", "APP_QUEUE_RABBITMQ_URL")
	viper.BindEnv("vault.token", "VAULT_TOKEN", "APP_VAULT_TOKEN")
	viper.BindEnv("vault.address", "VAULT_ADDR", "APP_VAULT_ADDRESS")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "energy-core")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.read_timeout", 10*time.Second)
	viper.SetDefault("http.write_timeout", 10*time.Second)
	viper.SetDefault("http.cors.allowed_origins", []string{"*"})
	viper.SetDefault("http.cors.max_age", 3600)
	viper.SetDefault("storage.driver", "postgres")
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", time.Hour)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("queue.driver", "nats")
	viper.SetDefault("queue.nats.url", "nats://localhost:4222")
	viper.SetDefault("queue.nats.max_reconnects", 60)
	viper.SetDefault("queue.nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("vault.secret_path", "secret/data/energy-core/database")
	viper.SetDefault("opentelemetry.service_name", "energy-core")
	viper.SetDefault("prometheus.enabled", true)
	viper.SetDefault("prometheus.path", "/metrics")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", time.Minute)
	viper.SetDefault("circuit_breaker.timeout", 30*time.Second)
	viper.SetDefault("circuit_breaker.failure_threshold", 0.6)
	viper.SetDefault("cache.settings_ttl", time.Minute)
	viper.SetDefault("cache.pricing_ttl", 5*time.Minute)
	viper.SetDefault("cache.status_ttl", 30*time.Second)
	viper.SetDefault("region.timezone", "Asia/Shanghai")
	viper.SetDefault("dispatch.enabled", true)
	viper.SetDefault("dispatch.refresh_devices", 5*time.Minute)
	viper.SetDefault("dispatch.storage_soc", 0.5)
	viper.SetDefault("executor.settle_delay", 2*time.Second)
	viper.SetDefault("executor.actuator", "stub")
	viper.SetDefault("executor.stub_success", 0.95)
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Queue.Driver {
	case "nats", "rabbitmq", "none":
	default:
		return fmt.Errorf("unsupported queue driver %q", c.Queue.Driver)
	}
	switch c.Executor.Actuator {
	case "stub", "queue":
	default:
		return fmt.Errorf("unsupported actuator %q", c.Executor.Actuator)
	}
	if c.Executor.StubSuccess < 0 || c.Executor.StubSuccess > 1 {
		return fmt.Errorf("executor.stub_success must be within 0..1, got %v", c.Executor.StubSuccess)
	}
	if c.Dispatch.StorageSOC < 0 || c.Dispatch.StorageSOC > 1 {
		return fmt.Errorf("dispatch.storage_soc must be within 0..1, got %v", c.Dispatch.StorageSOC)
	}
	seen := make(map[string]bool, len(c.Matcher.Legacy))
	for _, m := range c.Matcher.Legacy {
		if m.DeviceCode == "" || m.Prefix == "" {
			return fmt.Errorf("matcher.legacy entries need device_code and prefix")
		}
		key := strings.ToUpper(m.DeviceCode)
		if seen[key] {
			return fmt.Errorf("matcher.legacy lists %s twice", m.DeviceCode)
		}
		seen[key] = true
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Region.Timezone)
	if err != nil || c.Region.Timezone == "" {
		return time.UTC
	}
	return loc
}
