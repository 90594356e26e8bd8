package config

import "time"

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Vault          VaultConfig          `mapstructure:"vault"`
	OpenTelemetry  OpenTelemetryConfig  `mapstructure:"opentelemetry"`
	Prometheus     PrometheusConfig     `mapstructure:"prometheus"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Region         RegionConfig         `mapstructure:"region"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Executor       ExecutorConfig       `mapstructure:"executor"`
	Matcher        MatcherConfig        `mapstructure:"matcher"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

// CORSConfig lets dashboards on other origins poll the read-only endpoints
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxAge         int      `mapstructure:"max_age"`
}

// StorageConfig selects the store adapter: "postgres" or "memory"
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueueConfig selects the message broker: "nats", "rabbitmq" or "none"
type QueueConfig struct {
	Driver   string         `mapstructure:"driver"`
	NATS     NATSConfig     `mapstructure:"nats"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

// VaultConfig enables resolving the database URL from a Vault KV secret
type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	SecretPath string `mapstructure:"secret_path"`
}

type OpenTelemetryConfig struct {
	Enabled     bool         `mapstructure:"enabled"`
	Jaeger      JaegerConfig `mapstructure:"jaeger"`
	ServiceName string       `mapstructure:"service_name"`
}

type JaegerConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	SamplerParam float64 `mapstructure:"sampler_param"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      int           `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
}

type CacheConfig struct {
	SettingsTTL time.Duration `mapstructure:"settings_ttl"`
	PricingTTL  time.Duration `mapstructure:"pricing_ttl"`
	StatusTTL   time.Duration `mapstructure:"status_ttl"`
}

type RegionConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type DispatchConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DemandTarget float64 `mapstructure:"demand_target"` // kW, 0 uses the first meter point's declared demand
	MeterCode    string  `mapstructure:"meter_code"`
	// RefreshDevices is how often the curtailable pool is rebuilt from the topology
	RefreshDevices time.Duration `mapstructure:"refresh_devices"`
	StorageKW      float64       `mapstructure:"storage_kw"`
	StorageSOC     float64       `mapstructure:"storage_soc"`
}

type ExecutorConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// Actuator is "stub" or "queue"
	Actuator    string  `mapstructure:"actuator"`
	StubSuccess float64 `mapstructure:"stub_success"`
}

type MatcherConfig struct {
	Legacy []LegacyPointMapping `mapstructure:"legacy"`
	// TypePrefixes maps a device type to the point prefix used when the code has no alphabetic head
	TypePrefixes map[string]string `mapstructure:"type_prefixes"`
}

// LegacyPointMapping wires one historic device code to its point codes. Each point
// code is Prefix + suffix; an empty suffix leaves that usage unbound.
type LegacyPointMapping struct {
	DeviceCode  string `mapstructure:"device_code"`
	Prefix      string `mapstructure:"prefix"`
	Power       string `mapstructure:"power"`
	Current     string `mapstructure:"current"`
	Energy      string `mapstructure:"energy"`
	Voltage     string `mapstructure:"voltage"`
	PowerFactor string `mapstructure:"power_factor"`
}
