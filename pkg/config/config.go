// Package config loads the gateway's service configuration from TOML with
// environment-variable overrides, and resolves the routing document path
// using the priority order the gateway's configuration loader depends on.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level service configuration.
type Config struct {
	ServiceName string        `mapstructure:"service_name"`
	Environment string        `mapstructure:"environment"`
	HTTP        HTTPConfig    `mapstructure:"http"`
	Kafka       KafkaConfig   `mapstructure:"kafka"`
	Logger      LoggerConfig  `mapstructure:"logger"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Routing     RoutingConfig `mapstructure:"routing"`
}

// HTTPConfig configures the introspection surface listener.
type HTTPConfig struct {
	Host string `mapstructure:"host" default:"0.0.0.0"`
	Port int    `mapstructure:"port" default:"8080"`
}

// KafkaConfig configures the shared broker client.
type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	SessionTimeout int      `mapstructure:"session_timeout" default:"30"`
	RequestTimeout int      `mapstructure:"request_timeout" default:"10"`
}

// LoggerConfig mirrors logger.Config, duplicated here so callers can unmarshal
// straight from viper without importing the logger package's config type.
type LoggerConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	Output     string `mapstructure:"output" default:"stdout"`
	FilePath   string `mapstructure:"file_path" default:"logs/fixrouter.log"`
	MaxSize    int    `mapstructure:"max_size" default:"100"`
	MaxBackups int    `mapstructure:"max_backups" default:"10"`
	MaxAge     int    `mapstructure:"max_age" default:"30"`
	Compress   bool   `mapstructure:"compress" default:"true"`
	WithCaller bool   `mapstructure:"with_caller" default:"true"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Port    int    `mapstructure:"port" default:"9090"`
	Path    string `mapstructure:"path" default:"/metrics"`
}

// RoutingConfig locates the routing document on disk. ConfigPath wins when
// set; it is the property form of the path.
type RoutingConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

const (
	// RoutingConfigPathEnvVar is the environment variable holding the routing
	// document path, checked when no explicit config property is set.
	RoutingConfigPathEnvVar = "FIX_ROUTING_CONFIG_PATH"
	// DefaultRoutingConfigResource is the packaged fallback resource used when
	// neither a property nor an environment variable names a path.
	DefaultRoutingConfigResource = "routing-config.json"
)

// ResolveRoutingConfigPath implements the four-step resolution order: explicit
// config property, environment variable, system property (modelled here as a
// second, differently-named environment variable since Go has no JVM-style
// system property store), then the packaged default resource.
func ResolveRoutingConfigPath(cfg RoutingConfig) string {
	if cfg.ConfigPath != "" {
		return cfg.ConfigPath
	}
	if v := os.Getenv(RoutingConfigPathEnvVar); v != "" {
		return v
	}
	if v := os.Getenv("fix.routing.config.path"); v != "" {
		return v
	}
	return DefaultRoutingConfigResource
}

// Load reads a TOML file at configPath into cfg, applying defaults first and
// allowing APP_-prefixed environment variables to override any field.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks invariants that Load cannot express through viper defaults alone.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		c.ServiceName = "fixrouter"
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "fixrouter")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)

	v.SetDefault("kafka.session_timeout", 30)
	v.SetDefault("kafka.request_timeout", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/fixrouter.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
