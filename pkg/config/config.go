package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RouteWebhooks    = "webhooks"
	RouteAuditIngest = "audit_ingest"
	RouteVersion     = "version"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cors      CorsConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	BodyGuard BodyGuardConfig `mapstructure:"body_guard"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Routes    []RouteConfig   `mapstructure:"routes" validate:"dive"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"required,gte=1,lte=65535"`
	MetricsPort     int           `mapstructure:"metrics_port" validate:"omitempty,gte=1,lte=65535"`
	BodyLimit       int           `mapstructure:"body_limit" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ProxyHeader     string        `mapstructure:"proxy_header"`
	// ProxyHeader is only honoured for peers listed here (IPs or CIDRs).
	TrustedProxies []string `mapstructure:"trusted_proxies" validate:"omitempty,dive,ip|cidr"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,gte=1,lte=65535"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	TLS      bool   `mapstructure:"tls"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// CorsConfig is the default cross-origin policy for every shielded route.
// An empty allowlist denies every cross-origin request.
type CorsConfig struct {
	AllowOrigins     []string `mapstructure:"allowed_origins"`
	AllowMethods     []string `mapstructure:"allowed_methods"`
	AllowHeaders     []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	MaxAge           string   `mapstructure:"max_age"`
	LogViolations    bool     `mapstructure:"log_violations"`
}

type RateLimitConfig struct {
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	Limit              int           `mapstructure:"limit"`
	Window             string        `mapstructure:"window"`
	FailMode           string        `mapstructure:"fail_mode" validate:"oneof=open closed"`
}

type BodyGuardConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes" validate:"gt=0"`
}

type AuditConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	HMACSecret       string        `mapstructure:"hmac_secret" validate:"required_if=Enabled true"`
	Primary          string        `mapstructure:"primary" validate:"oneof=s3 postgres memory"`
	Fallbacks        []string      `mapstructure:"fallbacks" validate:"dive,oneof=memory kafka postgres"`
	ObjectPrefix     string        `mapstructure:"object_prefix"`
	SinkTimeout      time.Duration `mapstructure:"sink_timeout"`
	MaxMetadataBytes int           `mapstructure:"max_metadata_bytes" validate:"gte=0"`
	MemoryRetention  time.Duration `mapstructure:"memory_retention"`
	S3               S3Config      `mapstructure:"s3"`
	Kafka            KafkaConfig   `mapstructure:"kafka"`
}

type S3Config struct {
	Bucket               string `mapstructure:"bucket"`
	Region               string `mapstructure:"region"`
	Endpoint             string `mapstructure:"endpoint" validate:"omitempty,url"`
	UsePathStyle         bool   `mapstructure:"use_path_style"`
	ServerSideEncryption string `mapstructure:"server_side_encryption" validate:"omitempty,oneof=AES256 aws:kms none"`
}

type KafkaConfig struct {
	Host  string `mapstructure:"host"`
	Port  string `mapstructure:"port"`
	Topic string `mapstructure:"topic"`
}

type WebhooksConfig struct {
	// Providers maps a provider name to its verifier settings.
	Providers map[string]map[string]interface{} `mapstructure:"providers"`
}

// RouteConfig describes one shielded route. Routes named after a built-in
// endpoint only override its policies; any other route proxies to Upstream.
type RouteConfig struct {
	Name       string                            `mapstructure:"name" validate:"required"`
	Path       string                            `mapstructure:"path" validate:"required_without=Builtin,omitempty,startswith=/"`
	Methods    []string                          `mapstructure:"methods" validate:"dive,oneof=GET POST PUT PATCH DELETE HEAD"`
	Upstream   string                            `mapstructure:"upstream" validate:"omitempty,url"`
	AuditEvent string                            `mapstructure:"audit_event"`
	Policies   map[string]map[string]interface{} `mapstructure:"policies"`
	Builtin    bool                              `mapstructure:"-"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaultValues(v)

	if err := loadConfigFile(v, configPath, "config"); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.markBuiltinRoutes()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadConfigFile(v *viper.Viper, configPath, fileName string) error {
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return err
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}
	return nil
}

// secretKeys are read from the environment even when the file omits them.
var secretKeys = []string{
	"audit.hmac_secret",
	"redis.password",
	"database.password",
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.body_limit", 8*1024*1024)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-Id"})
	v.SetDefault("cors.log_violations", true)

	v.SetDefault("rate_limit.store_timeout", 2*time.Second)
	v.SetDefault("rate_limit.breaker_timeout", 30*time.Second)
	v.SetDefault("rate_limit.breaker_max_failures", 5)
	v.SetDefault("rate_limit.limit", 100)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.fail_mode", "open")

	v.SetDefault("body_guard.max_bytes", 1024*1024)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.primary", "s3")
	v.SetDefault("audit.fallbacks", []string{"memory"})
	v.SetDefault("audit.object_prefix", "audit/")
	v.SetDefault("audit.sink_timeout", 3*time.Second)
	v.SetDefault("audit.max_metadata_bytes", 4096)
	v.SetDefault("audit.memory_retention", 24*time.Hour)
	v.SetDefault("audit.s3.region", "us-east-1")
	v.SetDefault("audit.s3.server_side_encryption", "AES256")
}

func (c *Config) markBuiltinRoutes() {
	for i := range c.Routes {
		switch c.Routes[i].Name {
		case RouteWebhooks, RouteAuditIngest, RouteVersion:
			c.Routes[i].Builtin = true
		}
	}
}

// Route returns the configured route with the given name.
func (c *Config) Route(name string) (RouteConfig, bool) {
	for _, r := range c.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return RouteConfig{}, false
}

// ProxyRoutes returns the routes that forward to an upstream.
func (c *Config) ProxyRoutes() []RouteConfig {
	var out []RouteConfig
	for _, r := range c.Routes {
		if !r.Builtin {
			out = append(out, r)
		}
	}
	return out
}
