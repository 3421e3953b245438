package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Store   StoreConfig   `mapstructure:"store"`
	Sync    SyncConfig    `mapstructure:"sync"`
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Sentry  SentryConfig  `mapstructure:"sentry"`
}

// ServerConfig 本地网关配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug, release, test
	Gzip bool   `mapstructure:"gzip"`
}

// APIConfig 远端 API 配置
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限
	RateBurst  int           `mapstructure:"rate_burst"`
	HealthPath string        `mapstructure:"health_path"`
}

// StoreConfig 设备本地 KV 存储配置
type StoreConfig struct {
	Driver    string `mapstructure:"driver"` // pebble, memory, redis, sqlite, postgres
	Path      string `mapstructure:"path"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	Namespace string `mapstructure:"namespace"`
	MediaDir  string `mapstructure:"media_dir"` // 网关收到的上传文件，等待上传或重放
}

// SyncConfig 离线队列重放配置
type SyncConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// AppConfig 业务参数
type AppConfig struct {
	Mode                    string        `mapstructure:"mode"` // online, offline, hybrid
	Version                 string        `mapstructure:"version"`
	StoryTTL                time.Duration `mapstructure:"story_ttl"`
	MaxMediaSize            int64         `mapstructure:"max_media_size"`
	NearbyMaxDistanceKm     float64       `mapstructure:"nearby_max_distance_km"`
	DefaultNotificationTime string        `mapstructure:"default_notification_time"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig OpenTelemetry 配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Insecure    bool    `mapstructure:"insecure"`
}

// SentryConfig 错误上报配置
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.gzip", true)

	v.SetDefault("api.base_url", "https://api.beunreal.app/v1")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.rate_burst", 20)
	v.SetDefault("api.health_path", "/api/health")

	v.SetDefault("store.driver", "pebble")
	v.SetDefault("store.path", "data/beunreal")
	v.SetDefault("store.media_dir", "data/media")

	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.base_backoff", 2*time.Second)
	v.SetDefault("sync.max_backoff", 5*time.Minute)
	v.SetDefault("sync.probe_interval", 30*time.Second)
	v.SetDefault("sync.drain_interval", 15*time.Second)

	v.SetDefault("app.mode", "hybrid")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.story_ttl", 24*time.Hour)
	v.SetDefault("app.max_media_size", 10*1024*1024)
	v.SetDefault("app.nearby_max_distance_km", 20.0)
	v.SetDefault("app.default_notification_time", "12:00")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "beunreald")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.insecure", true)
}

// Load 读取配置：.env -> config.yaml -> BEUNREAL_* 环境变量
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("BEUNREAL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("BEUNREAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验关键字段
func (c *Config) Validate() error {
	switch c.App.Mode {
	case "online", "offline", "hybrid":
	default:
		return fmt.Errorf("invalid app.mode %q", c.App.Mode)
	}
	switch c.Store.Driver {
	case "pebble", "memory", "redis", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store.driver %q", c.Store.Driver)
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync.max_attempts must be positive")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	return nil
}
