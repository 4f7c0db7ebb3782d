package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/valscreen/internal/batch"
	"github.com/newthinker/valscreen/internal/cache"
	"github.com/newthinker/valscreen/internal/collector"
	"github.com/newthinker/valscreen/internal/core"
	"github.com/newthinker/valscreen/internal/index"
	"github.com/newthinker/valscreen/internal/ranker"
	"github.com/newthinker/valscreen/internal/storage/archive"
	"github.com/newthinker/valscreen/internal/valuation"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig       `mapstructure:"server"`
	Source   SourceConfig       `mapstructure:"source"`
	Ranking  RankingConfig      `mapstructure:"ranking"`
	Batch    BatchConfig        `mapstructure:"batch"`
	Cache    CacheConfig        `mapstructure:"cache"`
	Archive  ArchiveConfig      `mapstructure:"archive"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`
	Indices  []index.Descriptor `mapstructure:"indices"`
	Currency CurrencyConfig     `mapstructure:"currency"`
	Log      LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// SourceConfig holds market-data client settings.
type SourceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	CookieURL         string        `mapstructure:"cookie_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
	// TableTimeout bounds constituent page downloads.
	TableTimeout time.Duration `mapstructure:"table_timeout"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type RankingConfig struct {
	BatchSize    int  `mapstructure:"batch_size"`
	Workers      int  `mapstructure:"workers"`
	DefaultLimit uint `mapstructure:"default_limit"`
}

type BatchConfig struct {
	Workers        int     `mapstructure:"workers"`
	ItemsPerSecond float64 `mapstructure:"items_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// CacheConfig selects the TTL cache backend.
type CacheConfig struct {
	Backend        string        `mapstructure:"backend"` // "memory", "redis" or "none"
	ConstituentTTL time.Duration `mapstructure:"constituent_ttl"`
	ValuationTTL   time.Duration `mapstructure:"valuation_ttl"`
	PurgeInterval  time.Duration `mapstructure:"purge_interval"` // memory backend only; 0 disables
	Redis          RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ArchiveConfig configures result snapshot storage. An empty type disables it.
type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CurrencyConfig lists extra minor-unit quotations.
type CurrencyConfig struct {
	MinorUnits []valuation.MinorUnit `mapstructure:"minor_units"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from file. Values missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	src := collector.DefaultConfig()
	rank := ranker.DefaultConfig()
	run := batch.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Source: SourceConfig{
			BaseURL:           src.BaseURL,
			CookieURL:         src.CookieURL,
			Timeout:           src.Timeout,
			RequestsPerSecond: src.RequestsPerSecond,
			Burst:             src.Burst,
			UserAgent:         src.UserAgent,
			Breaker: BreakerConfig{
				MaxFailures: src.MaxFailures,
				Cooldown:    src.Cooldown,
			},
			TableTimeout: 10 * time.Second,
		},
		Ranking: RankingConfig{
			BatchSize:    rank.BatchSize,
			Workers:      rank.Workers,
			DefaultLimit: 50,
		},
		Batch: BatchConfig{
			Workers:        run.Workers,
			ItemsPerSecond: run.ItemsPerSecond,
			Burst:          run.Burst,
		},
		Cache: CacheConfig{
			Backend:        "memory",
			ConstituentTTL: 24 * time.Hour,
			ValuationTTL:   12 * time.Hour,
			PurgeInterval:  10 * time.Minute,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "valscreen:",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Source.BaseURL == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("source.base_url is required"))
	}
	if c.Source.RequestsPerSecond <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("source.requests_per_second must be positive, got %f", c.Source.RequestsPerSecond))
	}
	if c.Source.Timeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("source.timeout must be positive, got %s", c.Source.Timeout))
	}

	if c.Batch.Workers < 0 || c.Ranking.Workers < 0 || c.Ranking.BatchSize < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("worker and batch sizes cannot be negative"))
	}
	if c.Batch.ItemsPerSecond < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("batch.items_per_second cannot be negative, got %f", c.Batch.ItemsPerSecond))
	}

	switch c.Cache.Backend {
	case "", "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("cache.redis.addr required when backend is redis"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.ConstituentTTL < 0 || c.Cache.ValuationTTL < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("cache ttls cannot be negative"))
	}
	if c.Cache.PurgeInterval < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("cache.purge_interval cannot be negative"))
	}

	switch c.Archive.Type {
	case "":
	case "localfs":
		if c.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive.path required when type is localfs"))
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Archive.Type))
	}

	for _, mu := range c.Currency.MinorUnits {
		if mu.Code == "" || mu.Divisor <= 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("minor unit %q needs a code and a positive divisor", mu.Code))
		}
	}

	for _, d := range c.Indices {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Collector converts the source section into client settings.
func (c *Config) Collector() collector.Config {
	return collector.Config{
		BaseURL:           c.Source.BaseURL,
		CookieURL:         c.Source.CookieURL,
		Timeout:           c.Source.Timeout,
		RequestsPerSecond: c.Source.RequestsPerSecond,
		Burst:             c.Source.Burst,
		UserAgent:         c.Source.UserAgent,
		MaxFailures:       c.Source.Breaker.MaxFailures,
		Cooldown:          c.Source.Breaker.Cooldown,
	}
}

func (c *Config) RankerConfig() ranker.Config {
	return ranker.Config{BatchSize: c.Ranking.BatchSize, Workers: c.Ranking.Workers}
}

func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		Workers:        c.Batch.Workers,
		ItemsPerSecond: c.Batch.ItemsPerSecond,
		Burst:          c.Batch.Burst,
	}
}

func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Cache.Redis.Addr,
		Password: c.Cache.Redis.Password,
		DB:       c.Cache.Redis.DB,
		Prefix:   c.Cache.Redis.Prefix,
	}
}

func (c *Config) S3Config() archive.S3Config {
	s := c.Archive.S3
	return archive.S3Config{
		Bucket:    s.Bucket,
		Endpoint:  s.Endpoint,
		Region:    s.Region,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Prefix:    s.Prefix,
	}
}

// Descriptors returns the built-in index descriptors followed by the
// configured ones, which override built-ins with the same key.
func (c *Config) Descriptors() []index.Descriptor {
	out := index.DefaultDescriptors()
	return append(out, c.Indices...)
}
