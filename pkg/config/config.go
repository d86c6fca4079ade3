// Package config loads the service configuration from a YAML file and
// GRAPHCACHE_ prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/internal/cacheinfra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GRAPHCACHE_REDIS_ADDR.
const EnvPrefix = "GRAPHCACHE"

// Feed target modes.
const (
	TargetsSelf      = "self"
	TargetsFollowers = "followers"
)

// Config is the full service configuration.
type Config struct {
	Cache      Cache      `mapstructure:"cache"`
	Redis      Redis      `mapstructure:"redis"`
	Feed       Feed       `mapstructure:"feed"`
	Pagination Pagination `mapstructure:"pagination"`
	DB         DB         `mapstructure:"db"`
	Kafka      Kafka      `mapstructure:"kafka"`
	HTTP       HTTP       `mapstructure:"http"`
	Log        Log        `mapstructure:"log"`
}

// Cache configures the store backend and the read-through layers on top.
type Cache struct {
	cacheinfra.Config `mapstructure:",squash"`

	Codec        string        `mapstructure:"codec"`
	FailOpen     bool          `mapstructure:"fail_open"`
	Coalesce     bool          `mapstructure:"coalesce"`
	TrackKeys    bool          `mapstructure:"track_keys"`
	EntityTTL    time.Duration `mapstructure:"entity_ttl"`
	ListingTTL   time.Duration `mapstructure:"listing_ttl"`
	FollowersTTL time.Duration `mapstructure:"followers_ttl"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Feed configures fan-out, retention and the feed stream backend.
type Feed struct {
	Backend       string        `mapstructure:"backend"`
	Shards        int           `mapstructure:"shards"`
	OpTimeout     time.Duration `mapstructure:"op_timeout"`
	MaxLength     int64         `mapstructure:"max_length"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	Concurrency   int           `mapstructure:"concurrency"`
	Targets       string        `mapstructure:"targets"`
	GlobalStream  bool          `mapstructure:"global_stream"`
	Async         bool          `mapstructure:"async"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	SweepTimeout  time.Duration `mapstructure:"sweep_timeout"`
}

type Pagination struct {
	DefaultLimit       int `mapstructure:"default_limit"`
	MaxLimit           int `mapstructure:"max_limit"`
	MaxPrivilegedLimit int `mapstructure:"max_privileged_limit"`
}

type DB struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	TrustHeaders    bool          `mapstructure:"trust_headers"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Defaults returns the configuration used for every key not set elsewhere.
func Defaults() Config {
	return Config{
		Cache: Cache{
			Config:       cacheinfra.DefaultConfig(),
			Codec:        "json",
			FailOpen:     true,
			EntityTTL:    15 * time.Minute,
			ListingTTL:   60 * time.Second,
			FollowersTTL: 5 * time.Minute,
		},
		Redis: Redis{Addr: "localhost:6379", PoolSize: 10},
		Feed: Feed{
			Backend:       cacheinfra.BackendMemory,
			Shards:        64,
			OpTimeout:     250 * time.Millisecond,
			MaxLength:     1000,
			MaxAge:        30 * 24 * time.Hour,
			Concurrency:   8,
			Targets:       TargetsFollowers,
			SweepSchedule: "@every 10m",
			SweepTimeout:  time.Minute,
		},
		Pagination: Pagination{DefaultLimit: 10, MaxLimit: 10},
		DB:         DB{Driver: "sqlite3", DSN: "file:graphcache.db?cache=shared", MaxOpenConns: 1, AutoMigrate: true},
		Kafka:      Kafka{Topic: "graph_activity", GroupID: "graph_activity_fanout"},
		HTTP:       HTTP{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:        Log{Level: "info"},
	}
}

// Load reads path, when not empty, on top of the defaults and applies
// environment overrides. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"cache.backend":             d.Cache.Backend,
		"cache.capacity":            d.Cache.Capacity,
		"cache.num_shards":          d.Cache.NumShards,
		"cache.max_ttl":             d.Cache.MaxTTL,
		"cache.eviction_percentage": d.Cache.EvictionPercentage,
		"cache.eviction_interval":   d.Cache.EvictionInterval,
		"cache.op_timeout":          d.Cache.OpTimeout,
		"cache.scan_count":          d.Cache.ScanCount,
		"cache.codec":               d.Cache.Codec,
		"cache.fail_open":           d.Cache.FailOpen,
		"cache.coalesce":            d.Cache.Coalesce,
		"cache.track_keys":          d.Cache.TrackKeys,
		"cache.entity_ttl":          d.Cache.EntityTTL,
		"cache.listing_ttl":         d.Cache.ListingTTL,
		"cache.followers_ttl":       d.Cache.FollowersTTL,

		"redis.addr":      d.Redis.Addr,
		"redis.password":  d.Redis.Password,
		"redis.db":        d.Redis.DB,
		"redis.pool_size": d.Redis.PoolSize,

		"feed.backend":        d.Feed.Backend,
		"feed.shards":         d.Feed.Shards,
		"feed.op_timeout":     d.Feed.OpTimeout,
		"feed.max_length":     d.Feed.MaxLength,
		"feed.max_age":        d.Feed.MaxAge,
		"feed.concurrency":    d.Feed.Concurrency,
		"feed.targets":        d.Feed.Targets,
		"feed.global_stream":  d.Feed.GlobalStream,
		"feed.async":          d.Feed.Async,
		"feed.sweep_schedule": d.Feed.SweepSchedule,
		"feed.sweep_timeout":  d.Feed.SweepTimeout,

		"pagination.default_limit":        d.Pagination.DefaultLimit,
		"pagination.max_limit":            d.Pagination.MaxLimit,
		"pagination.max_privileged_limit": d.Pagination.MaxPrivilegedLimit,

		"db.driver":         d.DB.Driver,
		"db.dsn":            d.DB.DSN,
		"db.max_open_conns": d.DB.MaxOpenConns,
		"db.auto_migrate":   d.DB.AutoMigrate,

		"kafka.brokers":  d.Kafka.Brokers,
		"kafka.topic":    d.Kafka.Topic,
		"kafka.group_id": d.Kafka.GroupID,

		"http.addr":             d.HTTP.Addr,
		"http.trust_headers":    d.HTTP.TrustHeaders,
		"http.shutdown_timeout": d.HTTP.ShutdownTimeout,

		"log.level":       d.Log.Level,
		"log.development": d.Log.Development,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Cache),
		validation.Field(&c.Feed),
		validation.Field(&c.Pagination),
		validation.Field(&c.DB),
		validation.Field(&c.Kafka, validation.When(c.Feed.Async, validation.By(requireBrokers))),
		validation.Field(&c.HTTP),
		validation.Field(&c.Log),
	)
}

// Validate keeps the backend rules of cacheinfra and checks the layers above it.
func (c Cache) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if _, err := cache.CodecByName(c.Codec); err != nil {
		return &cacheinfra.ConfigError{Field: "Codec", Message: err.Error()}
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.EntityTTL, validation.Required),
		validation.Field(&c.ListingTTL, validation.Required),
		validation.Field(&c.FollowersTTL, validation.Required),
	)
}

func (f Feed) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Backend, validation.Required, validation.In(cacheinfra.BackendMemory, cacheinfra.BackendRedis)),
		validation.Field(&f.OpTimeout, validation.Required),
		validation.Field(&f.MaxLength, validation.Min(int64(0))),
		validation.Field(&f.MaxAge, validation.Min(time.Duration(0))),
		validation.Field(&f.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&f.Targets, validation.Required, validation.In(TargetsSelf, TargetsFollowers)),
		validation.Field(&f.SweepSchedule, validation.Required),
		validation.Field(&f.SweepTimeout, validation.Required),
	)
}

func (p Pagination) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.DefaultLimit, validation.Required, validation.Min(1)),
		validation.Field(&p.MaxLimit, validation.Required, validation.Min(p.DefaultLimit)),
		validation.Field(&p.MaxPrivilegedLimit, validation.Min(0)),
	)
}

func (d DB) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite3", "postgres")),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (h HTTP) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Addr, validation.Required),
	)
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

func requireBrokers(value any) error {
	k, _ := value.(Kafka)
	if len(k.Brokers) == 0 {
		return fmt.Errorf("brokers are required when feed.async is enabled")
	}
	return nil
}
