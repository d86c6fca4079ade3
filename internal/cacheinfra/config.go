package cacheinfra

import "time"

// Backend names accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the configuration for the cache store backends.
type Config struct {
	// Backend selects the store implementation: "memory" or "redis".
	Backend string `mapstructure:"backend"`

	// Capacity defines the maximum number of entries the in-process store keeps.
	// Must be greater than 0.
	Capacity int `mapstructure:"capacity"`

	// NumShards determines the number of in-process cache shards.
	// Must be greater than 0. Default: 256
	NumShards int `mapstructure:"num_shards"`

	// MaxTTL bounds the lifetime of any in-process entry. Per-entry TTLs
	// larger than MaxTTL are cut short by the eviction of the underlying
	// client. Must be greater than 0.
	MaxTTL time.Duration `mapstructure:"max_ttl"`

	// EvictionPercentage specifies what percentage of entries to evict
	// when the in-process store reaches its capacity. Must be between 1-100.
	EvictionPercentage int `mapstructure:"eviction_percentage"`

	// EvictionInterval sets how often expired in-process entries are swept.
	// Zero value uses the default interval.
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`

	// OpTimeout bounds every store operation so an unreachable backend
	// degrades to source reads instead of hanging requests.
	// Must be greater than 0.
	OpTimeout time.Duration `mapstructure:"op_timeout"`

	// ScanCount is the COUNT hint used when deleting Redis keys by prefix.
	ScanCount int64 `mapstructure:"scan_count"`
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendMemory,
		Capacity:           10000,
		NumShards:          256,
		MaxTTL:             30 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
		OpTimeout:          250 * time.Millisecond,
		ScanCount:          200,
	}
}

// Validate checks if the configuration values are valid.
// Returns an error if any configuration parameter is invalid.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis:
	default:
		return &ConfigError{Field: "Backend", Message: "must be one of memory, redis"}
	}

	if c.OpTimeout <= 0 {
		return &ConfigError{Field: "OpTimeout", Message: "must be greater than 0"}
	}

	if c.Backend == BackendRedis {
		if c.ScanCount < 0 {
			return &ConfigError{Field: "ScanCount", Message: "must be non-negative"}
		}
		return nil
	}

	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.MaxTTL <= 0 {
		return &ConfigError{Field: "MaxTTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
