package config

import "time"

// Config is the top-level forgebridge configuration.
type Config struct {
	Host      HostConfig                `toml:"host"`
	Security  SecurityConfig            `toml:"security"`
	Providers map[string]ProviderConfig `toml:"providers"`
	Cache     CacheConfig               `toml:"cache"`
	Log       LogConfig                 `toml:"log"`
}

// HostConfig describes the connection to the content-creation host.
// Durations are strings in time.ParseDuration form ("180s", "2m").
type HostConfig struct {
	Network        string `toml:"network"`
	Addr           string `toml:"addr"`
	AuthToken      string `toml:"auth_token"`
	ConnectRetries int    `toml:"connect_retries"`
	RetryDelay     string `toml:"retry_delay"`
	ConnectTimeout string `toml:"connect_timeout"`
	CallTimeout    string `toml:"call_timeout"`
}

// SecurityConfig tunes the code safety gate.
type SecurityConfig struct {
	EnableCodeExecution bool     `toml:"enable_code_execution"`
	ExtraDenyPatterns   []string `toml:"extra_deny_patterns"`
	ExtraAllowedImports []string `toml:"extra_allowed_imports"`
}

// ProviderConfig holds credentials for one generation service. Which
// fields matter depends on the provider: rodin reads mode and api_key,
// hunyuan reads secret_id/secret_key/region.
type ProviderConfig struct {
	Enabled   bool   `toml:"enabled"`
	Mode      string `toml:"mode"`
	APIKey    string `toml:"api_key"`
	SecretID  string `toml:"secret_id"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
}

// CacheConfig controls the asset search result cache.
type CacheConfig struct {
	TTL string `toml:"ttl"`
	Dir string `toml:"dir"`
}

// LogConfig controls zap setup.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

const (
	DefaultHostAddr       = "localhost:9876"
	DefaultConnectRetries = 3
	DefaultRetryDelay     = time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultCallTimeout    = 180 * time.Second
	DefaultCacheTTL       = 10 * time.Minute
)

// Duration helpers parse the string fields, falling back to the default
// when unset or unparsable strings were validated away earlier.

func (h HostConfig) RetryDelayOrDefault() time.Duration {
	return parseDuration(h.RetryDelay, DefaultRetryDelay)
}

func (h HostConfig) ConnectTimeoutOrDefault() time.Duration {
	return parseDuration(h.ConnectTimeout, DefaultConnectTimeout)
}

func (h HostConfig) CallTimeoutOrDefault() time.Duration {
	return parseDuration(h.CallTimeout, DefaultCallTimeout)
}

func (h HostConfig) AddrOrDefault() string {
	if h.Addr != "" {
		return h.Addr
	}
	return DefaultHostAddr
}

func (h HostConfig) NetworkOrDefault() string {
	if h.Network != "" {
		return h.Network
	}
	return "tcp"
}

func (h HostConfig) ConnectRetriesOrDefault() int {
	if h.ConnectRetries > 0 {
		return h.ConnectRetries
	}
	return DefaultConnectRetries
}

func (c CacheConfig) TTLOrDefault() time.Duration {
	return parseDuration(c.TTL, DefaultCacheTTL)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
