package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFromParsesSections(t *testing.T) {
	path := writeConfig(t, `
[host]
addr = "localhost:9999"
connect_retries = 5
call_timeout = "2m"

[security]
enable_code_execution = true
extra_allowed_imports = ["numpy"]

[providers.rodin]
enabled = true
mode = "FAL_AI"
api_key = "falkey"

[cache]
ttl = "30m"

[log]
level = "debug"
format = "json"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Host.Addr != "localhost:9999" || cfg.Host.ConnectRetries != 5 {
		t.Fatalf("host = %+v", cfg.Host)
	}
	if got := cfg.Host.CallTimeoutOrDefault(); got != 2*time.Minute {
		t.Fatalf("call timeout = %v", got)
	}
	if !cfg.Security.EnableCodeExecution || cfg.Security.ExtraAllowedImports[0] != "numpy" {
		t.Fatalf("security = %+v", cfg.Security)
	}
	if p := cfg.Providers["rodin"]; !p.Enabled || p.Mode != "FAL_AI" || p.APIKey != "falkey" {
		t.Fatalf("rodin = %+v", p)
	}
	if got := cfg.Cache.TTLOrDefault(); got != 30*time.Minute {
		t.Fatalf("cache ttl = %v", got)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

func TestLoadFromMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got := cfg.Host.AddrOrDefault(); got != DefaultHostAddr {
		t.Fatalf("addr = %q", got)
	}
	if got := cfg.Host.NetworkOrDefault(); got != "tcp" {
		t.Fatalf("network = %q", got)
	}
	if got := cfg.Host.ConnectRetriesOrDefault(); got != DefaultConnectRetries {
		t.Fatalf("retries = %d", got)
	}
	if got := cfg.Host.CallTimeoutOrDefault(); got != DefaultCallTimeout {
		t.Fatalf("call timeout = %v", got)
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("FORGE_TEST_TOKEN", "tok-123")
	t.Setenv("FORGE_TEST_KEY", "key-456")
	path := writeConfig(t, `
[host]
auth_token = "${FORGE_TEST_TOKEN}"

[providers.rodin]
enabled = true
api_key = "${FORGE_TEST_KEY}"

[providers.hunyuan]
secret_id = "${FORGE_TEST_UNSET_VAR}"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Host.AuthToken != "tok-123" {
		t.Fatalf("auth token = %q", cfg.Host.AuthToken)
	}
	if cfg.Providers["rodin"].APIKey != "key-456" {
		t.Fatalf("api key = %q", cfg.Providers["rodin"].APIKey)
	}
	// Unresolved placeholders stay literal.
	if got := cfg.Providers["hunyuan"].SecretID; got != "${FORGE_TEST_UNSET_VAR}" {
		t.Fatalf("secret id = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty is valid", func(c *Config) {}, ""},
		{"bad network", func(c *Config) { c.Host.Network = "udp" }, "host.network"},
		{"negative retries", func(c *Config) { c.Host.ConnectRetries = -1 }, "connect_retries"},
		{"bad duration", func(c *Config) { c.Host.CallTimeout = "three minutes" }, "call_timeout"},
		{"zero duration", func(c *Config) { c.Cache.TTL = "0s" }, "cache.ttl"},
		{"bad deny pattern", func(c *Config) { c.Security.ExtraDenyPatterns = []string{"("} }, "extra_deny_patterns"},
		{"unknown provider", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"meshy": {Enabled: true}}
		}, "unknown provider"},
		{"rodin bad mode", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"rodin": {Enabled: true, Mode: "LOCAL", APIKey: "k"}}
		}, "mode"},
		{"rodin missing key", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"rodin": {Enabled: true, Mode: "MAIN_SITE"}}
		}, "api_key"},
		{"hunyuan missing secrets", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"hunyuan": {Enabled: true, SecretID: "id"}}
		}, "secret_key"},
		{"disabled provider skips checks", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"rodin": {Enabled: false}}
		}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Providers: make(map[string]ProviderConfig)}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
