package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/forgebridge/forgebridge/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file at the default path and returns the parsed
// Config. A missing file yields defaults, not an error.
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path, expanding
// ${ENV_VAR} placeholders from the process environment.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Providers: make(map[string]ProviderConfig)}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Host.Addr = expandEnvVars(cfg.Host.Addr)
	cfg.Host.AuthToken = expandEnvVars(cfg.Host.AuthToken)
	cfg.Cache.Dir = expandEnvVars(cfg.Cache.Dir)

	for name, p := range cfg.Providers {
		p.APIKey = expandEnvVars(p.APIKey)
		p.SecretID = expandEnvVars(p.SecretID)
		p.SecretKey = expandEnvVars(p.SecretKey)
		p.Endpoint = expandEnvVars(p.Endpoint)
		cfg.Providers[name] = p
	}
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
