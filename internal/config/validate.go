package config

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var knownProviders = map[string]bool{"rodin": true, "hunyuan": true}

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error

	switch cfg.Host.NetworkOrDefault() {
	case "tcp", "unix":
	default:
		errs = append(errs, fmt.Errorf("host.network: must be tcp or unix, got %q", cfg.Host.Network))
	}
	if cfg.Host.ConnectRetries < 0 {
		errs = append(errs, fmt.Errorf("host.connect_retries: must be >= 0, got %d", cfg.Host.ConnectRetries))
	}
	errs = append(errs, validateDuration("host.retry_delay", cfg.Host.RetryDelay)...)
	errs = append(errs, validateDuration("host.connect_timeout", cfg.Host.ConnectTimeout)...)
	errs = append(errs, validateDuration("host.call_timeout", cfg.Host.CallTimeout)...)
	errs = append(errs, validateDuration("cache.ttl", cfg.Cache.TTL)...)

	for i, pattern := range cfg.Security.ExtraDenyPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("security.extra_deny_patterns[%d]: invalid regexp %q: %w", i, pattern, err))
		}
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, validateProvider(name, cfg.Providers[name])...)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be console or json, got %q", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

func validateProvider(name string, p ProviderConfig) []error {
	var errs []error

	if !knownProviders[strings.ToLower(name)] {
		errs = append(errs, fmt.Errorf("providers.%s: unknown provider, known providers are hunyuan, rodin", name))
		return errs
	}
	if !p.Enabled {
		return errs
	}

	switch strings.ToLower(name) {
	case "rodin":
		switch p.Mode {
		case "", "MAIN_SITE", "FAL_AI":
		default:
			errs = append(errs, fmt.Errorf("providers.%s.mode: must be MAIN_SITE or FAL_AI, got %q", name, p.Mode))
		}
		if strings.TrimSpace(p.APIKey) == "" {
			errs = append(errs, fmt.Errorf("providers.%s: api_key is required when enabled", name))
		}
	case "hunyuan":
		if strings.TrimSpace(p.SecretID) == "" || strings.TrimSpace(p.SecretKey) == "" {
			errs = append(errs, fmt.Errorf("providers.%s: secret_id and secret_key are required when enabled", name))
		}
	}
	return errs
}

func validateDuration(field, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("%s: must be > 0, got %q", field, value)}
	}
	return nil
}
