package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/assetcache"
	"github.com/forgebridge/forgebridge/internal/bridge"
	"github.com/forgebridge/forgebridge/internal/config"
	"github.com/forgebridge/forgebridge/internal/paths"
)

// doctorCheck is one named probe. Err of nil means the check passed;
// a non-empty note prints either way.
type doctorCheck struct {
	name string
	note string
	err  error
}

// runDoctor probes the local setup and prints one line per check.
// Exit code is nonzero when any check fails.
func runDoctor(cfg *config.Config, out io.Writer) int {
	checks := []doctorCheck{
		checkConfigSource(),
		checkHost(cfg),
		checkCache(cfg),
	}
	checks = append(checks, checkProviders(cfg)...)

	failed := 0
	for _, c := range checks {
		status := "ok"
		note := c.note
		if c.err != nil {
			status = "FAIL"
			note = c.err.Error()
			failed++
		}
		if note != "" {
			fmt.Fprintf(out, "%-24s %s  (%s)\n", c.name, status, note)
		} else {
			fmt.Fprintf(out, "%-24s %s\n", c.name, status)
		}
	}

	if failed > 0 {
		fmt.Fprintf(out, "\n%d check(s) failed\n", failed)
		return ExitInternal
	}
	return ExitOK
}

func checkConfigSource() doctorCheck {
	c := doctorCheck{name: "config"}
	if path := os.Getenv(configPathEnv); path != "" {
		c.note = path
		if _, err := os.Stat(path); err != nil {
			c.err = err
		}
		return c
	}
	path := paths.ConfigFile()
	if _, err := os.Stat(path); err != nil {
		c.note = "no file, using defaults"
		return c
	}
	c.note = path
	return c
}

// checkHost dials the host once and pings it. Short timeouts keep
// doctor snappy when the host is down.
func checkHost(cfg *config.Config) doctorCheck {
	c := doctorCheck{name: "host", note: cfg.Host.AddrOrDefault()}

	conn := bridge.New(bridge.Config{
		Network:        cfg.Host.NetworkOrDefault(),
		Addr:           cfg.Host.AddrOrDefault(),
		AuthToken:      cfg.Host.AuthToken,
		ConnectTimeout: 3 * time.Second,
		CallTimeout:    5 * time.Second,
		MaxRetries:     1,
	}, zap.NewNop())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Call(ctx, "ping", nil); err != nil {
		c.err = err
	}
	return c
}

func checkCache(cfg *config.Config) doctorCheck {
	c := doctorCheck{name: "cache"}
	cache := assetcache.New(cfg.Cache.Dir, cfg.Cache.TTLOrDefault())
	if err := cache.Probe(); err != nil {
		c.err = err
		return c
	}
	c.note = cache.Dir()
	return c
}

// checkProviders verifies that every enabled provider carries the
// credentials it needs. No network calls; doctor never spends quota.
func checkProviders(cfg *config.Config) []doctorCheck {
	var checks []doctorCheck
	for _, name := range sortedProviderNames(cfg) {
		pc := cfg.Providers[name]
		c := doctorCheck{name: "provider " + name}
		if !pc.Enabled {
			c.note = "disabled"
			checks = append(checks, c)
			continue
		}
		switch name {
		case "rodin":
			c.note = pc.Mode
			if pc.APIKey == "" {
				c.err = fmt.Errorf("api_key is empty")
			}
		case "hunyuan":
			if pc.SecretID == "" || pc.SecretKey == "" {
				c.err = fmt.Errorf("secret_id and secret_key are required")
			}
		}
		checks = append(checks, c)
	}
	return checks
}

func sortedProviderNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
