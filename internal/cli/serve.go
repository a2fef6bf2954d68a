package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/assetcache"
	"github.com/forgebridge/forgebridge/internal/bridge"
	"github.com/forgebridge/forgebridge/internal/codegate"
	"github.com/forgebridge/forgebridge/internal/config"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/providers"
	"github.com/forgebridge/forgebridge/internal/tools"
)

// runServe wires the full stack and serves MCP over stdio, or over
// streamable HTTP when httpAddr is set. The host connection is dialed
// lazily on the first tool call, so a host that comes up later still
// works.
func runServe(cfg *config.Config, log *zap.Logger, httpAddr string) int {
	gate, err := codegate.New(codegate.Options{
		EnableExecution:     cfg.Security.EnableCodeExecution,
		ExtraDenyPatterns:   cfg.Security.ExtraDenyPatterns,
		ExtraAllowedImports: cfg.Security.ExtraAllowedImports,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitUsageErr
	}

	conn := bridge.New(bridge.Config{
		Network:        cfg.Host.NetworkOrDefault(),
		Addr:           cfg.Host.AddrOrDefault(),
		AuthToken:      cfg.Host.AuthToken,
		ConnectTimeout: cfg.Host.ConnectTimeoutOrDefault(),
		CallTimeout:    cfg.Host.CallTimeoutOrDefault(),
		MaxRetries:     cfg.Host.ConnectRetriesOrDefault(),
		RetryDelay:     cfg.Host.RetryDelayOrDefault(),
	}, log.Named("bridge"))
	defer conn.Close()

	catalog, err := buildCatalog(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitUsageErr
	}

	s := tools.NewServer(tools.Deps{
		Host:    conn,
		Gate:    gate,
		Tracker: jobs.NewTracker(log.Named("jobs"), jobs.DefaultPollBudget),
		Catalog: catalog,
		Cache:   assetcache.New(cfg.Cache.Dir, cfg.Cache.TTLOrDefault()),
		Log:     log,
	})

	if httpAddr != "" {
		log.Info("serving MCP over streamable HTTP",
			zap.String("addr", httpAddr),
			zap.String("host_addr", cfg.Host.AddrOrDefault()),
			zap.Bool("code_execution", gate.Enabled()))
		httpSrv := server.NewStreamableHTTPServer(s, server.WithEndpointPath("/mcp"))
		if err := httpSrv.Start(httpAddr); err != nil {
			fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
			return ExitInternal
		}
		return ExitOK
	}

	log.Info("serving MCP on stdio",
		zap.String("host_addr", cfg.Host.AddrOrDefault()),
		zap.Bool("code_execution", gate.Enabled()))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitInternal
	}
	return ExitOK
}

// buildCatalog turns the provider config sections into a catalog of
// integrations. Disabled providers stay listed so status queries can
// say why they are unavailable.
func buildCatalog(cfg *config.Config, log *zap.Logger) (*providers.Catalog, error) {
	catalog := providers.NewCatalog()

	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			catalog.Register(name, providers.Integration{
				Mode:    pc.Mode,
				Message: "disabled in configuration",
			})
			continue
		}

		switch name {
		case "rodin":
			p, err := providers.NewRodin(providers.RodinConfig{
				Mode:    providers.RodinMode(pc.Mode),
				APIKey:  pc.APIKey,
				BaseURL: pc.Endpoint,
				Timeout: 30 * time.Second,
			}, log.Named("rodin"))
			if err != nil {
				return nil, err
			}
			catalog.Register(name, providers.Integration{
				Provider: p,
				Enabled:  true,
				Mode:     pc.Mode,
			})
		case "hunyuan":
			p, err := providers.NewHunyuan(providers.HunyuanConfig{
				SecretID:  pc.SecretID,
				SecretKey: pc.SecretKey,
				Region:    pc.Region,
				Endpoint:  pc.Endpoint,
				Timeout:   30 * time.Second,
			}, log.Named("hunyuan"))
			if err != nil {
				return nil, err
			}
			catalog.Register(name, providers.Integration{
				Provider: p,
				Enabled:  true,
			})
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	return catalog, nil
}
