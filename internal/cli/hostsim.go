package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/codegate"
	"github.com/forgebridge/forgebridge/internal/config"
	"github.com/forgebridge/forgebridge/internal/dispatch"
	"github.com/forgebridge/forgebridge/internal/hostserver"
	"github.com/forgebridge/forgebridge/internal/scene"
)

// runHostSim serves the host command protocol against an in-memory scene.
// It stands in for the real content-creation host during development, so
// the MCP side can be exercised end to end without one.
func runHostSim(cfg *config.Config, log *zap.Logger) int {
	gate, err := codegate.New(codegate.Options{
		EnableExecution:     cfg.Security.EnableCodeExecution,
		ExtraDenyPatterns:   cfg.Security.ExtraDenyPatterns,
		ExtraAllowedImports: cfg.Security.ExtraAllowedImports,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitUsageErr
	}

	features := scene.Features{
		PolyHaven:      scene.NewPolyHaven("", 30*time.Second),
		Generation:     true,
		ProviderStatus: func() map[string]any { return providerStatus(cfg) },
	}
	if key := os.Getenv("SKETCHFAB_API_KEY"); key != "" {
		features.Sketchfab = scene.NewSketchfab(key, "", 30*time.Second)
	}

	reg := dispatch.NewRegistry(log.Named("dispatch"))
	sc := scene.New(log.Named("scene"))
	sc.Register(reg, features)

	reg.Guard("execute_code", func(ctx context.Context, params json.RawMessage) string {
		var p struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return "malformed parameters"
		}
		if v := gate.Validate(p.Code); !v.Allowed {
			return v.ViolatedRule
		}
		return ""
	})

	token := cfg.Host.AuthToken
	if token == "" {
		token, err = hostserver.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
			return ExitInternal
		}
		fmt.Fprintf(os.Stderr, "forgebridge hostsim: auth token %s\n", token)
	}
	reg.SetAuthToken(token)

	srv := hostserver.New(hostserver.Config{
		Network:        cfg.Host.NetworkOrDefault(),
		Addr:           cfg.Host.AddrOrDefault(),
		RequestTimeout: cfg.Host.CallTimeoutOrDefault(),
	}, reg, log.Named("hostserver"))

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "forgebridge: %v\n", err)
		return ExitInternal
	}
	fmt.Fprintf(os.Stderr, "forgebridge hostsim: listening on %s\n", srv.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down host simulator")
	srv.Stop()
	return ExitOK
}

func providerStatus(cfg *config.Config) map[string]any {
	status := make(map[string]any, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		entry := map[string]any{"enabled": pc.Enabled}
		if pc.Mode != "" {
			entry["mode"] = pc.Mode
		}
		status[name] = entry
	}
	return status
}
