package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/config"
	"github.com/forgebridge/forgebridge/internal/dispatch"
	"github.com/forgebridge/forgebridge/internal/hostserver"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

func TestRunVersionAndHelp(t *testing.T) {
	if code := Run([]string{"version"}); code != ExitOK {
		t.Fatalf("version exit = %d", code)
	}
	if code := Run([]string{"--help"}); code != ExitOK {
		t.Fatalf("help exit = %d", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if code := Run([]string{"frobnicate"}); code != ExitUsageErr {
		t.Fatalf("exit = %d, want %d", code, ExitUsageErr)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/forgebridge.toml"
	if err := writeFile(path, "[host]\nnetwork = \"carrier-pigeon\"\n"); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	if code := Run([]string{"serve"}); code != ExitUsageErr {
		t.Fatalf("exit = %d, want %d", code, ExitUsageErr)
	}
}

func TestParseServeFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"none", nil, "", false},
		{"separate", []string{"--http", ":8931"}, ":8931", false},
		{"equals", []string{"--http=:8931"}, ":8931", false},
		{"missing value", []string{"--http"}, "", true},
		{"unknown flag", []string{"--tcp"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServeFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseServeFlags: %v", err)
			}
			if got != tt.want {
				t.Fatalf("addr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCatalog(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"rodin":   {Enabled: true, Mode: "MAIN_SITE", APIKey: "k"},
		"hunyuan": {Enabled: false},
	}}

	catalog, err := buildCatalog(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildCatalog: %v", err)
	}

	if _, err := catalog.Resolve("rodin"); err != nil {
		t.Fatalf("rodin should resolve: %v", err)
	}
	if _, err := catalog.Resolve("hunyuan"); err == nil || !strings.Contains(err.Error(), "disabled in configuration") {
		t.Fatalf("hunyuan err = %v", err)
	}
}

func TestBuildCatalogAcceptsModelessRodin(t *testing.T) {
	// config.Validate allows an enabled rodin section without a mode, so
	// the catalog must accept it too (the client defaults to MAIN_SITE).
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"rodin": {Enabled: true, APIKey: "k"},
	}}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	catalog, err := buildCatalog(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildCatalog: %v", err)
	}
	if _, err := catalog.Resolve("rodin"); err != nil {
		t.Fatalf("rodin should resolve: %v", err)
	}
}

func TestBuildCatalogUnknownProvider(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"meshify": {Enabled: true, APIKey: "k"},
	}}
	if _, err := buildCatalog(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestProviderStatus(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"rodin": {Enabled: true, Mode: "FAL_AI"},
	}}
	status := providerStatus(cfg)
	entry, ok := status["rodin"].(map[string]any)
	if !ok {
		t.Fatalf("status = %#v", status)
	}
	if entry["enabled"] != true || entry["mode"] != "FAL_AI" {
		t.Fatalf("entry = %#v", entry)
	}
}

func TestDoctorAgainstRunningHost(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	reg := dispatch.NewRegistry(zap.NewNop())
	reg.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})
	srv := hostserver.New(hostserver.Config{Network: "tcp", Addr: "127.0.0.1:0"}, reg, zap.NewNop())
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	cfg := &config.Config{
		Host:  config.HostConfig{Network: "tcp", Addr: srv.Addr().String()},
		Cache: config.CacheConfig{Dir: t.TempDir()},
	}

	var buf bytes.Buffer
	if code := runDoctor(cfg, &buf); code != ExitOK {
		t.Fatalf("doctor exit = %d\n%s", code, buf.String())
	}
	out := buf.String()
	for _, want := range []string{"config", "host", "cache"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "FAIL") {
		t.Fatalf("unexpected failure:\n%s", out)
	}
}

func TestDoctorReportsUnreachableHost(t *testing.T) {
	cfg := &config.Config{
		Host:  config.HostConfig{Network: "tcp", Addr: "127.0.0.1:1", RetryDelay: "1ms"},
		Cache: config.CacheConfig{Dir: t.TempDir()},
	}
	var buf bytes.Buffer
	if code := runDoctor(cfg, &buf); code != ExitInternal {
		t.Fatalf("doctor exit = %d\n%s", code, buf.String())
	}
	if !strings.Contains(buf.String(), "FAIL") {
		t.Fatalf("output missing FAIL:\n%s", buf.String())
	}
}
