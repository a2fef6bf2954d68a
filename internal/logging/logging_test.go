package logging

import (
	"testing"

	"github.com/forgebridge/forgebridge/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"defaults", config.LogConfig{}, false},
		{"json debug", config.LogConfig{Level: "debug", Format: "json"}, false},
		{"console warn", config.LogConfig{Level: "warn", Format: "console"}, false},
		{"bad level", config.LogConfig{Level: "verbose"}, true},
		{"bad format", config.LogConfig{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			log.Debug("probe")
			log.Info("probe")
		})
	}
}
