package scene

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newPolyHavenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/categories/hdris":
			json.NewEncoder(w).Encode(map[string]int{"outdoor": 312, "studio": 98})
		case r.URL.Path == "/assets":
			if got := r.URL.Query().Get("type"); got != "textures" {
				t.Errorf("type = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"oak_veneer": map[string]any{
					"name":       "Oak Veneer",
					"categories": []string{"wood"},
					"authors":    map[string]string{"Rob Tuytel": "all"},
				},
			})
		case r.URL.Path == "/files/oak_veneer":
			json.NewEncoder(w).Encode(map[string]any{
				"Diffuse": map[string]any{
					"1k": map[string]any{
						"jpg": map[string]any{"url": "https://dl.polyhaven.org/oak_1k.jpg", "size": 123456},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestPolyHavenClient(t *testing.T) {
	srv := newPolyHavenServer(t)
	defer srv.Close()
	ph := NewPolyHaven(srv.URL, 0)

	cats, err := ph.Categories(context.Background(), "hdris")
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if cats["outdoor"] != 312 {
		t.Fatalf("categories = %v", cats)
	}
	if _, err := ph.Categories(context.Background(), "sounds"); err == nil {
		t.Fatal("invalid asset type accepted")
	}

	results, err := ph.Search(context.Background(), "textures", []string{"wood"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Slug != "oak_veneer" || results[0].Name != "Oak Veneer" {
		t.Fatalf("results = %+v", results)
	}

	ref, err := ph.ResolveFile(context.Background(), "oak_veneer", "1k", "jpg")
	if err != nil {
		t.Fatalf("ResolveFile: %v", err)
	}
	if ref.URL != "https://dl.polyhaven.org/oak_1k.jpg" {
		t.Fatalf("ref = %+v", ref)
	}
	if _, err := ph.ResolveFile(context.Background(), "oak_veneer", "8k", "jpg"); err == nil {
		t.Fatal("missing variant resolved")
	}
}

func TestPolyHavenCommands(t *testing.T) {
	srv := newPolyHavenServer(t)
	defer srv.Close()

	_, reg := newTestRegistry(t, Features{PolyHaven: NewPolyHaven(srv.URL, 0)})

	out := call(t, reg, "get_polyhaven_status", nil)
	if !strings.Contains(string(out), `"enabled":true`) {
		t.Fatalf("status = %s", out)
	}

	out = call(t, reg, "search_polyhaven_assets", map[string]string{
		"asset_type": "textures",
		"categories": "wood",
	})
	if !strings.Contains(string(out), "oak_veneer") {
		t.Fatalf("search = %s", out)
	}

	out = call(t, reg, "download_polyhaven_asset", map[string]string{
		"asset_id":   "oak_veneer",
		"asset_type": "textures",
		"resolution": "1k",
	})
	if !strings.Contains(string(out), "oak_1k.jpg") {
		t.Fatalf("download = %s", out)
	}

	// The command group is absent entirely when the integration is off.
	_, bare := newTestRegistry(t, Features{})
	if msg := callErr(t, bare, "get_polyhaven_status", nil); !strings.Contains(msg, "unknown command") {
		t.Fatalf("error = %q", msg)
	}
}
