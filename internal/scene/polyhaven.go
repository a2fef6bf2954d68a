package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forgebridge/forgebridge/internal/dispatch"
)

const polyHavenBase = "https://api.polyhaven.com"

var polyHavenAssetTypes = map[string]bool{
	"hdris": true, "textures": true, "models": true, "all": true,
}

// PolyHaven is a thin client for the Poly Haven public asset API. BaseURL
// overrides the production endpoint for tests.
type PolyHaven struct {
	base string
	http *http.Client
}

func NewPolyHaven(baseURL string, timeout time.Duration) *PolyHaven {
	if baseURL == "" {
		baseURL = polyHavenBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PolyHaven{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (p *PolyHaven) Categories(ctx context.Context, assetType string) (map[string]int, error) {
	if !polyHavenAssetTypes[assetType] {
		return nil, fmt.Errorf("invalid asset type %q, must be one of hdris, textures, models, all", assetType)
	}
	var out map[string]int
	if err := p.getJSON(ctx, "/categories/"+assetType, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchResult is one asset from a search, keyed upstream by its slug.
type SearchResult struct {
	Slug       string   `json:"slug"`
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Authors    []string `json:"authors,omitempty"`
}

func (p *PolyHaven) Search(ctx context.Context, assetType string, categories []string) ([]SearchResult, error) {
	if assetType == "" {
		assetType = "all"
	}
	if !polyHavenAssetTypes[assetType] {
		return nil, fmt.Errorf("invalid asset type %q, must be one of hdris, textures, models, all", assetType)
	}
	q := url.Values{}
	if assetType != "all" {
		q.Set("type", assetType)
	}
	if len(categories) > 0 {
		q.Set("categories", strings.Join(categories, ","))
	}
	path := "/assets"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	raw := map[string]struct {
		Name       string            `json:"name"`
		Categories []string          `json:"categories"`
		Authors    map[string]string `json:"authors"`
	}{}
	if err := p.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(raw))
	for slug, a := range raw {
		r := SearchResult{Slug: slug, Name: a.Name, Categories: a.Categories}
		for author := range a.Authors {
			r.Authors = append(r.Authors, author)
		}
		out = append(out, r)
	}
	return out, nil
}

// FileRef locates one downloadable variant of an asset.
type FileRef struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// ResolveFile walks the asset's file tree for the requested resolution and
// format, e.g. ("1k", "hdr") or ("2k", "gltf").
func (p *PolyHaven) ResolveFile(ctx context.Context, slug, resolution, format string) (FileRef, error) {
	var tree map[string]json.RawMessage
	if err := p.getJSON(ctx, "/files/"+url.PathEscape(slug), &tree); err != nil {
		return FileRef{}, err
	}
	for _, branch := range tree {
		var byRes map[string]map[string]FileRef
		if err := json.Unmarshal(branch, &byRes); err != nil {
			continue
		}
		variants, ok := byRes[resolution]
		if !ok {
			continue
		}
		if ref, ok := variants[format]; ok && ref.URL != "" {
			return ref, nil
		}
	}
	return FileRef{}, fmt.Errorf("asset %q has no %s/%s variant", slug, resolution, format)
}

func (p *PolyHaven) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("polyhaven request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errors.New("polyhaven asset not found")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polyhaven returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding polyhaven response: %w", err)
	}
	return nil
}

func (s *Scene) registerPolyHaven(reg *dispatch.Registry, ph *PolyHaven) {
	reg.Register("get_polyhaven_status", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{
			"enabled": true,
			"message": "PolyHaven integration is enabled and ready to use.",
		}, nil
	})

	reg.Register("get_polyhaven_categories", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			AssetType string `json:"asset_type"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.AssetType == "" {
			p.AssetType = "hdris"
		}
		cats, err := ph.Categories(ctx, p.AssetType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"categories": cats}, nil
	})

	reg.Register("search_polyhaven_assets", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			AssetType  string `json:"asset_type"`
			Categories string `json:"categories"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		var cats []string
		if p.Categories != "" {
			cats = strings.Split(p.Categories, ",")
		}
		results, err := ph.Search(ctx, p.AssetType, cats)
		if err != nil {
			return nil, err
		}
		return map[string]any{"assets": results, "count": len(results)}, nil
	})

	reg.Register("download_polyhaven_asset", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			AssetID    string `json:"asset_id"`
			AssetType  string `json:"asset_type"`
			Resolution string `json:"resolution"`
			FileFormat string `json:"file_format"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.AssetID == "" {
			return nil, fmt.Errorf("asset_id is required")
		}
		if p.Resolution == "" {
			p.Resolution = "1k"
		}
		if p.FileFormat == "" {
			switch p.AssetType {
			case "hdris":
				p.FileFormat = "hdr"
			case "models":
				p.FileFormat = "gltf"
			default:
				p.FileFormat = "jpg"
			}
		}
		ref, err := ph.ResolveFile(ctx, p.AssetID, p.Resolution, p.FileFormat)
		if err != nil {
			return nil, err
		}
		obj, err := s.ImportAsset(p.AssetID, ref.URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"imported": obj.Name,
			"url":      ref.URL,
			"size":     ref.Size,
		}, nil
	})
}
