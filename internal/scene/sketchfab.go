package scene

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/forgebridge/forgebridge/internal/dispatch"
)

const sketchfabBase = "https://api.sketchfab.com/v3"

// Sketchfab is a thin client for the Sketchfab model API. Every request
// carries token auth; BaseURL overrides the production endpoint for tests.
type Sketchfab struct {
	base  string
	token string
	http  *http.Client
}

func NewSketchfab(token, baseURL string, timeout time.Duration) *Sketchfab {
	if baseURL == "" {
		baseURL = sketchfabBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sketchfab{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// Account verifies the API token and returns the account's username.
func (sf *Sketchfab) Account(ctx context.Context) (string, error) {
	var me struct {
		Username string `json:"username"`
	}
	if err := sf.getJSON(ctx, "/me", &me); err != nil {
		return "", err
	}
	return me.Username, nil
}

// SketchfabModel is one model from a search, keyed by its UID.
type SketchfabModel struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Author       string `json:"author"`
	FaceCount    int    `json:"face_count"`
	Downloadable bool   `json:"downloadable"`
}

func (sf *Sketchfab) Search(ctx context.Context, query, categories string, count int, downloadable bool) ([]SketchfabModel, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if count <= 0 {
		count = 20
	}
	q := url.Values{}
	q.Set("type", "models")
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	q.Set("downloadable", strconv.FormatBool(downloadable))
	q.Set("archives_flavours", "false")
	if categories != "" {
		q.Set("categories", categories)
	}

	var raw struct {
		Results []struct {
			UID  string `json:"uid"`
			Name string `json:"name"`
			User struct {
				Username string `json:"username"`
			} `json:"user"`
			FaceCount      int  `json:"faceCount"`
			IsDownloadable bool `json:"isDownloadable"`
		} `json:"results"`
	}
	if err := sf.getJSON(ctx, "/search?"+q.Encode(), &raw); err != nil {
		return nil, err
	}

	out := make([]SketchfabModel, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, SketchfabModel{
			UID:          r.UID,
			Name:         r.Name,
			Author:       r.User.Username,
			FaceCount:    r.FaceCount,
			Downloadable: r.IsDownloadable,
		})
	}
	return out, nil
}

// SketchfabPreview is a model thumbnail plus identifying detail.
type SketchfabPreview struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
	Name     string `json:"model_name"`
	Author   string `json:"author"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ModelPreview fetches a model's thumbnail, preferring a medium size
// (roughly 640px wide) and falling back to the first available image.
func (sf *Sketchfab) ModelPreview(ctx context.Context, uid string) (SketchfabPreview, error) {
	var info struct {
		Name string `json:"name"`
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Thumbnails struct {
			Images []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"images"`
		} `json:"thumbnails"`
	}
	if err := sf.getJSON(ctx, "/models/"+url.PathEscape(uid), &info); err != nil {
		return SketchfabPreview{}, err
	}
	images := info.Thumbnails.Images
	if len(images) == 0 {
		return SketchfabPreview{}, fmt.Errorf("model %q has no thumbnail", uid)
	}

	pick := images[0]
	for _, img := range images {
		if img.Width >= 400 && img.Width <= 800 {
			pick = img
			break
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pick.URL, nil)
	if err != nil {
		return SketchfabPreview{}, err
	}
	resp, err := sf.http.Do(req)
	if err != nil {
		return SketchfabPreview{}, fmt.Errorf("downloading thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SketchfabPreview{}, fmt.Errorf("thumbnail download returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return SketchfabPreview{}, fmt.Errorf("reading thumbnail: %w", err)
	}

	mime := "image/jpeg"
	if strings.Contains(resp.Header.Get("Content-Type"), "png") || strings.HasSuffix(pick.URL, ".png") {
		mime = "image/png"
	}
	return SketchfabPreview{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
		Name:     info.Name,
		Author:   info.User.Username,
		Width:    pick.Width,
		Height:   pick.Height,
	}, nil
}

// DownloadURL resolves the temporary glTF archive URL for a downloadable
// model.
func (sf *Sketchfab) DownloadURL(ctx context.Context, uid string) (string, error) {
	var out struct {
		Gltf struct {
			URL string `json:"url"`
		} `json:"gltf"`
	}
	if err := sf.getJSON(ctx, "/models/"+url.PathEscape(uid)+"/download", &out); err != nil {
		return "", err
	}
	if out.Gltf.URL == "" {
		return "", fmt.Errorf("model %q has no gltf download, it may not be downloadable", uid)
	}
	return out.Gltf.URL, nil
}

func (sf *Sketchfab) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sf.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+sf.token)
	resp, err := sf.http.Do(req)
	if err != nil {
		return fmt.Errorf("sketchfab request failed: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return errors.New("sketchfab authentication failed, check the API key")
	case http.StatusNotFound:
		return errors.New("sketchfab model not found")
	default:
		return fmt.Errorf("sketchfab returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding sketchfab response: %w", err)
	}
	return nil
}

func (s *Scene) registerSketchfab(reg *dispatch.Registry, sf *Sketchfab) {
	reg.Register("get_sketchfab_status", func(ctx context.Context, params json.RawMessage) (any, error) {
		username, err := sf.Account(ctx)
		if err != nil {
			return map[string]any{"enabled": false, "message": err.Error()}, nil
		}
		return map[string]any{
			"enabled": true,
			"message": fmt.Sprintf("Sketchfab integration is enabled and ready to use. Logged in as: %s", username),
		}, nil
	})

	reg.Register("search_sketchfab_models", func(ctx context.Context, params json.RawMessage) (any, error) {
		p := struct {
			Query        string `json:"query"`
			Categories   string `json:"categories"`
			Count        int    `json:"count"`
			Downloadable *bool  `json:"downloadable"`
		}{}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		downloadable := true
		if p.Downloadable != nil {
			downloadable = *p.Downloadable
		}
		models, err := sf.Search(ctx, p.Query, p.Categories, p.Count, downloadable)
		if err != nil {
			return nil, err
		}
		return map[string]any{"models": models, "count": len(models)}, nil
	})

	reg.Register("get_sketchfab_model_preview", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			UID string `json:"uid"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.UID == "" {
			return nil, fmt.Errorf("uid is required")
		}
		preview, err := sf.ModelPreview(ctx, p.UID)
		if err != nil {
			return nil, err
		}
		return preview, nil
	})

	reg.Register("download_sketchfab_model", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			UID string `json:"uid"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.UID == "" {
			return nil, fmt.Errorf("uid is required")
		}
		dl, err := sf.DownloadURL(ctx, p.UID)
		if err != nil {
			return nil, err
		}
		obj, err := s.ImportAsset(p.UID, dl)
		if err != nil {
			return nil, err
		}
		return map[string]any{"imported": obj.Name, "url": dl}, nil
	})
}
