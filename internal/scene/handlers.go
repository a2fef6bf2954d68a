package scene

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/forgebridge/forgebridge/internal/dispatch"
)

// Features selects optional command groups. A nil PolyHaven or Sketchfab
// leaves that library's commands unregistered, so callers get "unknown
// command" exactly as the real host answers when the integration is off.
type Features struct {
	PolyHaven *PolyHaven
	Sketchfab *Sketchfab
	// Generation enables import_generated_asset and the provider status
	// command.
	Generation bool
	// ProviderStatus reports the configured generation providers; only
	// consulted when Generation is set.
	ProviderStatus func() map[string]any
}

// Register installs the scene's command handlers. execute_code is
// registered privileged; the caller attaches the code gate guard.
func (s *Scene) Register(reg *dispatch.Registry, features Features) {
	reg.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	reg.Register("get_scene_info", func(ctx context.Context, params json.RawMessage) (any, error) {
		return s.Info(), nil
	})

	reg.Register("get_object_info", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.Object(p.Name)
	})

	reg.Register("create_object", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Type     string `json:"type"`
			Name     string `json:"name"`
			Location Vec3   `json:"location"`
			Rotation Vec3   `json:"rotation"`
			Scale    Vec3   `json:"scale"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.CreateObject(p.Type, p.Name, p.Location, p.Rotation, p.Scale)
	})

	reg.Register("set_object_transform", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Name     string `json:"name"`
			Location *Vec3  `json:"location"`
			Rotation *Vec3  `json:"rotation"`
			Scale    *Vec3  `json:"scale"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.SetTransform(p.Name, p.Location, p.Rotation, p.Scale)
	})

	reg.Register("delete_object", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := s.DeleteObject(p.Name); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": p.Name}, nil
	})

	reg.Register("set_material", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			ObjectName   string      `json:"object_name"`
			MaterialName string      `json:"material_name"`
			Color        *[4]float64 `json:"color"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.SetMaterial(p.ObjectName, p.MaterialName, p.Color)
	})

	reg.Register("create_collection", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := s.CreateCollection(p.Name); err != nil {
			return nil, err
		}
		return map[string]string{"created": p.Name}, nil
	})

	reg.Register("move_to_collection", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			ObjectName string `json:"object_name"`
			Collection string `json:"collection"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := s.MoveToCollection(p.ObjectName, p.Collection); err != nil {
			return nil, err
		}
		return map[string]string{"object": p.ObjectName, "collection": p.Collection}, nil
	})

	reg.Register("save_blend", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Filepath string `json:"filepath"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return map[string]string{"saved_to": s.SaveBlend(p.Filepath)}, nil
	})

	reg.Register("get_viewport_screenshot", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			MaxSize int `json:"max_size"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.screenshot(p.MaxSize)
	})

	reg.RegisterPrivileged("execute_code", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Code string `json:"code"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.Code == "" {
			return nil, fmt.Errorf("code is required")
		}
		return s.RecordExecution(p.Code), nil
	})

	if features.Generation {
		s.registerGeneration(reg, features)
	}
	if features.PolyHaven != nil {
		s.registerPolyHaven(reg, features.PolyHaven)
	}
	if features.Sketchfab != nil {
		s.registerSketchfab(reg, features.Sketchfab)
	}
}

func (s *Scene) registerGeneration(reg *dispatch.Registry, features Features) {
	reg.Register("import_generated_asset", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p struct {
			Name      string `json:"name"`
			ResultRef string `json:"result_ref"`
		}
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.ImportAsset(p.Name, p.ResultRef)
	})

	reg.Register("get_generation_status", func(ctx context.Context, params json.RawMessage) (any, error) {
		if features.ProviderStatus != nil {
			return features.ProviderStatus(), nil
		}
		return map[string]any{"enabled": true}, nil
	})
}

// screenshot renders a flat placeholder image sized to the request. The
// real host grabs the viewport; the simulator only needs valid PNG bytes
// of the right shape.
func (s *Scene) screenshot(maxSize int) (any, error) {
	if maxSize <= 0 || maxSize > 1024 {
		maxSize = 64
	}
	img := image.NewGray(image.Rect(0, 0, maxSize, maxSize))
	shade := uint8(40)
	s.mu.Lock()
	shade += uint8(len(s.objects) * 16)
	s.mu.Unlock()
	for y := 0; y < maxSize; y++ {
		for x := 0; x < maxSize; x++ {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding screenshot: %w", err)
	}
	return map[string]any{
		"data":      base64.StdEncoding.EncodeToString(buf.Bytes()),
		"mime_type": "image/png",
		"width":     maxSize,
		"height":    maxSize,
	}, nil
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}
