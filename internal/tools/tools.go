// Package tools exposes the bridge as an MCP tool surface. Each tool shapes
// exactly one host command or one job-tracker call; no tool talks to the
// generation services or the host directly.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/assetcache"
	"github.com/forgebridge/forgebridge/internal/codegate"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/providers"
)

const serverVersion = "1.0.0"

// Deps wires the tool handlers to the rest of the bridge. Host is the
// framed connection to the content-creation process; *bridge.Conn
// satisfies it.
type Deps struct {
	Host    jobs.Commander
	Gate    *codegate.Gate
	Tracker *jobs.Tracker
	Catalog *providers.Catalog
	Cache   *assetcache.Cache
	Log     *zap.Logger
}

// NewServer builds the MCP server with every tool and prompt registered.
func NewServer(deps Deps) *server.MCPServer {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	s := server.NewMCPServer(
		"forgebridge",
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
	)
	registerSceneTools(s, deps)
	registerCodeTools(s, deps)
	registerAssetTools(s, deps)
	registerGenerationTools(s, deps)
	registerPrompts(s)
	deps.Log.Info("registered MCP tools")
	return s
}

// hostCall forwards one command and pretty-prints the host's result for
// the model.
func hostCall(ctx context.Context, deps Deps, command string, params any) (*mcp.CallToolResult, error) {
	out, err := deps.Host.Call(ctx, command, params)
	if err != nil {
		deps.Log.Warn("host command failed", zap.String("command", command), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", command, err)), nil
	}
	formatted, _ := json.MarshalIndent(json.RawMessage(out), "", "  ")
	return mcp.NewToolResultText(string(formatted)), nil
}

func registerSceneTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("get_scene_info",
			mcp.WithDescription("Get a summary of the current scene: object count, the first objects with their types and locations, and collections."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return hostCall(ctx, deps, "get_scene_info", nil)
		},
	)

	s.AddTool(
		mcp.NewTool("get_object_info",
			mcp.WithDescription("Get detailed information about a named object: type, transform, material, collection."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("The object name"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return hostCall(ctx, deps, "get_object_info", map[string]string{"name": name})
		},
	)

	s.AddTool(
		mcp.NewTool("create_object",
			mcp.WithDescription("Create a new object in the scene. Location, rotation and scale are [x, y, z] triples."),
			mcp.WithString("type",
				mcp.Required(),
				mcp.Description("Object type: CUBE, SPHERE, CYLINDER, PLANE, CONE, TORUS, EMPTY, CAMERA, LIGHT"),
			),
			mcp.WithString("name",
				mcp.Description("Optional object name; a numeric suffix is added on collision"),
			),
			mcp.WithArray("location", mcp.Description("[x, y, z] position")),
			mcp.WithArray("rotation", mcp.Description("[x, y, z] Euler rotation in radians")),
			mcp.WithArray("scale", mcp.Description("[x, y, z] scale, defaults to [1, 1, 1]")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			objType, err := req.RequireString("type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			params := map[string]any{"type": objType}
			if name := req.GetString("name", ""); name != "" {
				params["name"] = name
			}
			args := req.GetArguments()
			for _, key := range []string{"location", "rotation", "scale"} {
				if v, ok, err := floatTriple(args, key); err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				} else if ok {
					params[key] = v
				}
			}
			return hostCall(ctx, deps, "create_object", params)
		},
	)

	s.AddTool(
		mcp.NewTool("set_object_transform",
			mcp.WithDescription("Change an object's location, rotation or scale. Omitted components keep their current values."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("The object to transform"),
			),
			mcp.WithArray("location", mcp.Description("[x, y, z] position")),
			mcp.WithArray("rotation", mcp.Description("[x, y, z] Euler rotation in radians")),
			mcp.WithArray("scale", mcp.Description("[x, y, z] scale")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			params := map[string]any{"name": name}
			args := req.GetArguments()
			for _, key := range []string{"location", "rotation", "scale"} {
				if v, ok, err := floatTriple(args, key); err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				} else if ok {
					params[key] = v
				}
			}
			return hostCall(ctx, deps, "set_object_transform", params)
		},
	)

	s.AddTool(
		mcp.NewTool("delete_object",
			mcp.WithDescription("Delete a named object from the scene."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("The object to delete"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return hostCall(ctx, deps, "delete_object", map[string]string{"name": name})
		},
	)

	s.AddTool(
		mcp.NewTool("set_material",
			mcp.WithDescription("Assign a material to an object, optionally with an RGBA base color (components 0..1)."),
			mcp.WithString("object_name",
				mcp.Required(),
				mcp.Description("The object to assign the material to"),
			),
			mcp.WithString("material_name",
				mcp.Description("Optional material name; defaults to <object>_material"),
			),
			mcp.WithArray("color", mcp.Description("[r, g, b, a] base color, each component in 0..1")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			objectName, err := req.RequireString("object_name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			params := map[string]any{"object_name": objectName}
			if name := req.GetString("material_name", ""); name != "" {
				params["material_name"] = name
			}
			if raw, ok := req.GetArguments()["color"]; ok {
				color, err := floatSlice(raw, 4)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("color: %v", err)), nil
				}
				params["color"] = color
			}
			return hostCall(ctx, deps, "set_material", params)
		},
	)

	s.AddTool(
		mcp.NewTool("create_collection",
			mcp.WithDescription("Create a new empty collection."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("The collection name"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return hostCall(ctx, deps, "create_collection", map[string]string{"name": name})
		},
	)

	s.AddTool(
		mcp.NewTool("move_to_collection",
			mcp.WithDescription("Move an object into a collection."),
			mcp.WithString("object_name",
				mcp.Required(),
				mcp.Description("The object to move"),
			),
			mcp.WithString("collection",
				mcp.Required(),
				mcp.Description("The target collection"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			objectName, err := req.RequireString("object_name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			collection, err := req.RequireString("collection")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return hostCall(ctx, deps, "move_to_collection", map[string]string{
				"object_name": objectName,
				"collection":  collection,
			})
		},
	)

	s.AddTool(
		mcp.NewTool("save_blend",
			mcp.WithDescription("Save the current scene to a .blend file."),
			mcp.WithString("filepath",
				mcp.Description("Optional target path; defaults to the last save location"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			params := map[string]string{}
			if fp := req.GetString("filepath", ""); fp != "" {
				params["filepath"] = fp
			}
			return hostCall(ctx, deps, "save_blend", params)
		},
	)

	s.AddTool(
		mcp.NewTool("get_viewport_screenshot",
			mcp.WithDescription("Capture the current viewport as a PNG image."),
			mcp.WithNumber("max_size",
				mcp.Description("Longest edge in pixels, capped at 1024; defaults to 64"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			params := map[string]any{}
			if raw, ok := req.GetArguments()["max_size"]; ok {
				n, ok := raw.(float64)
				if !ok {
					return mcp.NewToolResultError("max_size must be a number"), nil
				}
				params["max_size"] = int(n)
			}
			out, err := deps.Host.Call(ctx, "get_viewport_screenshot", params)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("screenshot failed: %v", err)), nil
			}
			var shot struct {
				Data     string `json:"data"`
				MimeType string `json:"mime_type"`
			}
			if err := json.Unmarshal(out, &shot); err != nil || shot.Data == "" {
				return mcp.NewToolResultError("host returned no image data"), nil
			}
			return mcp.NewToolResultImage("viewport screenshot", shot.Data, shot.MimeType), nil
		},
	)
}

func registerCodeTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("execute_code",
			mcp.WithDescription("Run a Python snippet inside the host. Code is screened against a deny list and an import allowlist before it is sent; the screen is a mitigation, not a sandbox."),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("The Python code to run"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			code, err := req.RequireString("code")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if verdict := deps.Gate.Validate(code); !verdict.Allowed {
				deps.Log.Warn("code rejected by safety gate", zap.String("rule", verdict.ViolatedRule))
				return mcp.NewToolResultError("code rejected: " + verdict.ViolatedRule), nil
			}
			return hostCall(ctx, deps, "execute_code", map[string]string{"code": code})
		},
	)
}

// floatTriple pulls an optional [x, y, z] argument. ok is false when the
// key is absent.
func floatTriple(args map[string]any, key string) ([]float64, bool, error) {
	raw, ok := args[key]
	if !ok {
		return nil, false, nil
	}
	v, err := floatSlice(raw, 3)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

func floatSlice(raw any, want int) ([]float64, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("must be an array of %d numbers", want)
	}
	if len(list) != want {
		return nil, fmt.Errorf("must have exactly %d elements, got %d", want, len(list))
	}
	out := make([]float64, want)
	for i, item := range list {
		n, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = n
	}
	return out, nil
}
