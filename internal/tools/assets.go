package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// cachedHostCall answers search-style commands from the asset cache when
// possible. Only safe for commands whose results are stable over the TTL.
func cachedHostCall(ctx context.Context, deps Deps, command string, params any) (*mcp.CallToolResult, error) {
	if deps.Cache == nil {
		return hostCall(ctx, deps, command, params)
	}
	key, err := json.Marshal(params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding parameters: %v", err)), nil
	}
	if cached, ok := deps.Cache.Get(command, key); ok {
		formatted, _ := json.MarshalIndent(cached, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}

	out, err := deps.Host.Call(ctx, command, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", command, err)), nil
	}
	if err := deps.Cache.Put(command, key, json.RawMessage(out)); err != nil {
		deps.Log.Warn("caching result failed", zap.String("command", command), zap.Error(err))
	}
	formatted, _ := json.MarshalIndent(json.RawMessage(out), "", "  ")
	return mcp.NewToolResultText(string(formatted)), nil
}

func registerAssetTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("get_polyhaven_status",
			mcp.WithDescription("Check whether the Poly Haven asset library integration is enabled on the host."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return hostCall(ctx, deps, "get_polyhaven_status", nil)
		},
	)

	s.AddTool(
		mcp.NewTool("get_polyhaven_categories",
			mcp.WithDescription("List Poly Haven asset categories for one asset type, with per-category counts."),
			mcp.WithString("asset_type",
				mcp.Description("One of hdris, textures, models, all; defaults to hdris"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			params := map[string]string{"asset_type": req.GetString("asset_type", "hdris")}
			return cachedHostCall(ctx, deps, "get_polyhaven_categories", params)
		},
	)

	s.AddTool(
		mcp.NewTool("search_polyhaven_assets",
			mcp.WithDescription("Search Poly Haven assets by type and category."),
			mcp.WithString("asset_type",
				mcp.Description("One of hdris, textures, models, all; defaults to all"),
			),
			mcp.WithString("categories",
				mcp.Description("Comma-separated category filter, e.g. \"wood,floor\""),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			params := map[string]string{}
			if v := req.GetString("asset_type", ""); v != "" {
				params["asset_type"] = v
			}
			if v := req.GetString("categories", ""); v != "" {
				params["categories"] = v
			}
			return cachedHostCall(ctx, deps, "search_polyhaven_assets", params)
		},
	)

	s.AddTool(
		mcp.NewTool("download_polyhaven_asset",
			mcp.WithDescription("Download a Poly Haven asset and import it into the scene. Never cached."),
			mcp.WithString("asset_id",
				mcp.Required(),
				mcp.Description("The asset slug from a search result"),
			),
			mcp.WithString("asset_type",
				mcp.Description("One of hdris, textures, models"),
			),
			mcp.WithString("resolution",
				mcp.Description("Texture resolution, e.g. 1k, 2k, 4k; defaults to 1k"),
			),
			mcp.WithString("file_format",
				mcp.Description("File format, e.g. hdr, jpg, gltf; defaults per asset type"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			assetID, err := req.RequireString("asset_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			params := map[string]string{"asset_id": assetID}
			for _, key := range []string{"asset_type", "resolution", "file_format"} {
				if v := req.GetString(key, ""); v != "" {
					params[key] = v
				}
			}
			return hostCall(ctx, deps, "download_polyhaven_asset", params)
		},
	)

	s.AddTool(
		mcp.NewTool("get_sketchfab_status",
			mcp.WithDescription("Check whether the Sketchfab integration is enabled on the host and the API key works."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return hostCall(ctx, deps, "get_sketchfab_status", nil)
		},
	)

	s.AddTool(
		mcp.NewTool("search_sketchfab_models",
			mcp.WithDescription("Search Sketchfab for downloadable models."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Free-text search terms"),
			),
			mcp.WithString("categories",
				mcp.Description("Comma-separated category filter"),
			),
			mcp.WithNumber("count",
				mcp.Description("Maximum results to return; defaults to 20"),
			),
			mcp.WithBoolean("downloadable",
				mcp.Description("Restrict to downloadable models; defaults to true"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query, err := req.RequireString("query")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			params := map[string]any{"query": query}
			if v := req.GetString("categories", ""); v != "" {
				params["categories"] = v
			}
			if raw, ok := req.GetArguments()["count"]; ok {
				n, ok := raw.(float64)
				if !ok {
					return mcp.NewToolResultError("count must be a number"), nil
				}
				params["count"] = int(n)
			}
			if raw, ok := req.GetArguments()["downloadable"]; ok {
				b, ok := raw.(bool)
				if !ok {
					return mcp.NewToolResultError("downloadable must be a boolean"), nil
				}
				params["downloadable"] = b
			}
			return cachedHostCall(ctx, deps, "search_sketchfab_models", params)
		},
	)

	s.AddTool(
		mcp.NewTool("get_sketchfab_model_preview",
			mcp.WithDescription("Fetch the thumbnail of a Sketchfab model as an image."),
			mcp.WithString("uid",
				mcp.Required(),
				mcp.Description("The model UID from a search result"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			uid, err := req.RequireString("uid")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := deps.Host.Call(ctx, "get_sketchfab_model_preview", map[string]string{"uid": uid})
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", err)), nil
			}
			var preview struct {
				Data     string `json:"data"`
				MimeType string `json:"mime_type"`
				Name     string `json:"model_name"`
				Author   string `json:"author"`
			}
			if err := json.Unmarshal(out, &preview); err != nil || preview.Data == "" {
				return mcp.NewToolResultError("host returned no preview image"), nil
			}
			caption := fmt.Sprintf("%s by %s", preview.Name, preview.Author)
			return mcp.NewToolResultImage(caption, preview.Data, preview.MimeType), nil
		},
	)

	s.AddTool(
		mcp.NewTool("download_sketchfab_model",
			mcp.WithDescription("Download a Sketchfab model and import it into the scene. Never cached."),
			mcp.WithString("uid",
				mcp.Required(),
				mcp.Description("The model UID from a search result"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			uid, err := req.RequireString("uid")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return hostCall(ctx, deps, "download_sketchfab_model", map[string]string{"uid": uid})
		},
	)
}
