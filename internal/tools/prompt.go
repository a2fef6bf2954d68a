package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const strategyText = `When building 3D content, follow this order:

1. Call get_scene_info first to understand what already exists.
2. Prefer library assets over generation: check get_polyhaven_status and
   get_sketchfab_status, then search_polyhaven_assets for textures, HDRIs
   and models, or search_sketchfab_models for finished models (preview
   with get_sketchfab_model_preview before downloading). Downloaded
   assets are production quality and arrive instantly.
3. For objects the library does not cover, use generate_model with a short
   concrete prompt ("a worn leather armchair", not a paragraph). Poll with
   poll_generation_job no more often than every 2 seconds, and only call
   import_generated_asset once the status is COMPLETED.
4. Fall back to create_object primitives plus set_material for simple
   geometry, placeholders and blockouts.
5. Use execute_code only for operations no dedicated tool covers. Keep
   snippets short and idempotent; the code screen rejects filesystem,
   network and process access.

Always verify the result: get_object_info after creating or importing, and
get_viewport_screenshot to check composition before declaring work done.`

func registerPrompts(s *server.MCPServer) {
	s.AddPrompt(
		mcp.NewPrompt("asset_creation_strategy",
			mcp.WithPromptDescription("Recommended order of operations for building scene content: library assets first, then generation, then primitives, code as a last resort."),
		),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult(
				"Asset creation strategy",
				[]mcp.PromptMessage{
					mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(strategyText)),
				},
			), nil
		},
	)
}
