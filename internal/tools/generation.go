package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/forgebridge/forgebridge/internal/jobs"
)

// jobView is what the model sees for one job. Kept flat and stringly so
// the output survives MarshalIndent without surprises.
type jobView struct {
	JobID       string  `json:"job_id"`
	Provider    string  `json:"provider"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	Error       string  `json:"error,omitempty"`
	SubmittedAt string  `json:"submitted_at"`
}

func viewOf(j jobs.Job) jobView {
	return jobView{
		JobID:       j.ID,
		Provider:    j.Provider,
		Status:      j.Status.String(),
		Progress:    j.Progress,
		Error:       j.Err,
		SubmittedAt: j.SubmittedAt.Format(time.RFC3339),
	}
}

func jobResult(j jobs.Job) *mcp.CallToolResult {
	formatted, _ := json.MarshalIndent(viewOf(j), "", "  ")
	return mcp.NewToolResultText(string(formatted))
}

func registerGenerationTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("generate_model",
			mcp.WithDescription("Submit a text or image prompt to a 3D generation service. Returns a job ID to poll with poll_generation_job. Wait at least 2 seconds between polls."),
			mcp.WithString("provider",
				mcp.Required(),
				mcp.Description("Generation provider: rodin or hunyuan"),
			),
			mcp.WithString("prompt",
				mcp.Description("Text description of the model to generate"),
			),
			mcp.WithString("image",
				mcp.Description("Image URL or local path as the generation input"),
			),
			mcp.WithArray("bbox",
				mcp.Description("Optional [width, height, length] proportion constraint"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			providerName, err := req.RequireString("provider")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			provider, err := deps.Catalog.Resolve(providerName)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			sub := jobs.SubmitRequest{
				Prompt:   req.GetString("prompt", ""),
				ImageRef: req.GetString("image", ""),
			}
			if raw, ok := req.GetArguments()["bbox"]; ok {
				bbox, err := floatSlice(raw, 3)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("bbox: %v", err)), nil
				}
				sub.BBox = bbox
			}

			job, err := deps.Tracker.Submit(ctx, provider, sub)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("submission failed: %v", err)), nil
			}
			return jobResult(job), nil
		},
	)

	s.AddTool(
		mcp.NewTool("poll_generation_job",
			mcp.WithDescription("Check the status of a generation job. Completed and failed jobs answer without contacting the service."),
			mcp.WithString("job_id",
				mcp.Required(),
				mcp.Description("The job ID returned by generate_model"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			jobID, err := req.RequireString("job_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			job, err := deps.Tracker.Get(jobID)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			provider, err := deps.Catalog.Resolve(job.Provider)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			job, err = deps.Tracker.Poll(ctx, provider, jobID)
			if err != nil {
				// The job record still moved (failure counters, budget);
				// report it alongside the error.
				view := viewOf(job)
				view.Error = err.Error()
				formatted, _ := json.MarshalIndent(view, "", "  ")
				return mcp.NewToolResultError(string(formatted)), nil
			}
			return jobResult(job), nil
		},
	)

	s.AddTool(
		mcp.NewTool("import_generated_asset",
			mcp.WithDescription("Import a completed generation job's model into the scene under the given name. Fails unless the job status is COMPLETED."),
			mcp.WithString("job_id",
				mcp.Required(),
				mcp.Description("The completed job's ID"),
			),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Object name for the imported model"),
			),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			jobID, err := req.RequireString("job_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := deps.Tracker.ImportResult(ctx, deps.Host, jobID, name); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("imported job %s as %q", jobID, name)), nil
		},
	)

	s.AddTool(
		mcp.NewTool("list_generation_jobs",
			mcp.WithDescription("List all generation jobs of this session, newest first."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			all := deps.Tracker.Jobs()
			views := make([]jobView, 0, len(all))
			for _, j := range all {
				views = append(views, viewOf(j))
			}
			formatted, _ := json.MarshalIndent(views, "", "  ")
			return mcp.NewToolResultText(string(formatted)), nil
		},
	)

	s.AddTool(
		mcp.NewTool("get_generation_providers",
			mcp.WithDescription("List the configured 3D generation providers and whether each is ready to use."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out := make(map[string]any)
			for _, name := range deps.Catalog.Names() {
				in, _ := deps.Catalog.Status(name)
				entry := map[string]any{"enabled": in.Enabled}
				if in.Mode != "" {
					entry["mode"] = in.Mode
				}
				if in.Message != "" {
					entry["message"] = in.Message
				}
				out[name] = entry
			}
			formatted, _ := json.MarshalIndent(out, "", "  ")
			return mcp.NewToolResultText(string(formatted)), nil
		},
	)
}
