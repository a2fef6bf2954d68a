package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/jobs"
)

// RodinMode selects which deployment of the Hyper3D Rodin service a client
// talks to. The two deployments carry the same models behind different
// transports and auth schemes.
type RodinMode string

const (
	// RodinMainSite is the hyperhuman.deemos.com deployment: multipart
	// submissions, Bearer auth, subscription-key polling.
	RodinMainSite RodinMode = "MAIN_SITE"

	// RodinFalAI is the fal.ai queue deployment: JSON submissions, "Key"
	// auth, request-id polling.
	RodinFalAI RodinMode = "FAL_AI"
)

const (
	rodinMainSiteBase = "https://hyperhuman.deemos.com"
	rodinFalAIBase    = "https://queue.fal.run/fal-ai/hyper3d/rodin"

	// remoteIDSep joins the main-site task UUID and subscription key into
	// one opaque remote ID. Polling needs the key, downloading the UUID.
	remoteIDSep = "|"
)

// RodinConfig configures a Rodin client. An empty Mode selects the main
// site. BaseURL overrides the deployment's default endpoint, which tests
// use to point at a local server.
type RodinConfig struct {
	Mode    RodinMode
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Rodin submits text or image prompts to the Hyper3D Rodin service and
// polls them to completion. Implements jobs.Provider.
type Rodin struct {
	cfg  RodinConfig
	base string
	http *http.Client
	log  *zap.Logger
}

func NewRodin(cfg RodinConfig, log *zap.Logger) (*Rodin, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rodin: API key is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = RodinMainSite
	}
	base := cfg.BaseURL
	switch cfg.Mode {
	case RodinMainSite:
		if base == "" {
			base = rodinMainSiteBase
		}
	case RodinFalAI:
		if base == "" {
			base = rodinFalAIBase
		}
	default:
		return nil, fmt.Errorf("rodin: unknown mode %q", cfg.Mode)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Rodin{
		cfg:  cfg,
		base: strings.TrimRight(base, "/"),
		http: newHTTPClient(cfg.Timeout),
		log:  log,
	}, nil
}

func (r *Rodin) Name() string { return "rodin" }

func (r *Rodin) Submit(ctx context.Context, req jobs.SubmitRequest) (string, error) {
	if req.Prompt == "" && req.ImageRef == "" {
		return "", fmt.Errorf("%w: rodin needs a prompt or an image", jobs.ErrService)
	}
	switch r.cfg.Mode {
	case RodinMainSite:
		return r.submitMainSite(ctx, req)
	default:
		return r.submitFalAI(ctx, req)
	}
}

func (r *Rodin) Poll(ctx context.Context, remoteID string) (jobs.PollUpdate, error) {
	switch r.cfg.Mode {
	case RodinMainSite:
		return r.pollMainSite(ctx, remoteID)
	default:
		return r.pollFalAI(ctx, remoteID)
	}
}

// --- main site ---

type rodinMainSubmitResponse struct {
	UUID string `json:"uuid"`
	Jobs struct {
		SubscriptionKey string `json:"subscription_key"`
	} `json:"jobs"`
	Error string `json:"error"`
}

func (r *Rodin) submitMainSite(ctx context.Context, req jobs.SubmitRequest) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"tier":      "Sketch",
		"mesh_mode": "Raw",
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	if len(req.BBox) > 0 {
		bbox, err := json.Marshal(req.BBox)
		if err != nil {
			return "", fmt.Errorf("encoding bbox: %w", err)
		}
		fields["bbox_condition"] = string(bbox)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("building submission: %w", err)
		}
	}
	if req.ImageRef != "" {
		if err := attachImage(mw, req.ImageRef); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/api/v2/rodin", &body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out rodinMainSubmitResponse
	if err := r.doJSON(httpReq, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", jobs.ErrService, out.Error)
	}
	if out.UUID == "" || out.Jobs.SubscriptionKey == "" {
		return "", fmt.Errorf("%w: submission response missing task uuid or subscription key", jobs.ErrService)
	}
	return out.UUID + remoteIDSep + out.Jobs.SubscriptionKey, nil
}

type rodinMainStatusResponse struct {
	Jobs []struct {
		UUID   string `json:"uuid"`
		Status string `json:"status"`
	} `json:"jobs"`
	Error string `json:"error"`
}

type rodinMainDownloadResponse struct {
	List []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"list"`
	Error string `json:"error"`
}

func (r *Rodin) pollMainSite(ctx context.Context, remoteID string) (jobs.PollUpdate, error) {
	taskUUID, subKey, ok := strings.Cut(remoteID, remoteIDSep)
	if !ok {
		return jobs.PollUpdate{}, fmt.Errorf("%w: malformed rodin remote id", jobs.ErrService)
	}

	var status rodinMainStatusResponse
	if err := r.postJSON(ctx, "/api/v2/status", map[string]string{"subscription_key": subKey}, &status); err != nil {
		return jobs.PollUpdate{}, err
	}
	if status.Error != "" {
		return jobs.PollUpdate{}, fmt.Errorf("%w: %s", jobs.ErrService, status.Error)
	}
	if len(status.Jobs) == 0 {
		return jobs.PollUpdate{Status: jobs.StatusSubmitted}, nil
	}

	done := 0
	for _, j := range status.Jobs {
		switch j.Status {
		case "Done":
			done++
		case "Failed":
			return jobs.PollUpdate{Status: jobs.StatusFailed, Message: "rodin subtask " + j.UUID + " failed"}, nil
		}
	}
	if done < len(status.Jobs) {
		return jobs.PollUpdate{
			Status:   jobs.StatusProcessing,
			Progress: 100 * float64(done) / float64(len(status.Jobs)),
		}, nil
	}

	// Every subtask is done; resolve the downloadable model before
	// reporting completion so the result ref is a direct URL.
	var dl rodinMainDownloadResponse
	if err := r.postJSON(ctx, "/api/v2/download", map[string]string{"task_uuid": taskUUID}, &dl); err != nil {
		return jobs.PollUpdate{}, err
	}
	if dl.Error != "" {
		return jobs.PollUpdate{}, fmt.Errorf("%w: %s", jobs.ErrService, dl.Error)
	}
	for _, f := range dl.List {
		if strings.HasSuffix(strings.ToLower(f.Name), ".glb") {
			return jobs.PollUpdate{Status: jobs.StatusCompleted, ResultRef: f.URL}, nil
		}
	}
	return jobs.PollUpdate{}, fmt.Errorf("%w: rodin task %s finished without a glb file", jobs.ErrService, taskUUID)
}

// --- fal.ai ---

type rodinFalSubmitResponse struct {
	RequestID string `json:"request_id"`
	Detail    string `json:"detail"`
}

func (r *Rodin) submitFalAI(ctx context.Context, req jobs.SubmitRequest) (string, error) {
	payload := map[string]any{"tier": "Sketch"}
	if req.Prompt != "" {
		payload["prompt"] = req.Prompt
	}
	if req.ImageRef != "" {
		payload["input_image_urls"] = []string{req.ImageRef}
	}
	if len(req.BBox) > 0 {
		payload["bbox_condition"] = req.BBox
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding submission: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Key "+r.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	var out rodinFalSubmitResponse
	if err := r.doJSON(httpReq, &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		msg := out.Detail
		if msg == "" {
			msg = "submission response missing request id"
		}
		return "", fmt.Errorf("%w: %s", jobs.ErrService, msg)
	}
	return out.RequestID, nil
}

type rodinFalStatusResponse struct {
	Status string `json:"status"`
}

type rodinFalResultResponse struct {
	ModelMesh struct {
		URL string `json:"url"`
	} `json:"model_mesh"`
}

func (r *Rodin) pollFalAI(ctx context.Context, remoteID string) (jobs.PollUpdate, error) {
	var status rodinFalStatusResponse
	if err := r.getJSON(ctx, "/requests/"+remoteID+"/status", &status); err != nil {
		return jobs.PollUpdate{}, err
	}
	switch status.Status {
	case "IN_QUEUE":
		return jobs.PollUpdate{Status: jobs.StatusSubmitted}, nil
	case "IN_PROGRESS":
		return jobs.PollUpdate{Status: jobs.StatusProcessing, Progress: 50}, nil
	case "COMPLETED":
	default:
		return jobs.PollUpdate{}, fmt.Errorf("%w: unexpected fal.ai status %q", jobs.ErrService, status.Status)
	}

	var result rodinFalResultResponse
	if err := r.getJSON(ctx, "/requests/"+remoteID, &result); err != nil {
		return jobs.PollUpdate{}, err
	}
	if result.ModelMesh.URL == "" {
		return jobs.PollUpdate{}, fmt.Errorf("%w: completed fal.ai request has no mesh URL", jobs.ErrService)
	}
	return jobs.PollUpdate{Status: jobs.StatusCompleted, ResultRef: result.ModelMesh.URL}, nil
}

// --- shared plumbing ---

func (r *Rodin) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return r.doJSON(req, out)
}

func (r *Rodin) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+r.cfg.APIKey)
	return r.doJSON(req, out)
}

func (r *Rodin) doJSON(req *http.Request, out any) error {
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", jobs.ErrService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %v", jobs.ErrService, httpStatusError("rodin", resp))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", jobs.ErrService, err)
	}
	return nil
}

func attachImage(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	part, err := mw.CreateFormFile("images", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("building submission: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	return nil
}
