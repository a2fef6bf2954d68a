package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/jobs"
)

const (
	hunyuanService = "hunyuan"
	hunyuanVersion = "2023-09-01"
	hunyuanRegion  = "ap-guangzhou"
	hunyuanHost    = "hunyuan.tencentcloudapi.com"

	actionSubmit = "SubmitHunyuanTo3DJob"
	actionQuery  = "QueryHunyuanTo3DJob"
)

// HunyuanConfig carries Tencent Cloud credentials for the Hunyuan 3D API.
// Endpoint overrides the production host for tests.
type HunyuanConfig struct {
	SecretID  string
	SecretKey string
	Region    string
	Endpoint  string
	Timeout   time.Duration
}

// Hunyuan talks to the Tencent Hunyuan To3D API. Requests are signed with
// the TC3-HMAC-SHA256 scheme. Implements jobs.Provider.
type Hunyuan struct {
	cfg  HunyuanConfig
	host string
	base string
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

func NewHunyuan(cfg HunyuanConfig, log *zap.Logger) (*Hunyuan, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("hunyuan: SecretId and SecretKey are required")
	}
	if cfg.Region == "" {
		cfg.Region = hunyuanRegion
	}
	host := hunyuanHost
	base := "https://" + host
	if cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/")
		host = strings.TrimPrefix(strings.TrimPrefix(base, "https://"), "http://")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hunyuan{
		cfg:  cfg,
		host: host,
		base: base,
		http: newHTTPClient(cfg.Timeout),
		log:  log,
		now:  time.Now,
	}, nil
}

func (h *Hunyuan) Name() string { return "hunyuan" }

type hunyuanEnvelope struct {
	Response struct {
		JobID  string `json:"JobId"`
		Status string `json:"Status"`
		// ErrorMessage accompanies a FAIL status.
		ErrorMessage  string `json:"ErrorMessage"`
		ResultFile3Ds []struct {
			Type string `json:"Type"`
			URL  string `json:"Url"`
		} `json:"ResultFile3Ds"`
		Error *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
	} `json:"Response"`
}

func (h *Hunyuan) Submit(ctx context.Context, req jobs.SubmitRequest) (string, error) {
	if req.Prompt == "" && req.ImageRef == "" {
		return "", fmt.Errorf("%w: hunyuan needs a prompt or an image", jobs.ErrService)
	}
	if req.Prompt != "" && req.ImageRef != "" {
		return "", fmt.Errorf("%w: hunyuan accepts a prompt or an image, not both", jobs.ErrService)
	}
	if utf8.RuneCountInString(req.Prompt) > 200 {
		return "", fmt.Errorf("%w: hunyuan prompt exceeds 200 characters", jobs.ErrService)
	}

	// The API currently caps Num at 1.
	payload := map[string]any{"Num": 1}
	if req.Prompt != "" {
		payload["Prompt"] = req.Prompt
	} else {
		payload["ImageUrl"] = req.ImageRef
	}

	env, err := h.call(ctx, actionSubmit, payload)
	if err != nil {
		return "", err
	}
	if env.Response.JobID == "" {
		return "", fmt.Errorf("%w: submission response missing JobId", jobs.ErrService)
	}
	return env.Response.JobID, nil
}

func (h *Hunyuan) Poll(ctx context.Context, remoteID string) (jobs.PollUpdate, error) {
	jobID := strings.TrimPrefix(remoteID, "job_")
	env, err := h.call(ctx, actionQuery, map[string]any{"JobId": jobID})
	if err != nil {
		return jobs.PollUpdate{}, err
	}
	switch env.Response.Status {
	case "WAIT":
		return jobs.PollUpdate{Status: jobs.StatusSubmitted}, nil
	case "RUN":
		return jobs.PollUpdate{Status: jobs.StatusProcessing, Progress: 50}, nil
	case "FAIL":
		msg := env.Response.ErrorMessage
		if msg == "" {
			msg = "generation failed"
		}
		return jobs.PollUpdate{Status: jobs.StatusFailed, Message: msg}, nil
	case "DONE":
		for _, f := range env.Response.ResultFile3Ds {
			if f.URL != "" {
				return jobs.PollUpdate{Status: jobs.StatusCompleted, ResultRef: f.URL}, nil
			}
		}
		return jobs.PollUpdate{}, fmt.Errorf("%w: job %s finished without result files", jobs.ErrService, jobID)
	default:
		return jobs.PollUpdate{}, fmt.Errorf("%w: unexpected hunyuan status %q", jobs.ErrService, env.Response.Status)
	}
}

func (h *Hunyuan) call(ctx context.Context, action string, payload any) (*hunyuanEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	ts := h.now().Unix()
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Host", h.host)
	req.Header.Set("X-TC-Action", action)
	req.Header.Set("X-TC-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-TC-Version", hunyuanVersion)
	req.Header.Set("X-TC-Region", h.cfg.Region)
	req.Header.Set("Authorization", h.authorization(action, body, ts))

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", jobs.ErrService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %v", jobs.ErrService, httpStatusError("hunyuan", resp))
	}

	var env hunyuanEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", jobs.ErrService, err)
	}
	if env.Response.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", jobs.ErrService, env.Response.Error.Code, env.Response.Error.Message)
	}
	return &env, nil
}

// authorization builds the TC3-HMAC-SHA256 Authorization header for one
// request. The canonical request pins content-type, host and x-tc-action as
// the signed headers, matching what call sends.
func (h *Hunyuan) authorization(action string, body []byte, ts int64) string {
	date := time.Unix(ts, 0).UTC().Format("2006-01-02")

	canonicalHeaders := "content-type:application/json; charset=utf-8\n" +
		"host:" + h.host + "\n" +
		"x-tc-action:" + strings.ToLower(action) + "\n"
	signedHeaders := "content-type;host;x-tc-action"
	canonicalRequest := strings.Join([]string{
		http.MethodPost,
		"/",
		"",
		canonicalHeaders,
		signedHeaders,
		hexSHA256(body),
	}, "\n")

	scope := date + "/" + hunyuanService + "/tc3_request"
	stringToSign := strings.Join([]string{
		"TC3-HMAC-SHA256",
		strconv.FormatInt(ts, 10),
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	secretDate := hmacSHA256([]byte("TC3"+h.cfg.SecretKey), date)
	secretService := hmacSHA256(secretDate, hunyuanService)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return "TC3-HMAC-SHA256 Credential=" + h.cfg.SecretID + "/" + scope +
		", SignedHeaders=" + signedHeaders +
		", Signature=" + signature
}

func hexSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
