package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/productshot/internal/config"
	"github.com/digkill/productshot/internal/imagegen"
)

const (
	defaultModel       = "nano-banana-pro"
	defaultResolution  = "1K"
	defaultMaxPolls    = 60
	defaultPollEvery   = 2 * time.Second
	maxDownloadedBytes = 32 << 20
)

// ReferenceUploader publishes the reference photo so the task can fetch it by URL.
type ReferenceUploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Client runs image-to-image tasks on the KIE async jobs API.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpClient   *http.Client
	uploader     ReferenceUploader
	log          *slog.Logger
	pollInterval time.Duration
	maxPolls     int
}

func NewClient(cfg config.Config, uploader ReferenceUploader, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	model := cfg.KIEModel
	if model == "" {
		model = defaultModel
	}

	return &Client{
		apiKey:       cfg.KIEAPIKey,
		baseURL:      strings.TrimRight(cfg.KIEBaseURL, "/"),
		model:        model,
		httpClient:   &http.Client{Timeout: timeout},
		uploader:     uploader,
		log:          log,
		pollInterval: defaultPollEvery,
		maxPolls:     defaultMaxPolls,
	}
}

// WithAPIKey returns a copy of the client that authenticates with key.
func (c *Client) WithAPIKey(key string) *Client {
	cp := *c
	cp.apiKey = key
	return &cp
}

// Factory adapts WithAPIKey to imagegen.Factory.
func (c *Client) Factory() imagegen.Factory {
	return func(_ context.Context, apiKey string) (imagegen.Generator, error) {
		return c.WithAPIKey(apiKey), nil
	}
}

func (c *Client) Generate(ctx context.Context, req imagegen.Request) (*imagegen.Image, error) {
	if len(req.Reference) == 0 {
		return nil, imagegen.ErrNoReference
	}
	if c.uploader == nil {
		return nil, fmt.Errorf("kie backend needs object storage for reference images")
	}
	contentType := req.ReferenceMIME
	if contentType == "" {
		contentType = "image/png"
	}
	refURL, err := c.uploader.Upload(ctx, req.Reference, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload reference: %w", err)
	}

	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "1:1"
	}
	payload := map[string]any{
		"model": c.model,
		"input": map[string]any{
			"prompt":        imagegen.WrapPrompt(req),
			"aspect_ratio":  aspect,
			"resolution":    defaultResolution,
			"output_format": "png",
			"image_input":   []string{refURL},
		},
	}

	taskID, err := c.createTask(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	resultURL, err := c.pollTaskStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, resultURL)
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call kie: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("KIE request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(raw))
		return nil, &imagegen.StatusError{Code: resp.StatusCode, Body: truncateBody(raw)}
	}
	return raw, nil
}

func (c *Client) createTask(ctx context.Context, payload map[string]any) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/createTask", nil)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Info("creating KIE task", "url", fullURL, "model", c.model)
	raw, err := c.do(req)
	if err != nil {
		return "", err
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w (body=%s)", err, truncateBody(raw))
	}
	if createResp.Code != http.StatusOK {
		return "", &imagegen.StatusError{Code: createResp.Code, Body: createResp.Msg}
	}
	if createResp.Data.TaskID == "" {
		return "", fmt.Errorf("empty taskId in response")
	}

	c.log.Info("KIE task created", "task_id", createResp.Data.TaskID)
	return createResp.Data.TaskID, nil
}

func (c *Client) pollTaskStatus(ctx context.Context, taskID string) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/recordInfo", url.Values{"taskId": {taskID}})
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return "", fmt.Errorf("new request: %w", err)
		}
		raw, err := c.do(req)
		if err != nil {
			return "", fmt.Errorf("get task status: %w", err)
		}

		var statusResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				State      string `json:"state"`
				ResultJSON string `json:"resultJson"`
				FailCode   string `json:"failCode"`
				FailMsg    string `json:"failMsg"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &statusResp); err != nil {
			return "", fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(raw))
		}
		if statusResp.Code != http.StatusOK {
			return "", &imagegen.StatusError{Code: statusResp.Code, Body: statusResp.Msg}
		}

		switch statusResp.Data.State {
		case "success":
			var result struct {
				ResultURLs []string `json:"resultUrls"`
			}
			if err := json.Unmarshal([]byte(statusResp.Data.ResultJSON), &result); err != nil {
				return "", fmt.Errorf("parse resultJson: %w", err)
			}
			if len(result.ResultURLs) == 0 {
				return "", imagegen.ErrNoImage
			}
			c.log.Info("KIE task completed", "task_id", taskID, "attempt", attempt+1)
			return result.ResultURLs[0], nil

		case "fail":
			failMsg := statusResp.Data.FailMsg
			if failMsg == "" {
				failMsg = "unknown error"
			}
			c.log.Error("KIE task failed", "task_id", taskID, "fail_code", statusResp.Data.FailCode, "fail_msg", failMsg)
			return "", fmt.Errorf("task failed: %s (code: %s)", failMsg, statusResp.Data.FailCode)

		case "waiting", "generating", "processing", "queued", "queueing":
			if attempt%10 == 0 {
				c.log.Info("KIE task waiting", "task_id", taskID, "attempt", attempt+1, "max_attempts", c.maxPolls)
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.pollInterval):
			}

		default:
			return "", fmt.Errorf("unknown task state: %s", statusResp.Data.State)
		}
	}

	return "", fmt.Errorf("task %s: poll timeout after %d attempts", taskID, c.maxPolls)
}

func (c *Client) download(ctx context.Context, resultURL string) (*imagegen.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, &imagegen.StatusError{Code: resp.StatusCode, Body: "download " + resultURL}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadedBytes))
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return &imagegen.Image{Data: data, MIME: mime}, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

var _ imagegen.Generator = (*Client)(nil)
