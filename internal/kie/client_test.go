package kie

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/digkill/productshot/internal/config"
	"github.com/digkill/productshot/internal/imagegen"
)

type fakeUploader struct {
	uploads atomic.Int32
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, _ string) (string, error) {
	u.uploads.Add(1)
	return "https://cdn.test/ref.png", nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeUploader) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	up := &fakeUploader{}
	c := NewClient(config.Config{KIEBaseURL: srv.URL, KIEAPIKey: "secret", RequestTimeout: 5 * time.Second}, up, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.pollInterval = time.Millisecond
	return c, up
}

func TestGenerateSuccess(t *testing.T) {
	var polls atomic.Int32
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs/createTask", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		input := body["input"].(map[string]any)
		if refs := input["image_input"].([]any); len(refs) != 1 || refs[0] != "https://cdn.test/ref.png" {
			t.Errorf("image_input = %v", input["image_input"])
		}
		if !strings.Contains(input["prompt"].(string), "no watermark") {
			t.Errorf("prompt missing negative constraints")
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"t-1"}}`))
	})
	mux.HandleFunc("/api/v1/jobs/recordInfo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("taskId") != "t-1" {
			t.Errorf("taskId = %q", r.URL.Query().Get("taskId"))
		}
		if polls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"code":200,"data":{"state":"generating"}}`))
			return
		}
		result, _ := json.Marshal(map[string]any{"resultUrls": []string{srvURL + "/out.png"}})
		resp, _ := json.Marshal(map[string]any{"code": 200, "data": map[string]any{"state": "success", "resultJson": string(result)}})
		_, _ = w.Write(resp)
	})
	mux.HandleFunc("/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG fake"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	up := &fakeUploader{}
	c := NewClient(config.Config{KIEBaseURL: srv.URL, KIEAPIKey: "secret"}, up, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.pollInterval = time.Millisecond

	img, err := c.Generate(context.Background(), imagegen.Request{
		Reference:      []byte("ref"),
		Prompt:         "hero",
		NegativePrompt: "no watermark",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(img.Data) != "\x89PNG fake" || img.MIME != "image/png" {
		t.Fatalf("image = %+v", img)
	}
	if up.uploads.Load() != 1 || polls.Load() != 3 {
		t.Fatalf("uploads = %d polls = %d", up.uploads.Load(), polls.Load())
	}
}

func TestGenerateStatusErrorIsTransient(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))

	_, err := c.Generate(context.Background(), imagegen.Request{Reference: []byte("ref")})
	var status *imagegen.StatusError
	if !errors.As(err, &status) || status.Code != http.StatusServiceUnavailable {
		t.Fatalf("err = %v", err)
	}
	if !imagegen.IsTransient(err) {
		t.Fatal("503 should be transient")
	}
}

func TestGenerateTaskFailed(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "createTask") {
			_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"t-2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"state":"fail","failCode":"422","failMsg":"content policy"}}`))
	}))

	_, err := c.Generate(context.Background(), imagegen.Request{Reference: []byte("ref")})
	if err == nil || !strings.Contains(err.Error(), "content policy") {
		t.Fatalf("err = %v", err)
	}
	if imagegen.IsTransient(err) {
		t.Fatal("task failure should not be transient")
	}
}

func TestGenerateRequiresReference(t *testing.T) {
	c, up := newTestClient(t, http.NotFoundHandler())
	if _, err := c.Generate(context.Background(), imagegen.Request{}); !errors.Is(err, imagegen.ErrNoReference) {
		t.Fatalf("err = %v", err)
	}
	if up.uploads.Load() != 0 {
		t.Fatal("uploaded without reference")
	}
}

func TestWithAPIKey(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	own := c.WithAPIKey("mine")
	if own.apiKey != "mine" || c.apiKey != "secret" {
		t.Fatalf("keys = %q %q", own.apiKey, c.apiKey)
	}
}
