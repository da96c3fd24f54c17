package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"status 429", &StatusError{Code: 429}, true},
		{"status 503", fmt.Errorf("wrap: %w", &StatusError{Code: 503}), true},
		{"status 400", &StatusError{Code: 400}, false},
		{"genai 500", genai.APIError{Code: 500, Message: "boom"}, true},
		{"genai 400", genai.APIError{Code: 400, Message: "bad request"}, false},
		{"marker", errors.New("Rate limit exceeded, retry later"), true},
		{"permanent", ErrNoImage, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type scriptedGenerator struct {
	errs  []error
	calls atomic.Int32
}

func (g *scriptedGenerator) Generate(context.Context, Request) (*Image, error) {
	i := int(g.calls.Add(1)) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	return &Image{Data: []byte("png"), MIME: "image/png"}, nil
}

func TestRetryTransientThenSuccess(t *testing.T) {
	g := &scriptedGenerator{errs: []error{&StatusError{Code: 503}, &StatusError{Code: 429}}}
	r := WithRetry(g, 3, time.Millisecond, discardLogger())

	img, err := r.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img == nil || g.calls.Load() != 3 {
		t.Fatalf("calls = %d, img = %v", g.calls.Load(), img)
	}
}

func TestRetryExhausts(t *testing.T) {
	transient := &StatusError{Code: 500}
	g := &scriptedGenerator{errs: []error{transient, transient, transient, transient}}
	r := WithRetry(g, 3, time.Millisecond, discardLogger())

	_, err := r.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if g.calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", g.calls.Load())
	}
	var status *StatusError
	if !errors.As(err, &status) || !strings.Contains(err.Error(), "3 attempts") {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryPermanentNotRetried(t *testing.T) {
	g := &scriptedGenerator{errs: []error{ErrNoImage}}
	r := WithRetry(g, 3, time.Millisecond, discardLogger())

	if _, err := r.Generate(context.Background(), Request{}); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v", err)
	}
	if g.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", g.calls.Load())
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := &scriptedGenerator{errs: []error{&StatusError{Code: 503}, &StatusError{Code: 503}, &StatusError{Code: 503}}}
	r := WithRetry(g, 3, 50*time.Millisecond, discardLogger())

	cancel()
	if _, err := r.Generate(ctx, Request{}); err == nil {
		t.Fatal("expected error")
	}
	if g.calls.Load() > 1 {
		t.Fatalf("calls = %d after cancel", g.calls.Load())
	}
}

func TestWrapPrompt(t *testing.T) {
	out := WrapPrompt(Request{Prompt: "  hero shot  ", NegativePrompt: "no kid, no URL", StyleStrength: 1.7})
	for _, want := range []string{"CRITICAL INSTRUCTIONS", "Style strength: 1.00", "STYLING REQUIREMENTS:\nhero shot", "NEGATIVE CONSTRAINTS (MUST FOLLOW):\nno kid, no URL"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		features int
		scene    string
		wantErr  bool
	}{
		{"plain", `{"product_description":"Mug","key_features":["a","b","c"],"suggested_scene":"office"}`, 3, "office", false},
		{"fenced", "```json\n{\"key_features\":[\"a\",\"b\",\"c\",\"d\",\"e\",\"f\"]}\n```", 5, "home setting", false},
		{"bare fence", "```\n{\"key_features\":[]}\n```", 0, "home setting", false},
		{"prose", "Sorry, I cannot help", 0, "", true},
		{"empty", "   ", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnalysis(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrParseFailed) {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAnalysis: %v", err)
			}
			if len(a.KeyFeatures) != tt.features || a.SuggestedScene != tt.scene {
				t.Fatalf("analysis = %+v", a)
			}
		})
	}
}

func TestFallbackAnalysis(t *testing.T) {
	a := FallbackAnalysis()
	if len(a.KeyFeatures) != 3 || a.SuggestedScene != "home setting" {
		t.Fatalf("fallback = %+v", a)
	}
}
