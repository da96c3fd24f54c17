// Package imagegen talks to external image models. It turns a reference photo,
// a styling prompt and a negative prompt into a generated product image.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const DefaultStyleStrength = 0.3

var (
	ErrNoImage      = errors.New("model response contains no image")
	ErrNoReference  = errors.New("reference image is required")
	ErrParseFailed  = errors.New("failed to parse analysis response")
	ErrNotSupported = errors.New("operation not supported by backend")
)

type Request struct {
	Reference      []byte
	ReferenceMIME  string
	Prompt         string
	NegativePrompt string
	// StyleStrength is 0 for a near copy of the reference and 1 for a free restyle.
	StyleStrength float64
	AspectRatio   string
}

type Image struct {
	Data []byte
	MIME string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Image, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mime string) (Analysis, error)
}

// Factory builds a generator bound to a caller-supplied API key.
type Factory func(ctx context.Context, apiKey string) (Generator, error)

// StatusError is a non-2xx answer from an HTTP backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

// WrapPrompt builds the full instruction sent with the reference image.
func WrapPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("CRITICAL INSTRUCTIONS:\n")
	b.WriteString("1. The reference image shows the ACTUAL PRODUCT that must be preserved\n")
	b.WriteString("2. Keep the product's EXACT appearance: shape, design, details, features\n")
	b.WriteString("3. Only modify: background, lighting, composition, and presentation style\n")
	fmt.Fprintf(&b, "4. Style strength: %.2f (0=identical to reference, 1=completely new)\n\n", ClampStrength(req.StyleStrength))
	b.WriteString("REFERENCE IMAGE ANALYSIS:\n")
	b.WriteString("- This is the exact product that must appear in the output\n")
	b.WriteString("- Maintain its authentic look and all visible features\n")
	b.WriteString("- Do not change the product design or add fictional elements\n\n")
	b.WriteString("STYLING REQUIREMENTS:\n")
	b.WriteString(strings.TrimSpace(req.Prompt))
	b.WriteString("\n\nNEGATIVE CONSTRAINTS (MUST FOLLOW):\n")
	b.WriteString(req.NegativePrompt)
	b.WriteString("\n\nOUTPUT REQUIREMENT:\n")
	b.WriteString("Generate an image where the SAME product from the reference appears with the new styling/background/composition described above.\n")
	return b.String()
}

// ClampStrength keeps a style strength inside [0, 1].
func ClampStrength(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
