package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultImageModel    = "gemini-2.0-flash-exp"
	DefaultAnalysisModel = "gemini-2.0-flash-exp"
)

type GeminiConfig struct {
	APIKey        string
	ImageModel    string
	AnalysisModel string
	Timeout       time.Duration
}

// GeminiClient generates images and analyses product photos with the Gemini API.
type GeminiClient struct {
	client        *genai.Client
	imageModel    string
	analysisModel string
	log           *slog.Logger
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, log *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = DefaultAnalysisModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiClient{
		client:        client,
		imageModel:    cfg.ImageModel,
		analysisModel: cfg.AnalysisModel,
		log:           log,
	}, nil
}

// GeminiFactory returns a Factory producing clients for user-supplied keys.
func GeminiFactory(base GeminiConfig, log *slog.Logger) Factory {
	return func(ctx context.Context, apiKey string) (Generator, error) {
		cfg := base
		cfg.APIKey = apiKey
		return NewGeminiClient(ctx, cfg, log)
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Image, error) {
	if len(req.Reference) == 0 {
		return nil, ErrNoReference
	}
	mime := req.ReferenceMIME
	if mime == "" {
		mime = "image/png"
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Reference, mime),
		genai.NewPartFromText(WrapPrompt(req)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	start := time.Now()
	res, err := c.client.Models.GenerateContent(ctx, c.imageModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	img := firstImage(res)
	if img == nil {
		c.log.Warn("gemini returned no image", "model", c.imageModel, "text", truncate(res.Text(), 200))
		return nil, ErrNoImage
	}
	c.log.Debug("gemini image generated", "model", c.imageModel, "bytes", len(img.Data), "ms", time.Since(start).Milliseconds())
	return img, nil
}

func (c *GeminiClient) Analyze(ctx context.Context, image []byte, mime string) (Analysis, error) {
	if len(image) == 0 {
		return Analysis{}, ErrNoReference
	}
	if mime == "" {
		mime = "image/png"
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mime),
		genai.NewPartFromText(analysisPrompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	temp := float32(0.2)
	config := &genai.GenerateContentConfig{
		Temperature:        &temp,
		ResponseModalities: []string{"TEXT"},
	}
	res, err := c.client.Models.GenerateContent(ctx, c.analysisModel, contents, config)
	if err != nil {
		return Analysis{}, fmt.Errorf("gemini analyze: %w", err)
	}
	return ParseAnalysis(res.Text())
}

func firstImage(res *genai.GenerateContentResponse) *Image {
	if res == nil {
		return nil
	}
	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &Image{Data: part.InlineData.Data, MIME: mime}
			}
		}
	}
	return nil
}

var (
	_ Generator = (*GeminiClient)(nil)
	_ Analyzer  = (*GeminiClient)(nil)
)
