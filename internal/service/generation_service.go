package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/digkill/productshot/internal/archive"
	"github.com/digkill/productshot/internal/imagegen"
	"github.com/digkill/productshot/internal/models"
	"github.com/digkill/productshot/internal/quota"
	"github.com/digkill/productshot/internal/rules"
	"github.com/digkill/productshot/internal/shots"
	"github.com/digkill/productshot/internal/storage"
)

const maxPerShot = 10

type AuditLogger interface {
	Log(ctx context.Context, entry models.GenerationLog) error
}

type ObjectStore interface {
	UploadAll(ctx context.Context, objects []storage.Object) ([]string, error)
}

type ShotSelection struct {
	ShotID string `json:"shot"`
	Count  int    `json:"count"`
	// Template overrides the catalogue prompt for this shot.
	Template string `json:"template,omitempty"`
}

type GenerationRequest struct {
	PreflightInput

	UserID        string
	APIKey        string
	Shots         []ShotSelection
	StyleStrength float64
	OutputSize    archive.Size
	Reference     []byte
	ReferenceMIME string
	Analyze       bool
}

func (r GenerationRequest) ownCredential() bool { return r.APIKey != "" }

// TotalImages is the number of images the request asks for.
func (r GenerationRequest) TotalImages() int {
	total := 0
	for _, s := range r.Shots {
		total += s.Count
	}
	return total
}

type ItemResult struct {
	ShotID   string            `json:"shot"`
	Label    string            `json:"label"`
	Index    int               `json:"index"`
	FileName string            `json:"file_name"`
	Status   models.ItemStatus `json:"status"`
	Error    string            `json:"error,omitempty"`
	URL      string            `json:"url,omitempty"`

	Image []byte `json:"-"`
}

type GenerationResult struct {
	RunID       string             `json:"run_id"`
	UserID      string             `json:"user_id"`
	Preflight   Preflight          `json:"preflight"`
	Analysis    *imagegen.Analysis `json:"analysis,omitempty"`
	Items       []ItemResult       `json:"items"`
	Generated   int                `json:"generated"`
	Failed      int                `json:"failed"`
	Canceled    bool               `json:"canceled"`
	QuotaBefore quota.Decision     `json:"quota_before"`
	QuotaAfter  quota.Decision     `json:"quota_after"`
	ArchiveName string             `json:"archive_name,omitempty"`
	ArchiveURL  string             `json:"archive_url,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`

	Archive []byte `json:"-"`
}

// Dependencies wires a GenerationService. Analyzer, Factory, Audit and Store are optional.
type Dependencies struct {
	Log          *slog.Logger
	Rules        *rules.Engine
	Tracker      *quota.Tracker
	Generator    imagegen.Generator
	Analyzer     imagegen.Analyzer
	Factory      imagegen.Factory
	Limiter      *rate.Limiter
	Audit        AuditLogger
	Store        ObjectStore
	MaxAttempts  int
	RetryInitial time.Duration
}

// GenerationService runs a batch: sanitize, ban check, quota check, then one
// model call per image, charging each success as it lands.
type GenerationService struct {
	log          *slog.Logger
	rules        *rules.Engine
	tracker      *quota.Tracker
	generator    imagegen.Generator
	analyzer     imagegen.Analyzer
	factory      imagegen.Factory
	limiter      *rate.Limiter
	audit        AuditLogger
	store        ObjectStore
	maxAttempts  int
	retryInitial time.Duration
	now          func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGenerationService(deps Dependencies) *GenerationService {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	engine := deps.Rules
	if engine == nil {
		engine = rules.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &GenerationService{
		log:          log,
		rules:        engine,
		tracker:      deps.Tracker,
		generator:    imagegen.WithRetry(deps.Generator, deps.MaxAttempts, deps.RetryInitial, log),
		analyzer:     deps.Analyzer,
		factory:      deps.Factory,
		limiter:      limiter,
		audit:        deps.Audit,
		store:        deps.Store,
		maxAttempts:  deps.MaxAttempts,
		retryInitial: deps.RetryInitial,
		now:          time.Now,
		inflight:     make(map[string]struct{}),
	}
}

func (s *GenerationService) Rules() *rules.Engine { return s.rules }

// Quota reports the quota decision for a user.
func (s *GenerationService) Quota(ctx context.Context, userID string, ownCredential bool) quota.Decision {
	d, _ := s.tracker.CheckQuota(ctx, userID, ownCredential)
	return d
}

func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.ownCredential() && s.factory == nil {
		return nil, validationf("own API keys are not accepted by this server")
	}

	release, err := s.begin(req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	input := req.PreflightInput
	input.Templates = make([]string, len(req.Shots))
	for i, sel := range req.Shots {
		input.Templates[i] = sel.Template
	}
	pre, err := s.Preflight(input)
	if err != nil {
		return nil, err
	}
	if pre.Blocked() {
		s.log.Warn("generation blocked by ban rules", "user", req.UserID, "classes", rules.Classes(pre.BanHits))
		return nil, &ContentBlockedError{Hits: pre.BanHits}
	}

	own := req.ownCredential()
	total := req.TotalImages()
	before, err := s.tracker.CheckQuota(ctx, req.UserID, own)
	if err != nil {
		s.log.Warn("quota check degraded", "user", req.UserID, "err", err)
	}
	if !before.CanProceed || (!before.Unlimited && total > before.Remaining) {
		return nil, &QuotaExceededError{Remaining: before.Remaining, Requested: total}
	}

	gen, analyzer, err := s.backendFor(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("prepare backend: %w", err)
	}

	res := &GenerationResult{
		RunID:       uuid.NewString(),
		UserID:      req.UserID,
		Preflight:   pre,
		QuotaBefore: before,
		CreatedAt:   s.now(),
	}

	vars := s.templateVars(ctx, req, pre, analyzer, res)
	s.run(ctx, req, pre, gen, vars, res)

	res.QuotaAfter, _ = s.tracker.CheckQuota(context.WithoutCancel(ctx), req.UserID, own)
	s.pack(context.WithoutCancel(ctx), res)

	s.log.Info("generation finished",
		"run", res.RunID, "user", req.UserID, "generated", res.Generated, "failed", res.Failed,
		"canceled", res.Canceled, "own_credential", own)
	return res, nil
}

// begin allows one run per user at a time, so the batch quota check holds
// until the run has charged.
func (s *GenerationService) begin(userID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[userID]; busy {
		return nil, ErrRunInProgress
	}
	s.inflight[userID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, userID)
		s.mu.Unlock()
	}, nil
}

func validate(req GenerationRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return validationf("user id is required")
	}
	if strings.TrimSpace(req.ProductName) == "" {
		return validationf("product name is required")
	}
	if len(req.Reference) == 0 {
		return validationf("reference image is required")
	}
	if len(req.Shots) == 0 {
		return validationf("select at least one shot type")
	}
	seen := make(map[string]struct{}, len(req.Shots))
	for _, sel := range req.Shots {
		shot, ok := shots.Lookup(sel.ShotID)
		if !ok {
			return validationf("unknown shot type %q", sel.ShotID)
		}
		if _, dup := seen[shot.ID]; dup {
			return validationf("shot type %s selected twice", shot.ID)
		}
		seen[shot.ID] = struct{}{}
		if sel.Count < 1 || sel.Count > maxPerShot {
			return validationf("count for %s must be between 1 and %d", shot.ID, maxPerShot)
		}
	}
	if req.StyleStrength < 0 || req.StyleStrength > 1 {
		return validationf("style strength must be within 0..1")
	}
	return nil
}

func (s *GenerationService) backendFor(ctx context.Context, req GenerationRequest) (imagegen.Generator, imagegen.Analyzer, error) {
	if !req.ownCredential() || s.factory == nil {
		return s.generator, s.analyzer, nil
	}
	g, err := s.factory(ctx, req.APIKey)
	if err != nil {
		return nil, nil, err
	}
	analyzer, _ := g.(imagegen.Analyzer)
	return imagegen.WithRetry(g, s.maxAttempts, s.retryInitial, s.log), analyzer, nil
}

// templateVars fills prompt variables, consulting the vision model when asked.
// Model-provided text goes through the same rules as user text.
func (s *GenerationService) templateVars(ctx context.Context, req GenerationRequest, pre Preflight, analyzer imagegen.Analyzer, res *GenerationResult) shots.Vars {
	material := pre.Material
	var (
		features []string
		scene    string
	)

	if req.Analyze && analyzer != nil {
		a, err := analyzer.Analyze(ctx, req.Reference, req.ReferenceMIME)
		if err != nil {
			s.log.Warn("product analysis failed, using defaults", "run", res.RunID, "err", err)
			a = imagegen.FallbackAnalysis()
		}
		a = s.cleanAnalysis(a)
		res.Analysis = &a
		features = a.KeyFeatures
		scene = a.SuggestedScene
		if material == "" {
			material = a.MaterialGuess
		}
	}
	return shots.NewVars(pre.ProductName, pre.ProductType, material, features, scene)
}

func (s *GenerationService) cleanAnalysis(a imagegen.Analysis) imagegen.Analysis {
	clean := func(text string) (string, bool) {
		out, _ := s.rules.Sanitize(text)
		if hits := s.rules.CheckBans(out); len(hits) > 0 {
			s.log.Warn("dropping analysis text with banned content", "classes", rules.Classes(hits))
			return "", false
		}
		return out, true
	}

	features := make([]string, 0, len(a.KeyFeatures))
	for _, f := range a.KeyFeatures {
		if out, ok := clean(f); ok && strings.TrimSpace(out) != "" {
			features = append(features, out)
		}
	}
	a.KeyFeatures = features
	a.Description, _ = clean(a.Description)
	a.MaterialGuess, _ = clean(a.MaterialGuess)
	a.ColorScheme, _ = clean(a.ColorScheme)
	if a.SuggestedScene, _ = clean(a.SuggestedScene); a.SuggestedScene == "" {
		a.SuggestedScene = shots.DefaultScene
	}
	return a
}

func (s *GenerationService) run(ctx context.Context, req GenerationRequest, pre Preflight, gen imagegen.Generator, vars shots.Vars, res *GenerationResult) {
	own := req.ownCredential()
	chargeCtx := context.WithoutCancel(ctx)

	for i, sel := range req.Shots {
		shot, _ := shots.Lookup(sel.ShotID)
		tmpl := shot.Template
		if i < len(pre.Templates) && strings.TrimSpace(pre.Templates[i]) != "" {
			tmpl = pre.Templates[i]
		}
		prompt := shots.Render(tmpl, vars)

		for k := 1; k <= sel.Count; k++ {
			item := ItemResult{
				ShotID:   shot.ID,
				Label:    shot.Label,
				Index:    k,
				FileName: archive.FileName(shot.ID, shot.FileLabel(), k),
			}

			if res.Canceled || ctx.Err() != nil {
				res.Canceled = true
				item.Status = models.ItemSkipped
				res.Items = append(res.Items, item)
				continue
			}
			if err := s.limiter.Wait(ctx); err != nil {
				res.Canceled = true
				item.Status = models.ItemSkipped
				res.Items = append(res.Items, item)
				continue
			}

			img, err := gen.Generate(ctx, imagegen.Request{
				Reference:      req.Reference,
				ReferenceMIME:  req.ReferenceMIME,
				Prompt:         prompt,
				NegativePrompt: pre.NegativePrompt,
				StyleStrength:  req.StyleStrength,
				AspectRatio:    req.OutputSize.AspectRatio(),
			})
			if err == nil {
				item.Image, err = archive.ToPNG(img.Data, req.OutputSize)
			}
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					res.Canceled = true
				}
				item.Status = models.ItemFailed
				item.Error = err.Error()
				res.Failed++
				s.log.Warn("image generation failed", "run", res.RunID, "shot", shot.ID, "index", k, "err", err)
			} else {
				item.Status = models.ItemSucceeded
				res.Generated++
				if !own {
					if _, err := s.tracker.AddUsage(chargeCtx, req.UserID, 1); err != nil {
						s.log.Warn("usage not recorded", "run", res.RunID, "user", req.UserID, "err", err)
					}
				}
			}

			res.Items = append(res.Items, item)
			s.record(chargeCtx, req, pre, prompt, res.RunID, item)
		}
	}
}

func (s *GenerationService) record(ctx context.Context, req GenerationRequest, pre Preflight, prompt, runID string, item ItemResult) {
	if s.audit == nil {
		return
	}
	entry := models.GenerationLog{
		RunID:          runID,
		UserID:         req.UserID,
		ShotID:         item.ShotID,
		Status:         item.Status,
		Prompt:         prompt,
		NegativePrompt: pre.NegativePrompt,
		AppliedRules:   ruleNames(pre.AppliedRules),
		OwnCredential:  req.ownCredential(),
		Error:          item.Error,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("failed to log generation", "run", runID, "err", err)
	}
}

// pack zips the successful images and publishes them when a store is configured.
func (s *GenerationService) pack(ctx context.Context, res *GenerationResult) {
	var files []archive.File
	var notes []string
	for _, item := range res.Items {
		switch item.Status {
		case models.ItemSucceeded:
			files = append(files, archive.File{Name: item.FileName, Data: item.Image})
		case models.ItemFailed:
			notes = append(notes, fmt.Sprintf("%s #%d failed: %s", item.ShotID, item.Index, item.Error))
		}
	}
	if len(files) == 0 {
		return
	}

	bundle, err := archive.Build(archive.Manifest{
		ProductName: res.Preflight.ProductName,
		CreatedAt:   res.CreatedAt,
		Notes:       notes,
	}, files)
	if err != nil {
		s.log.Error("build archive", "run", res.RunID, "err", err)
		return
	}
	res.Archive = bundle
	res.ArchiveName = archive.BundleName(res.Preflight.ProductName, res.CreatedAt)

	if s.store == nil {
		return
	}
	objects := make([]storage.Object, 0, len(files)+1)
	for _, f := range files {
		objects = append(objects, storage.Object{Name: f.Name, Data: f.Data, ContentType: "image/png"})
	}
	objects = append(objects, storage.Object{Name: res.ArchiveName, Data: bundle, ContentType: "application/zip"})

	urls, err := s.store.UploadAll(ctx, objects)
	if err != nil {
		s.log.Error("publish results", "run", res.RunID, "err", err)
		return
	}
	n := 0
	for i := range res.Items {
		if res.Items[i].Status == models.ItemSucceeded {
			res.Items[i].URL = urls[n]
			n++
		}
	}
	res.ArchiveURL = urls[len(urls)-1]
}
