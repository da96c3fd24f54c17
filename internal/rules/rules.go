// Package rules holds the deterministic text-safety layer applied to every
// product description before it reaches an image model: word substitution,
// hard-block detection and negative-prompt composition.
//
// An Engine is immutable once built and safe for concurrent use.
package rules

import (
	"fmt"
	"regexp"
)

// Replacement rewrites a whole word, case-insensitively, into a softer literal.
type Replacement struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`

	re *regexp.Regexp
}

// BanPattern is a hard-block pattern. Class groups patterns for user-facing reports.
type BanPattern struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Class   string `json:"class" yaml:"class"`

	re *regexp.Regexp
}

const (
	ClassURL      = "url"
	ClassScanCode = "scannable_code"
	ClassBrand    = "brand"
)

var defaultReplacements = []Replacement{
	{From: "Gold", To: "Golden"},
	{From: "Silver", To: "Silvery"},
	{From: "Diamond", To: "Crystal"},
	{From: "Platinum", To: "Metallic"},
	{From: "Ruby", To: "Faux Ruby"},
	{From: "Sapphire", To: "Artificial Stone"},
	{From: "Jade", To: "Artificial Stone"},
}

var defaultBans = []BanPattern{
	{Pattern: `https?://`, Class: ClassURL},
	{Pattern: `\bwww\.`, Class: ClassURL},
	{Pattern: `\.com\b`, Class: ClassURL},
	{Pattern: `\bqr\b`, Class: ClassScanCode},
	{Pattern: `\bqrcode\b`, Class: ClassScanCode},
	{Pattern: `\bbarcode\b`, Class: ClassScanCode},
	{Pattern: `\bTemu\b`, Class: ClassBrand},
}

// Base clauses are always part of a negative prompt.
var baseClauses = []string{
	"no children", "no baby", "no kid", "no infant",
	"no human face", "no portrait", "no full person", "no nude", "no sensitive body parts",
	"no political symbols", "no flags", "no propaganda",
	"no religious symbols", "no blasphemy",
	"no hate", "no discrimination", "no violence", "no torture", "no kidnapping",
	"no brand logo", "no trademark", "no watermark",
	"no QR code", "no barcode", "no URL", "no website text", "no social media handle",
}

var strictClauses = []string{
	"no text", "no labels", "no typography",
	"no hands", "no models",
	"no extra accessories", "no props unrelated to the product",
	"clean background", "studio product photo feel",
}

// Engine applies a fixed set of replacement rules, ban patterns and exclusion presets.
type Engine struct {
	replacements []Replacement
	bans         []BanPattern
	presets      []Preset
}

// Default returns the built-in rule set.
func Default() *Engine {
	e, err := newEngine(defaultReplacements, defaultBans, defaultPresets)
	if err != nil {
		// built-in tables are static
		panic(err)
	}
	return e
}

func newEngine(replacements []Replacement, bans []BanPattern, presets []Preset) (*Engine, error) {
	e := &Engine{
		replacements: make([]Replacement, 0, len(replacements)),
		bans:         make([]BanPattern, 0, len(bans)),
		presets:      make([]Preset, 0, len(presets)),
	}
	for _, r := range replacements {
		if r.From == "" {
			return nil, fmt.Errorf("replacement with empty word")
		}
		r.re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(r.From) + `\b`)
		e.replacements = append(e.replacements, r)
	}
	for _, b := range bans {
		re, err := regexp.Compile(`(?i)` + b.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ban pattern %q: %w", b.Pattern, err)
		}
		b.re = re
		e.bans = append(e.bans, b)
	}
	for _, p := range presets {
		p.Terms = append([]string(nil), p.Terms...)
		e.presets = append(e.presets, p)
	}
	return e, nil
}

// Replacements returns a copy of the ordered replacement table.
func (e *Engine) Replacements() []Replacement {
	return append([]Replacement(nil), e.replacements...)
}

// BanPatterns returns a copy of the ban table.
func (e *Engine) BanPatterns() []BanPattern {
	return append([]BanPattern(nil), e.bans...)
}
