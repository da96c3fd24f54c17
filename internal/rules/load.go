package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay extends the built-in tables. Entries are appended after the defaults;
// a preset with an existing name replaces its terms.
type Overlay struct {
	Replacements []Replacement `yaml:"replacements"`
	Bans         []BanPattern  `yaml:"bans"`
	Presets      []Preset      `yaml:"presets"`
}

// Load builds an Engine from the defaults plus the YAML overlay at path.
// An empty path yields Default().
func Load(path string) (*Engine, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	var ov Overlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}
	return FromOverlay(ov)
}

// FromOverlay merges ov into the defaults.
func FromOverlay(ov Overlay) (*Engine, error) {
	replacements := append(append([]Replacement(nil), defaultReplacements...), ov.Replacements...)

	bans := append([]BanPattern(nil), defaultBans...)
	for _, b := range ov.Bans {
		if b.Pattern == "" {
			return nil, errors.New("ban pattern is empty")
		}
		if b.Class == "" {
			b.Class = "custom"
		}
		bans = append(bans, b)
	}

	presets := append([]Preset(nil), defaultPresets...)
	for _, p := range ov.Presets {
		if p.Name == "" {
			return nil, errors.New("preset name is empty")
		}
		replaced := false
		for i := range presets {
			if presets[i].Name == p.Name {
				presets[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			presets = append(presets, p)
		}
	}

	return newEngine(replacements, bans, presets)
}
