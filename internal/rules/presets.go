package rules

import "strings"

// Preset is a named exclusion set.
type Preset struct {
	Name  string   `json:"name" yaml:"name"`
	Terms []string `json:"terms" yaml:"terms"`
}

const (
	PresetStandard = "standard"
	PresetStrict   = "strict"
	PresetRelaxed  = "relaxed"
	PresetCustom   = "custom"
)

var defaultPresets = []Preset{
	{Name: PresetStandard, Terms: []string{
		"competitor logos", "brand names", "watermarks",
		"qr codes", "website urls", "human faces", "children",
	}},
	{Name: PresetStrict, Terms: []string{
		"competitor logos", "brand names", "watermarks",
		"qr codes", "website urls", "human faces", "children",
		"hands", "models", "text overlays", "price tags",
	}},
	{Name: PresetRelaxed, Terms: []string{
		"competitor logos", "brand names", "watermarks", "qr codes",
	}},
	{Name: PresetCustom, Terms: []string{}},
}

var commonExclusions = []string{
	"competitor logos", "brand names", "watermarks", "qr codes",
	"website urls", "human faces", "children", "hands", "models",
	"text overlays", "price tags", "promotional text", "unrelated props",
	"cluttered background", "messy environment", "packaging", "labels",
}

// CommonExclusions returns the exclusion terms offered for ad hoc selection.
func CommonExclusions() []string {
	return append([]string(nil), commonExclusions...)
}

// Presets returns every preset in declaration order.
func (e *Engine) Presets() []Preset {
	out := make([]Preset, len(e.presets))
	for i, p := range e.presets {
		out[i] = Preset{Name: p.Name, Terms: append([]string(nil), p.Terms...)}
	}
	return out
}

// Preset looks a preset up by name, ignoring case.
func (e *Engine) Preset(name string) (Preset, bool) {
	name = strings.TrimSpace(name)
	for _, p := range e.presets {
		if strings.EqualFold(p.Name, name) {
			return Preset{Name: p.Name, Terms: append([]string(nil), p.Terms...)}, true
		}
	}
	return Preset{}, false
}

// KnownExclusion reports whether term is one of the curated exclusion terms,
// from a preset or the common list. Curated terms such as "qr codes" skip the
// ban check.
func (e *Engine) KnownExclusion(term string) bool {
	term = strings.TrimSpace(term)
	for _, t := range commonExclusions {
		if strings.EqualFold(t, term) {
			return true
		}
	}
	for _, p := range e.presets {
		for _, t := range p.Terms {
			if strings.EqualFold(t, term) {
				return true
			}
		}
	}
	return false
}
