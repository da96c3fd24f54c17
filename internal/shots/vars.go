package shots

import (
	"strings"
)

const (
	DefaultMaterial      = "high-quality material"
	DefaultScene         = "home setting"
	DefaultSellingPoints = "- Premium quality"
	DefaultDetailFocus   = "texture and craftsmanship"
	DefaultDimensions    = "standard size"
	DefaultProductType   = "Other"

	titleMaxRunes = 30
)

// Vars are the values substituted into a template.
type Vars struct {
	ProductName   string
	ProductType   string
	Material      string
	SellingPoints string
	Scene         string
	DetailFocus   string
	Dimensions    string
	ComparePoints string
	Title         string
}

// NewVars fills template variables, applying defaults for anything blank.
func NewVars(name, productType, material string, features []string, scene string) Vars {
	v := Vars{
		ProductName:   name,
		ProductType:   orDefault(productType, DefaultProductType),
		Material:      orDefault(material, DefaultMaterial),
		SellingPoints: BulletList(features),
		Scene:         orDefault(scene, DefaultScene),
		DetailFocus:   DefaultDetailFocus,
		Dimensions:    DefaultDimensions,
		Title:         Title(name),
	}
	v.ComparePoints = v.SellingPoints
	return v
}

// BulletList renders features as "- feature" lines.
func BulletList(features []string) string {
	var lines []string
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			lines = append(lines, "- "+f)
		}
	}
	if len(lines) == 0 {
		return DefaultSellingPoints
	}
	return strings.Join(lines, "\n")
}

// Title upper-cases name and cuts it to the headline length.
func Title(name string) string {
	r := []rune(strings.ToUpper(strings.TrimSpace(name)))
	if len(r) > titleMaxRunes {
		r = r[:titleMaxRunes]
	}
	return string(r)
}

// Render substitutes {placeholders} in tmpl. Unknown placeholders are left as written.
func Render(tmpl string, v Vars) string {
	return strings.NewReplacer(
		"{product_name}", v.ProductName,
		"{product_type}", v.ProductType,
		"{material}", v.Material,
		"{selling_points}", v.SellingPoints,
		"{scene}", v.Scene,
		"{detail_focus}", v.DetailFocus,
		"{dimensions}", v.Dimensions,
		"{compare_points}", v.ComparePoints,
		"{title}", v.Title,
	).Replace(tmpl)
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
