// Package shots defines the e-commerce shot catalogue and renders its prompt templates.
package shots

import (
	"strings"
)

type Shot struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Label    string `json:"label"`
	Template string `json:"template"`
}

var catalogue = []Shot{
	{ID: "C1", Key: "hero", Label: "Hero", Template: `Product hero shot for e-commerce:
Product: {product_name} ({product_type}), material: {material}

Layout: Square 1:1, clean gradient background (white to light gray)
Product: Centered, occupying 60-70% of frame, slight 15° angle

Key selling points:
{selling_points}

Style: Professional product photography, soft studio lighting, subtle shadow
Text: Add headline "{title}" in modern sans-serif font at top

Output: Clean, premium e-commerce main image`},
	{ID: "C2", Key: "lifestyle", Label: "Lifestyle", Template: `Lifestyle scene product photography:
Product: {product_name} ({product_type}), material: {material}

Scene: {scene} setting with natural lighting
Product: Integrated naturally into scene, in-use position

Atmosphere: Warm, inviting, realistic lifestyle
Composition: Rule of thirds, shallow depth of field

Key features:
{selling_points}

Style: Natural lifestyle photography, authentic

Output: Contextual scene showing product in real-life use`},
	{ID: "C3", Key: "detail", Label: "Detail", Template: `Product detail close-up:
Product: {product_name} ({product_type}), material: {material}

Focus: {detail_focus}
Angle: Extreme close-up, macro perspective

Lighting: Directional light to emphasize texture
Composition: Fill frame with detail, shallow DoF

Show:
{selling_points}

Style: High-resolution macro photography

Output: Detail shot showcasing craftsmanship`},
	{ID: "C4", Key: "comparison", Label: "Comparison", Template: `Product comparison:
Product: {product_name} ({product_type}), material: {material}

Layout: Split screen or before/after style
Comparison:
{compare_points}

Left: Standard alternative
Right: This product showing improvements

Annotations: Simple visual indicators

Style: Clear, educational comparison

Output: Comparison highlighting advantages`},
	{ID: "C5", Key: "spec", Label: "Spec Sheet", Template: `Product specifications infographic:
Product: {product_name} ({product_type}), material: {material}

Layout: Clean infographic, product centered
Background: White

Specifications:
- Dimensions: {dimensions}
- Material: {material}
- Features:
{selling_points}

Style: Technical infographic, clear typography

Output: Professional spec sheet`},
}

// ProductTypes lists the product categories offered to callers.
var ProductTypes = []string{
	"Home goods", "Kitchenware", "Apparel & accessories", "Electronics",
	"Beauty & personal care", "Toys & games", "Sports & outdoors", "Other",
}

func All() []Shot {
	return append([]Shot(nil), catalogue...)
}

// Lookup resolves a shot by id ("C1") or key ("hero"), ignoring case.
func Lookup(idOrKey string) (Shot, bool) {
	idOrKey = strings.TrimSpace(idOrKey)
	for _, s := range catalogue {
		if strings.EqualFold(s.ID, idOrKey) || strings.EqualFold(s.Key, idOrKey) {
			return s, true
		}
	}
	return Shot{}, false
}

// FileLabel is the label used in archive entry names.
func (s Shot) FileLabel() string {
	return strings.ReplaceAll(s.Label, " ", "")
}
