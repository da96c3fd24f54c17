package imagegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxFeatures = 5

// Analysis is what a vision model reads off the reference photo.
type Analysis struct {
	Description    string   `json:"product_description"`
	KeyFeatures    []string `json:"key_features"`
	MaterialGuess  string   `json:"material_guess"`
	ColorScheme    string   `json:"color_scheme"`
	SuggestedScene string   `json:"suggested_scene"`
}

// FallbackAnalysis is used when analysis fails.
func FallbackAnalysis() Analysis {
	return Analysis{
		Description:    "Product",
		KeyFeatures:    []string{"High Quality", "Practical Design", "Great Value"},
		SuggestedScene: "home setting",
	}
}

const analysisPrompt = `Please analyze this product image and provide the following information in JSON format:

{
    "product_description": "A clear, detailed description of the product (1-2 sentences)",
    "key_features": ["Feature 1", "Feature 2", "Feature 3"],
    "material_guess": "The material the product appears to be made of",
    "color_scheme": "Main colors of the product",
    "suggested_scene": "Best usage scenario for this product (e.g., kitchen, living room, office)"
}

key_features must hold 3-5 selling points based on what you see.

Focus on:
1. What makes this product special or appealing
2. Practical features visible in the image
3. Quality indicators you can see
4. Natural, authentic selling points (NOT generic phrases like "Premium Quality")

Return ONLY the JSON, no other text.`

// ParseAnalysis decodes a model answer, tolerating markdown code fences.
func ParseAnalysis(text string) (Analysis, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return Analysis{}, ErrParseFailed
	}

	var a Analysis
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if len(a.KeyFeatures) > maxFeatures {
		a.KeyFeatures = a.KeyFeatures[:maxFeatures]
	}
	if strings.TrimSpace(a.SuggestedScene) == "" {
		a.SuggestedScene = "home setting"
	}
	return a, nil
}
