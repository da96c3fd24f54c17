package archive

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MinSide = 512
	MaxSide = 2048
)

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

type SizePreset struct {
	Name string `json:"name"`
	Size
}

var SizePresets = []SizePreset{
	{Name: "1:1", Size: Size{1024, 1024}},
	{Name: "4:3", Size: Size{1024, 768}},
	{Name: "3:4", Size: Size{768, 1024}},
	{Name: "16:9", Size: Size{1024, 576}},
	{Name: "9:16", Size: Size{576, 1024}},
}

// ParseSize accepts a preset name ("16:9") or WIDTHxHEIGHT. Empty keeps the model's size.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "original" {
		return Size{}, nil
	}
	for _, p := range SizePresets {
		if p.Name == s {
			return p.Size, nil
		}
	}
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return Size{}, fmt.Errorf("unknown size %q", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return Size{}, fmt.Errorf("parse width %q: %w", w, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return Size{}, fmt.Errorf("parse height %q: %w", h, err)
	}
	if width < MinSide || width > MaxSide || height < MinSide || height > MaxSide {
		return Size{}, fmt.Errorf("size %dx%d outside %d-%d", width, height, MinSide, MaxSide)
	}
	return Size{width, height}, nil
}

// AspectRatio returns the preset name matching s, or "1:1".
func (s Size) AspectRatio() string {
	for _, p := range SizePresets {
		if p.Size == s {
			return p.Name
		}
	}
	return "1:1"
}

// ToPNG decodes data and re-encodes it as PNG, scaled to size unless size is zero.
func ToPNG(data []byte, size Size) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	out := src
	if !size.IsZero() && src.Bounds().Size() != image.Pt(size.Width, size.Height) {
		dst := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		out = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
