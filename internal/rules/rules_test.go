package rules

import (
	"reflect"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	e := Default()

	tests := []struct {
		name    string
		in      string
		want    string
		applied []string
	}{
		{"empty", "", "", nil},
		{"blank", "   ", "   ", nil},
		{"gold and diamond", "14K Gold Diamond Ring", "14K Golden Crystal Ring", []string{"Gold", "Diamond"}},
		{"case insensitive", "gold SILVER bracelet", "Golden Silvery bracelet", []string{"Gold", "Silver"}},
		{"whole word only", "Goldfish marigold", "Goldfish marigold", nil},
		{"jade and sapphire share a target", "Jade Sapphire set", "Artificial Stone Artificial Stone set", []string{"Sapphire", "Jade"}},
		{"ruby", "ruby pendant", "Faux Ruby pendant", []string{"Ruby"}},
		{"clean text", "Elegant steel mug", "Elegant steel mug", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, applied := e.Sanitize(tt.in)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			var names []string
			for _, r := range applied {
				names = append(names, r.From)
			}
			if !reflect.DeepEqual(names, tt.applied) {
				t.Errorf("applied = %v, want %v", names, tt.applied)
			}
		})
	}
}

func TestSanitizeIsDeterministic(t *testing.T) {
	e := Default()
	first, firstApplied := e.Sanitize("14K Gold Diamond Ring")
	for i := 0; i < 5; i++ {
		got, applied := e.Sanitize("14K Gold Diamond Ring")
		if got != first || !reflect.DeepEqual(applied, firstApplied) {
			t.Fatalf("run %d: got %q %v, want %q %v", i, got, applied, first, firstApplied)
		}
	}
}

func TestSanitizeIsSequential(t *testing.T) {
	e, err := FromOverlay(Overlay{Replacements: []Replacement{{From: "Golden", To: "Gilded"}}})
	if err != nil {
		t.Fatalf("FromOverlay: %v", err)
	}
	got, applied := e.Sanitize("Gold cup")
	if got != "Gilded cup" {
		t.Fatalf("got %q, want %q", got, "Gilded cup")
	}
	if len(applied) != 2 {
		t.Fatalf("applied %d rules, want 2", len(applied))
	}
}

func TestCheckBans(t *testing.T) {
	e := Default()

	tests := []struct {
		name    string
		in      string
		classes []string
	}{
		{"url", "Check this out www.example.com", []string{ClassURL}},
		{"scheme", "see https://shop.example", []string{ClassURL}},
		{"brand", "Elegant Temu-exclusive design", []string{ClassBrand}},
		{"qr", "scan the QR to win", []string{ClassScanCode}},
		{"mixed", "barcode on temu.com", []string{ClassScanCode, ClassURL, ClassBrand}},
		{"clean", "Elegant steel mug", nil},
		{"empty", "", nil},
		{"qr inside a word", "aqrb squared", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := e.CheckBans(tt.in)
			got := Classes(hits)
			if len(got) != len(tt.classes) {
				t.Fatalf("CheckBans(%q) classes = %v, want %v", tt.in, got, tt.classes)
			}
			for _, want := range tt.classes {
				found := false
				for _, c := range got {
					if c == want {
						found = true
					}
				}
				if !found {
					t.Errorf("CheckBans(%q) missing class %q in %v", tt.in, want, got)
				}
			}
		})
	}
}

func TestCheckBansReportsEveryPattern(t *testing.T) {
	hits := Default().CheckBans("Check this out www.example.com")
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (www. and .com): %+v", len(hits), hits)
	}
	if hits[0].Match != "www." || hits[1].Match != ".com" {
		t.Errorf("unexpected matches %+v", hits)
	}
}

func TestCheckBansHasNoSideEffects(t *testing.T) {
	e := Default()
	in := "Visit www.example.com for the barcode"
	orig := strings.Clone(in)
	a := e.CheckBans(in)
	b := e.CheckBans(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ: %v vs %v", a, b)
	}
	if in != orig {
		t.Fatalf("input mutated")
	}
}

func TestPresets(t *testing.T) {
	e := Default()
	names := []string{}
	for _, p := range e.Presets() {
		names = append(names, p.Name)
	}
	if !reflect.DeepEqual(names, []string{PresetStandard, PresetStrict, PresetRelaxed, PresetCustom}) {
		t.Fatalf("preset order = %v", names)
	}

	p, ok := e.Preset("STRICT")
	if !ok || len(p.Terms) != 11 {
		t.Fatalf("Preset(STRICT) = %+v, %v", p, ok)
	}
	p.Terms[0] = "mutated"
	again, _ := e.Preset("strict")
	if again.Terms[0] != "competitor logos" {
		t.Fatalf("preset terms leaked: %v", again.Terms)
	}

	if custom, ok := e.Preset(PresetCustom); !ok || len(custom.Terms) != 0 {
		t.Fatalf("custom preset = %+v, %v", custom, ok)
	}
	if _, ok := e.Preset("nope"); ok {
		t.Fatal("unknown preset resolved")
	}
}

func TestKnownExclusion(t *testing.T) {
	e := Default()
	tests := []struct {
		term string
		want bool
	}{
		{"qr codes", true},
		{" QR Codes ", true},
		{"price tags", true},
		{"website urls", true},
		{"www.temu.com", false},
		{"dust", false},
	}
	for _, tt := range tests {
		if got := e.KnownExclusion(tt.term); got != tt.want {
			t.Errorf("KnownExclusion(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}
