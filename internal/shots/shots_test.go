package shots

import (
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"C1", "hero", true},
		{"c3", "detail", true},
		{"Lifestyle", "lifestyle", true},
		{" spec ", "spec", true},
		{"C9", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, ok := Lookup(tt.in)
			if ok != tt.ok || s.Key != tt.want {
				t.Fatalf("Lookup(%q) = %q, %v", tt.in, s.Key, ok)
			}
		})
	}
	if len(All()) != 5 {
		t.Fatalf("catalogue has %d shots", len(All()))
	}
}

func TestNewVarsDefaults(t *testing.T) {
	v := NewVars("Golden Plated Necklace", "", "", nil, "")
	if v.Material != DefaultMaterial || v.Scene != DefaultScene || v.SellingPoints != DefaultSellingPoints {
		t.Fatalf("defaults not applied: %+v", v)
	}
	if v.ComparePoints != v.SellingPoints {
		t.Fatalf("compare points = %q", v.ComparePoints)
	}
	if v.Title != "GOLDEN PLATED NECKLACE" {
		t.Fatalf("title = %q", v.Title)
	}
	if v.ProductType != DefaultProductType {
		t.Fatalf("product type = %q", v.ProductType)
	}
}

func TestTitleTruncates(t *testing.T) {
	got := Title("stainless steel vacuum insulated travel mug with lid")
	if len([]rune(got)) != 30 || got != "STAINLESS STEEL VACUUM INSULAT" {
		t.Fatalf("Title = %q", got)
	}
	if got := Title("保温杯"); got != "保温杯" {
		t.Fatalf("Title = %q", got)
	}
}

func TestBulletList(t *testing.T) {
	if got := BulletList([]string{"Leak proof", " ", "Keeps hot 12h"}); got != "- Leak proof\n- Keeps hot 12h" {
		t.Fatalf("BulletList = %q", got)
	}
}

func TestRender(t *testing.T) {
	v := NewVars("Steel Mug", "Kitchenware", "304 steel", []string{"Leak proof"}, "office")
	hero, _ := Lookup("hero")
	out := Render(hero.Template, v)

	for _, want := range []string{"Steel Mug (Kitchenware)", "material: 304 steel", "- Leak proof", `"STEEL MUG"`} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered hero missing %q", want)
		}
	}
	if strings.Contains(out, "{") {
		t.Errorf("unrendered placeholder in %q", out)
	}

	if got := Render("{product_name} in {unknown}", v); got != "Steel Mug in {unknown}" {
		t.Fatalf("Render = %q", got)
	}
}

func TestEveryTemplateRenders(t *testing.T) {
	v := NewVars("Mug", "", "", nil, "")
	for _, s := range All() {
		if out := Render(s.Template, v); strings.Contains(out, "{") {
			t.Errorf("%s leaves placeholders: %q", s.ID, out)
		}
	}
}
