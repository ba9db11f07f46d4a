package attr

import (
	"testing"
)

func TestEmptyAndNoneAreDistinct(t *testing.T) {
	if Empty == None {
		t.Fatal("Empty and None must be distinct")
	}

	base := Bold | FgRed

	// Merging Empty inherits: nothing changes.
	if got := base.Merge(Empty); got != base {
		t.Errorf("Merge(Empty) = %v, want %v", got, base)
	}

	// Merging None explicitly resets.
	if got := base.Merge(None); got != Empty {
		t.Errorf("Merge(None) = %v, want Empty", got)
	}
}

func TestAllIsOrOfNamedVariants(t *testing.T) {
	named := []Attr{
		Bold, Dim, Underline, Italic, Reverse, Strike, None,
		FgBlack, FgRed, FgGreen, FgYellow, FgBlue, FgMagenta, FgCyan, FgWhite,
		BgBlack, BgRed, BgGreen, BgYellow, BgBlue, BgMagenta, BgCyan, BgWhite,
	}
	var or Attr
	for _, a := range named {
		or |= a
	}
	if All != or {
		t.Errorf("All = %#x, want OR of named variants %#x", All, or)
	}
}

func TestMergeColorReplacement(t *testing.T) {
	a := FgRed | Bold
	b := a.Merge(FgBlue)
	if b.Fg() != FgBlue {
		t.Errorf("fg = %v, want FgBlue", b.Fg())
	}
	if !b.Has(Bold) {
		t.Error("bold lost in merge")
	}
}

func TestParseANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		text string
		// attribute expected at a given rune index
		idx  int
		want Attr
	}{
		{"plain", "hello", "hello", 0, Empty},
		{"red", "\x1b[31mred\x1b[0m plain", "red plain", 0, FgRed},
		{"reset", "\x1b[31mred\x1b[0m plain", "red plain", 4, Empty},
		{"bold green", "\x1b[1;32mok\x1b[0m", "ok", 1, Bold | FgGreen},
		{"bright", "\x1b[93mwarn", "warn", 0, Bold | FgYellow},
		{"bg", "\x1b[44mdeep", "deep", 0, BgBlue},
		{"strip cursor", "\x1b[2Jtop", "top", 0, Empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseANSI(tt.in)
			if s.Text() != tt.text {
				t.Fatalf("text = %q, want %q", s.Text(), tt.text)
			}
			if got := s.AttrAt(tt.idx); got != tt.want {
				t.Errorf("attr at %d = %#x, want %#x", tt.idx, got, tt.want)
			}
		})
	}
}

func TestParseANSIPlainHasNilAttrs(t *testing.T) {
	s := ParseANSI("just text")
	if s.attrs != nil {
		t.Error("plain parse should leave attrs nil")
	}
}

func TestExpandMarkup(t *testing.T) {
	s, err := ExpandMarkup("@{Cred}alert@{n} calm @{Bu}loud")
	if err != nil {
		t.Fatal(err)
	}
	if s.Text() != "alert calm loud" {
		t.Fatalf("text = %q", s.Text())
	}
	if got := s.AttrAt(0); got != FgRed {
		t.Errorf("alert attr = %#x, want FgRed", got)
	}
	if got := s.AttrAt(6); got != Empty {
		t.Errorf("calm attr = %#x, want Empty", got)
	}
	if got := s.AttrAt(11); got != Bold|Underline {
		t.Errorf("loud attr = %#x, want Bold|Underline", got)
	}
}

func TestExpandMarkupLiteralAt(t *testing.T) {
	s, err := ExpandMarkup("user@{@}host")
	if err != nil {
		t.Fatal(err)
	}
	if s.Text() != "user@host" {
		t.Fatalf("text = %q", s.Text())
	}
}

func TestExpandMarkupBgColor(t *testing.T) {
	s, err := ExpandMarkup("@{Cbgblue}sky")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.AttrAt(0); got != BgBlue {
		t.Errorf("attr = %#x, want BgBlue", got)
	}
}

func TestExpandMarkupUnknown(t *testing.T) {
	if _, err := ExpandMarkup("@{Z}oops"); err == nil {
		t.Error("expected error for unknown attribute")
	}
	if _, err := ExpandMarkup("@{Cmauve}oops"); err == nil {
		t.Error("expected error for unknown color")
	}
}

func TestRenderRoundTrip(t *testing.T) {
	in := "\x1b[1;31mhot\x1b[0m cold"
	s := ParseANSI(in)
	back := ParseANSI(s.Render())
	if back.Text() != s.Text() {
		t.Fatalf("round trip text = %q, want %q", back.Text(), s.Text())
	}
	for i := range s.Runes() {
		if back.AttrAt(i) != s.AttrAt(i) {
			t.Errorf("attr at %d = %#x, want %#x", i, back.AttrAt(i), s.AttrAt(i))
		}
	}
}

func TestLineAttrApplies(t *testing.T) {
	s := NewString("gagged")
	s.MergeLine(Underline)
	if got := s.AttrAt(2); got != Underline {
		t.Errorf("attr = %#x, want Underline", got)
	}
}
