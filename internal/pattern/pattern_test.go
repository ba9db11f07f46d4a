package pattern

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCaseFoldInference(t *testing.T) {
	tests := []struct {
		text      string
		sensitive bool
	}{
		{"hello", false},
		{"Hello", true},
		{"hello[A-Z]", false},
		{"Hello[A-Z]", true},
		{`\Qx`, false},     // escaped uppercase does not count
		{`foo\Bar`, false}, // likewise mid-pattern
		{"[ABC]def", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := inferCaseSensitive(tt.text); got != tt.sensitive {
				t.Errorf("inferCaseSensitive(%q) = %v, want %v", tt.text, got, tt.sensitive)
			}
		})
	}
}

func TestRegexpCaseFolding(t *testing.T) {
	p, err := Compile(Regexp, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches("HELLO there") {
		t.Error("lowercase pattern should match case-insensitively")
	}

	p, err = Compile(Regexp, "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if p.Matches("HELLO there") {
		t.Error("uppercase pattern should be case-sensitive")
	}
	if !p.Matches("Hello there") {
		t.Error("exact case should match")
	}
}

func TestRoundTrip(t *testing.T) {
	// Every (mode, text) that compiles matches its own text.
	texts := map[Mode][]string{
		Regexp: {"hello", `\d+ coins`, "a b c"},
		Glob:   {"hello", "a b c", "x.y"},
		Simple: {"North Gate", "look"},
		Substr: {"tells you", "a"},
	}
	for mode, list := range texts {
		for _, text := range list {
			p, err := Compile(mode, text)
			if err != nil {
				t.Fatalf("Compile(%v, %q): %v", mode, text, err)
			}
			if mode == Regexp && strings.ContainsAny(text, `\+`) {
				continue // regex metacharacters don't self-match
			}
			if !p.Matches(text) {
				t.Errorf("Compile(%v, %q) does not match its own text", mode, text)
			}
		}
	}
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pat, text string
		want      bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"foo*", "foobar", true},
		{"foo*", "barfoo", false},
		{"*bar", "foobar", true},
		{"f?o", "foo", true},
		{"f?o", "fo", false},
		{"[abc]at", "bat", true},
		{"[abc]at", "rat", false},
		{"[!abc]at", "rat", true},
		{"[a-m]ap", "map", true},
		{"[a-m]ap", "zap", false},
		{`\*lit`, "*lit", true},
		{`\*lit`, "xlit", false},
		{"*.tf", "stdlib.tf", true},
		{"a*b*c", "aXXbYYc", true},
	}
	for _, tt := range tests {
		t.Run(tt.pat+"/"+tt.text, func(t *testing.T) {
			p, err := Compile(Glob, tt.pat)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Matches(tt.text); got != tt.want {
				t.Errorf("glob %q vs %q = %v, want %v", tt.pat, tt.text, got, tt.want)
			}
		})
	}
}

func TestGlobPolynomial(t *testing.T) {
	// The classic exponential blowup input for a naive recursive matcher.
	p, err := Compile(Glob, "*a*a*a*a*a*a*b")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan bool, 1)
	go func() {
		done <- p.Matches(strings.Repeat("a", 50))
	}()
	select {
	case got := <-done:
		if got {
			t.Error("pattern should not match")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("glob match did not complete in bounded time")
	}
}

func TestSimple(t *testing.T) {
	p, err := Compile(Simple, "North Gate")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches("north gate") {
		t.Error("simple match folds case")
	}
	if p.Matches("north gate ") {
		t.Error("simple match is exact, not prefix")
	}
}

func TestSubstr(t *testing.T) {
	p, err := Compile(Substr, "Tells You")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches("Gandalf tells you 'flee'") {
		t.Error("substr should fold case")
	}
	if p.Matches("Gandalf says hi") {
		t.Error("unexpected match")
	}
}

func TestCaptures(t *testing.T) {
	p, err := Compile(Regexp, `(\w+) tells you '(.*)'`)
	if err != nil {
		t.Fatal(err)
	}
	spans, ok := p.Captures("Gandalf tells you 'flee'")
	if !ok {
		t.Fatal("expected a match")
	}
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	if spans[1].Text != "Gandalf" || spans[2].Text != "flee" {
		t.Errorf("captures = %q, %q", spans[1].Text, spans[2].Text)
	}

	if _, ok := p.Captures("no match here"); ok {
		t.Error("expected no captures on non-match")
	}
}

func TestCapturesNonRegexp(t *testing.T) {
	p, err := Compile(Glob, "*")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Captures("anything"); ok {
		t.Error("glob patterns have no captures")
	}
}

func TestCompileError(t *testing.T) {
	_, err := Compile(Regexp, "([unclosed")
	if err == nil {
		t.Fatal("expected compile error")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T", err)
	}
	if ce.Mode != Regexp {
		t.Errorf("mode = %v", ce.Mode)
	}
}

func TestCloneShares(t *testing.T) {
	p, err := Compile(Regexp, "x(y)z")
	if err != nil {
		t.Fatal(err)
	}
	q := *p // copies share the compiled regexp
	if q.re != p.re {
		t.Error("copy should share compiled form")
	}
}
