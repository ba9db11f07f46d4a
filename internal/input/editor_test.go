package input

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInsertAndCursor(t *testing.T) {
	e := NewEditor(nil)
	e.Insert("hello")
	e.Left()
	e.Left()
	e.Insert("XX")
	if got := e.Text(); got != "helXXlo" {
		t.Errorf("text = %q, want helXXlo", got)
	}
	if e.Point() != 5 {
		t.Errorf("point = %d, want 5", e.Point())
	}
}

func TestSyncTriple(t *testing.T) {
	e := NewEditor(nil)
	e.Set("kill orc")
	e.Home()
	e.WordRight()
	head, tail, point := e.Sync()
	if head != "kill" || tail != " orc" || point != 4 {
		t.Errorf("sync = (%q, %q, %d)", head, tail, point)
	}
}

func TestCacheInvalidation(t *testing.T) {
	e := NewEditor(nil)
	e.Insert("abc")
	if e.Text() != "abc" {
		t.Fatal("first read")
	}
	e.Backspace()
	if e.Text() != "ab" {
		t.Error("cache must invalidate on mutation")
	}
}

func TestKillAndYank(t *testing.T) {
	e := NewEditor(nil)
	e.Set("say hello world")
	e.KillWordBack() // kills "world"
	if e.Text() != "say hello " {
		t.Fatalf("after kill: %q", e.Text())
	}
	e.Home()
	e.Yank()
	if e.Text() != "worldsay hello " {
		t.Errorf("after yank: %q", e.Text())
	}
}

func TestKillToEndAndStart(t *testing.T) {
	e := NewEditor(nil)
	e.Set("abcdef")
	e.Home()
	e.Right()
	e.Right()
	e.KillToEnd()
	if e.Text() != "ab" {
		t.Fatalf("kill-line: %q", e.Text())
	}
	e.KillToStart()
	if e.Text() != "" {
		t.Fatalf("kill-to-start: %q", e.Text())
	}
	e.Yank() // most recent kill is "ab"
	if e.Text() != "ab" {
		t.Errorf("yank: %q", e.Text())
	}
}

func TestHistoryNavigation(t *testing.T) {
	e := NewEditor(nil)
	for _, cmd := range []string{"north", "south", "look"} {
		e.Set(cmd)
		e.Submit()
	}

	e.Insert("half-ty")
	e.HistoryPrev()
	if e.Text() != "look" {
		t.Fatalf("prev = %q", e.Text())
	}
	e.HistoryPrev()
	if e.Text() != "south" {
		t.Fatalf("prev2 = %q", e.Text())
	}
	e.HistoryNext()
	e.HistoryNext() // past the newest entry restores the typed text
	if e.Text() != "half-ty" {
		t.Errorf("restored = %q", e.Text())
	}
}

func TestSubmitDeduplicates(t *testing.T) {
	e := NewEditor(nil)
	e.Set("look")
	e.Submit()
	e.Set("look")
	e.Submit()
	if e.History().Len() != 1 {
		t.Errorf("history len = %d, want 1 (consecutive duplicates collapse)", e.History().Len())
	}
}

func TestDoOps(t *testing.T) {
	e := NewEditor(nil)
	e.Set("abc")
	if !e.Do("home") || e.Point() != 0 {
		t.Error("home failed")
	}
	if !e.Do("del") || e.Text() != "bc" {
		t.Error("del failed")
	}
	if e.Do("no-such-op") {
		t.Error("unknown op should report false")
	}
}

func TestHistoryPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	h, err := LoadHistoryFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	h.Add("north")
	h.Add("look")
	if err := h.Save(); err != nil {
		t.Fatal(err)
	}

	h2, err := LoadHistoryFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if h2.Len() != 2 || h2.At(1) != "look" {
		t.Errorf("reloaded history wrong: %v", h2.Commands)
	}
}

func TestHistoryPathUsesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("GOFUGUE_CONFIG_DIR", dir)
	defer os.Unsetenv("GOFUGUE_CONFIG_DIR")

	p, err := HistoryPath()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(p) != dir {
		t.Errorf("path = %q, want under %q", p, dir)
	}
}
