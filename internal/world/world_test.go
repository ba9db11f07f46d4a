package world

import (
	"strings"
	"testing"
)

func TestAddAndGet(t *testing.T) {
	s := NewStore()
	s.Add(World{Name: "arda", Host: "mud.arda.example", Port: "4000", Character: "frodo"})

	w := s.Get("arda")
	if w == nil || w.Host != "mud.arda.example" {
		t.Fatalf("get = %+v", w)
	}
	if s.Get("nowhere") != nil {
		t.Error("unexpected world")
	}
}

func TestReplaceKeepsOrder(t *testing.T) {
	s := NewStore()
	s.Add(World{Name: "a", Host: "h1", Port: "1"})
	s.Add(World{Name: "b", Host: "h2", Port: "2"})
	s.Add(World{Name: "a", Host: "h1-new", Port: "1"})

	list := s.List()
	if len(list) != 2 || list[0].Name != "a" || list[0].Host != "h1-new" {
		t.Errorf("list = %v", list)
	}
}

func TestTempWorldGC(t *testing.T) {
	s := NewStore()
	w := s.AddTemp("mud.example", "23")
	if w.Name != "mud.example:23" || !w.Temp {
		t.Fatalf("temp world = %+v", w)
	}

	s.GCTemp(w.Name)
	if s.Get(w.Name) != nil {
		t.Error("temp world should be collected on disconnect")
	}

	// GCTemp never touches named worlds.
	s.Add(World{Name: "keep", Host: "h", Port: "1"})
	s.GCTemp("keep")
	if s.Get("keep") == nil {
		t.Error("named world must survive GCTemp")
	}
}

func TestDefaultSkipsTemp(t *testing.T) {
	s := NewStore()
	s.AddTemp("x", "1")
	s.Add(World{Name: "home", Host: "h", Port: "2"})
	d := s.Default()
	if d == nil || d.Name != "home" {
		t.Errorf("default = %+v", d)
	}
}

func TestSaveScript(t *testing.T) {
	s := NewStore()
	s.Add(World{Name: "secure", Host: "mud.tls.example", Port: "992", SSL: true, Character: "gandalf", Password: "mellon"})
	s.AddTemp("throwaway", "23")

	script := s.SaveScript()
	if len(script) != 1 {
		t.Fatalf("script lines = %d, want 1 (temp worlds are not saved)", len(script))
	}
	want := "/addworld -s secure mud.tls.example 992 gandalf mellon"
	if script[0] != want {
		t.Errorf("stmt = %q, want %q", script[0], want)
	}
	if !strings.HasPrefix(script[0], "/addworld") {
		t.Error("statements must be executable")
	}
}
