package macro

import (
	"testing"

	"github.com/anicolao/gofugue/internal/pattern"
)

func def(t *testing.T, s *Store, spec Spec) int {
	t.Helper()
	num, err := s.Define(spec)
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	return num
}

func TestPriorityTiebreak(t *testing.T) {
	s := NewStore()
	n1 := def(t, s, Spec{Name: "m1", PatternText: "spam*", Mode: pattern.Glob, Priority: 5, Flags: Flags{FallThrough: true}})
	n2 := def(t, s, Spec{Name: "m2", PatternText: "spam*", Mode: pattern.Glob, Priority: 5, Flags: Flags{FallThrough: true}})

	got := s.FindTriggers("spam and eggs", "")
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Num != n2 || got[1].Num != n1 {
		t.Errorf("order = [%d %d], want [%d %d] (most recent first)", got[0].Num, got[1].Num, n2, n1)
	}
}

func TestPriorityOrdering(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "low", PatternText: "x*", Mode: pattern.Glob, Priority: 1, Flags: Flags{FallThrough: true}})
	def(t, s, Spec{Name: "high", PatternText: "x*", Mode: pattern.Glob, Priority: 10, Flags: Flags{FallThrough: true}})

	got := s.FindTriggers("xyzzy", "")
	if len(got) != 2 || got[0].Name != "high" || got[1].Name != "low" {
		t.Fatalf("priority order wrong: %v", names(got))
	}
}

func TestFallThroughStopsAtFirstNonFallThrough(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "ft", PatternText: "X*", Mode: pattern.Glob, Priority: 10, Flags: Flags{FallThrough: true}})
	def(t, s, Spec{Name: "stop", PatternText: "X*", Mode: pattern.Glob, Priority: 5})
	def(t, s, Spec{Name: "never", PatternText: "X*", Mode: pattern.Glob, Priority: 1})

	got := s.FindTriggers("Xyz", "")
	if want := []string{"ft", "stop"}; !equal(names(got), want) {
		t.Errorf("matches = %v, want %v", names(got), want)
	}
}

func TestWorldScope(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "scoped", PatternText: "hp*", Mode: pattern.Glob, World: "arda"})

	if got := s.FindTriggers("hp: 100", "mordor"); len(got) != 0 {
		t.Errorf("scoped macro matched wrong world: %v", names(got))
	}
	if got := s.FindTriggers("hp: 100", "arda"); len(got) != 1 {
		t.Errorf("scoped macro failed in its world")
	}
}

func TestSelfDestruct(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "thrice", PatternText: "go*", Mode: pattern.Glob, ExpireAfter: 3})

	fired := 0
	for i := 0; i < 5; i++ {
		ms := s.FindTriggers("go north", "")
		if len(ms) == 0 {
			break
		}
		fired++
		s.CountInvocation(ms[0])
	}
	if fired != 3 {
		t.Errorf("fired %d times, want 3", fired)
	}
	if s.FindByName("thrice") != nil {
		t.Error("macro should be gone after expiry")
	}
}

func TestNameReplacementKeepsSlotOnSamePriority(t *testing.T) {
	s := NewStore()
	n1 := def(t, s, Spec{Name: "a", PatternText: "q*", Mode: pattern.Glob, Priority: 5, Flags: Flags{FallThrough: true}})
	def(t, s, Spec{Name: "b", PatternText: "q*", Mode: pattern.Glob, Priority: 5, Flags: Flags{FallThrough: true}})

	// Redefine "a" with the same priority: serial is preserved, so "b"
	// still sorts ahead of it.
	n1b := def(t, s, Spec{Name: "a", PatternText: "q*", Mode: pattern.Glob, Priority: 5, Body: "/echo new", Flags: Flags{FallThrough: true}})
	if n1b != n1 {
		t.Errorf("same-priority redefinition changed num: %d -> %d", n1, n1b)
	}
	got := s.FindTriggers("quest", "")
	if want := []string{"b", "a"}; !equal(names(got), want) {
		t.Errorf("order = %v, want %v", names(got), want)
	}

	// Redefining with a different priority re-inserts with a fresh serial.
	n1c := def(t, s, Spec{Name: "a", PatternText: "q*", Mode: pattern.Glob, Priority: 7})
	if n1c == n1 {
		t.Error("priority change should assign a new num")
	}
	got = s.FindTriggers("quest", "")
	if len(got) == 0 || got[0].Name != "a" {
		t.Errorf("higher priority should fire first, got %v", names(got))
	}
}

func TestHooks(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "onconn", Hooks: HookSet(HookConnect)})
	def(t, s, Spec{Name: "onsend", Hooks: HookSet(HookSend), PatternText: "n", Mode: pattern.Simple})

	if got := s.FireHook(HookConnect, "arda"); len(got) != 1 || got[0].Name != "onconn" {
		t.Errorf("connect hook = %v", names(got))
	}
	// Hook macro with a pattern requires the argument to match.
	if got := s.FireHook(HookSend, "n"); len(got) != 1 {
		t.Errorf("send hook should fire for matching arg, got %v", names(got))
	}
	if got := s.FireHook(HookSend, "look"); len(got) != 0 {
		t.Errorf("send hook fired for non-matching arg: %v", names(got))
	}
}

func TestParseHookSet(t *testing.T) {
	set, err := ParseHookSet("connect|SEND")
	if err != nil {
		t.Fatal(err)
	}
	if !set.Contains(HookConnect) || !set.Contains(HookSend) {
		t.Error("parsed set missing hooks")
	}
	if set.Contains(HookDisconnect) {
		t.Error("parsed set has extra hooks")
	}

	if _, err := ParseHookSet("nonsense"); err == nil {
		t.Error("expected error for unknown hook")
	}

	all, err := ParseHookSet("*")
	if err != nil {
		t.Fatal(err)
	}
	if all != HookSetAll {
		t.Error("* should parse to HookSetAll")
	}
}

func TestFindBinding(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "f1", Key: "^[OP", Body: "/help"})
	if m := s.FindBinding("^[OP"); m == nil || m.Name != "f1" {
		t.Error("binding lookup failed")
	}
	if m := s.FindBinding("^[OQ"); m != nil {
		t.Error("unexpected binding")
	}
}

func TestPurge(t *testing.T) {
	s := NewStore()
	def(t, s, Spec{Name: "keep", PatternText: "a*", Mode: pattern.Glob})
	def(t, s, Spec{Name: "drop1", PatternText: "b*", Mode: pattern.Glob})
	def(t, s, Spec{Name: "drop2", PatternText: "b*", Mode: pattern.Glob})

	n := s.Purge(func(m *Macro) bool { return m.Pattern != nil && m.Pattern.Text() == "b*" })
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	if s.FindByName("keep") == nil {
		t.Error("keep was purged")
	}
	if s.FindByName("drop1") != nil || s.FindByName("drop2") != nil {
		t.Error("purge left macros behind")
	}
	// Indexes still work after the rebuild.
	if got := s.FindTriggers("abc", ""); len(got) != 1 {
		t.Errorf("trigger list broken after purge: %v", names(got))
	}
}

func TestProbabilityRoll(t *testing.T) {
	s := NewStore()
	num := def(t, s, Spec{Name: "half", PatternText: "z*", Mode: pattern.Glob, Chance: 50})
	m := s.Get(num)

	fires := 0
	const trials = 10000
	for i := 0; i < trials; i++ {
		if s.ShouldFire(m) {
			fires++
		}
	}
	// Wide tolerance; this is a sanity check, not a statistics test.
	if fires < trials/4 || fires > 3*trials/4 {
		t.Errorf("50%% macro fired %d/%d times", fires, trials)
	}

	always := &Macro{Chance: 100}
	for i := 0; i < 100; i++ {
		if !s.ShouldFire(always) {
			t.Fatal("100% macro failed to fire")
		}
	}
}

func TestStoreSeedsDiffer(t *testing.T) {
	// Seeded from OS entropy: two stores should not produce identical
	// streams. (A fixed compile-time seed would.)
	a, b := NewStore(), NewStore()
	same := true
	for i := 0; i < 16; i++ {
		if a.rng.next() != b.rng.next() {
			same = false
			break
		}
	}
	if same {
		t.Error("two stores produced identical PRNG streams")
	}
}

func names(ms []*Macro) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
