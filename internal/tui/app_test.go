package tui

import (
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anicolao/gofugue/internal/macro"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	t.Setenv("GOFUGUE_CONFIG_DIR", t.TempDir())
	m := NewModel(Options{NoAutoWorld: true})
	m.width, m.height = 80, 24
	m.screen.SetWidth(80)
	return m
}

// lastLines returns the most recent screen lines as plain text.
func lastLines(m *Model, n int) []string {
	var out []string
	for _, l := range m.screen.Last(n) {
		out = append(out, l.Text())
	}
	return out
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func TestTriggerWithRegexCapture(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -p10 -mregexp -t'hello (\w+)' = /echo caught {P1}`)
	if m.macros.Len() != 1 {
		t.Fatalf("macros = %d, want 1", m.macros.Len())
	}

	cs := &connState{}
	m.handleLine("test", cs, "hello world")
	if !contains(lastLines(m, 5), "caught world") {
		t.Errorf("screen = %v, want \"caught world\"", lastLines(m, 5))
	}

	before := m.screen.Len()
	m.handleLine("test", cs, "hellox world")
	after := lastLines(m, m.screen.Len()-before)
	if contains(after, "caught world") {
		t.Error("trigger fired on non-matching line")
	}
}

func TestGagSuppressesMatchedLine(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -ag -mregexp -t'^spam'`)

	cs := &connState{}
	m.handleLine("test", cs, "spam line")
	if contains(lastLines(m, 5), "spam line") {
		t.Error("gagged line reached the screen")
	}

	m.handleLine("test", cs, "not spam at all")
	if !contains(lastLines(m, 5), "not spam at all") {
		t.Error("non-matching line was lost")
	}
}

func TestFallThroughRunsBothBodies(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -p10 -F -t'X*' first = /echo from-first`)
	m.runInterp(`/def -p5 -t'X*' second = /echo from-second`)

	cs := &connState{}
	m.handleLine("test", cs, "X marks the spot")

	lines := lastLines(m, 5)
	var order []string
	for _, l := range lines {
		if l == "from-first" || l == "from-second" {
			order = append(order, l)
		}
	}
	if len(order) != 2 || order[0] != "from-first" || order[1] != "from-second" {
		t.Errorf("bodies ran %v, want [from-first from-second]", order)
	}
}

func TestTriggerStoreMutationMidPassUsesSnapshot(t *testing.T) {
	m := newTestModel(t)
	// The first trigger's body defines another matching trigger; the
	// snapshot taken before dispatch must not include it for this line.
	m.runInterp(`/def -p10 -F -t'boom*' planter = /def -p1 -t'boom*' late = /echo late`)

	cs := &connState{}
	m.handleLine("test", cs, "boom goes the dynamite")
	if contains(lastLines(m, 6), "late") {
		t.Error("trigger added mid-pass fired on the same line")
	}

	m.handleLine("test", cs, "boom again")
	if !contains(lastLines(m, 6), "late") {
		t.Error("trigger added mid-pass should fire on the next line")
	}
}

func TestGlobalGag(t *testing.T) {
	m := newTestModel(t)
	m.runInterp("/gag")
	cs := &connState{}
	m.handleLine("test", cs, "anything at all")
	if contains(lastLines(m, 5), "anything at all") {
		t.Error("global gag did not suppress")
	}

	m.runInterp("/nogag")
	m.handleLine("test", cs, "visible again")
	if !contains(lastLines(m, 5), "visible again") {
		t.Error("nogag did not restore output")
	}
}

func TestExpiringTriggerLeavesStore(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -n3 -t'tick*' mortal = /echo lived`)

	cs := &connState{}
	for i := 0; i < 5; i++ {
		m.handleLine("test", cs, "tick tock")
	}
	count := 0
	for _, l := range lastLines(m, 20) {
		if l == "lived" {
			count++
		}
	}
	if count != 3 {
		t.Errorf("expire-after-3 trigger fired %d times", count)
	}
	if m.macros.FindByName("mortal") != nil {
		t.Error("expired trigger still present")
	}
}

func TestUnknownCommandFeedback(t *testing.T) {
	m := newTestModel(t)
	m.runInterp("/frobnicate")
	if !contains(lastLines(m, 3), "% Unknown command: /frobnicate") {
		t.Errorf("screen = %v", lastLines(m, 3))
	}
}

func TestSubstituteReplacesLine(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -p10 -t'ugly*' clean = /substitute pretty line`)

	cs := &connState{}
	m.handleLine("test", cs, "ugly line")
	lines := lastLines(m, 5)
	if !contains(lines, "pretty line") || contains(lines, "ugly line") {
		t.Errorf("substitute failed: %v", lines)
	}
}

func TestProcScheduler(t *testing.T) {
	pt := newProcTable()
	pid := pt.add(10*time.Millisecond, 2, "/echo tick")
	if pid != 1 {
		t.Fatalf("pid = %d", pid)
	}

	due := pt.due(time.Now().Add(20 * time.Millisecond))
	if len(due) != 1 {
		t.Fatalf("due = %d procs", len(due))
	}
	due = pt.due(time.Now().Add(40 * time.Millisecond))
	if len(due) != 1 {
		t.Fatalf("second tick due = %d procs", len(due))
	}
	if !pt.empty() {
		t.Error("count-limited proc should retire after its runs")
	}
}

func TestProcKill(t *testing.T) {
	pt := newProcTable()
	pid := pt.add(time.Second, 0, "/echo forever")
	if !pt.kill(pid) {
		t.Error("kill failed")
	}
	if pt.kill(pid) {
		t.Error("double kill should report false")
	}
}

func TestRepeatActionSchedulesProc(t *testing.T) {
	m := newTestModel(t)
	m.runInterp("/repeat -t1 3 /echo beat")
	if m.procs.empty() {
		t.Fatal("no process scheduled")
	}
	m.runInterp("/kill 1")
	if !m.procs.empty() {
		t.Error("kill did not remove the process")
	}
}

func TestHookDispatchOnConnectAction(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -h'WORLD' onworld = /echo now in {1}`)

	m.conns["arda"] = &connState{}
	m.switchWorld("arda")
	if !contains(lastLines(m, 5), "now in arda") {
		t.Errorf("screen = %v", lastLines(m, 5))
	}
}

func TestSaveScriptRoundTrips(t *testing.T) {
	m := newTestModel(t)
	m.runInterp("/addworld arda mud.arda.example 4000")
	m.runInterp(`/def -p7 -t'hp: *' watch = /echo low`)

	script := m.saveScript()
	if len(script) < 2 {
		t.Fatalf("script = %v", script)
	}

	// Feed the statements back into a fresh model.
	m2 := newTestModel(t)
	for _, stmt := range script {
		m2.runInterp(stmt)
	}
	if m2.worlds.Get("arda") == nil {
		t.Error("world lost in round trip")
	}
	mac := m2.macros.FindByName("watch")
	if mac == nil || mac.Priority != 7 {
		t.Errorf("macro lost in round trip: %+v", mac)
	}
}

func TestSigIntHookFiresOnSignal(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -h'SIGINT' onint = /echo interrupted`)

	m.handleSignal(syscall.SIGINT)
	if !contains(lastLines(m, 3), "interrupted") {
		t.Errorf("screen = %v, want SIGINT handler output", lastLines(m, 3))
	}
	if !m.quitting {
		t.Error("SIGINT must begin clean shutdown after the hook")
	}
}

func TestSigIntHookFiresOnInterruptKey(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -h'SIGINT' onint = /echo interrupted`)

	m.handleKey(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !contains(lastLines(m, 3), "interrupted") {
		t.Errorf("screen = %v, want SIGINT handler output", lastLines(m, 3))
	}
	if !m.quitting {
		t.Error("the interrupt key must begin clean shutdown after the hook")
	}
}

func TestKillHookFiresWhenProcessRetired(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -h'KILL' onkill = /echo killed pid {1}`)
	m.runInterp("/repeat -t60 1 /echo never")

	m.runInterp("/kill 1")
	if !contains(lastLines(m, 5), "killed pid 1") {
		t.Errorf("screen = %v, want KILL handler output", lastLines(m, 5))
	}

	// A miss does not fire the hook.
	m.runInterp("/kill 99")
	count := 0
	for _, l := range lastLines(m, 10) {
		if l == "killed pid 99" {
			count++
		}
	}
	if count != 0 {
		t.Error("KILL hook fired for a nonexistent pid")
	}
}

func TestBackgroundAndActivityHookOrdering(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -F -h'PREACTIVITY' pre = /echo hook-pre`)
	m.runInterp(`/def -F -h'ACTIVITY' act = /echo hook-act`)
	m.runInterp(`/def -F -h'BACKGROUND' bg = /echo hook-bg`)

	// Lines on a background world: Preactivity then Activity fire once,
	// Background fires per line.
	m.conns["fg"] = &connState{}
	m.conns["bg"] = &connState{}
	m.switchWorld("fg")
	m.handleLine("bg", m.conns["bg"], "first line")
	m.handleLine("bg", m.conns["bg"], "second line")

	var order []string
	for _, l := range lastLines(m, 12) {
		switch l {
		case "hook-pre", "hook-act", "hook-bg":
			order = append(order, l)
		}
	}
	want := []string{"hook-pre", "hook-act", "hook-bg", "hook-bg"}
	if len(order) != len(want) {
		t.Fatalf("hook firings = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("hook firings = %v, want %v", order, want)
		}
	}

	// The foreground world never announces its own output: the line lands
	// on screen with no new hook lines after it.
	before := m.screen.Len()
	m.handleLine("fg", m.conns["fg"], "foreground line")
	added := lastLines(m, m.screen.Len()-before)
	if len(added) != 1 || added[0] != "foreground line" {
		t.Errorf("foreground line produced %v, want just the line", added)
	}
}

func TestHookSetAllMacroFiresOnEverything(t *testing.T) {
	m := newTestModel(t)
	m.runInterp(`/def -h'*' all = /echo hooked {1}`)
	m.fireHook(macro.HookSigHup, "sighup")
	if !contains(lastLines(m, 3), "hooked sighup") {
		t.Errorf("screen = %v", lastLines(m, 3))
	}
}
