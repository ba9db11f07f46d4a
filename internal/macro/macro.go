// Package macro owns the trigger/hook/binding store. A Macro is the unit of
// user automation: it is a trigger when it has a pattern, a hook handler
// when it has hooks, and a key binding when it has a key; the three are not
// mutually exclusive. The store keeps every index needed for dispatch
// (name, key, hook, priority-ordered trigger list) as invariants across
// mutation.
package macro

import (
	"fmt"
	"strings"

	"github.com/anicolao/gofugue/internal/attr"
	"github.com/anicolao/gofugue/internal/pattern"
)

// Flags are the boolean modifiers a /def can carry.
type Flags struct {
	Gag         bool // suppress screen display of matched lines
	Hilite      bool // apply the macro's attr to matched lines
	NonMacro    bool // body is sent to the world verbatim, not interpreted
	FallThrough bool // matching continues past this trigger
	Quiet       bool // suppress feedback from the body's commands
}

// Spec is everything a /def definition can express. Pattern and Hooks may
// both be present; for a hook macro with a pattern, the pattern is matched
// against the hook argument.
type Spec struct {
	Name        string
	PatternText string
	Mode        pattern.Mode
	Hooks       HookSet
	Key         string
	Body        string
	Priority    int
	Chance      int // probability percent; 100 when unset
	World       string
	Attr        attr.Attr
	Flags       Flags
	ExpireAfter int // 0 means never expires
}

// Macro is one stored definition. Macros are exclusively owned by the
// Store; callers hold them only transiently between a Find and the
// corresponding invocation.
type Macro struct {
	Num         int // monotonic serial, tiebreak for equal priority
	Name        string
	Pattern     *pattern.Pattern
	Hooks       HookSet
	Key         string
	Body        string
	Priority    int
	Chance      int
	World       string
	Attr        attr.Attr
	Flags       Flags
	ExpireAfter int // invocations left; 0 means unlimited

	// Program caches the parsed body, populated lazily by the interpreter
	// on first invocation. Redefining the macro discards it.
	Program any
}

// IsTrigger reports whether the macro matches inbound lines.
func (m *Macro) IsTrigger() bool { return m.Pattern != nil && m.Hooks.Empty() }

// matchesWorld applies the world scope.
func (m *Macro) matchesWorld(world string) bool {
	return m.World == "" || m.World == world
}

// Define formats the macro as the /def command that would recreate it.
// /save and /list both use this form.
func (m *Macro) Define() string {
	var b strings.Builder
	b.WriteString("/def")
	if m.Priority != 0 {
		fmt.Fprintf(&b, " -p%d", m.Priority)
	}
	if m.Chance != 100 {
		fmt.Fprintf(&b, " -c%d", m.Chance)
	}
	if m.Flags.FallThrough {
		b.WriteString(" -F")
	}
	if m.Flags.Quiet {
		b.WriteString(" -q")
	}
	if m.Flags.NonMacro {
		b.WriteString(" -i")
	}
	if letters := attrLetters(m.Flags, m.Attr); letters != "" {
		b.WriteString(" -a" + letters)
	}
	if m.World != "" {
		fmt.Fprintf(&b, " -w%s", m.World)
	}
	if m.Pattern != nil {
		mode := m.Pattern.Mode()
		if mode != pattern.Glob {
			fmt.Fprintf(&b, " -m%s", mode)
		}
		fmt.Fprintf(&b, " -t'%s'", m.Pattern.Text())
	}
	if !m.Hooks.Empty() {
		fmt.Fprintf(&b, " -h'%s'", m.Hooks)
	}
	if m.Key != "" {
		fmt.Fprintf(&b, " -b'%s'", m.Key)
	}
	if m.ExpireAfter > 0 {
		fmt.Fprintf(&b, " -n%d", m.ExpireAfter)
	}
	if m.Name != "" {
		fmt.Fprintf(&b, " %s", m.Name)
	}
	if m.Body != "" {
		fmt.Fprintf(&b, " = %s", m.Body)
	}
	return b.String()
}

// attrLetters renders gag/hilite flags and display attributes as the letter
// string accepted by /def -a.
func attrLetters(f Flags, a attr.Attr) string {
	var b strings.Builder
	if f.Gag {
		b.WriteByte('g')
	}
	if f.Hilite && a == attr.Empty {
		b.WriteByte('h')
	}
	if a.Has(attr.Bold) {
		b.WriteByte('B')
	}
	if a.Has(attr.Dim) {
		b.WriteByte('d')
	}
	if a.Has(attr.Underline) {
		b.WriteByte('u')
	}
	if a.Has(attr.Italic) {
		b.WriteByte('i')
	}
	if a.Has(attr.Reverse) {
		b.WriteByte('r')
	}
	if a.Has(attr.Strike) {
		b.WriteByte('s')
	}
	return b.String()
}
