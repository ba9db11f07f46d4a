package tui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anicolao/gofugue/internal/attr"
	"github.com/anicolao/gofugue/internal/macro"
	"github.com/anicolao/gofugue/internal/pattern"
	"github.com/anicolao/gofugue/internal/script"
	"github.com/anicolao/gofugue/internal/world"
)

// drainActions empties the interpreter's deferred-action queue, applying
// each action to the loop's state in order. State mutation happens here,
// inside Update's call stack; only genuinely asynchronous work (dialing,
// external processes, quitting) escapes as commands.
func (m *Model) drainActions() tea.Cmd {
	var cmds []tea.Cmd
	for {
		actions := m.interp.TakeActions()
		if len(actions) == 0 {
			break
		}
		for _, a := range actions {
			if cmd := m.applyAction(a); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) applyAction(a script.Action) tea.Cmd {
	switch act := a.(type) {
	case script.SendToWorld:
		return m.sendToWorld(act.World, act.Text, act.NoNewline)

	case script.ConnectWorld:
		var w *world.World
		switch {
		case act.Name != "":
			w = m.worlds.Get(act.Name)
			if w == nil {
				m.note("%% No such world: %s", act.Name)
				return nil
			}
		default:
			w = m.worlds.AddTemp(act.Host, act.Port)
		}
		if act.Foreground {
			m.fgPending = w.Name
		}
		return m.dialWorld(w)

	case script.DisconnectWorld:
		name := act.World
		if name == "" {
			name = m.current
		}
		cs := m.conns[name]
		if cs == nil {
			m.note("%% Not connected: %s", orUnnamed(name))
			return nil
		}
		cs.conn.Close()
		return nil

	case script.SwitchWorld:
		return m.switchWorld(act.Name)

	case script.DefMacro:
		redef := act.Spec.Name != "" && m.macros.FindByName(act.Spec.Name) != nil
		if _, err := m.macros.Define(act.Spec); err != nil {
			m.note("%% /def: %v", err)
			return nil
		}
		if redef {
			return m.fireHook(macro.HookRedef, act.Spec.Name)
		}
		return nil

	case script.UndefMacro:
		m.undefMacro(act)
		return nil

	case script.PurgeMacros:
		glob, err := pattern.Compile(pattern.Glob, act.Glob)
		if err != nil {
			m.note("%% /purge: %v", err)
			return nil
		}
		n := m.macros.Purge(func(mac *macro.Macro) bool {
			return mac.Name != "" && glob.Matches(mac.Name)
		})
		m.note("%% Purged %d macros.", n)
		return nil

	case script.RunHook:
		return m.fireHook(act.Hook, act.Arg)

	case script.SetInput:
		m.editor.Set(act.Text)
		m.syncEditorGlobals()
		return nil

	case script.GrabInput:
		m.editor.Set(act.Text)
		m.syncEditorGlobals()
		return nil

	case script.DoKey:
		m.doKey(act.Op)
		return nil

	case script.SetPrompt:
		m.prompt = act.Text
		return nil

	case script.Bell:
		m.bell = true
		return nil

	case script.Scroll:
		if act.N < 0 {
			m.screen.ScrollBack(-act.N, m.outputHeight())
		} else {
			m.screen.ScrollForward(act.N, m.outputHeight())
		}
		return nil

	case script.EditInput:
		return m.editExternal()

	case script.Quit:
		return m.beginQuit()

	case script.Echo:
		if act.Quiet && m.opts.QuietLogin {
			return nil
		}
		m.screen.Push(act.Line)
		m.logLine(act.Line.Text())
		return nil

	case script.Recall:
		for _, line := range m.screen.Last(act.N) {
			m.screen.Push(line)
		}
		return nil

	case script.ListMacros:
		m.listMacros(act.Glob)
		return nil

	case script.ListWorlds:
		ws := m.worlds.List()
		if len(ws) == 0 {
			m.note("%% No worlds defined.")
		}
		for _, w := range ws {
			mark := " "
			if _, open := m.conns[w.Name]; open {
				mark = "*"
			}
			m.note("%%%s %s (%s:%s)", mark, w.Name, w.Host, w.Port)
		}
		return nil

	case script.AddWorld:
		m.worlds.Add(world.World{
			Name:      act.Name,
			Host:      act.Host,
			Port:      act.Port,
			Character: act.Character,
			Password:  act.Password,
			Type:      act.Type,
			SSL:       act.SSL,
		})
		return nil

	case script.RemoveWorld:
		if !m.worlds.Remove(act.Name) {
			m.note("%% No such world: %s", act.Name)
		}
		return nil

	case script.SaveWorlds:
		m.saveFile(act.File, m.worlds.SaveScript())
		return nil

	case script.SaveAll:
		m.saveFile(act.File, m.saveScript())
		return nil

	case script.LoadFile:
		return m.loadFile(act.Path)

	case script.LogControl:
		m.controlLog(act)
		return nil

	case script.ShellCommand:
		return m.runShell(act.Cmd)

	case script.SetEnvVar:
		// The event loop is the only thread touching process env state.
		os.Setenv(act.Name, act.Value)
		return nil

	case script.StartProc:
		wasEmpty := m.procs.empty()
		pid := m.procs.add(act.Interval, act.Count, act.Body)
		m.note("%% Process %d started.", pid)
		if wasEmpty {
			return tea.Tick(procTickInterval, func(time.Time) tea.Msg { return procTickMsg{} })
		}
		return nil

	case script.KillProc:
		if m.procs.kill(act.Pid) {
			m.note("%% Process %d killed.", act.Pid)
			return m.fireHook(macro.HookKill, fmt.Sprintf("%d", act.Pid))
		}
		m.note("%% No such process: %d", act.Pid)
		return nil

	case script.ListProcs:
		for _, line := range m.procs.list() {
			m.note("%s", line)
		}
		return nil

	case script.SetGag:
		if act.On {
			m.interp.SetGlobal("gag", script.IntValue(1))
		} else {
			m.interp.SetGlobal("gag", script.IntValue(0))
		}
		return nil

	case script.TriggerLine:
		cs := m.conns[m.current]
		if cs == nil {
			cs = &connState{}
		}
		return m.handleLine(m.current, cs, act.Text)

	case script.Substitute:
		s := attr.NewString(act.Text)
		m.substLine = &s
		return nil
	}
	return nil
}

// undefMacro handles the four addressing modes of /undef and friends.
func (m *Model) undefMacro(act script.UndefMacro) {
	switch {
	case act.Name != "":
		if !m.macros.RemoveByName(act.Name) {
			m.note("%% No such macro: %s", act.Name)
		}
	case act.Num != 0:
		if !m.macros.Remove(act.Num) {
			m.note("%% No such macro: #%d", act.Num)
		}
	case act.Key != "":
		if b := m.macros.FindBinding(act.Key); b != nil {
			m.macros.Remove(b.Num)
		} else {
			m.note("%% No binding for %s", act.Key)
		}
	case act.Pattern != "":
		n := m.macros.Purge(func(mac *macro.Macro) bool {
			return mac.Pattern != nil && mac.Pattern.Text() == act.Pattern
		})
		if n == 0 {
			m.note("%% No triggers match %q", act.Pattern)
		}
	}
}

// doKey runs a named editor or display operation for /dokey and bindings.
func (m *Model) doKey(op string) {
	switch op {
	case "pgup":
		m.screen.ScrollBack(m.outputHeight()/2, m.outputHeight())
	case "pgdn":
		m.screen.ScrollForward(m.outputHeight()/2, m.outputHeight())
	case "flush":
		m.screen.ScrollToBottom()
	case "newline":
		// handled as a submit by the key path; from /dokey it is a no-op
	default:
		if !m.editor.Do(op) {
			m.note("%% /dokey: unknown operation %q", op)
			return
		}
		m.syncEditorGlobals()
	}
}

// listMacros prints stored macros in /def form, optionally filtered by a
// name glob.
func (m *Model) listMacros(glob string) {
	var filter *pattern.Pattern
	if glob != "" {
		var err error
		filter, err = pattern.Compile(pattern.Glob, glob)
		if err != nil {
			m.note("%% /list: %v", err)
			return
		}
	}
	n := 0
	for _, mac := range m.macros.All() {
		if filter != nil && !filter.Matches(mac.Name) {
			continue
		}
		m.note("%% %d: %s", mac.Num, mac.Define())
		n++
	}
	if n == 0 {
		m.note("%% No macros.")
	}
}

// saveScript is the /save payload: worlds, macros, then globals, each as
// an executable statement.
func (m *Model) saveScript() []string {
	out := m.worlds.SaveScript()
	for _, mac := range m.macros.All() {
		out = append(out, mac.Define())
	}
	for _, name := range []string{"gag"} {
		if v, ok := m.interp.GetGlobal(name); ok {
			out = append(out, fmt.Sprintf("/set %s=%s", name, v.Text()))
		}
	}
	return out
}

func (m *Model) saveFile(path string, lines []string) {
	if path == "" {
		m.note("%% save: no file given")
		return
	}
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		m.note("%% save: %v", err)
		return
	}
	m.note("%% Saved %d statements to %s.", len(lines), path)
}

// controlLog opens or closes the session log (append mode, one line per
// displayed line).
func (m *Model) controlLog(act script.LogControl) {
	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
		m.note("%% Logging stopped.")
	}
	if act.Off || act.File == "" {
		return
	}
	f, err := os.OpenFile(act.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		m.note("%% /log: %v", err)
		return
	}
	m.logFile = f
	m.note("%% Logging to %s.", act.File)
}

// editExternal writes the input buffer to an exclusive scratch file, runs
// $EDITOR over it with the terminal restored, and reads the result back.
// CreateTemp's random exclusive name avoids a predictable-path race.
func (m *Model) editExternal() tea.Cmd {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		m.note("%% /edit: EDITOR is not set")
		return nil
	}
	tmp, err := os.CreateTemp("", "gofugue-edit-*.txt")
	if err != nil {
		m.note("%% /edit: %v", err)
		return nil
	}
	path := tmp.Name()
	tmp.WriteString(m.editor.Text())
	tmp.Close()

	c := exec.Command(editor, path)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		defer os.Remove(path)
		if err != nil {
			return editDoneMsg{err: err}
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return editDoneMsg{err: rerr}
		}
		return editDoneMsg{text: strings.TrimRight(string(data), "\n")}
	})
}

type editDoneMsg struct {
	text string
	err  error
}

// runShell suspends the display and runs a command under $SHELL.
func (m *Model) runShell(cmdline string) tea.Cmd {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	c := exec.Command(shell, "-c", cmdline)
	c.Stdin = os.Stdin
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return shellDoneMsg{err: err}
	})
}

type shellDoneMsg struct{ err error }
