// Package tui is the event loop: a bubbletea model that exclusively owns
// the screen, the input editor, the interpreter, the macro and world
// stores and the live connection handles. Connection tasks talk to it
// through their event channels; the interpreter talks to it through the
// deferred-action queue, drained after every top-level statement.
package tui

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/anicolao/gofugue/internal/attr"
	"github.com/anicolao/gofugue/internal/client"
	"github.com/anicolao/gofugue/internal/config"
	"github.com/anicolao/gofugue/internal/input"
	"github.com/anicolao/gofugue/internal/macro"
	"github.com/anicolao/gofugue/internal/pattern"
	"github.com/anicolao/gofugue/internal/screen"
	"github.com/anicolao/gofugue/internal/script"
	"github.com/anicolao/gofugue/internal/world"
)

// maxScrollback is the default logical-line retention.
const maxScrollback = 5000

// procTickInterval paces the process scheduler.
const procTickInterval = 250 * time.Millisecond

// Options carries everything the command line decided.
type Options struct {
	WorldName   string // connect to this saved world
	Host, Port  string // or to this address
	ConfigFile  string
	LibDir      string
	Commands    []string // -c commands, run after config load
	NoAutoWorld bool     // -n: don't connect anywhere
	NoLogin     bool     // -l
	QuietLogin  bool     // -q
	Debug       bool     // -d
	TermType    string
}

// connState is the per-connection bookkeeping the loop keeps next to the
// connection handle.
type connState struct {
	conn      *client.Conn
	echoOff   bool
	loginStep int  // 0 idle, 1 sent character, 2 sent password
	activity  bool // Activity hook fired since last keystroke
}

type (
	startupMsg    struct{}
	connEventMsg  struct {
		world string
		ev    client.Event
	}
	connDialedMsg struct {
		world string
		conn  *client.Conn
		err   error
	}
	procTickMsg struct{}
	sigMsg      struct{ sig os.Signal }
)

// Model is the application state.
type Model struct {
	opts Options

	screen *screen.Screen
	editor *input.Editor
	interp *script.Interp
	macros *macro.Store
	worlds *world.Store
	procs  *procTable

	conns   map[string]*connState
	current string

	prompt     string // current world's pending prompt text
	fgPending  string // world to bring foreground once its dial lands
	width      int
	height     int
	liveVp     viewport.Model // live tail shown while scrolled back
	bell       bool
	quitting   bool
	substLine  *attr.String // set by /substitute during trigger dispatch
	logFile    *os.File
	debugLog   *os.File
	sigCh      chan os.Signal
}

// NewModel wires the owned state together.
func NewModel(opts Options) *Model {
	macros := macro.NewStore()
	interp := script.New(macros)

	hist, err := input.LoadHistory()
	if err != nil {
		hist = input.NewHistory()
	}

	m := &Model{
		opts:   opts,
		screen: screen.New(80, maxScrollback),
		editor: input.NewEditor(hist),
		interp: interp,
		macros: macros,
		worlds: world.NewStore(),
		procs:  newProcTable(),
		conns:  make(map[string]*connState),
		liveVp: viewport.New(0, 0),
		sigCh:  make(chan os.Signal, 4),
	}

	if opts.Debug {
		ts := time.Now().Format("20060102-150405")
		if f, err := os.Create(fmt.Sprintf("gofugue-debug-%s.log", ts)); err == nil {
			m.debugLog = f
		}
	}

	signal.Notify(m.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	m.syncEditorGlobals()
	return m
}

// Init loads startup files and begins listening for signals.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startupMsg{} },
		m.waitSignal,
	)
}

// waitSignal blocks on the signal channel as a command, the same way
// listenWorld blocks on a connection's channel.
func (m *Model) waitSignal() tea.Msg {
	sig, ok := <-m.sigCh
	if !ok {
		return nil
	}
	return sigMsg{sig: sig}
}

// listenWorld returns a command that delivers the connection's next event.
func listenWorld(name string, c *client.Conn) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-c.Events()
		if !ok {
			return nil
		}
		return connEventMsg{world: name, ev: ev}
	}
}

// Update is the single dispatch point of the event loop.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case startupMsg:
		return m, m.runStartup()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.screen.SetWidth(msg.Width)
		m.liveVp.Width = msg.Width
		m.liveVp.Height = m.outputHeight() / 3
		for _, cs := range m.conns {
			cs.conn.SetWindowSize(msg.Width, m.outputHeight())
		}
		m.interp.SetGlobal("COLUMNS", script.IntValue(int64(msg.Width)))
		m.interp.SetGlobal("LINES", script.IntValue(int64(msg.Height)))
		return m, m.fireHook(macro.HookResize, fmt.Sprintf("%d %d", msg.Width, msg.Height))

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case sigMsg:
		return m, m.handleSignal(msg.sig)

	case connDialedMsg:
		return m, m.handleDialed(msg)

	case connEventMsg:
		return m, m.handleConnEvent(msg)

	case editDoneMsg:
		if msg.err != nil {
			m.note("%% /edit: %v", msg.err)
			return m, nil
		}
		m.editor.Set(msg.text)
		m.syncEditorGlobals()
		return m, nil

	case shellDoneMsg:
		if msg.err != nil {
			m.note("%% /sh: %v", msg.err)
		}
		return m, nil

	case procTickMsg:
		cmd := m.runDueProcs()
		if m.procs.empty() {
			return m, cmd
		}
		return m, tea.Batch(cmd, tea.Tick(procTickInterval, func(time.Time) tea.Msg { return procTickMsg{} }))
	}
	return m, nil
}

// runStartup loads the stdlib, the config file and the -c commands, then
// connects to the initial world.
func (m *Model) runStartup() tea.Cmd {
	var cmds []tea.Cmd

	lib := config.LibDir(m.opts.LibDir)
	if path, ok := config.StdlibPath(lib); ok {
		cmds = append(cmds, m.loadFile(path))
	}
	if cfg := config.FindConfigFile(m.opts.ConfigFile); cfg != "" {
		cmds = append(cmds, m.loadFile(cfg))
	}
	if len(m.opts.Commands) > 0 {
		cmds = append(cmds, m.runInterp(strings.Join(m.opts.Commands, "%;")))
	}
	cmds = append(cmds, m.fireHook(macro.HookLoad, ""))

	switch {
	case m.opts.Host != "":
		w := m.worlds.AddTemp(m.opts.Host, m.opts.Port)
		cmds = append(cmds, m.dialWorld(w))
	case m.opts.WorldName != "":
		if w := m.worlds.Get(m.opts.WorldName); w != nil {
			cmds = append(cmds, m.dialWorld(w))
		} else {
			m.note("%% No such world: %s", m.opts.WorldName)
		}
	case !m.opts.NoAutoWorld:
		if w := m.worlds.Default(); w != nil {
			cmds = append(cmds, m.dialWorld(w))
		}
	}
	return tea.Batch(cmds...)
}

// loadFile feeds a command file through the interpreter, statement by
// statement, dispatching deferred actions after each and reporting
// line-numbered errors without stopping the load.
func (m *Model) loadFile(path string) tea.Cmd {
	var cmds []tea.Cmd
	err := config.LoadFile(path,
		func(stmt string) error {
			if err := m.interp.RunCommand(stmt); err != nil {
				return err
			}
			cmds = append(cmds, m.drainActions())
			return nil
		},
		func(diag string) { m.note("%% %s", diag) },
	)
	if err != nil {
		m.note("%% load: %v", err)
	}
	return tea.Batch(cmds...)
}

// runInterp runs one typed or scripted statement and dispatches its
// deferred actions.
func (m *Model) runInterp(line string) tea.Cmd {
	if err := m.interp.RunCommand(line); err != nil {
		m.note("%% error: %v", err)
		m.interp.TakeActions() // a failed statement leaves nothing to run
		return nil
	}
	return m.drainActions()
}

// note pushes a local feedback line to the screen.
func (m *Model) note(format string, args ...any) {
	m.screen.Push(attr.NewString(fmt.Sprintf(format, args...)))
}

// debugf logs to the -d debug file.
func (m *Model) debugf(format string, args ...any) {
	if m.debugLog != nil {
		fmt.Fprintf(m.debugLog, "[%s] ", time.Now().Format("15:04:05.000"))
		fmt.Fprintf(m.debugLog, format+"\n", args...)
	}
}

// outputHeight is the screen region height (total minus status and input
// rows).
func (m *Model) outputHeight() int {
	h := m.height - 2
	if h < 1 {
		h = 1
	}
	return h
}

// syncEditorGlobals republishes the editor triple after every keystroke.
func (m *Model) syncEditorGlobals() {
	head, tail, point := m.editor.Sync()
	m.interp.SetGlobal("kbhead", script.StringValue(head))
	m.interp.SetGlobal("kbtail", script.StringValue(tail))
	m.interp.SetGlobal("kbpoint", script.IntValue(int64(point)))
}

// handleKey maps a keystroke: user bindings first, then the built-in
// editor defaults.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	defer m.syncEditorGlobals()

	// A keystroke ends the current activity window for every world.
	for _, cs := range m.conns {
		cs.activity = false
	}

	key := msg.String()
	if b := m.macros.FindBinding(key); b != nil {
		return m.invokeMacro(b, key)
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		// The interactive interrupt follows the same path as SIGINT:
		// hook first, then clean shutdown.
		return tea.Sequence(m.fireHook(macro.HookSigInt, ""), m.beginQuit())
	case tea.KeyEnter:
		return m.submitLine()
	case tea.KeyPgUp:
		m.screen.ScrollBack(m.outputHeight()/2, m.outputHeight())
		return nil
	case tea.KeyPgDown:
		m.screen.ScrollForward(m.outputHeight()/2, m.outputHeight())
		return nil
	case tea.KeyUp:
		m.editor.HistoryPrev()
		return nil
	case tea.KeyDown:
		m.editor.HistoryNext()
		return nil
	case tea.KeyLeft:
		m.editor.Left()
		return nil
	case tea.KeyRight:
		m.editor.Right()
		return nil
	case tea.KeyHome, tea.KeyCtrlA:
		m.editor.Home()
		return nil
	case tea.KeyEnd, tea.KeyCtrlE:
		m.editor.End()
		return nil
	case tea.KeyBackspace:
		m.editor.Backspace()
		return nil
	case tea.KeyDelete:
		m.editor.Delete()
		return nil
	case tea.KeyCtrlK:
		m.editor.KillToEnd()
		return nil
	case tea.KeyCtrlU:
		m.editor.KillToStart()
		return nil
	case tea.KeyCtrlW:
		m.editor.KillWordBack()
		return nil
	case tea.KeyCtrlY:
		m.editor.Yank()
		return nil
	case tea.KeyCtrlP:
		m.editor.HistoryPrev()
		return nil
	case tea.KeyCtrlN:
		m.editor.HistoryNext()
		return nil
	case tea.KeyCtrlL:
		return nil // view redraws every update
	case tea.KeySpace:
		m.editor.Insert(" ")
		return nil
	case tea.KeyRunes:
		m.editor.Insert(string(msg.Runes))
		return nil
	}
	return nil
}

// submitLine runs the finished input line: SEND hooks, then either the
// interpreter (for /commands) or the current world.
func (m *Model) submitLine() tea.Cmd {
	cs := m.conns[m.current]
	suppressed := cs != nil && cs.echoOff

	line := m.editor.Submit()
	m.screen.ScrollToBottom()

	if !suppressed {
		shown := attr.NewString(m.prompt + line)
		m.screen.Push(shown)
	} else if m.prompt != "" {
		m.screen.Push(attr.NewString(m.prompt))
	}
	m.prompt = ""

	if strings.HasPrefix(line, "/") {
		return m.runInterp(line)
	}

	var cmds []tea.Cmd
	for _, hm := range m.macros.FireHook(macro.HookSend, line) {
		cmds = append(cmds, m.invokeMacro(hm, line))
	}
	cmds = append(cmds, m.sendToWorld(m.current, line, false))
	return tea.Batch(cmds...)
}

// invokeMacro runs a macro body against an argument line, honoring
// probability and the self-destruct counter, and dispatches the deferred
// actions it produced.
func (m *Model) invokeMacro(mac *macro.Macro, arg string) tea.Cmd {
	if !m.macros.ShouldFire(mac) {
		return nil
	}
	if err := m.interp.CallTriggered(mac, arg, nil); err != nil {
		m.note("%% error: %v", err)
		m.interp.TakeActions()
		m.macros.CountInvocation(mac)
		return nil
	}
	m.macros.CountInvocation(mac)
	return m.drainActions()
}

// sendToWorld writes a line to a connection; backpressure and missing
// connections surface on the screen.
func (m *Model) sendToWorld(name, text string, noNewline bool) tea.Cmd {
	if name == "" {
		name = m.current
	}
	cs := m.conns[name]
	if cs == nil {
		m.note("%% Not connected: %s", orUnnamed(name))
		return nil
	}
	if err := cs.conn.Send(text, noNewline); err != nil {
		m.note("%% send to %s: %v", name, err)
	}
	return nil
}

func orUnnamed(name string) string {
	if name == "" {
		return "(no world)"
	}
	return name
}

// fireHook runs every handler for a hook event.
func (m *Model) fireHook(h macro.Hook, arg string) tea.Cmd {
	var cmds []tea.Cmd
	for _, hm := range m.macros.FireHook(h, arg) {
		cmds = append(cmds, m.invokeMacro(hm, arg))
	}
	return tea.Batch(cmds...)
}

// handleSignal reacts to process signals: hooks first, then shutdown for
// the terminating ones.
func (m *Model) handleSignal(sig os.Signal) tea.Cmd {
	switch sig {
	case syscall.SIGINT:
		return tea.Sequence(m.fireHook(macro.HookSigInt, ""), m.beginQuit(), m.waitSignal)
	case syscall.SIGTERM:
		return tea.Sequence(m.fireHook(macro.HookSigTerm, ""), m.beginQuit(), m.waitSignal)
	case syscall.SIGHUP:
		return tea.Batch(m.fireHook(macro.HookSigHup, ""), m.waitSignal)
	case syscall.SIGUSR1:
		return tea.Batch(m.fireHook(macro.HookSigUsr1, ""), m.waitSignal)
	}
	return m.waitSignal
}

// dialWorld starts a connection task for a world.
func (m *Model) dialWorld(w *world.World) tea.Cmd {
	if _, open := m.conns[w.Name]; open {
		m.note("%% Already connected: %s", w.Name)
		return nil
	}
	name := w.Name
	cfg := client.Config{
		Host:     w.Host,
		Port:     w.Port,
		TLS:      w.SSL,
		TermType: m.opts.TermType,
		Width:    m.width,
		Height:   m.outputHeight(),
	}
	m.note("%% Connecting to %s (%s:%s)...", name, w.Host, w.Port)
	return func() tea.Msg {
		conn, err := client.Dial(cfg)
		return connDialedMsg{world: name, conn: conn, err: err}
	}
}

// handleDialed finishes connection setup or reports the failure.
func (m *Model) handleDialed(msg connDialedMsg) tea.Cmd {
	if msg.err != nil {
		m.note("%% %v", msg.err)
		m.worlds.GCTemp(msg.world)
		return m.fireHook(macro.HookConfail, msg.world)
	}
	m.conns[msg.world] = &connState{conn: msg.conn}
	var switchCmd tea.Cmd
	if m.current == "" || m.fgPending == msg.world {
		m.fgPending = ""
		switchCmd = m.switchWorld(msg.world)
	}
	m.note("%% Connected to %s.", msg.world)
	return tea.Batch(
		switchCmd,
		m.fireHook(macro.HookConnect, msg.world),
		listenWorld(msg.world, msg.conn),
	)
}

// switchWorld changes the foreground world.
func (m *Model) switchWorld(name string) tea.Cmd {
	if name == m.current {
		return nil
	}
	if _, ok := m.conns[name]; !ok && name != "" {
		m.note("%% Not connected: %s", name)
		return nil
	}
	m.current = name
	m.prompt = ""
	m.interp.SetGlobal("world", script.StringValue(name))
	if cs := m.conns[name]; cs != nil {
		cs.activity = false
	}
	return m.fireHook(macro.HookWorld, name)
}

// handleConnEvent routes one event from a connection task and re-arms the
// listener.
func (m *Model) handleConnEvent(msg connEventMsg) tea.Cmd {
	cs := m.conns[msg.world]
	if cs == nil {
		return nil
	}
	var cmd tea.Cmd
	switch ev := msg.ev.(type) {
	case client.LineEvent:
		cmd = m.handleLine(msg.world, cs, ev.Text)

	case client.PromptEvent:
		cmd = m.handlePrompt(msg.world, cs, ev.Text)

	case client.EchoEvent:
		cs.echoOff = ev.Suppressed

	case client.SubnegEvent:
		hook := macro.HookGmcp
		if ev.Opt == 200 { // ATCP
			hook = macro.HookAtcp
		}
		cmd = m.fireHook(hook, string(ev.Data))

	case client.ClosedEvent:
		if ev.Err != nil {
			m.note("%% Connection to %s closed: %v", msg.world, ev.Err)
		} else {
			m.note("%% Connection to %s closed.", msg.world)
		}
		delete(m.conns, msg.world)
		m.worlds.GCTemp(msg.world)
		var switchCmd tea.Cmd
		if m.current == msg.world {
			next := ""
			for name := range m.conns {
				next = name
				break
			}
			m.current = ""
			switchCmd = m.switchWorld(next)
		}
		return tea.Batch(switchCmd, m.fireHook(macro.HookDisconnect, msg.world))
	}
	return tea.Batch(cmd, listenWorld(msg.world, cs.conn))
}

// handleLine is the inbound pipeline for one complete server line:
// decode, Activity hook, triggers, gag, screen push.
func (m *Model) handleLine(worldName string, cs *connState, raw string) tea.Cmd {
	m.debugf("line %s: %q", worldName, raw)
	line := attr.ParseANSI(raw)

	var cmds []tea.Cmd

	// Output on a background world fires Background for every line; the
	// first line since the last keystroke additionally announces
	// activity, Preactivity immediately before Activity.
	if worldName != m.current {
		if !cs.activity {
			cs.activity = true
			cmds = append(cmds, m.fireHook(macro.HookPreactivity, worldName))
			cmds = append(cmds, m.fireHook(macro.HookActivity, worldName))
		}
		cmds = append(cmds, m.fireHook(macro.HookBackground, worldName))
	}

	// Trigger pass. The matching set is snapshotted before any body runs,
	// so bodies that add or remove triggers do not affect this line.
	matched := m.macros.FindTriggers(line.Text(), worldName)
	gagged := false
	fold := attr.Empty
	m.substLine = nil
	for _, t := range matched {
		if !m.macros.ShouldFire(t) {
			continue
		}
		if t.Flags.Gag {
			gagged = true
		}
		if t.Flags.Hilite {
			fold = fold.Merge(t.Attr)
		}
		if t.Body != "" {
			var captures []patternSpan
			if spans, ok := t.Pattern.Captures(line.Text()); ok {
				captures = spans
			}
			if err := m.interp.CallTriggered(t, line.Text(), captures); err != nil {
				m.note("%% error: %v", err)
				m.interp.TakeActions()
			} else {
				cmds = append(cmds, m.drainActions())
			}
		}
		m.macros.CountInvocation(t)
	}
	if m.substLine != nil {
		line = *m.substLine
		m.substLine = nil
	}

	// The global gag switch suppresses everything.
	if v, ok := m.interp.GetGlobal("gag"); ok && v.Bool() {
		gagged = true
	}

	if !gagged {
		line.MergeLine(fold)
		m.screen.Push(line)
		m.logLine(line.Text())
	}
	cmds = append(cmds, m.autoLogin(worldName, cs, line.Text()))
	return tea.Batch(cmds...)
}

// handlePrompt treats unterminated trailing text as the world's prompt.
func (m *Model) handlePrompt(worldName string, cs *connState, text string) tea.Cmd {
	cmd := m.fireHook(macro.HookPrompt, text)
	if worldName == m.current {
		m.prompt = attr.ParseANSI(text).Text()
	}
	return tea.Batch(cmd, m.autoLogin(worldName, cs, text))
}

// autoLogin answers name and password prompts for worlds that carry
// credentials, one step per prompt.
func (m *Model) autoLogin(worldName string, cs *connState, lastLine string) tea.Cmd {
	if m.opts.NoLogin {
		return nil
	}
	w := m.worlds.Get(worldName)
	if w == nil || w.Character == "" || cs.loginStep >= 2 {
		return nil
	}
	l := strings.ToLower(lastLine)
	if cs.loginStep == 0 && (strings.Contains(l, "name") || strings.Contains(l, "login") ||
		strings.Contains(l, "account") || strings.Contains(l, "character")) {
		cs.conn.Send(w.Character, false)
		cs.loginStep = 1
		if !m.opts.QuietLogin {
			m.note("%% Logging in as %s.", w.Character)
		}
		return nil
	}
	if cs.loginStep == 1 && w.Password != "" && strings.Contains(l, "pass") {
		cs.conn.Send(w.Password, false)
		cs.loginStep = 2
		return m.fireHook(macro.HookLogin, worldName)
	}
	return nil
}

// logLine appends a displayed line to the session log.
func (m *Model) logLine(text string) {
	if m.logFile != nil {
		fmt.Fprintln(m.logFile, text)
	}
}

// runDueProcs fires every scheduled process that has come due.
func (m *Model) runDueProcs() tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range m.procs.due(time.Now()) {
		cmds = append(cmds, m.runInterp(p.body))
	}
	return tea.Batch(cmds...)
}

// beginQuit shuts everything down cleanly.
func (m *Model) beginQuit() tea.Cmd {
	if m.quitting {
		return tea.Quit
	}
	m.quitting = true
	for _, cs := range m.conns {
		cs.conn.Close()
	}
	if m.logFile != nil {
		m.logFile.Close()
	}
	if m.debugLog != nil {
		m.debugLog.Close()
	}
	m.editor.History().Save()
	signal.Stop(m.sigCh)
	return tea.Quit
}

// patternSpan aliases the pattern package's span for local readability.
type patternSpan = pattern.Span
