package script

import (
	"time"

	"github.com/anicolao/gofugue/internal/attr"
	"github.com/anicolao/gofugue/internal/macro"
)

// Action is a deferred side effect. Builtins never touch event-loop state
// directly; they append actions to the interpreter's queue and the event
// loop drains the queue after every top-level statement. This keeps the
// interpreter free of references into the loop across suspension points.
type Action interface{ action() }

// SendToWorld sends text to a world. Empty World means the current one.
type SendToWorld struct {
	Text      string
	World     string
	NoNewline bool
}

// ConnectWorld opens a connection, either to a named world or to an
// explicit host/port pair (which creates a temp world).
type ConnectWorld struct {
	Name       string
	Host, Port string
	Foreground bool
	Background bool
	NoLogin    bool
	Quiet      bool
}

// DisconnectWorld closes a connection. Empty World means the current one.
type DisconnectWorld struct{ World string }

// SwitchWorld brings a world to the foreground.
type SwitchWorld struct{ Name string }

// DefMacro defines a macro.
type DefMacro struct{ Spec macro.Spec }

// UndefMacro removes macros by name, serial, trigger pattern text, or
// bound key.
type UndefMacro struct {
	Name    string
	Num     int
	Pattern string
	Key     string
}

// PurgeMacros removes every macro whose name matches the glob.
type PurgeMacros struct{ Glob string }

// RunHook fires a hook with an argument.
type RunHook struct {
	Hook macro.Hook
	Arg  string
}

// SetInput replaces the input editor's buffer.
type SetInput struct{ Text string }

// GrabInput copies a line into the input editor for editing.
type GrabInput struct{ Text string }

// DoKey performs a named editor operation.
type DoKey struct{ Op string }

// SetPrompt replaces the displayed prompt line.
type SetPrompt struct{ Text string }

// Bell rings the terminal bell.
type Bell struct{}

// Scroll moves the scrollback by n physical screen rows (negative is back).
type Scroll struct{ N int }

// EditInput spawns the external editor on the input buffer.
type EditInput struct{}

// Quit ends the program.
type Quit struct{}

// Echo displays a line locally.
type Echo struct {
	Line  attr.String
	Quiet bool
}

// Recall re-displays the last N logical lines.
type Recall struct{ N int }

// ListMacros prints stored macros, optionally filtered by a name glob.
type ListMacros struct{ Glob string }

// ListWorlds prints the world store.
type ListWorlds struct{}

// AddWorld defines or updates a world.
type AddWorld struct {
	Name, Host, Port     string
	Character, Password  string
	File                 string
	Type                 string
	SSL                  bool
}

// SaveWorlds writes /addworld statements to a file.
type SaveWorlds struct{ File string }

// SaveAll writes worlds, macros and globals to a file.
type SaveAll struct{ File string }

// LoadFile loads a command file.
type LoadFile struct{ Path string }

// LogControl starts or stops the session log.
type LogControl struct {
	File string
	Off  bool
}

// ShellCommand runs a command under $SHELL, suspending the display.
type ShellCommand struct{ Cmd string }

// SetEnvVar mutates the process environment.
type SetEnvVar struct {
	Name, Value string
	Export      bool
}

// StartProc schedules a repeating process.
type StartProc struct {
	Interval time.Duration
	Count    int // 0 means run forever
	Body     string
}

// KillProc cancels a scheduled process by pid.
type KillProc struct{ Pid int }

// ListProcs prints the scheduled processes.
type ListProcs struct{}

// SetGag sets or clears the global gag flag.
type SetGag struct{ On bool }

// TriggerLine runs trigger matching on a synthetic line, as if it had
// arrived from the current world.
type TriggerLine struct{ Text string }

// Substitute replaces the text of the line currently being triggered on.
type Substitute struct{ Text string }

// RemoveWorld deletes a world definition.
type RemoveWorld struct{ Name string }

func (SendToWorld) action()     {}
func (ConnectWorld) action()    {}
func (DisconnectWorld) action() {}
func (SwitchWorld) action()     {}
func (DefMacro) action()        {}
func (UndefMacro) action()      {}
func (PurgeMacros) action()     {}
func (RunHook) action()         {}
func (SetInput) action()        {}
func (GrabInput) action()       {}
func (DoKey) action()           {}
func (SetPrompt) action()       {}
func (Bell) action()            {}
func (Scroll) action()          {}
func (EditInput) action()       {}
func (Quit) action()            {}
func (Echo) action()            {}
func (Recall) action()          {}
func (ListMacros) action()      {}
func (ListWorlds) action()      {}
func (AddWorld) action()        {}
func (SaveWorlds) action()      {}
func (SaveAll) action()         {}
func (LoadFile) action()        {}
func (LogControl) action()      {}
func (ShellCommand) action()    {}
func (SetEnvVar) action()       {}
func (StartProc) action()       {}
func (KillProc) action()        {}
func (ListProcs) action()       {}
func (SetGag) action()          {}
func (TriggerLine) action()     {}
func (Substitute) action()      {}
func (RemoveWorld) action()     {}
