package script

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anicolao/gofugue/internal/attr"
	"github.com/anicolao/gofugue/internal/macro"
	"github.com/anicolao/gofugue/internal/pattern"
)

// Version is reported by /version.
const Version = "gofugue 0.9.2"

// noteLine formats local feedback the way every "% ..." line is shown.
func noteLine(text string) attr.String {
	return attr.NewString(text)
}

// builtins maps command names (without the slash) to implementations.
// Arguments arrive already expanded; each builtin parses its own flags.
var builtins map[string]func(*Interp, string) error

func init() {
	builtins = map[string]func(*Interp, string) error{
		"send":       (*Interp).cmdSend,
		"connect":    (*Interp).cmdConnect,
		"dc":         (*Interp).cmdDisconnect,
		"world":      (*Interp).cmdWorld,
		"fg":         (*Interp).cmdWorld,
		"quit":       (*Interp).cmdQuit,
		"undef":      (*Interp).cmdUndef,
		"undefn":     (*Interp).cmdUndefn,
		"undeft":     (*Interp).cmdUndeft,
		"purge":      (*Interp).cmdPurge,
		"list":       (*Interp).cmdList,
		"unset":      (*Interp).cmdUnset,
		"repeat":     (*Interp).cmdRepeat,
		"kill":       (*Interp).cmdKill,
		"ps":         (*Interp).cmdPs,
		"bind":       (*Interp).cmdBind,
		"unbind":     (*Interp).cmdUnbind,
		"hook":       (*Interp).cmdHook,
		"trigger":    (*Interp).cmdTrigger,
		"gag":        (*Interp).cmdGag,
		"nogag":      (*Interp).cmdNogag,
		"hilite":     (*Interp).cmdHilite,
		"log":        (*Interp).cmdLog,
		"sh":         (*Interp).cmdSh,
		"edit":       (*Interp).cmdEdit,
		"setenv":     (*Interp).cmdSetenv,
		"export":     (*Interp).cmdExport,
		"addworld":   (*Interp).cmdAddworld,
		"unworld":    (*Interp).cmdUnworld,
		"listworlds": (*Interp).cmdListworlds,
		"saveworld":  (*Interp).cmdSaveworld,
		"save":       (*Interp).cmdSave,
		"load":       (*Interp).cmdLoad,
		"help":       (*Interp).cmdHelp,
		"version":    (*Interp).cmdVersion,
		"beep":       (*Interp).cmdBeep,
		"recall":     (*Interp).cmdRecall,
		"input":      (*Interp).cmdInput,
		"grab":       (*Interp).cmdGrab,
		"dokey":      (*Interp).cmdDokey,
		"prompt":     (*Interp).cmdPrompt,
		"getopts":    (*Interp).cmdGetopts,
		"substitute": (*Interp).cmdSubstitute,
	}
}

// cmdEcho displays its expanded argument locally, honoring @{...} markup.
func (in *Interp) cmdEcho(args string) error {
	text, err := in.Expand(args)
	if err != nil {
		return err
	}
	line, err := attr.ExpandMarkup(text)
	if err != nil {
		// Echo text with broken markup verbatim rather than dropping it.
		line = attr.NewString(text)
	}
	in.defer_(Echo{Line: line})
	return nil
}

func (in *Interp) cmdSend(args string) error {
	a := SendToWorld{}
	rest := args
	for {
		flag, r, ok := leadingFlag(rest)
		if !ok {
			break
		}
		switch {
		case flag == "n":
			a.NoNewline = true
		case strings.HasPrefix(flag, "w"):
			a.World = flag[1:]
		default:
			return in.usage("send", "unknown option -"+flag)
		}
		rest = r
	}
	a.Text = rest
	in.defer_(a)
	return nil
}

func (in *Interp) cmdConnect(args string) error {
	a := ConnectWorld{}
	rest := args
	for {
		flag, r, ok := leadingFlag(rest)
		if !ok {
			break
		}
		switch flag {
		case "b":
			a.Background = true
		case "l":
			a.NoLogin = true
		case "q":
			a.Quiet = true
		default:
			return in.usage("connect", "unknown option -"+flag)
		}
		rest = r
	}
	fields := strings.Fields(rest)
	switch len(fields) {
	case 1:
		a.Name = fields[0]
	case 2:
		a.Host, a.Port = fields[0], fields[1]
	default:
		return in.usage("connect", "want a world name or host and port")
	}
	a.Foreground = !a.Background
	in.defer_(a)
	return nil
}

func (in *Interp) cmdDisconnect(args string) error {
	in.defer_(DisconnectWorld{World: strings.TrimSpace(args)})
	return nil
}

func (in *Interp) cmdWorld(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		in.defer_(ListWorlds{})
		return nil
	}
	in.defer_(SwitchWorld{Name: name})
	return nil
}

func (in *Interp) cmdQuit(string) error {
	in.defer_(Quit{})
	return nil
}

// cmdDef is dispatched specially: its body (after =) arrives unexpanded so
// substitutions happen at invocation time, not definition time.
func (in *Interp) cmdDef(rawArgs string) error {
	head, body := splitDefBody(rawArgs)
	head, err := in.Expand(head)
	if err != nil {
		return err
	}
	spec, err := parseDefSpec(head)
	if err != nil {
		return fmt.Errorf("/def: %w", err)
	}
	spec.Body = strings.TrimSpace(body)
	if spec.Body != "" {
		// Definition-time parse check: a bad body rejects the definition.
		if _, err := Parse(spec.Body); err != nil {
			return fmt.Errorf("/def %s: %w", spec.Name, err)
		}
	}
	in.defer_(DefMacro{Spec: spec})
	return nil
}

// splitDefBody splits "/def" arguments at the first top-level =, which
// separates the definition head from the macro body.
func splitDefBody(args string) (string, string) {
	quote := rune(0)
	for i, r := range args {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '=':
			return args[:i], args[i+1:]
		}
	}
	return args, ""
}

// parseDefSpec parses /def's option flags and name.
func parseDefSpec(head string) (macro.Spec, error) {
	spec := macro.Spec{Mode: pattern.Glob, Chance: 100}
	rest := strings.TrimSpace(head)
	for strings.HasPrefix(rest, "-") {
		var flag string
		flag, rest = takeFlagWord(rest)
		if flag == "" {
			break
		}
		var err error
		switch flag[0] {
		case 'p':
			spec.Priority, err = strconv.Atoi(flag[1:])
		case 'c':
			spec.Chance, err = strconv.Atoi(flag[1:])
		case 'n':
			spec.ExpireAfter, err = strconv.Atoi(flag[1:])
		case '1':
			spec.ExpireAfter = 1
		case 'F':
			spec.Flags.FallThrough = true
		case 'q':
			spec.Flags.Quiet = true
		case 'i':
			spec.Flags.NonMacro = true
		case 't':
			spec.PatternText = unquote(flag[1:])
		case 'm':
			spec.Mode, err = pattern.ParseMode(flag[1:])
		case 'h':
			spec.Hooks, err = macro.ParseHookSet(unquote(flag[1:]))
		case 'b':
			spec.Key = unquote(flag[1:])
		case 'w':
			spec.World = unquote(flag[1:])
		case 'a':
			spec.Flags, spec.Attr, err = parseAttrLetters(flag[1:], spec.Flags)
		default:
			err = fmt.Errorf("unknown option -%c", flag[0])
		}
		if err != nil {
			return spec, err
		}
	}
	spec.Name = strings.TrimSpace(rest)
	if strings.ContainsAny(spec.Name, " \t") {
		return spec, fmt.Errorf("macro name %q contains spaces", spec.Name)
	}
	return spec, nil
}

// takeFlagWord removes a leading -flag from s, honoring quotes so that
// -t'a b c' stays one flag.
func takeFlagWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	if !strings.HasPrefix(s, "-") {
		return "", s
	}
	i := 1
	quote := rune(0)
	rs := []rune(s)
	for i < len(rs) {
		r := rs[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			i++
			continue
		}
		if r == '\'' || r == '"' {
			quote = r
			i++
			continue
		}
		if r == ' ' || r == '\t' {
			break
		}
		i++
	}
	return string(rs[1:i]), strings.TrimLeft(string(rs[i:]), " \t")
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// parseAttrLetters decodes -a's letter string: g gags, the rest are
// display attributes which imply hiliting.
func parseAttrLetters(letters string, f macro.Flags) (macro.Flags, attr.Attr, error) {
	var a attr.Attr
	for _, r := range letters {
		switch r {
		case 'g':
			f.Gag = true
		case 'B':
			a |= attr.Bold
		case 'd':
			a |= attr.Dim
		case 'u':
			a |= attr.Underline
		case 'i':
			a |= attr.Italic
		case 'r':
			a |= attr.Reverse
		case 's':
			a |= attr.Strike
		case 'h':
			f.Hilite = true
		default:
			return f, a, fmt.Errorf("unknown attribute %q", string(r))
		}
	}
	if a != attr.Empty {
		f.Hilite = true
	}
	return f, a, nil
}

func (in *Interp) cmdUndef(args string) error {
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), "/"))
	if name == "" {
		return in.usage("undef", "want a macro name")
	}
	in.defer_(UndefMacro{Name: name})
	return nil
}

func (in *Interp) cmdUndefn(args string) error {
	num, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return in.usage("undefn", "want a macro number")
	}
	in.defer_(UndefMacro{Num: num})
	return nil
}

func (in *Interp) cmdUndeft(args string) error {
	pat := strings.TrimSpace(args)
	if pat == "" {
		return in.usage("undeft", "want a trigger pattern")
	}
	in.defer_(UndefMacro{Pattern: unquote(pat)})
	return nil
}

func (in *Interp) cmdPurge(args string) error {
	glob := strings.TrimSpace(args)
	if glob == "" {
		glob = "*"
	}
	in.defer_(PurgeMacros{Glob: glob})
	return nil
}

func (in *Interp) cmdList(args string) error {
	in.defer_(ListMacros{Glob: strings.TrimSpace(args)})
	return nil
}

func (in *Interp) cmdUnset(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return in.usage("unset", "want a variable name")
	}
	in.UnsetGlobal(name)
	return nil
}

// cmdRepeat implements /repeat [-t<seconds>] count body. A count of "i"
// repeats until killed.
func (in *Interp) cmdRepeat(args string) error {
	interval := time.Second
	rest := args
	if flag, r, ok := leadingFlag(rest); ok && strings.HasPrefix(flag, "t") {
		secs, err := strconv.ParseFloat(flag[1:], 64)
		if err != nil || secs <= 0 {
			return in.usage("repeat", "bad interval -"+flag)
		}
		interval = time.Duration(secs * float64(time.Second))
		rest = r
	}
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	if len(fields) < 2 {
		return in.usage("repeat", "want count and body")
	}
	count := 0
	if fields[0] != "i" {
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 1 {
			return in.usage("repeat", "bad count "+fields[0])
		}
		count = n
	}
	in.defer_(StartProc{Interval: interval, Count: count, Body: fields[1]})
	return nil
}

func (in *Interp) cmdKill(args string) error {
	pid, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return in.usage("kill", "want a pid")
	}
	in.defer_(KillProc{Pid: pid})
	return nil
}

func (in *Interp) cmdPs(string) error {
	in.defer_(ListProcs{})
	return nil
}

// cmdBind implements /bind key = body as a nameless key-bound macro.
func (in *Interp) cmdBind(args string) error {
	key, body := splitDefBody(args)
	key = strings.TrimSpace(key)
	if key == "" {
		return in.usage("bind", "want a key sequence")
	}
	in.defer_(DefMacro{Spec: macro.Spec{
		Key:    unquote(key),
		Body:   strings.TrimSpace(body),
		Chance: 100,
		Mode:   pattern.Glob,
	}})
	return nil
}

func (in *Interp) cmdUnbind(args string) error {
	key := strings.TrimSpace(args)
	if key == "" {
		return in.usage("unbind", "want a key sequence")
	}
	in.defer_(UndefMacro{Key: unquote(key)})
	return nil
}

// cmdHook fires a hook by name: /hook CONNECT argument.
func (in *Interp) cmdHook(args string) error {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	set, err := macro.ParseHookSet(fields[0])
	if err != nil {
		return in.usage("hook", err.Error())
	}
	arg := ""
	if len(fields) == 2 {
		arg = fields[1]
	}
	for h := macro.Hook(1); macro.HookSet(h) <= set; h <<= 1 {
		if set.Contains(h) {
			in.defer_(RunHook{Hook: h, Arg: arg})
		}
	}
	return nil
}

func (in *Interp) cmdTrigger(args string) error {
	in.defer_(TriggerLine{Text: args})
	return nil
}

// cmdGag with a pattern defines a gagging trigger; with no argument it
// sets the global %gag flag.
func (in *Interp) cmdGag(args string) error {
	pat := strings.TrimSpace(args)
	if pat == "" {
		in.defer_(SetGag{On: true})
		return nil
	}
	in.defer_(DefMacro{Spec: macro.Spec{
		PatternText: unquote(pat),
		Mode:        pattern.Glob,
		Chance:      100,
		Flags:       macro.Flags{Gag: true, FallThrough: true},
	}})
	return nil
}

func (in *Interp) cmdNogag(string) error {
	in.defer_(SetGag{On: false})
	return nil
}

// cmdHilite defines a bold trigger for the pattern.
func (in *Interp) cmdHilite(args string) error {
	pat := strings.TrimSpace(args)
	if pat == "" {
		return in.usage("hilite", "want a pattern")
	}
	in.defer_(DefMacro{Spec: macro.Spec{
		PatternText: unquote(pat),
		Mode:        pattern.Glob,
		Chance:      100,
		Attr:        attr.Bold,
		Flags:       macro.Flags{Hilite: true, FallThrough: true},
	}})
	return nil
}

func (in *Interp) cmdLog(args string) error {
	arg := strings.TrimSpace(args)
	if arg == "off" || arg == "" {
		in.defer_(LogControl{Off: true})
		return nil
	}
	in.defer_(LogControl{File: arg})
	return nil
}

func (in *Interp) cmdSh(args string) error {
	in.defer_(ShellCommand{Cmd: args})
	return nil
}

func (in *Interp) cmdEdit(string) error {
	in.defer_(EditInput{})
	return nil
}

func (in *Interp) cmdSetenv(args string) error {
	name, val, err := parseAssignment(args)
	if err != nil {
		return in.usage("setenv", err.Error())
	}
	in.defer_(SetEnvVar{Name: name, Value: val})
	return nil
}

func (in *Interp) cmdExport(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return in.usage("export", "want a variable name")
	}
	val := ""
	if v, ok := in.lookupVar(name); ok {
		val = v.Text()
	}
	in.defer_(SetEnvVar{Name: name, Value: val, Export: true})
	return nil
}

// cmdAddworld implements /addworld [-s] [-Ttype] name host port
// [character [password]].
func (in *Interp) cmdAddworld(args string) error {
	a := AddWorld{}
	rest := args
	for {
		flag, r, ok := leadingFlag(rest)
		if !ok {
			break
		}
		switch {
		case flag == "s":
			a.SSL = true
		case strings.HasPrefix(flag, "T"):
			a.Type = flag[1:]
		default:
			return in.usage("addworld", "unknown option -"+flag)
		}
		rest = r
	}
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return in.usage("addworld", "want a world name")
	}
	a.Name = fields[0]
	if len(fields) >= 3 {
		a.Host, a.Port = fields[1], fields[2]
	}
	if len(fields) >= 4 {
		a.Character = fields[3]
	}
	if len(fields) >= 5 {
		a.Password = fields[4]
	}
	in.defer_(a)
	return nil
}

func (in *Interp) cmdUnworld(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return in.usage("unworld", "want a world name")
	}
	in.defer_(RemoveWorld{Name: name})
	return nil
}

func (in *Interp) cmdListworlds(string) error {
	in.defer_(ListWorlds{})
	return nil
}

func (in *Interp) cmdSaveworld(args string) error {
	in.defer_(SaveWorlds{File: strings.TrimSpace(args)})
	return nil
}

func (in *Interp) cmdSave(args string) error {
	in.defer_(SaveAll{File: strings.TrimSpace(args)})
	return nil
}

func (in *Interp) cmdLoad(args string) error {
	path := strings.TrimSpace(args)
	if path == "" {
		return in.usage("load", "want a file name")
	}
	in.defer_(LoadFile{Path: path})
	return nil
}

func (in *Interp) cmdHelp(args string) error {
	topic := strings.TrimSpace(args)
	if topic == "" {
		topic = "intro"
	}
	in.defer_(Echo{Line: noteLine("% Help topic: " + topic + " (see the manual)")})
	return nil
}

func (in *Interp) cmdVersion(string) error {
	in.defer_(Echo{Line: noteLine("% " + Version)})
	return nil
}

func (in *Interp) cmdBeep(string) error {
	in.defer_(Bell{})
	return nil
}

func (in *Interp) cmdRecall(args string) error {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return in.usage("recall", "want a line count")
	}
	in.defer_(Recall{N: n})
	return nil
}

func (in *Interp) cmdInput(args string) error {
	in.defer_(SetInput{Text: args})
	return nil
}

func (in *Interp) cmdGrab(args string) error {
	in.defer_(GrabInput{Text: args})
	return nil
}

func (in *Interp) cmdDokey(args string) error {
	op := strings.ToLower(strings.TrimSpace(args))
	if op == "" {
		return in.usage("dokey", "want an operation")
	}
	in.defer_(DoKey{Op: op})
	return nil
}

func (in *Interp) cmdPrompt(args string) error {
	in.defer_(SetPrompt{Text: args})
	return nil
}

func (in *Interp) cmdGetopts(args string) error {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		return in.usage("getopts", "want an option format")
	}
	defaults := ""
	if len(fields) > 1 {
		defaults = fields[1]
	}
	_, err := in.getopts(unquote(fields[0]), unquote(defaults))
	return err
}

func (in *Interp) cmdSubstitute(args string) error {
	in.defer_(Substitute{Text: args})
	return nil
}

// usage reports a builtin argument error as local feedback and records it
// in %lasterr; the statement itself does not abort the surrounding body.
func (in *Interp) usage(cmd, msg string) error {
	in.LastErr = "/" + cmd + ": " + msg
	in.defer_(Echo{Line: noteLine("% /" + cmd + ": " + msg)})
	return nil
}

// leadingFlag peels "-x..." off the front of args, returning the flag text
// without the dash and the remainder.
func leadingFlag(args string) (string, string, bool) {
	args = strings.TrimLeft(args, " \t")
	if !strings.HasPrefix(args, "-") || len(args) < 2 {
		return "", args, false
	}
	flag, rest := takeFlagWord(args)
	if flag == "" {
		return "", args, false
	}
	return flag, rest, true
}
