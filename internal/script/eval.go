package script

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"

	"github.com/anicolao/gofugue/internal/macro"
	"github.com/anicolao/gofugue/internal/pattern"
)

// maxLoopIterations bounds /while and /for so a runaway script cannot
// freeze the event loop.
const maxLoopIterations = 100000

// Interp is the tree-walking evaluator. It owns only script state: the
// global variable table, the frame stack and the deferred-action queue.
// It reads the macro store (owned by the event loop, same thread) for
// invocation lookups, but every mutation of loop-owned state is expressed
// as a deferred Action.
type Interp struct {
	Macros  *macro.Store
	globals map[string]Value
	frames  []*frame
	actions []Action
	LastErr string
	rng     *rand.Rand
	depth   int // macro call depth, to catch recursion
}

// frame is one macro invocation's positional parameters and locals.
type frame struct {
	macroName string
	params    []string
	locals    map[string]Value
}

// New returns an interpreter with an empty base frame. The base frame
// exists so top-level commands can use /let and {n} without special cases.
func New(store *macro.Store) *Interp {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("seeding script PRNG: %v", err))
	}
	return &Interp{
		Macros:  store,
		globals: make(map[string]Value),
		frames:  []*frame{{locals: make(map[string]Value)}},
		rng:     rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))),
	}
}

func (in *Interp) currentFrame() *frame { return in.frames[len(in.frames)-1] }

// SetGlobal sets a global variable.
func (in *Interp) SetGlobal(name string, v Value) { in.globals[name] = v }

// GetGlobal reads a global variable.
func (in *Interp) GetGlobal(name string) (Value, bool) {
	v, ok := in.globals[name]
	return v, ok
}

// UnsetGlobal removes a global variable.
func (in *Interp) UnsetGlobal(name string) { delete(in.globals, name) }

// defer_ appends a deferred action.
func (in *Interp) defer_(a Action) { in.actions = append(in.actions, a) }

// TakeActions drains the deferred-action queue, preserving order.
func (in *Interp) TakeActions() []Action {
	out := in.actions
	in.actions = nil
	return out
}

// control-flow sentinels
type returnSignal struct{ val *Value }
type breakSignal struct{}

func (returnSignal) Error() string { return "return outside macro" }
func (breakSignal) Error() string  { return "break outside loop" }

// RunCommand parses and executes one typed line or config-file line.
// Plain text becomes a send; /commands dispatch through the builtin table.
func (in *Interp) RunCommand(line string) error {
	prog, err := Parse(line)
	if err != nil {
		return err
	}
	err = in.execBlock(prog.Stmts)
	if _, ok := err.(returnSignal); ok {
		return nil
	}
	return err
}

// CallTriggered invokes a trigger or hook macro body: positional
// parameters are the words of the triggering line, P0..Pn hold the regex
// captures when the pattern produced any.
func (in *Interp) CallTriggered(m *macro.Macro, line string, captures []pattern.Span) error {
	locals := make(map[string]Value, len(captures))
	for i, sp := range captures {
		locals[fmt.Sprintf("P%d", i)] = StringValue(sp.Text)
	}
	return in.callMacro(m, strings.Fields(line), locals)
}

// CallMacro executes a macro body with the given positional parameters.
// The parsed body is cached on the macro after the first invocation; a
// parse failure aborts only this invocation.
func (in *Interp) CallMacro(m *macro.Macro, params []string) error {
	return in.callMacro(m, params, nil)
}

func (in *Interp) callMacro(m *macro.Macro, params []string, locals map[string]Value) error {
	if in.depth >= 64 {
		return fmt.Errorf("%s: macro recursion too deep", m.Name)
	}
	if m.Flags.NonMacro {
		// Body goes to the world verbatim.
		in.defer_(SendToWorld{Text: m.Body})
		return nil
	}
	prog, ok := m.Program.(*Program)
	if !ok {
		var err error
		prog, err = Parse(m.Body)
		if err != nil {
			return fmt.Errorf("macro %s: %w", m.Name, err)
		}
		m.Program = prog
	}

	if locals == nil {
		locals = make(map[string]Value)
	}
	in.frames = append(in.frames, &frame{
		macroName: m.Name,
		params:    params,
		locals:    locals,
	})
	in.depth++
	err := in.execBlock(prog.Stmts)
	in.depth--
	in.frames = in.frames[:len(in.frames)-1]

	if _, isReturn := err.(returnSignal); isReturn {
		return nil
	}
	return err
}

func (in *Interp) execBlock(stmts []Stmt) error {
	for _, s := range stmts {
		if err := in.execStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interp) execStmt(s Stmt) error {
	switch st := s.(type) {
	case SendStmt:
		text, err := in.Expand(st.Text)
		if err != nil {
			return err
		}
		in.defer_(SendToWorld{Text: text})
		return nil

	case EchoStmt:
		return in.cmdEcho(st.Args)

	case SetStmt:
		val, err := in.Expand(st.Value)
		if err != nil {
			return err
		}
		if st.Local {
			in.currentFrame().locals[st.Name] = StringValue(val)
		} else {
			in.globals[st.Name] = StringValue(val)
		}
		return nil

	case TestStmt:
		_, err := in.evalExpr(st.Expr)
		return err

	case ReturnStmt:
		if st.Expr == nil {
			return returnSignal{}
		}
		v, err := in.evalExpr(st.Expr)
		if err != nil {
			return err
		}
		return returnSignal{val: &v}

	case BreakStmt:
		return breakSignal{}

	case IfStmt:
		for _, br := range st.Branches {
			v, err := in.evalExpr(br.Cond)
			if err != nil {
				return err
			}
			if v.Bool() {
				return in.execBlock(br.Body)
			}
		}
		return in.execBlock(st.Else)

	case WhileStmt:
		for i := 0; ; i++ {
			if i >= maxLoopIterations {
				return fmt.Errorf("/while: too many iterations")
			}
			v, err := in.evalExpr(st.Cond)
			if err != nil {
				return err
			}
			if !v.Bool() {
				return nil
			}
			if err := in.execBlock(st.Body); err != nil {
				if _, isBreak := err.(breakSignal); isBreak {
					return nil
				}
				return err
			}
		}

	case ForStmt:
		start, err := in.evalExpr(st.Start)
		if err != nil {
			return err
		}
		end, err := in.evalExpr(st.End)
		if err != nil {
			return err
		}
		lo, hi := start.Int(), end.Int()
		if hi-lo >= maxLoopIterations {
			return fmt.Errorf("/for: range too large")
		}
		for i := lo; i <= hi; i++ {
			in.currentFrame().locals[st.Var] = IntValue(i)
			if err := in.execBlock(st.Body); err != nil {
				if _, isBreak := err.(breakSignal); isBreak {
					return nil
				}
				return err
			}
		}
		return nil

	case CommandStmt:
		if st.Name == "def" {
			// /def expands only its head; the body must reach the store
			// unexpanded so substitutions happen per invocation.
			return in.cmdDef(st.Args)
		}
		args, err := in.Expand(st.Args)
		if err != nil {
			return err
		}
		return in.dispatch(st.Name, args)
	}
	return fmt.Errorf("unhandled statement %T", s)
}

// dispatch routes a /command to a builtin or a named macro.
func (in *Interp) dispatch(name, args string) error {
	if fn, ok := builtins[name]; ok {
		return fn(in, args)
	}
	if in.Macros != nil {
		if m := in.Macros.FindByName(name); m != nil {
			return in.CallMacro(m, splitParams(args))
		}
	}
	in.LastErr = "unknown command: /" + name
	in.defer_(Echo{Line: noteLine("% Unknown command: /" + name)})
	return nil
}

// splitParams splits macro-call arguments on whitespace.
func splitParams(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	return strings.Fields(args)
}

// EvalExpr parses and evaluates an expression string.
func (in *Interp) EvalExpr(src string) (Value, error) {
	e, err := parseExprString(src)
	if err != nil {
		return Value{}, err
	}
	return in.evalExpr(e)
}

func (in *Interp) evalExpr(e Expr) (Value, error) {
	switch ex := e.(type) {
	case IntLit:
		return IntValue(ex.V), nil
	case FloatLit:
		return FloatValue(ex.V), nil
	case StrLit:
		return StringValue(ex.V), nil

	case VarExpr:
		if v, ok := in.lookupVar(ex.Name); ok {
			return v, nil
		}
		in.noteUnknown(ex.Name)
		return StringValue(""), nil

	case PosExpr:
		text, err := in.expandPosSpec(ex.Spec)
		if err != nil {
			return Value{}, err
		}
		return StringValue(text), nil

	case UnaryExpr:
		v, err := in.evalExpr(ex.X)
		if err != nil {
			return Value{}, err
		}
		switch ex.Op {
		case "!":
			return boolValue(!v.Bool()), nil
		case "-":
			n := v.Num()
			if n.Kind() == KindFloat {
				return FloatValue(-n.Float()), nil
			}
			return IntValue(-n.Int()), nil
		}
		return Value{}, fmt.Errorf("unknown unary %q", ex.Op)

	case BinExpr:
		return in.evalBin(ex)

	case CallExpr:
		return in.callFunc(ex)
	}
	return Value{}, fmt.Errorf("unhandled expression %T", e)
}

func (in *Interp) evalBin(ex BinExpr) (Value, error) {
	// Short-circuit booleans first.
	switch ex.Op {
	case "&&":
		l, err := in.evalExpr(ex.L)
		if err != nil {
			return Value{}, err
		}
		if !l.Bool() {
			return boolValue(false), nil
		}
		r, err := in.evalExpr(ex.R)
		if err != nil {
			return Value{}, err
		}
		return boolValue(r.Bool()), nil
	case "||":
		l, err := in.evalExpr(ex.L)
		if err != nil {
			return Value{}, err
		}
		if l.Bool() {
			return boolValue(true), nil
		}
		r, err := in.evalExpr(ex.R)
		if err != nil {
			return Value{}, err
		}
		return boolValue(r.Bool()), nil
	}

	l, err := in.evalExpr(ex.L)
	if err != nil {
		return Value{}, err
	}
	r, err := in.evalExpr(ex.R)
	if err != nil {
		return Value{}, err
	}

	switch ex.Op {
	case "+", "-", "*", "/", "%":
		return arith(ex.Op, l, r)
	case "==", "!=", "<", ">", "<=", ">=":
		return compareNumeric(ex.Op, l, r), nil
	case "=~", "!~":
		return compareString(ex.Op, l, r), nil
	case ":":
		return StrValue(l.Str().Append(r.Str())), nil
	case "=/", "!/":
		// The right operand is compiled as a real regular expression;
		// substring search here would change the language.
		return in.regexMatch(ex.Op, l, r)
	}
	return Value{}, fmt.Errorf("unknown operator %q", ex.Op)
}

// regexMatch implements =/ and !/. On a match the capture groups are bound
// to P0..Pn in the current frame, as regmatch() does.
func (in *Interp) regexMatch(op string, l, r Value) (Value, error) {
	pat, err := pattern.Compile(pattern.Regexp, r.Text())
	if err != nil {
		return Value{}, err
	}
	spans, ok := pat.Captures(l.Text())
	if ok {
		in.bindCaptures(spans)
	}
	if op == "=/" {
		return boolValue(ok), nil
	}
	return boolValue(!ok), nil
}

func (in *Interp) bindCaptures(spans []pattern.Span) {
	f := in.currentFrame()
	for i, sp := range spans {
		f.locals[fmt.Sprintf("P%d", i)] = StringValue(sp.Text)
	}
}
