package script

import (
	"fmt"
	"strings"
	"time"

	"github.com/anicolao/gofugue/internal/pattern"
)

// callFunc evaluates a builtin function call. Arguments are evaluated
// eagerly left to right.
func (in *Interp) callFunc(ex CallExpr) (Value, error) {
	args := make([]Value, len(ex.Args))
	for i, a := range ex.Args {
		v, err := in.evalExpr(a)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}

	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: want %d args, got %d", ex.Name, n, len(args))
		}
		return nil
	}

	switch ex.Name {
	case "strlen":
		if err := want(1); err != nil {
			return Value{}, err
		}
		return IntValue(int64(args[0].Str().Len())), nil

	case "strcat":
		out := StringValue("").Str()
		for _, a := range args {
			out = out.Append(a.Str())
		}
		return StrValue(out), nil

	case "substr":
		if len(args) != 2 && len(args) != 3 {
			return Value{}, fmt.Errorf("substr: want 2 or 3 args")
		}
		s := args[0].Str()
		start := int(args[1].Int())
		if start < 0 {
			start = s.Len() + start
		}
		if start < 0 {
			start = 0
		}
		if start > s.Len() {
			start = s.Len()
		}
		end := s.Len()
		if len(args) == 3 {
			n := int(args[2].Int())
			if n < 0 {
				n = 0
			}
			if start+n < end {
				end = start + n
			}
		}
		return StrValue(s.Slice(start, end)), nil

	case "strstr":
		if err := want(2); err != nil {
			return Value{}, err
		}
		return IntValue(int64(strings.Index(args[0].Text(), args[1].Text()))), nil

	case "tolower":
		if err := want(1); err != nil {
			return Value{}, err
		}
		return StringValue(strings.ToLower(args[0].Text())), nil

	case "toupper":
		if err := want(1); err != nil {
			return Value{}, err
		}
		return StringValue(strings.ToUpper(args[0].Text())), nil

	case "replace":
		if err := want(3); err != nil {
			return Value{}, err
		}
		return StringValue(strings.ReplaceAll(args[2].Text(), args[0].Text(), args[1].Text())), nil

	case "trim":
		if err := want(1); err != nil {
			return Value{}, err
		}
		return StringValue(strings.TrimSpace(args[0].Text())), nil

	case "strrep":
		if err := want(2); err != nil {
			return Value{}, err
		}
		n := int(args[1].Int())
		if n < 0 {
			n = 0
		}
		return StringValue(strings.Repeat(args[0].Text(), n)), nil

	case "pad":
		if err := want(2); err != nil {
			return Value{}, err
		}
		w := int(args[1].Int())
		s := args[0].Text()
		for len(s) < w {
			s = " " + s
		}
		return StringValue(s), nil

	case "ascii":
		if err := want(1); err != nil {
			return Value{}, err
		}
		rs := args[0].Str().Runes()
		if len(rs) == 0 {
			return IntValue(0), nil
		}
		return IntValue(int64(rs[0])), nil

	case "char":
		if err := want(1); err != nil {
			return Value{}, err
		}
		return StringValue(string(rune(args[0].Int()))), nil

	case "abs":
		if err := want(1); err != nil {
			return Value{}, err
		}
		n := args[0].Num()
		if n.Kind() == KindFloat {
			f := n.Float()
			if f < 0 {
				f = -f
			}
			return FloatValue(f), nil
		}
		i := n.Int()
		if i < 0 {
			i = -i
		}
		return IntValue(i), nil

	case "min", "max":
		if len(args) == 0 {
			return Value{}, fmt.Errorf("%s: want at least one arg", ex.Name)
		}
		best := args[0]
		for _, a := range args[1:] {
			less := compareNumeric("<", a, best).Bool()
			if (ex.Name == "min") == less {
				best = a
			}
		}
		return best.Num(), nil

	case "mod":
		if err := want(2); err != nil {
			return Value{}, err
		}
		return arith("%", args[0], args[1])

	case "rand":
		switch len(args) {
		case 0:
			return IntValue(in.rng.Int63()), nil
		case 1:
			n := args[0].Int()
			if n <= 0 {
				return IntValue(0), nil
			}
			return IntValue(in.rng.Int63n(n)), nil
		case 2:
			lo, hi := args[0].Int(), args[1].Int()
			if hi < lo {
				lo, hi = hi, lo
			}
			return IntValue(lo + in.rng.Int63n(hi-lo+1)), nil
		}
		return Value{}, fmt.Errorf("rand: want 0-2 args")

	case "time":
		if err := want(0); err != nil {
			return Value{}, err
		}
		return IntValue(time.Now().Unix()), nil

	case "ftime":
		if len(args) > 1 {
			return Value{}, fmt.Errorf("ftime: want 0 or 1 args")
		}
		layout := "15:04:05"
		if len(args) == 1 {
			layout = args[0].Text()
		}
		return StringValue(time.Now().Format(layout)), nil

	case "columns", "lines":
		name := strings.ToUpper(ex.Name)
		if v, ok := in.globals[name]; ok {
			return v, nil
		}
		return IntValue(80), nil

	case "regmatch":
		if err := want(2); err != nil {
			return Value{}, err
		}
		pat, err := pattern.Compile(pattern.Regexp, args[0].Text())
		if err != nil {
			return Value{}, err
		}
		spans, ok := pat.Captures(args[1].Text())
		if ok {
			in.bindCaptures(spans)
		}
		return boolValue(ok), nil

	case "getopts":
		if len(args) != 1 && len(args) != 2 {
			return Value{}, fmt.Errorf("getopts: want 1 or 2 args")
		}
		defaults := ""
		if len(args) == 2 {
			defaults = args[1].Text()
		}
		return in.getopts(args[0].Text(), defaults)
	}

	return Value{}, fmt.Errorf("unknown function %s()", ex.Name)
}

// getopts parses -X and -Xarg options from the current frame's positional
// parameters. format is a run of option letters, each optionally followed
// by ':' when the option takes an argument. Matched options become opt_X
// locals; the frame's params are replaced with the remaining arguments.
// Returns 1 on success, 0 on an unknown option.
func (in *Interp) getopts(format, defaults string) (Value, error) {
	takesArg := make(map[byte]bool)
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == ':' {
			continue
		}
		takesArg[c] = i+1 < len(format) && format[i+1] == ':'
	}

	f := in.currentFrame()
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == ':' {
			continue
		}
		if takesArg[c] {
			f.locals["opt_"+string(c)] = StringValue(defaults)
		} else {
			f.locals["opt_"+string(c)] = IntValue(0)
		}
	}

	rest := f.params
	for len(rest) > 0 {
		p := rest[0]
		if len(p) < 2 || p[0] != '-' {
			break
		}
		if p == "--" {
			rest = rest[1:]
			break
		}
		c := p[1]
		wantsArg, known := takesArg[c]
		if !known {
			in.LastErr = fmt.Sprintf("illegal option -%c", c)
			return boolValue(false), nil
		}
		if wantsArg {
			f.locals["opt_"+string(c)] = StringValue(p[2:])
		} else {
			f.locals["opt_"+string(c)] = IntValue(1)
		}
		rest = rest[1:]
	}
	f.params = rest
	return boolValue(true), nil
}
