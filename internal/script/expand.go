package script

import (
	"os"
	"strconv"
	"strings"
)

// Expand performs the substitution pass that runs before a statement is
// dispatched: %name / %{name} / ${name} variables (with %{name-default}
// fallbacks), {n}-style positional parameters, $[expr] inline expressions
// and %% escapes. Defaults may nest braces; the scan is depth-tracked.
func (in *Interp) Expand(text string) (string, error) {
	var b strings.Builder
	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch r {
		case '%':
			if i+1 >= len(rs) {
				b.WriteRune(r)
				continue
			}
			next := rs[i+1]
			switch {
			case next == '%':
				b.WriteRune('%')
				i++
			case next == '{':
				body, end, ok := scanBraced(rs, i+1)
				if !ok {
					b.WriteRune(r)
					continue
				}
				val, err := in.expandVarSpec(body)
				if err != nil {
					return "", err
				}
				b.WriteString(val)
				i = end
			case isIdentStart(next):
				j := i + 1
				for j < len(rs) && isIdentPart(rs[j]) {
					j++
				}
				b.WriteString(in.lookupVarText(string(rs[i+1 : j])))
				i = j - 1
			default:
				b.WriteRune(r)
			}
		case '$':
			if i+1 >= len(rs) {
				b.WriteRune(r)
				continue
			}
			switch rs[i+1] {
			case '[':
				body, end, ok := scanBracket(rs, i+1)
				if !ok {
					b.WriteRune(r)
					continue
				}
				v, err := in.EvalExpr(body)
				if err != nil {
					return "", err
				}
				b.WriteString(v.Text())
				i = end
			case '{':
				body, end, ok := scanBraced(rs, i+1)
				if !ok {
					b.WriteRune(r)
					continue
				}
				val, err := in.expandVarSpec(body)
				if err != nil {
					return "", err
				}
				b.WriteString(val)
				i = end
			default:
				b.WriteRune(r)
			}
		case '{':
			body, end, ok := scanBraced(rs, i)
			if !ok {
				b.WriteRune(r)
				continue
			}
			val, err := in.expandPosSpec(body)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i = end
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// scanBraced reads a {...} group starting at rs[open] == '{', returning
// the body, the index of the closing brace, and whether it closed.
func scanBraced(rs []rune, open int) (string, int, bool) {
	depth := 0
	for i := open; i < len(rs); i++ {
		switch rs[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return string(rs[open+1 : i]), i, true
			}
		}
	}
	return "", 0, false
}

func scanBracket(rs []rune, open int) (string, int, bool) {
	depth := 0
	for i := open; i < len(rs); i++ {
		switch rs[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return string(rs[open+1 : i]), i, true
			}
		}
	}
	return "", 0, false
}

// splitDefault splits "name-default" at the first top-level dash.
func splitDefault(spec string) (string, string, bool) {
	depth := 0
	for i, r := range spec {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case '-':
			if depth == 0 && i > 0 {
				return spec[:i], spec[i+1:], true
			}
		}
	}
	return spec, "", false
}

// expandVarSpec resolves a %{...} body: a variable name with an optional
// default, which is itself expanded.
func (in *Interp) expandVarSpec(spec string) (string, error) {
	name, def, hasDef := splitDefault(spec)
	if v, ok := in.lookupVar(name); ok {
		return v.Text(), nil
	}
	if hasDef {
		return in.Expand(def)
	}
	in.noteUnknown(name)
	return "", nil
}

// expandPosSpec resolves a {...} body: positional parameters, parameter
// counts, or a named variable with default.
func (in *Interp) expandPosSpec(spec string) (string, error) {
	f := in.currentFrame()

	// {*}: every parameter.
	if spec == "*" {
		return strings.Join(f.params, " "), nil
	}
	// {#}: parameter count.
	if spec == "#" {
		return strconv.Itoa(len(f.params)), nil
	}
	// {0}: the macro's own name.
	if spec == "0" {
		return f.macroName, nil
	}

	base, def, hasDef := splitDefault(spec)
	expandDefault := func() (string, error) {
		if hasDef {
			return in.Expand(def)
		}
		return "", nil
	}

	// {L}, {L2}: from the end.
	if strings.HasPrefix(base, "L") {
		n := 1
		if len(base) > 1 {
			v, err := strconv.Atoi(base[1:])
			if err != nil {
				return in.lookupPosVar(spec)
			}
			n = v
		}
		if n < 1 || n > len(f.params) {
			return expandDefault()
		}
		return f.params[len(f.params)-n], nil
	}

	// {-n}: everything after the first n.
	if strings.HasPrefix(base, "-") {
		n, err := strconv.Atoi(base[1:])
		if err != nil || n < 0 {
			return in.lookupPosVar(spec)
		}
		if n >= len(f.params) {
			return expandDefault()
		}
		return strings.Join(f.params[n:], " "), nil
	}

	// {n}: the nth parameter.
	if n, err := strconv.Atoi(base); err == nil {
		if n < 1 || n > len(f.params) {
			return expandDefault()
		}
		return f.params[n-1], nil
	}

	// {name} or {name-default}: variable lookup.
	if v, ok := in.lookupVar(base); ok {
		return v.Text(), nil
	}
	if hasDef {
		return in.Expand(def)
	}
	in.noteUnknown(base)
	return "", nil
}

// lookupPosVar handles specs like {L-default} where the base failed to
// parse as a positional form and falls back to variable semantics.
func (in *Interp) lookupPosVar(spec string) (string, error) {
	return in.expandVarSpec(spec)
}

// lookupVar resolves a name through the frame stack, then globals, then
// the process environment. lasterr reads the interpreter's error slot.
func (in *Interp) lookupVar(name string) (Value, bool) {
	if name == "lasterr" {
		return StringValue(in.LastErr), true
	}
	for i := len(in.frames) - 1; i >= 0; i-- {
		if v, ok := in.frames[i].locals[name]; ok {
			return v, true
		}
	}
	if v, ok := in.globals[name]; ok {
		return v, true
	}
	if env, ok := os.LookupEnv(name); ok {
		return StringValue(env), true
	}
	return Value{}, false
}

func (in *Interp) lookupVarText(name string) string {
	if v, ok := in.lookupVar(name); ok {
		return v.Text()
	}
	in.noteUnknown(name)
	return ""
}

// noteUnknown records an unknown-variable expansion for %lasterr without
// aborting the statement.
func (in *Interp) noteUnknown(name string) {
	in.LastErr = "unknown variable: " + name
}
