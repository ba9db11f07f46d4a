package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anicolao/gofugue/internal/attr"
)

// Kind tags a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindStr
)

// Value is the interpreter scalar: a tagged union of int, float and
// attributed string. Arithmetic coerces strings to numbers (non-numeric
// text coerces to 0); string operations render numbers in decimal form.
// Integer-preserving operations return KindInt.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    attr.String
}

// IntValue returns an integer value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue returns a float value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StrValue returns a string value carrying attributes.
func StrValue(s attr.String) Value { return Value{kind: KindStr, s: s} }

// StringValue returns a plain string value.
func StringValue(s string) Value { return Value{kind: KindStr, s: attr.NewString(s)} }

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNumeric reports whether the value is an int or float.
func (v Value) IsNumeric() bool { return v.kind != KindStr }

// Int coerces to int64.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	}
	n, _ := parseLeadingNumber(v.s.Text())
	return n.Int()
}

// Float coerces to float64.
func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	}
	n, _ := parseLeadingNumber(v.s.Text())
	return n.Float()
}

// Num coerces a string value to its numeric form; numbers pass through.
func (v Value) Num() Value {
	if v.kind != KindStr {
		return v
	}
	n, _ := parseLeadingNumber(v.s.Text())
	return n
}

// Text renders the value as a plain string.
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	}
	return v.s.Text()
}

// Str renders the value as an attributed string.
func (v Value) Str() attr.String {
	if v.kind == KindStr {
		return v.s
	}
	return attr.NewString(v.Text())
}

// Bool is the truth value: the numeric coercion compared against zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	}
	n, ok := parseLeadingNumber(v.s.Text())
	if !ok {
		// Non-numeric text: truthy when non-empty, matching /if ("yes").
		return v.s.Len() > 0
	}
	return n.Bool()
}

// parseLeadingNumber reads a leading int or float from s. It returns the
// parsed value and whether any digits were consumed; no digits yields
// (0, false).
func parseLeadingNumber(s string) (Value, bool) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	intEnd := i
	isFloat := false
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > i+1 {
			isFloat = true
			i = j
		}
	}
	if intEnd == start && !isFloat {
		return IntValue(0), false
	}
	if isFloat {
		f, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return IntValue(0), false
		}
		return FloatValue(f), true
	}
	n, err := strconv.ParseInt(s[:intEnd], 10, 64)
	if err != nil {
		return IntValue(0), false
	}
	return IntValue(n), true
}

// formatFloat renders a float the way the scripting language prints them:
// shortest representation, with a trailing ".0" kept for whole values so
// the float-ness remains visible.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// numericPair coerces both operands for arithmetic, reporting whether both
// sides stayed integral.
func numericPair(a, b Value) (Value, Value, bool) {
	a, b = a.Num(), b.Num()
	bothInt := a.kind == KindInt && b.kind == KindInt
	return a, b, bothInt
}

// arith applies an arithmetic operator with int preservation.
func arith(op string, a, b Value) (Value, error) {
	x, y, bothInt := numericPair(a, b)
	if bothInt {
		switch op {
		case "+":
			return IntValue(x.i + y.i), nil
		case "-":
			return IntValue(x.i - y.i), nil
		case "*":
			return IntValue(x.i * y.i), nil
		case "/":
			if y.i == 0 {
				return Value{}, fmt.Errorf("division by zero")
			}
			return IntValue(x.i / y.i), nil
		case "%":
			if y.i == 0 {
				return Value{}, fmt.Errorf("division by zero")
			}
			return IntValue(x.i % y.i), nil
		}
	}
	xf, yf := x.Float(), y.Float()
	switch op {
	case "+":
		return FloatValue(xf + yf), nil
	case "-":
		return FloatValue(xf - yf), nil
	case "*":
		return FloatValue(xf * yf), nil
	case "/":
		if yf == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return FloatValue(xf / yf), nil
	case "%":
		if yf == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(x.Int() % y.Int()), nil
	}
	return Value{}, fmt.Errorf("unknown operator %q", op)
}

// compareNumeric applies <, >, <=, >=, ==, != with numeric coercion.
func compareNumeric(op string, a, b Value) Value {
	x, y, bothInt := numericPair(a, b)
	var cmp int
	if bothInt {
		switch {
		case x.i < y.i:
			cmp = -1
		case x.i > y.i:
			cmp = 1
		}
	} else {
		xf, yf := x.Float(), y.Float()
		switch {
		case xf < yf:
			cmp = -1
		case xf > yf:
			cmp = 1
		}
	}
	return boolValue(applyCmp(op, cmp))
}

// compareString applies =~ and !~ (exact string comparison).
func compareString(op string, a, b Value) Value {
	eq := a.Text() == b.Text()
	if op == "=~" {
		return boolValue(eq)
	}
	return boolValue(!eq)
}

func applyCmp(op string, cmp int) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}
