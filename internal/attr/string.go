package attr

import (
	"fmt"
	"strconv"
	"strings"
)

// String is a sequence of runes each carrying an Attr, plus an optional
// line-level attribute applied underneath every rune's own attribute.
// The attrs slice is either nil (every rune plain) or exactly as long as
// the rune slice; that invariant holds across every operation.
type String struct {
	runes []rune
	attrs []Attr // nil means all Empty
	Line  Attr   // line-level attribute
}

// NewString returns a plain attributed string.
func NewString(s string) String {
	return String{runes: []rune(s)}
}

// NewStringWith returns an attributed string with a uniform attribute.
func NewStringWith(s string, a Attr) String {
	runes := []rune(s)
	if a == Empty {
		return String{runes: runes}
	}
	attrs := make([]Attr, len(runes))
	for i := range attrs {
		attrs[i] = a
	}
	return String{runes: runes, attrs: attrs}
}

// Len returns the number of runes.
func (s String) Len() int { return len(s.runes) }

// Text returns the raw text without attributes.
func (s String) Text() string { return string(s.runes) }

// Runes returns the underlying rune slice. Callers must not modify it.
func (s String) Runes() []rune { return s.runes }

// AttrAt returns the effective attribute of the rune at i, with the
// line-level attribute merged underneath.
func (s String) AttrAt(i int) Attr {
	var a Attr
	if s.attrs != nil {
		a = s.attrs[i]
	}
	return s.Line.Merge(a)
}

// rawAttrAt returns the rune's own attribute without the line attribute.
func (s String) rawAttrAt(i int) Attr {
	if s.attrs == nil {
		return Empty
	}
	return s.attrs[i]
}

// Append concatenates other onto s. other's line attribute is folded into
// its runes so that s keeps a single line attribute.
func (s String) Append(other String) String {
	out := String{Line: s.Line}
	out.runes = append(append([]rune{}, s.runes...), other.runes...)
	if s.attrs == nil && other.attrs == nil && other.Line == Empty {
		return out
	}
	out.attrs = make([]Attr, 0, len(out.runes))
	for i := range s.runes {
		out.attrs = append(out.attrs, s.rawAttrAt(i))
	}
	for i := range other.runes {
		out.attrs = append(out.attrs, other.Line.Merge(other.rawAttrAt(i)))
	}
	return out
}

// Slice returns the half-open rune range [from, to).
func (s String) Slice(from, to int) String {
	out := String{runes: s.runes[from:to], Line: s.Line}
	if s.attrs != nil {
		out.attrs = s.attrs[from:to]
	}
	return out
}

// MergeLine layers a on top of the line-level attribute.
func (s *String) MergeLine(a Attr) {
	s.Line = s.Line.Merge(a)
}

// Render emits the string as ANSI text. Runs of equal attributes emit a
// single SGR sequence; a trailing reset is emitted only if anything was
// styled.
func (s String) Render() string {
	var b strings.Builder
	cur := Empty
	styled := false
	for i, r := range s.runes {
		a := s.AttrAt(i) &^ None
		if a != cur {
			if a == Empty {
				b.WriteString("\x1b[0m")
			} else {
				b.WriteString(a.SGR(false))
				styled = true
			}
			cur = a
		}
		b.WriteRune(r)
	}
	if cur != Empty && styled {
		b.WriteString("\x1b[0m")
	}
	return b.String()
}

// sgrToAttr applies a single SGR parameter to a, returning the new value.
func sgrToAttr(a Attr, code int) Attr {
	switch {
	case code == 0:
		return Empty
	case code == 1:
		return a | Bold
	case code == 2:
		return a | Dim
	case code == 3:
		return a | Italic
	case code == 4:
		return a | Underline
	case code == 7:
		return a | Reverse
	case code == 9:
		return a | Strike
	case code == 22:
		return a &^ (Bold | Dim)
	case code == 23:
		return a &^ Italic
	case code == 24:
		return a &^ Underline
	case code == 27:
		return a &^ Reverse
	case code == 29:
		return a &^ Strike
	case code >= 30 && code <= 37:
		return a.WithFg(FgBlack << (code - 30))
	case code == 39:
		return a &^ FgMask
	case code >= 40 && code <= 47:
		return a.WithBg(BgBlack << (code - 40))
	case code == 49:
		return a &^ BgMask
	case code >= 90 && code <= 97:
		// Bright foreground: rendered as bold + base color.
		return (a | Bold).WithFg(FgBlack << (code - 90))
	case code >= 100 && code <= 107:
		return a.WithBg(BgBlack << (code - 100))
	}
	// Unknown SGR parameters (256-color, truecolor, blink) are dropped.
	return a
}

// ParseANSI decodes raw server text into an attributed string. SGR
// sequences set attributes, other CSI and OSC sequences are stripped, and
// stray control bytes other than tab are discarded.
func ParseANSI(raw string) String {
	var out String
	cur := Empty
	rs := []rune(raw)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r != 0x1b {
			if r == '\t' || r >= 0x20 {
				out.runes = append(out.runes, r)
				out.attrs = append(out.attrs, cur)
			}
			continue
		}
		if i+1 >= len(rs) {
			break
		}
		switch rs[i+1] {
		case '[':
			// CSI: collect parameter bytes up to the final byte.
			j := i + 2
			for j < len(rs) && (rs[j] < 0x40 || rs[j] > 0x7e) {
				j++
			}
			if j >= len(rs) {
				i = len(rs)
				break
			}
			if rs[j] == 'm' {
				params := string(rs[i+2 : j])
				if params == "" {
					cur = Empty
				} else {
					parts := strings.Split(params, ";")
					for k := 0; k < len(parts); k++ {
						n, err := strconv.Atoi(parts[k])
						if err != nil {
							continue
						}
						if (n == 38 || n == 48) && k+1 < len(parts) {
							// Extended color: skip its sub-parameters.
							switch parts[k+1] {
							case "5":
								k += 2
							case "2":
								k += 4
							}
							continue
						}
						cur = sgrToAttr(cur, n)
					}
				}
			}
			i = j
		case ']':
			// OSC: strip through BEL or ST.
			j := i + 2
			for j < len(rs) && rs[j] != 0x07 && rs[j] != 0x1b {
				j++
			}
			if j < len(rs) && rs[j] == 0x1b && j+1 < len(rs) && rs[j+1] == '\\' {
				j++
			}
			i = j
		default:
			i++ // two-byte escape
		}
	}
	if allEmpty(out.attrs) {
		out.attrs = nil
	}
	return out
}

func allEmpty(attrs []Attr) bool {
	for _, a := range attrs {
		if a != Empty {
			return false
		}
	}
	return true
}

// ExpandMarkup parses TF-style @{...} markup into an attributed string.
// "@{Cred}danger@{n}" colors "danger" red; "@{@}" is a literal at sign.
// An unknown attribute name is an error naming the offending group.
func ExpandMarkup(s string) (String, error) {
	var out String
	cur := Empty
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r != '@' || i+1 >= len(rs) || rs[i+1] != '{' {
			out.runes = append(out.runes, r)
			out.attrs = append(out.attrs, cur)
			continue
		}
		end := -1
		for j := i + 2; j < len(rs); j++ {
			if rs[j] == '}' {
				end = j
				break
			}
		}
		if end < 0 {
			return String{}, fmt.Errorf("unterminated @{ in %q", s)
		}
		body := string(rs[i+2 : end])
		if body == "@" {
			out.runes = append(out.runes, '@')
			out.attrs = append(out.attrs, cur)
			i = end
			continue
		}
		a, err := parseMarkupAttr(body)
		if err != nil {
			return String{}, fmt.Errorf("bad markup @{%s}: %w", body, err)
		}
		if a.Has(None) {
			cur = Empty
		} else {
			cur = cur.Merge(a)
		}
		i = end
	}
	if allEmpty(out.attrs) {
		out.attrs = nil
	}
	return out, nil
}
