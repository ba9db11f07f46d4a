package attr

import (
	"fmt"
	"strings"
)

// Attr is a packed bitset of display attributes. The zero value Empty means
// "unset, inherit from context"; the None bit means "explicitly reset to
// plain". The two are distinct everywhere: merging Empty over an attribute
// leaves it alone, merging None over it clears it.
type Attr uint32

const (
	Bold Attr = 1 << iota
	Dim
	Underline
	Italic
	Reverse
	Strike
	None // explicit reset; not the same as Empty

	FgBlack
	FgRed
	FgGreen
	FgYellow
	FgBlue
	FgMagenta
	FgCyan
	FgWhite

	BgBlack
	BgRed
	BgGreen
	BgYellow
	BgBlue
	BgMagenta
	BgCyan
	BgWhite
)

// Empty is the unset attribute.
const Empty Attr = 0

// Masks over the color portions of the bitset.
const (
	FgMask = FgBlack | FgRed | FgGreen | FgYellow | FgBlue | FgMagenta | FgCyan | FgWhite
	BgMask = BgBlack | BgRed | BgGreen | BgYellow | BgBlue | BgMagenta | BgCyan | BgWhite
)

// All is the OR of every named variant, including None. It is built from the
// names rather than from a max value so that adding a variant keeps it exact.
const All = Bold | Dim | Underline | Italic | Reverse | Strike | None | FgMask | BgMask

// styleMask covers the non-color, non-None style bits.
const styleMask = Bold | Dim | Underline | Italic | Reverse | Strike

// Has reports whether every bit of b is set in a.
func (a Attr) Has(b Attr) bool { return a&b == b }

// Fg returns the foreground bits of a.
func (a Attr) Fg() Attr { return a & FgMask }

// Bg returns the background bits of a.
func (a Attr) Bg() Attr { return a & BgMask }

// WithFg returns a with its foreground replaced by fg (one FgMask bit).
func (a Attr) WithFg(fg Attr) Attr { return (a &^ FgMask) | (fg & FgMask) }

// WithBg returns a with its background replaced by bg (one BgMask bit).
func (a Attr) WithBg(bg Attr) Attr { return (a &^ BgMask) | (bg & BgMask) }

// Merge layers other on top of a. Empty leaves a unchanged; None resets
// everything below it; set fields in other win over a's.
func (a Attr) Merge(other Attr) Attr {
	if other == Empty {
		return a
	}
	if other.Has(None) {
		// Explicit reset: anything or'd in alongside None still applies.
		return other &^ None
	}
	out := a
	if other&FgMask != 0 {
		out = out.WithFg(other)
	}
	if other&BgMask != 0 {
		out = out.WithBg(other)
	}
	out |= other & styleMask
	return out
}

// fgCode maps a foreground bit to its SGR parameter.
var fgCode = map[Attr]string{
	FgBlack: "30", FgRed: "31", FgGreen: "32", FgYellow: "33",
	FgBlue: "34", FgMagenta: "35", FgCyan: "36", FgWhite: "37",
}

var bgCode = map[Attr]string{
	BgBlack: "40", BgRed: "41", BgGreen: "42", BgYellow: "43",
	BgBlue: "44", BgMagenta: "45", BgCyan: "46", BgWhite: "47",
}

// SGR returns the escape sequence that establishes a from a plain terminal.
// Empty and bare None both return the reset sequence when force is set, and
// "" otherwise.
func (a Attr) SGR(force bool) string {
	eff := a &^ None
	if eff == Empty {
		if force {
			return "\x1b[0m"
		}
		return ""
	}
	params := []string{"0"}
	if eff.Has(Bold) {
		params = append(params, "1")
	}
	if eff.Has(Dim) {
		params = append(params, "2")
	}
	if eff.Has(Italic) {
		params = append(params, "3")
	}
	if eff.Has(Underline) {
		params = append(params, "4")
	}
	if eff.Has(Reverse) {
		params = append(params, "7")
	}
	if eff.Has(Strike) {
		params = append(params, "9")
	}
	if fg := eff.Fg(); fg != 0 {
		params = append(params, fgCode[fg])
	}
	if bg := eff.Bg(); bg != 0 {
		params = append(params, bgCode[bg])
	}
	return "\x1b[" + strings.Join(params, ";") + "m"
}

// colorNames maps markup color names to foreground bits.
var colorNames = map[string]Attr{
	"black": FgBlack, "red": FgRed, "green": FgGreen, "yellow": FgYellow,
	"blue": FgBlue, "magenta": FgMagenta, "cyan": FgCyan, "white": FgWhite,
}

// parseMarkupAttr parses the inside of a @{...} markup group, e.g. "B",
// "Cred", "Cbgblue", "n". Multiple letters combine: "Bu" is bold underline.
func parseMarkupAttr(s string) (Attr, error) {
	var a Attr
	rest := s
	for rest != "" {
		switch {
		case rest[0] == 'C':
			name := strings.ToLower(rest[1:])
			if bg, ok := strings.CutPrefix(name, "bg"); ok {
				c, found := colorNames[bg]
				if !found {
					return 0, fmt.Errorf("unknown color %q", bg)
				}
				// Shift the fg bit into the bg range.
				a = a.WithBg(c << 8)
			} else {
				c, found := colorNames[name]
				if !found {
					return 0, fmt.Errorf("unknown color %q", name)
				}
				a = a.WithFg(c)
			}
			rest = ""
		case rest[0] == 'B':
			a |= Bold
			rest = rest[1:]
		case rest[0] == 'd':
			a |= Dim
			rest = rest[1:]
		case rest[0] == 'u':
			a |= Underline
			rest = rest[1:]
		case rest[0] == 'i':
			a |= Italic
			rest = rest[1:]
		case rest[0] == 'r':
			a |= Reverse
			rest = rest[1:]
		case rest[0] == 's':
			a |= Strike
			rest = rest[1:]
		case rest[0] == 'n':
			a |= None
			rest = rest[1:]
		default:
			return 0, fmt.Errorf("unknown attribute %q", string(rest[0]))
		}
	}
	return a, nil
}
