// Package screen models the output area as logical lines (one per server
// line) that wrap into physical rows. Scrollback is anchored to a logical
// line, so new output and re-wrapping never move the view the user is
// reading.
package screen

import (
	"github.com/mattn/go-runewidth"

	"github.com/anicolao/gofugue/internal/attr"
)

// logicalLine is one pushed line plus its cached wrapping.
type logicalLine struct {
	text attr.String
	phys [][2]int // [start, end) rune ranges of each physical row
}

// Screen holds the scrollback. The anchor, when active, names the
// absolute index of the logical line shown at the top of the view and a
// physical offset within it; absolute indices survive trimming.
type Screen struct {
	lines     []logicalLine
	width     int
	maxLines  int
	totalPhys int
	base      int // absolute index of lines[0]

	anchored   bool
	anchorLine int // absolute logical index
	anchorOff  int // physical row within that line
}

// New returns a screen wrapping at width and keeping at most maxLines
// logical lines.
func New(width, maxLines int) *Screen {
	if width < 1 {
		width = 1
	}
	return &Screen{width: width, maxLines: maxLines}
}

// Width returns the wrap width.
func (s *Screen) Width() int { return s.width }

// Len returns the number of logical lines held.
func (s *Screen) Len() int { return len(s.lines) }

// PhysLen returns the total number of physical rows.
func (s *Screen) PhysLen() int { return s.totalPhys }

// Scrolled reports whether the view is anchored in scrollback.
func (s *Screen) Scrolled() bool { return s.anchored }

// Push appends one logical line, trimming the oldest lines past maxLines.
// An anchored view does not move.
func (s *Screen) Push(text attr.String) {
	ll := logicalLine{text: text, phys: wrapRanges(text, s.width)}
	s.lines = append(s.lines, ll)
	s.totalPhys += len(ll.phys)
	if s.maxLines > 0 && len(s.lines) > s.maxLines {
		s.trim(len(s.lines) - s.maxLines)
	}
}

// trim drops the oldest n logical lines. Cost is proportional to the
// dropped lines' physical rows, independent of how many remain.
func (s *Screen) trim(n int) {
	if n <= 0 {
		return
	}
	if n > len(s.lines) {
		n = len(s.lines)
	}
	for i := 0; i < n; i++ {
		s.totalPhys -= len(s.lines[i].phys)
	}
	s.lines = s.lines[n:]
	s.base += n
	if s.anchored && s.anchorLine < s.base {
		s.anchorLine = s.base
		s.anchorOff = 0
	}
}

// TrimTo shrinks the scrollback to at most max logical lines.
func (s *Screen) TrimTo(max int) {
	if max >= 0 && len(s.lines) > max {
		s.trim(len(s.lines) - max)
	}
}

// SetWidth re-wraps every line at the new width. The anchored logical
// line stays anchored; its physical offset is clamped to the new wrap.
func (s *Screen) SetWidth(width int) {
	if width < 1 {
		width = 1
	}
	if width == s.width {
		return
	}
	s.width = width
	s.totalPhys = 0
	for i := range s.lines {
		s.lines[i].phys = wrapRanges(s.lines[i].text, width)
		s.totalPhys += len(s.lines[i].phys)
	}
	if s.anchored {
		if ll := s.line(s.anchorLine); ll != nil && s.anchorOff >= len(ll.phys) {
			s.anchorOff = len(ll.phys) - 1
		}
	}
}

// line returns the logical line at an absolute index, or nil.
func (s *Screen) line(abs int) *logicalLine {
	i := abs - s.base
	if i < 0 || i >= len(s.lines) {
		return nil
	}
	return &s.lines[i]
}

// AnchorLine returns the absolute index of the anchored logical line, or
// -1 when pinned to the bottom.
func (s *Screen) AnchorLine() int {
	if !s.anchored {
		return -1
	}
	return s.anchorLine
}

// ScrollBack moves the view up by n physical rows, anchoring it if it was
// at the bottom. viewHeight is needed to place the initial anchor.
func (s *Screen) ScrollBack(n, viewHeight int) {
	if len(s.lines) == 0 || n <= 0 {
		return
	}
	if !s.anchored {
		// Anchor at the current top of the view.
		line, off := s.rowAt(s.totalPhys - viewHeight)
		s.anchored = true
		s.anchorLine = line
		s.anchorOff = off
	}
	line, off := s.anchorLine, s.anchorOff
	for n > 0 {
		if off > 0 {
			off--
			n--
			continue
		}
		if line <= s.base {
			break
		}
		line--
		off = len(s.line(line).phys) - 1
		n--
	}
	s.anchorLine, s.anchorOff = line, off
}

// ScrollForward moves the view down by n physical rows, releasing the
// anchor when it reaches the bottom.
func (s *Screen) ScrollForward(n, viewHeight int) {
	if !s.anchored || n <= 0 {
		return
	}
	line, off := s.anchorLine, s.anchorOff
	for n > 0 {
		ll := s.line(line)
		if ll == nil {
			break
		}
		if off+1 < len(ll.phys) {
			off++
		} else if s.line(line+1) != nil {
			line++
			off = 0
		} else {
			break
		}
		n--
	}
	s.anchorLine, s.anchorOff = line, off
	// Release the anchor when the view bottom reaches the content bottom.
	if s.rowIndex(line, off)+viewHeight >= s.totalPhys {
		s.ScrollToBottom()
	}
}

// ScrollToBottom releases the anchor.
func (s *Screen) ScrollToBottom() {
	s.anchored = false
}

// rowAt maps a global physical row index to (absolute line, offset).
func (s *Screen) rowAt(row int) (int, int) {
	if row < 0 {
		row = 0
	}
	acc := 0
	for i := range s.lines {
		n := len(s.lines[i].phys)
		if row < acc+n {
			return s.base + i, row - acc
		}
		acc += n
	}
	if len(s.lines) == 0 {
		return s.base, 0
	}
	last := len(s.lines) - 1
	return s.base + last, len(s.lines[last].phys) - 1
}

// rowIndex is the inverse of rowAt.
func (s *Screen) rowIndex(absLine, off int) int {
	acc := 0
	for i := range s.lines {
		if s.base+i == absLine {
			return acc + off
		}
		acc += len(s.lines[i].phys)
	}
	return acc
}

// View renders height physical rows as ANSI strings, from the anchor when
// scrolled, else the bottom of the content. Short content yields fewer
// rows.
func (s *Screen) View(height int) []string {
	if height <= 0 || len(s.lines) == 0 {
		return nil
	}
	start := s.totalPhys - height
	if s.anchored {
		start = s.rowIndex(s.anchorLine, s.anchorOff)
	}
	if start < 0 {
		start = 0
	}

	out := make([]string, 0, height)
	line, off := s.rowAt(start)
	for len(out) < height {
		ll := s.line(line)
		if ll == nil {
			break
		}
		r := ll.phys[off]
		out = append(out, ll.text.Slice(r[0], r[1]).Render())
		if off+1 < len(ll.phys) {
			off++
		} else {
			line++
			off = 0
		}
	}
	return out
}

// Last returns up to n of the most recent logical lines, oldest first.
func (s *Screen) Last(n int) []attr.String {
	if n > len(s.lines) {
		n = len(s.lines)
	}
	out := make([]attr.String, 0, n)
	for _, ll := range s.lines[len(s.lines)-n:] {
		out = append(out, ll.text)
	}
	return out
}

// wrapRanges hard-wraps text into rune ranges no wider than width
// terminal cells. Every line has at least one row, so blank lines occupy
// a row.
func wrapRanges(text attr.String, width int) [][2]int {
	runes := text.Runes()
	if len(runes) == 0 {
		return [][2]int{{0, 0}}
	}
	var out [][2]int
	start := 0
	cells := 0
	for i, r := range runes {
		w := runewidth.RuneWidth(r)
		if cells+w > width && i > start {
			out = append(out, [2]int{start, i})
			start = i
			cells = 0
		}
		cells += w
	}
	out = append(out, [2]int{start, len(runes)})
	return out
}
