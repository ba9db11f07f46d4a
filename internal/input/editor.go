// Package input owns the command line being edited: buffer, cursor,
// history navigation and the kill/yank ring. The scripting layer sees the
// editor through the (head, tail, point) triple, re-synced after every
// keystroke.
package input

import "unicode"

// killRingSize bounds the kill ring.
const killRingSize = 32

// Editor is the line editor state. The rendered text is cached and the
// cache is invalidated on every mutation.
type Editor struct {
	buf   []rune
	point int

	hist      *History
	histIndex int // -1 when not navigating
	histSaved string

	killRing []string

	cached     string
	cacheValid bool
}

// NewEditor returns an editor using hist for persistent history; hist may
// be nil for a transient editor.
func NewEditor(hist *History) *Editor {
	if hist == nil {
		hist = NewHistory()
	}
	return &Editor{hist: hist, histIndex: -1}
}

// Text returns the buffer as a string, cached until the next mutation.
func (e *Editor) Text() string {
	if !e.cacheValid {
		e.cached = string(e.buf)
		e.cacheValid = true
	}
	return e.cached
}

// Len returns the buffer length in runes.
func (e *Editor) Len() int { return len(e.buf) }

// Point returns the cursor position in runes.
func (e *Editor) Point() int { return e.point }

// Sync returns the (head, tail, point) triple the interpreter publishes
// as kbhead, kbtail and kbpoint.
func (e *Editor) Sync() (head, tail string, point int) {
	return string(e.buf[:e.point]), string(e.buf[e.point:]), e.point
}

func (e *Editor) dirty() {
	e.cacheValid = false
	e.histIndex = -1
	e.histSaved = ""
}

// Set replaces the buffer and moves the cursor to the end.
func (e *Editor) Set(text string) {
	e.buf = []rune(text)
	e.point = len(e.buf)
	e.dirty()
}

// Insert adds text at the cursor.
func (e *Editor) Insert(text string) {
	rs := []rune(text)
	e.buf = append(e.buf[:e.point], append(append([]rune{}, rs...), e.buf[e.point:]...)...)
	e.point += len(rs)
	e.dirty()
}

// Backspace removes the rune before the cursor.
func (e *Editor) Backspace() {
	if e.point == 0 {
		return
	}
	e.buf = append(e.buf[:e.point-1], e.buf[e.point:]...)
	e.point--
	e.dirty()
}

// Delete removes the rune under the cursor.
func (e *Editor) Delete() {
	if e.point >= len(e.buf) {
		return
	}
	e.buf = append(e.buf[:e.point], e.buf[e.point+1:]...)
	e.dirty()
}

// Left moves the cursor one rune left.
func (e *Editor) Left() {
	if e.point > 0 {
		e.point--
	}
}

// Right moves the cursor one rune right.
func (e *Editor) Right() {
	if e.point < len(e.buf) {
		e.point++
	}
}

// Home moves the cursor to the start.
func (e *Editor) Home() { e.point = 0 }

// End moves the cursor to the end.
func (e *Editor) End() { e.point = len(e.buf) }

// WordLeft moves to the start of the previous word.
func (e *Editor) WordLeft() {
	for e.point > 0 && unicode.IsSpace(e.buf[e.point-1]) {
		e.point--
	}
	for e.point > 0 && !unicode.IsSpace(e.buf[e.point-1]) {
		e.point--
	}
}

// WordRight moves past the end of the next word.
func (e *Editor) WordRight() {
	for e.point < len(e.buf) && unicode.IsSpace(e.buf[e.point]) {
		e.point++
	}
	for e.point < len(e.buf) && !unicode.IsSpace(e.buf[e.point]) {
		e.point++
	}
}

// kill removes [from, to) into the kill ring.
func (e *Editor) kill(from, to int) {
	if from >= to {
		return
	}
	e.pushKill(string(e.buf[from:to]))
	e.buf = append(e.buf[:from], e.buf[to:]...)
	e.point = from
	e.dirty()
}

func (e *Editor) pushKill(text string) {
	e.killRing = append(e.killRing, text)
	if len(e.killRing) > killRingSize {
		e.killRing = e.killRing[1:]
	}
}

// KillToEnd kills from the cursor to the end of the line.
func (e *Editor) KillToEnd() { e.kill(e.point, len(e.buf)) }

// KillToStart kills from the start of the line to the cursor.
func (e *Editor) KillToStart() { e.kill(0, e.point) }

// KillWordBack kills the word before the cursor.
func (e *Editor) KillWordBack() {
	end := e.point
	e.WordLeft()
	e.kill(e.point, end)
}

// Yank inserts the most recent kill at the cursor.
func (e *Editor) Yank() {
	if len(e.killRing) == 0 {
		return
	}
	e.Insert(e.killRing[len(e.killRing)-1])
}

// HistoryPrev replaces the buffer with the previous history entry, saving
// the in-progress line the first time.
func (e *Editor) HistoryPrev() {
	if e.hist.Len() == 0 {
		return
	}
	if e.histIndex == -1 {
		e.histSaved = e.Text()
		e.histIndex = e.hist.Len()
	}
	if e.histIndex > 0 {
		e.histIndex--
		e.setPreservingHistory(e.hist.At(e.histIndex))
	}
}

// HistoryNext moves toward the present, restoring the saved line past the
// newest entry.
func (e *Editor) HistoryNext() {
	if e.histIndex == -1 {
		return
	}
	e.histIndex++
	if e.histIndex >= e.hist.Len() {
		saved := e.histSaved
		e.setPreservingHistory(saved)
		e.histIndex = -1
		e.histSaved = ""
		return
	}
	e.setPreservingHistory(e.hist.At(e.histIndex))
}

// setPreservingHistory swaps the buffer without resetting navigation.
func (e *Editor) setPreservingHistory(text string) {
	idx, saved := e.histIndex, e.histSaved
	e.Set(text)
	e.histIndex, e.histSaved = idx, saved
}

// Submit returns the finished line, records it in history and clears the
// buffer.
func (e *Editor) Submit() string {
	line := e.Text()
	if line != "" {
		e.hist.Add(line)
	}
	e.Set("")
	return line
}

// History exposes the backing history (for persistence at shutdown).
func (e *Editor) History() *History { return e.hist }

// Do performs a named editor operation, the shared vocabulary of key
// bindings and /dokey. It reports whether the name was recognized.
func (e *Editor) Do(op string) bool {
	switch op {
	case "left":
		e.Left()
	case "right":
		e.Right()
	case "home":
		e.Home()
	case "end":
		e.End()
	case "word-left":
		e.WordLeft()
	case "word-right":
		e.WordRight()
	case "bs":
		e.Backspace()
	case "del":
		e.Delete()
	case "kill-line":
		e.KillToEnd()
	case "kill-to-start":
		e.KillToStart()
	case "kill-word":
		e.KillWordBack()
	case "yank":
		e.Yank()
	case "hist-prev":
		e.HistoryPrev()
	case "hist-next":
		e.HistoryNext()
	default:
		return false
	}
	return true
}
