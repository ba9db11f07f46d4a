package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	scrollStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))
)

// View renders the status bar, the output region (split while scrolled
// back, with a live tail underneath) and the input line.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	status := m.renderStatus()
	output := m.renderOutput()
	inputLine := m.renderInput()

	view := lipgloss.JoinVertical(lipgloss.Left, status, output, inputLine)
	if m.bell {
		m.bell = false
		view += "\a"
	}
	return view
}

func (m *Model) renderStatus() string {
	worldName := m.current
	if worldName == "" {
		worldName = "no world"
	}
	left := statusStyle.Render(worldName)

	others := 0
	for name, cs := range m.conns {
		if name != m.current && cs.activity {
			others++
		}
	}
	if others > 0 {
		left += statusStyle.Render(fmt.Sprintf("(%d active)", others))
	}
	if m.screen.Scrolled() {
		left += scrollStyle.Render("MORE")
	}

	pad := m.width - lipgloss.Width(left)
	if pad < 0 {
		pad = 0
	}
	return left + strings.Repeat("─", pad)
}

func (m *Model) renderOutput() string {
	h := m.outputHeight()

	if !m.screen.Scrolled() {
		return pane(m.screen.View(h), h)
	}

	// Scrolled back: the anchored region keeps the top two thirds and a
	// live tail tracks new output below a divider.
	liveH := h / 3
	if liveH < 1 {
		liveH = 1
	}
	topH := h - liveH - 1

	top := pane(m.screen.View(topH), topH)
	divider := dividerStyle.Render(strings.Repeat("┈", m.width))

	m.liveVp.Width = m.width
	m.liveVp.Height = liveH
	var tail []string
	for _, line := range m.screen.Last(liveH) {
		tail = append(tail, line.Render())
	}
	m.liveVp.SetContent(strings.Join(tail, "\n"))
	m.liveVp.GotoBottom()

	return top + "\n" + divider + "\n" + m.liveVp.View()
}

// pane pads rendered rows to an exact height.
func pane(rows []string, h int) string {
	for len(rows) < h {
		rows = append([]string{""}, rows...)
	}
	return strings.Join(rows, "\n")
}

func (m *Model) renderInput() string {
	cs := m.conns[m.current]
	suppressed := cs != nil && cs.echoOff

	if suppressed {
		// Password mode: nothing echoes, not even a length.
		return m.prompt
	}

	head, tail, _ := m.editor.Sync()
	var cursor string
	if len(tail) > 0 {
		cursor = "\x1b[7m" + string([]rune(tail)[0]) + "\x1b[0m"
		tail = string([]rune(tail)[1:])
	} else {
		cursor = "\x1b[7m \x1b[0m"
	}
	return m.prompt + inputStyle.Render(head) + cursor + inputStyle.Render(tail)
}
