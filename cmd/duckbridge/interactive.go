package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lakebed/duckbridge/bridge"
	"github.com/lakebed/duckbridge/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#D99A2B")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	cellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DDDDDD"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type shellModel struct {
	sup     *bridge.Supervisor
	input   textinput.Model
	width   int
	history []string
	histPos int
	running bool
	started time.Time
	output  string
	errText string
}

type queryDoneMsg struct {
	rs      *session.RowSet
	err     error
	elapsed time.Duration
}

func runInteractive(sup *bridge.Supervisor) error {
	ti := textinput.New()
	ti.Placeholder = "SELECT ..."
	ti.Prompt = "sql> "
	ti.Focus()

	m := shellModel{sup: sup, input: ti, width: outputWidth()}
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m shellModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.running {
				// First interrupt cancels the in-flight query.
				m.sup.CancelQuery(context.Background())
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp:
			if m.histPos > 0 {
				m.histPos--
				m.input.SetValue(m.history[m.histPos])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.histPos < len(m.history) {
				m.histPos++
				if m.histPos == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.histPos])
					m.input.CursorEnd()
				}
			}
			return m, nil
		case tea.KeyEnter:
			sql := strings.TrimSpace(m.input.Value())
			if sql == "" {
				return m, nil
			}
			m.history = append(m.history, sql)
			m.histPos = len(m.history)
			m.input.SetValue("")
			m.running = true
			m.started = time.Now()
			m.errText = ""
			sup := m.sup
			start := m.started
			return m, func() tea.Msg {
				rs, err := sup.Query(context.Background(), sql)
				return queryDoneMsg{rs: rs, err: err, elapsed: time.Since(start)}
			}
		}

	case queryDoneMsg:
		m.running = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			m.output = ""
			return m, nil
		}
		m.output = renderTable(msg.rs, m.width) + "\n" +
			resultStyle.Render(fmt.Sprintf("%d row(s) in %s", len(msg.rs.Rows), msg.elapsed.Round(time.Millisecond)))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m shellModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("duckbridge"))
	b.WriteString("\n\n")

	if m.output != "" {
		b.WriteString(m.output)
		b.WriteString("\n\n")
	}
	if m.errText != "" {
		b.WriteString(errorStyle.Render(m.errText))
		b.WriteString("\n\n")
	}
	if m.running {
		b.WriteString(helpStyle.Render(fmt.Sprintf("running... %s (ctrl+c cancels)", time.Since(m.started).Round(time.Second))))
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: run · up/down: history · ctrl+c: cancel/quit"))
	return b.String()
}

// renderTable lays a row set out as a fixed-width table clamped to the
// given terminal width.
func renderTable(rs *session.RowSet, width int) string {
	if len(rs.Columns) == 0 {
		return helpStyle.Render("(empty result)")
	}

	widths := make([]int, len(rs.Columns))
	for i, c := range rs.Columns {
		widths[i] = len(c)
	}
	const maxRows = 200
	rows := rs.Rows
	truncated := false
	if len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}
	for _, row := range rows {
		for i, c := range rs.Columns {
			if n := len(row[c]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	const maxCell = 40
	for i := range widths {
		if widths[i] > maxCell {
			widths[i] = maxCell
		}
	}

	// Drop columns that would overflow the terminal rather than wrap.
	shown := len(rs.Columns)
	if width > 0 {
		total := 0
		for i, w := range widths {
			if i > 0 {
				total += 2
			}
			total += w
			if total > width {
				shown = i
				break
			}
		}
		if shown == 0 {
			shown = 1
		}
	}

	var b strings.Builder
	for i, c := range rs.Columns[:shown] {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(headerStyle.Render(pad(c, widths[i])))
	}
	if shown < len(rs.Columns) {
		b.WriteString(headerStyle.Render(" …"))
	}
	for _, row := range rows {
		b.WriteString("\n")
		for i, c := range rs.Columns[:shown] {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cellStyle.Render(pad(row[c], widths[i])))
		}
	}
	if truncated {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("... %d more rows", len(rs.Rows)-maxRows)))
	}
	return b.String()
}

func pad(s string, w int) string {
	if len(s) > w {
		if w <= 3 {
			return s[:w]
		}
		return s[:w-3] + "..."
	}
	return s + strings.Repeat(" ", w-len(s))
}
