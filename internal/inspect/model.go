// Package inspect browses transition logs, interactively on a terminal and
// as JSON lines otherwise.
package inspect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"marineops-bridge/internal/telemetry"
	"marineops-bridge/internal/wire"
)

// rowsMsg appends transitions to the table.
type rowsMsg []telemetry.TransitionRow

// errMsg reports a loader failure.
type errMsg struct{ err error }

// doneMsg marks the end of a finite log.
type doneMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const minDetailHeight = 6

type model struct {
	title  string
	table  table.Model
	detail viewport.Model
	body   string
	rows   []telemetry.TransitionRow
	follow bool
	wrap   bool
	done   bool
	err    error
	width  int
	height int
}

func newModel(title string, follow bool) model {
	cols := []table.Column{
		{Title: "#", Width: 6},
		{Title: "Vehicle", Width: 10},
		{Title: "S1 (x, y)", Width: 18},
		{Title: "Speed", Width: 6},
		{Title: "Course", Width: 7},
		{Title: "S2 (x, y)", Width: 18},
		{Title: "Δt", Width: 7},
		{Title: "Episode", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(10))
	return model{
		title:  title,
		table:  t,
		detail: viewport.New(0, minDetailHeight),
		follow: follow,
		wrap:   true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.detail.Width = msg.Width
		m.resize()
		m.refreshDetail()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshDetail()
			return m, nil
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.table.GotoBottom()
				m.refreshDetail()
			}
			return m, nil
		}
	case rowsMsg:
		m.rows = append(m.rows, msg...)
		m.table.SetRows(tableRows(m.rows))
		if m.follow {
			m.table.GotoBottom()
		}
		m.refreshDetail()
		return m, nil
	case doneMsg:
		m.done = true
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	m.refreshDetail()
	return m, cmd
}

func (m *model) resize() {
	// title, two dividers, detail, help
	h := m.height - 4 - minDetailHeight
	if h < 3 {
		h = 3
	}
	m.table.SetHeight(h)
	m.detail.Height = minDetailHeight
}

func (m *model) refreshDetail() {
	if len(m.rows) == 0 {
		m.body = dimStyle.Render("no transitions yet")
		m.detail.SetContent(m.body)
		return
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return
	}
	content := detailText(m.rows[i])
	if m.wrap && m.detail.Width > 0 {
		content = wordwrap.String(content, m.detail.Width)
	}
	m.body = content
	m.detail.SetContent(content)
}

func (m model) View() string {
	status := fmt.Sprintf("%d transitions", len(m.rows))
	switch {
	case m.err != nil:
		status += " " + errStyle.Render("error: "+m.err.Error())
	case m.follow:
		status += " (following)"
	case m.done:
		status += " (end of log)"
	}
	divider := dimStyle.Render(strings.Repeat("─", max(m.width, 1)))
	help := dimStyle.Render("↑/↓ select • f follow • w wrap • q quit")
	return strings.Join([]string{
		titleStyle.Render(m.title) + "  " + status,
		m.table.View(),
		divider,
		m.detail.View(),
		divider,
		help,
	}, "\n")
}

func tableRows(rows []telemetry.TransitionRow) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		episode := "-"
		if rep := r.S2.EpisodeReport; rep != nil {
			episode = strconv.Itoa(rep.Num)
		}
		out[i] = table.Row{
			strconv.Itoa(r.Index),
			r.VehicleID,
			fmt.Sprintf("%.1f, %.1f", r.S1.NavX, r.S1.NavY),
			fmt.Sprintf("%.2f", r.Action.Speed),
			fmt.Sprintf("%.1f", r.Action.Course),
			fmt.Sprintf("%.1f, %.1f", r.S2.NavX, r.S2.NavY),
			fmt.Sprintf("%.2f", r.Elapsed()),
			episode,
		}
	}
	return out
}

func detailText(r telemetry.TransitionRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s (%.2fs)\n", r.Index, r.VehicleID, r.Elapsed())
	fmt.Fprintf(&b, "s1 %s\n", stateText(r.S1))
	fmt.Fprintf(&b, "action speed=%.2f course=%.1f", r.Action.Speed, r.Action.Course)
	for _, k := range sortedKeys(r.Action.Posts) {
		fmt.Fprintf(&b, " %s=%s", k, r.Action.Posts[k])
	}
	fmt.Fprintf(&b, "\ns2 %s", stateText(r.S2))
	return b.String()
}

func stateText(s wire.State) string {
	parts := []string{
		fmt.Sprintf("x=%.2f", s.NavX),
		fmt.Sprintf("y=%.2f", s.NavY),
		fmt.Sprintf("heading=%.1f", s.NavHeading),
		fmt.Sprintf("time=%.2f", s.MOOSTime),
	}
	if s.EpisodeState != "" {
		parts = append(parts, "state="+string(s.EpisodeState))
	}
	if s.EpisodeReport != nil {
		parts = append(parts, "report="+s.EpisodeReport.String())
	}
	for _, name := range s.VarNames() {
		parts = append(parts, fmt.Sprintf("%s=%v", name, s.Vars[name]))
	}
	for _, id := range sortedKeys(s.NodeReports) {
		nr := s.NodeReports[id]
		parts = append(parts, fmt.Sprintf("node[%s]=(%.1f, %.1f)", id, nr.NavX, nr.NavY))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
