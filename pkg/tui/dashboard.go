// Package tui renders a read-only terminal dashboard of the operator link.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/open-teleop/go2bridge/domain/diagnostic"
)

const (
	headerHeight = 2
	statsHeight  = 3
	legendHeight = 2
	footerHeight = 7
	maxLogs      = 5
	borderSize   = 2

	// RefreshInterval is how often the dashboard samples diagnostics.
	RefreshInterval = 100 * time.Millisecond
)

// Series names and colors for the command chart.
var series = []struct {
	name  string
	color string
}{
	{"x_vel", "196"},
	{"y_vel", "46"},
	{"ang_vel", "51"},
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stateStyles = map[string]lipgloss.Style{
		"connected":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		"connecting":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226")),
		"disconnected": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

// Snapshotter supplies the metrics shown. It is called from the bubbletea
// goroutine.
type Snapshotter func() diagnostic.LinkMetrics

type sampleMsg diagnostic.LinkMetrics

// Model is the bubbletea model of the dashboard.
type Model struct {
	title    string
	snapshot Snapshotter
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	last     diagnostic.LinkMetrics
	seen     bool
	quitting bool
}

// New creates a dashboard model.
func New(title string, snapshot Snapshotter) Model {
	chart := streamlinechart.New(80, 12, streamlinechart.WithYRange(-2, 2))
	for _, s := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color))
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, style)
	}
	return Model{title: title, snapshot: snapshot, chart: &chart}
}

// Run blocks until the operator quits.
func Run(title string, snapshot Snapshotter) error {
	_, err := tea.NewProgram(New(title, snapshot), tea.WithAltScreen()).Run()
	return err
}

func (m Model) sample() tea.Cmd {
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg {
		return sampleMsg(m.snapshot())
	})
}

func (m Model) Init() tea.Cmd {
	return m.sample()
}

func (m *Model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *Model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - statsHeight - legendHeight - footerHeight - borderSize
	if height < 6 {
		height = 6
	}
	return width, height
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case sampleMsg:
		cur := diagnostic.LinkMetrics(msg)
		m.observe(cur)
		return m, m.sample()
	}
	return m, nil
}

// observe pushes a sample into the chart and logs link transitions.
func (m *Model) observe(cur diagnostic.LinkMetrics) {
	if !m.seen || cur.ConnectionState != m.last.ConnectionState {
		line := fmt.Sprintf("%s link %s", cur.Timestamp.Format("15:04:05"), cur.ConnectionState)
		if cur.ConnectionState == "connecting" && cur.Attempts > 0 {
			line += fmt.Sprintf(" (attempt %d, next in %dms)", cur.Attempts, cur.NextDelayMs)
		}
		if cur.LastError != "" {
			line += ": " + cur.LastError
		}
		m.addLog(line)
	}
	if m.seen && cur.RobotVisible && !m.last.RobotVisible {
		m.addLog("robot visible")
	}

	m.chart.PushDataSet("x_vel", cur.LastCommand.XVel)
	m.chart.PushDataSet("y_vel", cur.LastCommand.YVel)
	m.chart.PushDataSet("ang_vel", cur.LastCommand.AngVel)
	m.chart.DrawAll()

	m.last = cur
	m.seen = true
}

func (m Model) View() string {
	if m.quitting {
		return "Dashboard closed.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	state := m.last.ConnectionState
	if state == "" {
		state = "disconnected"
	}
	style, ok := stateStyles[state]
	if !ok {
		style = statusStyle
	}
	sb.WriteString("  " + style.Render(state))
	if m.last.BackendURL != "" {
		sb.WriteString(statusStyle.Render("  " + m.last.BackendURL))
	}
	sb.WriteString("\n\n")

	sb.WriteString(renderStats(m.last))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))
	if m.width > 4 {
		logStyle = logStyle.Width(m.width - 4)
	}
	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	return sb.String()
}

func renderStats(s diagnostic.LinkMetrics) string {
	keys := "-"
	if len(s.ActiveKeys) > 0 {
		keys = strings.Join(s.ActiveKeys, " ")
	}
	pad := "none"
	if s.AnalogConnected {
		pad = "connected"
	}
	return strings.Join([]string{
		fmt.Sprintf("telemetry %5.1f Hz   latency %6.1f ms   frames %d   pose seq %d",
			s.FrameRateHz, s.MeanLatencyMs, s.FramesTotal, s.PoseSequence),
		fmt.Sprintf("commands %d   last %+.2f %+.2f %+.2f (%s)   keys %s   gamepad %s",
			s.CommandsSent, s.LastCommand.XVel, s.LastCommand.YVel, s.LastCommand.AngVel, orDash(s.LastSource), keys, pad),
	}, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderLegend() string {
	items := make([]string, 0, len(series))
	for _, s := range series {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+s.name)
	}
	return strings.Join(items, "  ")
}
