package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/open-teleop/go2bridge/domain/diagnostic"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

func TestObserveLogsTransitions(t *testing.T) {
	m := New("go2bridge", func() diagnostic.LinkMetrics { return diagnostic.LinkMetrics{} })
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	m.observe(diagnostic.LinkMetrics{Timestamp: now, ConnectionState: "connecting"})
	m.observe(diagnostic.LinkMetrics{Timestamp: now, ConnectionState: "connecting"})
	m.observe(diagnostic.LinkMetrics{Timestamp: now, ConnectionState: "connecting", Attempts: 2, NextDelayMs: 2250, LastError: "refused"})
	m.observe(diagnostic.LinkMetrics{Timestamp: now, ConnectionState: "connected", RobotVisible: true})

	if len(m.logs) != 3 {
		t.Fatalf("Expected 3 log lines, got %d: %v", len(m.logs), m.logs)
	}
	if m.logs[0] != "03:04:05 link connecting" {
		t.Errorf("Unexpected first line: %q", m.logs[0])
	}
	if m.logs[1] != "03:04:05 link connected" {
		t.Errorf("Unexpected second line: %q", m.logs[1])
	}
	if m.logs[2] != "robot visible" {
		t.Errorf("Unexpected third line: %q", m.logs[2])
	}
}

func TestLogsAreBounded(t *testing.T) {
	m := New("go2bridge", nil)
	for i := 0; i < maxLogs+3; i++ {
		m.addLog("x")
	}
	if len(m.logs) != maxLogs {
		t.Errorf("Expected %d log lines, got %d", maxLogs, len(m.logs))
	}
}

func TestViewShowsStats(t *testing.T) {
	m := New("go2bridge", nil)
	m.observe(diagnostic.LinkMetrics{
		ConnectionState: "connected",
		BackendURL:      "ws://robot:8000/ws",
		FrameRateHz:     50,
		MeanLatencyMs:   12.5,
		CommandsSent:    4,
		LastCommand:     protocol.VelocityCommand{XVel: 1},
		LastSource:      "keyboard",
		ActiveKeys:      []string{"w"},
	})

	view := m.View()
	for _, want := range []string{"go2bridge", "connected", "ws://robot:8000/ws", "50.0 Hz", "12.5 ms", "commands 4", "+1.00", "keys w", "x_vel"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestQuitKey(t *testing.T) {
	m := New("go2bridge", nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if !next.(Model).quitting {
		t.Error("Expected model to be quitting")
	}
	if got := next.View(); got != "Dashboard closed.\n" {
		t.Errorf("Unexpected view after quit: %q", got)
	}
}
