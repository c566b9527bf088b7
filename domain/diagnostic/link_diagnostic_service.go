// Package diagnostic keeps operator-side link counters: telemetry rate and
// latency, commands sent, render ticks and the connection state.
package diagnostic

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/go2bridge/domain/teleop"
	"github.com/open-teleop/go2bridge/pkg/connection"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Window is the length of one rate/latency averaging window.
const Window = time.Second

// LinkMetrics is a point-in-time copy of the counters.
type LinkMetrics struct {
	Timestamp time.Time `json:"timestamp"`

	ConnectionState string `json:"connection_state"`
	BackendURL      string `json:"backend_url"`
	Attempts        int    `json:"reconnect_attempts"`
	NextDelayMs     int64  `json:"next_delay_ms"`
	LastError       string `json:"last_error,omitempty"`

	FrameRateHz    float64 `json:"frame_rate_hz"`
	MeanLatencyMs  float64 `json:"mean_latency_ms"`
	LatencySamples int     `json:"latency_samples"`
	FramesTotal    uint64  `json:"frames_total"`

	CommandsSent    uint64                   `json:"commands_sent"`
	LastCommand     protocol.VelocityCommand `json:"last_command"`
	LastSource      string                   `json:"last_source,omitempty"`
	ActiveKeys      []string                 `json:"active_keys"`
	AnalogConnected bool                     `json:"analog_connected"`

	RenderTicks  uint64 `json:"render_ticks"`
	PoseSequence uint64 `json:"pose_sequence"`
	RobotVisible bool   `json:"robot_visible"`
}

// DiagnosticService accumulates link metrics. Writers are the event loop;
// readers may be any goroutine.
type DiagnosticService struct {
	mu      sync.RWMutex
	metrics LinkMetrics

	windowStart  time.Time
	windowFrames int
	latencySum   time.Duration
	latencyCount int
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService() *DiagnosticService {
	return &DiagnosticService{
		metrics: LinkMetrics{
			Timestamp:       time.Now(),
			ConnectionState: connection.Disconnected.String(),
			ActiveKeys:      []string{},
		},
	}
}

// RecordFrame counts one accepted state frame received at now.
func (s *DiagnosticService) RecordFrame(now time.Time, frame *protocol.StateFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roll(now)
	s.windowFrames++
	s.metrics.FramesTotal++
	if lat, ok := frame.Latency(now); ok {
		s.latencySum += lat
		s.latencyCount++
	}
}

// RecordCommand counts one transmitted command.
func (s *DiagnosticService) RecordCommand(ev teleop.CommandEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.CommandsSent++
	s.metrics.LastCommand = ev.Command
	s.metrics.LastSource = string(ev.Source)
	s.metrics.ActiveKeys = append([]string{}, ev.ActiveKeys...)
}

// RecordRenderTick counts one display refresh. It also closes windows when
// no frames arrive.
func (s *DiagnosticService) RecordRenderTick(now time.Time, sequence uint64, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roll(now)
	s.metrics.RenderTicks++
	s.metrics.PoseSequence = sequence
	s.metrics.RobotVisible = visible
}

// UpdateStatus records a connection status transition.
func (s *DiagnosticService) UpdateStatus(st connection.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ConnectionState = st.State.String()
	s.metrics.BackendURL = st.URL
	s.metrics.Attempts = st.Attempts
	s.metrics.NextDelayMs = st.NextDelay.Milliseconds()
	s.metrics.LastError = ""
	if st.Err != nil {
		s.metrics.LastError = st.Err.Error()
	}
	if st.State != connection.Connected {
		s.metrics.FrameRateHz = 0
		s.metrics.MeanLatencyMs = 0
		s.metrics.LatencySamples = 0
	}
}

// UpdateInput records the input devices in use.
func (s *DiagnosticService) UpdateInput(activeKeys []string, analogConnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ActiveKeys = append([]string{}, activeKeys...)
	s.metrics.AnalogConnected = analogConnected
}

// Snapshot returns a copy of the current metrics.
func (s *DiagnosticService) Snapshot() LinkMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.metrics
	m.ActiveKeys = append([]string{}, s.metrics.ActiveKeys...)
	return m
}

// GetMetricsHandler handles API requests for link metrics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.Snapshot(),
	})
}

// roll closes the current window once it is at least Window long. The
// caller holds the lock.
func (s *DiagnosticService) roll(now time.Time) {
	if s.windowStart.IsZero() {
		s.windowStart = now
		return
	}
	elapsed := now.Sub(s.windowStart)
	if elapsed < Window {
		return
	}

	s.metrics.FrameRateHz = float64(s.windowFrames) / elapsed.Seconds()
	s.metrics.LatencySamples = s.latencyCount
	if s.latencyCount > 0 {
		mean := s.latencySum / time.Duration(s.latencyCount)
		s.metrics.MeanLatencyMs = float64(mean) / float64(time.Millisecond)
	} else {
		s.metrics.MeanLatencyMs = 0
	}
	s.metrics.Timestamp = now

	s.windowStart = now
	s.windowFrames = 0
	s.latencySum = 0
	s.latencyCount = 0
}
