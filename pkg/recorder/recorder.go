// Package recorder writes telemetry from the ZeroMQ bus to JSON lines.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/zeromq"
)

// Record is one line of the output file.
type Record struct {
	Topic      string          `json:"topic"`
	Type       string          `json:"type"`
	Timestamp  float64         `json:"timestamp"`
	ReceivedAt float64         `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// Recorder keeps at most one record per topic per Interval. A zero Interval
// keeps everything.
type Recorder struct {
	Interval time.Duration

	mu      sync.Mutex
	w       *bufio.Writer
	logger  customlog.Logger
	now     func() time.Time
	last    map[string]float64
	written map[string]int
	skipped int
}

func New(w io.Writer, interval time.Duration, logger customlog.Logger) *Recorder {
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	return &Recorder{
		Interval: interval,
		w:        bufio.NewWriter(w),
		logger:   logger,
		now:      time.Now,
		last:     make(map[string]float64),
		written:  make(map[string]int),
	}
}

// Handle matches zeromq.TopicHandler.
func (r *Recorder) Handle(topic string, msg zeromq.ZeroMQMessage, raw []byte) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		r.logger.Warnf("Skipping undecodable %s message: %v", topic, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := msg.Timestamp
	if last, ok := r.last[topic]; ok && stamp-last <= r.Interval.Seconds() {
		r.skipped++
		return
	}
	r.last[topic] = stamp

	line, err := json.Marshal(Record{
		Topic:      topic,
		Type:       msg.Type,
		Timestamp:  stamp,
		ReceivedAt: float64(r.now().UnixNano()) / 1e9,
		Data:       envelope.Data,
	})
	if err != nil {
		r.logger.Errorf("Failed to encode %s record: %v", topic, err)
		return
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		r.logger.Errorf("Failed to write record: %v", err)
		return
	}
	r.written[topic]++
}

// Flush writes buffered records through.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	return nil
}

// Counts returns records written per topic and the number throttled.
func (r *Recorder) Counts() (map[string]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.written))
	for k, v := range r.written {
		out[k] = v
	}
	return out, r.skipped
}
