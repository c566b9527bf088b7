// Package joystick reads a Linux joystick device (/dev/input/jsN) and turns
// it into connect, sample and disconnect updates for the input pipeline.
package joystick

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

// js_event type bits
const (
	EventButton uint8 = 0x01
	EventAxis   uint8 = 0x02
	EventInit   uint8 = 0x80
)

const (
	axisScale = 32767.0
	// DefaultReopenInterval is how often a missing device is retried.
	DefaultReopenInterval = time.Second
	maxIndex              = 64
)

// Event mirrors the kernel's struct js_event.
type Event struct {
	Time   uint32 // ms, driver clock
	Value  int16
	Type   uint8
	Number uint8
}

// ReadEvent decodes one 8-byte event.
func ReadEvent(r io.Reader) (Event, error) {
	var ev Event
	if err := binary.Read(r, binary.LittleEndian, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// UpdateKind says what an Update reports.
type UpdateKind int

const (
	Connected UpdateKind = iota
	Sample
	Disconnected
)

// Update is delivered to the handler from the reader goroutine.
type Update struct {
	Kind     UpdateKind
	DeviceID string
	Axes     []float64
	Buttons  []bool
}

// State accumulates axis and button values from events.
type State struct {
	Axes    []float64
	Buttons []bool
}

// Apply folds ev into the state and reports whether it changed a value.
func (s *State) Apply(ev Event) bool {
	n := int(ev.Number)
	if n >= maxIndex {
		return false
	}
	switch ev.Type &^ EventInit {
	case EventAxis:
		for len(s.Axes) <= n {
			s.Axes = append(s.Axes, 0)
		}
		v := float64(ev.Value) / axisScale
		if v < -1 {
			v = -1
		}
		s.Axes[n] = v
		return true
	case EventButton:
		for len(s.Buttons) <= n {
			s.Buttons = append(s.Buttons, false)
		}
		s.Buttons[n] = ev.Value != 0
		return true
	}
	return false
}

func (s *State) snapshot() ([]float64, []bool) {
	return append([]float64(nil), s.Axes...), append([]bool(nil), s.Buttons...)
}

// Reader owns one device path. It reopens the device after it disappears.
type Reader struct {
	Path           string
	ReopenInterval time.Duration
	Logger         customlog.Logger

	// Open is os.Open unless replaced.
	Open func(path string) (io.ReadCloser, error)
}

// Run reads until ctx is done. handle is called from Run's goroutine.
func (r *Reader) Run(ctx context.Context, handle func(Update)) error {
	logger := r.Logger
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	logger = logger.WithField("device", r.Path)
	open := r.Open
	if open == nil {
		open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	interval := r.ReopenInterval
	if interval <= 0 {
		interval = DefaultReopenInterval
	}

	missingLogged := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		dev, err := open(r.Path)
		if err != nil {
			if !missingLogged {
				logger.Infof("Joystick not available: %v", err)
				missingLogged = true
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
			continue
		}
		missingLogged = false

		logger.Infof("Joystick connected")
		handle(Update{Kind: Connected, DeviceID: r.Path})
		err = r.stream(ctx, dev, handle)
		handle(Update{Kind: Disconnected, DeviceID: r.Path})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("Joystick disconnected: %v", err)
	}
}

// stream reads events from dev until it fails or ctx is done.
func (r *Reader) stream(ctx context.Context, dev io.ReadCloser, handle func(Update)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		dev.Close()
	}()

	var state State
	for {
		ev, err := ReadEvent(dev)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("device closed: %w", err)
			}
			return err
		}
		if state.Apply(ev) {
			axes, buttons := state.snapshot()
			handle(Update{Kind: Sample, DeviceID: r.Path, Axes: axes, Buttons: buttons})
		}
	}
}
