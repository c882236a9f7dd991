// Package video tracks the health of a live video stream with a hysteresis
// counter: a single dropped or corrupt frame is normal on best-effort video,
// so only a sustained run of bad frames flips the health state, and a
// wall-clock watchdog catches a silently-dead source.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	StateDisconnected State = "disconnected"
	StateInitializing State = "initializing"
	StateStreaming    State = "streaming"
	StateError        State = "error"
)

// State is the health of the video stream. Transitions are gated by the
// validity counter, not by a single frame.
type State string

var (
	// ErrStreamTimeout is returned when the stream fails to stabilize in
	// time or the frame watchdog fires.
	ErrStreamTimeout = errors.New("video stream timed out")

	// ErrAlreadyRunning is returned by Start when the monitor is not in the
	// disconnected state.
	ErrAlreadyRunning = errors.New("video monitor already running")
)

const (
	// DefaultStableThreshold is the consecutive-valid-frame count required
	// before a raw capture source is considered streaming. Demuxed sources,
	// whose upstream decoder already guarantees frame integrity, should use
	// a lower threshold (≈5) via WithStableThreshold.
	DefaultStableThreshold = 30

	// DefaultFrameTimeout is the watchdog limit on time without a valid frame.
	DefaultFrameTimeout = 5 * time.Second

	// DefaultStartTimeout bounds the wait for the stream to stabilize.
	DefaultStartTimeout = 15 * time.Second

	counterHeadroom     = 10
	invalidFramePenalty = 2
	statePollInterval   = 100 * time.Millisecond
)

// Source yields video frames from some transport or demux backend. Read
// returns an empty frame (and nil error) when no valid frame is currently
// available; an error return is fatal to the capture loop.
type Source interface {
	Open() error
	Read() (Frame, error)
	Close() error
}

// WithLogger sets the logger for the monitor.
func WithLogger(logger *slog.Logger) func(*Monitor) {
	return func(m *Monitor) {
		m.logger = logger.With(slog.String("component", "video"))
	}
}

// WithStableThreshold sets the consecutive-valid-frame count required to
// reach (or hold) the streaming state.
func WithStableThreshold(threshold int) func(*Monitor) {
	return func(m *Monitor) {
		m.threshold = threshold
	}
}

// WithFrameTimeout sets the watchdog limit on time without a valid frame.
func WithFrameTimeout(d time.Duration) func(*Monitor) {
	return func(m *Monitor) {
		m.frameTimeout = d
	}
}

// WithFrameHandler registers a callback invoked from the capture loop for
// every valid frame.
func WithFrameHandler(fn func(Frame)) func(*Monitor) {
	return func(m *Monitor) {
		m.onFrame = fn
	}
}

// Monitor wraps a frame source, stores the latest frame in a single-slot
// buffer and exposes the stream health state machine.
type Monitor struct {
	source       Source
	threshold    int
	frameTimeout time.Duration
	onFrame      func(Frame)
	logger       *slog.Logger

	buf frameBuffer

	stateMu sync.Mutex // distinct from the frame buffer lock
	state   State
	valid   int // saturating validity counter, capped at threshold+headroom

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor over the given source with a discard logger.
func NewMonitor(source Source, options ...func(*Monitor)) *Monitor {
	m := Monitor{
		source:       source,
		threshold:    DefaultStableThreshold,
		frameTimeout: DefaultFrameTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		state:        StateDisconnected,
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// State returns the current stream health.
func (m *Monitor) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// Frame returns a copy of the latest stored frame, or false if no frame has
// been stored yet. Never blocks on the capture loop.
func (m *Monitor) Frame() (Frame, bool) {
	return m.buf.load()
}

// Start opens the source, launches the capture loop and blocks until the
// stream stabilizes, fails, or the timeout elapses. On failure the monitor
// is unwound back to the disconnected state.
func (m *Monitor) Start(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	m.stateMu.Lock()
	if m.state != StateDisconnected {
		m.stateMu.Unlock()
		return ErrAlreadyRunning
	}
	m.state = StateInitializing
	m.valid = 0
	m.stateMu.Unlock()

	if err := m.source.Open(); err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("opening video source: %w", err)
	}

	m.running.Store(true)

	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.captureLoop(ctx)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch m.State() {
		case StateStreaming:
			m.logger.Info("video stream stabilized")
			return nil
		case StateError:
			m.Stop()
			return fmt.Errorf("stream failed during startup: %w", ErrStreamTimeout)
		}
		time.Sleep(statePollInterval)
	}

	m.Stop()
	return fmt.Errorf("waiting for stream to stabilize: %w", ErrStreamTimeout)
}

// Stop signals the capture loop to end, joins it, releases the source and
// clears the frame buffer. Idempotent.
func (m *Monitor) Stop() {
	if m.running.CompareAndSwap(true, false) {
		m.cancel()
		m.wg.Wait()

		if err := m.source.Close(); err != nil {
			m.logger.Warn("closing video source", slog.String("error", err.Error()))
		}
	}

	m.buf.clear()
	m.setState(StateDisconnected)
}

func (m *Monitor) captureLoop(ctx context.Context) {
	defer m.wg.Done()

	lastValid := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := m.source.Read()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("video source failure", slog.String("error", err.Error()))
			m.setState(StateError)
			return
		}

		if !frame.Empty() {
			lastValid = time.Now()
			m.buf.store(frame)
			if m.onFrame != nil {
				m.onFrame(frame)
			}
			m.goodFrame()
			continue
		}

		if time.Since(lastValid) > m.frameTimeout {
			// Watchdog for a silently-dead source, regardless of counter.
			m.logger.Warn("no valid frames within timeout")
			m.setState(StateError)
			return
		}
		m.badFrame()
	}
}

func (m *Monitor) goodFrame() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	switch m.state {
	case StateInitializing, StateError:
		// recovery needs the same sustained run of good frames as startup
		m.valid++
		if m.valid >= m.threshold {
			m.state = StateStreaming
			m.logger.Info("video stream stable")
		}
	case StateStreaming:
		m.valid = min(m.valid+1, m.threshold+counterHeadroom)
	}
}

func (m *Monitor) badFrame() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.valid = max(0, m.valid-invalidFramePenalty)
	if m.state == StateStreaming && m.valid < m.threshold {
		m.state = StateError
		m.logger.Warn("video stream destabilized")
	}
}
