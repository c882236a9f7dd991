package video

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// sourceStep is one scripted Read outcome. A zero times repeats forever.
type sourceStep struct {
	frame Frame
	err   error
	times int
}

type fakeSource struct {
	mu      sync.Mutex
	steps   []sourceStep
	openErr error
	closed  atomic.Bool
}

func (s *fakeSource) Open() error {
	return s.openErr
}

func (s *fakeSource) Read() (Frame, error) {
	time.Sleep(time.Millisecond) // pace the capture loop

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return Frame{}, nil
	}

	step := &s.steps[0]
	if step.times > 0 {
		step.times--
		if step.times == 0 && len(s.steps) > 1 {
			defer func() { s.steps = s.steps[1:] }()
		}
	}
	return step.frame, step.err
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func goodFrame() Frame {
	return Frame{Data: []byte{0x42}}
}

func waitForState(t *testing.T, m *Monitor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want %v", m.State(), want)
}

func TestMonitorStabilizes(t *testing.T) {
	source := &fakeSource{steps: []sourceStep{{frame: goodFrame()}}}
	m := NewMonitor(source, WithStableThreshold(5))

	if err := m.Start(2 * time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := m.State(); got != StateStreaming {
		t.Errorf("State() = %v, want %v", got, StateStreaming)
	}

	if _, ok := m.Frame(); !ok {
		t.Error("Frame() returned no frame while streaming")
	}

	if err := m.Start(time.Second); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	m.Stop()
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after Stop = %v, want %v", got, StateDisconnected)
	}
	if _, ok := m.Frame(); ok {
		t.Error("Frame() returned a frame after Stop")
	}
	if !source.closed.Load() {
		t.Error("Stop() did not close the source")
	}
	m.Stop() // idempotent
}

func TestMonitorToleratesSingleGlitch(t *testing.T) {
	source := &fakeSource{steps: []sourceStep{
		{frame: goodFrame(), times: 20},
		{frame: Frame{}, times: 1},
		{frame: goodFrame()},
	}}
	m := NewMonitor(source, WithStableThreshold(5))

	if err := m.Start(2 * time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := m.State(); got != StateStreaming {
		t.Errorf("State() after one dropped frame = %v, want %v", got, StateStreaming)
	}
}

func TestMonitorSustainedLossDestabilizes(t *testing.T) {
	// the long runs keep each phase visible to the 100ms state polls
	source := &fakeSource{steps: []sourceStep{
		{frame: goodFrame(), times: 300},
		{frame: Frame{}, times: 200},
		{frame: goodFrame()},
	}}
	m := NewMonitor(source, WithStableThreshold(5), WithFrameTimeout(10*time.Second))

	if err := m.Start(2 * time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitForState(t, m, StateError)

	// once good frames resume, recovery needs a full stable run again
	waitForState(t, m, StateStreaming)
}

func TestMonitorWatchdog(t *testing.T) {
	source := &fakeSource{steps: []sourceStep{{frame: Frame{}}}}
	m := NewMonitor(source, WithStableThreshold(5), WithFrameTimeout(30*time.Millisecond))

	err := m.Start(time.Second)
	if !errors.Is(err, ErrStreamTimeout) {
		t.Fatalf("Start() error = %v, want ErrStreamTimeout", err)
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after failed start = %v, want %v", got, StateDisconnected)
	}
}

func TestMonitorSourceFailure(t *testing.T) {
	source := &fakeSource{steps: []sourceStep{
		{frame: goodFrame(), times: 300},
		{err: errors.New("decoder crashed")},
	}}
	m := NewMonitor(source, WithStableThreshold(5))

	if err := m.Start(2 * time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitForState(t, m, StateError)
}

func TestMonitorOpenFailure(t *testing.T) {
	source := &fakeSource{openErr: errors.New("port in use")}
	m := NewMonitor(source)

	if err := m.Start(time.Second); err == nil {
		t.Fatal("Start() error = nil, want open failure")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestFrameBufferCopyOnRead(t *testing.T) {
	var buf frameBuffer

	if _, ok := buf.load(); ok {
		t.Fatal("load() on empty buffer returned a frame")
	}

	buf.store(Frame{Data: []byte{1, 2, 3}})

	first, ok := buf.load()
	if !ok {
		t.Fatal("load() returned no frame")
	}
	first.Data[0] = 99

	second, _ := buf.load()
	if second.Data[0] != 1 {
		t.Error("mutating a loaded frame corrupted the buffer")
	}

	buf.clear()
	if _, ok = buf.load(); ok {
		t.Error("load() after clear returned a frame")
	}
}

func TestFrameRGBA(t *testing.T) {
	raw := Frame{Data: []byte{1, 2, 3}}
	if raw.RGBA() != nil {
		t.Error("RGBA() on a raw frame should be nil")
	}

	decoded := Frame{Width: 2, Height: 1, Data: make([]byte, 8)}
	img := decoded.RGBA()
	if img == nil {
		t.Fatal("RGBA() on a decoded frame returned nil")
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 1 {
		t.Errorf("RGBA() bounds = %v, want 2x1", b)
	}
}
