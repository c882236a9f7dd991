package tello

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStatusConn feeds scripted telemetry datagrams to the ingester and
// reports a read timeout while idle.
type fakeStatusConn struct {
	datagrams chan string
	closed    atomic.Bool
}

func newFakeStatusConn() *fakeStatusConn {
	return &fakeStatusConn{datagrams: make(chan string, 8)}
}

func (c *fakeStatusConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeStatusConn) Read(p []byte) (int, error) {
	select {
	case d := <-c.datagrams:
		return copy(p, d), nil
	case <-time.After(5 * time.Millisecond):
		return 0, os.ErrDeadlineExceeded
	}
}

func (c *fakeStatusConn) Close() error {
	c.closed.Store(true)
	return nil
}

func newTestController(script map[string][]string) (*Controller, *fakeTransport, *fakeStatusConn) {
	ft := newFakeTransport(script)
	fc := newFakeStatusConn()
	c := NewController(
		WithTransport(ft),
		WithTelemetryConn(fc),
		WithSettleDelays(0, 0),
		WithChannelOptions(WithRetryBackoff(time.Millisecond), WithKeepAliveIdle(0)),
	)
	return c, ft, fc
}

func connect(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func TestControllerConnect(t *testing.T) {
	c, ft, fc := newTestController(map[string][]string{
		noopCommand: {"ok"},
	})

	connect(t, c)
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
	if got := ft.countOf(noopCommand); got != 1 {
		t.Errorf("SDK-entry command sent %d times, want 1", got)
	}

	if err := c.Connect(); !errors.Is(err, ErrStatePrecondition) {
		t.Errorf("second Connect() error = %v, want ErrStatePrecondition", err)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() after disconnect = %v, want %v", got, StateDisconnected)
	}
	if !fc.closed.Load() {
		t.Error("Disconnect() did not close the telemetry socket")
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("repeated Disconnect() error = %v", err)
	}
}

func TestControllerConnectRejectsBadReply(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand: {"error"},
	})

	if err := c.Connect(); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("Connect() error = %v, want ErrUnexpectedResponse", err)
	}
	if got := c.State(); got != StateError {
		t.Errorf("State() = %v, want %v", got, StateError)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect() after failed connect error = %v", err)
	}
}

func TestControllerTakeoffConfirmedByAltitude(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {"ok"},
		"height?":      {"8dm"}, // decimeter reply, 80cm
	})
	connect(t, c)

	if err := c.Takeoff(); err != nil {
		t.Fatalf("Takeoff() error = %v", err)
	}
	if got := c.State(); got != StateFlying {
		t.Errorf("State() = %v, want %v", got, StateFlying)
	}
}

func TestControllerTakeoffAckButGrounded(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {"ok"},
		"height?":      {"0"},
	})
	connect(t, c)

	if err := c.Takeoff(); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("Takeoff() error = %v, want ErrUnexpectedResponse", err)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
}

func TestControllerTakeoffIMUWarning(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {imuWarningResponse},
		"height?":      {"50"},
	})
	connect(t, c)

	if err := c.Takeoff(); err != nil {
		t.Fatalf("Takeoff() error = %v", err)
	}
	if got := c.State(); got != StateFlyingUnstable {
		t.Errorf("State() = %v, want %v", got, StateFlyingUnstable)
	}
}

func TestControllerTakeoffLostAckButAirborne(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {timeoutReply},
		probeCommand:   {"10"},
		"height?":      {"40"},
	})
	connect(t, c)

	if err := c.Takeoff(); err != nil {
		t.Fatalf("Takeoff() error = %v", err)
	}
	if got := c.State(); got != StateFlying {
		t.Errorf("State() = %v, want %v", got, StateFlying)
	}
}

func TestControllerTakeoffPrecondition(t *testing.T) {
	c, ft, _ := newTestController(nil)

	if err := c.Takeoff(); !errors.Is(err, ErrStatePrecondition) {
		t.Fatalf("Takeoff() error = %v, want ErrStatePrecondition", err)
	}
	if got := len(ft.sentCommands()); got != 0 {
		t.Errorf("sent %d commands while disconnected, want 0", got)
	}
}

func TestControllerLandVerifiedOnGround(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {"ok"},
		landCommand:    {"ok"},
		"height?":      {"80", "3"},
	})
	connect(t, c)
	if err := c.Takeoff(); err != nil {
		t.Fatalf("Takeoff() error = %v", err)
	}

	if err := c.Land(); err != nil {
		t.Fatalf("Land() error = %v", err)
	}
	if got := c.State(); got != StateLanded {
		t.Errorf("State() = %v, want %v", got, StateLanded)
	}
}

func TestControllerLandIMUWarningFallsBackToAltitude(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {"ok"},
		landCommand:    {imuWarningResponse},
		"height?":      {"80", "0"},
	})
	connect(t, c)
	if err := c.Takeoff(); err != nil {
		t.Fatalf("Takeoff() error = %v", err)
	}

	// the warning is a hard failure, but the vehicle is observed on the
	// ground, so the landing is accepted
	if err := c.Land(); err != nil {
		t.Fatalf("Land() error = %v", err)
	}
	if got := c.State(); got != StateLanded {
		t.Errorf("State() = %v, want %v", got, StateLanded)
	}
}

func TestControllerLandIMUWarningAirborneFails(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:    {"ok"},
		takeoffCommand: {"ok"},
		landCommand:    {imuWarningResponse},
		"height?":      {"80"},
	})
	connect(t, c)
	if err := c.Takeoff(); err != nil {
		t.Fatalf("Takeoff() error = %v", err)
	}

	if err := c.Land(); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("Land() error = %v, want ErrUnexpectedResponse", err)
	}
	if got := c.State(); got != StateFlying {
		t.Errorf("State() = %v, want %v", got, StateFlying)
	}
}

func TestControllerLandPrecondition(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand: {"ok"},
	})
	connect(t, c)

	if err := c.Land(); !errors.Is(err, ErrStatePrecondition) {
		t.Fatalf("Land() while connected error = %v, want ErrStatePrecondition", err)
	}
}

func TestControllerArgumentValidation(t *testing.T) {
	c, ft, _ := newTestController(nil)

	tests := []struct {
		name string
		call func() error
	}{
		{"move unknown direction", func() error { return c.Move("sideways", 100) }},
		{"move distance too short", func() error { return c.Move(MoveForward, 19) }},
		{"move distance too long", func() error { return c.Move(MoveUp, 501) }},
		{"rotate unknown direction", func() error { return c.Rotate("around", 90) }},
		{"rotate zero degrees", func() error { return c.Rotate(RotateClockwise, 0) }},
		{"rotate over full turn", func() error { return c.Rotate(RotateCounterClockwise, 361) }},
		{"speed too low", func() error { return c.SetSpeed(0) }},
		{"speed too high", func() error { return c.SetSpeed(101) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrArgumentDomain) {
				t.Errorf("error = %v, want ErrArgumentDomain", err)
			}
		})
	}

	// domain errors are rejected before any I/O
	if got := len(ft.sentCommands()); got != 0 {
		t.Errorf("sent %d commands, want 0", got)
	}

	if err := c.Move(MoveForward, 100); !errors.Is(err, ErrStatePrecondition) {
		t.Errorf("Move() while disconnected error = %v, want ErrStatePrecondition", err)
	}
}

func TestControllerMove(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand:  {"ok"},
		"forward 80": {"ok"},
		"cw 90":      {"error"},
	})
	connect(t, c)

	if err := c.Move(MoveForward, 80); err != nil {
		t.Errorf("Move() error = %v", err)
	}
	if err := c.Rotate(RotateClockwise, 90); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("Rotate() error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestControllerSetSpeedCachesValue(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand: {"ok"},
		"speed 50":  {"ok"},
	})
	connect(t, c)

	if err := c.SetSpeed(50); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if got := c.Status().Speed; got != 50 {
		t.Errorf("Status().Speed = %d, want 50", got)
	}
}

func TestControllerBatteryFallsBackToCache(t *testing.T) {
	c, _, _ := newTestController(map[string][]string{
		noopCommand: {"ok"},
		"battery?":  {"87", timeoutReply},
	})
	connect(t, c)

	if got := c.Battery(); got != 87 {
		t.Fatalf("Battery() = %d, want 87", got)
	}
	// the second query times out; the cached value is returned instead
	if got := c.Battery(); got != 87 {
		t.Errorf("Battery() after lost reply = %d, want cached 87", got)
	}
}
