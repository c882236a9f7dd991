// Package tello implements the control and telemetry protocol layer for a
// UDP-controlled quadcopter speaking the Tello-style ASCII SDK: a serialized
// command channel with retry and keep-alive, a background telemetry
// ingester, and a flight-state machine that reconciles ambiguous command
// outcomes against observed altitude.
package tello

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/droneworks/tellostation/internal/video"
)

const (
	// DefaultDroneAddr is the vehicle's fixed command address.
	DefaultDroneAddr = "192.168.10.1:8889"

	// DefaultLocalCommandPort is the local port the command socket binds.
	DefaultLocalCommandPort = 8889

	// DefaultTelemetryPort is the local port receiving telemetry datagrams.
	DefaultTelemetryPort = 8890

	// MinAltitudeCm is the altitude below which the vehicle is considered on
	// the ground when verifying takeoff and landing outcomes.
	MinAltitudeCm = 10

	takeoffCommand = "takeoff"
	landCommand    = "land"
	okResponse     = "ok"

	// imuWarningResponse is the reply substring indicating the inertial
	// sensor is not confidently initialized. Provisional success for
	// takeoff, hard failure for everything else.
	imuWarningResponse = "error No valid imu"

	takeoffTimeout            = 10 * time.Second
	defaultSettleAfterTakeoff = 2 * time.Second
	defaultSettleAfterLand    = 3 * time.Second
)

const (
	MoveUp      = "up"
	MoveDown    = "down"
	MoveLeft    = "left"
	MoveRight   = "right"
	MoveForward = "forward"
	MoveBack    = "back"

	RotateClockwise        = "cw"
	RotateCounterClockwise = "ccw"
)

var moveDirections = map[string]bool{
	MoveUp: true, MoveDown: true, MoveLeft: true,
	MoveRight: true, MoveForward: true, MoveBack: true,
}

var rotateDirections = map[string]bool{
	RotateClockwise: true, RotateCounterClockwise: true,
}

// WithControllerLogger sets the logger for the controller and the components
// it owns.
func WithControllerLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithDroneAddr overrides the vehicle command address.
func WithDroneAddr(addr string) func(*Controller) {
	return func(c *Controller) {
		c.droneAddr = addr
	}
}

// WithLocalPorts overrides the local command and telemetry ports.
func WithLocalPorts(commandPort, telemetryPort int) func(*Controller) {
	return func(c *Controller) {
		c.localCommandPort = commandPort
		c.telemetryPort = telemetryPort
	}
}

// WithTransport injects a command transport, bypassing the UDP dial. Used
// by tests and simulators.
func WithTransport(t Transport) func(*Controller) {
	return func(c *Controller) {
		c.transport = t
	}
}

// WithTelemetryConn injects the telemetry socket, bypassing the UDP bind.
func WithTelemetryConn(conn statusConn) func(*Controller) {
	return func(c *Controller) {
		c.telemetryConn = conn
	}
}

// WithVideoMonitor attaches a video health monitor to be driven by
// StartVideoStream/StopVideoStream.
func WithVideoMonitor(m *video.Monitor) func(*Controller) {
	return func(c *Controller) {
		c.video = m
	}
}

// WithSettleDelays overrides the post-command settle waits before altitude
// verification.
func WithSettleDelays(afterTakeoff, afterLand time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.settleAfterTakeoff = afterTakeoff
		c.settleAfterLand = afterLand
	}
}

// WithChannelOptions forwards options to the command channel created on
// Connect.
func WithChannelOptions(options ...func(*Channel)) func(*Controller) {
	return func(c *Controller) {
		c.channelOptions = append(c.channelOptions, options...)
	}
}

// Controller owns the flight state machine and orchestrates the command
// channel, the telemetry ingester and the video health monitor.
type Controller struct {
	droneAddr        string
	localCommandPort int
	telemetryPort    int

	settleAfterTakeoff time.Duration
	settleAfterLand    time.Duration

	logger         *slog.Logger
	channelOptions []func(*Channel)

	transport     Transport  // injected, or dialed on Connect
	telemetryConn statusConn // injected, or bound on Connect

	channel  *Channel
	ingester *ingester
	video    *video.Monitor

	record statusRecord

	stateMu sync.Mutex
	state   State
}

// NewController creates a disconnected controller with a discard logger.
func NewController(options ...func(*Controller)) *Controller {
	c := Controller{
		droneAddr:          DefaultDroneAddr,
		localCommandPort:   DefaultLocalCommandPort,
		telemetryPort:      DefaultTelemetryPort,
		settleAfterTakeoff: defaultSettleAfterTakeoff,
		settleAfterLand:    defaultSettleAfterLand,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		state:              StateDisconnected,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// State returns the current flight state.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Status returns a snapshot of the latest telemetry plus the flight state.
func (c *Controller) Status() Status {
	st := c.record.snapshot()
	st.State = c.State()
	return st
}

// Connect opens the command channel, enters SDK mode and starts the
// telemetry ingester. On any failure the controller ends up in StateError
// and Disconnect remains safe to call.
func (c *Controller) Connect() error {
	if st := c.State(); st != StateDisconnected {
		return fmt.Errorf("%w: connect while %s", ErrStatePrecondition, st)
	}

	transport := c.transport
	if transport == nil {
		var err error
		if transport, err = DialTransport(c.localCommandPort, c.droneAddr); err != nil {
			c.setState(StateError)
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}

	channel := NewChannel(transport, append([]func(*Channel){WithLogger(c.logger)}, c.channelOptions...)...)
	channel.Start()

	resp, err := channel.Send(Request{Text: noopCommand, Priority: PriorityHigh})
	if err != nil {
		channel.Stop()
		c.setState(StateError)
		return fmt.Errorf("entering SDK mode: %w", err)
	}
	if resp != okResponse {
		channel.Stop()
		c.setState(StateError)
		return fmt.Errorf("%w: SDK mode reply %q", ErrUnexpectedResponse, resp)
	}

	telemetryConn := c.telemetryConn
	if telemetryConn == nil {
		if telemetryConn, err = listenTelemetry(c.telemetryPort); err != nil {
			channel.Stop()
			c.setState(StateError)
			return fmt.Errorf("%w: binding telemetry port: %w", ErrTransport, err)
		}
	}

	c.channel = channel
	c.ingester = newIngester(telemetryConn, &c.record, c.logger)
	c.ingester.start()

	c.setState(StateConnected)
	c.logger.Info("connected", slog.String("drone", c.droneAddr))
	return nil
}

// Disconnect stops the telemetry loop, the video monitor and the command
// channel, and resets the status record. It is idempotent and safe to call
// after a failed Connect.
func (c *Controller) Disconnect() error {
	if c.ingester != nil {
		c.ingester.stop()
		c.ingester = nil
	}
	if c.video != nil {
		c.video.Stop()
	}
	if c.channel != nil {
		c.channel.Stop()
		c.channel = nil
	}

	c.record.reset()
	c.setState(StateDisconnected)
	c.logger.Info("disconnected")
	return nil
}

// Takeoff commands the vehicle to take off and verifies the outcome against
// altitude: a reply, even "ok", commits the state only once the vehicle is
// observed above MinAltitudeCm, and a failed or lost reply is forgiven if
// the vehicle turns out to be airborne anyway.
func (c *Controller) Takeoff() error {
	if st := c.State(); st != StateConnected && st != StateLanded {
		return fmt.Errorf("%w: takeoff while %s", ErrStatePrecondition, st)
	}

	resp, err := c.channel.Send(Request{
		Text:     takeoffCommand,
		Priority: PriorityHigh,
		Timeout:  takeoffTimeout,
	})
	if err != nil {
		return c.takeoffFallback(err)
	}

	unstable := strings.Contains(resp, imuWarningResponse)
	if resp != okResponse && !unstable {
		return c.takeoffFallback(fmt.Errorf("%w: takeoff reply %q", ErrUnexpectedResponse, resp))
	}

	time.Sleep(c.settleAfterTakeoff) // give the vehicle time to get airborne

	if h := c.Height(); h <= MinAltitudeCm {
		return c.takeoffFallback(fmt.Errorf("%w: takeoff acknowledged but altitude is %dcm", ErrUnexpectedResponse, h))
	}

	if unstable {
		c.setState(StateFlyingUnstable)
		c.logger.Warn("takeoff confirmed with IMU warning")
	} else {
		c.setState(StateFlying)
		c.logger.Info("takeoff confirmed")
	}
	return nil
}

// takeoffFallback re-checks altitude once before surfacing a takeoff
// failure, to catch the case where the vehicle took off despite a lost or
// garbled acknowledgment.
func (c *Controller) takeoffFallback(cause error) error {
	if c.Height() > MinAltitudeCm {
		c.logger.Warn("vehicle airborne despite takeoff failure", slog.String("cause", cause.Error()))
		c.setState(StateFlying)
		return nil
	}
	c.logger.Error("takeoff failed", slog.String("error", cause.Error()))
	return cause
}

// Land commands the vehicle to land at the highest priority and verifies
// the vehicle reached the ground. An IMU warning is a hard failure here:
// descending while unstable cannot be assumed successful.
func (c *Controller) Land() error {
	if st := c.State(); st != StateFlying && st != StateFlyingUnstable {
		return fmt.Errorf("%w: land while %s", ErrStatePrecondition, st)
	}

	resp, err := c.channel.Send(Request{
		Text:     landCommand,
		Priority: PriorityEmergency,
	})
	if err != nil {
		return c.landFallback(err)
	}

	if strings.Contains(resp, imuWarningResponse) {
		return c.landFallback(fmt.Errorf("%w: IMU warning during landing", ErrUnexpectedResponse))
	}
	if resp != okResponse {
		return c.landFallback(fmt.Errorf("%w: land reply %q", ErrUnexpectedResponse, resp))
	}

	time.Sleep(c.settleAfterLand)

	if h := c.Height(); h > MinAltitudeCm {
		return c.landFallback(fmt.Errorf("%w: land acknowledged but altitude is %dcm", ErrUnexpectedResponse, h))
	}

	c.setState(StateLanded)
	c.logger.Info("landing confirmed")
	return nil
}

// landFallback re-checks altitude once before surfacing a landing failure.
func (c *Controller) landFallback(cause error) error {
	if c.Height() <= MinAltitudeCm {
		c.logger.Warn("vehicle on ground despite landing failure", slog.String("cause", cause.Error()))
		c.setState(StateLanded)
		return nil
	}
	c.logger.Error("landing failed", slog.String("error", cause.Error()))
	return cause
}

// Move translates the vehicle in one of the six body-frame directions by
// distanceCm in [20,500].
func (c *Controller) Move(direction string, distanceCm int) error {
	if !moveDirections[direction] {
		return fmt.Errorf("%w: move direction %q", ErrArgumentDomain, direction)
	}
	if distanceCm < 20 || distanceCm > 500 {
		return fmt.Errorf("%w: move distance %dcm not in [20,500]", ErrArgumentDomain, distanceCm)
	}

	return c.simpleCommand(fmt.Sprintf("%s %d", direction, distanceCm))
}

// Rotate turns the vehicle cw or ccw by degrees in [1,360].
func (c *Controller) Rotate(direction string, degrees int) error {
	if !rotateDirections[direction] {
		return fmt.Errorf("%w: rotate direction %q", ErrArgumentDomain, direction)
	}
	if degrees < 1 || degrees > 360 {
		return fmt.Errorf("%w: rotation %d° not in [1,360]", ErrArgumentDomain, degrees)
	}

	return c.simpleCommand(fmt.Sprintf("%s %d", direction, degrees))
}

// SetSpeed sets the cruise speed in [1,100] cm/s and caches it on success.
func (c *Controller) SetSpeed(speed int) error {
	if speed < 1 || speed > 100 {
		return fmt.Errorf("%w: speed %d not in [1,100]", ErrArgumentDomain, speed)
	}

	if err := c.simpleCommand(fmt.Sprintf("speed %d", speed)); err != nil {
		return err
	}

	c.record.update(func(st *Status) {
		st.Speed = speed
	})
	return nil
}

// simpleCommand sends a normal-priority command that must be answered "ok".
func (c *Controller) simpleCommand(text string) error {
	if c.channel == nil {
		return fmt.Errorf("%w: %q while disconnected", ErrStatePrecondition, text)
	}

	resp, err := c.channel.Send(Request{Text: text, Priority: PriorityNormal})
	if err != nil {
		return err
	}

	switch {
	case resp == okResponse:
		return nil
	case strings.Contains(resp, imuWarningResponse):
		return fmt.Errorf("%w: IMU warning for %q", ErrUnexpectedResponse, text)
	default:
		return fmt.Errorf("%w: %q reply %q", ErrUnexpectedResponse, text, resp)
	}
}

// Battery returns the battery percentage, querying the vehicle and falling
// back to the last known telemetry value.
func (c *Controller) Battery() int {
	if n, err := c.query("battery?", parseNumberInt); err == nil {
		c.record.update(func(st *Status) { st.Battery = n })
		return n
	}
	return c.record.snapshot().Battery
}

// Height returns the current altitude in centimeters, querying the vehicle
// (tolerating decimeter replies such as "8dm") and falling back to the last
// known telemetry value.
func (c *Controller) Height() int {
	if n, err := c.query("height?", parseLengthCm); err == nil {
		c.record.update(func(st *Status) { st.Altitude = n })
		return n
	}
	return c.record.snapshot().Altitude
}

// Speed returns the current speed setting in cm/s, querying the vehicle and
// falling back to the last cached value.
func (c *Controller) Speed() int {
	if n, err := c.query("speed?", parseNumberInt); err == nil {
		c.record.update(func(st *Status) { st.Speed = n })
		return n
	}
	return c.record.snapshot().Speed
}

// query issues a low-priority status query with a short timeout. Queries
// are best-effort: the caller falls back to cached status on failure.
func (c *Controller) query(text string, parse func(string) (int, error)) (int, error) {
	if c.channel == nil {
		return 0, fmt.Errorf("%w: query while disconnected", ErrStatePrecondition)
	}

	resp, err := c.channel.Send(Request{
		Text:     text,
		Priority: PriorityLow,
		Timeout:  probeTimeout,
	})
	if err != nil {
		return 0, err
	}

	n, err := parse(resp)
	if err != nil {
		return 0, fmt.Errorf("%w: %q reply %q: %w", ErrUnexpectedResponse, text, resp, err)
	}
	return n, nil
}

func parseNumberInt(s string) (int, error) {
	n, err := parseNumber(s)
	return int(n), err
}

// StartVideoStream asks the vehicle to start streaming and waits for the
// attached monitor to stabilize.
func (c *Controller) StartVideoStream(timeout time.Duration) error {
	if c.video == nil {
		return fmt.Errorf("%w: no video monitor attached", ErrStatePrecondition)
	}
	if c.channel == nil {
		return fmt.Errorf("%w: video stream while disconnected", ErrStatePrecondition)
	}

	if err := c.simpleCommand("streamon"); err != nil {
		return err
	}
	return c.video.Start(timeout)
}

// StopVideoStream stops the monitor and asks the vehicle to stop streaming.
func (c *Controller) StopVideoStream() error {
	if c.video != nil {
		c.video.Stop()
	}
	if c.channel == nil {
		return nil
	}
	return c.simpleCommand("streamoff")
}

// Frame returns the most recent decoded video frame, if any. Never blocks
// on the capture loop.
func (c *Controller) Frame() (video.Frame, bool) {
	if c.video == nil {
		return video.Frame{}, false
	}
	return c.video.Frame()
}

// VideoState reports the health of the video stream.
func (c *Controller) VideoState() video.State {
	if c.video == nil {
		return video.StateDisconnected
	}
	return c.video.State()
}
