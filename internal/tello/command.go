package tello

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCommandTimeout bounds a single wait for a command reply.
	DefaultCommandTimeout = 7 * time.Second

	// DefaultRetries is the per-command retry budget.
	DefaultRetries = 3

	// DefaultKeepAliveIdle is the idle period after which the channel issues
	// a no-op command so the vehicle does not drop the session.
	DefaultKeepAliveIdle = 12 * time.Second

	defaultRetryBackoff = time.Second
	probeTimeout        = 2 * time.Second
	keepAlivePoll       = time.Second

	// noopCommand doubles as the SDK-entry command and the keep-alive no-op.
	noopCommand  = "command"
	probeCommand = "speed?"
)

const (
	PriorityEmergency Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// Priority is advisory metadata attached to a command. The channel is
// strictly single-in-flight, so priority never reorders or preempts; it is
// carried through to the command observer for auditing.
type Priority int

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Transport is a single request/reply datagram socket to the vehicle's
// command port.
type Transport interface {
	Send(p []byte) error
	Recv(p []byte, deadline time.Time) (int, error)
	Close() error
}

type udpTransport struct {
	conn *net.UDPConn
}

// DialTransport binds the local command port and connects the socket to the
// vehicle's command address.
func DialTransport(localPort int, droneAddr string) (Transport, error) {
	laddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", localPort))
	if err != nil {
		return nil, fmt.Errorf("resolving local command address: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp", droneAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving drone command address: %w", err)
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing drone command address: %w", err)
	}
	return &udpTransport{conn: conn}, nil
}

func (t *udpTransport) Send(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

func (t *udpTransport) Recv(p []byte, deadline time.Time) (int, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	return t.conn.Read(p)
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}

// Request describes one command to send over the channel.
type Request struct {
	Text             string
	Priority         Priority
	ExpectedResponse string // when set, a different reply is a failure
	Timeout          time.Duration
	Retries          int
}

// Exchange is the audit record of one completed command round trip,
// delivered to the channel's observer.
type Exchange struct {
	Timestamp time.Time
	Command   string
	Priority  Priority
	Response  string
	Err       error
	Attempts  int
	Duration  time.Duration
}

// WithLogger sets the logger for the channel.
func WithLogger(logger *slog.Logger) func(*Channel) {
	return func(c *Channel) {
		c.logger = logger.With(slog.String("component", "command"))
	}
}

// WithCommandObserver registers a hook invoked after every exchange,
// including keep-alive no-ops and failures.
func WithCommandObserver(fn func(Exchange)) func(*Channel) {
	return func(c *Channel) {
		c.observer = fn
	}
}

// WithKeepAliveIdle sets the idle threshold for keep-alive no-ops. A zero or
// negative value disables the keep-alive loop.
func WithKeepAliveIdle(d time.Duration) func(*Channel) {
	return func(c *Channel) {
		c.keepAliveIdle = d
	}
}

// WithRetryBackoff sets the fixed wait between retry attempts.
func WithRetryBackoff(d time.Duration) func(*Channel) {
	return func(c *Channel) {
		c.backoff = d
	}
}

// Channel sends ASCII commands to the vehicle and waits for exactly one
// reply datagram per attempt. Concurrent callers are serialized; exactly one
// command is in flight at a time, and the keep-alive loop participates in
// the same exclusion.
type Channel struct {
	transport Transport
	logger    *slog.Logger
	observer  func(Exchange)

	keepAliveIdle time.Duration
	backoff       time.Duration

	mu sync.Mutex // serializes the request/reply cycle on the socket

	lastMu   sync.Mutex
	lastSend time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewChannel creates a command channel over the given transport with a
// discard logger.
func NewChannel(transport Transport, options ...func(*Channel)) *Channel {
	c := Channel{
		transport:     transport,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		keepAliveIdle: DefaultKeepAliveIdle,
		backoff:       defaultRetryBackoff,
		lastSend:      time.Now(),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Start marks the channel active and launches the keep-alive loop.
func (c *Channel) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}

	c.touch()

	if c.keepAliveIdle <= 0 {
		return
	}

	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.keepAlive(ctx)
}

// Stop ends the keep-alive loop, waits for it to exit and closes the
// transport. It is safe to call more than once.
func (c *Channel) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.transport.Close(); err != nil {
		c.logger.Warn("closing command transport", slog.String("error", err.Error()))
	}
}

// Send transmits the request and waits for a single reply, retrying on
// timeout with a fixed backoff. For the flight-critical commands (takeoff,
// land) a timeout triggers a liveness probe; a probe reply after a lost
// takeoff ack is treated as success, since the action likely happened.
//
// A command in progress always runs to completion of its own timeout/retry
// budget; callers wanting cancellation must layer a timeout on top.
func (c *Channel) Send(req Request) (string, error) {
	if req.Timeout <= 0 {
		req.Timeout = DefaultCommandTimeout
	}
	if req.Retries <= 0 {
		req.Retries = DefaultRetries
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	attempts := 0

	finish := func(resp string, err error) (string, error) {
		c.touch()
		c.observe(Exchange{
			Timestamp: started,
			Command:   req.Text,
			Priority:  req.Priority,
			Response:  resp,
			Err:       err,
			Attempts:  attempts,
			Duration:  time.Since(started),
		})
		return resp, err
	}

	var lastErr error
	for attempt := 0; attempt < req.Retries; attempt++ {
		attempts++
		resp, err := c.exchange(req.Text, req.Timeout)
		if err == nil {
			if req.ExpectedResponse != "" && resp != req.ExpectedResponse {
				return finish("", fmt.Errorf("%w: sent %q, expected %q, got %q",
					ErrUnexpectedResponse, req.Text, req.ExpectedResponse, resp))
			}
			return finish(resp, nil)
		}
		lastErr = err

		c.logger.Warn("command attempt failed",
			slog.String("command", req.Text),
			slog.Int("attempt", attempt+1),
			slog.Int("retries", req.Retries),
			slog.String("error", err.Error()))

		if errors.Is(err, ErrCommandTimeout) && flightCritical(req.Text) {
			// The ack may have been lost while the action happened. Give the
			// vehicle a moment, then probe with a cheap status query.
			time.Sleep(c.backoff)
			if _, perr := c.exchange(probeCommand, probeTimeout); perr == nil {
				c.logger.Info("vehicle responsive after lost ack", slog.String("command", req.Text))
				if req.Text == takeoffCommand {
					return finish(okResponse, nil)
				}
			}
		}

		if attempt < req.Retries-1 {
			time.Sleep(c.backoff)
		}
	}

	return finish("", lastErr)
}

// exchange performs one raw send/receive cycle. Callers hold c.mu.
func (c *Channel) exchange(text string, timeout time.Duration) (string, error) {
	if err := c.transport.Send([]byte(text)); err != nil {
		return "", fmt.Errorf("%w: sending %q: %w", ErrTransport, text, err)
	}

	buf := make([]byte, 1024)
	n, err := c.transport.Recv(buf, time.Now().Add(timeout))
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %s", ErrCommandTimeout, text)
		}
		return "", fmt.Errorf("%w: receiving reply to %q: %w", ErrTransport, text, err)
	}

	return strings.TrimSpace(string(buf[:n])), nil
}

func (c *Channel) keepAlive(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(keepAlivePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Since(c.last()) < c.keepAliveIdle {
			continue
		}

		if _, err := c.Send(Request{
			Text:     noopCommand,
			Priority: PriorityLow,
			Timeout:  probeTimeout,
			Retries:  1,
		}); err != nil {
			c.logger.Warn("keep-alive failed", slog.String("error", err.Error()))
		}
	}
}

func (c *Channel) touch() {
	c.lastMu.Lock()
	c.lastSend = time.Now()
	c.lastMu.Unlock()
}

func (c *Channel) last() time.Time {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastSend
}

func (c *Channel) observe(e Exchange) {
	if c.observer != nil {
		c.observer(e)
	}
}

func flightCritical(command string) bool {
	return command == takeoffCommand || command == landCommand
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
