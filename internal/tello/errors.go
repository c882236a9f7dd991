package tello

import "errors"

var (
	// ErrTransport is returned when the command socket fails at the network level.
	ErrTransport = errors.New("transport failure")

	// ErrCommandTimeout is returned when no reply arrives within the retry budget.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrUnexpectedResponse is returned when a reply is received but is
	// semantically wrong for the operation, including the IMU instability signal.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrStatePrecondition is returned when an operation is invoked while the
	// controller is in a state that forbids it.
	ErrStatePrecondition = errors.New("operation not allowed in current state")

	// ErrArgumentDomain is returned when a caller-supplied value is outside the
	// documented valid range. No network traffic is generated.
	ErrArgumentDomain = errors.New("argument out of range")
)
