package tello

import "sync"

const (
	StateDisconnected   State = "disconnected"
	StateConnected      State = "connected"
	StateFlying         State = "flying"
	StateFlyingUnstable State = "flying_unstable"
	StateLanded         State = "landed"
	StateError          State = "error"
)

// State is the controller-level flight state. Exactly one is active at a
// time. StateFlyingUnstable is reachable only from an IMU-warning takeoff
// and is treated as flying for subsequent commands.
type State string

// Vec3 is a velocity or acceleration vector.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// TempRange is the onboard temperature range in degrees Celsius.
type TempRange struct {
	Low  int
	High int
}

// Status is a best-effort snapshot of the vehicle's telemetry. A stale or
// zero field is valid and must not be treated as a failure on its own.
type Status struct {
	Battery      int     // percent
	Altitude     int     // cm
	Pitch        int     // degrees
	Roll         int     // degrees
	Yaw          int     // degrees
	Velocity     Vec3    // cm/s
	Acceleration Vec3    // cm/s²
	Temperature  TempRange
	Pressure     float64 // barometric, hPa
	TimeOfFlight int     // cm
	FlightTime   int     // onboard counter, seconds
	Speed        int     // last commanded speed, cm/s
	State        State
}

// statusRecord is the shared mutable status written by the telemetry
// ingester and the controller and read by any caller. The flight state
// itself lives behind the controller's state lock, not here.
type statusRecord struct {
	mu sync.RWMutex
	s  Status
}

func (r *statusRecord) snapshot() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s
}

func (r *statusRecord) update(fn func(*Status)) {
	r.mu.Lock()
	fn(&r.s)
	r.mu.Unlock()
}

func (r *statusRecord) reset() {
	r.mu.Lock()
	r.s = Status{}
	r.mu.Unlock()
}
