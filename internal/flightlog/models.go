package flightlog

import (
	"time"

	"github.com/droneworks/tellostation/internal/tello"
)

// Session is one connect-to-disconnect flight recording.
type Session struct {
	ID        int64
	StartTime time.Time
	DroneAddr string
	Config    *string // JSON blob of the station configuration, if recorded
}

// TelemetryRow is one periodic status snapshot.
type TelemetryRow struct {
	ID           int64
	SessionID    int64
	Timestamp    time.Time
	Battery      int
	Altitude     int
	Pitch        int
	Roll         int
	Yaw          int
	VelX         float64
	VelY         float64
	VelZ         float64
	AccelX       float64
	AccelY       float64
	AccelZ       float64
	TempLow      int
	TempHigh     int
	Pressure     float64
	TimeOfFlight int
	FlightTime   int
	State        string
}

// CommandRow is one audited command exchange.
type CommandRow struct {
	ID         int64
	SessionID  int64
	Timestamp  time.Time
	Command    string
	Priority   string
	Response   string
	Error      string
	Attempts   int
	DurationMs int64
}

// TelemetryFromStatus converts a controller status snapshot into a storable
// row.
func TelemetryFromStatus(ts time.Time, st tello.Status) TelemetryRow {
	return TelemetryRow{
		Timestamp:    ts.UTC(),
		Battery:      st.Battery,
		Altitude:     st.Altitude,
		Pitch:        st.Pitch,
		Roll:         st.Roll,
		Yaw:          st.Yaw,
		VelX:         st.Velocity.X,
		VelY:         st.Velocity.Y,
		VelZ:         st.Velocity.Z,
		AccelX:       st.Acceleration.X,
		AccelY:       st.Acceleration.Y,
		AccelZ:       st.Acceleration.Z,
		TempLow:      st.Temperature.Low,
		TempHigh:     st.Temperature.High,
		Pressure:     st.Pressure,
		TimeOfFlight: st.TimeOfFlight,
		FlightTime:   st.FlightTime,
		State:        string(st.State),
	}
}

// CommandFromExchange converts a command audit record into a storable row.
func CommandFromExchange(e tello.Exchange) CommandRow {
	row := CommandRow{
		Timestamp:  e.Timestamp.UTC(),
		Command:    e.Command,
		Priority:   e.Priority.String(),
		Response:   e.Response,
		Attempts:   e.Attempts,
		DurationMs: e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		row.Error = e.Err.Error()
	}
	return row
}
