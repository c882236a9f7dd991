package flightlog

import (
	"errors"
	"testing"
	"time"

	"github.com/droneworks/tellostation/internal/tello"
)

func TestTelemetryFromStatus(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.FixedZone("AEST", 10*3600))
	st := tello.Status{
		Battery:      87,
		Altitude:     80,
		Pitch:        1,
		Roll:         -2,
		Yaw:          3,
		Velocity:     tello.Vec3{X: 0.1, Y: 0.2, Z: -0.3},
		Acceleration: tello.Vec3{X: 5.2, Y: -5.2, Z: -999.9},
		Temperature:  tello.TempRange{Low: 60, High: 65},
		Pressure:     1013.25,
		TimeOfFlight: 40,
		FlightTime:   120,
		State:        tello.StateFlying,
	}

	row := TelemetryFromStatus(ts, st)

	if row.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp location = %v, want UTC", row.Timestamp.Location())
	}
	if !row.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", row.Timestamp, ts)
	}
	if row.Battery != 87 || row.Altitude != 80 || row.VelZ != -0.3 {
		t.Errorf("row = %+v, want status fields carried over", row)
	}
	if row.TempLow != 60 || row.TempHigh != 65 || row.Pressure != 1013.25 {
		t.Errorf("row = %+v, want environment fields carried over", row)
	}
	if row.State != "flying" {
		t.Errorf("State = %q, want %q", row.State, "flying")
	}
}

func TestCommandFromExchange(t *testing.T) {
	ts := time.Now()

	row := CommandFromExchange(tello.Exchange{
		Timestamp: ts,
		Command:   "takeoff",
		Priority:  tello.PriorityHigh,
		Response:  "ok",
		Attempts:  2,
		Duration:  1500 * time.Millisecond,
	})

	if row.Command != "takeoff" || row.Priority != "high" || row.Response != "ok" {
		t.Errorf("row = %+v, want exchange fields carried over", row)
	}
	if row.Error != "" {
		t.Errorf("Error = %q, want empty for a successful exchange", row.Error)
	}
	if row.Attempts != 2 || row.DurationMs != 1500 {
		t.Errorf("row = %+v, want attempts and duration carried over", row)
	}

	failed := CommandFromExchange(tello.Exchange{
		Command: "land",
		Err:     errors.New("command timed out"),
	})
	if failed.Error != "command timed out" {
		t.Errorf("Error = %q, want the exchange error text", failed.Error)
	}
}
