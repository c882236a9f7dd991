package tello

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDecodeTelemetry(t *testing.T) {
	tests := []struct {
		name     string
		datagram string
		initial  Status
		want     Status
	}{
		{
			name: "full datagram",
			datagram: "pitch:1;roll:-2;yaw:3;vgx:0.1;vgy:0.2;vgz:-0.3;" +
				"templ:60;temph:65;tof:40;h:30;bat:87;baro:1013.25;time:120;" +
				"agx:5.21;agy:-5.21;agz:-999.9;\r\n",
			want: Status{
				Pitch:        1,
				Roll:         -2,
				Yaw:          3,
				Velocity:     Vec3{X: 0.1, Y: 0.2, Z: -0.3},
				Temperature:  TempRange{Low: 60, High: 65},
				TimeOfFlight: 40,
				Altitude:     30,
				Battery:      87,
				Pressure:     1013.25,
				FlightTime:   120,
				Acceleration: Vec3{X: 5.21, Y: -5.21, Z: -999.9},
			},
		},
		{
			name:     "malformed token skips only its field",
			datagram: "pitch:bogus;roll:5;yaw:7",
			initial:  Status{Pitch: 9},
			want:     Status{Pitch: 9, Roll: 5, Yaw: 7},
		},
		{
			name:     "short datagram applies leading fields",
			datagram: "pitch:4;roll:5",
			want:     Status{Pitch: 4, Roll: 5},
		},
		{
			name:     "unknown trailing tokens ignored",
			datagram: "pitch:1;roll:2;yaw:3;vgx:0;vgy:0;vgz:0;templ:0;temph:0;tof:0;h:0;bat:0;baro:0;time:0;agx:0;agy:0;agz:0;mystery:42",
			want:     Status{Pitch: 1, Roll: 2, Yaw: 3},
		},
		{
			name:     "no separators leaves status untouched",
			datagram: "garbage",
			initial:  Status{Battery: 42},
			want:     Status{Battery: 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.initial
			decodeTelemetry(tt.datagram, &st)
			if st != tt.want {
				t.Errorf("decodeTelemetry() = %+v, want %+v", st, tt.want)
			}
		})
	}
}

func TestIngesterAppliesDatagrams(t *testing.T) {
	conn := newFakeStatusConn()
	var record statusRecord

	in := newIngester(conn, &record, slog.New(slog.NewTextHandler(io.Discard, nil)))
	in.start()
	in.start() // second start is a no-op

	conn.datagrams <- "pitch:1;roll:2;yaw:3;vgx:0;vgy:0;vgz:0;templ:60;temph:65;tof:40;h:30;bat:87;baro:1013.25;time:120;agx:0;agy:0;agz:0;"

	deadline := time.Now().Add(time.Second)
	for record.snapshot().Battery != 87 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	st := record.snapshot()
	if st.Battery != 87 || st.Altitude != 30 || st.Temperature.High != 65 {
		t.Errorf("snapshot = %+v, want datagram applied", st)
	}

	in.stop()
	if !conn.closed.Load() {
		t.Error("stop() did not close the telemetry socket")
	}
	in.stop() // idempotent
}
