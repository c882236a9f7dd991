package tello

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const telemetryReadTimeout = time.Second

// statusConn is the read side of the telemetry socket. *net.UDPConn
// satisfies it.
type statusConn interface {
	SetReadDeadline(t time.Time) error
	Read(p []byte) (int, error)
	Close() error
}

// listenTelemetry binds the local telemetry port, on which the vehicle sends
// unsolicited periodic datagrams.
func listenTelemetry(localPort int) (statusConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", ":"+strconv.Itoa(localPort))
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", laddr)
}

// telemetryFields maps token positions to status fields. The vehicle emits
// a fixed-order, semicolon-delimited key:value datagram; values are applied
// by position, so the order here must match the wire order exactly.
var telemetryFields = []struct {
	name string
	set  func(*Status, string) error
}{
	{"pitch", func(st *Status, v string) error { return setInt(&st.Pitch, v) }},
	{"roll", func(st *Status, v string) error { return setInt(&st.Roll, v) }},
	{"yaw", func(st *Status, v string) error { return setInt(&st.Yaw, v) }},
	{"vgx", func(st *Status, v string) error { return setFloat(&st.Velocity.X, v) }},
	{"vgy", func(st *Status, v string) error { return setFloat(&st.Velocity.Y, v) }},
	{"vgz", func(st *Status, v string) error { return setFloat(&st.Velocity.Z, v) }},
	{"templ", func(st *Status, v string) error { return setInt(&st.Temperature.Low, v) }},
	{"temph", func(st *Status, v string) error { return setInt(&st.Temperature.High, v) }},
	{"tof", func(st *Status, v string) error { return setInt(&st.TimeOfFlight, v) }},
	{"h", func(st *Status, v string) error { return setInt(&st.Altitude, v) }},
	{"bat", func(st *Status, v string) error { return setInt(&st.Battery, v) }},
	{"baro", func(st *Status, v string) error { return setFloat(&st.Pressure, v) }},
	{"time", func(st *Status, v string) error { return setInt(&st.FlightTime, v) }},
	{"agx", func(st *Status, v string) error { return setFloat(&st.Acceleration.X, v) }},
	{"agy", func(st *Status, v string) error { return setFloat(&st.Acceleration.Y, v) }},
	{"agz", func(st *Status, v string) error { return setFloat(&st.Acceleration.Z, v) }},
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// decodeTelemetry applies one telemetry datagram to the status record. A
// malformed token skips only its own field; the remaining tokens are still
// applied. Unknown trailing tokens are ignored.
func decodeTelemetry(datagram string, st *Status) {
	tokens := strings.Split(strings.TrimSpace(datagram), ";")

	values := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, v, ok := strings.Cut(token, ":"); ok {
			values = append(values, v)
		}
	}

	for i, field := range telemetryFields {
		if i >= len(values) {
			break
		}
		if err := field.set(st, values[i]); err != nil {
			continue // per-field isolation
		}
	}
}

// ingester reads telemetry datagrams in the background and overwrites the
// shared status record field by field. Telemetry loss is never fatal to the
// controller; read timeouts continue the loop silently and other socket
// errors are logged and skipped.
type ingester struct {
	conn   statusConn
	record *statusRecord
	logger *slog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newIngester(conn statusConn, record *statusRecord, logger *slog.Logger) *ingester {
	return &ingester{
		conn:   conn,
		record: record,
		logger: logger.With(slog.String("component", "telemetry")),
	}
}

func (in *ingester) start() {
	if !in.running.CompareAndSwap(false, true) {
		return
	}

	var ctx context.Context
	ctx, in.cancel = context.WithCancel(context.Background())

	in.wg.Add(1)
	go in.run(ctx)
}

func (in *ingester) stop() {
	if !in.running.CompareAndSwap(true, false) {
		return
	}

	in.cancel()
	in.wg.Wait()

	if err := in.conn.Close(); err != nil {
		in.logger.Warn("closing telemetry socket", slog.String("error", err.Error()))
	}
}

func (in *ingester) run(ctx context.Context) {
	defer in.wg.Done()

	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := in.conn.SetReadDeadline(time.Now().Add(telemetryReadTimeout)); err != nil {
			in.logger.Warn("setting telemetry read deadline", slog.String("error", err.Error()))
			return
		}

		n, err := in.conn.Read(buf)
		if err != nil {
			if isTimeout(err) || ctx.Err() != nil {
				continue
			}
			in.logger.Warn("telemetry read failed", slog.String("error", err.Error()))
			continue
		}

		datagram := string(buf[:n])
		in.record.update(func(st *Status) {
			decodeTelemetry(datagram, st)
		})
	}
}
