package video

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// DefaultVideoAddr is the local address on which the vehicle streams video.
const DefaultVideoAddr = ":11111"

const (
	udpReadTimeout = 200 * time.Millisecond
	udpPacketSize  = 2048
	udpHeaderSize  = 2 // sequence/sub-sequence prefix on each datagram
)

// UDPSource reads raw video datagrams from the vehicle's video port. Frames
// are opaque payloads; decoding is left to an external media pipeline, so
// this source pairs with the default (high) stability threshold.
type UDPSource struct {
	addr string
	conn *net.UDPConn
}

// NewUDPSource creates a source listening on addr (host:port or :port).
func NewUDPSource(addr string) *UDPSource {
	if addr == "" {
		addr = DefaultVideoAddr
	}
	return &UDPSource{addr: addr}
}

// Open binds the video port.
func (s *UDPSource) Open() error {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolving video address: %w", err)
	}
	if s.conn, err = net.ListenUDP("udp", laddr); err != nil {
		return fmt.Errorf("binding video port: %w", err)
	}
	return nil
}

// Read waits briefly for the next datagram. An idle interval yields an
// empty frame so the monitor's counter and watchdog can run.
func (s *UDPSource) Read() (Frame, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(udpReadTimeout)); err != nil {
		return Frame{}, err
	}

	buf := make([]byte, udpPacketSize)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return Frame{}, nil
		}
		return Frame{}, err
	}
	if n <= udpHeaderSize {
		return Frame{}, nil
	}

	return Frame{Data: buf[udpHeaderSize:n]}, nil
}

// Close releases the video socket.
func (s *UDPSource) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
