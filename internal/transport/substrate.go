// Package transport implements the unreliable datagram substrate the
// replication core runs over (spec §6 "Substrate contract"), grounded on
// the teacher's UDPTransport (internal/transport/udp.go: net.ListenUDP,
// WriteToUDP/ReadFromUDP, ResolveUDPTarget), redesigned from its
// RPC-fragmentation-and-reassembly model to the spec's single fixed-MTU,
// no-fragmentation datagram contract (spec §5 "the core never blocks except
// on the substrate's non-blocking I/O").
package transport

import (
	"net"
	"time"
)

// Substrate is the small transport contract the core consumes (spec §6):
// best-effort, unreliable, unordered send, and a non-blocking recv.
type Substrate interface {
	Send(addr *net.UDPAddr, payload []byte) error
	// Recv returns the next datagram without blocking. ok is false if
	// nothing arrived within the poll window.
	Recv() (addr *net.UDPAddr, payload []byte, ok bool, err error)
	LocalAddr() net.Addr
	Close() error
}

// UDPSubstrate implements Substrate over a bound net.UDPConn. Recv never
// blocks longer than pollTimeout, matching the single-threaded cooperative
// scheduling model (spec §5): the application drives receive() ->
// drain events -> tick() -> send() itself, so a blocking read here would
// stall everything else sharing the loop.
type UDPSubstrate struct {
	conn        *net.UDPConn
	mtu         int
	pollTimeout time.Duration
}

// ResolveUDPTarget resolves addr, which may be an IP:port, a bare ":port"
// for wildcard bind, or an FQDN:port (grounded on the teacher's
// ResolveUDPTarget, minus its random-pick-among-many-IPs load-balancing —
// this engine dials one known peer per connection, not a pool of replicas).
func ResolveUDPTarget(addr string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", addr)
}

// NewUDPSubstrate binds a UDP socket at addr with the given MTU and poll
// timeout (how long Recv may block waiting for a datagram before returning
// ok=false).
func NewUDPSubstrate(addr string, mtu int, pollTimeout time.Duration) (*UDPSubstrate, error) {
	udpAddr, err := ResolveUDPTarget(addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if pollTimeout <= 0 {
		pollTimeout = time.Millisecond
	}
	return &UDPSubstrate{conn: conn, mtu: mtu, pollTimeout: pollTimeout}, nil
}

// Send writes payload to addr, best-effort.
func (s *UDPSubstrate) Send(addr *net.UDPAddr, payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, addr)
	return err
}

// Recv polls for one datagram, returning ok=false on timeout rather than
// blocking indefinitely.
func (s *UDPSubstrate) Recv() (*net.UDPAddr, []byte, bool, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout)); err != nil {
		return nil, nil, false, err
	}
	buf := make([]byte, s.mtu)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	return addr, buf[:n], true, nil
}

// LocalAddr returns the socket's bound address.
func (s *UDPSubstrate) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close releases the underlying socket.
func (s *UDPSubstrate) Close() error { return s.conn.Close() }
