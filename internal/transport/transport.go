// Package transport defines the datagram endpoint capability the core
// consumes: send one datagram, receive one with a timeout. It is the one
// place that opens and touches a real socket (the core imports net only
// for net.Addr), keeping internal/sender and internal/receiver testable
// against a simulated substrate instead.
package transport

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/phuwit/urft/internal/config"
)

// ErrTimeout is returned by Endpoint.Receive when no datagram arrived
// within the requested timeout. Callers distinguish it from other I/O
// failures with errors.Is.
var ErrTimeout = errors.New("transport: receive timed out")

// Endpoint is the datagram capability the core depends on: bind/dial is
// someone else's job, this interface only moves bytes.
type Endpoint interface {
	// Send transmits b to the peer set by Dial. An endpoint opened with
	// Listen has no such peer (SendTo does not set one), so it replies
	// with SendTo.
	Send(b []byte) error
	// SendTo transmits b to addr, independent of any peer set by Dial.
	SendTo(b []byte, addr net.Addr) error
	// Receive blocks for up to timeout waiting for one datagram. It
	// returns ErrTimeout if none arrives in time.
	Receive(timeout time.Duration) (b []byte, from net.Addr, err error)
	LocalAddr() net.Addr
	Close() error
}

type udpEndpoint struct {
	conn *net.UDPConn
}

// Dial opens a UDP endpoint connected to host:port, for the sender, with
// the default socket buffer sizes.
func Dial(host string, port int) (Endpoint, error) {
	return DialWithBuffers(host, port, config.DefaultReadBuffer, config.DefaultWriteBuffer)
}

// DialWithBuffers is Dial with caller-supplied socket buffer sizes; a
// zero value for either keeps internal/config's default.
func DialWithBuffers(host string, port, readBuf, writeBuf int) (Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, portString(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	setBuffers(conn, readBuf, writeBuf)
	return &udpEndpoint{conn: conn}, nil
}

// Listen opens a UDP endpoint bound to host:port, for the receiver, with
// the default socket buffer sizes.
func Listen(host string, port int) (Endpoint, error) {
	return ListenWithBuffers(host, port, config.DefaultReadBuffer, config.DefaultWriteBuffer)
}

// ListenWithBuffers is Listen with caller-supplied socket buffer sizes; a
// zero value for either keeps internal/config's default.
func ListenWithBuffers(host string, port, readBuf, writeBuf int) (Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, portString(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	setBuffers(conn, readBuf, writeBuf)
	return &udpEndpoint{conn: conn}, nil
}

func setBuffers(conn *net.UDPConn, readBuf, writeBuf int) {
	if readBuf <= 0 {
		readBuf = config.DefaultReadBuffer
	}
	if writeBuf <= 0 {
		writeBuf = config.DefaultWriteBuffer
	}
	_ = conn.SetReadBuffer(readBuf)
	_ = conn.SetWriteBuffer(writeBuf)
}

func (e *udpEndpoint) Send(b []byte) error {
	_, err := e.conn.Write(b)
	return err
}

func (e *udpEndpoint) SendTo(b []byte, addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return errors.New("transport: SendTo requires a *net.UDPAddr")
	}
	_, err := e.conn.WriteToUDP(b, udpAddr)
	return err
}

func (e *udpEndpoint) Receive(timeout time.Duration) ([]byte, net.Addr, error) {
	buf := make([]byte, config.MaxSegment)
	_ = e.conn.SetReadDeadline(time.Now().Add(timeout))
	n, addr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, ErrTimeout
		}
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

func (e *udpEndpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

func (e *udpEndpoint) Close() error { return e.conn.Close() }

func portString(port int) string {
	return strconv.Itoa(port)
}
