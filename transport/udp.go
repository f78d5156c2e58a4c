package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Mmx233/QCalc/outcome"
)

// UDPChannel is a datagram channel over a connected UDP socket.
type UDPChannel struct {
	conn      *net.UDPConn
	closeOnce sync.Once
	closeErr  error
}

func newUDPChannel(conn *net.UDPConn) *UDPChannel {
	return &UDPChannel{conn: conn}
}

func (c *UDPChannel) Kind() Kind { return KindUDP }

func (c *UDPChannel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes data as one datagram.
func (c *UDPChannel) Send(data []byte) error {
	n, err := c.conn.Write(data)
	if err != nil {
		return classifyIO("send", err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short datagram write: %d of %d bytes", outcome.ErrTransport, n, len(data))
	}
	return nil
}

// Receive returns one datagram of at most max bytes, waiting until deadline.
// Bytes past max are discarded by the kernel. An ICMP port unreachable from
// an earlier send surfaces here as a transport error.
func (c *UDPChannel) Receive(max int, deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %v", outcome.ErrTransport, err)
	}

	data, err := readInto(max, c.conn.Read)
	if err != nil {
		return nil, classifyIO("receive", err)
	}
	if data == nil {
		// Zero-length datagram
		return []byte{}, nil
	}
	return data, nil
}

// Close closes the socket once. Later calls return the first result.
func (c *UDPChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
