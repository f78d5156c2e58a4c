package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Mmx233/QCalc/outcome"
)

// TCPChannel is a stream channel over a connected TCP socket.
type TCPChannel struct {
	conn      *net.TCPConn
	closeOnce sync.Once
	closeErr  error
}

func newTCPChannel(conn *net.TCPConn) *TCPChannel {
	// Frames are tiny, send them immediately
	_ = conn.SetNoDelay(true)
	return &TCPChannel{conn: conn}
}

func (c *TCPChannel) Kind() Kind { return KindTCP }

func (c *TCPChannel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes all of data to the stream.
func (c *TCPChannel) Send(data []byte) error {
	if _, err := c.conn.Write(data); err != nil {
		return classifyIO("send", err)
	}
	return nil
}

// Receive reads at most max bytes, waiting until deadline. A clean close by
// the peer is reported as ErrPeerClosed.
func (c *TCPChannel) Receive(max int, deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %v", outcome.ErrTransport, err)
	}

	data, err := readInto(max, c.conn.Read)
	if len(data) > 0 {
		// Bytes before an error are still delivered, the error resurfaces
		// on the next read.
		return data, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, ErrPeerClosed
	}
	return nil, classifyIO("receive", err)
}

// Close closes the socket once. Later calls return the first result.
func (c *TCPChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
