// Package transport provides the byte channel a calculation session runs on:
// a TCP stream or a connected UDP socket, both with per-receive deadlines.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Mmx233/QCalc/outcome"
)

// Kind identifies the transport of a channel.
type Kind int

const (
	KindTCP Kind = iota
	KindUDP
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Stream reports whether the kind carries an ordered byte stream rather
// than datagrams.
func (k Kind) Stream() bool {
	return k == KindTCP
}

// ParseKind parses "tcp" or "udp", case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return KindTCP, nil
	case "udp":
		return KindUDP, nil
	default:
		return 0, fmt.Errorf("unknown transport %q", s)
	}
}

// Endpoint is a resolved-on-dial server address.
type Endpoint struct {
	Kind Kind
	Host string
	Port int
}

// Address returns host:port, bracketing IPv6 literals.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Kind.String() + "://" + e.Address()
}

// Channel is a single-peer byte channel.
//
// Receive on a stream channel may return fewer bytes than a logical message;
// on a datagram channel it returns exactly one datagram.
type Channel interface {
	Kind() Kind
	Send(data []byte) error
	Receive(max int, deadline time.Time) ([]byte, error)
	RemoteAddr() net.Addr
	Close() error
}

// ErrPeerClosed is returned when a stream peer closes the connection.
var ErrPeerClosed = fmt.Errorf("%w: connection closed by peer", outcome.ErrTransport)

// Dialer opens channels.
type Dialer struct {
	// ConnectTimeout bounds name resolution plus connect. Zero means no
	// limit beyond ctx.
	ConnectTimeout time.Duration
}

// Dial resolves and connects to the endpoint. For UDP the socket is
// connected, so only datagrams from the endpoint are received.
func (d Dialer) Dial(ctx context.Context, ep Endpoint) (Channel, error) {
	nd := net.Dialer{Timeout: d.ConnectTimeout}

	switch ep.Kind {
	case KindTCP:
		conn, err := nd.DialContext(ctx, "tcp", ep.Address())
		if err != nil {
			return nil, classifyDial(err)
		}
		return newTCPChannel(conn.(*net.TCPConn)), nil
	case KindUDP:
		conn, err := nd.DialContext(ctx, "udp", ep.Address())
		if err != nil {
			return nil, classifyDial(err)
		}
		return newUDPChannel(conn.(*net.UDPConn)), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transport %v", outcome.ErrTransport, ep.Kind)
	}
}

func classifyDial(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: resolve %s: %v", outcome.ErrTransport, dnsErr.Name, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: connection refused: %v", outcome.ErrTransport, err)
	}
	return fmt.Errorf("%w: dial: %v", outcome.ErrTransport, err)
}

// classifyIO maps a socket error to the outcome taxonomy.
func classifyIO(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s: no data before deadline", outcome.ErrTimeout, op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", outcome.ErrTimeout, op, err)
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %s: %v", ErrPeerClosed, op, err)
	}
	return fmt.Errorf("%w: %s: %v", outcome.ErrTransport, op, err)
}
