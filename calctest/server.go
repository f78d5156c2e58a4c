// Package calctest provides a scripted calculation peer on loopback TCP and
// UDP sockets for tests of the client.
package calctest

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
	"github.com/rs/zerolog"
)

// ioTimeout bounds every peer read so a stuck client never hangs a test.
const ioTimeout = 5 * time.Second

// Options scripts the peer. The zero value serves "add 3 4" in text and
// judges results by equality.
type Options struct {
	API protocol.API

	// Greeting replaces the version lines sent before the blank line.
	Greeting []string
	// Assignment is the task handed out, add 3 4 when Op is zero.
	Assignment   protocol.TextAssignment
	AssignmentID uint32
	// MajorVersion of binary assignment records, 1 when zero.
	MajorVersion uint16

	// Judge decides the verdict, equality with the true result when nil.
	Judge func(got, want int32) bool

	// RejectHello answers the binary UDP hello with the error record.
	RejectHello bool
	// SkipGreeting answers the UDP hello with the assignment directly.
	SkipGreeting bool
	// Silent reads but never answers.
	Silent bool
	// HangUp closes TCP connections right after accepting them.
	HangUp bool

	Logger zerolog.Logger
}

func (o Options) assignment() protocol.TextAssignment {
	if o.Assignment.Op == 0 {
		return protocol.TextAssignment{Op: protocol.OpAdd, Value1: 3, Value2: 4}
	}
	return o.Assignment
}

func (o Options) majorVersion() uint16 {
	if o.MajorVersion == 0 {
		return protocol.MajorVersion
	}
	return o.MajorVersion
}

func (o Options) greeting(kind transport.Kind) []string {
	if o.Greeting != nil {
		return o.Greeting
	}
	return []string{protocol.Greeting(o.API, kind.String())}
}

func (o Options) judge(got int32) bool {
	a := o.assignment()
	want, err := protocol.Compute(a.Op, a.Value1, a.Value2)
	if err != nil {
		return false
	}
	if o.Judge != nil {
		return o.Judge(got, want)
	}
	return got == want
}

// stats is what one transport observed.
type stats struct {
	sessions int
	results  []int32
}

// Server is a running scripted peer.
type Server struct {
	tcpOpts  Options
	udpOpts  Options
	listener net.Listener
	packet   *net.UDPConn
	port     int
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	stats map[transport.Kind]*stats
}

func newServer() *Server {
	return &Server{
		conns: make(map[net.Conn]struct{}),
		stats: map[transport.Kind]*stats{
			transport.KindTCP: {},
			transport.KindUDP: {},
		},
	}
}

// Start serves kind on a random loopback port until the test ends.
func Start(t testing.TB, kind transport.Kind, opts Options) *Server {
	t.Helper()
	s := newServer()
	var err error
	if kind == transport.KindTCP {
		err = s.listenTCP(0, opts)
	} else {
		err = s.listenUDP(0, opts)
	}
	if err != nil {
		t.Fatalf("calctest: listen %s: %v", kind, err)
	}
	t.Cleanup(s.Close)
	return s
}

// StartPair serves TCP with tcpOpts and UDP with udpOpts on the same port
// number.
func StartPair(t testing.TB, tcpOpts, udpOpts Options) *Server {
	t.Helper()
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		s := newServer()
		if lastErr = s.listenTCP(0, tcpOpts); lastErr != nil {
			continue
		}
		if lastErr = s.listenUDP(s.port, udpOpts); lastErr != nil {
			s.Close()
			continue
		}
		t.Cleanup(s.Close)
		return s
	}
	t.Fatalf("calctest: no free tcp+udp port pair: %v", lastErr)
	return nil
}

// Host is the loopback address served on.
func (s *Server) Host() string {
	return "127.0.0.1"
}

// Port is the port number shared by every served transport.
func (s *Server) Port() int {
	return s.port
}

// Endpoint returns the endpoint of the server on kind.
func (s *Server) Endpoint(kind transport.Kind) transport.Endpoint {
	return transport.Endpoint{Kind: kind, Host: s.Host(), Port: s.port}
}

// Sessions counts the sessions started on kind.
func (s *Server) Sessions(kind transport.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[kind].sessions
}

// Results lists the results submitted on kind, in arrival order.
func (s *Server) Results(kind transport.Kind) []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32(nil), s.stats[kind].results...)
}

func (s *Server) sessionStarted(kind transport.Kind) {
	s.mu.Lock()
	s.stats[kind].sessions++
	s.mu.Unlock()
}

func (s *Server) resultReceived(kind transport.Kind, result int32) {
	s.mu.Lock()
	s.stats[kind].results = append(s.stats[kind].results, result)
	s.mu.Unlock()
}

// Close stops serving and waits for in-flight sessions.
func (s *Server) Close() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.packet != nil {
		_ = s.packet.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
