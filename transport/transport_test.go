package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Mmx233/QCalc/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// setupTCPServer starts a one-shot TCP server running serverLogic on the
// first accepted connection.
func setupTCPServer(t *testing.T, serverLogic func(net.Conn)) Endpoint {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serverLogic(conn)
	}()

	t.Cleanup(func() {
		listener.Close()
		<-done
	})

	addr := listener.Addr().(*net.TCPAddr)
	return Endpoint{Kind: KindTCP, Host: addr.IP.String(), Port: addr.Port}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("TCP")
	require.NoError(t, err)
	assert.Equal(t, KindTCP, k)
	assert.True(t, k.Stream())

	k, err = ParseKind("udp")
	require.NoError(t, err)
	assert.Equal(t, KindUDP, k)
	assert.False(t, k.Stream())

	_, err = ParseKind("sctp")
	assert.Error(t, err)
}

func TestEndpointAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1:5000", Endpoint{Host: "127.0.0.1", Port: 5000}.Address())
	assert.Equal(t, "[::1]:5000", Endpoint{Host: "::1", Port: 5000}.Address())
	assert.Equal(t, "udp://example.com:53", Endpoint{Kind: KindUDP, Host: "example.com", Port: 53}.String())
}

func TestTCPChannel_SendReceive(t *testing.T) {
	ep := setupTCPServer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	})

	ch, err := Dialer{ConnectTimeout: time.Second}.Dial(context.Background(), ep)
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, KindTCP, ch.Kind())
	require.NoError(t, ch.Send([]byte("add 3 4\n")))

	data, err := ch.Receive(64, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "add 3 4\n", string(data))
}

func TestTCPChannel_PartialReads(t *testing.T) {
	ep := setupTCPServer(t, func(conn net.Conn) {
		conn.Write([]byte("TEXT "))
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte("TCP 1.1\n"))
	})

	ch, err := Dialer{}.Dial(context.Background(), ep)
	require.NoError(t, err)
	defer ch.Close()

	first, err := ch.Receive(64, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "TEXT ", string(first), "stream receive returns what has arrived")

	second, err := ch.Receive(64, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "TCP 1.1\n", string(second))
}

func TestTCPChannel_PeerClosed(t *testing.T) {
	ep := setupTCPServer(t, func(conn net.Conn) {})

	ch, err := Dialer{}.Dial(context.Background(), ep)
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.Receive(64, time.Now().Add(2*time.Second))
	require.ErrorIs(t, err, ErrPeerClosed)
	assert.Equal(t, outcome.TransportError, outcome.Of(err))
}

func TestTCPChannel_Timeout(t *testing.T) {
	release := make(chan struct{})
	ep := setupTCPServer(t, func(conn net.Conn) {
		<-release
	})
	defer close(release)

	ch, err := Dialer{}.Dial(context.Background(), ep)
	require.NoError(t, err)
	defer ch.Close()

	start := time.Now()
	_, err = ch.Receive(64, time.Now().Add(100*time.Millisecond))
	require.ErrorIs(t, err, outcome.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTCPChannel_CloseIdempotent(t *testing.T) {
	ep := setupTCPServer(t, func(conn net.Conn) {})

	ch, err := Dialer{}.Dial(context.Background(), ep)
	require.NoError(t, err)

	first := ch.Close()
	assert.NoError(t, first)
	assert.Equal(t, first, ch.Close())
}

func TestDial_ConnectionRefused(t *testing.T) {
	// Grab a free port and release it so nothing listens there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	_, err = Dialer{ConnectTimeout: time.Second}.Dial(context.Background(),
		Endpoint{Kind: KindTCP, Host: "127.0.0.1", Port: port})
	require.Error(t, err)
	assert.Equal(t, outcome.TransportError, outcome.Of(err))
}

func TestDial_ResolveFailure(t *testing.T) {
	_, err := Dialer{ConnectTimeout: 2 * time.Second}.Dial(context.Background(),
		Endpoint{Kind: KindTCP, Host: "this-is-not-a-real-domain.invalid", Port: 80})
	require.Error(t, err)
	assert.Equal(t, outcome.TransportError, outcome.Of(err))
}

func TestReadInto_LargeRequest(t *testing.T) {
	payload := make([]byte, ReceiveBufferSize+10)
	data, err := readInto(len(payload), func(buf []byte) (int, error) {
		return copy(buf, payload), nil
	})
	require.NoError(t, err)
	assert.Len(t, data, len(payload))
}
