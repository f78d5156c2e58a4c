package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Mmx233/QCalc/calctest"
	"github.com/Mmx233/QCalc/config"
	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingDialer remembers which transports were dialed. Kinds listed in
// fail are refused without touching the network.
type recordingDialer struct {
	mu     sync.Mutex
	inner  Dialer
	fail   map[transport.Kind]bool
	dialed []transport.Kind
}

func (d *recordingDialer) Dial(ctx context.Context, ep transport.Endpoint) (transport.Channel, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, ep.Kind)
	d.mu.Unlock()
	if d.fail[ep.Kind] {
		return nil, fmt.Errorf("%w: connection refused", outcome.ErrTransport)
	}
	return d.inner.Dial(ctx, ep)
}

func (d *recordingDialer) kinds() []transport.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Kind(nil), d.dialed...)
}

func testConfig() *config.Client {
	return &config.Client{
		Timeout:        2 * time.Second,
		ConnectTimeout: 2 * time.Second,
	}
}

func newTestNegotiator(cfg *config.Client, out *bytes.Buffer, fail ...transport.Kind) (*Negotiator, *recordingDialer) {
	d := &recordingDialer{
		inner: transport.Dialer{ConnectTimeout: time.Second},
		fail:  make(map[transport.Kind]bool),
	}
	for _, k := range fail {
		d.fail[k] = true
	}
	return New(cfg, WithDialer(d), WithOutput(out), WithLogger(zerolog.Nop())), d
}

func targetOf(proto config.Protocol, port int, api protocol.API) config.Target {
	return config.Target{Protocol: proto, Host: "127.0.0.1", Port: port, API: api}
}

func TestNegotiator_ExplicitTransports(t *testing.T) {
	cases := []struct {
		proto config.Protocol
		kind  transport.Kind
		api   protocol.API
	}{
		{config.ProtocolTCP, transport.KindTCP, protocol.TextAPI},
		{config.ProtocolTCP, transport.KindTCP, protocol.BinaryAPI},
		{config.ProtocolUDP, transport.KindUDP, protocol.TextAPI},
		{config.ProtocolUDP, transport.KindUDP, protocol.BinaryAPI},
	}

	for _, tc := range cases {
		t.Run(tc.kind.String()+"/"+tc.api.String(), func(t *testing.T) {
			srv := calctest.Start(t, tc.kind, calctest.Options{
				API:          tc.api,
				Assignment:   protocol.TextAssignment{Op: protocol.OpMul, Value1: 6, Value2: 7},
				AssignmentID: 99,
			})
			var out bytes.Buffer
			n, d := newTestNegotiator(testConfig(), &out)

			report, err := n.Run(context.Background(), targetOf(tc.proto, srv.Port(), tc.api))
			require.NoError(t, err)
			assert.Equal(t, outcome.Accepted, report.Outcome)
			assert.Equal(t, tc.kind, report.Transport)
			assert.Equal(t, int32(42), report.Result)
			assert.Equal(t, []int32{42}, srv.Results(tc.kind))
			assert.Equal(t, []transport.Kind{tc.kind}, d.kinds())

			assert.Contains(t, out.String(), "ASSIGNMENT: mul 6 7")
			assert.Contains(t, out.String(), "OK (myresult=42)")
			assert.NotContains(t, out.String(), "Trying TCP first...")
		})
	}
}

func TestNegotiator_ExplicitTransportNoFallback(t *testing.T) {
	var out bytes.Buffer
	n, d := newTestNegotiator(testConfig(), &out, transport.KindTCP)

	report, err := n.Run(context.Background(), targetOf(config.ProtocolTCP, 5000, protocol.TextAPI))
	require.Error(t, err)
	assert.Equal(t, outcome.TransportError, report.Outcome)
	assert.Equal(t, "connect", report.FailedAt)
	assert.Equal(t, []transport.Kind{transport.KindTCP}, d.kinds())
}

func TestNegotiator_AnyFallsBackWhenTCPRefused(t *testing.T) {
	srv := calctest.Start(t, transport.KindUDP, calctest.Options{API: protocol.TextAPI})
	var out bytes.Buffer
	n, d := newTestNegotiator(testConfig(), &out, transport.KindTCP)

	report, err := n.Run(context.Background(), targetOf(config.ProtocolAny, srv.Port(), protocol.TextAPI))
	require.NoError(t, err)
	assert.Equal(t, transport.KindUDP, report.Transport)
	assert.Equal(t, []transport.Kind{transport.KindTCP, transport.KindUDP}, d.kinds())

	text := out.String()
	assert.Contains(t, text, "Trying TCP first...")
	assert.Contains(t, text, "TCP failed, trying UDP...")
	assert.Contains(t, text, "OK (myresult=7)")
}

func TestNegotiator_AnyFallsBackOnTCPTransportError(t *testing.T) {
	srv := calctest.StartPair(t,
		calctest.Options{API: protocol.BinaryAPI, HangUp: true},
		calctest.Options{API: protocol.BinaryAPI},
	)
	var out bytes.Buffer
	n, d := newTestNegotiator(testConfig(), &out)

	report, err := n.Run(context.Background(), targetOf(config.ProtocolAny, srv.Port(), protocol.BinaryAPI))
	require.NoError(t, err)
	assert.Equal(t, transport.KindUDP, report.Transport)
	assert.Equal(t, []transport.Kind{transport.KindTCP, transport.KindUDP}, d.kinds())
	assert.Equal(t, 1, srv.Sessions(transport.KindTCP))
	assert.Equal(t, 1, srv.Sessions(transport.KindUDP))
}

func TestNegotiator_AnyDoesNotRetryProtocolOutcomes(t *testing.T) {
	cases := []struct {
		name string
		tcp  calctest.Options
		want outcome.Outcome
	}{
		{
			name: "mismatch",
			tcp:  calctest.Options{API: protocol.TextAPI, Greeting: []string{"TEXT TCP 2.0"}},
			want: outcome.ProtocolMismatch,
		},
		{
			name: "rejected",
			tcp:  calctest.Options{API: protocol.TextAPI, Judge: func(got, want int32) bool { return false }},
			want: outcome.Rejected,
		},
		{
			name: "timeout",
			tcp:  calctest.Options{API: protocol.TextAPI, Silent: true},
			want: outcome.Timeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := calctest.StartPair(t, tc.tcp, calctest.Options{API: protocol.TextAPI})
			cfg := testConfig()
			cfg.Timeout = 300 * time.Millisecond
			var out bytes.Buffer
			n, d := newTestNegotiator(cfg, &out)

			report, err := n.Run(context.Background(), targetOf(config.ProtocolAny, srv.Port(), protocol.TextAPI))
			require.Error(t, err)
			assert.Equal(t, tc.want, report.Outcome)
			assert.Equal(t, tc.want, outcome.Of(err))
			assert.Equal(t, transport.KindTCP, report.Transport)
			assert.Equal(t, []transport.Kind{transport.KindTCP}, d.kinds())
			assert.Equal(t, 0, srv.Sessions(transport.KindUDP))
			assert.NotContains(t, out.String(), "TCP failed, trying UDP...")
		})
	}
}

func TestNegotiator_AnyFailurePolicy(t *testing.T) {
	srv := calctest.StartPair(t,
		calctest.Options{API: protocol.TextAPI, Greeting: []string{"TEXT TCP 2.0"}},
		calctest.Options{API: protocol.TextAPI},
	)
	cfg := testConfig()
	cfg.Fallback = config.FallbackAnyFailure
	var out bytes.Buffer
	n, d := newTestNegotiator(cfg, &out)

	report, err := n.Run(context.Background(), targetOf(config.ProtocolAny, srv.Port(), protocol.TextAPI))
	require.NoError(t, err)
	assert.Equal(t, transport.KindUDP, report.Transport)
	assert.Equal(t, outcome.Accepted, report.Outcome)
	assert.Equal(t, []transport.Kind{transport.KindTCP, transport.KindUDP}, d.kinds())
}

func TestNegotiator_AnyBothUnreachable(t *testing.T) {
	var out bytes.Buffer
	n, d := newTestNegotiator(testConfig(), &out, transport.KindTCP, transport.KindUDP)

	report, err := n.Run(context.Background(), targetOf(config.ProtocolAny, 5000, protocol.BinaryAPI))
	require.Error(t, err)
	assert.True(t, errors.Is(err, outcome.ErrTransport))
	assert.Equal(t, transport.KindUDP, report.Transport)
	assert.Equal(t, "connect", report.FailedAt)
	assert.Equal(t, []transport.Kind{transport.KindTCP, transport.KindUDP}, d.kinds())
	assert.Contains(t, out.String(), "ERROR (transport-error at connect)")
}

func TestNegotiator_CancelledContextStopsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	n, d := newTestNegotiator(testConfig(), &out)

	report, err := n.Run(ctx, targetOf(config.ProtocolAny, 5000, protocol.TextAPI))
	require.Error(t, err)
	assert.Equal(t, outcome.TransportError, report.Outcome)
	assert.Equal(t, []transport.Kind{transport.KindTCP}, d.kinds())
}

func TestNegotiator_RejectedVerdictLine(t *testing.T) {
	srv := calctest.Start(t, transport.KindTCP, calctest.Options{
		API:   protocol.BinaryAPI,
		Judge: func(got, want int32) bool { return false },
	})
	var out bytes.Buffer
	n, _ := newTestNegotiator(testConfig(), &out)

	report, err := n.Run(context.Background(), targetOf(config.ProtocolTCP, srv.Port(), protocol.BinaryAPI))
	require.Error(t, err)
	assert.Equal(t, outcome.Rejected, report.Outcome)
	assert.False(t, report.Accepted)
	assert.Contains(t, out.String(), "NOT OK (myresult=7)")
	assert.NotContains(t, out.String(), "ERROR")
}

func TestNew_LeavesCallerConfigUntouched(t *testing.T) {
	cfg := &config.Client{Timeout: time.Second}
	n := New(cfg, WithLogger(zerolog.Nop()), WithOutput(&bytes.Buffer{}))

	assert.Equal(t, config.Client{Timeout: time.Second}, *cfg)
	assert.Equal(t, time.Second, n.config.Timeout)
	assert.Equal(t, config.DefaultConnectTimeout, n.config.ConnectTimeout)
	assert.Equal(t, config.FallbackTransport, n.config.Fallback)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	n := New(nil, WithLogger(zerolog.Nop()), WithOutput(&bytes.Buffer{}))
	assert.Equal(t, config.DefaultReceiveTimeout, n.config.Timeout)
	assert.Equal(t, config.FallbackTransport, n.config.Fallback)
	assert.NotNil(t, n.Reporter())
}
