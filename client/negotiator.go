package client

import (
	"context"
	"io"
	"os"

	"github.com/Mmx233/QCalc/config"
	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/session"
	"github.com/Mmx233/QCalc/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dialer opens a channel to an endpoint. transport.Dialer is the production
// implementation.
type Dialer interface {
	Dial(ctx context.Context, ep transport.Endpoint) (transport.Channel, error)
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithDialer replaces the socket dialer.
func WithDialer(d Dialer) Option {
	return func(n *Negotiator) {
		n.dialer = d
	}
}

// WithLogger sets the parent logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Negotiator) {
		n.parent = logger
	}
}

// WithOutput sets where operator lines and the final report are written.
func WithOutput(w io.Writer) Option {
	return func(n *Negotiator) {
		n.out = w
	}
}

// Negotiator picks the transport for a target and runs the session on it.
type Negotiator struct {
	config   *config.Client
	dialer   Dialer
	parent   zerolog.Logger
	logger   zerolog.Logger
	out      io.Writer
	reporter *Reporter
}

// New creates a negotiator. A nil config means defaults.
func New(conf *config.Client, opts ...Option) *Negotiator {
	if conf == nil {
		conf = config.Default()
	} else {
		c := *conf
		c.ApplyDefaults()
		conf = &c
	}

	n := &Negotiator{
		config: conf,
		dialer: transport.Dialer{ConnectTimeout: conf.ConnectTimeout},
		parent: log.Logger,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.parent.With().Str("com", "negotiator").Logger()
	n.reporter = NewReporter(n.out, conf.Output)
	return n
}

// Reporter returns the reporter the negotiator writes to.
func (n *Negotiator) Reporter() *Reporter {
	return n.reporter
}

// Run executes target. For ProtocolAny TCP is tried first and UDP only when
// the fallback policy allows it. The returned report belongs to the last
// attempt; the error is nil only for an accepted result.
func (n *Negotiator) Run(ctx context.Context, target config.Target) (session.Report, error) {
	n.logger.Debug().Stringer("target", target).Msg("running target")

	if target.Protocol != config.ProtocolAny {
		return n.attempt(ctx, target, target.Protocol.Kind())
	}

	n.reporter.Line("Trying TCP first...")
	report, dialed, err := n.attemptDialed(ctx, target, transport.KindTCP)
	if err == nil || !n.shouldFallback(err, dialed) {
		return report, err
	}
	if ctx.Err() != nil {
		return report, err
	}

	n.logger.Info().
		Err(err).
		Stringer("outcome", outcome.Of(err)).
		Msg("tcp attempt failed, falling back to udp")
	n.reporter.Line("TCP failed, trying UDP...")
	return n.attempt(ctx, target, transport.KindUDP)
}

// shouldFallback applies the fallback policy to a failed TCP attempt.
func (n *Negotiator) shouldFallback(err error, dialed bool) bool {
	if !dialed {
		return true
	}
	switch n.config.Fallback {
	case config.FallbackAnyFailure:
		return true
	default:
		return outcome.Of(err) == outcome.TransportError
	}
}

func (n *Negotiator) attempt(ctx context.Context, target config.Target, kind transport.Kind) (session.Report, error) {
	report, _, err := n.attemptDialed(ctx, target, kind)
	return report, err
}

// attemptDialed runs one session over kind. dialed reports whether the
// channel was opened.
func (n *Negotiator) attemptDialed(ctx context.Context, target config.Target, kind transport.Kind) (session.Report, bool, error) {
	ep := target.Endpoint(kind)
	logger := n.logger.With().Stringer("endpoint", ep).Logger()

	ch, err := n.dialer.Dial(ctx, ep)
	if err != nil {
		logger.Debug().Err(err).Msg("open channel failed")
		report := session.Report{
			Transport: kind,
			API:       target.API,
			Outcome:   outcome.Of(err),
			FailedAt:  "connect",
			Error:     err.Error(),
		}
		n.reporter.Failure(report)
		return report, false, err
	}

	logger.Debug().Msg("channel open")
	n.reporter.Line("Connected to " + ep.String())

	s := session.New(ch, target.API, session.Options{
		Timeout:  n.config.Timeout,
		Logger:   n.parent,
		Observer: n.reporter.Observe,
	})
	report, err := s.Run()
	if err != nil && outcome.Of(err) != outcome.Rejected {
		n.reporter.Failure(report)
	}
	return report, true, err
}
