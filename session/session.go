package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the receive deadline applied to every receive step.
const DefaultTimeout = 10 * time.Second

// ErrAlreadyRun is returned when Run is called on a finished session.
var ErrAlreadyRun = errors.New("session already run")

// State is a step of the session state machine. States are visited in
// order and at most once.
type State int

const (
	StateAwaitGreeting State = iota
	StateNegotiate
	StateAwaitAssignment
	StateCompute
	StateSubmitResult
	StateAwaitVerdict
	stateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitGreeting:
		return "await-greeting"
	case StateNegotiate:
		return "negotiate"
	case StateAwaitAssignment:
		return "await-assignment"
	case StateCompute:
		return "compute"
	case StateSubmitResult:
		return "submit-result"
	case StateAwaitVerdict:
		return "await-verdict"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tunes a session.
type Options struct {
	// Timeout is the per-receive deadline, DefaultTimeout when zero.
	Timeout  time.Duration
	Logger   zerolog.Logger
	Observer Observer
}

// Session runs one handshake-through-verdict exchange on a channel it owns.
type Session struct {
	id       string
	ch       transport.Channel
	api      protocol.API
	kind     transport.Kind
	frames   *framer
	logger   zerolog.Logger
	observer Observer
	ran      bool

	report   Report
	greeting greeting
	task     task
}

// greeting is what the server opened with: text lines, or the raw reply to
// the binary UDP hello.
type greeting struct {
	lines  []string
	record []byte
}

// task is the assignment being worked on.
type task struct {
	ready  bool // Received early during negotiation
	op     protocol.ArithOp
	value1 int32
	value2 int32
	record protocol.AssignmentMessage // Binary mode only
}

// New creates a session over ch speaking api. The session takes ownership of
// ch and closes it when Run returns.
func New(ch transport.Channel, api protocol.API, opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	id := uuid.NewString()
	kind := ch.Kind()

	return &Session{
		id:     id,
		ch:     ch,
		api:    api,
		kind:   kind,
		frames: newFramer(ch, opts.Timeout),
		logger: opts.Logger.With().
			Str("com", "session").
			Str("session_id", id).
			Str("transport", kind.String()).
			Str("api", api.String()).
			Logger(),
		observer: opts.Observer,
		report: Report{
			ID:        id,
			Transport: kind,
			API:       api,
		},
	}
}

// ID returns the session identifier used in logs and reports.
func (s *Session) ID() string {
	return s.id
}

// Run drives the state machine to a terminal outcome. The returned error is
// nil only for an accepted result; outcome.Of classifies it otherwise. The
// channel is closed before Run returns on every path.
func (s *Session) Run() (Report, error) {
	if s.ran {
		return s.report, ErrAlreadyRun
	}
	s.ran = true

	start := time.Now()
	defer func() {
		if err := s.ch.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close channel")
		}
	}()

	s.logger.Debug().Str("remote", remoteString(s.ch)).Msg("session started")

	var err error
	state := StateAwaitGreeting
	for state != stateDone {
		s.logger.Trace().Stringer("state", state).Msg("enter state")
		next, stepErr := s.step(state)
		if stepErr != nil {
			err = fmt.Errorf("%s: %w", state, stepErr)
			s.report.FailedAt = state.String()
			break
		}
		state = next
	}

	s.report.Outcome = outcome.Of(err)
	s.report.Duration = time.Since(start)
	if err != nil {
		s.report.Error = err.Error()
		s.logger.Debug().Err(err).Stringer("outcome", s.report.Outcome).Msg("session failed")
	} else {
		s.logger.Debug().Dur("duration", s.report.Duration).Msg("session accepted")
	}
	return s.report, err
}

func (s *Session) step(state State) (State, error) {
	switch state {
	case StateAwaitGreeting:
		return StateNegotiate, s.awaitGreeting()
	case StateNegotiate:
		return StateAwaitAssignment, s.negotiate()
	case StateAwaitAssignment:
		return StateCompute, s.awaitAssignment()
	case StateCompute:
		return StateSubmitResult, s.compute()
	case StateSubmitResult:
		return StateAwaitVerdict, s.submitResult()
	case StateAwaitVerdict:
		return stateDone, s.awaitVerdict()
	default:
		return stateDone, fmt.Errorf("unknown state %v", state)
	}
}

// awaitGreeting receives the server's opening message. Over UDP the client
// speaks first with a hello in the session's encoding.
func (s *Session) awaitGreeting() error {
	if !s.kind.Stream() {
		var hello []byte
		if s.api == protocol.TextAPI {
			hello = protocol.EncodeLine(protocol.Greeting(protocol.TextAPI, s.kind.String()))
		} else {
			hello = protocol.EncodeHandshake(protocol.Hello())
		}
		if err := s.send(hello); err != nil {
			return err
		}
	}

	var err error
	if s.api == protocol.BinaryAPI && !s.kind.Stream() {
		s.greeting.record, err = s.frames.readDatagram()
		return err
	}
	s.greeting.lines, err = s.frames.readGreeting(protocol.Greeting(s.api, s.kind.String()))
	if err == nil {
		s.logger.Trace().Strs("greeting", s.greeting.lines).Msg("server greeting")
	}
	return err
}

// negotiate checks the greeting names our protocol version and accepts it.
func (s *Session) negotiate() error {
	if s.api == protocol.BinaryAPI && !s.kind.Stream() {
		return s.negotiateBinaryDatagram(s.greeting.record)
	}

	expected := protocol.Greeting(s.api, s.kind.String())
	lines := s.greeting.lines
	if protocol.ContainsGreeting(lines, expected) {
		s.report.Greeting = expected
		s.notify(StageGreeting)
		return s.send(protocol.EncodeLine(protocol.Acceptance(s.api, s.kind.String())))
	}

	// A text UDP server may answer the hello with the assignment directly
	if s.api == protocol.TextAPI && !s.kind.Stream() {
		if a, err := protocol.ParseAssignment(lines[0]); err == nil {
			s.setTask(a.Op, a.Value1, a.Value2)
			s.task.ready = true
			return nil
		}
	}

	return fmt.Errorf("%w: greeting %q does not offer %q", outcome.ErrProtocolMismatch, lines, expected)
}

// negotiateBinaryDatagram handles the reply to the binary hello, which is
// either a handshake record or already the assignment.
func (s *Session) negotiateBinaryDatagram(data []byte) error {
	switch len(data) {
	case protocol.HandshakeSize:
		msg, err := protocol.DecodeHandshake(data)
		if err != nil {
			return err
		}
		s.logger.Trace().Interface("handshake", msg).Msg("server handshake")
		if msg.Rejects() {
			return fmt.Errorf("%w: server rejected protocol %d version %d.%d",
				outcome.ErrProtocolMismatch, protocol.ProtocolID, protocol.MajorVersion, protocol.MinorVersion)
		}
		if !msg.Supported() {
			return fmt.Errorf("%w: server speaks protocol %d version %d.%d",
				outcome.ErrProtocolMismatch, msg.Protocol, msg.MajorVersion, msg.MinorVersion)
		}
		s.report.Greeting = protocol.Greeting(s.api, s.kind.String())
		s.notify(StageGreeting)
		return nil
	case protocol.AssignmentSize, protocol.AssignmentResultSize:
		if err := s.acceptRecord(data); err != nil {
			return err
		}
		s.task.ready = true
		return nil
	default:
		return fmt.Errorf("%w: unexpected %d byte reply to hello", outcome.ErrMalformed, len(data))
	}
}

func (s *Session) awaitAssignment() error {
	if !s.task.ready {
		switch s.api {
		case protocol.TextAPI:
			line, err := s.frames.readContentLine()
			if err != nil {
				return err
			}
			a, err := protocol.ParseAssignment(line)
			if err != nil {
				return err
			}
			s.setTask(a.Op, a.Value1, a.Value2)
		default:
			data, err := s.frames.readRecord(protocol.AssignmentSize)
			if err != nil {
				return err
			}
			if err := s.acceptRecord(data); err != nil {
				return err
			}
		}
	}

	s.logger.Debug().
		Stringer("op", s.task.op).
		Int32("value1", s.task.value1).
		Int32("value2", s.task.value2).
		Msg("assignment received")
	s.notify(StageAssignment)
	return nil
}

// acceptRecord decodes and validates a binary assignment.
func (s *Session) acceptRecord(data []byte) error {
	msg, err := protocol.DecodeAssignment(data)
	if err != nil {
		return err
	}
	s.logger.Trace().
		Uint16("type", msg.Type).
		Uint16("major", msg.MajorVersion).
		Uint16("minor", msg.MinorVersion).
		Uint32("id", msg.ID).
		Uint32("arith", msg.Arith).
		Int32("value1", msg.Value1).
		Int32("value2", msg.Value2).
		Msg("assignment record")

	if msg.MajorVersion != protocol.MajorVersion {
		return fmt.Errorf("%w: assignment version %d.%d", outcome.ErrProtocolMismatch, msg.MajorVersion, msg.MinorVersion)
	}
	op, err := protocol.ArithOpFromCode(msg.Arith)
	if err != nil {
		return err
	}

	s.setTask(op, msg.Value1, msg.Value2)
	s.task.record = msg
	s.report.AssignmentID = msg.ID
	return nil
}

func (s *Session) setTask(op protocol.ArithOp, v1, v2 int32) {
	s.task.op, s.task.value1, s.task.value2 = op, v1, v2
	s.report.Op, s.report.Value1, s.report.Value2 = op, v1, v2
}

func (s *Session) compute() error {
	result, err := protocol.Compute(s.task.op, s.task.value1, s.task.value2)
	if err != nil {
		return err
	}
	s.report.Result = result
	s.logger.Trace().Int32("result", result).Msg("computed")
	return nil
}

func (s *Session) submitResult() error {
	var payload []byte
	switch s.api {
	case protocol.TextAPI:
		payload = protocol.EncodeLine(protocol.FormatResult(s.report.Result))
	default:
		record := s.task.record
		record.Type = protocol.MsgTypeResult
		record.Result = s.report.Result
		record.HasResult = true
		payload = protocol.EncodeAssignmentResult(record)
	}
	if err := s.send(payload); err != nil {
		return err
	}
	s.notify(StageSubmitted)
	return nil
}

func (s *Session) awaitVerdict() error {
	var accepted bool
	switch s.api {
	case protocol.TextAPI:
		line, err := s.frames.readLine()
		if err != nil {
			return err
		}
		s.report.Verdict = line
		accepted = protocol.VerdictAccepted(line)
	default:
		data, err := s.frames.readRecord(protocol.HandshakeSize)
		if err != nil {
			return err
		}
		ack, err := protocol.DecodeHandshake(data)
		if err != nil {
			return err
		}
		switch ack.Message {
		case protocol.AckOK:
			accepted = true
			s.report.Verdict = "OK"
		case protocol.AckNotOK:
			s.report.Verdict = "NOT OK"
		default:
			return fmt.Errorf("%w: unknown ack message %d", outcome.ErrMalformed, ack.Message)
		}
	}

	s.report.Accepted = accepted
	s.notify(StageVerdict)
	if !accepted {
		return fmt.Errorf("%w: server answered %q", outcome.ErrRejected, s.report.Verdict)
	}
	return nil
}

func (s *Session) send(data []byte) error {
	s.logger.Trace().Int("bytes", len(data)).Msg("send")
	return s.ch.Send(data)
}

func (s *Session) notify(stage Stage) {
	if s.observer != nil {
		s.observer(Event{Stage: stage, Report: s.report})
	}
}

func remoteString(ch transport.Channel) string {
	if addr := ch.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
