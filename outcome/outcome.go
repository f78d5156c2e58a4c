package outcome

import (
	"errors"
	"fmt"
)

// Outcome is the terminal result of one protocol session.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	ProtocolMismatch
	Timeout
	Malformed
	TransportError
	// InvalidInput is never produced by a session, only by target parsing.
	InvalidInput
)

// Sentinel errors. Lower layers wrap these with fmt.Errorf("...: %w") so that
// Of can classify any error returned from a session.
var (
	ErrRejected         = errors.New("result rejected by server")
	ErrProtocolMismatch = errors.New("protocol mismatch")
	ErrTimeout          = errors.New("timeout")
	ErrMalformed        = errors.New("malformed message")
	ErrTransport        = errors.New("transport error")
	ErrInvalidInput     = errors.New("invalid input")
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case ProtocolMismatch:
		return "protocol-mismatch"
	case Timeout:
		return "timeout"
	case Malformed:
		return "malformed"
	case TransportError:
		return "transport-error"
	case InvalidInput:
		return "invalid-input"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText lets reports carry the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ExitCode maps an outcome to the process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case Accepted:
		return 0
	case Rejected:
		return 1
	case InvalidInput:
		return 2
	case Timeout:
		return 3
	case ProtocolMismatch:
		return 4
	case Malformed:
		return 5
	default:
		return 6
	}
}

// Err returns the sentinel error for the outcome, nil for Accepted.
func (o Outcome) Err() error {
	switch o {
	case Accepted:
		return nil
	case Rejected:
		return ErrRejected
	case ProtocolMismatch:
		return ErrProtocolMismatch
	case Timeout:
		return ErrTimeout
	case Malformed:
		return ErrMalformed
	case InvalidInput:
		return ErrInvalidInput
	default:
		return ErrTransport
	}
}

// Of classifies err. A nil error is Accepted; errors that match none of the
// sentinels are treated as transport failures.
func Of(err error) Outcome {
	switch {
	case err == nil:
		return Accepted
	case errors.Is(err, ErrRejected):
		return Rejected
	case errors.Is(err, ErrProtocolMismatch):
		return ProtocolMismatch
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrMalformed):
		return Malformed
	case errors.Is(err, ErrInvalidInput):
		return InvalidInput
	default:
		return TransportError
	}
}
