package session

import (
	"time"

	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
)

// Report summarizes one session run.
type Report struct {
	ID           string           `json:"id"`
	Transport    transport.Kind   `json:"transport"`
	API          protocol.API     `json:"api"`
	Greeting     string           `json:"greeting,omitempty"`
	AssignmentID uint32           `json:"assignment_id,omitempty"`
	Op           protocol.ArithOp `json:"op,omitempty"`
	Value1       int32            `json:"value1"`
	Value2       int32            `json:"value2"`
	Result       int32            `json:"result"`
	Verdict      string           `json:"verdict,omitempty"`
	Accepted     bool             `json:"accepted"`
	Outcome      outcome.Outcome  `json:"outcome"`
	FailedAt     string           `json:"failed_at,omitempty"`
	Error        string           `json:"error,omitempty"`
	Duration     time.Duration    `json:"duration_ns"`
}

// Stage names an observable session transition.
type Stage int

const (
	StageGreeting   Stage = iota // Server greeting matched
	StageAssignment              // Assignment decoded
	StageSubmitted               // Result sent
	StageVerdict                 // Verdict received
)

// Event is delivered to an Observer at each stage with a snapshot of the
// report so far.
type Event struct {
	Stage  Stage
	Report Report
}

// Observer receives session events. It must not block; it has no influence
// on the session.
type Observer func(Event)
