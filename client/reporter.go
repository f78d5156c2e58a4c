package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/Mmx233/QCalc/config"
	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/session"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter prints operator-facing progress. In text mode every transition is
// a line; in JSON mode only the final report is written, as one document.
// Write errors are ignored, reporting never affects a session.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	format config.OutputFormat
}

func NewReporter(w io.Writer, format config.OutputFormat) *Reporter {
	if format == "" {
		format = config.OutputText
	}
	return &Reporter{out: w, format: format}
}

// Line writes a progress line in text mode.
func (r *Reporter) Line(s string) {
	if r.format != config.OutputText {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, s)
}

// Observe is a session.Observer.
func (r *Reporter) Observe(ev session.Event) {
	rep := ev.Report
	switch ev.Stage {
	case session.StageGreeting:
		r.Line("Server greeting: " + rep.Greeting)
	case session.StageAssignment:
		r.Line("ASSIGNMENT: " + protocol.TextAssignment{Op: rep.Op, Value1: rep.Value1, Value2: rep.Value2}.String())
	case session.StageSubmitted:
		r.Line(fmt.Sprintf("Calculated the result to %d", rep.Result))
	case session.StageVerdict:
		r.Line(VerdictLine(rep))
	}
}

// Failure writes the outcome of a session that ended without a verdict.
func (r *Reporter) Failure(rep session.Report) {
	if rep.FailedAt != "" {
		r.Line(fmt.Sprintf("ERROR (%s at %s): %s", rep.Outcome, rep.FailedAt, rep.Error))
		return
	}
	r.Line(fmt.Sprintf("ERROR (%s): %s", rep.Outcome, rep.Error))
}

// Final writes the report as JSON in JSON mode. It is a no-op in text mode.
func (r *Reporter) Final(rep session.Report) error {
	if r.format != config.OutputJSON {
		return nil
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// VerdictLine renders the verdict with the submitted result, e.g.
// "OK (myresult=7)".
func VerdictLine(rep session.Report) string {
	verdict := "NOT OK"
	if rep.Accepted {
		verdict = "OK"
	}
	return fmt.Sprintf("%s (myresult=%d)", verdict, rep.Result)
}
