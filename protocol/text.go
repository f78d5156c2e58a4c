package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Mmx233/QCalc/outcome"
)

// TextAssignment is a parsed "<op> <int> <int>" line.
type TextAssignment struct {
	Op     ArithOp
	Value1 int32
	Value2 int32
}

func (a TextAssignment) String() string {
	return fmt.Sprintf("%s %d %d", a.Op, a.Value1, a.Value2)
}

// EncodeLine terminates s with a newline.
func EncodeLine(s string) []byte {
	buf := make([]byte, 0, len(s)+1)
	buf = append(buf, s...)
	return append(buf, '\n')
}

// DecodeLine strips at most one trailing newline.
func DecodeLine(data []byte) string {
	s := string(data)
	return strings.TrimSuffix(s, "\n")
}

// SplitLines splits a received text payload into lines, dropping the final
// empty element produced by a trailing newline.
func SplitLines(data []byte) []string {
	lines := strings.Split(DecodeLine(data), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// ParseAssignment parses a text assignment line. Surrounding whitespace and a
// trailing newline are tolerated, anything else is malformed.
func ParseAssignment(line string) (TextAssignment, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return TextAssignment{}, fmt.Errorf("%w: assignment %q: want 3 fields, got %d",
			outcome.ErrMalformed, line, len(fields))
	}

	op, err := ParseArithOp(fields[0])
	if err != nil {
		return TextAssignment{}, err
	}

	v1, err := parseOperand(fields[1])
	if err != nil {
		return TextAssignment{}, err
	}
	v2, err := parseOperand(fields[2])
	if err != nil {
		return TextAssignment{}, err
	}

	return TextAssignment{Op: op, Value1: v1, Value2: v2}, nil
}

func parseOperand(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: operand %q: %v", outcome.ErrMalformed, s, err)
	}
	return int32(v), nil
}

// FormatResult renders a result as the decimal line body.
func FormatResult(result int32) string {
	return strconv.FormatInt(int64(result), 10)
}

// VerdictAccepted reports whether a text verdict line accepts the result.
// The server answers "OK" or "ERROR"; "NOT OK" is treated as a rejection.
func VerdictAccepted(line string) bool {
	return strings.Contains(line, "OK") && !strings.Contains(line, "NOT OK")
}

// ContainsGreeting reports whether any of lines names the expected version,
// either alone or followed by further words.
func ContainsGreeting(lines []string, expected string) bool {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == expected || strings.HasPrefix(line, expected+" ") {
			return true
		}
	}
	return false
}
