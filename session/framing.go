package session

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
)

// maxLineLength bounds how much a stream may buffer while waiting for a
// newline.
const maxLineLength = 4096

// maxGreetingLines bounds the greeting block.
const maxGreetingLines = 32

// framer turns channel receives into protocol frames. On a stream it
// accumulates partial reads until a newline or a fixed byte count is
// reached; on a datagram channel every frame is exactly one datagram.
type framer struct {
	ch      transport.Channel
	timeout time.Duration
	stream  bool
	pending []byte // stream bytes received but not yet framed

	// greetingOpen is set when the greeting block ended before its blank
	// line was received.
	greetingOpen bool
}

func newFramer(ch transport.Channel, timeout time.Duration) *framer {
	return &framer{
		ch:      ch,
		timeout: timeout,
		stream:  ch.Kind().Stream(),
	}
}

func (f *framer) receive() ([]byte, error) {
	return f.ch.Receive(transport.ReceiveBufferSize, time.Now().Add(f.timeout))
}

// fill appends one receive to the stream buffer.
func (f *framer) fill() error {
	data, err := f.receive()
	if err != nil {
		return err
	}
	f.pending = append(f.pending, data...)
	return nil
}

// bufferedLine reports whether a complete line is already buffered.
func (f *framer) bufferedLine() bool {
	return bytes.IndexByte(f.pending, '\n') >= 0
}

// readLine returns the next text line without its terminator.
func (f *framer) readLine() (string, error) {
	if !f.stream {
		data, err := f.receive()
		if err != nil {
			return "", err
		}
		return protocol.SplitLines(data)[0], nil
	}

	for {
		if i := bytes.IndexByte(f.pending, '\n'); i >= 0 {
			line := string(bytes.TrimSuffix(f.pending[:i], []byte{'\r'}))
			f.pending = f.pending[i+1:]
			return line, nil
		}
		if len(f.pending) > maxLineLength {
			return "", fmt.Errorf("%w: no newline within %d bytes", outcome.ErrMalformed, maxLineLength)
		}
		if err := f.fill(); err != nil {
			return "", err
		}
	}
}

// readContentLine is readLine skipping blank lines, which a stream may still
// hold from the end of the greeting block.
func (f *framer) readContentLine() (string, error) {
	for {
		line, err := f.readLine()
		if err != nil || !f.stream || strings.TrimSpace(line) != "" {
			f.greetingOpen = false
			return line, err
		}
	}
}

// readGreeting returns the lines of the server greeting. On a datagram
// channel it is every line of one datagram. On a stream lines are read,
// across as many receives as needed, until a blank line closes the block.
// Once a line offering expected has been seen the block also ends when no
// further complete line is buffered; the blank line may then still arrive
// and is skipped by the next frame read.
func (f *framer) readGreeting(expected string) ([]string, error) {
	if !f.stream {
		data, err := f.receive()
		if err != nil {
			return nil, err
		}
		return protocol.SplitLines(data), nil
	}

	var lines []string
	offered := false
	for {
		line, err := f.readLine()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			if len(lines) == 0 {
				continue
			}
			f.greetingOpen = false
			return lines, nil
		}
		lines = append(lines, line)
		if protocol.ContainsGreeting([]string{line}, expected) {
			offered = true
		}
		if offered && !f.bufferedLine() {
			f.greetingOpen = true
			return lines, nil
		}
		if len(lines) >= maxGreetingLines {
			return lines, nil
		}
	}
}

// readDatagram returns one raw receive. Only meaningful on datagram channels.
func (f *framer) readDatagram() ([]byte, error) {
	return f.receive()
}

// readRecord returns a fixed-size binary record. On a stream exactly size
// bytes are consumed, after dropping newlines left open by the greeting; on a datagram channel the whole datagram is returned
// and the caller validates its length.
func (f *framer) readRecord(size int) ([]byte, error) {
	if !f.stream {
		return f.receive()
	}

	for {
		if f.greetingOpen {
			// A late end of the greeting block is not part of the record
			f.pending = bytes.TrimLeft(f.pending, "\r\n")
			f.greetingOpen = len(f.pending) == 0
		}
		if !f.greetingOpen && len(f.pending) >= size {
			break
		}
		if err := f.fill(); err != nil {
			return nil, err
		}
	}
	record := make([]byte, size)
	copy(record, f.pending[:size])
	f.pending = f.pending[size:]
	return record, nil
}
