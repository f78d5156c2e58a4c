package protocol

import (
	"fmt"
	"strings"
)

// Protocol revision spoken by this client
const (
	ProtocolID   = 17
	MajorVersion = 1
	MinorVersion = 1
)

// Binary message types
const (
	MsgTypeResult = 2  // Client result record, also server error/ack
	MsgTypeHello  = 22 // Client hello, binary UDP only
)

// Ack message codes carried in HandshakeMessage.Message
const (
	AckNotApplicable = 0
	AckOK            = 1
	AckNotOK         = 2
)

// Fixed record sizes on the wire
const (
	HandshakeSize        = 10
	AssignmentSize       = 22 // Server -> client, no result field
	AssignmentResultSize = 26 // Client -> server, result populated
)

// HandshakeMessage is the 10-byte record used for the binary UDP hello and
// for the final ack in both binary transports.
type HandshakeMessage struct {
	Type         uint16
	Message      uint16
	Protocol     uint16
	MajorVersion uint16
	MinorVersion uint16
}

// Hello returns the client hello announcing protocol 17 version 1.1.
func Hello() HandshakeMessage {
	return HandshakeMessage{
		Type:         MsgTypeHello,
		Message:      AckNotApplicable,
		Protocol:     ProtocolID,
		MajorVersion: MajorVersion,
		MinorVersion: MinorVersion,
	}
}

// Rejects reports whether the record is the server's error signal.
func (m HandshakeMessage) Rejects() bool {
	return m.Type == MsgTypeResult && m.Message == AckNotOK
}

// Supported reports whether the record names the protocol revision we speak.
func (m HandshakeMessage) Supported() bool {
	return m.Protocol == ProtocolID && m.MajorVersion == MajorVersion
}

// AssignmentMessage is the binary calculation record.
type AssignmentMessage struct {
	Type         uint16
	MajorVersion uint16
	MinorVersion uint16
	ID           uint32
	Arith        uint32
	Value1       int32
	Value2       int32
	Result       int32
	HasResult    bool // Result field was present on the wire
}

// API selects the message encoding of a session.
type API int

const (
	TextAPI API = iota
	BinaryAPI
)

func (a API) String() string {
	switch a {
	case TextAPI:
		return "text"
	case BinaryAPI:
		return "binary"
	default:
		return fmt.Sprintf("api(%d)", int(a))
	}
}

// MarshalText renders the API by name.
func (a API) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseAPI parses "text" or "binary", case-insensitive.
func ParseAPI(s string) (API, error) {
	switch strings.ToLower(s) {
	case "text":
		return TextAPI, nil
	case "binary":
		return BinaryAPI, nil
	default:
		return 0, fmt.Errorf("unknown api %q", s)
	}
}

// Greeting returns the version line naming api over transport, e.g.
// "TEXT TCP 1.1".
func Greeting(api API, transport string) string {
	return fmt.Sprintf("%s %s %d.%d",
		strings.ToUpper(api.String()), strings.ToUpper(transport), MajorVersion, MinorVersion)
}

// Acceptance returns the client's reply to a matching greeting.
func Acceptance(api API, transport string) string {
	return Greeting(api, transport) + " OK"
}
