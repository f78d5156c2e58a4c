package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/Mmx233/QCalc/outcome"
)

// Wire format, all integers big-endian:
//
//	handshake/ack: [type u16][message u16][protocol u16][major u16][minor u16]
//	assignment:    [type u16][major u16][minor u16][id u32][arith u32][v1 i32][v2 i32]([result i32])
//	offsets:        0         2          4          6        10         14       18       22
//
// The server form stops after v2 (22 bytes), the client echo carries the
// result as well (26 bytes).

// EncodeHandshake encodes a 10-byte handshake or ack record.
func EncodeHandshake(msg HandshakeMessage) []byte {
	buf := make([]byte, HandshakeSize)
	binary.BigEndian.PutUint16(buf[0:], msg.Type)
	binary.BigEndian.PutUint16(buf[2:], msg.Message)
	binary.BigEndian.PutUint16(buf[4:], msg.Protocol)
	binary.BigEndian.PutUint16(buf[6:], msg.MajorVersion)
	binary.BigEndian.PutUint16(buf[8:], msg.MinorVersion)
	return buf
}

// DecodeHandshake decodes a handshake or ack record. Bytes past the first
// ten are ignored.
func DecodeHandshake(data []byte) (HandshakeMessage, error) {
	if len(data) < HandshakeSize {
		return HandshakeMessage{}, fmt.Errorf("%w: handshake record is %d bytes, need %d",
			outcome.ErrMalformed, len(data), HandshakeSize)
	}
	return HandshakeMessage{
		Type:         binary.BigEndian.Uint16(data[0:]),
		Message:      binary.BigEndian.Uint16(data[2:]),
		Protocol:     binary.BigEndian.Uint16(data[4:]),
		MajorVersion: binary.BigEndian.Uint16(data[6:]),
		MinorVersion: binary.BigEndian.Uint16(data[8:]),
	}, nil
}

func putAssignment(buf []byte, msg AssignmentMessage) {
	binary.BigEndian.PutUint16(buf[0:], msg.Type)
	binary.BigEndian.PutUint16(buf[2:], msg.MajorVersion)
	binary.BigEndian.PutUint16(buf[4:], msg.MinorVersion)
	binary.BigEndian.PutUint32(buf[6:], msg.ID)
	binary.BigEndian.PutUint32(buf[10:], msg.Arith)
	binary.BigEndian.PutUint32(buf[14:], uint32(msg.Value1))
	binary.BigEndian.PutUint32(buf[18:], uint32(msg.Value2))
}

// EncodeAssignment encodes the 22-byte server form of an assignment.
// The result field is not written.
func EncodeAssignment(msg AssignmentMessage) []byte {
	buf := make([]byte, AssignmentSize)
	putAssignment(buf, msg)
	return buf
}

// EncodeAssignmentResult encodes the 26-byte record echoed back to the
// server with the result populated.
func EncodeAssignmentResult(msg AssignmentMessage) []byte {
	buf := make([]byte, AssignmentResultSize)
	putAssignment(buf, msg)
	binary.BigEndian.PutUint32(buf[AssignmentSize:], uint32(msg.Result))
	return buf
}

// DecodeAssignment decodes a 22-byte (server) or 26-byte (with result)
// assignment record. Any other length is malformed.
func DecodeAssignment(data []byte) (AssignmentMessage, error) {
	if len(data) != AssignmentSize && len(data) != AssignmentResultSize {
		return AssignmentMessage{}, fmt.Errorf("%w: assignment record is %d bytes, need %d or %d",
			outcome.ErrMalformed, len(data), AssignmentSize, AssignmentResultSize)
	}
	msg := AssignmentMessage{
		Type:         binary.BigEndian.Uint16(data[0:]),
		MajorVersion: binary.BigEndian.Uint16(data[2:]),
		MinorVersion: binary.BigEndian.Uint16(data[4:]),
		ID:           binary.BigEndian.Uint32(data[6:]),
		Arith:        binary.BigEndian.Uint32(data[10:]),
		Value1:       int32(binary.BigEndian.Uint32(data[14:])),
		Value2:       int32(binary.BigEndian.Uint32(data[18:])),
	}
	if len(data) == AssignmentResultSize {
		msg.Result = int32(binary.BigEndian.Uint32(data[AssignmentSize:]))
		msg.HasResult = true
	}
	return msg, nil
}
