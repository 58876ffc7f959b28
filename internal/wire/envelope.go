// Package wire defines the message envelope carried as a ring frame payload
// and the stable wire-format message type values (spec.md §3).
//
// Grounded on the teacher's core/protocol/constants.go enumeration style and
// protocol/frame_codec.go's length-checked, "too short means error, not
// panic" parsing discipline.
package wire

import (
	"encoding/binary"
	"fmt"
)

// MsgType is a stable wire-format message type byte. Values are part of the
// protocol contract (spec.md §6 "Protocol stability") and must never be
// repurposed.
type MsgType byte

const (
	MsgStdout     MsgType = 0x00
	MsgFSRead     MsgType = 0x01
	MsgFSWrite    MsgType = 0x02
	MsgNetConnect MsgType = 0x03
	MsgExec       MsgType = 0x04
	MsgListDir    MsgType = 0x05

	MsgAllow MsgType = 0x10
	MsgDeny  MsgType = 0x11

	MsgCode MsgType = 0x20
)

func (t MsgType) String() string {
	switch t {
	case MsgStdout:
		return "STDOUT"
	case MsgFSRead:
		return "FS_READ"
	case MsgFSWrite:
		return "FS_WRITE"
	case MsgNetConnect:
		return "NET_CONNECT"
	case MsgExec:
		return "EXEC"
	case MsgListDir:
		return "LISTDIR"
	case MsgAllow:
		return "ALLOW"
	case MsgDeny:
		return "DENY"
	case MsgCode:
		return "CODE"
	default:
		return fmt.Sprintf("MsgType(0x%02x)", byte(t))
	}
}

// IsProbe reports whether t is one of the worker→host policy probe types.
func (t MsgType) IsProbe() bool {
	switch t {
	case MsgFSRead, MsgFSWrite, MsgNetConnect, MsgExec, MsgListDir:
		return true
	default:
		return false
	}
}

// envelopeHeaderLen is sizeof(type) + sizeof(request_id).
const envelopeHeaderLen = 5

// Envelope is the [type][request_id][body] structure carried as a frame
// payload (spec.md §3).
type Envelope struct {
	Type      MsgType
	RequestID uint32
	Body      []byte
}

// Encode serializes the envelope into a fresh byte slice suitable for
// Ring.Write.
func (e Envelope) Encode() []byte {
	out := make([]byte, envelopeHeaderLen+len(e.Body))
	out[0] = byte(e.Type)
	binary.LittleEndian.PutUint32(out[1:5], e.RequestID)
	copy(out[5:], e.Body)
	return out
}

// Decode parses a frame payload into an Envelope. A payload shorter than
// the envelope header is a protocol-inconsistency (spec.md §7) and is
// reported via the returned error so callers can discard it silently.
func Decode(payload []byte) (Envelope, error) {
	if len(payload) < envelopeHeaderLen {
		return Envelope{}, fmt.Errorf("wire: envelope too short: %d bytes", len(payload))
	}
	body := make([]byte, len(payload)-envelopeHeaderLen)
	copy(body, payload[envelopeHeaderLen:])
	return Envelope{
		Type:      MsgType(payload[0]),
		RequestID: binary.LittleEndian.Uint32(payload[1:5]),
		Body:      body,
	}, nil
}
