// Package wire implements the bridge protocol: the 8-byte framed message
// format exchanged between vehicles and the mission manager, and the CBOR
// payloads carried inside the frames.
//
// Every frame is an 8-byte header followed by the payload:
//
//	+----------------------+----------------------+-------------+
//	| payload length (BE)  | type tag (BE)        | payload ... |
//	| uint32               | uint32               |             |
//	+----------------------+----------------------+-------------+
//
// Vehicles send STATE frames. The manager answers with ACTION frames
// (consumer decisions), CTRL frames (lifecycle instructions it synthesizes)
// and MUST_POST frames (out-of-band side effects that do not request a new
// state).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type is the frame type tag carried in the header.
type Type uint32

const (
	TypeCtrl     Type = 0
	TypeAction   Type = 1
	TypeMustPost Type = 2
	TypeState    Type = 3
)

// HeaderSize is the fixed size of a frame header.
const HeaderSize = 8

// MaxPayloadSize bounds a single payload. States are a few hundred bytes;
// anything near this size means the peer is not speaking the protocol.
const MaxPayloadSize = 16 * 1024 * 1024

// String returns the protocol name of the type tag.
func (t Type) String() string {
	switch t {
	case TypeCtrl:
		return "CTRL"
	case TypeAction:
		return "ACTION"
	case TypeMustPost:
		return "MUST_POST"
	case TypeState:
		return "STATE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// Valid reports whether t is one of the four protocol types.
func (t Type) Valid() bool {
	return t <= TypeState
}

// Frame is one decoded protocol message.
type Frame struct {
	Type    Type
	Payload []byte
}

// Encode frames payload with a header for type t.
func Encode(t Type, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(out[4:8], uint32(t))
	copy(out[HeaderSize:], payload)
	return out
}

// WriteFrame writes f to w with a single Write call so concurrent frames
// on the same stream never interleave.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return &ProtocolError{Reason: fmt.Sprintf("payload length %d exceeds maximum %d", len(f.Payload), MaxPayloadSize)}
	}
	if _, err := w.Write(Encode(f.Type, f.Payload)); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// Decoder reassembles frames from arbitrarily split chunks of a byte
// stream. The zero value is ready to use. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every frame that
// is now complete, in stream order. Bytes belonging to an incomplete
// header or payload stay buffered for the next call. An empty chunk
// yields no frames.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for len(d.buf) >= HeaderSize {
		length := binary.BigEndian.Uint32(d.buf[0:4])
		t := Type(binary.BigEndian.Uint32(d.buf[4:8]))
		if length > MaxPayloadSize {
			return frames, &ProtocolError{Reason: fmt.Sprintf("payload length %d exceeds maximum %d", length, MaxPayloadSize)}
		}
		if !t.Valid() {
			return frames, &ProtocolError{Reason: fmt.Sprintf("unknown frame type %d", uint32(t))}
		}
		end := HeaderSize + int(length)
		if len(d.buf) < end {
			break
		}
		payload := make([]byte, length)
		copy(payload, d.buf[HeaderSize:end])
		frames = append(frames, Frame{Type: t, Payload: payload})
		d.buf = d.buf[end:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
