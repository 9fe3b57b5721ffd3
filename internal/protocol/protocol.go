// Package protocol defines the binary wire format spoken between the
// network viewer server and its clients. Every message travels as a
// single websocket binary frame whose first byte identifies the
// message type; all multi-byte fields are little-endian.
package protocol

import (
	"errors"
	"fmt"
	"math"
)

// Version identifies the network a message applies to. The server bumps
// it on every network load; clients echo it so stale requests can be
// dropped. Zero is reserved for "no network loaded".
type Version uint16

// Next returns the version following v, skipping the reserved zero.
func (v Version) Next() Version {
	v++
	if v == 0 {
		v++
	}
	return v
}

// NodeID indexes a node within the current network.
type NodeID uint32

// DragID distinguishes concurrent drag operations of a single client.
// Drags are keyed by (client, DragID), so IDs need only be unique per
// client.
type DragID uint16

// MessageType is the first byte of every wire message.
type MessageType uint8

// Client requests.
const (
	MsgLoadNetworkRequest MessageType = iota
	MsgSetSimulationParametersRequest
	MsgSetRenderingParametersRequest
	MsgSelectNodeRequest
	MsgChangeSelectionRequest
	MsgDisplayLabelRequest
	MsgDragStartRequest
	MsgDragRequest
	MsgDragStopRequest
)

// Server notifications. The ranges are disjoint so a misrouted frame
// fails decoding instead of parsing as the wrong message.
const (
	MsgLoadNetworkNotification MessageType = iota + 64
	MsgLoadNetworkCompleteNotification
	MsgSelectionSetNotification
	MsgLabelSetNotification
	MsgSetSimulationParametersNotification
	MsgSetRenderingParametersNotification
	MsgSelectNodeNotification
	MsgChangeSelectionNotification
	MsgDisplayLabelNotification
	MsgSimulationUpdate
)

func (t MessageType) String() string {
	switch t {
	case MsgLoadNetworkRequest:
		return "LoadNetworkRequest"
	case MsgSetSimulationParametersRequest:
		return "SetSimulationParametersRequest"
	case MsgSetRenderingParametersRequest:
		return "SetRenderingParametersRequest"
	case MsgSelectNodeRequest:
		return "SelectNodeRequest"
	case MsgChangeSelectionRequest:
		return "ChangeSelectionRequest"
	case MsgDisplayLabelRequest:
		return "DisplayLabelRequest"
	case MsgDragStartRequest:
		return "DragStartRequest"
	case MsgDragRequest:
		return "DragRequest"
	case MsgDragStopRequest:
		return "DragStopRequest"
	case MsgLoadNetworkNotification:
		return "LoadNetworkNotification"
	case MsgLoadNetworkCompleteNotification:
		return "LoadNetworkCompleteNotification"
	case MsgSelectionSetNotification:
		return "SelectionSetNotification"
	case MsgLabelSetNotification:
		return "LabelSetNotification"
	case MsgSetSimulationParametersNotification:
		return "SetSimulationParametersNotification"
	case MsgSetRenderingParametersNotification:
		return "SetRenderingParametersNotification"
	case MsgSelectNodeNotification:
		return "SelectNodeNotification"
	case MsgChangeSelectionNotification:
		return "ChangeSelectionNotification"
	case MsgDisplayLabelNotification:
		return "DisplayLabelNotification"
	case MsgSimulationUpdate:
		return "SimulationUpdate"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Selection modes carried by SelectNodeRequest.
const (
	SelectModeSelect uint8 = iota
	SelectModeDeselect
	SelectModeToggle
)

// Selection commands carried by ChangeSelectionRequest.
const (
	SelectionClear uint8 = iota
	SelectionGrow
	SelectionShrink
)

// Label commands carried by DisplayLabelRequest.
const (
	LabelClear uint8 = iota
	LabelShow
	LabelHide
)

var (
	// ErrShortMessage is returned when a frame ends before the
	// declared layout is complete.
	ErrShortMessage = errors.New("protocol: message truncated")

	// ErrTrailingBytes is returned when a frame carries data past
	// the end of its layout.
	ErrTrailingBytes = errors.New("protocol: trailing bytes after message")

	// ErrUnknownMessage is returned for an unrecognized type byte.
	ErrUnknownMessage = errors.New("protocol: unknown message type")

	// ErrEmptyMessage is returned for a zero-length frame.
	ErrEmptyMessage = errors.New("protocol: empty message")
)

// appendU8 and friends build messages by appending to a byte slice,
// so encoders can preallocate exact capacities.

func appendU8(b []byte, v uint8) []byte {
	return append(b, v)
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func appendF32(b []byte, v float32) []byte {
	return appendU32(b, math.Float32bits(v))
}

func appendF64(b []byte, v float64) []byte {
	return appendU64(b, math.Float64bits(v))
}

func appendBytes(b []byte, v []byte) []byte {
	b = appendU32(b, uint32(len(v)))
	return append(b, v...)
}

func appendString(b []byte, v string) []byte {
	b = appendU16(b, uint16(len(v)))
	return append(b, v...)
}

// reader consumes a frame front to back. The first length violation
// sticks, so callers check err once after the last read.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = ErrShortMessage
	}
}

func (r *reader) u8() uint8 {
	if r.err != nil || r.off+1 > len(r.b) {
		r.fail()
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil || r.off+2 > len(r.b) {
		r.fail()
		return 0
	}
	v := uint16(r.b[r.off]) | uint16(r.b[r.off+1])<<8
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil || r.off+4 > len(r.b) {
		r.fail()
		return 0
	}
	v := uint32(r.b[r.off]) | uint32(r.b[r.off+1])<<8 |
		uint32(r.b[r.off+2])<<16 | uint32(r.b[r.off+3])<<24
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil || r.off+8 > len(r.b) {
		r.fail()
		return 0
	}
	v := uint64(r.b[r.off]) | uint64(r.b[r.off+1])<<8 |
		uint64(r.b[r.off+2])<<16 | uint64(r.b[r.off+3])<<24 |
		uint64(r.b[r.off+4])<<32 | uint64(r.b[r.off+5])<<40 |
		uint64(r.b[r.off+6])<<48 | uint64(r.b[r.off+7])<<56
	r.off += 8
	return v
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *reader) bytes() []byte {
	n := int(r.u32())
	if r.err != nil || r.off+n > len(r.b) {
		r.fail()
		return nil
	}
	v := make([]byte, n)
	copy(v, r.b[r.off:r.off+n])
	r.off += n
	return v
}

func (r *reader) string() string {
	n := int(r.u16())
	if r.err != nil || r.off+n > len(r.b) {
		r.fail()
		return ""
	}
	v := string(r.b[r.off : r.off+n])
	r.off += n
	return v
}

// finish reports the sticky error, or ErrTrailingBytes when the frame
// is longer than its layout.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return ErrTrailingBytes
	}
	return nil
}
