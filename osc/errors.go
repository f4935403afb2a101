package osc

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (usually wrapped) by the encoding, transport and
// dispatch layers. Use errors.Is to test for them.
var (
	// ErrMalformedPacket is returned when incoming bytes cannot be parsed
	// as a valid OSC message or bundle.
	ErrMalformedPacket = errors.New("osc: malformed packet")

	// ErrInvalidArgument is returned when a Message carries (or is asked
	// to carry) an argument of an unsupported type, or an argument index
	// is out of range.
	ErrInvalidArgument = errors.New("osc: invalid argument")

	// ErrInvalidAddress is returned for OSC address paths that do not
	// start with '/'.
	ErrInvalidAddress = errors.New("osc: invalid address")

	// ErrPacketTooLarge is returned when a packet exceeds the maximum
	// packet size of the transport it is sent or received on.
	ErrPacketTooLarge = errors.New("osc: packet too large")

	// ErrNotSupported is returned for transport features unavailable on
	// the current platform or protocol, e.g. SetNoDelay on UDP.
	ErrNotSupported = errors.New("osc: not supported")

	// ErrConnClosed is returned when the peer of a stream transport
	// closes the connection between packets. A close mid-frame is a
	// malformed packet instead.
	ErrConnClosed = errors.New("osc: connection closed")
)

// TypeError is returned by the typed argument accessors on Message when the
// argument at the requested index holds a different type. Arguments are never
// coerced.
type TypeError struct {
	Index int
	Want  TypeTag
	Got   TypeTag
}

func (e *TypeError) Error() string {
	// Booleans live in the tag string as either 'T' or 'F'; name both so
	// a failed BoolAt does not read as wanting only true.
	if e.Want == TypeTrue || e.Want == TypeFalse {
		return fmt.Sprintf("osc: argument %d: have type %q, want %q or %q", e.Index, e.Got, TypeTrue, TypeFalse)
	}
	return fmt.Sprintf("osc: argument %d: have type %q, want %q", e.Index, e.Got, e.Want)
}

// PatternError is returned for syntactically invalid address patterns, such
// as an unterminated character class or alternation.
type PatternError struct {
	Pattern string
	Reason  string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("osc: invalid pattern %q: %s", e.Pattern, e.Reason)
}

// ErrorHandler receives per-packet errors from a Server's receive loop and
// from handlers that fail during dispatch. Such errors are not fatal to the
// server; the receive loop keeps running.
type ErrorHandler func(err error)
