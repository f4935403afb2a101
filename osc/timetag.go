package osc

import (
	"bytes"
	"encoding/binary"
	"time"
)

// secondsFrom1900To1970 is the offset between the NTP epoch (1900-01-01) and
// the Unix epoch (1970-01-01).
const secondsFrom1900To1970 = 2208988800

// Immediately is the special time tag value (seconds=0, fraction=1) telling a
// receiver to execute immediately, ignoring time tag ordering.
const Immediately = Timetag(1)

// Timetag represents an OSC Time Tag.
// An OSC Time Tag is defined as follows:
// Time tags are represented by a 64 bit fixed point number. The first 32 bits
// specify the number of seconds since midnight on January 1, 1900, and the
// last 32 bits specify fractional parts of a second to a precision of about
// 200 picoseconds. This is the representation used by Internet NTP timestamps.
type Timetag uint64

// NewTimetag returns a time tag for the current time.
func NewTimetag() Timetag {
	return NewTimetagFromTime(time.Now())
}

// NewImmediateTimetag returns the Immediately sentinel.
func NewImmediateTimetag() Timetag {
	return Immediately
}

// NewTimetagFromTime returns a new OSC time tag from a time.Time.
func NewTimetagFromTime(timeStamp time.Time) Timetag {
	return Timetag(timeToTimetag(timeStamp))
}

// NewTimetagFromParts builds a time tag from its NTP seconds and fraction
// fields.
func NewTimetagFromParts(seconds, fraction uint32) Timetag {
	return Timetag(uint64(seconds)<<32 | uint64(fraction))
}

// Time returns the wall-clock time this tag represents.
func (t Timetag) Time() time.Time {
	return timetagToTime(t)
}

// SecondsSinceEpoch returns the first 32 bits (the number of seconds since
// midnight 1900) of the OSC time tag.
func (t Timetag) SecondsSinceEpoch() uint32 {
	return uint32(t >> 32)
}

// FractionalSecond returns the last 32 bits of the OSC time tag, the
// fractional part of a second.
func (t Timetag) FractionalSecond() uint32 {
	return uint32(t)
}

// IsImmediate reports whether this is the Immediately sentinel.
func (t Timetag) IsImmediate() bool {
	return t == Immediately
}

// Before reports whether t is earlier than other.
func (t Timetag) Before(other Timetag) bool { return t < other }

// After reports whether t is later than other.
func (t Timetag) After(other Timetag) bool { return t > other }

// TimeTag returns the raw 64-bit NTP value.
func (t Timetag) TimeTag() uint64 {
	return uint64(t)
}

// MarshalBinary converts the OSC time tag to a byte array.
func (t Timetag) MarshalBinary() (b []byte, err error) {
	b = make([]byte, bit64Size)
	binary.BigEndian.PutUint64(b, uint64(t))
	return
}

// LightMarshalBinary writes the time tag into the given buffer.
func (t Timetag) LightMarshalBinary(buf *bytes.Buffer) error {
	var b [bit64Size]byte
	binary.BigEndian.PutUint64(b[:], uint64(t))
	buf.Write(b[:])
	return nil
}

// SetTime sets the value of the OSC time tag.
func (t *Timetag) SetTime(time time.Time) {
	*t = Timetag(timeToTimetag(time))
}

// ExpiresIn calculates the duration until the current time equals the value
// of the time tag. It returns zero for immediate tags and tags in the past.
func (t Timetag) ExpiresIn() time.Duration {
	if t <= Immediately {
		return 0
	}

	d := timetagToTime(t).Sub(time.Now())
	if d <= 0 {
		return 0
	}
	return d
}

// timeToTimetag converts the given time to an OSC time tag. The fractional
// field counts in units of 2^-32 seconds.
func timeToTimetag(t time.Time) uint64 {
	seconds := uint64(secondsFrom1900To1970 + t.Unix())
	fraction := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return seconds<<32 | fraction
}

// timetagToTime converts the given time tag to a time.Time.
func timetagToTime(timetag Timetag) time.Time {
	seconds := int64(timetag>>32) - secondsFrom1900To1970
	nanos := (uint64(timetag) & 0xffffffff) * uint64(time.Second) >> 32
	return time.Unix(seconds, int64(nanos))
}
