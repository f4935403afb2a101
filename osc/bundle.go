package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Bundle represents an OSC bundle. It consists of the OSC-string "#bundle"
// followed by an OSC Time Tag, followed by zero or more OSC bundle/message
// elements. Elements are kept in one ordered list so re-serializing a parsed
// bundle preserves the original wire order of interleaved messages and child
// bundles.
type Bundle struct {
	Timetag  Timetag
	Elements []Packet
}

// Verify that Bundle implements the Packet interface.
var _ Packet = (*Bundle)(nil)

// NewBundle returns an OSC Bundle with an immediate time tag.
func NewBundle() *Bundle {
	return &Bundle{Timetag: NewImmediateTimetag()}
}

// NewBundleWithTime returns an OSC Bundle scheduled at the given time.
func NewBundleWithTime(t time.Time) *Bundle {
	return &Bundle{Timetag: NewTimetagFromTime(t)}
}

// NewBundleFromData parses a Bundle from its wire bytes.
func NewBundleFromData(data []byte) (*Bundle, error) {
	b := &Bundle{}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// Append appends an OSC bundle or OSC message to the bundle.
func (b *Bundle) Append(pck Packet) error {
	switch t := pck.(type) {
	default:
		return fmt.Errorf("%w: only *Bundle and *Message can be bundle elements, not %T", ErrInvalidArgument, pck)

	case *Bundle, *Message:
		b.Elements = append(b.Elements, t)
	}

	return nil
}

// AddMessage appends a message element.
func (b *Bundle) AddMessage(m *Message) *Bundle {
	b.Elements = append(b.Elements, m)
	return b
}

// AddBundle appends a nested bundle element.
func (b *Bundle) AddBundle(child *Bundle) *Bundle {
	b.Elements = append(b.Elements, child)
	return b
}

// ForEach visits every message in this bundle and, depth-first, in all
// descendant bundles.
func (b *Bundle) ForEach(fn func(*Message)) {
	for _, elem := range b.Elements {
		switch t := elem.(type) {
		case *Message:
			fn(t)
		case *Bundle:
			t.ForEach(fn)
		}
	}
}

// MarshalBinary serializes the OSC bundle with the following format:
// 1. Bundle string: '#bundle'
// 2. OSC time tag
// 3. Length of first OSC bundle element
// 4. First bundle element
// 5. Length of n OSC bundle element
// 6. n bundle element
func (b *Bundle) MarshalBinary() ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(buf)
	buf.Reset()

	if err := b.LightMarshalBinary(buf); err != nil {
		return nil, err
	}

	bb := make([]byte, buf.Len())
	copy(bb, buf.Bytes())
	return bb, nil
}

// LightMarshalBinary serializes the bundle into the given buffer.
func (b *Bundle) LightMarshalBinary(data *bytes.Buffer) error {
	writePaddedString(bundleTag, data)

	if err := b.Timetag.LightMarshalBinary(data); err != nil {
		return err
	}

	for _, elem := range b.Elements {
		bb, err := elem.MarshalBinary()
		if err != nil {
			return err
		}

		var l [bit32Size]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(bb)))
		data.Write(l[:])
		data.Write(bb)
	}

	if data.Len() > MaxPacketSize {
		return fmt.Errorf("%w: bundle is %d bytes", ErrPacketTooLarge, data.Len())
	}

	return nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (b *Bundle) UnmarshalBinary(data []byte) error {
	if (len(data) % bit32Size) != 0 {
		return fmt.Errorf("%w: bundle length %d is not a multiple of 4", ErrMalformedPacket, len(data))
	}

	// "#bundle\0" plus the 8-byte time tag.
	if len(data) < 16 {
		return fmt.Errorf("%w: bundle of %d bytes is too short", ErrMalformedPacket, len(data))
	}

	buf := bytes.NewBuffer(data)

	startTag, _, err := readPaddedString(buf)
	if err != nil {
		return err
	}
	if startTag != bundleTag {
		return fmt.Errorf("%w: invalid bundle start tag %q", ErrMalformedPacket, startTag)
	}

	b.Timetag = Timetag(binary.BigEndian.Uint64(buf.Next(bit64Size)))

	for buf.Len() > 0 {
		if buf.Len() < bit32Size {
			return fmt.Errorf("%w: truncated bundle element length", ErrMalformedPacket)
		}
		length := int(binary.BigEndian.Uint32(buf.Next(bit32Size)))
		if length < minPacketSize {
			return fmt.Errorf("%w: bundle element of %d bytes is too small", ErrMalformedPacket, length)
		}
		if length > buf.Len() {
			return fmt.Errorf("%w: bundle element length %d exceeds remaining %d bytes", ErrMalformedPacket, length, buf.Len())
		}

		p, err := ParsePacket(buf.Next(length))
		if err != nil {
			return err
		}
		if err := b.Append(p); err != nil {
			return err
		}
	}

	return nil
}
