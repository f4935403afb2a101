package osc

import (
	"bytes"
	"encoding"
	"fmt"
)

// MaxPacketSize is the default ceiling for a serialized OSC packet. It can
// be raised or lowered per Address/Server with AddressMaxPacketSize and
// ServerMaxPacketSize.
const MaxPacketSize = 65536

// minPacketSize is the smallest well-formed OSC packet: an address of "/"
// padded to 4 bytes plus an empty ",\0\0\0" tag string.
const minPacketSize = 8

// bundleTag is the magic string opening every OSC bundle.
const bundleTag = "#bundle"

// Packet is the interface for Message and Bundle.
type Packet interface {
	encoding.BinaryMarshaler
}

// ParsePacket parses either a Message or a Bundle from the given data,
// deciding by the leading byte: '/' starts a message, "#bundle" a bundle.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < minPacketSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for an OSC packet", ErrMalformedPacket, len(data))
	}

	switch {
	case data[0] == '/':
		msg := &Message{}
		if err := msg.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return msg, nil

	case bytes.HasPrefix(data, []byte(bundleTag)):
		b := &Bundle{}
		if err := b.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("%w: packet starts with %q, want '/' or %q", ErrMalformedPacket, data[0], bundleTag)
	}
}
