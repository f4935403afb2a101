package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	bit32Size = 4
	bit64Size = 8
)

////
// De/Encoding functions
////

// padBytesNeeded determines how many bytes are needed to fill up to the next
// 4 byte length.
func padBytesNeeded(elementLen int) int {
	return (4 - (elementLen % 4)) % 4
}

// writePaddedString writes a null-terminated string with padding bytes to the
// buffer and returns the number of written bytes.
func writePaddedString(str string, buf *bytes.Buffer) int {
	buf.WriteString(str)
	n := len(str) + 1
	for i := 0; i < 1+padBytesNeeded(n); i++ {
		buf.WriteByte(0)
	}
	return n + padBytesNeeded(n)
}

// readPaddedString reads a null-terminated, padded string from the buffer and
// returns the string and the number of bytes consumed.
func readPaddedString(buf *bytes.Buffer) (string, int, error) {
	str, err := buf.ReadString(0)
	if err != nil {
		return "", 0, fmt.Errorf("%w: unterminated string (%d bytes left)", ErrMalformedPacket, buf.Len())
	}
	n := len(str)
	str = str[:n-1] // strip the terminator

	pad := padBytesNeeded(n)
	if buf.Len() < pad {
		return "", 0, fmt.Errorf("%w: missing string padding (%d bytes left)", ErrMalformedPacket, buf.Len())
	}
	buf.Next(pad)

	return str, n + pad, nil
}

// writeBlob writes the data byte array as an OSC blob into the buffer: a
// 4-byte big-endian length followed by the bytes, padded to 32 bits.
func writeBlob(data []byte, buf *bytes.Buffer) int {
	var l [bit32Size]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	buf.Write(l[:])
	buf.Write(data)

	pad := padBytesNeeded(len(data))
	for i := 0; i < pad; i++ {
		buf.WriteByte(0)
	}
	return bit32Size + len(data) + pad
}

// readBlob reads an OSC blob from the buffer and returns the data and the
// number of bytes consumed. Padding bytes are consumed and not returned.
func readBlob(buf *bytes.Buffer) ([]byte, int, error) {
	if buf.Len() < bit32Size {
		return nil, 0, fmt.Errorf("%w: truncated blob length (%d bytes left)", ErrMalformedPacket, buf.Len())
	}
	blobLen := int(binary.BigEndian.Uint32(buf.Next(bit32Size)))
	if blobLen < 0 || blobLen > buf.Len() {
		return nil, 0, fmt.Errorf("%w: invalid blob length %d (%d bytes left)", ErrMalformedPacket, blobLen, buf.Len())
	}

	data := make([]byte, blobLen)
	copy(data, buf.Next(blobLen))

	pad := padBytesNeeded(blobLen)
	if buf.Len() < pad {
		return nil, 0, fmt.Errorf("%w: missing blob padding (%d bytes left)", ErrMalformedPacket, buf.Len())
	}
	buf.Next(pad)

	return data, bit32Size + blobLen + pad, nil
}

// writeArgument writes the wire bytes of a single argument. The payloadless
// types (T, F, N, I) and array brackets contribute nothing here; they live
// entirely in the type tag string.
func writeArgument(arg interface{}, buf *bytes.Buffer) error {
	switch t := arg.(type) {
	case bool, nil, Infinitum:
		return nil

	case int32:
		var b [bit32Size]byte
		binary.BigEndian.PutUint32(b[:], uint32(t))
		buf.Write(b[:])

	case int64:
		var b [bit64Size]byte
		binary.BigEndian.PutUint64(b[:], uint64(t))
		buf.Write(b[:])

	case float32:
		var b [bit32Size]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(t))
		buf.Write(b[:])

	case float64:
		var b [bit64Size]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(t))
		buf.Write(b[:])

	case string:
		writePaddedString(t, buf)

	case Symbol:
		writePaddedString(string(t), buf)

	case []byte:
		writeBlob(t, buf)

	case Timetag:
		var b [bit64Size]byte
		binary.BigEndian.PutUint64(b[:], uint64(t))
		buf.Write(b[:])

	case Char:
		var b [bit32Size]byte
		binary.BigEndian.PutUint32(b[:], uint32(t))
		buf.Write(b[:])

	case RGBA:
		buf.Write([]byte{t.R, t.G, t.B, t.A})

	case MIDI:
		buf.Write([]byte{t.Port, t.Status, t.Data1, t.Data2})

	case Array:
		for _, elem := range t {
			if err := writeArgument(elem, buf); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidArgument, t)
	}
	return nil
}

// readArgument decodes the payload of a single non-array type tag.
func readArgument(tag TypeTag, buf *bytes.Buffer) (interface{}, error) {
	need := 0
	switch tag {
	case TypeInt32, TypeFloat32, TypeChar, TypeRGBA, TypeMIDI:
		need = bit32Size
	case TypeInt64, TypeFloat64, TypeTimetag:
		need = bit64Size
	}
	if buf.Len() < need {
		return nil, fmt.Errorf("%w: truncated payload for tag %q (%d bytes left)", ErrMalformedPacket, tag, buf.Len())
	}

	switch tag {
	case TypeInt32:
		return int32(binary.BigEndian.Uint32(buf.Next(bit32Size))), nil

	case TypeInt64:
		return int64(binary.BigEndian.Uint64(buf.Next(bit64Size))), nil

	case TypeFloat32:
		return math.Float32frombits(binary.BigEndian.Uint32(buf.Next(bit32Size))), nil

	case TypeFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(buf.Next(bit64Size))), nil

	case TypeString:
		str, _, err := readPaddedString(buf)
		return str, err

	case TypeSymbol:
		str, _, err := readPaddedString(buf)
		return Symbol(str), err

	case TypeBlob:
		data, _, err := readBlob(buf)
		return data, err

	case TypeTimetag:
		return Timetag(binary.BigEndian.Uint64(buf.Next(bit64Size))), nil

	case TypeChar:
		return Char(binary.BigEndian.Uint32(buf.Next(bit32Size))), nil

	case TypeRGBA:
		b := buf.Next(bit32Size)
		return RGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, nil

	case TypeMIDI:
		b := buf.Next(bit32Size)
		return MIDI{Port: b[0], Status: b[1], Data1: b[2], Data2: b[3]}, nil

	case TypeTrue:
		return true, nil

	case TypeFalse:
		return false, nil

	case TypeNil:
		return nil, nil

	case TypeInfinitum:
		return Infinitum{}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported type tag %q", ErrMalformedPacket, tag)
	}
}
