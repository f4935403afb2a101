package osc

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// TypeTag identifies the wire type of a single OSC argument.
type TypeTag rune

const (
	TypeInt32      TypeTag = 'i'
	TypeInt64      TypeTag = 'h'
	TypeFloat32    TypeTag = 'f'
	TypeFloat64    TypeTag = 'd'
	TypeString     TypeTag = 's'
	TypeSymbol     TypeTag = 'S'
	TypeBlob       TypeTag = 'b'
	TypeTimetag    TypeTag = 't'
	TypeChar       TypeTag = 'c'
	TypeRGBA       TypeTag = 'r'
	TypeMIDI       TypeTag = 'm'
	TypeTrue       TypeTag = 'T'
	TypeFalse      TypeTag = 'F'
	TypeNil        TypeTag = 'N'
	TypeInfinitum  TypeTag = 'I'
	TypeArrayStart TypeTag = '['
	TypeArrayEnd   TypeTag = ']'
	TypeInvalid    TypeTag = 0
)

func (t TypeTag) String() string { return string(rune(t)) }

// Symbol is an alternate string type (type tag 'S'). It shares the wire
// format of 's' but keeps its distinct tag through a round trip.
type Symbol string

// Char is a single character (type tag 'c'), encoded as an int32 on the wire.
type Char rune

// RGBA is a 32-bit color (type tag 'r'), packed as r,g,b,a on the wire.
type RGBA struct {
	R, G, B, A uint8
}

// Uint32 returns the color packed into a single big-endian style uint32,
// red in the most significant byte.
func (c RGBA) Uint32() uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// RGBAFromUint32 unpacks a color from a packed uint32.
func RGBAFromUint32(v uint32) RGBA {
	return RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}

// MIDI is a 4-byte MIDI message (type tag 'm'): port id, status byte and two
// data bytes, transmitted raw.
type MIDI struct {
	Port, Status, Data1, Data2 byte
}

// Infinitum is the payloadless OSC 1.1 impulse type (type tag 'I').
type Infinitum struct{}

// Array is an ordered sequence of arguments wrapped in '[' and ']' tags on
// the wire. Arrays may nest.
type Array []interface{}

// ToTypeTag returns the OSC TypeTag for the given argument. Arrays report
// TypeArrayStart; their element tags are produced by TypeTags. Returns
// TypeInvalid if the argument type is unsupported.
func ToTypeTag(arg interface{}) TypeTag {
	switch t := arg.(type) {
	case bool:
		if t {
			return TypeTrue
		}
		return TypeFalse
	case nil:
		return TypeNil
	case int32:
		return TypeInt32
	case int64:
		return TypeInt64
	case float32:
		return TypeFloat32
	case float64:
		return TypeFloat64
	case string:
		return TypeString
	case Symbol:
		return TypeSymbol
	case []byte:
		return TypeBlob
	case Timetag:
		return TypeTimetag
	case Char:
		return TypeChar
	case RGBA:
		return TypeRGBA
	case MIDI:
		return TypeMIDI
	case Infinitum:
		return TypeInfinitum
	case Array:
		return TypeArrayStart
	default:
		return TypeInvalid
	}
}

// GetTypeTag returns the OSC TypeTag for the given argument, or an error if
// the argument type is unsupported.
func GetTypeTag(arg interface{}) (TypeTag, error) {
	t := ToTypeTag(arg)
	if t == TypeInvalid {
		return TypeInvalid, fmt.Errorf("%w: unsupported type %T", ErrInvalidArgument, arg)
	}
	return t, nil
}

// appendTypeTags appends the tag characters for args to tags, recursing into
// arrays. The leading ',' is the caller's business.
func appendTypeTags(tags []byte, args []interface{}) ([]byte, error) {
	for _, arg := range args {
		t, err := GetTypeTag(arg)
		if err != nil {
			return nil, err
		}
		if t == TypeArrayStart {
			tags = append(tags, byte(TypeArrayStart))
			tags, err = appendTypeTags(tags, arg.(Array))
			if err != nil {
				return nil, err
			}
			tags = append(tags, byte(TypeArrayEnd))
			continue
		}
		tags = append(tags, byte(t))
	}
	return tags, nil
}

// TypeTags returns the comma-prefixed type tag string for the given argument
// list.
func TypeTags(args []interface{}) (string, error) {
	tags := make([]byte, 1, len(args)+1)
	tags[0] = ','
	tags, err := appendTypeTags(tags, args)
	if err != nil {
		return "", err
	}
	return string(tags), nil
}

// AsInt32 converts any Go integer into an int32 argument.
func AsInt32[T constraints.Integer](v T) int32 { return int32(v) }

// AsInt64 converts any Go integer into an int64 argument.
func AsInt64[T constraints.Integer](v T) int64 { return int64(v) }

// AsFloat converts any Go float into a float32 argument.
func AsFloat[T constraints.Float](v T) float32 { return float32(v) }

// AsDouble converts any Go float into a float64 argument.
func AsDouble[T constraints.Float](v T) float64 { return float64(v) }
