package osc

import (
	"bytes"
	"fmt"
	"strings"
)

// Message represents a single OSC message. An OSC message consists of an OSC
// address pattern and zero or more arguments.
type Message struct {
	Address   string
	Arguments []interface{}
}

// Verify that Message implements the Packet interface.
var _ Packet = (*Message)(nil)

// NewMessage returns a new Message. The address parameter is the OSC address.
func NewMessage(addr string, args ...interface{}) *Message {
	return &Message{Address: addr, Arguments: args}
}

// NewMessageFromData parses a Message from its wire bytes.
func NewMessageFromData(data []byte) (*Message, error) {
	msg := &Message{}
	if err := msg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return msg, nil
}

// Append appends the given arguments to the arguments list. All arguments
// are validated first; on error the message is left unchanged.
func (m *Message) Append(args ...interface{}) error {
	for _, a := range args {
		if _, err := GetTypeTag(a); err != nil {
			return err
		}
	}
	m.Arguments = append(m.Arguments, args...)
	return nil
}

// Clear clears the OSC address and all arguments.
func (m *Message) Clear() {
	m.Address = ""
	m.Arguments = m.Arguments[:0]
}

// CountArguments returns the number of arguments.
func (m *Message) CountArguments() int {
	return len(m.Arguments)
}

////
// Builder methods. Each appends one argument and returns the message so
// calls can chain: NewMessage("/a").AddInt32(1).AddString("x").
////

func (m *Message) add(arg interface{}) *Message {
	m.Arguments = append(m.Arguments, arg)
	return m
}

func (m *Message) AddInt32(v int32) *Message     { return m.add(v) }
func (m *Message) AddInt64(v int64) *Message     { return m.add(v) }
func (m *Message) AddFloat(v float32) *Message   { return m.add(v) }
func (m *Message) AddDouble(v float64) *Message  { return m.add(v) }
func (m *Message) AddString(v string) *Message   { return m.add(v) }
func (m *Message) AddSymbol(v Symbol) *Message   { return m.add(v) }
func (m *Message) AddBlob(v []byte) *Message     { return m.add(v) }
func (m *Message) AddTimetag(v Timetag) *Message { return m.add(v) }
func (m *Message) AddChar(v Char) *Message       { return m.add(v) }
func (m *Message) AddRGBA(v RGBA) *Message       { return m.add(v) }
func (m *Message) AddMIDI(v MIDI) *Message       { return m.add(v) }
func (m *Message) AddBool(v bool) *Message       { return m.add(v) }
func (m *Message) AddTrue() *Message             { return m.add(true) }
func (m *Message) AddFalse() *Message            { return m.add(false) }
func (m *Message) AddNil() *Message              { return m.add(nil) }
func (m *Message) AddInfinitum() *Message        { return m.add(Infinitum{}) }

// AddColor appends an RGBA color packed into a uint32, red in the most
// significant byte.
func (m *Message) AddColor(packed uint32) *Message {
	return m.add(RGBAFromUint32(packed))
}

// AddArray appends the given arguments wrapped in '[' and ']' tags.
func (m *Message) AddArray(args ...interface{}) *Message {
	return m.add(Array(args))
}

////
// Typed accessors. Each returns the argument at the given index, or a
// *TypeError if it holds a different type. Values are never coerced.
////

func argumentAt[T any](m *Message, i int, want TypeTag) (T, error) {
	var zero T
	if i < 0 || i >= len(m.Arguments) {
		return zero, fmt.Errorf("%w: index %d out of range (%d arguments)", ErrInvalidArgument, i, len(m.Arguments))
	}
	v, ok := m.Arguments[i].(T)
	if !ok {
		return zero, &TypeError{Index: i, Want: want, Got: ToTypeTag(m.Arguments[i])}
	}
	return v, nil
}

func (m *Message) Int32At(i int) (int32, error)     { return argumentAt[int32](m, i, TypeInt32) }
func (m *Message) Int64At(i int) (int64, error)     { return argumentAt[int64](m, i, TypeInt64) }
func (m *Message) FloatAt(i int) (float32, error)   { return argumentAt[float32](m, i, TypeFloat32) }
func (m *Message) DoubleAt(i int) (float64, error)  { return argumentAt[float64](m, i, TypeFloat64) }
func (m *Message) StringAt(i int) (string, error)   { return argumentAt[string](m, i, TypeString) }
func (m *Message) SymbolAt(i int) (Symbol, error)   { return argumentAt[Symbol](m, i, TypeSymbol) }
func (m *Message) BlobAt(i int) ([]byte, error)     { return argumentAt[[]byte](m, i, TypeBlob) }
func (m *Message) TimetagAt(i int) (Timetag, error) { return argumentAt[Timetag](m, i, TypeTimetag) }
func (m *Message) CharAt(i int) (Char, error)       { return argumentAt[Char](m, i, TypeChar) }
func (m *Message) RGBAAt(i int) (RGBA, error)       { return argumentAt[RGBA](m, i, TypeRGBA) }
func (m *Message) MIDIAt(i int) (MIDI, error)       { return argumentAt[MIDI](m, i, TypeMIDI) }
func (m *Message) BoolAt(i int) (bool, error)       { return argumentAt[bool](m, i, TypeTrue) }
func (m *Message) ArrayAt(i int) (Array, error)     { return argumentAt[Array](m, i, TypeArrayStart) }

// Match reports whether the given address pattern matches this message's
// address. Invalid patterns never match.
func (m *Message) Match(pattern string) bool {
	ok, err := MatchPattern(pattern, m.Address)
	return err == nil && ok
}

// TypeTags returns the comma-prefixed type tag string.
func (m *Message) TypeTags() (string, error) {
	if m == nil {
		return "", fmt.Errorf("%w: message is nil", ErrInvalidArgument)
	}
	return TypeTags(m.Arguments)
}

// String implements the fmt.Stringer interface.
func (m *Message) String() string {
	if m == nil {
		return ""
	}

	tags, _ := m.TypeTags()

	var sb strings.Builder
	sb.WriteString(m.Address)
	if len(tags) <= 1 {
		return sb.String()
	}

	sb.WriteByte(' ')
	sb.WriteString(tags)
	appendArgumentsString(&sb, m.Arguments)

	return sb.String()
}

func appendArgumentsString(sb *strings.Builder, args []interface{}) {
	for _, arg := range args {
		switch arg := arg.(type) {
		case bool, int32, int64, float32, float64, string:
			fmt.Fprintf(sb, " %v", arg)

		case Symbol:
			fmt.Fprintf(sb, " %s", string(arg))

		case nil:
			sb.WriteString(" Nil")

		case Infinitum:
			sb.WriteString(" Infinitum")

		case []byte:
			sb.WriteString(" blob")

		case Timetag:
			fmt.Fprintf(sb, " %d", arg.TimeTag())

		case Char:
			fmt.Fprintf(sb, " %c", rune(arg))

		case RGBA:
			fmt.Fprintf(sb, " #%08x", arg.Uint32())

		case MIDI:
			fmt.Fprintf(sb, " midi(%02x %02x %02x %02x)", arg.Port, arg.Status, arg.Data1, arg.Data2)

		case Array:
			sb.WriteString(" [")
			appendArgumentsString(sb, arg)
			sb.WriteString(" ]")
		}
	}
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (m *Message) MarshalBinary() ([]byte, error) {
	data := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(data)
	data.Reset()

	if err := m.LightMarshalBinary(data); err != nil {
		return nil, err
	}

	b := make([]byte, data.Len())
	copy(b, data.Bytes())
	return b, nil
}

// LightMarshalBinary serializes the message into the given buffer:
// 1. OSC Address Pattern
// 2. OSC Type Tag String
// 3. OSC Arguments
func (m *Message) LightMarshalBinary(data *bytes.Buffer) error {
	if len(m.Address) == 0 || m.Address[0] != '/' {
		return fmt.Errorf("%w: %q does not start with '/'", ErrInvalidAddress, m.Address)
	}

	b := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(b)
	b.Reset()

	// Serialize the payload first so a bad argument fails before anything
	// is written to data.
	for _, arg := range m.Arguments {
		if err := writeArgument(arg, b); err != nil {
			return err
		}
	}

	typetags, err := m.TypeTags()
	if err != nil {
		return err
	}

	writePaddedString(m.Address, data)
	writePaddedString(typetags, data)
	data.Write(b.Bytes())

	if data.Len() > MaxPacketSize {
		return fmt.Errorf("%w: message %q is %d bytes", ErrPacketTooLarge, m.Address, data.Len())
	}

	return nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[0] != '/' {
		return fmt.Errorf("%w: message address does not start with '/'", ErrMalformedPacket)
	}

	if (len(data) % bit32Size) != 0 {
		return fmt.Errorf("%w: message length %d is not a multiple of 4", ErrMalformedPacket, len(data))
	}

	buf := bytes.NewBuffer(data)

	addr, _, err := readPaddedString(buf)
	if err != nil {
		return fmt.Errorf("reading address: %w", err)
	}

	m.Address = addr
	if err := m.readArguments(buf); err != nil {
		return fmt.Errorf("reading arguments of %q: %w", addr, err)
	}

	return nil
}

// readArguments reads the type tag string and all declared payloads.
func (m *Message) readArguments(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		// A bare address with no type tag string is tolerated on input.
		m.Arguments = nil
		return nil
	}

	typetags, _, err := readPaddedString(buf)
	if err != nil {
		return err
	}

	if len(typetags) == 0 || typetags[0] != ',' {
		return fmt.Errorf("%w: type tag string %q does not start with ','", ErrMalformedPacket, typetags)
	}

	args, rest, closed, err := readArgumentList([]byte(typetags[1:]), buf)
	if err != nil {
		return err
	}
	if closed {
		return fmt.Errorf("%w: unmatched ']' in type tag string %q", ErrMalformedPacket, typetags)
	}
	_ = rest

	if len(args) == 0 {
		args = nil
	}
	m.Arguments = args
	return nil
}

// readArgumentList consumes tag characters until the tags run out or an
// array close is hit, decoding each payload from buf. It recurses for '['.
func readArgumentList(tags []byte, buf *bytes.Buffer) (args []interface{}, rest []byte, closed bool, err error) {
	args = make([]interface{}, 0, len(tags))
	for len(tags) > 0 {
		switch tag := TypeTag(tags[0]); tag {
		case TypeArrayStart:
			inner, r, innerClosed, err := readArgumentList(tags[1:], buf)
			if err != nil {
				return nil, nil, false, err
			}
			if !innerClosed {
				return nil, nil, false, fmt.Errorf("%w: unterminated array in type tag string", ErrMalformedPacket)
			}
			args = append(args, Array(inner))
			tags = r

		case TypeArrayEnd:
			return args, tags[1:], true, nil

		default:
			v, err := readArgument(tag, buf)
			if err != nil {
				return nil, nil, false, err
			}
			args = append(args, v)
			tags = tags[1:]
		}
	}
	return args, nil, false, nil
}
