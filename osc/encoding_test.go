package osc

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestPadBytesNeeded(t *testing.T) {
	for _, tt := range []struct {
		n    int
		want int
	}{
		{0, 0}, {1, 3}, {2, 2}, {3, 1}, {4, 0}, {5, 3}, {10, 2}, {32, 0}, {63, 1},
	} {
		if got := padBytesNeeded(tt.n); got != tt.want {
			t.Errorf("padBytesNeeded(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestWriteReadPaddedString(t *testing.T) {
	for _, tt := range []struct {
		str  string
		size int
	}{
		{"teststring", 12},
		{"testers", 8},
		{"tests", 8},
		{"tes", 4},
		{"", 4},
	} {
		buf := new(bytes.Buffer)
		if n := writePaddedString(tt.str, buf); n != tt.size {
			t.Errorf("writePaddedString(%q) wrote %d bytes, want %d", tt.str, n, tt.size)
		}
		if buf.Len() != tt.size {
			t.Errorf("writePaddedString(%q) buffer is %d bytes, want %d", tt.str, buf.Len(), tt.size)
		}

		got, n, err := readPaddedString(buf)
		if err != nil {
			t.Errorf("readPaddedString(%q): %v", tt.str, err)
		}
		if n != tt.size {
			t.Errorf("readPaddedString(%q) consumed %d bytes, want %d", tt.str, n, tt.size)
		}
		if got != tt.str {
			t.Errorf("readPaddedString(%q) = %q", tt.str, got)
		}
	}
}

func TestReadPaddedStringUnterminated(t *testing.T) {
	_, _, err := readPaddedString(bytes.NewBuffer([]byte{'t', 'e', 's', 't'}))
	if !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("readPaddedString() error = %v, want ErrMalformedPacket", err)
	}
}

func TestWriteReadBlob(t *testing.T) {
	for _, tt := range []struct {
		name string
		data []byte
		size int
	}{
		{"empty", []byte{}, 4},
		{"aligned", []byte{1, 2, 3, 4}, 8},
		{"padded", []byte{1, 2, 3}, 8},
		{"long", bytes.Repeat([]byte{0xab}, 300), 304},
	} {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if n := writeBlob(tt.data, buf); n != tt.size {
				t.Errorf("writeBlob() wrote %d bytes, want %d", n, tt.size)
			}

			got, n, err := readBlob(buf)
			if err != nil {
				t.Fatalf("readBlob(): %v", err)
			}
			if n != tt.size {
				t.Errorf("readBlob() consumed %d bytes, want %d", n, tt.size)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("readBlob() = %v, want %v", got, tt.data)
			}
		})
	}
}

func TestReadBlobTruncated(t *testing.T) {
	buf := new(bytes.Buffer)
	writeBlob([]byte{1, 2, 3, 4, 5}, buf)
	short := buf.Bytes()[:6]

	_, _, err := readBlob(bytes.NewBuffer(short))
	if !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("readBlob() error = %v, want ErrMalformedPacket", err)
	}
}

// TestArgumentRoundTrip serializes and deserializes every supported argument
// type over representative edge values.
func TestArgumentRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		tag  TypeTag
	}{
		{"int32_zero", int32(0), TypeInt32},
		{"int32_neg", int32(-1), TypeInt32},
		{"int32_min", int32(math.MinInt32), TypeInt32},
		{"int32_max", int32(math.MaxInt32), TypeInt32},
		{"int64_min", int64(math.MinInt64), TypeInt64},
		{"int64_max", int64(math.MaxInt64), TypeInt64},
		{"float32", float32(3.5), TypeFloat32},
		{"float32_inf", float32(math.Inf(1)), TypeFloat32},
		{"float64", 2.718281828459045, TypeFloat64},
		{"float64_neg_inf", math.Inf(-1), TypeFloat64},
		{"string_empty", "", TypeString},
		{"string", "hello world", TypeString},
		{"symbol", Symbol("sym"), TypeSymbol},
		{"blob_empty", []byte{}, TypeBlob},
		{"blob", []byte{0, 1, 2, 3, 4}, TypeBlob},
		{"timetag", Timetag(0x83aa7e80_00000000), TypeTimetag},
		{"char", Char('x'), TypeChar},
		{"rgba", RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, TypeRGBA},
		{"midi", MIDI{Port: 1, Status: 0x90, Data1: 60, Data2: 127}, TypeMIDI},
		{"true", true, TypeTrue},
		{"false", false, TypeFalse},
		{"nil", nil, TypeNil},
		{"infinitum", Infinitum{}, TypeInfinitum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToTypeTag(tt.arg); got != tt.tag {
				t.Fatalf("ToTypeTag() = %q, want %q", got, tt.tag)
			}

			buf := new(bytes.Buffer)
			if err := writeArgument(tt.arg, buf); err != nil {
				t.Fatalf("writeArgument(): %v", err)
			}
			if buf.Len()%4 != 0 {
				t.Errorf("writeArgument() produced %d bytes, not 32-bit aligned", buf.Len())
			}

			got, err := readArgument(tt.tag, buf)
			if err != nil {
				t.Fatalf("readArgument(): %v", err)
			}
			if !reflect.DeepEqual(got, tt.arg) && !(tt.name == "blob_empty" && len(got.([]byte)) == 0) {
				t.Errorf("round trip = %#v, want %#v", got, tt.arg)
			}
			if buf.Len() != 0 {
				t.Errorf("round trip left %d bytes unconsumed", buf.Len())
			}
		})
	}
}

func TestArgumentRoundTripNaN(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := writeArgument(float32(math.NaN()), buf); err != nil {
		t.Fatal(err)
	}
	got, err := readArgument(TypeFloat32, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(float64(got.(float32))) {
		t.Errorf("NaN round trip = %v", got)
	}
}

func TestReadArgumentTruncated(t *testing.T) {
	for _, tag := range []TypeTag{TypeInt32, TypeInt64, TypeFloat32, TypeFloat64, TypeTimetag, TypeChar, TypeRGBA, TypeMIDI} {
		_, err := readArgument(tag, bytes.NewBuffer([]byte{0, 1}))
		if !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("readArgument(%q) error = %v, want ErrMalformedPacket", tag, err)
		}
	}
}

func TestTypeTagsNested(t *testing.T) {
	args := []interface{}{int32(1), Array{float32(2), Array{"x"}}, true}
	tags, err := TypeTags(args)
	if err != nil {
		t.Fatal(err)
	}
	if want := ",i[f[s]]T"; tags != want {
		t.Errorf("TypeTags() = %q, want %q", tags, want)
	}
}

func TestGetTypeTagUnsupported(t *testing.T) {
	if _, err := GetTypeTag(struct{}{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GetTypeTag() error = %v, want ErrInvalidArgument", err)
	}
	// Plain Go ints are deliberately unsupported; use AsInt32/AsInt64.
	if _, err := GetTypeTag(7); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("GetTypeTag(int) error = %v, want ErrInvalidArgument", err)
	}
}

func TestRGBAPacking(t *testing.T) {
	c := RGBA{R: 0xde, G: 0xad, B: 0xbe, A: 0xef}
	if got := c.Uint32(); got != 0xdeadbeef {
		t.Errorf("Uint32() = %#x", got)
	}
	if got := RGBAFromUint32(0xdeadbeef); got != c {
		t.Errorf("RGBAFromUint32() = %+v", got)
	}
}
