package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/Lobaro/slip"
)

// Framing selects how OSC packets are delimited on stream transports (TCP,
// Unix domain). Datagram transports need no framing.
type Framing int

const (
	// FramingLengthPrefix precedes every packet with a 4-byte big-endian
	// unsigned byte count. This is the framing liblo-compatible peers
	// speak.
	FramingLengthPrefix Framing = iota

	// FramingSLIP delimits packets with SLIP (RFC 1055) END bytes, the
	// stream framing recommended by OSC 1.1.
	FramingSLIP
)

// maxReadRetries bounds how often a read that made no progress (interrupted
// by a signal, or returning zero bytes without error) is retried before
// giving up.
const maxReadRetries = 5

// framer reads and writes framed OSC packets on one stream connection. It is
// not safe for concurrent use.
type framer struct {
	framing Framing
	maxSize int

	r io.Reader
	w io.Writer

	slipR *slip.Reader
	slipW *slip.Writer
}

func newFramer(rw io.ReadWriter, framing Framing, maxSize int) *framer {
	f := &framer{framing: framing, maxSize: maxSize, r: rw, w: rw}
	if framing == FramingSLIP {
		f.slipR = slip.NewReader(rw)
		f.slipW = slip.NewWriter(rw)
	}
	return f
}

// WritePacket frames and writes one OSC packet, verifying every write
// transmitted the expected byte count.
func (f *framer) WritePacket(data []byte) error {
	if len(data) > f.maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPacketTooLarge, len(data), f.maxSize)
	}

	if f.framing == FramingSLIP {
		return f.slipW.WritePacket(data)
	}

	var l [bit32Size]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	if err := writeFull(f.w, l[:]); err != nil {
		return fmt.Errorf("osc: writing frame length: %w", err)
	}
	if err := writeFull(f.w, data); err != nil {
		return fmt.Errorf("osc: writing frame payload: %w", err)
	}
	return nil
}

// ReadPacket reads one framed OSC packet. A connection closed cleanly
// between packets yields ErrConnClosed; a close mid-frame is a malformed
// packet.
func (f *framer) ReadPacket() ([]byte, error) {
	if f.framing == FramingSLIP {
		return f.readSLIP()
	}

	var l [bit32Size]byte
	if err := f.readFull(l[:], true); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint32(l[:]))
	if length > f.maxSize {
		return nil, fmt.Errorf("%w: frame declares %d bytes, limit %d", ErrPacketTooLarge, length, f.maxSize)
	}
	if length < minPacketSize {
		return nil, fmt.Errorf("%w: frame declares %d bytes, no OSC packet is shorter than %d", ErrMalformedPacket, length, minPacketSize)
	}

	data := make([]byte, length)
	if err := f.readFull(data, false); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *framer) readSLIP() ([]byte, error) {
	var data []byte
	for {
		part, isPrefix, err := f.slipR.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) && len(data) == 0 {
				return nil, ErrConnClosed
			}
			return nil, fmt.Errorf("%w: reading SLIP frame: %v", ErrMalformedPacket, err)
		}
		data = append(data, part...)
		if len(data) > f.maxSize {
			return nil, fmt.Errorf("%w: SLIP frame exceeds %d bytes", ErrPacketTooLarge, f.maxSize)
		}
		if !isPrefix {
			break
		}
	}
	if len(data) < minPacketSize {
		return nil, fmt.Errorf("%w: SLIP frame of %d bytes, no OSC packet is shorter than %d", ErrMalformedPacket, len(data), minPacketSize)
	}
	return data, nil
}

// readFull fills b, retrying interrupted reads a bounded number of times.
// atFrameStart controls whether a clean close is reported as ErrConnClosed
// or as a truncated frame.
func (f *framer) readFull(b []byte, atFrameStart bool) error {
	n := 0
	retries := 0
	for n < len(b) {
		nn, err := f.r.Read(b[n:])
		n += nn
		if err == nil {
			if nn > 0 {
				continue
			}
			// A reader yielding (0, nil) must not spin forever.
			retries++
			if retries > maxReadRetries {
				return io.ErrNoProgress
			}
			continue
		}
		if errors.Is(err, syscall.EINTR) && retries < maxReadRetries {
			retries++
			continue
		}
		if errors.Is(err, io.EOF) {
			if n == 0 && atFrameStart {
				return ErrConnClosed
			}
			return fmt.Errorf("%w: peer closed connection mid-frame (%d of %d bytes)", ErrMalformedPacket, n, len(b))
		}
		return err
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}
