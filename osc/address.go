package osc

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

// Protocol selects the transport of an Address or Server.
type Protocol string

const (
	UDP  Protocol = "udp"
	TCP  Protocol = "tcp"
	Unix Protocol = "unix"
)

func (p Protocol) valid() bool {
	return p == UDP || p == TCP || p == Unix
}

// network returns the name net.Dial expects.
func (p Protocol) network() string { return string(p) }

// scheme returns the osc URL scheme for this protocol.
func (p Protocol) scheme() string { return "osc." + string(p) }

// Address is the sending side of the transport: a destination plus a socket.
// UDP destinations get a socket right away; TCP and Unix destinations connect
// lazily on the first Send and reuse the connection afterwards.
//
// An Address is not safe for concurrent Send calls; give each goroutine its
// own Address or synchronize externally.
type Address struct {
	host  string
	port  string // socket path for Unix
	proto Protocol

	maxPacketSize int
	framing       Framing
	timeout       time.Duration
	noDelay       bool

	conn      net.Conn
	fr        *framer
	connected bool
}

// AddressOption configures an Address.
type AddressOption func(*Address)

// AddressMaxPacketSize overrides the maximum packet size enforced before
// transmission.
func AddressMaxPacketSize(n int) AddressOption {
	return func(a *Address) { a.maxPacketSize = n }
}

// AddressFraming selects the stream framing (length prefix by default).
// Ignored for UDP.
func AddressFraming(f Framing) AddressOption {
	return func(a *Address) { a.framing = f }
}

// AddressTimeout sets the I/O deadline applied to connects and sends.
func AddressTimeout(d time.Duration) AddressOption {
	return func(a *Address) { a.timeout = d }
}

// NewAddress resolves the destination and, for UDP, opens the socket. For
// Unix domain sockets pass the socket path as port; host is ignored.
func NewAddress(host, port string, proto Protocol, opts ...AddressOption) (*Address, error) {
	if !proto.valid() {
		return nil, fmt.Errorf("%w: protocol %q", ErrNotSupported, proto)
	}

	a := &Address{
		host:          host,
		port:          port,
		proto:         proto,
		maxPacketSize: MaxPacketSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	switch proto {
	case UDP:
		raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, fmt.Errorf("osc: resolving %s:%s: %w", host, port, err)
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, fmt.Errorf("osc: opening UDP socket for %s: %w", raddr, err)
		}
		a.conn = conn

	case TCP:
		// Resolve now so a bad destination fails at construction; the
		// connection itself is made lazily by the first Send.
		if _, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port)); err != nil {
			return nil, fmt.Errorf("osc: resolving %s:%s: %w", host, port, err)
		}

	case Unix:
		if port == "" {
			return nil, fmt.Errorf("%w: empty Unix socket path", ErrInvalidArgument)
		}
	}

	return a, nil
}

// Dial is a convenience constructor for the common case: a UDP Address from
// a "host:port" string.
func Dial(addr string) (*Address, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("osc: %w", err)
	}
	return NewAddress(host, port, UDP)
}

// ParseURL builds an Address from an osc.udp://host:port/,
// osc.tcp://host:port/ or osc.unix://path/ URL.
func ParseURL(rawurl string, opts ...AddressOption) (*Address, error) {
	for _, proto := range []Protocol{UDP, TCP, Unix} {
		prefix := proto.scheme() + "://"
		if !strings.HasPrefix(rawurl, prefix) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(rawurl, prefix), "/")

		if proto == Unix {
			if !strings.HasPrefix(rest, "/") {
				rest = "/" + rest
			}
			return NewAddress("", rest, Unix, opts...)
		}

		host, port, err := net.SplitHostPort(rest)
		if err != nil {
			return nil, fmt.Errorf("osc: parsing %q: %w", rawurl, err)
		}
		return NewAddress(host, port, proto, opts...)
	}
	return nil, fmt.Errorf("%w: URL %q has no osc.udp/osc.tcp/osc.unix scheme", ErrInvalidArgument, rawurl)
}

// URL renders the address as an osc URL.
func (a *Address) URL() string {
	if a.proto == Unix {
		return a.proto.scheme() + "://" + a.port + "/"
	}
	return a.proto.scheme() + "://" + net.JoinHostPort(a.host, a.port) + "/"
}

// Hostname returns the destination host (empty for Unix).
func (a *Address) Hostname() string { return a.host }

// Port returns the destination port, or the socket path for Unix.
func (a *Address) Port() string { return a.port }

// Protocol returns the transport protocol.
func (a *Address) Protocol() Protocol { return a.proto }

// Send serializes the packet and transmits it.
func (a *Address) Send(packet Packet) error {
	data, err := packet.MarshalBinary()
	if err != nil {
		return err
	}
	return a.SendRaw(data)
}

// SendRaw transmits pre-serialized packet bytes.
func (a *Address) SendRaw(data []byte) error {
	if len(data) > a.maxPacketSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPacketTooLarge, len(data), a.maxPacketSize)
	}

	if a.proto == UDP {
		if a.timeout > 0 {
			a.conn.SetWriteDeadline(time.Now().Add(a.timeout))
		}
		_, err := a.conn.Write(data)
		if err != nil {
			return fmt.Errorf("osc: sending to %s: %w", a.URL(), err)
		}
		return nil
	}

	if err := a.connect(); err != nil {
		return err
	}
	if a.timeout > 0 {
		a.conn.SetWriteDeadline(time.Now().Add(a.timeout))
	}
	if err := a.fr.WritePacket(data); err != nil {
		// Drop the connection so the next Send reconnects.
		a.conn.Close()
		a.conn, a.fr, a.connected = nil, nil, false
		return fmt.Errorf("osc: sending to %s: %w", a.URL(), err)
	}
	return nil
}

// connect establishes the stream connection on first use.
func (a *Address) connect() error {
	if a.connected {
		return nil
	}

	endpoint := a.port
	if a.proto == TCP {
		endpoint = net.JoinHostPort(a.host, a.port)
	}

	conn, err := net.DialTimeout(a.proto.network(), endpoint, a.timeout)
	if err != nil {
		return fmt.Errorf("osc: connecting to %s: %w", a.URL(), err)
	}

	if tc, ok := conn.(*net.TCPConn); ok && a.noDelay {
		tc.SetNoDelay(true)
	}

	a.conn = conn
	a.fr = newFramer(conn, a.framing, a.maxPacketSize)
	a.connected = true
	return nil
}

// SetTTL sets the multicast time-to-live on a UDP address. The value is
// clamped to 1..255.
func (a *Address) SetTTL(ttl int) error {
	if a.proto != UDP {
		return fmt.Errorf("%w: TTL applies to UDP only", ErrNotSupported)
	}
	if a.conn == nil {
		return fmt.Errorf("%w: address is closed", ErrConnClosed)
	}
	if ttl < 1 {
		ttl = 1
	} else if ttl > 255 {
		ttl = 255
	}
	return ipv4.NewPacketConn(a.conn.(*net.UDPConn)).SetMulticastTTL(ttl)
}

// SetNoDelay disables (or re-enables) Nagle's algorithm on a TCP address.
// If the connection is not yet open, the setting is applied on connect.
func (a *Address) SetNoDelay(enable bool) error {
	if a.proto != TCP {
		return fmt.Errorf("%w: NoDelay applies to TCP only", ErrNotSupported)
	}
	a.noDelay = enable
	if tc, ok := a.conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(enable)
	}
	return nil
}

// SetTimeout sets the I/O deadline applied to connects and sends.
func (a *Address) SetTimeout(d time.Duration) {
	a.timeout = d
}

// Close releases the socket, if any.
func (a *Address) Close() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn, a.fr, a.connected = nil, nil, false
	return err
}
