package osc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server represents an OSC server. The server listens for incoming OSC
// packets on a UDP, TCP or Unix domain socket and dispatches them through
// its Dispatcher.
type Server struct {
	addr  string
	proto Protocol

	dispatcher    *Dispatcher
	readTimeout   time.Duration
	maxPacketSize int
	framing       Framing
	logger        *slog.Logger
	errHandler    ErrorHandler

	pconn net.PacketConn // UDP
	ln    net.Listener   // TCP, Unix

	mu    sync.Mutex
	cur   net.Conn // stream connection Receive currently reads from
	curFr *framer
	conns map[net.Conn]struct{} // connections accepted by ListenAndServe
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerDispatcher replaces the server's fresh Dispatcher with an existing
// one, e.g. to share a registry between servers.
func ServerDispatcher(d *Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// ServerReadTimeout bounds every read in the Serve/ListenAndServe loops.
func ServerReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.readTimeout = d }
}

// ServerMaxPacketSize overrides the maximum accepted packet size.
func ServerMaxPacketSize(n int) ServerOption {
	return func(s *Server) { s.maxPacketSize = n }
}

// ServerFraming selects the stream framing (length prefix by default).
// Ignored for UDP.
func ServerFraming(f Framing) ServerOption {
	return func(s *Server) { s.framing = f }
}

// ServerLogger sets the structured logger used for per-packet errors.
func ServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer binds a socket on addr (a "host:port" for UDP/TCP, a socket path
// for Unix) and, for stream protocols, starts listening. Bind failures are
// returned immediately; the server is unusable on error.
func NewServer(addr string, proto Protocol, opts ...ServerOption) (*Server, error) {
	if !proto.valid() {
		return nil, fmt.Errorf("%w: protocol %q", ErrNotSupported, proto)
	}

	s := &Server{
		addr:          addr,
		proto:         proto,
		dispatcher:    NewDispatcher(),
		maxPacketSize: MaxPacketSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher()
	}

	switch proto {
	case UDP:
		pconn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("osc: binding udp %s: %w", addr, err)
		}
		s.pconn = pconn

	case TCP:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("osc: listening on tcp %s: %w", addr, err)
		}
		s.ln = ln

	case Unix:
		// A previous run may have left the socket file behind.
		os.Remove(addr)
		ln, err := net.Listen("unix", addr)
		if err != nil {
			return nil, fmt.Errorf("osc: listening on unix %s: %w", addr, err)
		}
		s.ln = ln
	}

	return s, nil
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// AddMethod registers a handler for the given address pattern and type
// signature; see Dispatcher.AddMethod.
func (s *Server) AddMethod(pattern, typeSpec string, handler MethodFunc) (MethodID, error) {
	return s.dispatcher.AddMethodFunc(pattern, typeSpec, handler)
}

// AddDefaultMethod registers a handler invoked when no other method matches.
func (s *Server) AddDefaultMethod(handler MethodFunc) MethodID {
	return s.dispatcher.AddDefaultMethod(handler)
}

// RemoveMethod removes a previously registered method.
func (s *Server) RemoveMethod(id MethodID) bool {
	return s.dispatcher.RemoveMethod(id)
}

// SetBundleHandlers registers the bundle start/end hooks.
func (s *Server) SetBundleHandlers(start func(Timetag), end func()) {
	s.dispatcher.SetBundleHandlers(start, end)
}

// SetErrorHandler registers a callback that receives non-fatal per-packet
// errors from the receive loop and from misbehaving handlers.
func (s *Server) SetErrorHandler(handler ErrorHandler) {
	s.mu.Lock()
	s.errHandler = handler
	s.mu.Unlock()
	s.dispatcher.SetErrorHandler(handler)
}

// URL renders the server's listening endpoint as an osc URL.
func (s *Server) URL() string {
	if s.proto == Unix {
		return s.proto.scheme() + "://" + s.addr + "/"
	}

	var addr string
	if s.pconn != nil {
		addr = s.pconn.LocalAddr().String()
	} else if s.ln != nil {
		addr = s.ln.Addr().String()
	}
	return s.proto.scheme() + "://" + addr + "/"
}

// Port returns the bound port, or 0 for Unix sockets.
func (s *Server) Port() int {
	var addr string
	switch {
	case s.pconn != nil:
		addr = s.pconn.LocalAddr().String()
	case s.ln != nil:
		addr = s.ln.Addr().String()
	default:
		return 0
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	p, _ := strconv.Atoi(port)
	return p
}

// Receive reads and dispatches at most one packet. A timeout of zero blocks
// until a packet (or the next accepted connection) arrives. It returns false
// on timeout and on non-fatal receive errors, which are reported through the
// error handler; the server stays usable either way.
func (s *Server) Receive(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var data []byte
	var err error
	if s.proto == UDP {
		data, _, err = s.readDatagram(deadline)
	} else {
		data, err = s.readFrame(deadline)
	}
	if err != nil {
		if !isTimeout(err) && !errors.Is(err, ErrConnClosed) && !errors.Is(err, net.ErrClosed) {
			s.reportError(err)
		}
		return false
	}

	packet, err := ParsePacket(data)
	if err != nil {
		s.reportError(err)
		return false
	}

	s.dispatcher.Dispatch(packet)
	return true
}

func (s *Server) readDatagram(deadline time.Time) ([]byte, net.Addr, error) {
	if err := s.pconn.SetReadDeadline(deadline); err != nil {
		return nil, nil, err
	}

	b := bPool.Get().(*[]byte)
	defer bPool.Put(b)

	n, from, err := s.pconn.ReadFrom(*b)
	if err != nil {
		return nil, from, err
	}

	data := make([]byte, n)
	copy(data, *b)
	return data, from, nil
}

// readFrame reads one framed packet from the current stream connection,
// accepting a new connection first if necessary. A closed connection is
// dropped so the next call accepts again.
func (s *Server) readFrame(deadline time.Time) ([]byte, error) {
	s.mu.Lock()
	conn, fr := s.cur, s.curFr
	s.mu.Unlock()

	if conn == nil {
		type deadliner interface{ SetDeadline(time.Time) error }
		if d, ok := s.ln.(deadliner); ok {
			if err := d.SetDeadline(deadline); err != nil {
				return nil, err
			}
		}
		c, err := s.ln.Accept()
		if err != nil {
			return nil, err
		}
		conn = c
		fr = newFramer(conn, s.framing, s.maxPacketSize)
		s.mu.Lock()
		s.cur, s.curFr = conn, fr
		s.mu.Unlock()
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	data, err := fr.ReadPacket()
	if err != nil {
		if errors.Is(err, ErrConnClosed) {
			conn.Close()
			s.mu.Lock()
			s.cur, s.curFr = nil, nil
			s.mu.Unlock()
		}
		return nil, err
	}
	return data, nil
}

// ListenAndServe runs the receive loop until the server is closed: a
// datagram loop for UDP, an accept loop with one goroutine per connection
// for the stream protocols.
func (s *Server) ListenAndServe() error {
	if s.proto == UDP {
		return s.Serve(s.pconn)
	}

	g, ctx := errgroup.WithContext(context.Background())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			g.Wait()
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		g.Go(func() error {
			s.serveStream(conn)
			return nil
		})
	}
}

// serveStream reads framed packets from one accepted connection until the
// peer goes away, dispatching each.
func (s *Server) serveStream(conn net.Conn) {
	defer conn.Close()

	// Track the connection so Close can unblock the read below.
	s.trackConn(conn, true)
	defer s.trackConn(conn, false)

	fr := newFramer(conn, s.framing, s.maxPacketSize)
	for {
		if s.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		data, err := fr.ReadPacket()
		if err != nil {
			if !errors.Is(err, ErrConnClosed) && !errors.Is(err, net.ErrClosed) {
				s.reportError(fmt.Errorf("osc: %s: %w", conn.RemoteAddr(), err))
			}
			return
		}

		packet, err := ParsePacket(data)
		if err != nil {
			s.reportError(fmt.Errorf("osc: %s: %w", conn.RemoteAddr(), err))
			continue
		}
		s.serve(packet, conn.RemoteAddr())
	}
}

// Serve retrieves incoming OSC packets from the given packet connection and
// dispatches them, backing off on temporary network errors.
func (s *Server) Serve(c net.PacketConn) error {
	var tempDelay time.Duration
	for {
		packet, addr, err := s.ReceivePacket(c)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				time.Sleep(tempDelay)
				continue
			}
			if errors.Is(err, ErrMalformedPacket) {
				s.reportError(err)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		tempDelay = 0
		go s.serve(packet, addr)
	}
}

// serve dispatches one packet, isolating handler panics from the loop.
func (s *Server) serve(p Packet, from net.Addr) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling packet", "from", fmt.Sprint(from), "panic", fmt.Sprint(r))
		}
	}()
	s.dispatcher.Dispatch(p)
}

// ReceivePacket reads one OSC packet from the given packet connection and
// returns it together with the sender's address.
func (s *Server) ReceivePacket(c net.PacketConn) (Packet, net.Addr, error) {
	if s.readTimeout != 0 {
		if err := c.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return nil, nil, err
		}
	}

	b := bPool.Get().(*[]byte)
	defer bPool.Put(b)

	n, from, err := c.ReadFrom(*b)
	if err != nil {
		return nil, from, err
	}

	data := make([]byte, n)
	copy(data, *b)

	p, err := ParsePacket(data)
	return p, from, err
}

// Close releases the server's sockets. For Unix servers the socket file is
// removed.
func (s *Server) Close() error {
	var err error
	if s.pconn != nil {
		err = s.pconn.Close()
	}
	if s.ln != nil {
		err = s.ln.Close()
	}

	s.mu.Lock()
	if s.cur != nil {
		s.cur.Close()
		s.cur, s.curFr = nil, nil
	}
	for c := range s.conns {
		c.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	if s.proto == Unix {
		os.Remove(s.addr)
	}
	return err
}

func (s *Server) trackConn(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.conns == nil {
			s.conns = make(map[net.Conn]struct{})
		}
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
}

func (s *Server) reportError(err error) {
	s.mu.Lock()
	handler := s.errHandler
	s.mu.Unlock()

	if handler != nil {
		handler(err)
	} else {
		s.logger.Warn("receive error", "err", err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
