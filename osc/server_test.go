package osc

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startThread runs a server's receive loop for the duration of a test.
func startThread(t *testing.T, s *Server) *ServerThread {
	t.Helper()
	thread := NewServerThread(s)
	require.True(t, thread.Start())
	t.Cleanup(func() {
		thread.Stop()
		s.Close()
	})
	return thread
}

func waitMessage(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestServerUDPEndToEnd(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)

	got := make(chan *Message, 1)
	_, err = s.AddMethod("/mixer/*", "if", func(msg *Message) { got <- msg })
	require.NoError(t, err)

	startThread(t, s)

	a, err := NewAddress("127.0.0.1", strconv.Itoa(s.Port()), UDP)
	require.NoError(t, err)
	defer a.Close()

	sent := NewMessage("/mixer/gain", int32(3), float32(0.5), "fade")
	require.NoError(t, a.Send(sent))

	msg := waitMessage(t, got)
	assert.Equal(t, sent, msg)
}

func TestServerUDPBundle(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)

	got := make(chan *Message, 2)
	_, err = s.AddMethod("/*", "", func(msg *Message) { got <- msg })
	require.NoError(t, err)

	startThread(t, s)

	a, err := NewAddress("127.0.0.1", strconv.Itoa(s.Port()), UDP)
	require.NoError(t, err)
	defer a.Close()

	b := NewBundle().
		AddMessage(NewMessage("/one", int32(1))).
		AddMessage(NewMessage("/two", int32(2)))
	require.NoError(t, a.Send(b))

	assert.Equal(t, "/one", waitMessage(t, got).Address)
	assert.Equal(t, "/two", waitMessage(t, got).Address)
}

func TestServerUDPMalformedReachesErrorHandler(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)

	errs := make(chan error, 1)
	s.SetErrorHandler(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	startThread(t, s)

	conn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(s.Port()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not an osc packet"))
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrMalformedPacket)
	case <-time.After(5 * time.Second):
		t.Fatal("error handler never called")
	}
}

func TestServerTCPEndToEnd(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", TCP)
	require.NoError(t, err)

	got := make(chan *Message, 2)
	_, err = s.AddMethod("/stream/*", "", func(msg *Message) { got <- msg })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	a, err := NewAddress("127.0.0.1", strconv.Itoa(s.Port()), TCP)
	require.NoError(t, err)
	defer a.Close()

	// Two packets over one connection exercise the framing.
	require.NoError(t, a.Send(NewMessage("/stream/first", int32(1))))
	require.NoError(t, a.Send(NewMessage("/stream/second", "two")))

	assert.Equal(t, "/stream/first", waitMessage(t, got).Address)
	assert.Equal(t, "/stream/second", waitMessage(t, got).Address)

	// The accept loop waits for its per-connection goroutines, so the
	// client side goes first.
	a.Close()
	s.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe never returned")
	}
}

func TestServerTCPSLIP(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", TCP, ServerFraming(FramingSLIP))
	require.NoError(t, err)

	got := make(chan *Message, 1)
	_, err = s.AddMethod("/slip", "", func(msg *Message) { got <- msg })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	a, err := NewAddress("127.0.0.1", strconv.Itoa(s.Port()), TCP, AddressFraming(FramingSLIP))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Send(NewMessage("/slip", int32(1))))
	assert.Equal(t, "/slip", waitMessage(t, got).Address)

	a.Close()
	s.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe never returned")
	}
}

func TestServerUnixEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osc.sock")
	s, err := NewServer(path, Unix)
	require.NoError(t, err)

	got := make(chan *Message, 1)
	_, err = s.AddMethod("/local", "", func(msg *Message) { got <- msg })
	require.NoError(t, err)

	startThread(t, s)

	a, err := NewAddress("", path, Unix)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Send(NewMessage("/local", "hi")))
	assert.Equal(t, "/local", waitMessage(t, got).Address)
}

func TestServerUnixRemovesSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osc.sock")
	s, err := NewServer(path, Unix)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "socket file must exist while listening")

	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket file must be removed on Close")
}

// Close must unblock serve loops stuck reading from idle peers, not wait for
// them to hang up.
func TestServerCloseUnblocksIdleStreamConns(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", TCP)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(s.Port()))
	require.NoError(t, err)
	defer conn.Close()

	// Let the accept loop pick up the connection, then close the server
	// while the peer sits idle mid-stream.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe still blocked after Close")
	}
}

func TestServerDefaultMethod(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)

	got := make(chan *Message, 1)
	s.AddDefaultMethod(func(msg *Message) { got <- msg })

	startThread(t, s)

	a, err := NewAddress("127.0.0.1", strconv.Itoa(s.Port()), UDP)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Send(NewMessage("/nobody/home")))
	assert.Equal(t, "/nobody/home", waitMessage(t, got).Address)
}

func TestServerURL(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)
	defer s.Close()

	url := s.URL()
	assert.Contains(t, url, "osc.udp://127.0.0.1:")
	assert.Greater(t, s.Port(), 0)

	// The rendered URL dials back to the server.
	a, err := ParseURL(url)
	require.NoError(t, err)
	a.Close()
}

func TestServerReceiveTimeout(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	ok := s.Receive(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestServerSharedDispatcher(t *testing.T) {
	d := NewDispatcher()
	s, err := NewServer("127.0.0.1:0", UDP, ServerDispatcher(d))
	require.NoError(t, err)
	defer s.Close()

	assert.Same(t, d, s.Dispatcher())
}

func TestServerThreadStartStop(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", UDP)
	require.NoError(t, err)
	defer s.Close()

	thread := NewServerThread(s)
	assert.Same(t, s, thread.Server())
	assert.False(t, thread.IsRunning())

	require.True(t, thread.Start())
	assert.True(t, thread.IsRunning())
	assert.False(t, thread.Start(), "starting twice reports false")

	thread.Stop()
	assert.False(t, thread.IsRunning())
	thread.Stop() // stopping twice is a no-op

	// The thread restarts cleanly after a stop.
	require.True(t, thread.Start())
	thread.Stop()
}
