package osc

import (
	"sync/atomic"
	"time"
)

// serverThreadPollInterval bounds each Receive call of the loop so Stop is
// noticed promptly even when no traffic arrives.
const serverThreadPollInterval = 100 * time.Millisecond

// ServerThread runs a Server's receive loop on a dedicated goroutine.
//
// Stop must not be called from a handler running on that same loop: Stop
// waits for the loop to finish and would deadlock.
type ServerThread struct {
	server  *Server
	running atomic.Bool
	done    chan struct{}
}

// NewServerThread wraps an existing Server. The caller keeps ownership of
// the server and closes it after stopping the thread.
func NewServerThread(server *Server) *ServerThread {
	return &ServerThread{server: server}
}

// Server returns the wrapped server, e.g. to register methods.
func (t *ServerThread) Server() *Server { return t.server }

// Start spawns the receive loop. It reports false if the loop was already
// running.
func (t *ServerThread) Start() bool {
	if !t.running.CompareAndSwap(false, true) {
		return false
	}
	t.done = make(chan struct{})
	go t.run()
	return true
}

// Stop ends the receive loop and waits for it to finish. Stopping a stopped
// thread is a no-op.
func (t *ServerThread) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	<-t.done
}

// IsRunning reports whether the receive loop is active.
func (t *ServerThread) IsRunning() bool {
	return t.running.Load()
}

func (t *ServerThread) run() {
	defer close(t.done)
	for t.running.Load() {
		t.server.Receive(serverThreadPollInterval)
	}
}
