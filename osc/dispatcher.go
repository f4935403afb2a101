package osc

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// MethodID identifies a registered method so it can be removed later.
type MethodID int

// Method is an interface for OSC method handlers.
type Method interface {
	HandleMessage(msg *Message)
}

// MethodFunc implements the Method interface. Type definition for an OSC
// method function.
type MethodFunc func(msg *Message)

// HandleMessage calls itself with the given OSC Message. Implements the
// Method interface.
func (f MethodFunc) HandleMessage(msg *Message) {
	f(msg)
}

// method is one entry in the dispatcher's registry.
type method struct {
	id        MethodID
	pattern   string
	typeSpec  string
	handler   Method
	isDefault bool
}

// Dispatcher routes received OSC packets to registered methods whose address
// pattern and type signature match. Registration and dispatch may run on
// different goroutines; the registry is guarded by a mutex and dispatch works
// on a snapshot so handlers never run under the lock.
type Dispatcher struct {
	mu      sync.Mutex
	methods []*method
	nextID  MethodID

	bundleStart func(Timetag)
	bundleEnd   func()

	errorHandler ErrorHandler
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{nextID: 1}
}

// AddMethod registers a handler for the given address pattern and type
// signature and returns an id for RemoveMethod. The pattern may contain OSC
// wildcards and is validated here; registering an invalid pattern fails
// immediately. The type signature is a prefix of type tag characters (e.g.
// "if") the incoming message must carry; the empty signature matches any
// arguments.
func (d *Dispatcher) AddMethod(pattern, typeSpec string, handler Method) (MethodID, error) {
	if len(pattern) == 0 || pattern[0] != '/' {
		return 0, fmt.Errorf("%w: pattern %q does not start with '/'", ErrInvalidAddress, pattern)
	}
	if err := ValidatePattern(pattern); err != nil {
		return 0, err
	}
	if handler == nil {
		return 0, fmt.Errorf("%w: nil handler", ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nextID == 0 {
		d.nextID = 1
	}
	id := d.nextID
	d.nextID++
	d.methods = append(d.methods, &method{
		id:       id,
		pattern:  pattern,
		typeSpec: typeSpec,
		handler:  handler,
	})
	return id, nil
}

// AddMethodFunc registers a plain function as a method.
func (d *Dispatcher) AddMethodFunc(pattern, typeSpec string, handler MethodFunc) (MethodID, error) {
	return d.AddMethod(pattern, typeSpec, handler)
}

// AddDefaultMethod registers a handler invoked only when no other method
// matched a message.
func (d *Dispatcher) AddDefaultMethod(handler Method) MethodID {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nextID == 0 {
		d.nextID = 1
	}
	id := d.nextID
	d.nextID++
	d.methods = append(d.methods, &method{id: id, handler: handler, isDefault: true})
	return id
}

// RemoveMethod removes a previously registered method. It reports whether
// the id was found.
func (d *Dispatcher) RemoveMethod(id MethodID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, m := range d.methods {
		if m.id == id {
			d.methods = append(d.methods[:i], d.methods[i+1:]...)
			return true
		}
	}
	return false
}

// SetBundleHandlers registers hooks invoked before and after the messages of
// each received bundle (including nested ones) are dispatched.
func (d *Dispatcher) SetBundleHandlers(start func(Timetag), end func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bundleStart, d.bundleEnd = start, end
}

// SetErrorHandler registers a callback for errors raised by handlers during
// dispatch. A misbehaving handler never aborts dispatch of a message to the
// remaining matched methods.
func (d *Dispatcher) SetErrorHandler(handler ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errorHandler = handler
}

// Dispatch routes an OSC packet. Messages are dispatched synchronously;
// bundles are deferred until their time tag expires (immediately for the
// Immediately sentinel and tags in the past).
func (d *Dispatcher) Dispatch(packet Packet) {
	switch p := packet.(type) {
	case *Message:
		d.DispatchMessage(p)

	case *Bundle:
		if delay := p.Timetag.ExpiresIn(); delay > 0 {
			time.AfterFunc(delay, func() { d.DispatchBundle(p) })
			return
		}
		d.DispatchBundle(p)
	}
}

// DispatchMessage invokes every registered method whose pattern matches the
// message's address and whose type signature prefixes the message's type
// tags, in registration order. If none matched, the first registered default
// method is invoked instead.
func (d *Dispatcher) DispatchMessage(msg *Message) {
	tags, err := TypeTags(msg.Arguments)
	if err != nil {
		d.reportError(fmt.Errorf("dispatch %q: %w", msg.Address, err))
		return
	}
	tags = tags[1:] // drop the leading ','

	d.mu.Lock()
	snapshot := make([]*method, len(d.methods))
	copy(snapshot, d.methods)
	d.mu.Unlock()

	matched := false
	for _, m := range snapshot {
		if m.isDefault {
			continue
		}
		ok, err := MatchPattern(m.pattern, msg.Address)
		if err != nil || !ok {
			continue
		}
		if !strings.HasPrefix(tags, m.typeSpec) {
			continue
		}
		matched = true
		d.invoke(m, msg)
	}

	if matched {
		return
	}
	for _, m := range snapshot {
		if m.isDefault {
			d.invoke(m, msg)
			return
		}
	}
}

// DispatchBundle dispatches every element of the bundle in order, recursing
// into nested bundles, bracketed by the bundle start/end hooks.
func (d *Dispatcher) DispatchBundle(b *Bundle) {
	d.mu.Lock()
	start, end := d.bundleStart, d.bundleEnd
	d.mu.Unlock()

	if start != nil {
		d.guard(func() { start(b.Timetag) })
	}

	for _, elem := range b.Elements {
		switch t := elem.(type) {
		case *Message:
			d.DispatchMessage(t)
		case *Bundle:
			d.DispatchBundle(t)
		}
	}

	if end != nil {
		d.guard(func() { end() })
	}
}

// invoke runs one handler with panic isolation.
func (d *Dispatcher) invoke(m *method, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			d.reportError(fmt.Errorf("osc: handler for %q panicked on %q: %v", m.pattern, msg.Address, r))
		}
	}()
	m.handler.HandleMessage(msg)
}

// guard runs a bundle hook with panic isolation.
func (d *Dispatcher) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.reportError(fmt.Errorf("osc: bundle hook panicked: %v", r))
		}
	}()
	fn()
}

func (d *Dispatcher) reportError(err error) {
	d.mu.Lock()
	handler := d.errorHandler
	d.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}
