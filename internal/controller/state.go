// Package controller owns the lifecycle of one native payment component per
// payment method. All slow capability work runs on the controller's
// background context; immediate outcomes are computed synchronously so the
// caller's acknowledgement always precedes any consequent event.
package controller

import (
	"context"
	"sync"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
)

// State is the component lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateValidating
	StateSubmitting
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateValidating:
		return "Validating"
	case StateSubmitting:
		return "Submitting"
	case StateDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// Emitter is where a controller hands its events. The host implementation
// funnels them onto the session's single delivery goroutine in order.
type Emitter interface {
	Emit(name string, payload map[string]any)
}

// machine is the shared lifecycle core of card and wallet controllers. It
// enforces the legal transitions and single-flight, and owns the background
// execution context that dispose cancels.
type machine struct {
	mu     sync.Mutex
	state  State
	ctx    context.Context
	cancel context.CancelFunc
}

func newMachine() *machine {
	ctx, cancel := context.WithCancel(context.Background())
	return &machine{state: StateUninitialized, ctx: ctx, cancel: cancel}
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// background returns the controller's execution context. It ends at dispose.
func (m *machine) background() context.Context {
	return m.ctx
}

// beginInit moves Uninitialized to Initializing.
func (m *machine) beginInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateUninitialized:
		m.state = StateInitializing
		return nil
	case StateDisposed:
		return bridgeerr.NotReady("component is disposed")
	default:
		return bridgeerr.NotReady("component is already initialized (state %s)", m.state)
	}
}

// finishInit resolves Initializing: Ready on success, Disposed on failure.
// An init failure surfaces to the caller as INIT_ERROR, never as an event.
func (m *machine) finishInit(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisposed {
		// Disposed while initializing; the result is discarded.
		return bridgeerr.NotReady("component is disposed")
	}
	if err == nil {
		m.state = StateReady
		return nil
	}
	m.state = StateDisposed
	m.cancel()
	be := bridgeerr.From(err)
	if be.Code == bridgeerr.CodeTransportError {
		be = bridgeerr.InitError("%s", be.Message)
	}
	return be
}

// beginOp moves Ready into the given operating state, enforcing the
// single-flight invariant: a second operation while one is in flight fails
// fast instead of queueing.
func (m *machine) beginOp(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateReady:
		m.state = target
		return nil
	case StateValidating, StateSubmitting:
		return bridgeerr.InFlight("another operation is in flight (state %s)", m.state)
	case StateDisposed:
		return bridgeerr.NotReady("component is disposed")
	default:
		return bridgeerr.NotReady("component is not initialized (state %s)", m.state)
	}
}

// endOp returns to Ready unless the component was disposed meanwhile.
func (m *machine) endOp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateValidating || m.state == StateSubmitting {
		m.state = StateReady
	}
}

// dispose is terminal and idempotent. It cancels the background context so
// in-flight capability work stops emitting. Returns false if already
// disposed.
func (m *machine) dispose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisposed {
		return false
	}
	m.state = StateDisposed
	m.cancel()
	return true
}

// guard runs a capability call, converting a panic into a transport error so
// no raw fault crosses the controller boundary.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = bridgeerr.Transport("payment capability panicked: %v", r)
		}
	}()
	return fn()
}
