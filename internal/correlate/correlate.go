// Package correlate matches each outbound call to exactly one terminal
// outcome. For calls whose authoritative result arrives later as an event,
// it also tracks the outstanding expectation per operation kind; the
// single-flight invariant guarantees at most one such expectation per kind.
package correlate

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
)

// Outcome is a call's immediate result: a success value, a provisional
// acceptance, or a failure.
type Outcome struct {
	Accepted bool
	Payload  *structpb.Struct
	Err      *bridgeerr.Error
}

type pendingCall struct {
	method string
	issued time.Time
	ch     chan Outcome
}

type expectation struct {
	op    string
	kinds map[string]struct{}
	timer *time.Timer
}

// Correlator owns the pending-call table for one session.
type Correlator struct {
	mu       sync.Mutex
	pending  map[string]*pendingCall
	expected map[string]*expectation
	logger   *log.Logger
}

// New creates an empty correlator.
func New(logger *log.Logger) *Correlator {
	return &Correlator{
		pending:  make(map[string]*pendingCall),
		expected: make(map[string]*expectation),
		logger:   logger,
	}
}

// Track registers an outbound call before it is sent, so the resolution
// cannot race the send.
func (c *Correlator) Track(id, method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = &pendingCall{method: method, issued: time.Now(), ch: make(chan Outcome, 1)}
}

// Await suspends the caller until the immediate outcome for the call
// arrives, the context ends, or the call is force-failed.
func (c *Correlator) Await(ctx context.Context, id string) (Outcome, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return Outcome{}, bridgeerr.Transport("call %s is not tracked", id)
	}
	select {
	case out := <-p.ch:
		return out, nil
	case <-ctx.Done():
		c.drop(id)
		return Outcome{}, bridgeerr.Transport("call %s: %v", id, ctx.Err())
	}
}

// Resolve delivers the immediate outcome for a call. Each call resolves at
// most once; late or unknown resolutions are dropped.
func (c *Correlator) Resolve(id string, out Outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		if c.logger != nil {
			c.logger.Printf("[Correlator] dropping resolution for unknown call %s", id)
		}
		return false
	}
	p.ch <- out
	return true
}

// FailAll force-resolves every pending call and cancels every outstanding
// expectation. Used on disposal.
func (c *Correlator) FailAll(err *bridgeerr.Error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	for _, e := range c.expected {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	c.expected = make(map[string]*expectation)
	c.mu.Unlock()

	for id, p := range pending {
		if c.logger != nil {
			c.logger.Printf("[Correlator] force-failing pending call %s (%s)", id, p.method)
		}
		p.ch <- Outcome{Err: err}
	}
}

// ExpectEvent records that an accepted call of operation kind op awaits an
// authoritative event of one of the given kinds. With a non-zero timeout,
// onTimeout fires once if no matching event is observed in time; with zero,
// the expectation stands until observed or disposal.
func (c *Correlator) ExpectEvent(op string, kinds []string, timeout time.Duration, onTimeout func()) {
	e := &expectation{op: op, kinds: make(map[string]struct{}, len(kinds))}
	for _, k := range kinds {
		e.kinds[k] = struct{}{}
	}
	c.mu.Lock()
	if prev, ok := c.expected[op]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	c.expected[op] = e
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			c.mu.Lock()
			cur, ok := c.expected[op]
			if ok && cur == e {
				delete(c.expected, op)
			}
			c.mu.Unlock()
			if ok && cur == e && onTimeout != nil {
				onTimeout()
			}
		})
	}
	c.mu.Unlock()
}

// ObserveEvent satisfies every expectation that lists the event kind.
func (c *Correlator) ObserveEvent(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for op, e := range c.expected {
		if _, ok := e.kinds[kind]; ok {
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(c.expected, op)
		}
	}
}

// PendingCount reports how many calls still await their immediate outcome.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}
