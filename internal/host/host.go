// Package host is the native side of the bridge channel: it routes call
// frames to the owning controller, funnels every outbound frame through one
// delivery goroutine, and acknowledges each call before any event that call
// causes.
package host

import (
	"context"
	"log"
	"sync"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/controller"
	"github.com/quartzpay/nativebridge/internal/envelope"
	"github.com/quartzpay/nativebridge/internal/events"
	"github.com/quartzpay/nativebridge/internal/transport"
)

// Host binds one session's controllers to its channel.
type Host struct {
	ch     transport.Channel
	card   *controller.Card
	wallet *controller.Wallet
	logger *log.Logger

	producer      *events.Producer
	outcomesTopic string

	emitCh    chan envelope.Frame
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Host.
type Option func(*Host)

// WithProducer publishes redacted terminal outcomes to the given topic.
func WithProducer(p *events.Producer, topic string) Option {
	return func(h *Host) {
		h.producer = p
		h.outcomesTopic = topic
	}
}

// New builds a host for one session channel.
func New(ch transport.Channel, cap capability.Capability, logger *log.Logger, opts ...Option) *Host {
	h := &Host{
		ch:     ch,
		logger: logger,
		emitCh: make(chan envelope.Frame, 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	em := &emitter{h: h}
	h.card = controller.NewCard(cap, em, logger, ch.Name())
	h.wallet = controller.NewWallet(cap, em, logger, ch.Name())
	return h
}

// Start launches the delivery and routing goroutines.
func (h *Host) Start() {
	h.wg.Add(2)
	go h.deliverLoop()
	go h.routeLoop()
}

// Close disposes both controllers, tears the channel down, and waits for
// the loops to drain. Idempotent.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.card.Dispose()
		h.wallet.Dispose()
		close(h.done)
		_ = h.ch.Close()
	})
	h.wg.Wait()
	return nil
}

// Card exposes the card controller for state inspection.
func (h *Host) Card() *controller.Card { return h.card }

// Wallet exposes the wallet controller for state inspection.
func (h *Host) Wallet() *controller.Wallet { return h.wallet }

// emitter funnels controller events into the delivery loop.
type emitter struct{ h *Host }

func (e *emitter) Emit(name string, payload map[string]any) {
	f, err := envelope.NewEvent(name, payload)
	if err != nil {
		e.h.logger.Printf("[Host %s] dropping unencodable event %q: %v", e.h.ch.Name(), name, err)
		return
	}
	e.h.enqueue(f)
}

func (h *Host) enqueue(f envelope.Frame) {
	select {
	case <-h.done:
		h.logger.Printf("[Host %s] dropping %s %q after close", h.ch.Name(), f.Kind, f.Name)
	case h.emitCh <- f:
	}
}

// deliverLoop is the session's single delivery thread: the only goroutine
// that writes to the channel's outbound direction.
func (h *Host) deliverLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case f := <-h.emitCh:
			if f.Kind == envelope.KindEvent {
				h.publishOutcome(f)
			}
			if err := h.ch.Emit(context.Background(), f); err != nil {
				h.logger.Printf("[Host %s] emit %s %q failed: %v", h.ch.Name(), f.Kind, f.Name, err)
			}
		}
	}
}

func (h *Host) routeLoop() {
	defer h.wg.Done()
	for f := range h.ch.Calls() {
		if f.Kind != envelope.KindCall {
			h.logger.Printf("[Host %s] ignoring %s frame on call direction", h.ch.Name(), f.Kind)
			continue
		}
		h.handle(f)
	}
}

// handle computes the immediate outcome for one call and enqueues it before
// starting any background work, so the acknowledgement precedes every event
// the call causes.
func (h *Host) handle(f envelope.Frame) {
	switch f.Name {
	case envelope.MethodInitCardView:
		cfg, opts, err := envelope.DecodeInitCardRequest(f.Payload)
		if err == nil {
			err = h.card.Init(cfg, opts)
		}
		h.respondBool(f, true, err)

	case envelope.MethodValidateCard:
		ok, err := h.card.Validate()
		h.respondBool(f, ok, err)

	case envelope.MethodTokenizeCard:
		launch, err := h.card.Tokenize()
		if err != nil {
			h.respondErr(f, err)
			return
		}
		h.enqueue(envelope.NewAcceptedResult(f.CallID, f.Name, envelope.StatusProcessing))
		launch()

	case envelope.MethodGetSessionData:
		launch, err := h.card.GetSessionData()
		if err != nil {
			h.respondErr(f, err)
			return
		}
		h.enqueue(envelope.NewAcceptedResult(f.CallID, f.Name, envelope.StatusProcessing))
		launch()

	case envelope.MethodInitGooglePay:
		cfg, opts, err := envelope.DecodeInitWalletRequest(f.Payload)
		if err == nil {
			err = h.wallet.Init(cfg, opts)
		}
		h.respondBool(f, true, err)

	case envelope.MethodCheckGooglePay:
		available, err := h.wallet.Available()
		h.respondBool(f, available, err)

	case envelope.MethodLaunchGooglePay:
		req, err := envelope.DecodeSheetRequest(f.Payload)
		var launch func()
		if err == nil {
			launch, err = h.wallet.LaunchSheet(req)
		}
		if err != nil {
			h.respondErr(f, err)
			return
		}
		h.enqueue(envelope.NewAcceptedResult(f.CallID, f.Name, envelope.StatusLaunched))
		launch()

	case envelope.MethodDispose:
		h.card.Dispose()
		h.wallet.Dispose()
		h.respondBool(f, true, nil)

	default:
		h.respondErr(f, bridgeerr.NotImplemented(f.Name))
	}
}

func (h *Host) respondBool(f envelope.Frame, value bool, err error) {
	if err != nil {
		h.respondErr(f, err)
		return
	}
	res, rerr := envelope.NewResult(f.CallID, f.Name, envelope.BoolResult(value))
	if rerr != nil {
		h.respondErr(f, rerr)
		return
	}
	h.enqueue(res)
}

func (h *Host) respondErr(f envelope.Frame, err error) {
	h.logger.Printf("[Host %s] call %s failed: %v", h.ch.Name(), f.Name, err)
	h.enqueue(envelope.NewErrorResult(f.CallID, f.Name, err))
}

// publishOutcome forwards a redacted view of a terminal event to Kafka.
// Best effort: a broker outage never blocks the bridge.
func (h *Host) publishOutcome(f envelope.Frame) {
	if h.producer == nil {
		return
	}
	var data map[string]any
	switch f.Name {
	case envelope.EventCardTokenized:
		ev, err := envelope.DecodeTokenizedEvent(f.Payload)
		if err != nil {
			return
		}
		data = map[string]any{"brand": ev.Brand, "last4": ev.Last4}
	case envelope.EventPaymentSuccess:
		ev, err := envelope.DecodePaymentSuccessEvent(f.Payload)
		if err != nil {
			return
		}
		data = map[string]any{"paymentId": ev.PaymentID}
	case envelope.EventPaymentError:
		ev, err := envelope.DecodePaymentErrorEvent(f.Payload)
		if err != nil {
			return
		}
		data = map[string]any{"code": ev.Code}
	case envelope.EventSessionDataReady:
		// Occurrence only; the session data itself never leaves the bridge.
		data = map[string]any{}
	default:
		return
	}
	err := h.producer.Publish(context.Background(), h.outcomesTopic, events.Envelope{
		EventType: f.Name,
		SessionID: h.ch.Name(),
		Data:      data,
	})
	if err != nil {
		h.logger.Printf("[Host %s] outcome publish failed: %v", h.ch.Name(), err)
	}
}
