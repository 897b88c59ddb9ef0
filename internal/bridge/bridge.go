// Package bridge is the front end's entry point: typed operations over the
// session channel, callback-slot registration, and the call/response
// correlation discipline. One Bridge is constructed per session and passed
// by reference; there is no process-wide singleton.
package bridge

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/config"
	"github.com/quartzpay/nativebridge/internal/correlate"
	"github.com/quartzpay/nativebridge/internal/dispatch"
	"github.com/quartzpay/nativebridge/internal/envelope"
	"github.com/quartzpay/nativebridge/internal/transport"
)

// Operation kinds used for authoritative-result correlation. Single-flight
// guarantees at most one outstanding accepted call per kind.
const (
	opTokenize    = "tokenize"
	opSessionData = "sessionData"
	opWalletSheet = "walletSheet"
)

// Bridge is one session's client.
type Bridge struct {
	sessionID string
	ch        transport.Channel
	corr      *correlate.Correlator
	disp      *dispatch.Dispatcher
	logger    *log.Logger
	tracer    trace.Tracer

	resultTimeout time.Duration

	initOnce sync.Once
	recvWg   sync.WaitGroup
	disposed atomic.Bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithResultTimeout bounds the wait for an authoritative event after an
// accepted call. On expiry a synthetic paymentError with code RESULT_TIMEOUT
// is dispatched. Zero means pending until dispose.
func WithResultTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.resultTimeout = d }
}

// New builds the client for one session channel.
func New(sessionID string, ch transport.Channel, logger *log.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		sessionID: sessionID,
		ch:        ch,
		corr:      correlate.New(logger),
		disp:      dispatch.New(logger),
		logger:    logger,
		tracer:    otel.Tracer("nativebridge/bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Initialize attaches the channel listener. Idempotent; the first call wins
// and later calls are no-ops.
func (b *Bridge) Initialize() {
	b.initOnce.Do(func() {
		b.recvWg.Add(1)
		go b.receive()
	})
}

// receive is the front end's delivery loop: it resolves immediate outcomes
// and dispatches events, in channel order. The expectation for an accepted
// call is registered here, on the same goroutine that later observes the
// authoritative event, so the event can never arrive before the expectation
// exists.
func (b *Bridge) receive() {
	defer b.recvWg.Done()
	for f := range b.ch.Inbound() {
		switch f.Kind {
		case envelope.KindResult:
			if f.Accepted {
				b.expect(f.Name)
			}
			b.corr.Resolve(f.CallID, correlate.Outcome{
				Accepted: f.Accepted,
				Payload:  f.Payload,
				Err:      f.Err,
			})
		case envelope.KindEvent:
			b.corr.ObserveEvent(f.Name)
			b.disp.Dispatch(f.Name, f.Payload)
		default:
			b.logger.Printf("[Bridge %s] ignoring %s frame on inbound direction", b.sessionID, f.Kind)
		}
	}
}

// InitCardView initializes the card component. Returns nil once the
// controller reports Ready.
func (b *Bridge) InitCardView(ctx context.Context, cfg config.SessionConfig, opts capability.CardOptions) error {
	out, err := b.invoke(ctx, envelope.MethodInitCardView, envelope.EncodeInitCardRequest(cfg, opts))
	if err != nil {
		return err
	}
	_, err = envelope.DecodeBoolResult(out.Payload)
	return err
}

// ValidateCard reports whether the card input is complete.
func (b *Bridge) ValidateCard(ctx context.Context) (bool, error) {
	out, err := b.invoke(ctx, envelope.MethodValidateCard, nil)
	if err != nil {
		return false, err
	}
	return envelope.DecodeBoolResult(out.Payload)
}

// TokenizeCard starts tokenization. The immediate outcome is a processing
// acknowledgement; the authoritative result arrives as a cardTokenized or
// paymentError event.
func (b *Bridge) TokenizeCard(ctx context.Context) error {
	out, err := b.invoke(ctx, envelope.MethodTokenizeCard, nil)
	if err != nil {
		return err
	}
	_, err = envelope.DecodeStatusResult(out.Payload)
	return err
}

// GetSessionData starts a submit that surfaces session data without
// completing the payment. The authoritative result arrives as a
// sessionDataReady event; no paymentSuccess follows.
func (b *Bridge) GetSessionData(ctx context.Context) error {
	out, err := b.invoke(ctx, envelope.MethodGetSessionData, nil)
	if err != nil {
		return err
	}
	_, err = envelope.DecodeStatusResult(out.Payload)
	return err
}

// InitGooglePay initializes the wallet component.
func (b *Bridge) InitGooglePay(ctx context.Context, cfg config.SessionConfig, opts capability.WalletOptions) error {
	out, err := b.invoke(ctx, envelope.MethodInitGooglePay, envelope.EncodeInitWalletRequest(cfg, opts))
	if err != nil {
		return err
	}
	_, err = envelope.DecodeBoolResult(out.Payload)
	return err
}

// CheckGooglePayAvailability reports whether the wallet method is usable.
func (b *Bridge) CheckGooglePayAvailability(ctx context.Context) (bool, error) {
	out, err := b.invoke(ctx, envelope.MethodCheckGooglePay, nil)
	if err != nil {
		return false, err
	}
	return envelope.DecodeBoolResult(out.Payload)
}

// LaunchGooglePaySheet opens the wallet sheet. The authoritative result
// arrives as a paymentSuccess or paymentError event.
func (b *Bridge) LaunchGooglePaySheet(ctx context.Context, req capability.SheetRequest) error {
	out, err := b.invoke(ctx, envelope.MethodLaunchGooglePay, envelope.EncodeSheetRequest(req))
	if err != nil {
		return err
	}
	_, err = envelope.DecodeStatusResult(out.Payload)
	return err
}

// Dispose tears the session down: the native side disposes its controllers,
// every pending call is force-failed with NOT_READY, and all callback slots
// become inert. Idempotent.
func (b *Bridge) Dispose(ctx context.Context) error {
	if !b.disposed.CompareAndSwap(false, true) {
		return nil
	}
	b.Initialize()
	if _, err := b.call(ctx, envelope.MethodDispose, nil); err != nil {
		b.logger.Printf("[Bridge %s] dispose call failed: %v", b.sessionID, err)
	}
	b.corr.FailAll(bridgeerr.NotReady("bridge is disposed"))
	b.disp.Close()
	return nil
}

// OnCardTokenized registers the handler for authoritative tokenize results.
// Re-registration replaces the previous handler.
func (b *Bridge) OnCardTokenized(fn func(envelope.TokenizedEvent)) *dispatch.Subscription {
	return b.disp.Register(envelope.EventCardTokenized, func(p *structpb.Struct) {
		ev, err := envelope.DecodeTokenizedEvent(p)
		if err != nil {
			b.logger.Printf("[Bridge %s] malformed cardTokenized event: %v", b.sessionID, err)
			return
		}
		fn(ev)
	})
}

// OnPaymentSuccess registers the handler for authoritative settle results.
func (b *Bridge) OnPaymentSuccess(fn func(envelope.PaymentSuccessEvent)) *dispatch.Subscription {
	return b.disp.Register(envelope.EventPaymentSuccess, func(p *structpb.Struct) {
		ev, err := envelope.DecodePaymentSuccessEvent(p)
		if err != nil {
			b.logger.Printf("[Bridge %s] malformed paymentSuccess event: %v", b.sessionID, err)
			return
		}
		fn(ev)
	})
}

// OnPaymentError registers the handler for authoritative failures.
func (b *Bridge) OnPaymentError(fn func(envelope.PaymentErrorEvent)) *dispatch.Subscription {
	return b.disp.Register(envelope.EventPaymentError, func(p *structpb.Struct) {
		ev, err := envelope.DecodePaymentErrorEvent(p)
		if err != nil {
			b.logger.Printf("[Bridge %s] malformed paymentError event: %v", b.sessionID, err)
			return
		}
		fn(ev)
	})
}

// OnSessionDataReady registers the handler for session-data results.
func (b *Bridge) OnSessionDataReady(fn func(envelope.SessionDataEvent)) *dispatch.Subscription {
	return b.disp.Register(envelope.EventSessionDataReady, func(p *structpb.Struct) {
		ev, err := envelope.DecodeSessionDataEvent(p)
		if err != nil {
			b.logger.Printf("[Bridge %s] malformed sessionDataReady event: %v", b.sessionID, err)
			return
		}
		fn(ev)
	})
}

// invoke issues one call and suspends until its immediate outcome. It does
// not wait for the authoritative result of accepted calls.
func (b *Bridge) invoke(ctx context.Context, method string, payload map[string]any) (correlate.Outcome, error) {
	if b.disposed.Load() {
		return correlate.Outcome{}, bridgeerr.NotReady("bridge is disposed")
	}
	b.Initialize()
	return b.call(ctx, method, payload)
}

func (b *Bridge) call(ctx context.Context, method string, payload map[string]any) (correlate.Outcome, error) {
	ctx, span := b.tracer.Start(ctx, "bridge."+method, trace.WithAttributes(
		attribute.String("bridge.session", b.sessionID),
		attribute.String("bridge.method", method),
	))
	defer span.End()

	id := uuid.NewString()
	f, err := envelope.NewCall(id, method, payload)
	if err != nil {
		span.RecordError(err)
		return correlate.Outcome{}, err
	}
	b.corr.Track(id, method)
	if err := b.ch.SendCall(ctx, f); err != nil {
		span.RecordError(err)
		b.corr.Resolve(id, correlate.Outcome{Err: bridgeerr.From(err)})
		return correlate.Outcome{}, bridgeerr.From(err)
	}
	out, err := b.corr.Await(ctx, id)
	if err != nil {
		span.RecordError(err)
		return correlate.Outcome{}, err
	}
	if out.Err != nil {
		span.RecordError(out.Err)
		return correlate.Outcome{}, out.Err
	}
	return out, nil
}

// expect records that one accepted call awaits its authoritative event.
// Every operation kind also accepts paymentError as its failure channel.
func (b *Bridge) expect(method string) {
	var op, successKind string
	switch method {
	case envelope.MethodTokenizeCard:
		op, successKind = opTokenize, envelope.EventCardTokenized
	case envelope.MethodGetSessionData:
		op, successKind = opSessionData, envelope.EventSessionDataReady
	case envelope.MethodLaunchGooglePay:
		op, successKind = opWalletSheet, envelope.EventPaymentSuccess
	default:
		return
	}
	kinds := []string{successKind, envelope.EventPaymentError}
	var onTimeout func()
	if b.resultTimeout > 0 {
		onTimeout = func() { b.synthesizeTimeout(op) }
	}
	b.corr.ExpectEvent(op, kinds, b.resultTimeout, onTimeout)
}

// synthesizeTimeout reports a missing authoritative result as a
// paymentError event so the caller's error slot observes it like any other
// terminal failure.
func (b *Bridge) synthesizeTimeout(op string) {
	if b.disposed.Load() {
		return
	}
	b.logger.Printf("[Bridge %s] no authoritative result for %s within %s", b.sessionID, op, b.resultTimeout)
	payload, err := structpb.NewStruct(envelope.EncodePaymentError(
		bridgeerr.New(bridgeerr.CodeResultTimeout, "no authoritative result for %s within %s", op, b.resultTimeout)))
	if err != nil {
		return
	}
	b.disp.Dispatch(envelope.EventPaymentError, payload)
}
