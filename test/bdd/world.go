package bdd

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/quartzpay/nativebridge/internal/bridge"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/config"
	"github.com/quartzpay/nativebridge/internal/envelope"
	"github.com/quartzpay/nativebridge/internal/host"
	"github.com/quartzpay/nativebridge/internal/transport"
)

const eventWait = 2 * time.Second

// BridgeWorld carries one scenario's bridge stack and observations. A fresh
// stack is built per scenario so state never leaks between them.
type BridgeWorld struct {
	t *testing.T

	sandboxOpts []capability.SandboxOption
	sandbox     *capability.Sandbox
	host        *host.Host
	bridge      *bridge.Bridge

	lastErr          error
	lastAvailability bool

	tokenized   chan envelope.TokenizedEvent
	sessionData chan envelope.SessionDataEvent
	successes   chan envelope.PaymentSuccessEvent
	failures    chan envelope.PaymentErrorEvent
}

func NewBridgeWorld(t *testing.T) *BridgeWorld {
	return &BridgeWorld{t: t}
}

func (w *BridgeWorld) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		w.teardown()
		return ctx, nil
	})

	w.registerCardSteps(sc)
	w.registerWalletSteps(sc)
	w.registerLifecycleSteps(sc)
}

func (w *BridgeWorld) reset() {
	w.teardown()
	w.sandboxOpts = nil
	w.sandbox = nil
	w.host = nil
	w.bridge = nil
	w.lastErr = nil
	w.lastAvailability = false
	w.tokenized = make(chan envelope.TokenizedEvent, 4)
	w.sessionData = make(chan envelope.SessionDataEvent, 4)
	w.successes = make(chan envelope.PaymentSuccessEvent, 4)
	w.failures = make(chan envelope.PaymentErrorEvent, 4)
}

func (w *BridgeWorld) teardown() {
	if w.bridge != nil {
		_ = w.bridge.Dispose(context.Background())
	}
	if w.host != nil {
		_ = w.host.Close()
	}
}

// stack builds the channel, host, and bridge on first use so Given steps can
// configure the sandbox beforehand.
func (w *BridgeWorld) stack() error {
	if w.bridge != nil {
		return nil
	}
	logger := log.New(io.Discard, "", 0)
	ch, err := transport.NewSessionChannel("sess-bdd", logger, nil)
	if err != nil {
		return err
	}
	w.sandbox = capability.NewSandbox(w.sandboxOpts...)
	w.host = host.New(ch, w.sandbox, logger)
	w.host.Start()
	w.bridge = bridge.New("sess-bdd", ch, logger)
	w.bridge.Initialize()

	w.bridge.OnCardTokenized(func(ev envelope.TokenizedEvent) { w.tokenized <- ev })
	w.bridge.OnSessionDataReady(func(ev envelope.SessionDataEvent) { w.sessionData <- ev })
	w.bridge.OnPaymentSuccess(func(ev envelope.PaymentSuccessEvent) { w.successes <- ev })
	w.bridge.OnPaymentError(func(ev envelope.PaymentErrorEvent) { w.failures <- ev })
	return nil
}

func (w *BridgeWorld) sessionConfig() config.SessionConfig {
	return config.SessionConfig{
		MerchantID:  "m-bdd",
		PublicKey:   "pk_bdd",
		Environment: config.EnvSandbox,
	}
}

func awaitEvent[T any](ch <-chan T, what string) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(eventWait):
		var zero T
		return zero, errors.New("timed out waiting for " + what)
	}
}
