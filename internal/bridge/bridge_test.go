package bridge

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/config"
	"github.com/quartzpay/nativebridge/internal/envelope"
	"github.com/quartzpay/nativebridge/internal/host"
	"github.com/quartzpay/nativebridge/internal/transport"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		MerchantID:  "m-test",
		PublicKey:   "pk_test",
		Environment: config.EnvSandbox,
	}
}

// harness wires a real channel, host, and sandbox behind a Bridge, the same
// topology production uses minus the process boundary.
type harness struct {
	bridge  *Bridge
	sandbox *capability.Sandbox
	host    *host.Host
}

func newHarness(t *testing.T, bridgeOpts []Option, sbOpts ...capability.SandboxOption) *harness {
	t.Helper()
	ch, err := transport.NewSessionChannel("sess-e2e", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSessionChannel: %v", err)
	}
	sb := capability.NewSandbox(sbOpts...)
	h := host.New(ch, sb, testLogger())
	h.Start()
	b := New("sess-e2e", ch, testLogger(), bridgeOpts...)
	b.Initialize()
	t.Cleanup(func() {
		_ = b.Dispose(context.Background())
		_ = h.Close()
	})
	return &harness{bridge: b, sandbox: sb, host: h}
}

func await[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestCardTokenizeFlow(t *testing.T) {
	hn := newHarness(t, nil)
	ctx := context.Background()

	tokens := make(chan envelope.TokenizedEvent, 1)
	hn.bridge.OnCardTokenized(func(ev envelope.TokenizedEvent) { tokens <- ev })

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{RequireCVC: true}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	complete, err := hn.bridge.ValidateCard(ctx)
	if err != nil {
		t.Fatalf("ValidateCard: %v", err)
	}
	if !complete {
		t.Fatal("sandbox card should validate complete")
	}
	if err := hn.bridge.TokenizeCard(ctx); err != nil {
		t.Fatalf("TokenizeCard: %v", err)
	}

	ev := await(t, tokens, "cardTokenized")
	if ev.Token != "tok_sandbox" || ev.Brand != "visa" || ev.Last4 != "4242" {
		t.Fatalf("unexpected token event: %+v", ev)
	}
}

func TestSessionDataFlowNeverSettles(t *testing.T) {
	hn := newHarness(t, nil, capability.WithSessionData("sd_opaque"))
	ctx := context.Background()

	data := make(chan envelope.SessionDataEvent, 2)
	successes := make(chan envelope.PaymentSuccessEvent, 1)
	failures := make(chan envelope.PaymentErrorEvent, 1)
	hn.bridge.OnSessionDataReady(func(ev envelope.SessionDataEvent) { data <- ev })
	hn.bridge.OnPaymentSuccess(func(ev envelope.PaymentSuccessEvent) { successes <- ev })
	hn.bridge.OnPaymentError(func(ev envelope.PaymentErrorEvent) { failures <- ev })

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	if err := hn.bridge.GetSessionData(ctx); err != nil {
		t.Fatalf("GetSessionData: %v", err)
	}

	ev := await(t, data, "sessionDataReady")
	if ev.SessionData != "sd_opaque" {
		t.Fatalf("session data = %q", ev.SessionData)
	}

	// No settlement and no further terminal events follow.
	select {
	case ev := <-successes:
		t.Fatalf("session-data path produced paymentSuccess: %+v", ev)
	case ev := <-failures:
		t.Fatalf("session-data path produced paymentError: %+v", ev)
	case ev := <-data:
		t.Fatalf("sessionDataReady delivered twice: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
	if hn.sandbox.Settled() {
		t.Fatal("capability settled on the session-data path")
	}
	if hn.sandbox.LastSubmitOutcome() != capability.OutcomeHalted {
		t.Fatalf("submit outcome = %s", hn.sandbox.LastSubmitOutcome())
	}
}

func TestValidateIncompleteCardAnswersFalse(t *testing.T) {
	hn := newHarness(t, nil, capability.WithCardComplete(false))
	ctx := context.Background()

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	complete, err := hn.bridge.ValidateCard(ctx)
	if err != nil {
		t.Fatalf("ValidateCard: %v", err)
	}
	if complete {
		t.Fatal("incomplete card validated as complete")
	}
}

func TestOperationsBeforeInitFailFast(t *testing.T) {
	hn := newHarness(t, nil)
	ctx := context.Background()

	_, err := hn.bridge.ValidateCard(ctx)
	if !bridgeerr.Is(err, bridgeerr.CodeNotReady) {
		t.Fatalf("expected NOT_READY, got %v", err)
	}
	if err := hn.bridge.TokenizeCard(ctx); !bridgeerr.Is(err, bridgeerr.CodeNotReady) {
		t.Fatalf("expected NOT_READY, got %v", err)
	}
	if hn.sandbox.Count("validate")+hn.sandbox.Count("tokenize") != 0 {
		t.Fatal("capability invoked before init")
	}
}

func TestSecondSubmitWhileInFlightFails(t *testing.T) {
	hn := newHarness(t, nil, capability.WithLatency(100*time.Millisecond))
	ctx := context.Background()

	tokens := make(chan envelope.TokenizedEvent, 1)
	hn.bridge.OnCardTokenized(func(ev envelope.TokenizedEvent) { tokens <- ev })

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	if err := hn.bridge.TokenizeCard(ctx); err != nil {
		t.Fatalf("TokenizeCard: %v", err)
	}
	if err := hn.bridge.GetSessionData(ctx); !bridgeerr.Is(err, bridgeerr.CodeInFlight) {
		t.Fatalf("expected IN_FLIGHT, got %v", err)
	}
	if hn.sandbox.Count("submit") != 0 {
		t.Fatal("rejected submit reached the capability")
	}

	// The original operation still completes.
	await(t, tokens, "cardTokenized")
}

func TestWalletFlow(t *testing.T) {
	hn := newHarness(t, nil, capability.WithPaymentID("pay_e2e"))
	ctx := context.Background()

	successes := make(chan envelope.PaymentSuccessEvent, 1)
	hn.bridge.OnPaymentSuccess(func(ev envelope.PaymentSuccessEvent) { successes <- ev })

	if err := hn.bridge.InitGooglePay(ctx, testSessionConfig(), capability.WalletOptions{MerchantName: "Demo"}); err != nil {
		t.Fatalf("InitGooglePay: %v", err)
	}
	available, err := hn.bridge.CheckGooglePayAvailability(ctx)
	if err != nil {
		t.Fatalf("CheckGooglePayAvailability: %v", err)
	}
	if !available {
		t.Fatal("sandbox wallet should be available")
	}
	if err := hn.bridge.LaunchGooglePaySheet(ctx, capability.SheetRequest{Amount: 2500, Currency: "EUR", Label: "Order 9"}); err != nil {
		t.Fatalf("LaunchGooglePaySheet: %v", err)
	}

	ev := await(t, successes, "paymentSuccess")
	if ev.PaymentID != "pay_e2e" {
		t.Fatalf("payment id = %q", ev.PaymentID)
	}
}

func TestWalletUnavailableIsAnswerNotError(t *testing.T) {
	hn := newHarness(t, nil, capability.WithWalletAvailable(false))
	ctx := context.Background()

	if err := hn.bridge.InitGooglePay(ctx, testSessionConfig(), capability.WalletOptions{}); err != nil {
		t.Fatalf("InitGooglePay: %v", err)
	}
	available, err := hn.bridge.CheckGooglePayAvailability(ctx)
	if err != nil {
		t.Fatalf("CheckGooglePayAvailability: %v", err)
	}
	if available {
		t.Fatal("expected unavailable")
	}
}

func TestInitWithBadConfigFailsInitError(t *testing.T) {
	hn := newHarness(t, nil)
	cfg := testSessionConfig()
	cfg.Environment = "staging"
	err := hn.bridge.InitCardView(context.Background(), cfg, capability.CardOptions{})
	if !bridgeerr.Is(err, bridgeerr.CodeInitError) {
		t.Fatalf("expected INIT_ERROR, got %v", err)
	}
	if hn.sandbox.Count("initCard") != 0 {
		t.Fatal("capability saw an invalid config")
	}
}

func TestDisposeIsIdempotentAndFailsLaterCalls(t *testing.T) {
	hn := newHarness(t, nil)
	ctx := context.Background()

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	if err := hn.bridge.Dispose(ctx); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := hn.bridge.Dispose(ctx); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}

	validateCalls := hn.sandbox.Count("validate")
	_, err := hn.bridge.ValidateCard(ctx)
	if !bridgeerr.Is(err, bridgeerr.CodeNotReady) {
		t.Fatalf("expected NOT_READY after dispose, got %v", err)
	}
	if hn.sandbox.Count("validate") != validateCalls {
		t.Fatal("disposed bridge still reached the capability")
	}
}

func TestEventsAfterDisposeAreDropped(t *testing.T) {
	hn := newHarness(t, nil, capability.WithLatency(60*time.Millisecond))
	ctx := context.Background()

	tokens := make(chan envelope.TokenizedEvent, 1)
	hn.bridge.OnCardTokenized(func(ev envelope.TokenizedEvent) { tokens <- ev })

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	if err := hn.bridge.TokenizeCard(ctx); err != nil {
		t.Fatalf("TokenizeCard: %v", err)
	}
	if err := hn.bridge.Dispose(ctx); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	select {
	case ev := <-tokens:
		t.Fatalf("token delivered after dispose: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTimeoutDoesNotFireAfterAuthoritativeResult(t *testing.T) {
	// Zero capability latency: the cardTokenized event chases the
	// acknowledgement frame immediately, the tightest interleaving between
	// the accepted result and its expectation.
	hn := newHarness(t, []Option{WithResultTimeout(30 * time.Millisecond)})
	ctx := context.Background()

	tokens := make(chan envelope.TokenizedEvent, 1)
	failures := make(chan envelope.PaymentErrorEvent, 1)
	hn.bridge.OnCardTokenized(func(ev envelope.TokenizedEvent) { tokens <- ev })
	hn.bridge.OnPaymentError(func(ev envelope.PaymentErrorEvent) { failures <- ev })

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	if err := hn.bridge.TokenizeCard(ctx); err != nil {
		t.Fatalf("TokenizeCard: %v", err)
	}
	await(t, tokens, "cardTokenized")

	// Well past the timeout window, the settled operation must not produce
	// a second terminal event.
	select {
	case ev := <-failures:
		t.Fatalf("settled tokenize produced paymentError: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestResultTimeoutSynthesizesPaymentError(t *testing.T) {
	hn := newHarness(t,
		[]Option{WithResultTimeout(40 * time.Millisecond)},
		capability.WithLatency(5*time.Second))
	ctx := context.Background()

	failures := make(chan envelope.PaymentErrorEvent, 1)
	hn.bridge.OnPaymentError(func(ev envelope.PaymentErrorEvent) { failures <- ev })

	if err := hn.bridge.InitCardView(ctx, testSessionConfig(), capability.CardOptions{}); err != nil {
		t.Fatalf("InitCardView: %v", err)
	}
	if err := hn.bridge.TokenizeCard(ctx); err != nil {
		t.Fatalf("TokenizeCard: %v", err)
	}

	ev := await(t, failures, "synthesized paymentError")
	if ev.Code != string(bridgeerr.CodeResultTimeout) {
		t.Fatalf("code = %s", ev.Code)
	}
}
