package host

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
	"github.com/quartzpay/nativebridge/internal/transport"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newHarness(t *testing.T, opts ...capability.SandboxOption) (*transport.SessionChannel, *capability.Sandbox, *Host) {
	t.Helper()
	ch, err := transport.NewSessionChannel("sess-host", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewSessionChannel: %v", err)
	}
	sb := capability.NewSandbox(opts...)
	h := New(ch, sb, testLogger())
	h.Start()
	t.Cleanup(func() { _ = h.Close() })
	return ch, sb, h
}

func sessionPayload() map[string]any {
	return envelope.EncodeInitCardRequest(config.SessionConfig{
		MerchantID:  "m-test",
		PublicKey:   "pk_test",
		Environment: config.EnvSandbox,
	}, capability.CardOptions{})
}

func sendCall(t *testing.T, ch *transport.SessionChannel, id, method string, payload map[string]any) {
	t.Helper()
	f, err := envelope.NewCall(id, method, payload)
	if err != nil {
		t.Fatalf("NewCall: %v", err)
	}
	if err := ch.SendCall(context.Background(), f); err != nil {
		t.Fatalf("SendCall: %v", err)
	}
}

func recvInbound(t *testing.T, ch *transport.SessionChannel) envelope.Frame {
	t.Helper()
	select {
	case f, ok := <-ch.Inbound():
		if !ok {
			t.Fatal("inbound closed")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound frame")
	}
	return envelope.Frame{}
}

func TestUnknownMethodFailsNotImplemented(t *testing.T) {
	ch, _, _ := newHarness(t)
	sendCall(t, ch, "c1", "refundPayment", nil)
	res := recvInbound(t, ch)
	if res.Kind != envelope.KindResult || res.CallID != "c1" {
		t.Fatalf("unexpected frame: %+v", res)
	}
	if res.Err == nil || res.Err.Code != bridgeerr.CodeNotImplemented {
		t.Fatalf("expected NOT_IMPLEMENTED, got %+v", res.Err)
	}
}

func TestMalformedInitPayloadFailsDecode(t *testing.T) {
	ch, sb, _ := newHarness(t)
	sendCall(t, ch, "c1", envelope.MethodInitCardView, map[string]any{"config": "not-a-mapping"})
	res := recvInbound(t, ch)
	if res.Err == nil || res.Err.Code != bridgeerr.CodeDecodeError {
		t.Fatalf("expected DECODE_ERROR, got %+v", res.Err)
	}
	if sb.Count("initCard") != 0 {
		t.Fatal("capability saw a malformed init")
	}
}

func TestAckPrecedesAuthoritativeEventOnTheWire(t *testing.T) {
	ch, _, _ := newHarness(t)

	sendCall(t, ch, "c1", envelope.MethodInitCardView, sessionPayload())
	if res := recvInbound(t, ch); res.Err != nil {
		t.Fatalf("init failed: %v", res.Err)
	}

	sendCall(t, ch, "c2", envelope.MethodTokenizeCard, nil)
	first := recvInbound(t, ch)
	second := recvInbound(t, ch)

	if first.Kind != envelope.KindResult || !first.Accepted || first.CallID != "c2" {
		t.Fatalf("first frame is not the ack: %+v", first)
	}
	status, err := envelope.DecodeStatusResult(first.Payload)
	if err != nil || status != envelope.StatusProcessing {
		t.Fatalf("ack status = %q, %v", status, err)
	}
	if second.Kind != envelope.KindEvent || second.Name != envelope.EventCardTokenized {
		t.Fatalf("second frame is not the event: %+v", second)
	}
}

func TestDisposeCallDisposesBothControllers(t *testing.T) {
	ch, _, h := newHarness(t)

	sendCall(t, ch, "c1", envelope.MethodInitCardView, sessionPayload())
	if res := recvInbound(t, ch); res.Err != nil {
		t.Fatalf("init failed: %v", res.Err)
	}

	sendCall(t, ch, "c2", envelope.MethodDispose, nil)
	res := recvInbound(t, ch)
	if res.Err != nil {
		t.Fatalf("dispose failed: %v", res.Err)
	}
	if v, err := envelope.DecodeBoolResult(res.Payload); err != nil || !v {
		t.Fatalf("dispose result = %v, %v", v, err)
	}

	if h.Card().State().String() != "Disposed" || h.Wallet().State().String() != "Disposed" {
		t.Fatalf("controllers not disposed: card=%s wallet=%s", h.Card().State(), h.Wallet().State())
	}

	sendCall(t, ch, "c3", envelope.MethodValidateCard, nil)
	res = recvInbound(t, ch)
	if res.Err == nil || res.Err.Code != bridgeerr.CodeNotReady {
		t.Fatalf("expected NOT_READY after dispose, got %+v", res.Err)
	}
}

func TestLaunchSheetAckUsesLaunchedStatus(t *testing.T) {
	ch, _, _ := newHarness(t)

	sendCall(t, ch, "c1", envelope.MethodInitGooglePay, envelope.EncodeInitWalletRequest(config.SessionConfig{
		MerchantID:  "m-test",
		PublicKey:   "pk_test",
		Environment: config.EnvSandbox,
	}, capability.WalletOptions{MerchantName: "Demo"}))
	if res := recvInbound(t, ch); res.Err != nil {
		t.Fatalf("init failed: %v", res.Err)
	}

	sendCall(t, ch, "c2", envelope.MethodLaunchGooglePay, envelope.EncodeSheetRequest(capability.SheetRequest{
		Amount: 100, Currency: "USD",
	}))
	ack := recvInbound(t, ch)
	status, err := envelope.DecodeStatusResult(ack.Payload)
	if err != nil || status != envelope.StatusLaunched {
		t.Fatalf("ack status = %q, %v", status, err)
	}
	ev := recvInbound(t, ch)
	if ev.Name != envelope.EventPaymentSuccess {
		t.Fatalf("event = %s", ev.Name)
	}
}

func TestHostCloseIsIdempotent(t *testing.T) {
	ch, _, h := newHarness(t)
	_ = ch
	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
