package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quartzpay/nativebridge/internal/config"
)

func sandboxSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		MerchantID:  "m-test",
		PublicKey:   "pk_test",
		Environment: config.EnvSandbox,
	}
}

func awaitToken(t *testing.T, s *Sandbox, ctx context.Context) (Token, error) {
	t.Helper()
	type result struct {
		token Token
		err   error
	}
	ch := make(chan result, 1)
	s.Tokenize(ctx, func(tok Token, err error) {
		ch <- result{tok, err}
	})
	select {
	case r := <-ch:
		return r.token, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("tokenize hook never fired")
		return Token{}, nil
	}
}

func TestSandboxTokenizeDefaults(t *testing.T) {
	s := NewSandbox()
	tok, err := awaitToken(t, s, context.Background())
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if tok.ID != "tok_sandbox" || tok.Brand != "visa" || tok.Last4 != "4242" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	if s.Count("tokenize") != 1 {
		t.Fatalf("tokenize count = %d", s.Count("tokenize"))
	}
}

func TestSandboxTokenizeInjectedError(t *testing.T) {
	boom := errors.New("provider rejected card")
	s := NewSandbox(WithTokenizeError(boom))
	_, err := awaitToken(t, s, context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestSandboxHooksSuppressedAfterCancel(t *testing.T) {
	s := NewSandbox(WithLatency(30 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	fired := make(chan struct{}, 1)
	s.Tokenize(ctx, func(Token, error) { fired <- struct{}{} })
	cancel()

	select {
	case <-fired:
		t.Fatal("hook fired after cancellation")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSandboxSubmitHaltedDoesNotSettle(t *testing.T) {
	s := NewSandbox(WithSessionData("sd_opaque_blob"))
	done := make(chan string, 1)
	s.Submit(context.Background(), func(sessionData string, err error) SubmitOutcome {
		if err != nil {
			t.Errorf("Submit: %v", err)
			return OutcomeFailed
		}
		done <- sessionData
		return OutcomeHalted
	})
	select {
	case data := <-done:
		if data != "sd_opaque_blob" {
			t.Fatalf("session data mismatch: %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit hook never fired")
	}
	// give the sandbox a beat to record the outcome after complete returns
	time.Sleep(20 * time.Millisecond)
	if s.Settled() {
		t.Fatal("halted submit settled the payment")
	}
	if s.LastSubmitOutcome() != OutcomeHalted {
		t.Fatalf("outcome = %s", s.LastSubmitOutcome())
	}
}

func TestSandboxSheetRejectsIncompleteRequest(t *testing.T) {
	s := NewSandbox()
	errCh := make(chan error, 1)
	s.LaunchWalletSheet(context.Background(), SheetRequest{Amount: 0, Currency: "EUR"}, func(_ string, err error) {
		errCh <- err
	})
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error for zero amount")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sheet hook never fired")
	}
}

func TestSandboxInitValidatesConfig(t *testing.T) {
	s := NewSandbox()
	bad := sandboxSessionConfig()
	bad.Environment = "staging"
	if err := s.InitCardSession(context.Background(), bad, CardOptions{}); err == nil {
		t.Fatal("expected config validation error")
	}
	if err := s.InitCardSession(context.Background(), sandboxSessionConfig(), CardOptions{}); err != nil {
		t.Fatalf("InitCardSession: %v", err)
	}
}
