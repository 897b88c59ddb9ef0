package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := NewSandbox(WithInitError(errors.New("provider down")))
	cap := WithBreaker(inner, "test")

	cfg := sandboxSessionConfig()
	for i := 0; i < 5; i++ {
		if err := cap.InitCardSession(context.Background(), cfg, CardOptions{}); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}

	err := cap.InitCardSession(context.Background(), cfg, CardOptions{})
	if !bridgeerr.Is(err, bridgeerr.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE once open, got %v", err)
	}
	if got := inner.Count("initCard"); got != 5 {
		t.Fatalf("open breaker still reached the provider: %d calls", got)
	}
}

func TestBreakerOpenFailsTokenizeThroughHook(t *testing.T) {
	inner := NewSandbox(WithInitError(errors.New("provider down")))
	cap := WithBreaker(inner, "test")
	cfg := sandboxSessionConfig()
	for i := 0; i < 5; i++ {
		_ = cap.InitCardSession(context.Background(), cfg, CardOptions{})
	}

	errCh := make(chan error, 1)
	cap.Tokenize(context.Background(), func(_ Token, err error) { errCh <- err })
	select {
	case err := <-errCh:
		if !bridgeerr.Is(err, bridgeerr.CodeUnavailable) {
			t.Fatalf("expected UNAVAILABLE, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tokenize hook never fired")
	}
	if inner.Count("tokenize") != 0 {
		t.Fatal("open breaker still reached the provider for tokenize")
	}
}

func TestBreakerCountsHookReportedFailures(t *testing.T) {
	inner := NewSandbox(WithTokenizeError(errors.New("declined")))
	cap := WithBreaker(inner, "test")

	for i := 0; i < 5; i++ {
		errCh := make(chan error, 1)
		cap.Tokenize(context.Background(), func(_ Token, err error) { errCh <- err })
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Fatal("tokenize hook never fired")
		}
	}

	_, err := cap.WalletAvailable(context.Background())
	if !bridgeerr.Is(err, bridgeerr.CodeUnavailable) {
		t.Fatalf("hook failures did not trip the breaker: %v", err)
	}
}

func TestBreakerHaltedSubmitCountsAsSuccess(t *testing.T) {
	inner := NewSandbox()
	cap := WithBreaker(inner, "test")

	for i := 0; i < 10; i++ {
		done := make(chan struct{}, 1)
		cap.Submit(context.Background(), func(sessionData string, err error) SubmitOutcome {
			if err != nil {
				t.Errorf("Submit: %v", err)
				return OutcomeFailed
			}
			done <- struct{}{}
			return OutcomeHalted
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("submit hook never fired")
		}
	}

	// Ten halted submits must leave the breaker closed.
	if _, err := cap.WalletAvailable(context.Background()); err != nil {
		t.Fatalf("breaker tripped on halted submits: %v", err)
	}
}

func TestBreakerDoesNotGateLocalValidation(t *testing.T) {
	inner := NewSandbox(WithInitError(errors.New("provider down")))
	cap := WithBreaker(inner, "test")
	cfg := sandboxSessionConfig()
	for i := 0; i < 5; i++ {
		_ = cap.InitCardSession(context.Background(), cfg, CardOptions{})
	}

	if _, err := cap.ValidateCard(context.Background()); err != nil {
		t.Fatalf("local validation gated by open breaker: %v", err)
	}
}
