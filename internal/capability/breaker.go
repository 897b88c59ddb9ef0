package capability

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/config"
)

// breakerCapability shields a remote-backed capability with a circuit
// breaker. When the breaker is open, operations fail fast with UNAVAILABLE
// instead of hammering a degraded payment provider.
type breakerCapability struct {
	inner Capability
	cb    *gobreaker.TwoStepCircuitBreaker
}

// WithBreaker wraps inner with a circuit breaker. The two-step form is used
// because tokenize/submit report their outcome through completion hooks,
// not return values.
func WithBreaker(inner Capability, name string) Capability {
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &breakerCapability{inner: inner, cb: cb}
}

func (b *breakerCapability) InitCardSession(ctx context.Context, cfg config.SessionConfig, opts CardOptions) error {
	report, err := b.cb.Allow()
	if err != nil {
		return bridgeerr.Unavailable("payment provider circuit open")
	}
	err = b.inner.InitCardSession(ctx, cfg, opts)
	report(err == nil)
	return err
}

func (b *breakerCapability) ValidateCard(ctx context.Context) (bool, error) {
	// Validation is local to the card component; never counts against the
	// provider's breaker.
	return b.inner.ValidateCard(ctx)
}

func (b *breakerCapability) Tokenize(ctx context.Context, done func(Token, error)) {
	report, err := b.cb.Allow()
	if err != nil {
		go done(Token{}, bridgeerr.Unavailable("payment provider circuit open"))
		return
	}
	b.inner.Tokenize(ctx, func(t Token, err error) {
		report(err == nil)
		done(t, err)
	})
}

func (b *breakerCapability) Submit(ctx context.Context, complete func(sessionData string, err error) SubmitOutcome) {
	report, err := b.cb.Allow()
	if err != nil {
		go func() {
			_ = complete("", bridgeerr.Unavailable("payment provider circuit open"))
		}()
		return
	}
	b.inner.Submit(ctx, func(sessionData string, err error) SubmitOutcome {
		// An intentional halt is a provider success: session data arrived.
		report(err == nil)
		return complete(sessionData, err)
	})
}

func (b *breakerCapability) InitWalletSession(ctx context.Context, cfg config.SessionConfig, opts WalletOptions) error {
	report, err := b.cb.Allow()
	if err != nil {
		return bridgeerr.Unavailable("payment provider circuit open")
	}
	err = b.inner.InitWalletSession(ctx, cfg, opts)
	report(err == nil)
	return err
}

func (b *breakerCapability) WalletAvailable(ctx context.Context) (bool, error) {
	report, err := b.cb.Allow()
	if err != nil {
		return false, bridgeerr.Unavailable("payment provider circuit open")
	}
	available, err := b.inner.WalletAvailable(ctx)
	report(err == nil)
	return available, err
}

func (b *breakerCapability) LaunchWalletSheet(ctx context.Context, req SheetRequest, done func(paymentID string, err error)) {
	report, err := b.cb.Allow()
	if err != nil {
		go done("", bridgeerr.Unavailable("payment provider circuit open"))
		return
	}
	b.inner.LaunchWalletSheet(ctx, req, func(paymentID string, err error) {
		report(err == nil)
		done(paymentID, err)
	})
}
