package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quartzpay/nativebridge/internal/config"
)

// Sandbox is the deterministic in-memory capability used in development and
// tests. Every behavior is configurable: card completeness, tokenization
// outcome, latency, wallet availability.
type Sandbox struct {
	mu sync.Mutex

	latency         time.Duration
	cardComplete    bool
	token           Token
	tokenizeErr     error
	sessionData     string
	submitErr       error
	walletAvailable bool
	paymentID       string
	sheetErr        error
	initErr         error

	counts            map[string]int
	lastSubmitOutcome SubmitOutcome
	settled           bool
}

// SandboxOption configures a Sandbox at construction.
type SandboxOption func(*Sandbox)

func WithLatency(d time.Duration) SandboxOption {
	return func(s *Sandbox) { s.latency = d }
}

func WithCardComplete(complete bool) SandboxOption {
	return func(s *Sandbox) { s.cardComplete = complete }
}

func WithToken(t Token) SandboxOption {
	return func(s *Sandbox) { s.token = t }
}

func WithTokenizeError(err error) SandboxOption {
	return func(s *Sandbox) { s.tokenizeErr = err }
}

func WithSessionData(data string) SandboxOption {
	return func(s *Sandbox) { s.sessionData = data }
}

func WithSubmitError(err error) SandboxOption {
	return func(s *Sandbox) { s.submitErr = err }
}

func WithWalletAvailable(available bool) SandboxOption {
	return func(s *Sandbox) { s.walletAvailable = available }
}

func WithPaymentID(id string) SandboxOption {
	return func(s *Sandbox) { s.paymentID = id }
}

func WithSheetError(err error) SandboxOption {
	return func(s *Sandbox) { s.sheetErr = err }
}

func WithInitError(err error) SandboxOption {
	return func(s *Sandbox) { s.initErr = err }
}

// NewSandbox builds a sandbox capability with workable defaults.
func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		cardComplete:    true,
		token:           Token{ID: "tok_sandbox", Brand: "visa", Last4: "4242"},
		sessionData:     "sd_sandbox_opaque",
		walletAvailable: true,
		paymentID:       "pay_sandbox",
		counts:          make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sandbox) InitCardSession(ctx context.Context, cfg config.SessionConfig, opts CardOptions) error {
	s.count("initCard")
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

func (s *Sandbox) ValidateCard(ctx context.Context) (bool, error) {
	s.count("validate")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cardComplete, nil
}

func (s *Sandbox) Tokenize(ctx context.Context, done func(Token, error)) {
	s.count("tokenize")
	s.mu.Lock()
	latency, token, tokErr := s.latency, s.token, s.tokenizeErr
	s.mu.Unlock()
	go func() {
		if !s.wait(ctx, latency) {
			return
		}
		if tokErr != nil {
			done(Token{}, tokErr)
			return
		}
		done(token, nil)
	}()
}

func (s *Sandbox) Submit(ctx context.Context, complete func(sessionData string, err error) SubmitOutcome) {
	s.count("submit")
	s.mu.Lock()
	latency, data, submitErr := s.latency, s.sessionData, s.submitErr
	s.mu.Unlock()
	go func() {
		if !s.wait(ctx, latency) {
			return
		}
		var outcome SubmitOutcome
		if submitErr != nil {
			outcome = complete("", submitErr)
		} else {
			outcome = complete(data, nil)
		}
		s.mu.Lock()
		s.lastSubmitOutcome = outcome
		if outcome == OutcomeCompleted {
			s.settled = true
		}
		s.mu.Unlock()
	}()
}

func (s *Sandbox) InitWalletSession(ctx context.Context, cfg config.SessionConfig, opts WalletOptions) error {
	s.count("initWallet")
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

func (s *Sandbox) WalletAvailable(ctx context.Context) (bool, error) {
	s.count("walletAvailable")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletAvailable, nil
}

func (s *Sandbox) LaunchWalletSheet(ctx context.Context, req SheetRequest, done func(paymentID string, err error)) {
	s.count("launchSheet")
	if req.Amount <= 0 || req.Currency == "" {
		go done("", fmt.Errorf("sheet request is incomplete"))
		return
	}
	s.mu.Lock()
	latency, paymentID, sheetErr := s.latency, s.paymentID, s.sheetErr
	s.mu.Unlock()
	go func() {
		if !s.wait(ctx, latency) {
			return
		}
		if sheetErr != nil {
			done("", sheetErr)
			return
		}
		done(paymentID, nil)
	}()
}

// SetCardComplete flips the simulated card-input completeness.
func (s *Sandbox) SetCardComplete(complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cardComplete = complete
}

// SetTokenizeError injects a tokenization failure for subsequent calls.
func (s *Sandbox) SetTokenizeError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenizeErr = err
}

// Count reports how many times the named operation reached the capability.
func (s *Sandbox) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[op]
}

// LastSubmitOutcome reports the controller's verdict on the latest submit.
func (s *Sandbox) LastSubmitOutcome() SubmitOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSubmitOutcome
}

// Settled reports whether any submit auto-advanced to settlement.
func (s *Sandbox) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// wait sleeps for the configured latency, reporting false when ctx ended
// first. Completion hooks must not fire after cancellation.
func (s *Sandbox) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (s *Sandbox) count(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[op]++
}
