package capability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/config"
)

// CardDetails is the card input the embedding UI feeds into the capability.
// It never crosses the bridge channel.
type CardDetails struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

// Stripe is the production capability backed by the Stripe API: card
// tokenization via Tokens, session data via SetupIntents. The wallet sheet
// cannot be hosted here, so wallet operations report unavailable.
type Stripe struct {
	api *client.API

	mu   sync.Mutex
	cfg  config.SessionConfig
	card CardDetails
}

// NewStripe builds the Stripe capability. The backend HTTP client carries an
// otelhttp transport so every Stripe round trip shows up in traces.
func NewStripe(apiKey string) *Stripe {
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	api := &client.API{}
	api.Init(apiKey, stripe.NewBackends(httpClient))
	return &Stripe{api: api}
}

// SetCard stores the current card input.
func (s *Stripe) SetCard(card CardDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.card = card
}

func (s *Stripe) InitCardSession(ctx context.Context, cfg config.SessionConfig, opts CardOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

func (s *Stripe) ValidateCard(ctx context.Context) (bool, error) {
	s.mu.Lock()
	card := s.card
	s.mu.Unlock()
	return validCard(card, time.Now()), nil
}

func (s *Stripe) Tokenize(ctx context.Context, done func(Token, error)) {
	s.mu.Lock()
	card := s.card
	s.mu.Unlock()
	go func() {
		params := &stripe.TokenParams{
			Card: &stripe.CardParams{
				Number:   stripe.String(card.Number),
				ExpMonth: stripe.String(strconv.Itoa(card.ExpMonth)),
				ExpYear:  stripe.String(strconv.Itoa(card.ExpYear)),
				CVC:      stripe.String(card.CVC),
			},
		}
		params.Context = ctx
		tok, err := s.api.Tokens.New(params)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			done(Token{}, fmt.Errorf("stripe tokenize: %w", err))
			return
		}
		done(Token{ID: tok.ID, Brand: string(tok.Card.Brand), Last4: tok.Card.Last4}, nil)
	}()
}

func (s *Stripe) Submit(ctx context.Context, complete func(sessionData string, err error) SubmitOutcome) {
	go func() {
		params := &stripe.SetupIntentParams{}
		params.Context = ctx
		intent, err := s.api.SetupIntents.New(params)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			complete("", fmt.Errorf("stripe setup intent: %w", err))
			return
		}
		outcome := complete(intent.ClientSecret, nil)
		switch outcome {
		case OutcomeHalted, OutcomeFailed:
			// The caller's backend finishes the payment out-of-band; the
			// intent must not remain confirmable here.
			cancelParams := &stripe.SetupIntentCancelParams{}
			cancelParams.Context = ctx
			_, _ = s.api.SetupIntents.Cancel(intent.ID, cancelParams)
		}
	}()
}

func (s *Stripe) InitWalletSession(ctx context.Context, cfg config.SessionConfig, opts WalletOptions) error {
	return bridgeerr.Unavailable("google pay is not supported by the stripe capability host")
}

func (s *Stripe) WalletAvailable(ctx context.Context) (bool, error) {
	return false, nil
}

func (s *Stripe) LaunchWalletSheet(ctx context.Context, req SheetRequest, done func(paymentID string, err error)) {
	go done("", bridgeerr.Unavailable("google pay is not supported by the stripe capability host"))
}

// validCard applies the checks a card input component performs locally:
// Luhn digit, plausible length, expiry in the future.
func validCard(card CardDetails, now time.Time) bool {
	if len(card.Number) < 12 || len(card.Number) > 19 {
		return false
	}
	if !luhn(card.Number) {
		return false
	}
	if card.ExpMonth < 1 || card.ExpMonth > 12 {
		return false
	}
	endOfMonth := time.Date(card.ExpYear, time.Month(card.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return now.Before(endOfMonth)
}

func luhn(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
