// Package capability defines the port to the underlying payment SDK. The
// bridge core treats the SDK as an opaque collaborator that validates input,
// tokenizes cards, and reports completion through hooks.
package capability

import (
	"context"

	"github.com/quartzpay/nativebridge/internal/config"
)

// Token is the result of a successful card tokenization. Only the token id
// and presentable card metadata leave the capability; the PAN never does.
type Token struct {
	ID    string
	Brand string
	Last4 string
}

// SubmitOutcome is the controller's verdict on a submit completion. The
// distinction between Halted and Failed is load-bearing: Halted means the
// controller deliberately stopped the capability from settling (the
// session-data path), and must never be reported as an error.
type SubmitOutcome int

const (
	OutcomeCompleted SubmitOutcome = iota
	OutcomeHalted
	OutcomeFailed
)

func (o SubmitOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeHalted:
		return "halted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CardOptions tunes the card component at init time.
type CardOptions struct {
	RequireCVC      bool
	AllowedNetworks []string
}

// WalletOptions tunes the wallet component at init time.
type WalletOptions struct {
	MerchantName   string
	AllowedMethods []string
}

// SheetRequest is the request data for launching the wallet payment sheet.
type SheetRequest struct {
	Amount   int64 // minor units
	Currency string
	Label    string
}

// Capability is implemented once per payment SDK target. Implementations
// must invoke completion hooks from at most one goroutine at a time and must
// stop invoking them once ctx is cancelled.
type Capability interface {
	// InitCardSession prepares the card component for the given session.
	InitCardSession(ctx context.Context, cfg config.SessionConfig, opts CardOptions) error

	// ValidateCard reports whether the current card input is complete and
	// well formed. It has no side effects.
	ValidateCard(ctx context.Context) (bool, error)

	// Tokenize exchanges the card input for a token, invoking done exactly
	// once with either a token or an error.
	Tokenize(ctx context.Context, done func(Token, error))

	// Submit starts a payment submission. When the SDK has session data
	// ready it invokes complete; the returned outcome tells the SDK whether
	// to settle (Completed), stop without settling (Halted), or record a
	// failure (Failed). complete receives a non-nil error when the
	// submission itself failed before session data was available.
	Submit(ctx context.Context, complete func(sessionData string, err error) SubmitOutcome)

	// InitWalletSession prepares the wallet component for the given session.
	InitWalletSession(ctx context.Context, cfg config.SessionConfig, opts WalletOptions) error

	// WalletAvailable reports whether the wallet method is usable here.
	WalletAvailable(ctx context.Context) (bool, error)

	// LaunchWalletSheet opens the wallet payment sheet and invokes done
	// exactly once with the payment id or an error.
	LaunchWalletSheet(ctx context.Context, req SheetRequest, done func(paymentID string, err error))
}
