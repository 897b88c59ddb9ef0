package controller

import (
	"log"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/config"
	"github.com/quartzpay/nativebridge/internal/envelope"
)

// Wallet owns the Google Pay component of one session.
type Wallet struct {
	m       *machine
	cap     capability.Capability
	emit    Emitter
	logger  *log.Logger
	session string
}

// NewWallet builds an uninitialized wallet controller.
func NewWallet(cap capability.Capability, emit Emitter, logger *log.Logger, session string) *Wallet {
	return &Wallet{m: newMachine(), cap: cap, emit: emit, logger: logger, session: session}
}

// State reports the current lifecycle state.
func (w *Wallet) State() State { return w.m.State() }

// Init prepares the wallet component with the given session config.
func (w *Wallet) Init(cfg config.SessionConfig, opts capability.WalletOptions) error {
	if err := w.m.beginInit(); err != nil {
		return err
	}
	w.logger.Printf("[Wallet Controller %s] initializing: %s", w.session, cfg.Redacted())
	if err := cfg.Validate(); err != nil {
		return w.m.finishInit(bridgeerr.InitError("%v", err))
	}
	err := guard(func() error {
		return w.cap.InitWalletSession(w.m.background(), cfg, opts)
	})
	if err := w.m.finishInit(err); err != nil {
		w.logger.Printf("[Wallet Controller %s] init failed: %v", w.session, err)
		return err
	}
	w.logger.Printf("[Wallet Controller %s] ready", w.session)
	return nil
}

// Available asks the capability whether the wallet method is usable on this
// device. The result is returned inline.
func (w *Wallet) Available() (bool, error) {
	if err := w.m.beginOp(StateValidating); err != nil {
		return false, err
	}
	defer w.m.endOp()
	var available bool
	err := guard(func() error {
		var err error
		available, err = w.cap.WalletAvailable(w.m.background())
		return err
	})
	if err != nil {
		return false, bridgeerr.From(err)
	}
	w.logger.Printf("[Wallet Controller %s] availability: %v", w.session, available)
	return available, nil
}

// LaunchSheet starts the wallet payment sheet. The returned launch function
// starts the background work after the acknowledgement is enqueued.
func (w *Wallet) LaunchSheet(req capability.SheetRequest) (func(), error) {
	if err := w.m.beginOp(StateSubmitting); err != nil {
		return nil, err
	}
	ctx := w.m.background()
	launch := func() {
		w.cap.LaunchWalletSheet(ctx, req, func(paymentID string, err error) {
			defer w.m.endOp()
			if ctx.Err() != nil {
				w.logger.Printf("[Wallet Controller %s] discarding sheet result after dispose", w.session)
				return
			}
			if err != nil {
				w.logger.Printf("[Wallet Controller %s] sheet failed: %v", w.session, err)
				w.emit.Emit(envelope.EventPaymentError, envelope.EncodePaymentError(err))
				return
			}
			w.logger.Printf("[Wallet Controller %s] payment %s succeeded", w.session, paymentID)
			w.emit.Emit(envelope.EventPaymentSuccess, envelope.EncodePaymentSuccess(paymentID))
		})
	}
	return launch, nil
}

// Dispose is terminal and idempotent.
func (w *Wallet) Dispose() {
	if w.m.dispose() {
		w.logger.Printf("[Wallet Controller %s] disposed", w.session)
	}
}
