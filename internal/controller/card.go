package controller

import (
	"log"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/capability"
	"github.com/quartzpay/nativebridge/internal/config"
	"github.com/quartzpay/nativebridge/internal/envelope"
)

// Card owns the card-input component of one session.
type Card struct {
	m       *machine
	cap     capability.Capability
	emit    Emitter
	logger  *log.Logger
	session string
}

// NewCard builds an uninitialized card controller.
func NewCard(cap capability.Capability, emit Emitter, logger *log.Logger, session string) *Card {
	return &Card{m: newMachine(), cap: cap, emit: emit, logger: logger, session: session}
}

// State reports the current lifecycle state.
func (c *Card) State() State { return c.m.State() }

// Init prepares the card component with the given session config. The
// config is validated before the capability sees it; a capability that is
// never invoked for a doomed call is part of the contract.
func (c *Card) Init(cfg config.SessionConfig, opts capability.CardOptions) error {
	if err := c.m.beginInit(); err != nil {
		return err
	}
	c.logger.Printf("[Card Controller %s] initializing: %s", c.session, cfg.Redacted())
	if err := cfg.Validate(); err != nil {
		return c.m.finishInit(bridgeerr.InitError("%v", err))
	}
	err := guard(func() error {
		return c.cap.InitCardSession(c.m.background(), cfg, opts)
	})
	if err := c.m.finishInit(err); err != nil {
		c.logger.Printf("[Card Controller %s] init failed: %v", c.session, err)
		return err
	}
	c.logger.Printf("[Card Controller %s] ready", c.session)
	return nil
}

// Validate asks the capability whether the card input is complete. The
// result is returned inline; there is no state-visible side effect.
func (c *Card) Validate() (bool, error) {
	if err := c.m.beginOp(StateValidating); err != nil {
		return false, err
	}
	defer c.m.endOp()
	var complete bool
	err := guard(func() error {
		var err error
		complete, err = c.cap.ValidateCard(c.m.background())
		return err
	})
	if err != nil {
		return false, bridgeerr.From(err)
	}
	c.logger.Printf("[Card Controller %s] validate: complete=%v", c.session, complete)
	return complete, nil
}

// Tokenize starts card tokenization. The returned launch function starts
// the background work; the host invokes it after the acknowledgement frame
// is enqueued, so the ack always precedes the authoritative event.
func (c *Card) Tokenize() (func(), error) {
	if err := c.m.beginOp(StateSubmitting); err != nil {
		return nil, err
	}
	ctx := c.m.background()
	launch := func() {
		c.cap.Tokenize(ctx, func(t capability.Token, err error) {
			defer c.m.endOp()
			if ctx.Err() != nil {
				c.logger.Printf("[Card Controller %s] discarding tokenize result after dispose", c.session)
				return
			}
			if err != nil {
				c.logger.Printf("[Card Controller %s] tokenize failed: %v", c.session, err)
				c.emit.Emit(envelope.EventPaymentError, envelope.EncodePaymentError(err))
				return
			}
			c.logger.Printf("[Card Controller %s] tokenized %s (%s **** %s)", c.session, t.ID, t.Brand, t.Last4)
			c.emit.Emit(envelope.EventCardTokenized, envelope.EncodeTokenized(t))
		})
	}
	return launch, nil
}

// GetSessionData starts a submit whose only purpose is to surface the raw
// session data. When the completion hook fires, the session data is
// forwarded as an event and the capability is told Halted so it never
// auto-advances to settlement. Halted is an intentional non-completion, not
// a failure; only real failures reach the paymentError channel.
func (c *Card) GetSessionData() (func(), error) {
	if err := c.m.beginOp(StateSubmitting); err != nil {
		return nil, err
	}
	ctx := c.m.background()
	launch := func() {
		c.cap.Submit(ctx, func(sessionData string, err error) capability.SubmitOutcome {
			defer c.m.endOp()
			if ctx.Err() != nil {
				c.logger.Printf("[Card Controller %s] discarding submit result after dispose", c.session)
				return capability.OutcomeFailed
			}
			if err != nil {
				c.logger.Printf("[Card Controller %s] submit failed: %v", c.session, err)
				c.emit.Emit(envelope.EventPaymentError, envelope.EncodePaymentError(err))
				return capability.OutcomeFailed
			}
			c.logger.Printf("[Card Controller %s] session data ready (%d bytes), halting settlement", c.session, len(sessionData))
			c.emit.Emit(envelope.EventSessionDataReady, envelope.EncodeSessionData(sessionData))
			return capability.OutcomeHalted
		})
	}
	return launch, nil
}

// Dispose is terminal and idempotent. In-flight background work is
// cancelled; anything it still produces is discarded.
func (c *Card) Dispose() {
	if c.m.dispose() {
		c.logger.Printf("[Card Controller %s] disposed", c.session)
	}
}
