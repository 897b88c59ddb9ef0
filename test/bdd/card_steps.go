package bdd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/quartzpay/nativebridge/internal/capability"
)

func (w *BridgeWorld) registerCardSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the provider will decline tokenization with "([^"]*)"$`, w.providerDeclinesTokenization)
	sc.Step(`^the provider holds session data "([^"]*)"$`, w.providerHoldsSessionData)
	sc.Step(`^the provider responds after (\d+)ms$`, w.providerRespondsAfter)
	sc.Step(`^a card session is initialized$`, w.cardSessionInitialized)
	sc.Step(`^the front end requests tokenization$`, w.frontEndRequestsTokenization)
	sc.Step(`^the front end requests session data$`, w.frontEndRequestsSessionData)
	sc.Step(`^the front end validates the card$`, w.frontEndValidatesCard)
	sc.Step(`^a cardTokenized event is delivered with token "([^"]*)"$`, w.cardTokenizedDelivered)
	sc.Step(`^the card brand is "([^"]*)" ending in "([^"]*)"$`, w.cardBrandIs)
	sc.Step(`^a sessionDataReady event is delivered with data "([^"]*)"$`, w.sessionDataDelivered)
	sc.Step(`^a paymentError event is delivered with code "([^"]*)"$`, w.paymentErrorDelivered)
	sc.Step(`^no payment is settled$`, w.noPaymentSettled)
	sc.Step(`^no paymentSuccess event is delivered$`, w.noPaymentSuccessDelivered)
	sc.Step(`^the provider was never invoked$`, w.providerNeverInvoked)
}

func (w *BridgeWorld) providerDeclinesTokenization(message string) error {
	w.sandboxOpts = append(w.sandboxOpts, capability.WithTokenizeError(errors.New(message)))
	return nil
}

func (w *BridgeWorld) providerHoldsSessionData(data string) error {
	w.sandboxOpts = append(w.sandboxOpts, capability.WithSessionData(data))
	return nil
}

func (w *BridgeWorld) providerRespondsAfter(ms int) error {
	w.sandboxOpts = append(w.sandboxOpts, capability.WithLatency(time.Duration(ms)*time.Millisecond))
	return nil
}

func (w *BridgeWorld) cardSessionInitialized() error {
	if err := w.stack(); err != nil {
		return err
	}
	return w.bridge.InitCardView(context.Background(), w.sessionConfig(), capability.CardOptions{RequireCVC: true})
}

func (w *BridgeWorld) frontEndRequestsTokenization() error {
	if err := w.stack(); err != nil {
		return err
	}
	w.lastErr = w.bridge.TokenizeCard(context.Background())
	return nil
}

func (w *BridgeWorld) frontEndRequestsSessionData() error {
	if err := w.stack(); err != nil {
		return err
	}
	w.lastErr = w.bridge.GetSessionData(context.Background())
	return nil
}

func (w *BridgeWorld) frontEndValidatesCard() error {
	if err := w.stack(); err != nil {
		return err
	}
	_, w.lastErr = w.bridge.ValidateCard(context.Background())
	return nil
}

func (w *BridgeWorld) cardTokenizedDelivered(token string) error {
	ev, err := awaitEvent(w.tokenized, "cardTokenized")
	if err != nil {
		return err
	}
	if ev.Token != token {
		return fmt.Errorf("token %q, expected %q", ev.Token, token)
	}
	// keep for the brand assertion
	w.tokenized <- ev
	return nil
}

func (w *BridgeWorld) cardBrandIs(brand, last4 string) error {
	ev, err := awaitEvent(w.tokenized, "cardTokenized")
	if err != nil {
		return err
	}
	if ev.Brand != brand || ev.Last4 != last4 {
		return fmt.Errorf("card %s **** %s, expected %s **** %s", ev.Brand, ev.Last4, brand, last4)
	}
	return nil
}

func (w *BridgeWorld) sessionDataDelivered(data string) error {
	ev, err := awaitEvent(w.sessionData, "sessionDataReady")
	if err != nil {
		return err
	}
	if ev.SessionData != data {
		return fmt.Errorf("session data %q, expected %q", ev.SessionData, data)
	}
	return nil
}

func (w *BridgeWorld) paymentErrorDelivered(code string) error {
	ev, err := awaitEvent(w.failures, "paymentError")
	if err != nil {
		return err
	}
	if ev.Code != code {
		return fmt.Errorf("error code %q, expected %q", ev.Code, code)
	}
	return nil
}

func (w *BridgeWorld) noPaymentSettled() error {
	if w.sandbox.Settled() {
		return errors.New("provider settled the payment")
	}
	return nil
}

func (w *BridgeWorld) noPaymentSuccessDelivered() error {
	select {
	case ev := <-w.successes:
		return fmt.Errorf("unexpected paymentSuccess: %+v", ev)
	case <-time.After(150 * time.Millisecond):
		return nil
	}
}

func (w *BridgeWorld) providerNeverInvoked() error {
	for _, op := range []string{"validate", "tokenize", "submit"} {
		if n := w.sandbox.Count(op); n != 0 {
			return fmt.Errorf("provider op %s was invoked %d times", op, n)
		}
	}
	return nil
}
