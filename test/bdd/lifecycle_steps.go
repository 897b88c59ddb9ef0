package bdd

import (
	"context"
	"errors"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
)

func (w *BridgeWorld) registerLifecycleSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the call fails with code "([^"]*)"$`, w.callFailsWithCode)
	sc.Step(`^the call succeeds$`, w.callSucceeds)
	sc.Step(`^the session is disposed$`, w.sessionDisposed)
}

func (w *BridgeWorld) callFailsWithCode(code string) error {
	if w.lastErr == nil {
		return fmt.Errorf("expected failure with code %s, call succeeded", code)
	}
	if got := string(bridgeerr.CodeOf(w.lastErr)); got != code {
		return fmt.Errorf("error code %s, expected %s (%v)", got, code, w.lastErr)
	}
	return nil
}

func (w *BridgeWorld) callSucceeds() error {
	if w.lastErr != nil {
		return fmt.Errorf("call failed: %w", w.lastErr)
	}
	return nil
}

func (w *BridgeWorld) sessionDisposed() error {
	if w.bridge == nil {
		return errors.New("no session to dispose")
	}
	return w.bridge.Dispose(context.Background())
}
