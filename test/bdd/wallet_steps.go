package bdd

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/quartzpay/nativebridge/internal/capability"
)

func (w *BridgeWorld) registerWalletSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the wallet is not available on this device$`, w.walletNotAvailable)
	sc.Step(`^a wallet session is initialized$`, w.walletSessionInitialized)
	sc.Step(`^the front end checks wallet availability$`, w.frontEndChecksAvailability)
	sc.Step(`^the availability answer is (true|false)$`, w.availabilityAnswerIs)
	sc.Step(`^the front end launches the payment sheet for (\d+) "([^"]*)"$`, w.frontEndLaunchesSheet)
	sc.Step(`^a paymentSuccess event is delivered$`, w.paymentSuccessDelivered)
}

func (w *BridgeWorld) walletNotAvailable() error {
	w.sandboxOpts = append(w.sandboxOpts, capability.WithWalletAvailable(false))
	return nil
}

func (w *BridgeWorld) walletSessionInitialized() error {
	if err := w.stack(); err != nil {
		return err
	}
	return w.bridge.InitGooglePay(context.Background(), w.sessionConfig(), capability.WalletOptions{
		MerchantName: "BDD Shop",
	})
}

func (w *BridgeWorld) frontEndChecksAvailability() error {
	if err := w.stack(); err != nil {
		return err
	}
	available, err := w.bridge.CheckGooglePayAvailability(context.Background())
	w.lastErr = err
	w.lastAvailability = available
	return nil
}

func (w *BridgeWorld) availabilityAnswerIs(want string) error {
	if w.lastErr != nil {
		return fmt.Errorf("availability check failed: %w", w.lastErr)
	}
	if got := fmt.Sprintf("%v", w.lastAvailability); got != want {
		return fmt.Errorf("availability %s, expected %s", got, want)
	}
	return nil
}

func (w *BridgeWorld) frontEndLaunchesSheet(amount int, currency string) error {
	if err := w.stack(); err != nil {
		return err
	}
	w.lastErr = w.bridge.LaunchGooglePaySheet(context.Background(), capability.SheetRequest{
		Amount:   int64(amount),
		Currency: currency,
		Label:    "BDD order",
	})
	return nil
}

func (w *BridgeWorld) paymentSuccessDelivered() error {
	_, err := awaitEvent(w.successes, "paymentSuccess")
	return err
}
