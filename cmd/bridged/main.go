package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/quartzpay/nativebridge/internal/bridge"
	"github.com/quartzpay/nativebridge/internal/capability"
	appconfig "github.com/quartzpay/nativebridge/internal/config"
	"github.com/quartzpay/nativebridge/internal/envelope"
	"github.com/quartzpay/nativebridge/internal/events"
	"github.com/quartzpay/nativebridge/internal/host"
	"github.com/quartzpay/nativebridge/internal/telemetry"
	"github.com/quartzpay/nativebridge/internal/transport"
)

func newLogger(cfg appconfig.Config) *log.Logger {
	prefix := ""
	if cfg.ServiceName != "" {
		prefix = fmt.Sprintf("[%s] ", cfg.ServiceName)
	}
	logger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	log.SetFlags(logger.Flags())
	log.SetPrefix(prefix)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config) {
	var cleanup func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c, err := telemetry.InitTracer(cfg.ServiceName)
			if err != nil {
				return err
			}
			cleanup = c
			return nil
		},
		OnStop: func(context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})
}

// newKafkaProducer constructs the shared outcome producer and binds its
// lifecycle to Fx. A nil producer (no brokers configured) is valid; the host
// then skips outcome publishing.
func newKafkaProducer(cfg appconfig.Config, lc fx.Lifecycle, logger *log.Logger) *events.Producer {
	prod := events.NewProducer(cfg.Kafka.Brokers)
	if prod == nil {
		logger.Printf("Kafka outcome publishing disabled: no brokers configured")
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return prod.Close()
		},
	})
	return prod
}

// newCapability selects the payment capability once at startup and wraps it
// with the circuit breaker.
func newCapability(cfg appconfig.Config, logger *log.Logger) (capability.Capability, error) {
	switch cfg.Capability.Kind {
	case "stripe":
		logger.Printf("Using Stripe capability")
		return capability.WithBreaker(capability.NewStripe(cfg.Capability.StripeAPIKey), cfg.ServiceName), nil
	case "sandbox":
		logger.Printf("Using sandbox capability")
		return capability.WithBreaker(capability.NewSandbox(), cfg.ServiceName), nil
	default:
		return nil, fmt.Errorf("unknown capability %q", cfg.Capability.Kind)
	}
}

// session bundles one channel with its native host and front-end client.
type session struct {
	id     string
	ch     *transport.SessionChannel
	host   *host.Host
	bridge *bridge.Bridge
}

func newSession(cfg appconfig.Config, cap capability.Capability, prod *events.Producer, logger *log.Logger, lc fx.Lifecycle) (*session, error) {
	id := uuid.NewString()
	ch, err := transport.NewSessionChannel(id, logger, watermill.NewStdLogger(false, false))
	if err != nil {
		return nil, err
	}
	h := host.New(ch, cap, logger, host.WithProducer(prod, cfg.Kafka.OutcomesTopic))
	b := bridge.New(id, ch, logger, bridge.WithResultTimeout(cfg.Bridge.ResultTimeout))
	s := &session{id: id, ch: ch, host: h, bridge: b}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			h.Start()
			b.Initialize()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = b.Dispose(ctx)
			return h.Close()
		},
	})
	return s, nil
}

// runDemoFlow exercises one full card checkout against the configured
// capability: init, validate, tokenize, then surface session data.
func runDemoFlow(s *session, cfg appconfig.Config, logger *log.Logger, lc fx.Lifecycle, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := demoFlow(context.Background(), s, cfg, logger); err != nil {
					logger.Printf("demo flow failed: %v", err)
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

func demoFlow(ctx context.Context, s *session, cfg appconfig.Config, logger *log.Logger) error {
	done := make(chan struct{}, 4)

	s.bridge.OnCardTokenized(func(ev envelope.TokenizedEvent) {
		logger.Printf("card tokenized: %s (%s **** %s)", ev.Token, ev.Brand, ev.Last4)
		done <- struct{}{}
	})
	s.bridge.OnSessionDataReady(func(ev envelope.SessionDataEvent) {
		logger.Printf("session data ready (%d bytes)", len(ev.SessionData))
		done <- struct{}{}
	})
	s.bridge.OnPaymentError(func(ev envelope.PaymentErrorEvent) {
		logger.Printf("payment error: %s: %s", ev.Code, ev.Message)
		done <- struct{}{}
	})

	if err := s.bridge.InitCardView(ctx, cfg.Session, capability.CardOptions{RequireCVC: true}); err != nil {
		return fmt.Errorf("init card view: %w", err)
	}
	complete, err := s.bridge.ValidateCard(ctx)
	if err != nil {
		return fmt.Errorf("validate card: %w", err)
	}
	logger.Printf("card input complete: %v", complete)

	if err := s.bridge.TokenizeCard(ctx); err != nil {
		return fmt.Errorf("tokenize card: %w", err)
	}
	<-done

	if err := s.bridge.GetSessionData(ctx); err != nil {
		return fmt.Errorf("get session data: %w", err)
	}
	<-done
	return nil
}

func main() {
	_ = godotenv.Load()

	app := fx.New(
		fx.Provide(
			appconfig.Load,
			newLogger,
			newKafkaProducer,
			newCapability,
			newSession,
		),
		fx.Invoke(
			func(logger *log.Logger, cfg appconfig.Config) {
				logger.Printf("Starting %s...", cfg.ServiceName)
			},
			setupTelemetry,
			runDemoFlow,
		),
	)

	app.Run()
}
