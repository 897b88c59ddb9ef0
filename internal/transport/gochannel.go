package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
	"github.com/quartzpay/nativebridge/internal/envelope"
)

const frameBuffer = 64

// SessionChannel is the in-process Channel implementation, backed by a
// watermill gochannel Pub/Sub with one topic per direction.
type SessionChannel struct {
	name      string
	pubSub    *gochannel.GoChannel
	callTopic string
	outTopic  string

	sendMu sync.Mutex
	emitMu sync.Mutex

	calls   chan envelope.Frame
	inbound chan envelope.Frame

	closeOnce sync.Once
	closedMu  sync.Mutex
	closed    bool
	forwardWg sync.WaitGroup

	logger *log.Logger
}

// NewSessionChannel opens the conduit for one session. The watermill logger
// is separate from the application logger so pub/sub internals can be
// silenced independently.
func NewSessionChannel(sessionID string, logger *log.Logger, wmLogger watermill.LoggerAdapter) (*SessionChannel, error) {
	if wmLogger == nil {
		wmLogger = watermill.NopLogger{}
	}
	c := &SessionChannel{
		name:      sessionID,
		pubSub:    gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: frameBuffer}, wmLogger),
		callTopic: fmt.Sprintf("bridge.%s.calls", sessionID),
		outTopic:  fmt.Sprintf("bridge.%s.out", sessionID),
		calls:     make(chan envelope.Frame, frameBuffer),
		inbound:   make(chan envelope.Frame, frameBuffer),
		logger:    logger,
	}

	callMsgs, err := c.pubSub.Subscribe(context.Background(), c.callTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.callTopic, err)
	}
	outMsgs, err := c.pubSub.Subscribe(context.Background(), c.outTopic)
	if err != nil {
		_ = c.pubSub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.outTopic, err)
	}

	c.forwardWg.Add(2)
	go c.forward(callMsgs, c.calls)
	go c.forward(outMsgs, c.inbound)

	return c, nil
}

func (c *SessionChannel) Name() string { return c.name }

func (c *SessionChannel) SendCall(ctx context.Context, f envelope.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.publish(ctx, c.callTopic, f)
}

func (c *SessionChannel) Emit(ctx context.Context, f envelope.Frame) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	return c.publish(ctx, c.outTopic, f)
}

func (c *SessionChannel) Inbound() <-chan envelope.Frame { return c.inbound }

func (c *SessionChannel) Calls() <-chan envelope.Frame { return c.calls }

// Close is idempotent. It closes the pub/sub, which ends both forwarders,
// and then closes the outbound frame channels.
func (c *SessionChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()
		_ = c.pubSub.Close()
		go func() {
			c.forwardWg.Wait()
			close(c.calls)
			close(c.inbound)
		}()
	})
	return nil
}

func (c *SessionChannel) publish(ctx context.Context, topic string, f envelope.Frame) error {
	c.closedMu.Lock()
	closed := c.closed
	c.closedMu.Unlock()
	if closed {
		return bridgeerr.Transport("channel %s is closed", c.name)
	}
	if err := ctx.Err(); err != nil {
		return bridgeerr.Transport("channel %s: %v", c.name, err)
	}

	payload, err := envelope.Marshal(f)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(f.Kind))
	msg.Metadata.Set("name", f.Name)
	if err := c.pubSub.Publish(topic, msg); err != nil {
		return bridgeerr.Transport("publish %s: %v", topic, err)
	}
	return nil
}

func (c *SessionChannel) forward(msgs <-chan *message.Message, out chan<- envelope.Frame) {
	defer c.forwardWg.Done()
	for msg := range msgs {
		f, err := envelope.Unmarshal(msg.Payload)
		if err != nil {
			if c.logger != nil {
				c.logger.Printf("[Channel %s] dropping malformed frame %s: %v", c.name, msg.UUID, err)
			}
			msg.Ack()
			continue
		}
		out <- f
		msg.Ack()
	}
}
