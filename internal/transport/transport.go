// Package transport carries bridge frames between the front end and the
// native host. One Channel is one session's bidirectional named conduit:
// calls flow front-to-native, results and events flow native-to-front,
// multiplexed over the same underlying pub/sub.
package transport

import (
	"context"

	"github.com/quartzpay/nativebridge/internal/envelope"
)

// Channel is the session conduit. Writes on each direction are serialized by
// the implementation (a single writer at a time); reads may happen
// concurrently with writes. Delivery order within a direction is FIFO.
type Channel interface {
	// Name identifies the channel (the session id).
	Name() string

	// SendCall delivers a call frame to the native side.
	SendCall(ctx context.Context, f envelope.Frame) error

	// Inbound yields result and event frames for the front end, in emission
	// order. The channel is closed when the Channel closes.
	Inbound() <-chan envelope.Frame

	// Calls yields call frames for the native side, in send order. The
	// channel is closed when the Channel closes.
	Calls() <-chan envelope.Frame

	// Emit delivers a result or event frame to the front end.
	Emit(ctx context.Context, f envelope.Frame) error

	// Close tears the conduit down. Idempotent; sends after Close fail with
	// a transport error.
	Close() error
}
