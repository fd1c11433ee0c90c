// Package bus provides event bus implementations for Kestrel.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// New creates an event bus from configuration.
// "channel" is the in-process Community bus; "nats" is the Pro bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Respond answers a request message received by a subscription handler.
func Respond(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	if msg.Reply == "" {
		return fmt.Errorf("message %s expects no reply", msg.ID)
	}
	return b.Publish(ctx, msg.Reply, payload)
}
