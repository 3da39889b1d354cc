// Package bus carries normalized inbound customer replies from channel
// handlers to the routing pipeline.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"dealerlink/internal/domain"
)

const publishTimeout = 10 * time.Second

// InboundBus is a Go-channel based queue for in-process inbound traffic.
type InboundBus struct {
	inbound chan domain.InboundReply
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a bus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InboundBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InboundBus{
		inbound: make(chan domain.InboundReply, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues a reply. Blocks up to 10 seconds if the bus is full
// instead of dropping; a drop after that is logged, never surfaced to the
// provider webhook.
func (b *InboundBus) Publish(reply domain.InboundReply) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- reply:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel", reply.Channel, "dealership", reply.DealershipID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- reply:
			b.logger.Info("reply delivered after wait", "channel", reply.Channel)
		case <-timer.C:
			b.logger.Error("reply dropped: bus full for 10s",
				"channel", reply.Channel,
				"dealership", reply.DealershipID,
			)
		}
	}
}

func (b *InboundBus) Subscribe() <-chan domain.InboundReply {
	return b.inbound
}

func (b *InboundBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
