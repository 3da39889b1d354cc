// Package channel implements the delivery handlers for SMS, email, and web
// chat, plus the per-tenant factory that constructs and caches them.
package channel

import (
	"sync"

	"dealerlink/internal/domain"
)

// handlerBase holds the mutable per-handler configuration. Reads take the
// read lock because the factory may rotate credentials on a live handler.
type handlerBase struct {
	mu  sync.RWMutex
	cfg *domain.ChannelConfiguration
}

func newHandlerBase(cfg *domain.ChannelConfiguration) handlerBase {
	return handlerBase{cfg: cfg}
}

func (b *handlerBase) config() *domain.ChannelConfiguration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *handlerBase) update(cfg *domain.ChannelConfiguration) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
}
