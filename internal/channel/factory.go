package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"dealerlink/internal/domain"
)

// FactoryDeps bundles the shared collaborators injected into every handler
// the factory creates.
type FactoryDeps struct {
	Configs domain.ConfigStore
	Context domain.ContextStore
	Offline domain.OfflineMessageStore
	Journal domain.StatusJournal
	Pub     Publisher
	Client  *http.Client
	Logger  *slog.Logger
}

// constructor builds a handler for one channel from a tenant configuration.
type constructor func(cfg *domain.ChannelConfiguration, deps FactoryDeps) domain.ChannelHandler

// cacheEntry pairs a live handler with its last-use timestamp for idle
// eviction.
type cacheEntry struct {
	handler  domain.ChannelHandler
	lastUsed time.Time
}

// Factory creates and caches channel handlers per dealership. Handlers are
// stateful (live websocket sessions, pooled transports), so repeated lookups
// for the same dealership and channel must return the same instance.
type Factory struct {
	deps         FactoryDeps
	logger       *slog.Logger
	constructors map[domain.ChannelType]constructor

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

func NewFactory(deps FactoryDeps) *Factory {
	if deps.Client == nil {
		deps.Client = SharedHTTPClient(0)
	}
	f := &Factory{
		deps:   deps,
		logger: deps.Logger,
		cache:  make(map[string]*cacheEntry),
	}
	f.constructors = map[domain.ChannelType]constructor{
		domain.ChannelSMS: func(cfg *domain.ChannelConfiguration, d FactoryDeps) domain.ChannelHandler {
			return NewSMS(cfg, SMSDeps{Client: d.Client, Journal: d.Journal, Store: d.Context, Pub: d.Pub, Logger: d.Logger})
		},
		domain.ChannelEmail: func(cfg *domain.ChannelConfiguration, d FactoryDeps) domain.ChannelHandler {
			return NewEmail(cfg, EmailDeps{Journal: d.Journal, Pub: d.Pub, Logger: d.Logger})
		},
		domain.ChannelWebChat: func(cfg *domain.ChannelConfiguration, d FactoryDeps) domain.ChannelHandler {
			return NewWebChat(cfg, WebChatDeps{Store: d.Offline, Journal: d.Journal, Pub: d.Pub, Logger: d.Logger})
		},
	}
	return f
}

func cacheKey(dealershipID string, channel domain.ChannelType) string {
	return dealershipID + ":" + string(channel)
}

// GetChannelHandler returns the cached handler for a dealership and channel,
// creating it on first use. A misconfigured or unknown combination yields nil;
// callers treat nil as "channel unavailable", never as a crash.
func (f *Factory) GetChannelHandler(dealershipID string, channel domain.ChannelType) domain.ChannelHandler {
	key := cacheKey(dealershipID, channel)

	// Fast path: read lock.
	f.mu.RLock()
	if entry, ok := f.cache[key]; ok {
		f.mu.RUnlock()
		f.touch(key)
		return entry.handler
	}
	f.mu.RUnlock()

	// Slow path: write lock with double-check.
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.cache[key]; ok {
		entry.lastUsed = time.Now()
		return entry.handler
	}

	handler, err := f.build(dealershipID, channel)
	if err != nil {
		f.logger.Error("cannot create channel handler",
			"dealership", dealershipID, "channel", channel, "err", err)
		return nil
	}
	f.cache[key] = &cacheEntry{handler: handler, lastUsed: time.Now()}
	f.logger.Info("channel handler created", "dealership", dealershipID, "channel", channel)
	return handler
}

func (f *Factory) build(dealershipID string, channel domain.ChannelType) (domain.ChannelHandler, error) {
	ctor, ok := f.constructors[channel]
	if !ok {
		return nil, fmt.Errorf("unsupported channel type: %s", channel)
	}
	cfg, err := f.deps.Configs.GetChannelConfiguration(context.Background(), dealershipID, channel)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return ctor(cfg, f.deps), nil
}

func (f *Factory) touch(key string) {
	f.mu.Lock()
	if entry, ok := f.cache[key]; ok {
		entry.lastUsed = time.Now()
	}
	f.mu.Unlock()
}

// RefreshChannelHandler drops the cached handler so the next lookup rebuilds
// it from current configuration. Returns the fresh handler, nil if the new
// configuration is unusable.
func (f *Factory) RefreshChannelHandler(dealershipID string, channel domain.ChannelType) domain.ChannelHandler {
	key := cacheKey(dealershipID, channel)
	f.mu.Lock()
	delete(f.cache, key)
	f.mu.Unlock()
	return f.GetChannelHandler(dealershipID, channel)
}

// UpdateChannelConfiguration pushes rotated credentials or settings into a
// live handler without dropping its state (websocket sessions stay up). If no
// handler is cached yet there is nothing to do; the next lookup reads current
// configuration anyway.
func (f *Factory) UpdateChannelConfiguration(dealershipID string, channel domain.ChannelType) error {
	cfg, err := f.deps.Configs.GetChannelConfiguration(context.Background(), dealershipID, channel)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	f.mu.RLock()
	entry, ok := f.cache[cacheKey(dealershipID, channel)]
	f.mu.RUnlock()
	if ok {
		entry.handler.UpdateConfiguration(cfg)
		f.logger.Info("channel handler reconfigured", "dealership", dealershipID, "channel", channel)
	}
	return nil
}

// AvailableChannels lists the channel types this factory can construct.
func (f *Factory) AvailableChannels() []domain.ChannelType {
	channels := make([]domain.ChannelType, 0, len(f.constructors))
	for ct := range f.constructors {
		channels = append(channels, ct)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// HandlerCounts reports cached handlers per channel type, for the status
// command and the metrics endpoint.
func (f *Factory) HandlerCounts() map[domain.ChannelType]int {
	counts := make(map[domain.ChannelType]int)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, entry := range f.cache {
		counts[entry.handler.GetChannelInfo().Channel]++
	}
	return counts
}

// EvictIdle drops handlers unused for longer than maxIdle and reports how
// many were removed. WebChat handlers with live sessions are kept regardless.
func (f *Factory) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cache {
		if entry.lastUsed.After(cutoff) {
			continue
		}
		if wc, ok := entry.handler.(*WebChat); ok && wc.SessionCount() > 0 {
			continue
		}
		delete(f.cache, key)
		evicted++
	}
	if evicted > 0 {
		f.logger.Info("evicted idle channel handlers", "count", evicted)
	}
	return evicted
}
