package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"dealerlink/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// memJournal is an in-memory domain.StatusJournal.
type memJournal struct {
	mu       sync.Mutex
	statuses map[string]domain.DeliveryStatus
}

func newMemJournal() *memJournal {
	return &memJournal{statuses: make(map[string]domain.DeliveryStatus)}
}

func (j *memJournal) RecordStatus(ctx context.Context, externalID string, status domain.DeliveryStatus, errCode, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.statuses[externalID] = status
	return nil
}

func (j *memJournal) LookupStatus(ctx context.Context, externalID string) (domain.DeliveryStatus, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, ok := j.statuses[externalID]
	return s, ok, nil
}

// memContextStore is an in-memory domain.ContextStore covering the pieces the
// channel handlers touch.
type memContextStore struct {
	mu      sync.Mutex
	optOuts map[string]bool
}

func newMemContextStore() *memContextStore {
	return &memContextStore{optOuts: make(map[string]bool)}
}

func (m *memContextStore) GetCustomerContext(ctx context.Context, dealershipID, customerID string) (*domain.CustomerContext, error) {
	return &domain.CustomerContext{CustomerID: customerID, DealershipID: dealershipID}, nil
}

func (m *memContextStore) RecordInteraction(ctx context.Context, dealershipID, customerID, message string) error {
	return nil
}

func (m *memContextStore) RecordEscalation(ctx context.Context, dealershipID, customerID, reason string) error {
	return nil
}

func (m *memContextStore) SetOptOut(ctx context.Context, dealershipID, phone string, optedOut bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optOuts[dealershipID+":"+phone] = optedOut
	return nil
}

func (m *memContextStore) IsOptedOut(ctx context.Context, dealershipID, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.optOuts[dealershipID+":"+phone], nil
}

// memOffline is an in-memory domain.OfflineMessageStore.
type memOffline struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newMemOffline() *memOffline {
	return &memOffline{payloads: make(map[string][][]byte)}
}

func (m *memOffline) StoreOffline(ctx context.Context, dealershipID, sessionID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dealershipID + ":" + sessionID
	m.payloads[key] = append(m.payloads[key], payload)
	return nil
}

func (m *memOffline) DrainOffline(ctx context.Context, dealershipID, sessionID string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dealershipID + ":" + sessionID
	out := m.payloads[key]
	delete(m.payloads, key)
	return out, nil
}

func (m *memOffline) count(dealershipID, sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads[dealershipID+":"+sessionID])
}

// capturePub records published replies.
type capturePub struct {
	mu      sync.Mutex
	replies []domain.InboundReply
}

func (p *capturePub) Publish(reply domain.InboundReply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, reply)
}

func (p *capturePub) all() []domain.InboundReply {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.InboundReply, len(p.replies))
	copy(out, p.replies)
	return out
}

// memConfigStore is an in-memory domain.ConfigStore for factory tests.
type memConfigStore struct {
	mu      sync.Mutex
	configs map[string]*domain.ChannelConfiguration
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{configs: make(map[string]*domain.ChannelConfiguration)}
}

func (m *memConfigStore) put(cfg *domain.ChannelConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.DealershipID+":"+string(cfg.Channel)] = cfg
}

func (m *memConfigStore) GetChannelConfiguration(ctx context.Context, dealershipID string, channel domain.ChannelType) (*domain.ChannelConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[dealershipID+":"+string(channel)]
	if !ok {
		return nil, fmt.Errorf("no configuration for %s/%s", dealershipID, channel)
	}
	return cfg, nil
}

func smsConfig(dealershipID string, settings map[string]string) *domain.ChannelConfiguration {
	return &domain.ChannelConfiguration{
		DealershipID: dealershipID,
		Channel:      domain.ChannelSMS,
		Credentials: map[string]string{
			"accountSid": "AC0000000000000000",
			"authToken":  "secret-token-0000",
			"fromNumber": "+15550000001",
		},
		Settings: settings,
	}
}
