package config

import (
	"context"
	"fmt"
	"sync"

	"dealerlink/internal/domain"
)

// Store resolves per-tenant channel configuration from the loaded config
// tree, merging platform defaults with tenant overrides. It implements
// domain.ConfigStore and stands in for an external secret store.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// Reload swaps the backing config, e.g. after credential rotation.
func (s *Store) Reload(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// GetChannelConfiguration resolves the configuration for one (dealership,
// channel) pair. Settings are platform defaults overlaid with tenant values;
// credentials come from the tenant entry only.
func (s *Store) GetChannelConfiguration(ctx context.Context, dealershipID string, channel domain.ChannelType) (*domain.ChannelConfiguration, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	tenant, ok := cfg.Tenants[dealershipID]
	if !ok {
		return nil, fmt.Errorf("unknown dealership: %s", dealershipID)
	}
	tc, ok := tenant.Channels[string(channel)]
	if !ok {
		return nil, fmt.Errorf("dealership %s has no %s channel configured", dealershipID, channel)
	}
	if !tc.Enabled {
		return nil, fmt.Errorf("dealership %s: %s channel is disabled", dealershipID, channel)
	}

	settings := make(map[string]string)
	for k, v := range cfg.Channels.Defaults[string(channel)] {
		settings[k] = v
	}
	for k, v := range tc.Settings {
		settings[k] = v
	}

	creds := make(map[string]string, len(tc.Credentials))
	for k, v := range tc.Credentials {
		creds[k] = v
	}

	return &domain.ChannelConfiguration{
		DealershipID: dealershipID,
		Channel:      channel,
		Credentials:  creds,
		Settings:     settings,
	}, nil
}
