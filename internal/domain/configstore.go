package domain

import "context"

// ChannelConfiguration is the resolved per-tenant, per-channel configuration:
// provider credentials plus merged settings. Never shared across dealerships.
type ChannelConfiguration struct {
	DealershipID string
	Channel      ChannelType
	Credentials  map[string]string
	Settings     map[string]string
}

// Credential returns the named credential, or "" when absent.
func (c *ChannelConfiguration) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// Setting returns the named setting, or def when absent.
func (c *ChannelConfiguration) Setting(key, def string) string {
	if c.Settings == nil {
		return def
	}
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// ConfigStore resolves per-tenant channel configuration from wherever
// credentials live. The factory is its only consumer.
type ConfigStore interface {
	GetChannelConfiguration(ctx context.Context, dealershipID string, channel ChannelType) (*ChannelConfiguration, error)
}
