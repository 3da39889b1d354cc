package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			AdminHost: "127.0.0.1",
			AdminPort: 8090,
		},
		Channels: ChannelsConfig{
			SendTimeoutSeconds: 30,
			WebhookPort:        9090,
			WebChatPort:        8081,
			Defaults: map[string]map[string]string{
				"sms": {
					"signature":     "",
					"urgentPrefix":  "\U0001F6A8 URGENT: ",
					"highPrefix":    "⚠️ ",
					"statusWebhook": "/webhook/sms/status",
				},
				"email": {
					"fromName":       "Customer Care",
					"subjectDefault": "A message from your dealership",
				},
				"webchat": {
					"businessHours": "", // "HH:MM-HH:MM", empty = always open
				},
			},
		},
		Storage: StorageConfig{
			DBPath: "~/.dealerlink/dealerlink.db",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Tenants: map[string]TenantConfig{},
	}
}
