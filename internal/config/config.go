package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for DealerLink.
type Config struct {
	General  GeneralConfig           `json:"general" yaml:"general"`
	Channels ChannelsConfig          `json:"channels" yaml:"channels"`
	Storage  StorageConfig           `json:"storage" yaml:"storage"`
	Metrics  MetricsConfig           `json:"metrics" yaml:"metrics"`
	Gateway  GatewayConfig           `json:"gateway" yaml:"gateway"`
	Tenants  map[string]TenantConfig `json:"tenants" yaml:"tenants"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	AdminHost string `json:"adminHost" yaml:"adminHost"`
	AdminPort int    `json:"adminPort" yaml:"adminPort"`
}

// ChannelsConfig holds platform-wide channel behavior plus per-channel default
// settings. Tenant settings override these defaults key by key.
type ChannelsConfig struct {
	SendTimeoutSeconds int                          `json:"sendTimeoutSeconds" yaml:"sendTimeoutSeconds"`
	WebhookPort        int                          `json:"webhookPort" yaml:"webhookPort"`
	WebChatPort        int                          `json:"webchatPort" yaml:"webchatPort"`
	Defaults           map[string]map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

type StorageConfig struct {
	DBPath string `json:"dbPath" yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// GatewayConfig points at the conversation system that receives routed
// replies and delivery records. An empty URL keeps routing local (decisions
// are logged only), which is the single-box default.
type GatewayConfig struct {
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	AuthToken string `json:"authToken,omitempty" yaml:"authToken,omitempty"`
}

// TenantConfig is one dealership's channel configuration.
type TenantConfig struct {
	Name     string                         `json:"name,omitempty" yaml:"name,omitempty"`
	Channels map[string]TenantChannelConfig `json:"channels" yaml:"channels"`
}

// TenantChannelConfig configures one (dealership, channel) pair. Credentials
// are provider secrets; Settings are business configuration (signatures,
// business hours, template names, limits).
type TenantChannelConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Credentials map[string]string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Settings    map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.dealerlink).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dealerlink"
	}
	return filepath.Join(home, ".dealerlink")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (JSON or YAML, by extension), expands environment
// variables, applies defaults, and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.AdminPort < 0 || cfg.General.AdminPort > 65535 {
		errs = append(errs, "general.adminPort must be between 0 and 65535")
	}
	if cfg.Channels.WebhookPort < 0 || cfg.Channels.WebhookPort > 65535 {
		errs = append(errs, "channels.webhookPort must be between 0 and 65535")
	}
	if cfg.Channels.WebChatPort < 0 || cfg.Channels.WebChatPort > 65535 {
		errs = append(errs, "channels.webchatPort must be between 0 and 65535")
	}
	if cfg.Channels.SendTimeoutSeconds < 1 {
		errs = append(errs, "channels.sendTimeoutSeconds must be >= 1")
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.dbPath is required")
	}

	for name := range cfg.Channels.Defaults {
		switch name {
		case "sms", "email", "webchat":
			// valid
		default:
			errs = append(errs, fmt.Sprintf("channels.defaults.%s: unknown channel", name))
		}
	}

	for tenantID, tc := range cfg.Tenants {
		for name := range tc.Channels {
			switch name {
			case "sms", "email", "webchat":
				// valid
			default:
				errs = append(errs, fmt.Sprintf("tenants.%s.channels.%s: unknown channel", tenantID, name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
