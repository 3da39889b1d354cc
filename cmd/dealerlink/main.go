package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerlink/internal/bus"
	"dealerlink/internal/channel"
	"dealerlink/internal/config"
	"dealerlink/internal/customer"
	"dealerlink/internal/domain"
	"dealerlink/internal/gateway"
	"dealerlink/internal/metrics"
	"dealerlink/internal/pipeline"
	"dealerlink/internal/routing"
	"dealerlink/internal/sentiment"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "dealerlink",
		Short: "DealerLink: omnichannel routing and delivery engine for dealerships",
		Long:  "DealerLink routes inbound customer messages to the right agent and delivers outbound messages over SMS, email, and web chat.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.dealerlink/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the routing and delivery engine",
		Long:  "Starts the webhook server, webchat endpoint, routing pipeline, and admin server. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := setupLogging(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := customer.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return fmt.Errorf("customer store: %w", err)
	}
	defer store.Close()

	inboundBus := bus.New(100, logger)
	configStore := config.NewStore(cfg)

	factory := channel.NewFactory(channel.FactoryDeps{
		Configs: configStore,
		Context: store,
		Offline: store,
		Journal: store,
		Pub:     inboundBus,
		Logger:  logger,
	})

	sendTimeout := time.Duration(cfg.Channels.SendTimeoutSeconds) * time.Second

	var gw domain.ConversationGateway
	if cfg.Gateway.URL != "" {
		gw = gateway.NewHTTP(cfg.Gateway.URL, cfg.Gateway.AuthToken, channel.SharedHTTPClient(15*time.Second), logger)
		logger.Info("conversation gateway enabled", "url", cfg.Gateway.URL)
	} else {
		gw = gateway.NewLogging(logger)
		logger.Info("no conversation gateway configured, logging decisions locally")
	}

	pipe := pipeline.New(
		sentiment.NewAnalyzer(logger),
		routing.NewEngine(logger),
		store,
		gw,
		logger,
		pipeline.Options{SendTimeout: sendTimeout},
	)
	go pipe.Run(ctx, inboundBus.Subscribe())

	webhooks := channel.NewWebhookServer(channel.WebhookServerConfig{
		Port:   cfg.Channels.WebhookPort,
		Logger: logger,
	}, factory)
	go func() {
		if err := webhooks.Start(ctx); err != nil {
			logger.Error("webhook server error", "err", err)
		}
	}()

	// Idle handlers go away after an hour without traffic.
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				factory.EvictIdle(time.Hour)
			}
		}
	}()

	adminServer := startAdminServer(cfg, factory)

	logger.Info("dealerlink started", "version", version, "tenants", len(cfg.Tenants))

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown", "err", err)
		}
	}
	inboundBus.Close()

	logger.Info("shutdown complete")
	return nil
}

// setupLogging reconfigures the global logger from the loaded config.
func setupLogging(cfg *config.Config) error {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return nil
}

// startAdminServer serves /healthz and the metrics endpoint.
func startAdminServer(cfg *config.Config, factory *channel.Factory) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		counts := factory.HandlerCounts()
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"version":  version,
			"handlers": counts,
		})
	})
	if cfg.Metrics.Enabled {
		endpoint := cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.HandleFunc("GET "+endpoint, metrics.Collector.Handler())
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.General.AdminHost, cfg.General.AdminPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("admin server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server error", "err", err)
		}
	}()
	return server
}

func sendCmd() *cobra.Command {
	var (
		tenant      string
		channelName string
		content     string
		subject     string
		urgency     string
		to          string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a single outbound message (for testing a tenant's channel)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := customer.NewSQLiteStore(cfg.Storage.DBPath, logger)
			if err != nil {
				return fmt.Errorf("customer store: %w", err)
			}
			defer store.Close()

			inboundBus := bus.New(10, logger)
			defer inboundBus.Close()

			factory := channel.NewFactory(channel.FactoryDeps{
				Configs: config.NewStore(cfg),
				Context: store,
				Offline: store,
				Journal: store,
				Pub:     inboundBus,
				Logger:  logger,
			})
			dispatcher := pipeline.NewDispatcher(factory, gateway.NewLogging(logger), logger,
				time.Duration(cfg.Channels.SendTimeoutSeconds)*time.Second)

			msg := &domain.ChannelMessage{
				CustomerID:   to,
				DealershipID: tenant,
				Content:      content,
				Subject:      subject,
				Urgency:      domain.UrgencyLevel(urgency),
				Metadata:     map[string]string{},
			}
			switch domain.ChannelType(channelName) {
			case domain.ChannelSMS:
				msg.Metadata["customerPhone"] = to
			case domain.ChannelEmail:
				msg.Metadata["customerEmail"] = to
			}

			result, err := dispatcher.Send(cmd.Context(), domain.ChannelType(channelName), msg)
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			if !result.Success {
				return fmt.Errorf("delivery failed: %s", result.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "dealership id")
	cmd.Flags().StringVar(&channelName, "channel", "sms", "channel: sms, email, or webchat")
	cmd.Flags().StringVar(&to, "to", "", "recipient: phone, email address, or chat session id")
	cmd.Flags().StringVar(&content, "content", "", "message content")
	cmd.Flags().StringVar(&subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&urgency, "urgency", "medium", "urgency: low, medium, high, or urgent")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("content")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tenant and channel status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return err
			}
			logger.Info("config", "path", cfgPath, "loaded", true, "tenants", len(cfg.Tenants))

			store, err := customer.NewSQLiteStore(cfg.Storage.DBPath, logger)
			if err != nil {
				logger.Error("storage", "path", cfg.Storage.DBPath, "healthy", false, "err", err)
				return err
			}
			defer store.Close()
			logger.Info("storage", "path", cfg.Storage.DBPath, "healthy", true)

			inboundBus := bus.New(10, logger)
			defer inboundBus.Close()
			factory := channel.NewFactory(channel.FactoryDeps{
				Configs: config.NewStore(cfg),
				Context: store,
				Offline: store,
				Journal: store,
				Pub:     inboundBus,
				Logger:  logger,
			})

			ctx := cmd.Context()
			for tenantID, tc := range cfg.Tenants {
				for name, ch := range tc.Channels {
					if !ch.Enabled {
						logger.Info("channel", "tenant", tenantID, "channel", name, "enabled", false)
						continue
					}
					handler := factory.GetChannelHandler(tenantID, domain.ChannelType(name))
					if handler == nil {
						logger.Warn("channel", "tenant", tenantID, "channel", name, "configured", false)
						continue
					}
					logger.Info("channel", "tenant", tenantID, "channel", name,
						"available", handler.IsAvailable(ctx))
				}
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. channels.sendTimeoutSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.logLevel debug)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
