package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dealerlink/internal/domain"
)

// WebhookServerConfig configures the inbound webhook server.
type WebhookServerConfig struct {
	Port   int
	Logger *slog.Logger
}

// WebhookServer accepts provider callbacks and chat connections for every
// dealership and dispatches them to the right channel handler:
//
//	POST /webhooks/{dealership}/{channel}  provider status and inbound events
//	GET  /chat/{dealership}                webchat websocket upgrade
type WebhookServer struct {
	port    int
	factory *Factory
	logger  *slog.Logger
	server  *http.Server
}

func NewWebhookServer(cfg WebhookServerConfig, factory *Factory) *WebhookServer {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	return &WebhookServer{
		port:    cfg.Port,
		factory: factory,
		logger:  cfg.Logger,
	}
}

// Start runs the server until ctx is cancelled, then drains connections.
func (s *WebhookServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{dealership}/{channel}", s.handleWebhook)
	mux.HandleFunc("GET /chat/{dealership}", s.handleChat)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (s *WebhookServer) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	dealership := r.PathValue("dealership")
	channel := domain.ChannelType(r.PathValue("channel"))

	handler := s.factory.GetChannelHandler(dealership, channel)
	if handler == nil {
		http.Error(rw, "Unknown dealership or channel", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Verify the HMAC signature when the tenant has a webhook secret.
	if secret := s.webhookSecret(dealership, channel); secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, secret, sig) {
			s.logger.Warn("webhook signature mismatch", "dealership", dealership, "channel", channel)
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	if err := handler.HandleIncomingMessage(r.Context(), body); err != nil {
		s.logger.Error("webhook handling failed",
			"dealership", dealership, "channel", channel, "err", err)
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	rw.Write([]byte(`{"status":"accepted"}`))
}

func (s *WebhookServer) handleChat(rw http.ResponseWriter, r *http.Request) {
	dealership := r.PathValue("dealership")
	handler := s.factory.GetChannelHandler(dealership, domain.ChannelWebChat)
	chat, ok := handler.(*WebChat)
	if !ok || chat == nil {
		http.Error(rw, "Webchat not configured", http.StatusNotFound)
		return
	}
	chat.HandleConnection(rw, r)
}

func (s *WebhookServer) webhookSecret(dealership string, channel domain.ChannelType) string {
	cfg, err := s.factory.deps.Configs.GetChannelConfiguration(context.Background(), dealership, channel)
	if err != nil {
		return ""
	}
	return cfg.Credential("webhookSecret")
}

// verifyHMAC checks the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
