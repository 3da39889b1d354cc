// Package gateway connects the routing pipeline to the conversation system
// that owns agent inboxes. Deployments without one run the logging gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dealerlink/internal/domain"
)

// HTTP posts routed replies and delivery records to the conversation system
// as JSON.
type HTTP struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewHTTP(url, token string, client *http.Client, logger *slog.Logger) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTP{url: url, token: token, client: client, logger: logger}
}

// routedReply is the wire shape for a forwarded customer reply.
type routedReply struct {
	Channel      string    `json:"channel"`
	DealershipID string    `json:"dealershipId"`
	CustomerID   string    `json:"customerId"`
	Address      string    `json:"address"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`

	RecommendedAgent string   `json:"recommendedAgent"`
	Confidence       float64  `json:"confidence"`
	Priority         string   `json:"priority"`
	ShouldEscalate   bool     `json:"shouldEscalate"`
	EscalationReason string   `json:"escalationReason,omitempty"`
	Reasoning        []string `json:"reasoning,omitempty"`
}

func (g *HTTP) ForwardReply(ctx context.Context, reply domain.InboundReply, decision *domain.RoutingDecision) error {
	body := routedReply{
		Channel:          string(reply.Channel),
		DealershipID:     reply.DealershipID,
		CustomerID:       reply.CustomerID,
		Address:          reply.Address,
		Content:          reply.Content,
		Timestamp:        reply.Timestamp,
		RecommendedAgent: decision.RecommendedAgent,
		Confidence:       decision.Confidence,
		Priority:         string(decision.Priority),
		ShouldEscalate:   decision.ShouldEscalate,
		EscalationReason: decision.EscalationReason,
		Reasoning:        decision.Reasoning,
	}
	return g.post(ctx, g.url+"/replies", body)
}

func (g *HTTP) RecordDelivery(ctx context.Context, msg *domain.ChannelMessage, result *domain.DeliveryResult) {
	body := map[string]any{
		"messageId":      msg.ID,
		"conversationId": msg.ConversationID,
		"dealershipId":   msg.DealershipID,
		"success":        result.Success,
		"externalId":     result.MessageID,
		"error":          result.Error,
		"errorCode":      result.ErrorCode,
	}
	if err := g.post(ctx, g.url+"/deliveries", body); err != nil {
		// Delivery records are advisory; the send already happened.
		g.logger.Warn("cannot record delivery", "message_id", msg.ID, "err", err)
	}
}

func (g *HTTP) post(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway post: status %d", resp.StatusCode)
	}
	return nil
}

// Logging is the no-network gateway: decisions land in the log and delivery
// records are logged at debug.
type Logging struct {
	logger *slog.Logger
}

func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

func (g *Logging) ForwardReply(ctx context.Context, reply domain.InboundReply, decision *domain.RoutingDecision) error {
	g.logger.Info("reply routed",
		"dealership", reply.DealershipID,
		"customer", reply.CustomerID,
		"channel", reply.Channel,
		"agent", decision.RecommendedAgent,
		"confidence", decision.Confidence,
		"priority", decision.Priority,
		"escalate", decision.ShouldEscalate,
	)
	return nil
}

func (g *Logging) RecordDelivery(ctx context.Context, msg *domain.ChannelMessage, result *domain.DeliveryResult) {
	g.logger.Debug("delivery recorded",
		"message_id", msg.ID,
		"success", result.Success,
		"external_id", result.MessageID,
		"error_code", result.ErrorCode,
	)
}
