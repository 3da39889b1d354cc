package domain

import "time"

// UrgencyLevel is the time-sensitivity axis of a message or analysis.
type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
	UrgencyUrgent UrgencyLevel = "urgent"
)

// ChannelMessage identifies one logical outbound message. It is constructed by
// the conversation system and consumed by exactly one ChannelHandler invocation.
// Treat it as immutable after construction.
type ChannelMessage struct {
	ID             string
	ConversationID string
	CustomerID     string
	DealershipID   string
	Content        string
	Subject        string // optional, email only
	Urgency        UrgencyLevel
	LeadSource     string            // optional lead-source tag
	Metadata       map[string]string // customerPhone, customerEmail, sessionId, customerName, ...
}

// Meta returns the metadata value for key, or "" when absent.
func (m *ChannelMessage) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// DeliveryResult is the outcome of a single send attempt.
type DeliveryResult struct {
	Success   bool
	MessageID string // provider-assigned external id, when available
	Error     string
	ErrorCode string
	Metadata  map[string]string
}

// DeliveryStatus is the normalized lifecycle state of a sent message,
// projected from provider webhooks onto an external message id.
type DeliveryStatus string

const (
	StatusQueued      DeliveryStatus = "queued"
	StatusSent        DeliveryStatus = "sent"
	StatusDelivered   DeliveryStatus = "delivered"
	StatusFailed      DeliveryStatus = "failed"
	StatusUndelivered DeliveryStatus = "undelivered"
)

// Error codes surfaced in DeliveryResult.ErrorCode.
const (
	ErrCodeChannel    = "CHANNEL_ERROR"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeOptOut     = "OPT_OUT"
)

// InboundReply is a normalized customer reply forwarded to the conversation
// system as a (tenant, customer, session-or-address, text, timestamp) tuple.
type InboundReply struct {
	Channel      ChannelType
	DealershipID string
	CustomerID   string // may equal Address when no profile match exists
	Address      string // raw sender address, phone number, or session id
	Content      string
	Timestamp    time.Time
}
