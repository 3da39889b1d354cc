package domain

import "context"

// ChannelType identifies one delivery medium.
type ChannelType string

const (
	ChannelSMS     ChannelType = "sms"
	ChannelEmail   ChannelType = "email"
	ChannelWebChat ChannelType = "webchat"
)

// ChannelInfo is a static capability descriptor for a channel variant.
type ChannelInfo struct {
	Channel            ChannelType
	MaxLength          int
	SupportsRichText   bool
	SupportsAttachment bool
	RequiresPhone      bool
	RequiresEmail      bool
}

// ChannelHandler delivers messages through one channel for one dealership.
// Implementations never propagate provider or validation failures as errors:
// SendMessage converts them into a structured DeliveryResult.
type ChannelHandler interface {
	// SendMessage validates and transmits one message. The returned error is
	// reserved for programmer mistakes (nil message); provider and validation
	// failures come back inside the DeliveryResult.
	SendMessage(ctx context.Context, msg *ChannelMessage) (*DeliveryResult, error)

	// IsAvailable reports channel readiness: credentials present, provider
	// reachable, and (for chat) within configured business hours.
	IsAvailable(ctx context.Context) bool

	// ValidateMessage applies common and channel-specific checks. A non-nil
	// error describes the first failed check.
	ValidateMessage(msg *ChannelMessage) error

	// GetDeliveryStatus resolves the current status of a previously sent
	// message by its external provider id. Best effort: channels without a
	// synchronous status API answer from the webhook-fed status journal.
	GetDeliveryStatus(ctx context.Context, externalID string) (DeliveryStatus, error)

	// HandleIncomingMessage ingests a provider-specific inbound event, either
	// a delivery-status callback or a customer reply. Processing failures are
	// logged and swallowed so providers never see retry-storm errors.
	HandleIncomingMessage(ctx context.Context, payload []byte) error

	// GetChannelInfo returns the static capability descriptor.
	GetChannelInfo() ChannelInfo

	// UpdateConfiguration swaps the handler's configuration in place, used by
	// the factory when credentials rotate.
	UpdateConfiguration(cfg *ChannelConfiguration)
}

// ConversationGateway is the narrow outbound interface to the conversation
// system: routed customer replies and delivery outcomes.
type ConversationGateway interface {
	ForwardReply(ctx context.Context, reply InboundReply, decision *RoutingDecision) error
	RecordDelivery(ctx context.Context, msg *ChannelMessage, result *DeliveryResult)
}
