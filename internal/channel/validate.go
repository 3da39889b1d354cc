package channel

import (
	"fmt"
	"regexp"

	"dealerlink/internal/domain"
)

// Channel content caps.
const (
	maxSMSLength     = 1600
	maxEmailLength   = 100000
	maxWebChatLength = 2000
)

// Publisher receives normalized inbound replies for routing. Satisfied by
// bus.InboundBus.
type Publisher interface {
	Publish(reply domain.InboundReply)
}

// phonePattern is deliberately loose: optional +, 7-15 digits, common
// separators tolerated after stripping.
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,18}[0-9]$`)

// validateCommon applies the checks shared by every channel.
func validateCommon(msg *domain.ChannelMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}
	if msg.Content == "" {
		return fmt.Errorf("message content is empty")
	}
	if msg.CustomerID == "" {
		return fmt.Errorf("customer id is required")
	}
	if msg.DealershipID == "" {
		return fmt.Errorf("dealership id is required")
	}
	return nil
}

// validationFailure builds the structured result for a failed validation.
func validationFailure(err error) *domain.DeliveryResult {
	return &domain.DeliveryResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: domain.ErrCodeValidation,
	}
}

// channelFailure converts a provider or transport error into a structured
// result; raw errors never cross the handler boundary.
func channelFailure(err error) *domain.DeliveryResult {
	return &domain.DeliveryResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: domain.ErrCodeChannel,
	}
}
