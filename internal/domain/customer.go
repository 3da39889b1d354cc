package domain

import (
	"context"
	"time"
)

// CustomerContext is a customer's interaction history as seen by the routing
// engine. Read-mostly; owned by the profile store and fetched fresh per
// decision.
type CustomerContext struct {
	CustomerID        string
	DealershipID      string
	PreviousMessages  []string
	InteractionCount  int
	AvgResponseTime   time.Duration
	LastInteraction   time.Time
	PreferredAgent    string // empty when none
	SatisfactionScore float64
	HasSatisfaction   bool
	EscalationHistory int
}

// IsNew reports whether the customer has no recorded interactions.
func (c *CustomerContext) IsNew() bool { return c.InteractionCount == 0 }

// ConversationContext carries optional journey metadata attached to a
// conversation by upstream systems.
type ConversationContext struct {
	Stage        string // awareness | consideration | decision | purchase
	CustomerType string // first-time-buyer | returning-customer | business-customer
}

// ContextStore resolves and updates customer interaction history.
type ContextStore interface {
	GetCustomerContext(ctx context.Context, dealershipID, customerID string) (*CustomerContext, error)
	RecordInteraction(ctx context.Context, dealershipID, customerID, message string) error
	RecordEscalation(ctx context.Context, dealershipID, customerID, reason string) error

	// SMS compliance state, keyed by phone number within a dealership.
	SetOptOut(ctx context.Context, dealershipID, phone string, optedOut bool) error
	IsOptedOut(ctx context.Context, dealershipID, phone string) (bool, error)
}
