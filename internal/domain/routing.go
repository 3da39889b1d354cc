package domain

// Priority is the handling tier assigned by the routing engine.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// RoutingDecision is the routing engine's verdict for one inbound message.
// Reasoning is an audit trail of contributing rules; it never drives control
// flow downstream.
type RoutingDecision struct {
	RecommendedAgent string
	Confidence       float64 // [0, 1]
	Priority         Priority
	ShouldEscalate   bool
	EscalationReason string
	Reasoning        []string
}
