package routing

// Agent identifiers recognized by the conversation system.
const (
	AgentGeneral   = "general-agent"
	AgentSales     = "sales-agent"
	AgentService   = "service-agent"
	AgentFinance   = "finance-agent"
	AgentInventory = "inventory-agent"
	AgentSenior    = "senior-agent"
	AgentHuman     = "human-agent"
)

// agentKeywords drives content-based routing: each agent type is scored by
// the fraction of its keyword set present in the message.
var agentKeywords = map[string][]string{
	AgentSales: {
		"buy", "purchase", "price", "quote", "deal", "offer", "trade-in", "lease", "msrp",
	},
	AgentFinance: {
		"financing", "finance", "loan", "credit", "apr", "payment", "down payment", "interest", "pre-approved",
	},
	AgentService: {
		"service", "repair", "maintenance", "oil change", "brakes", "warranty", "recall", "appointment",
	},
	AgentInventory: {
		"inventory", "in stock", "available", "availability", "test drive", "colors", "trim", "models",
	},
}

// contentAgentOrder fixes the evaluation order so keyword ties resolve
// deterministically across calls.
var contentAgentOrder = []string{AgentSales, AgentFinance, AgentService, AgentInventory}

// stageAgents maps sales-funnel stages to agents, with the mapping's own
// confidence. Applied only when that confidence exceeds 0.6.
var stageAgents = map[string]struct {
	agent      string
	confidence float64
}{
	"awareness":     {AgentInventory, 0.7},
	"consideration": {AgentSales, 0.75},
	"decision":      {AgentSales, 0.85},
	"purchase":      {AgentFinance, 0.9},
}

// customerTypeAgents maps customer-type metadata the same way.
var customerTypeAgents = map[string]struct {
	agent      string
	confidence float64
}{
	"first-time-buyer":   {AgentInventory, 0.7},
	"returning-customer": {AgentService, 0.65},
	"business-customer":  {AgentSales, 0.8},
}
