// Package routing decides which agent and priority tier should handle an
// inbound customer message, combining sentiment analysis, customer history,
// and message content.
package routing

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"dealerlink/internal/domain"
)

// Engine is the routing decision engine. It is stateless and safe for
// concurrent use; all inputs arrive per call.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// decision accumulates state across the ordered phases.
type decision struct {
	agent      string
	preferred  string // phase-1 preferred agent, sticky against content overrides
	confidence float64
	priority   domain.Priority
	escalate   bool
	reason     string
	reasoning  []string
}

func (d *decision) note(format string, args ...any) {
	d.reasoning = append(d.reasoning, fmt.Sprintf(format, args...))
}

func (d *decision) declareEscalation(reason string) {
	d.escalate = true
	d.reason = reason
	d.agent = AgentHuman
	if d.confidence < 0.9 {
		d.confidence = 0.9
	}
	d.note("escalation: %s", reason)
}

// Decide runs the six routing phases. conv may be nil; journey metadata then
// falls back to the message metadata. Decide never fails: any internal error
// degrades to a safe default so message handling is never blocked.
func (e *Engine) Decide(msg *domain.ChannelMessage, s *domain.SentimentAnalysis, cc *domain.CustomerContext, conv *domain.ConversationContext) (out *domain.RoutingDecision) {
	defer func() {
		if r := recover(); r != nil {
			msgID := ""
			if msg != nil {
				msgID = msg.ID
			}
			e.logger.Error("routing decision failed, using safe default", "panic", r, "message", msgID)
			out = safeDefault()
		}
	}()

	if msg == nil || s == nil || cc == nil {
		panic("nil message, analysis, or customer context")
	}

	conv = resolveConversationContext(msg, conv)
	d := &decision{agent: AgentGeneral, confidence: 0.3}

	e.routeByHistory(d, cc)
	if !d.escalate {
		e.applySentimentOverrides(d, s, cc)
	}
	if !d.escalate {
		e.routeByContent(d, msg, cc)
		e.routeByJourney(d, conv)
	}
	e.determinePriority(d, s, cc, conv)
	e.calibrateConfidence(d, s, cc)

	return &domain.RoutingDecision{
		RecommendedAgent: d.agent,
		Confidence:       d.confidence,
		Priority:         d.priority,
		ShouldEscalate:   d.escalate,
		EscalationReason: d.reason,
		Reasoning:        d.reasoning,
	}
}

func safeDefault() *domain.RoutingDecision {
	return &domain.RoutingDecision{
		RecommendedAgent: AgentGeneral,
		Confidence:       0.1,
		Priority:         domain.PriorityMedium,
		ShouldEscalate:   false,
		Reasoning:        []string{"fallback: internal routing error, safe default applied"},
	}
}

func resolveConversationContext(msg *domain.ChannelMessage, conv *domain.ConversationContext) *domain.ConversationContext {
	if conv != nil {
		return conv
	}
	return &domain.ConversationContext{
		Stage:        msg.Meta("journeyStage"),
		CustomerType: msg.Meta("customerType"),
	}
}

// Phase 1: customer-history routing.
func (e *Engine) routeByHistory(d *decision, cc *domain.CustomerContext) {
	if cc.EscalationHistory > 3 {
		d.declareEscalation(fmt.Sprintf("extensive escalation history (%d prior escalations)", cc.EscalationHistory))
		return
	}
	if cc.EscalationHistory > 1 && cc.HasSatisfaction && cc.SatisfactionScore < 3 {
		d.declareEscalation(fmt.Sprintf("repeated escalations (%d) with low satisfaction (%.1f)", cc.EscalationHistory, cc.SatisfactionScore))
		return
	}

	switch {
	case cc.PreferredAgent != "":
		boost := 0.4
		if cc.InteractionCount > 5 && cc.HasSatisfaction && cc.SatisfactionScore >= 4 {
			boost = 0.6
		}
		d.agent = cc.PreferredAgent
		d.preferred = cc.PreferredAgent
		d.confidence += boost
		d.note("history: preferred agent %s (+%.1f)", cc.PreferredAgent, boost)
	case cc.InteractionCount > 10:
		d.agent = AgentSenior
		d.confidence += 0.3
		d.note("history: VIP customer (%d interactions) routed to %s", cc.InteractionCount, AgentSenior)
	case cc.IsNew():
		d.agent = AgentGeneral
		d.confidence += 0.2
		d.note("history: new customer routed to %s", AgentGeneral)
	}
}

// Phase 2: sentiment-driven overrides and escalations.
func (e *Engine) applySentimentOverrides(d *decision, s *domain.SentimentAnalysis, cc *domain.CustomerContext) {
	switch {
	case s.Emotion == domain.EmotionAngry && s.Intensity == domain.IntensityIntense:
		d.declareEscalation("angry customer with intense sentiment")
	case s.Emotion == domain.EmotionFrustrated && s.Intensity == domain.IntensityStrong && cc.EscalationHistory > 0:
		d.declareEscalation("strongly frustrated customer with prior escalations")
	case s.Emotion == domain.EmotionAnxious || s.Emotion == domain.EmotionConfused:
		d.agent = AgentGeneral
		d.confidence += 0.15
		d.note("sentiment: %s customer needs a generalist", s.Emotion)
	case s.Emotion == domain.EmotionDisappointed && !cc.IsNew():
		d.agent = AgentGeneral
		d.confidence += 0.1
		d.note("sentiment: disappointed returning customer routed to generalist")
	case s.Emotion == domain.EmotionExcited && (s.Urgency == domain.UrgencyHigh || s.Urgency == domain.UrgencyUrgent):
		d.agent = AgentSales
		d.confidence += 0.2
		d.note("sentiment: excited high-urgency customer routed to sales")
	}
}

// Phase 3: content-keyword routing. A content match only overrides a
// phase-1 preferred agent when its own confidence clears 0.8; otherwise the
// preferred agent keeps the seat and content adds a fractional credit.
func (e *Engine) routeByContent(d *decision, msg *domain.ChannelMessage, cc *domain.CustomerContext) {
	lower := strings.ToLower(msg.Content)
	words := contentWords(lower)

	var bestAgent string
	var bestScore float64
	for _, agent := range contentAgentOrder {
		keywords := agentKeywords[agent]
		hits := 0
		for _, kw := range keywords {
			if containsKeyword(lower, words, kw) {
				hits++
			}
		}
		score := float64(hits) / float64(len(keywords))
		if cc.IsNew() && agent == AgentInventory {
			score += 0.2
		}
		if !cc.IsNew() && agent == AgentService {
			score += 0.1
		}
		if score > bestScore {
			bestScore = score
			bestAgent = agent
		}
	}
	if bestScore == 0 {
		return
	}

	if d.preferred != "" && bestScore <= 0.8 {
		d.confidence += bestScore * 0.2
		d.note("content: %s matched (%.2f) but preferred agent retained", bestAgent, bestScore)
		return
	}
	d.agent = bestAgent
	d.confidence += bestScore
	d.note("content: %s matched with score %.2f", bestAgent, bestScore)
}

// Phase 4: specialized journey routing from conversation metadata.
func (e *Engine) routeByJourney(d *decision, conv *domain.ConversationContext) {
	if m, ok := stageAgents[conv.Stage]; ok && m.confidence > 0.6 {
		d.agent = m.agent
		if m.confidence > d.confidence {
			d.confidence = m.confidence
		}
		d.note("journey: stage %s routed to %s (%.2f)", conv.Stage, m.agent, m.confidence)
		return
	}
	if m, ok := customerTypeAgents[conv.CustomerType]; ok && m.confidence > 0.6 {
		d.agent = m.agent
		if m.confidence > d.confidence {
			d.confidence = m.confidence
		}
		d.note("journey: customer type %s routed to %s (%.2f)", conv.CustomerType, m.agent, m.confidence)
	}
}

// Phase 5: priority determination.
func (e *Engine) determinePriority(d *decision, s *domain.SentimentAnalysis, cc *domain.CustomerContext, conv *domain.ConversationContext) {
	switch {
	case s.Urgency == domain.UrgencyUrgent || s.Intensity == domain.IntensityIntense || cc.EscalationHistory > 2:
		d.priority = domain.PriorityUrgent
	case s.Urgency == domain.UrgencyHigh || s.Emotion == domain.EmotionFrustrated ||
		cc.InteractionCount > 10 || conv.Stage == "decision":
		d.priority = domain.PriorityHigh
	case s.Emotion == domain.EmotionConfused || s.Emotion == domain.EmotionAnxious || cc.IsNew():
		d.priority = domain.PriorityMedium
	default:
		d.priority = domain.PriorityLow
	}
	d.note("priority: %s", d.priority)
}

// Phase 6: confidence calibration.
func (e *Engine) calibrateConfidence(d *decision, s *domain.SentimentAnalysis, cc *domain.CustomerContext) {
	if cc.InteractionCount > 5 {
		d.confidence += 0.05
	}
	if s.Confidence > 0.8 {
		d.confidence += 0.05
	}

	ceiling := 0.95
	if d.escalate {
		ceiling = 0.98
	}
	if d.confidence > ceiling {
		d.confidence = ceiling
	}

	if s.Emotion == domain.EmotionNeutral && s.Urgency == domain.UrgencyLow {
		d.confidence -= 0.1
		if d.confidence < 0.3 {
			d.confidence = 0.3
		}
	}
	if d.confidence < 0 {
		d.confidence = 0
	}
}

func contentWords(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func containsKeyword(lower string, words map[string]bool, kw string) bool {
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(lower, kw)
	}
	return words[kw]
}
