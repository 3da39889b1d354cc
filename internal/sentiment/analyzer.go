// Package sentiment classifies the emotional state, urgency, and intensity of
// inbound customer messages. The analyzer is stateless and safe for
// concurrent use.
package sentiment

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"dealerlink/internal/domain"
)

// Tier thresholds for urgency and intensity scores.
const (
	tierUrgent = 0.7
	tierHigh   = 0.5
	tierMedium = 0.3
)

// Analyzer scores message text against the keyword lexicon plus punctuation
// and casing heuristics.
type Analyzer struct {
	logger *slog.Logger
}

func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze classifies one message given recent conversation history
// (oldest first). It never fails: any internal panic degrades to a neutral,
// low-confidence result because routing must always receive some analysis.
func (a *Analyzer) Analyze(message string, history []string) (result *domain.SentimentAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("sentiment analysis failed, using neutral fallback", "panic", r)
			result = neutralFallback()
		}
	}()

	lower := strings.ToLower(message)
	words := tokenize(lower)

	var score, urgencyScore, intensityScore float64
	var triggers []string
	emotionHits := make(map[domain.Emotion]int)

	// 1. Lexicon scan: emotions, qualifiers, sentiment words, urgency phrases.
	for _, emotion := range emotionOrder {
		for _, kw := range emotionKeywords[emotion] {
			if matches(lower, words, kw) {
				emotionHits[emotion]++
				score += emotionWeight[emotion]
				intensityScore += emotionIntensity[emotion]
				triggers = append(triggers, fmt.Sprintf("emotion:%s:%s", emotion, kw))
			}
		}
	}

	for _, level := range []domain.IntensityLevel{domain.IntensityIntense, domain.IntensityStrong, domain.IntensityModerate, domain.IntensityMild} {
		for _, q := range intensityQualifiers[level] {
			if matches(lower, words, q) {
				intensityScore += qualifierWeight[level]
				triggers = append(triggers, fmt.Sprintf("qualifier:%s:%s", level, q))
			}
		}
	}

	for _, bucket := range bucketOrder {
		entry := negativeWords[bucket]
		for _, w := range entry.words {
			if matches(lower, words, w) {
				score += entry.score
				intensityScore += entry.intensity
				triggers = append(triggers, fmt.Sprintf("negative:%s:%s", bucket, w))
			}
		}
	}
	for _, bucket := range bucketOrder {
		entry := positiveWords[bucket]
		for _, w := range entry.words {
			if matches(lower, words, w) {
				score += entry.score
				intensityScore += entry.intensity
				triggers = append(triggers, fmt.Sprintf("positive:%s:%s", bucket, w))
			}
		}
	}

	// Strongest matching urgency tier dominates; further matches nudge upward.
	for _, tier := range urgencyTierOrder {
		entry := urgencyPhrases[tier]
		for _, p := range entry.phrases {
			if matches(lower, words, p) {
				if entry.weight > urgencyScore {
					urgencyScore = entry.weight
				} else {
					urgencyScore += 0.05
				}
				triggers = append(triggers, fmt.Sprintf("urgency:%s:%s", tier, p))
			}
		}
	}

	// 2. Punctuation and casing heuristics.
	exclamations := strings.Count(message, "!")
	if exclamations > 2 {
		score -= 0.15
		urgencyScore += 0.2
		triggers = append(triggers, "punct:exclamations")
	}
	questions := strings.Count(message, "?")
	if questions > 2 {
		score -= 0.1
		triggers = append(triggers, "punct:questions")
	}
	if capsRatio(message) > 0.5 {
		score -= 0.15
		urgencyScore += 0.15
		intensityScore += 0.2
		triggers = append(triggers, "punct:caps")
	}

	// 3. Emotional trajectory over the last few messages.
	journey := ""
	if len(history) > 0 {
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		first := quickScore(recent[0])
		last := quickScore(message)
		swing := last - first
		switch {
		case swing > 0.3:
			journey = "improving"
		case swing < -0.3:
			journey = "escalating"
			score -= 0.15
			urgencyScore += 0.2
			triggers = append(triggers, "trajectory:escalating")
		default:
			journey = "stable"
		}
		journey = fmt.Sprintf("%s over %d recent messages", journey, len(recent)+1)
	}

	// 4. Clamp to domains.
	score = clamp(score, -1, 1)
	urgencyScore = clamp(urgencyScore, 0, 1)
	intensityScore = clamp(intensityScore, 0, 1)

	emotion := resolveEmotion(score, emotionHits, questions)

	// 6. Confidence from signal strength.
	confidence := 0.5 + 0.3*abs(score)
	confidence += min(0.2, float64(len(triggers))*0.04)
	confidence += min(0.15, float64(len(history))*0.03)
	if confidence > 0.95 {
		confidence = 0.95
	}

	return &domain.SentimentAnalysis{
		Score:            score,
		Confidence:       confidence,
		Emotion:          emotion,
		Urgency:          urgencyTier(urgencyScore),
		Intensity:        intensityTier(intensityScore),
		Triggers:         triggers,
		EmotionalJourney: journey,
	}
}

func neutralFallback() *domain.SentimentAnalysis {
	return &domain.SentimentAnalysis{
		Score:      0,
		Confidence: 0.1,
		Emotion:    domain.EmotionNeutral,
		Urgency:    domain.UrgencyLow,
		Intensity:  domain.IntensityMild,
	}
}

// resolveEmotion picks one emotion by priority: explicit keyword match, then
// trigger-derived inference, then score-range fallback.
func resolveEmotion(score float64, hits map[domain.Emotion]int, questions int) domain.Emotion {
	best := domain.EmotionNeutral
	bestHits := 0
	for _, e := range emotionOrder {
		if hits[e] > bestHits {
			best = e
			bestHits = hits[e]
		}
	}
	if bestHits > 0 {
		return best
	}

	// Many question marks with flat-or-negative sentiment reads as confusion.
	if questions > 2 && score <= 0 {
		return domain.EmotionConfused
	}

	switch {
	case score <= -0.6:
		return domain.EmotionAngry
	case score <= -0.3:
		return domain.EmotionFrustrated
	case score <= -0.1:
		return domain.EmotionDisappointed
	case score >= 0.6:
		return domain.EmotionExcited
	case score >= 0.3:
		return domain.EmotionHappy
	case score >= 0.1:
		return domain.EmotionCurious
	default:
		return domain.EmotionNeutral
	}
}

func urgencyTier(s float64) domain.UrgencyLevel {
	switch {
	case s > tierUrgent:
		return domain.UrgencyUrgent
	case s > tierHigh:
		return domain.UrgencyHigh
	case s > tierMedium:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

func intensityTier(s float64) domain.IntensityLevel {
	switch {
	case s > tierUrgent:
		return domain.IntensityIntense
	case s > tierHigh:
		return domain.IntensityStrong
	case s > tierMedium:
		return domain.IntensityModerate
	default:
		return domain.IntensityMild
	}
}

// quickScore is the cheap per-message heuristic used for trajectory analysis:
// unweighted keyword hit counting.
func quickScore(message string) float64 {
	lower := strings.ToLower(message)
	words := tokenize(lower)
	hits := 0
	for _, entry := range positiveWords {
		for _, w := range entry.words {
			if matches(lower, words, w) {
				hits++
			}
		}
	}
	for _, entry := range negativeWords {
		for _, w := range entry.words {
			if matches(lower, words, w) {
				hits--
			}
		}
	}
	return clamp(float64(hits)*0.25, -1, 1)
}

// tokenize lowers and strips punctuation, returning the word set.
func tokenize(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// matches applies word-set lookup for single words and substring matching for
// multi-word phrases, so short words never match inside longer ones.
func matches(lower string, words map[string]bool, pattern string) bool {
	if strings.ContainsRune(pattern, ' ') {
		return strings.Contains(lower, pattern)
	}
	return words[pattern]
}

func capsRatio(message string) float64 {
	var upper, letters int
	for _, r := range message {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
