package sentiment

import "dealerlink/internal/domain"

// The pattern tables below are business-protocol vocabulary, not
// configuration. Multi-word entries are matched as substrings of the lowered
// message; single words are matched against the tokenized word set.

// emotionKeywords maps each emotion to its trigger vocabulary.
var emotionKeywords = map[domain.Emotion][]string{
	domain.EmotionAngry:        {"angry", "furious", "mad", "hate", "outraged", "livid", "fed up"},
	domain.EmotionFrustrated:   {"frustrated", "frustrating", "annoyed", "annoying", "irritated", "ridiculous", "unacceptable"},
	domain.EmotionDisappointed: {"disappointed", "disappointing", "let down", "unhappy", "dissatisfied", "expected better"},
	domain.EmotionAnxious:      {"worried", "anxious", "nervous", "concerned", "stressed", "scared"},
	domain.EmotionConfused:     {"confused", "confusing", "don't understand", "dont understand", "unclear", "makes no sense"},
	domain.EmotionCurious:      {"curious", "wondering", "interested", "tell me more"},
	domain.EmotionImpressed:    {"impressed", "impressive", "outstanding", "exceeded my expectations"},
	domain.EmotionHappy:        {"happy", "glad", "pleased", "satisfied", "thank you", "thanks"},
	domain.EmotionExcited:      {"excited", "exciting", "thrilled", "can't wait", "cant wait"},
}

// emotionWeight is the sentiment delta contributed by one keyword match.
var emotionWeight = map[domain.Emotion]float64{
	domain.EmotionAngry:        -0.35,
	domain.EmotionFrustrated:   -0.3,
	domain.EmotionDisappointed: -0.25,
	domain.EmotionAnxious:      -0.15,
	domain.EmotionConfused:     -0.1,
	domain.EmotionCurious:      0.1,
	domain.EmotionImpressed:    0.3,
	domain.EmotionHappy:        0.3,
	domain.EmotionExcited:      0.35,
}

// emotionIntensity is the intensity delta contributed by one keyword match.
var emotionIntensity = map[domain.Emotion]float64{
	domain.EmotionAngry:      0.25,
	domain.EmotionFrustrated: 0.2,
	domain.EmotionExcited:    0.2,
	domain.EmotionImpressed:  0.1,
	domain.EmotionAnxious:    0.1,
}

// intensityQualifiers are adverbial strength markers.
var intensityQualifiers = map[domain.IntensityLevel][]string{
	domain.IntensityIntense:  {"extremely", "absolutely", "totally", "completely", "utterly"},
	domain.IntensityStrong:   {"very", "really", "seriously", "incredibly"},
	domain.IntensityModerate: {"quite", "pretty", "fairly", "rather"},
	domain.IntensityMild:     {"slightly", "somewhat", "a little", "a bit"},
}

var qualifierWeight = map[domain.IntensityLevel]float64{
	domain.IntensityIntense:  0.4,
	domain.IntensityStrong:   0.3,
	domain.IntensityModerate: 0.2,
	domain.IntensityMild:     0.1,
}

type sentimentBucket struct {
	words     []string
	score     float64 // signed sentiment delta per match
	intensity float64 // intensity delta per match
}

var negativeWords = map[string]sentimentBucket{
	"high": {
		words:     []string{"hate", "worst", "terrible", "horrible", "awful", "disgusting", "scam", "lawsuit", "never again"},
		score:     -0.4,
		intensity: 0.3,
	},
	"medium": {
		words:     []string{"bad", "poor", "problem", "broken", "wrong", "failed", "waste", "useless", "overpriced"},
		score:     -0.25,
		intensity: 0.15,
	},
	"low": {
		words:     []string{"slow", "late", "delay", "unfortunately", "inconvenient"},
		score:     -0.1,
		intensity: 0.05,
	},
}

var positiveWords = map[string]sentimentBucket{
	"high": {
		words:     []string{"love", "fantastic", "awesome", "incredible", "perfect", "best"},
		score:     0.4,
		intensity: 0.3,
	},
	"medium": {
		words:     []string{"good", "nice", "helpful", "friendly", "smooth", "appreciate"},
		score:     0.25,
		intensity: 0.15,
	},
	"low": {
		words:     []string{"ok", "okay", "fine", "decent"},
		score:     0.1,
		intensity: 0.05,
	},
}

// bucketOrder fixes iteration order over sentiment-word buckets so trigger
// lists are deterministic.
var bucketOrder = []string{"high", "medium", "low"}

// urgencyPhrases are bucketed by tier; one match sets at least that tier.
var urgencyPhrases = map[domain.UrgencyLevel]struct {
	phrases []string
	weight  float64
}{
	domain.UrgencyUrgent: {
		phrases: []string{"asap", "immediately", "right now", "emergency", "urgent", "right away"},
		weight:  0.8,
	},
	domain.UrgencyHigh: {
		phrases: []string{"today", "as soon as possible", "quickly", "before the weekend"},
		weight:  0.55,
	},
	domain.UrgencyMedium: {
		phrases: []string{"this week", "soon", "still waiting", "been waiting"},
		weight:  0.35,
	},
	domain.UrgencyLow: {
		phrases: []string{"whenever", "no rush", "sometime", "no hurry"},
		weight:  0.1,
	},
}

// urgencyTierOrder fixes evaluation order from strongest to weakest tier.
var urgencyTierOrder = []domain.UrgencyLevel{
	domain.UrgencyUrgent,
	domain.UrgencyHigh,
	domain.UrgencyMedium,
	domain.UrgencyLow,
}

// emotionOrder fixes tie-breaking when several emotions have equal keyword
// hits: stronger negative states win, then positive, then neutral-ish.
var emotionOrder = []domain.Emotion{
	domain.EmotionAngry,
	domain.EmotionFrustrated,
	domain.EmotionDisappointed,
	domain.EmotionAnxious,
	domain.EmotionConfused,
	domain.EmotionExcited,
	domain.EmotionImpressed,
	domain.EmotionHappy,
	domain.EmotionCurious,
}
