package domain

// Emotion is the closed set of recognized emotional states.
type Emotion string

const (
	EmotionAngry        Emotion = "angry"
	EmotionFrustrated   Emotion = "frustrated"
	EmotionDisappointed Emotion = "disappointed"
	EmotionAnxious      Emotion = "anxious"
	EmotionConfused     Emotion = "confused"
	EmotionCurious      Emotion = "curious"
	EmotionImpressed    Emotion = "impressed"
	EmotionHappy        Emotion = "happy"
	EmotionExcited      Emotion = "excited"
	EmotionNeutral      Emotion = "neutral"
)

// IntensityLevel is the emotional-strength axis, independent of urgency.
type IntensityLevel string

const (
	IntensityMild     IntensityLevel = "mild"
	IntensityModerate IntensityLevel = "moderate"
	IntensityStrong   IntensityLevel = "strong"
	IntensityIntense  IntensityLevel = "intense"
)

// SentimentAnalysis is the per-message emotional classification. Recomputed
// for every inbound message, never persisted by this engine.
type SentimentAnalysis struct {
	Score            float64 // [-1, 1]
	Confidence       float64 // [0, 1]
	Emotion          Emotion
	Urgency          UrgencyLevel
	Intensity        IntensityLevel
	Triggers         []string // diagnostic match records, not semantic
	EmotionalJourney string   // trajectory summary derived from prior messages
}
