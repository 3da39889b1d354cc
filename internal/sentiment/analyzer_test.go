package sentiment

import (
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"dealerlink/internal/domain"
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func TestAnalyze_AngryAllCaps(t *testing.T) {
	a := testAnalyzer()
	result := a.Analyze("I HATE THIS, worst service EVER!!!", nil)

	if result.Emotion != domain.EmotionAngry {
		t.Errorf("emotion = %s, want angry", result.Emotion)
	}
	if result.Score > -0.9 {
		t.Errorf("score = %.2f, want <= -0.9", result.Score)
	}
	if result.Intensity != domain.IntensityIntense {
		t.Errorf("intensity = %s, want intense", result.Intensity)
	}
	if result.Confidence < 0.9 {
		t.Errorf("confidence = %.2f, want >= 0.9", result.Confidence)
	}
}

func TestAnalyze_Positive(t *testing.T) {
	a := testAnalyzer()
	result := a.Analyze("Thank you, the service was fantastic", nil)

	if result.Score <= 0 {
		t.Errorf("score = %.2f, want positive", result.Score)
	}
	if result.Emotion != domain.EmotionHappy {
		t.Errorf("emotion = %s, want happy", result.Emotion)
	}
}

func TestAnalyze_ConfusionFromQuestions(t *testing.T) {
	a := testAnalyzer()
	result := a.Analyze("What does this mean? Why is it different? How does that work?", nil)

	if result.Emotion != domain.EmotionConfused {
		t.Errorf("emotion = %s, want confused", result.Emotion)
	}
}

func TestAnalyze_UrgentPhrase(t *testing.T) {
	a := testAnalyzer()
	result := a.Analyze("I need this fixed immediately, it is an emergency", nil)

	if result.Urgency != domain.UrgencyUrgent {
		t.Errorf("urgency = %s, want urgent", result.Urgency)
	}
}

func TestAnalyze_NeutralMessage(t *testing.T) {
	a := testAnalyzer()
	result := a.Analyze("The car is blue with a sunroof", nil)

	if result.Emotion != domain.EmotionNeutral {
		t.Errorf("emotion = %s, want neutral", result.Emotion)
	}
	if result.Score != 0 {
		t.Errorf("score = %.2f, want 0", result.Score)
	}
	if result.Urgency != domain.UrgencyLow {
		t.Errorf("urgency = %s, want low", result.Urgency)
	}
}

func TestAnalyze_EscalatingTrajectory(t *testing.T) {
	a := testAnalyzer()
	history := []string{
		"I love this car, it is fantastic",
		"The paperwork took a while",
	}
	result := a.Analyze("This is terrible, the car is broken again", history)

	if !strings.HasPrefix(result.EmotionalJourney, "escalating") {
		t.Errorf("journey = %q, want escalating", result.EmotionalJourney)
	}
	found := false
	for _, tr := range result.Triggers {
		if tr == "trajectory:escalating" {
			found = true
		}
	}
	if !found {
		t.Errorf("triggers missing trajectory:escalating: %v", result.Triggers)
	}
}

func TestAnalyze_HistoryRaisesConfidence(t *testing.T) {
	a := testAnalyzer()
	without := a.Analyze("When can I pick up the car", nil)
	with := a.Analyze("When can I pick up the car", []string{"hello", "checking in", "any update"})

	if with.Confidence <= without.Confidence {
		t.Errorf("confidence with history %.2f should beat %.2f", with.Confidence, without.Confidence)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	a := testAnalyzer()
	msg := "I am extremely frustrated, this is urgent and the repair failed again!!!"
	history := []string{"the service was good", "still waiting on parts"}

	first := a.Analyze(msg, history)
	for i := 0; i < 5; i++ {
		again := a.Analyze(msg, history)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestAnalyze_ScoreDomains(t *testing.T) {
	a := testAnalyzer()
	messages := []string{
		"hate hate worst terrible horrible awful scam lawsuit",
		"love fantastic awesome incredible perfect best",
		"",
		"ASAP RIGHT NOW EMERGENCY URGENT!!!",
	}
	for _, msg := range messages {
		r := a.Analyze(msg, nil)
		if r.Score < -1 || r.Score > 1 {
			t.Errorf("score %.2f out of [-1,1] for %q", r.Score, msg)
		}
		if r.Confidence < 0 || r.Confidence > 0.95 {
			t.Errorf("confidence %.2f out of [0,0.95] for %q", r.Confidence, msg)
		}
	}
}

func TestQuickScore_Signs(t *testing.T) {
	if s := quickScore("this is terrible and broken"); s >= 0 {
		t.Errorf("negative message scored %.2f", s)
	}
	if s := quickScore("love it, fantastic work"); s <= 0 {
		t.Errorf("positive message scored %.2f", s)
	}
	if s := quickScore("the car is parked outside"); s != 0 {
		t.Errorf("neutral message scored %.2f", s)
	}
}

func TestMatches_WordBoundaries(t *testing.T) {
	lower := "we can meet this weekend"
	words := tokenize(lower)

	// "end" must not match inside "weekend".
	if matches(lower, words, "end") {
		t.Error("single word matched inside a longer word")
	}
	if !matches(lower, words, "weekend") {
		t.Error("exact word should match")
	}
}

func TestCapsRatio(t *testing.T) {
	if r := capsRatio("HELLO"); r != 1 {
		t.Errorf("all caps ratio = %.2f, want 1", r)
	}
	if r := capsRatio("hello"); r != 0 {
		t.Errorf("no caps ratio = %.2f, want 0", r)
	}
	if r := capsRatio("12345!!!"); r != 0 {
		t.Errorf("no letters ratio = %.2f, want 0", r)
	}
}
