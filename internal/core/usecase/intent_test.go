package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

type fakeIntentModel struct {
	raw   string
	err   error
	calls int
}

func (f *fakeIntentModel) ClassifyIntent(ctx context.Context, message string) (string, error) {
	f.calls++
	return f.raw, f.err
}

func TestDetectIgnoresShortMessages(t *testing.T) {
	model := &fakeIntentModel{}
	d := NewIntentDetector(model, 0, nil)

	got := d.Detect(context.Background(), "hi", false, false)
	want := domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.9, ShouldRespond: false}
	if got != want {
		t.Fatalf("Detect(\"hi\") = %+v, want %+v", got, want)
	}
	if model.calls != 0 {
		t.Fatalf("model called %d times for trivial reject", model.calls)
	}
}

func TestDetectDomainQuestion(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, nil)

	got := d.Detect(context.Background(), "What is the refund policy?", false, false)
	if got.Intent != domain.IntentQuestion || !got.ShouldRespond {
		t.Fatalf("Detect() = %+v, want question with response", got)
	}
	if got.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9 (question mark + domain keyword)", got.Confidence)
	}
}

func TestDetectThreadFeedback(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, nil)

	got := d.Detect(context.Background(), "thanks, that helped!", true, true)
	if got.Intent != domain.IntentFeedback || !got.ShouldRespond {
		t.Fatalf("Detect() = %+v, want feedback", got)
	}
}

func TestDetectThreadCorrectionBeatsFeedback(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, nil)

	// "wrong" is also a feedback phrase; the correction pattern must win.
	got := d.Detect(context.Background(), "No, that's wrong", true, true)
	if got.Intent != domain.IntentCorrection {
		t.Fatalf("Detect() = %+v, want correction", got)
	}
	if !got.ShouldRespond {
		t.Fatalf("corrections should be answered")
	}
}

func TestDetectThreadFollowUpDefaultsToQuestion(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, nil)

	got := d.Detect(context.Background(), "the second option", true, true)
	want := domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.8, ShouldRespond: true}
	if got != want {
		t.Fatalf("Detect() = %+v, want %+v", got, want)
	}
}

func TestDetectThreadReplyWithoutBotHistory(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, nil)

	got := d.Detect(context.Background(), "is the pool heated", true, false)
	want := domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.7, ShouldRespond: true}
	if got != want {
		t.Fatalf("Detect() = %+v, want %+v", got, want)
	}
}

func TestDetectKeywordTierConfidence(t *testing.T) {
	model := &fakeIntentModel{}
	d := NewIntentDetector(model, 0, nil)

	// Two domain keywords, no question shape: 0.5 + 0.15*2.
	got := d.Detect(context.Background(), "i need to change my booking and get a refund", false, false)
	if got.Intent != domain.IntentQuestion || !got.ShouldRespond {
		t.Fatalf("Detect() = %+v, want keyword-tier question", got)
	}
	if got.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", got.Confidence)
	}
	if model.calls != 0 {
		t.Fatalf("keyword tier must not reach the model")
	}
}

func TestDetectKeywordTierConfidenceCapped(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, nil)

	got := d.Detect(context.Background(), "booking refund deposit policy details", false, false)
	if got.Confidence != 0.85 {
		t.Fatalf("confidence = %v, want cap 0.85", got.Confidence)
	}
}

func TestDetectIrrelevantChatterSkipsModel(t *testing.T) {
	model := &fakeIntentModel{}
	d := NewIntentDetector(model, 0, nil)

	got := d.Detect(context.Background(), "we painted the villa yesterday evening", false, false)
	want := domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.6, ShouldRespond: false}
	if got != want {
		t.Fatalf("Detect() = %+v, want %+v", got, want)
	}
	if model.calls != 0 {
		t.Fatalf("model called %d times for low-signal chatter", model.calls)
	}
}

func TestDetectAmbiguousBandReachesModel(t *testing.T) {
	model := &fakeIntentModel{raw: `{"intent":"question","confidence":0.8}`}
	d := NewIntentDetector(model, 0, nil)

	// Question-shaped but domain-free: two question keywords, zero domain hits.
	got := d.Detect(context.Background(), "please explain and tell me about your company", false, false)
	if model.calls != 1 {
		t.Fatalf("model calls = %d, want 1", model.calls)
	}
	want := domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.8, ShouldRespond: true}
	if got != want {
		t.Fatalf("Detect() = %+v, want %+v", got, want)
	}
}

func TestDetectDegradesWhenModelFails(t *testing.T) {
	model := &fakeIntentModel{err: errors.New("upstream unavailable")}
	d := NewIntentDetector(model, 0, nil)

	got := d.Detect(context.Background(), "please explain and tell me about your company", false, false)
	if got != degradedResult {
		t.Fatalf("Detect() = %+v, want degraded default %+v", got, degradedResult)
	}
}

func TestDetectExtraKeywords(t *testing.T) {
	d := NewIntentDetector(&fakeIntentModel{}, 0, []string{"sauna", "boat"})

	got := d.Detect(context.Background(), "is the sauna open today?", false, false)
	if got.Intent != domain.IntentQuestion || !got.ShouldRespond || got.Confidence != 0.9 {
		t.Fatalf("Detect() = %+v, want high-confidence question via extra keyword", got)
	}
}

func TestParseModelVerdictJSON(t *testing.T) {
	got := parseModelVerdict(`Sure! {"intent":"Question","confidence":0.75} hope that helps`)
	want := domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.75, ShouldRespond: true}
	if got != want {
		t.Fatalf("parseModelVerdict() = %+v, want %+v", got, want)
	}
}

func TestParseModelVerdictUnknownIntentCoercedToIgnore(t *testing.T) {
	got := parseModelVerdict(`{"intent":"spam","confidence":0.9}`)
	if got.Intent != domain.IntentIgnore || got.ShouldRespond {
		t.Fatalf("parseModelVerdict() = %+v, want ignore", got)
	}
}

func TestParseModelVerdictOutOfRangeConfidence(t *testing.T) {
	got := parseModelVerdict(`{"intent":"question","confidence":7}`)
	if got.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want clamp to 0.5", got.Confidence)
	}
}

func TestParseModelVerdictSubstringFallback(t *testing.T) {
	got := parseModelVerdict("This looks like a question about pricing.")
	if got.Intent != domain.IntentQuestion || !got.ShouldRespond {
		t.Fatalf("parseModelVerdict() = %+v, want question via substring", got)
	}
}

func TestParseModelVerdictGarbageDegrades(t *testing.T) {
	if got := parseModelVerdict("lorem ipsum"); got != degradedResult {
		t.Fatalf("parseModelVerdict() = %+v, want %+v", got, degradedResult)
	}
}
