package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/breaker"
)

func TestGuardedIntentModelTripsSharedBreaker(t *testing.T) {
	model := &fakeIntentModel{err: errors.New("model down")}
	breakers := breaker.NewRegistry()
	policy := breaker.Config{
		FailureThreshold: 2,
		MonitorWindow:    time.Minute,
		ResetTimeout:     time.Minute,
		SuccessThreshold: 1,
	}
	d := NewIntentDetector(NewGuardedIntentModel(model, breakers, policy), 0, nil)

	// Ambiguous band: one domain keyword plus one question phrase lands at
	// confidence 0.65, which escalates to the model tier.
	const message = "i was wondering about the parking rules, can i park there"

	for i := 0; i < 8; i++ {
		got := d.Detect(context.Background(), message, false, false)
		want := domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.5, ShouldRespond: false}
		if got != want {
			t.Fatalf("Detect() call %d = %+v, want degraded %+v", i+1, got, want)
		}
	}

	if model.calls != 2 {
		t.Fatalf("model invoked %d times, want 2 (breaker must reject the rest)", model.calls)
	}
	if breakers.Get("generation-api", policy).State() != breaker.StateOpen {
		t.Fatalf("generation-api breaker state = %v, want open", breakers.Get("generation-api", policy).State())
	}
}

func TestGuardedIntentModelPassesThroughVerdict(t *testing.T) {
	model := &fakeIntentModel{raw: `{"intent":"question","confidence":0.8}`}
	g := NewGuardedIntentModel(model, breaker.NewRegistry(), breaker.Config{})

	raw, err := g.ClassifyIntent(context.Background(), "can i bring a pet to the villa")
	if err != nil {
		t.Fatalf("ClassifyIntent() error = %v", err)
	}
	if raw != model.raw {
		t.Fatalf("raw = %q, want %q", raw, model.raw)
	}
	if model.calls != 1 {
		t.Fatalf("model invoked %d times, want 1", model.calls)
	}
}
