package usecase

import (
	"context"

	"github.com/MiscMich/villabot-sub004/internal/core/ports"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/breaker"
)

// GuardedIntentModel routes model-tier classification through the shared
// generation-API breaker, so a failing model trips the same circuit as
// embedding and generation and subsequent ambiguous messages are rejected
// without an upstream call. The detector already degrades any error to
// {ignore, no response}, so rejections surface as degraded verdicts.
type GuardedIntentModel struct {
	model    ports.IntentModel
	breakers *breaker.Registry
	policy   breaker.Config
}

func NewGuardedIntentModel(model ports.IntentModel, breakers *breaker.Registry, policy breaker.Config) *GuardedIntentModel {
	return &GuardedIntentModel{model: model, breakers: breakers, policy: policy}
}

func (g *GuardedIntentModel) ClassifyIntent(ctx context.Context, message string) (string, error) {
	var raw string
	b := g.breakers.Get("generation-api", g.policy)
	err := b.Execute(ctx, func(ctx context.Context) error {
		var classifyErr error
		raw, classifyErr = g.model.ClassifyIntent(ctx, message)
		return classifyErr
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}
