package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/core/ports"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/breaker"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/cache"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/resilience"
)

const unavailableAnswer = "I can't answer that right now. Please try again in a few minutes."

// AnswerConfig carries the pipeline tuning knobs. Zero values fall back to
// the defaults below.
type AnswerConfig struct {
	MatchCount    int     // candidates requested from the hybrid primitive
	RerankTopK    int     // context chunks handed to generation
	MinScore      float64 // FilterByScore threshold
	VectorWeight  float64 // hybrid primitive blend
	KeywordWeight float64
	Rerank        RerankOptions
}

func (c AnswerConfig) withDefaults() AnswerConfig {
	out := c
	if out.MatchCount <= 0 {
		out.MatchCount = 20
	}
	if out.RerankTopK <= 0 {
		out.RerankTopK = 5
	}
	if out.VectorWeight <= 0 {
		out.VectorWeight = 0.7
	}
	if out.KeywordWeight <= 0 {
		out.KeywordWeight = 0.3
	}
	return out
}

// AnswerDeps are the collaborators of the retrieval pipeline. Caches and
// breakers are explicitly constructed instances owned by the bootstrap, not
// package-level singletons, so tests can build fresh ones.
type AnswerDeps struct {
	Detector  *IntentDetector
	Expander  *Expander
	Embedder  ports.Embedder
	Searcher  ports.HybridSearcher
	Generator ports.AnswerGenerator
	Threads   ports.ThreadStore
	Notifier  ports.ChatNotifier // optional

	EmbeddingCache *cache.Cache[[]float32]
	SearchCache    *cache.Cache[[]domain.RetrievedChunk]
	ResponseCache  *cache.Cache[string]

	// Executor retries transient failures with backoff and bounds each
	// attempt with a timeout; every attempt then passes through the
	// dependency's breaker.
	Executor         *resilience.Executor
	Breakers         *breaker.Registry
	GenerationPolicy breaker.Config
	SearchPolicy     breaker.Config
	ChatPolicy       breaker.Config
}

// AnswerUseCase is the retrieval orchestrator: intent gate, query expansion,
// cache-checked hybrid retrieval, rerank, score filter, guarded generation.
type AnswerUseCase struct {
	deps AnswerDeps
	cfg  AnswerConfig
}

func NewAnswerUseCase(deps AnswerDeps, cfg AnswerConfig) *AnswerUseCase {
	return &AnswerUseCase{deps: deps, cfg: cfg.withDefaults()}
}

func (uc *AnswerUseCase) HandleMessage(ctx context.Context, msg ports.InboundMessage) (*domain.Answer, error) {
	previousBotMessage := uc.hasBotReply(ctx, msg)

	intent := uc.deps.Detector.Detect(ctx, msg.Text, msg.IsThreadReply, previousBotMessage)
	if !intent.ShouldRespond {
		return &domain.Answer{Intent: intent, Skipped: true}, nil
	}

	uc.recordUserTurn(ctx, msg)

	switch intent.Intent {
	case domain.IntentFeedback, domain.IntentCorrection:
		return uc.acknowledgeFeedback(ctx, msg, intent), nil
	}

	answer := uc.retrieveAndGenerate(ctx, msg, intent)
	uc.recordBotTurn(ctx, msg, answer.Text)
	uc.deliver(ctx, msg, answer.Text)
	return answer, nil
}

func (uc *AnswerUseCase) retrieveAndGenerate(ctx context.Context, msg ports.InboundMessage, intent domain.IntentResult) *domain.Answer {
	responseKey := cache.Key(msg.Scope.WorkspaceID, msg.Scope.BotID, msg.Text)
	if cached, ok := uc.deps.ResponseCache.Get(responseKey); ok {
		return &domain.Answer{Text: cached, Intent: intent, Cached: true}
	}

	expanded := uc.deps.Expander.ExpandQuery(msg.Text)

	candidates, err := uc.searchCandidates(ctx, msg.Scope, msg.Text, expanded)
	if err != nil {
		slog.Error("retrieval_failed",
			"workspace_id", msg.Scope.WorkspaceID,
			"bot_id", msg.Scope.BotID,
			"error", err,
		)
		return &domain.Answer{Text: unavailableAnswer, Intent: intent, NoContext: true}
	}

	reranked := Rerank(candidates, msg.Text, rerankOptions(uc.cfg))
	reranked = FilterByScore(reranked, uc.cfg.MinScore)
	if len(reranked) == 0 {
		return &domain.Answer{
			Text:      "I couldn't find anything about that in the knowledge base.",
			Intent:    intent,
			NoContext: true,
		}
	}

	text, err := uc.generate(ctx, msg.Text, reranked)
	if err != nil {
		slog.Error("generation_failed",
			"workspace_id", msg.Scope.WorkspaceID,
			"bot_id", msg.Scope.BotID,
			"error", err,
		)
		return &domain.Answer{Text: unavailableAnswer, Intent: intent, Sources: reranked}
	}

	uc.deps.ResponseCache.Set(responseKey, text)
	return &domain.Answer{Text: text, Intent: intent, Sources: reranked}
}

// searchCandidates resolves the query embedding and the raw hybrid search
// hits, both cache-checked and both behind the search/generation breakers.
func (uc *AnswerUseCase) searchCandidates(ctx context.Context, scope domain.TenantScope, original, expanded string) ([]domain.RetrievedChunk, error) {
	embedding, err := uc.queryEmbedding(ctx, scope, expanded)
	if err != nil {
		return nil, err
	}

	searchKey := cache.Key(scope.WorkspaceID, scope.BotID, "search:"+expanded)
	if cached, ok := uc.deps.SearchCache.Get(searchKey); ok {
		return cached, nil
	}

	var results []domain.RetrievedChunk
	searchBreaker := uc.deps.Breakers.Get("hybrid-search", uc.deps.SearchPolicy)
	err = uc.guarded(ctx, "hybrid_search", searchBreaker, func(ctx context.Context) error {
		var searchErr error
		results, searchErr = uc.deps.Searcher.HybridSearch(
			ctx, expanded, embedding,
			uc.cfg.MatchCount, uc.cfg.VectorWeight, uc.cfg.KeywordWeight,
			scope,
		)
		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	uc.deps.SearchCache.Set(searchKey, results)
	return results, nil
}

func (uc *AnswerUseCase) queryEmbedding(ctx context.Context, scope domain.TenantScope, query string) ([]float32, error) {
	key := cache.Key(scope.WorkspaceID, scope.BotID, "embed:"+query)
	if cached, ok := uc.deps.EmbeddingCache.Get(key); ok {
		return cached, nil
	}

	var vector []float32
	genBreaker := uc.deps.Breakers.Get("generation-api", uc.deps.GenerationPolicy)
	err := uc.guarded(ctx, "embed_query", genBreaker, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = uc.deps.Embedder.EmbedQuery(ctx, query)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	uc.deps.EmbeddingCache.Set(key, vector)
	return vector, nil
}

func (uc *AnswerUseCase) generate(ctx context.Context, question string, chunks []domain.RerankedChunk) (string, error) {
	var text string
	genBreaker := uc.deps.Breakers.Get("generation-api", uc.deps.GenerationPolicy)
	err := uc.guarded(ctx, "generate_answer", genBreaker, func(ctx context.Context) error {
		var genErr error
		text, genErr = uc.deps.Generator.GenerateAnswer(ctx, question, chunks)
		return genErr
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return text, nil
}

// guarded runs fn with retry-and-backoff on the outside and the dependency's
// breaker on the inside, so every attempt is admitted (or rejected)
// individually. Without an executor the call goes through the breaker once.
func (uc *AnswerUseCase) guarded(ctx context.Context, operation string, b *breaker.Breaker, fn func(context.Context) error) error {
	attempt := func(ctx context.Context) error {
		return b.Execute(ctx, fn)
	}
	if uc.deps.Executor == nil {
		return attempt(ctx)
	}
	return uc.deps.Executor.Execute(ctx, operation, attempt, pipelineClassifier)
}

// pipelineClassifier: rejections from an open breaker are neither retried nor
// double-counted as failures; timeouts and everything else are transient.
func pipelineClassifier(err error) resilience.ErrorClassification {
	if breaker.IsOpen(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func (uc *AnswerUseCase) acknowledgeFeedback(ctx context.Context, msg ports.InboundMessage, intent domain.IntentResult) *domain.Answer {
	kind := domain.FeedbackPositive
	text := "Thanks for the feedback!"
	if intent.Intent == domain.IntentCorrection {
		kind = domain.FeedbackCorrection
		text = "Thanks for the correction — I've recorded it so answers can improve."
	}

	if uc.deps.Threads != nil {
		fb := domain.Feedback{
			ID:          uuid.NewString(),
			WorkspaceID: msg.Scope.WorkspaceID,
			BotID:       msg.Scope.BotID,
			ThreadID:    msg.ThreadID,
			Kind:        kind,
			Message:     msg.Text,
			CreatedAt:   time.Now().UTC(),
		}
		if err := uc.deps.Threads.RecordFeedback(ctx, fb); err != nil {
			slog.Warn("record_feedback_failed", "workspace_id", msg.Scope.WorkspaceID, "error", err)
		}
	}

	uc.recordBotTurn(ctx, msg, text)
	uc.deliver(ctx, msg, text)
	return &domain.Answer{Text: text, Intent: intent}
}

// hasBotReply asks the thread store whether the bot already answered in this
// thread. Store failures degrade to false: the classifier then runs its
// lenient thread tiers instead of the continuation shortcut.
func (uc *AnswerUseCase) hasBotReply(ctx context.Context, msg ports.InboundMessage) bool {
	if !msg.IsThreadReply || uc.deps.Threads == nil {
		return false
	}
	has, err := uc.deps.Threads.HasBotReply(ctx, msg.Scope, msg.ChannelID, msg.ThreadID)
	if err != nil {
		slog.Warn("thread_lookup_failed", "workspace_id", msg.Scope.WorkspaceID, "error", err)
		return false
	}
	return has
}

func (uc *AnswerUseCase) recordUserTurn(ctx context.Context, msg ports.InboundMessage) {
	uc.appendTurn(ctx, msg, domain.RoleUser, msg.Text)
}

func (uc *AnswerUseCase) recordBotTurn(ctx context.Context, msg ports.InboundMessage, text string) {
	uc.appendTurn(ctx, msg, domain.RoleBot, text)
}

func (uc *AnswerUseCase) appendTurn(ctx context.Context, msg ports.InboundMessage, role domain.ThreadRole, content string) {
	if uc.deps.Threads == nil || content == "" {
		return
	}
	turn := domain.ThreadTurn{
		ID:          uuid.NewString(),
		WorkspaceID: msg.Scope.WorkspaceID,
		BotID:       msg.Scope.BotID,
		ChannelID:   msg.ChannelID,
		ThreadID:    msg.ThreadID,
		Role:        role,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.deps.Threads.AppendTurn(ctx, turn); err != nil {
		slog.Warn("append_turn_failed", "workspace_id", msg.Scope.WorkspaceID, "role", string(role), "error", err)
	}
}

// deliver posts the answer to the chat platform through the tenant's own
// breaker. A tripped tenant connector must not fail the request: the caller
// already has the answer text, delivery just degrades to a logged skip.
func (uc *AnswerUseCase) deliver(ctx context.Context, msg ports.InboundMessage, text string) {
	if uc.deps.Notifier == nil || text == "" {
		return
	}

	chatBreaker := uc.deps.Breakers.Get("chat:"+msg.Scope.WorkspaceID, uc.deps.ChatPolicy)
	err := breaker.WithFallback(ctx, chatBreaker,
		func(ctx context.Context) error {
			return uc.deps.Notifier.PostReply(ctx, msg.Scope, msg.ChannelID, msg.ThreadID, text)
		},
		func(context.Context) error {
			slog.Warn("chat_delivery_skipped", "workspace_id", msg.Scope.WorkspaceID, "reason", "circuit_open")
			return nil
		},
	)
	if err != nil {
		slog.Warn("chat_delivery_failed", "workspace_id", msg.Scope.WorkspaceID, "error", err)
	}
}

func rerankOptions(cfg AnswerConfig) RerankOptions {
	opts := cfg.Rerank
	if opts.TopK <= 0 {
		opts.TopK = cfg.RerankTopK
	}
	return opts
}
