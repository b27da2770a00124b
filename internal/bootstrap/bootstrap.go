package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/MiscMich/villabot-sub004/internal/config"
	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/core/ports"
	"github.com/MiscMich/villabot-sub004/internal/core/usecase"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/breaker"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/cache"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/chat"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/chunking"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/extractor"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/extractor/pdf"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/extractor/plaintext"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/extractor/xlsx"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/llm/ollama"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/queue/nats"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/repository/postgres"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/resilience"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/storage/localfs"
)

// App wires explicitly constructed caches, breakers and adapters; nothing in
// this repo holds pipeline state at package level.
type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Docs      ports.DocumentReader
	AnswerUC  ports.MessageAnswerer
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	Breakers *breaker.Registry

	// CacheStats snapshots the pipeline caches for the metrics gauges.
	CacheStats func() []cache.Stats

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docRepo := postgres.NewDocumentRepository(db)
	if err := docRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure documents schema: %w", err)
	}
	chunkRepo := postgres.NewChunkRepository(db)
	if err := chunkRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure chunks schema: %w", err)
	}
	threadRepo := postgres.NewThreadRepository(db)
	if err := threadRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure threads schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		AttemptTimeout:   cfg.AttemptTimeout,
		BreakerEnabled:   false,
	})
	queueExecutor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: queueExecutor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	intentModel := ollama.NewIntentClassifier(ollamaClient)

	breakers := breaker.NewRegistry()
	generationPolicy := breaker.Config{
		FailureThreshold:    cfg.GenerationFailureThreshold,
		MonitorWindow:       cfg.GenerationMonitorWindow,
		ResetTimeout:        cfg.GenerationResetTimeout,
		SuccessThreshold:    cfg.GenerationSuccessThreshold,
		HalfOpenMaxAttempts: 2,
	}
	chatPolicy := breaker.Config{
		FailureThreshold:    cfg.ChatFailureThreshold,
		MonitorWindow:       cfg.ChatMonitorWindow,
		ResetTimeout:        cfg.ChatResetTimeout,
		SuccessThreshold:    cfg.ChatSuccessThreshold,
		HalfOpenMaxAttempts: 1,
	}

	lexicon, err := usecase.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load expansion lexicon: %w", err)
	}
	expander := usecase.NewExpander(lexicon)
	// The model tier shares the generation-API breaker with embedding and
	// generation: a failing model fails fast here too.
	guardedIntentModel := usecase.NewGuardedIntentModel(intentModel, breakers, generationPolicy)
	detector := usecase.NewIntentDetector(guardedIntentModel, cfg.IntentMinLength, splitKeywords(cfg.IntentExtraKeywords))

	var notifier ports.ChatNotifier
	if cfg.ChatWebhookURL != "" {
		notifier = chat.NewWebhookNotifier(cfg.ChatWebhookURL, cfg.ChatWebhookToken)
	}

	embedCache := cache.New[[]float32]("embeddings", cfg.EmbedCacheSize, cfg.EmbedCacheTTL)
	searchCache := cache.New[[]domain.RetrievedChunk]("search_results", cfg.SearchCacheSize, cfg.SearchCacheTTL)
	responseCache := cache.New[string]("responses", cfg.ResponseCacheSize, cfg.ResponseCacheTTL)

	answerUC := usecase.NewAnswerUseCase(usecase.AnswerDeps{
		Detector:  detector,
		Expander:  expander,
		Embedder:  embedder,
		Searcher:  chunkRepo,
		Generator: generator,
		Threads:   threadRepo,
		Notifier:  notifier,

		EmbeddingCache: embedCache,
		SearchCache:    searchCache,
		ResponseCache:  responseCache,

		Executor:         executor,
		Breakers:         breakers,
		GenerationPolicy: generationPolicy,
		SearchPolicy:     generationPolicy,
		ChatPolicy:       chatPolicy,
	}, usecase.AnswerConfig{
		MatchCount:    cfg.MatchCount,
		RerankTopK:    cfg.RerankTopK,
		MinScore:      cfg.MinScore,
		VectorWeight:  cfg.VectorWeight,
		KeywordWeight: cfg.KeywordWeight,
		Rerank: usecase.RerankOptions{
			TopK:             cfg.RerankTopK,
			SimilarityWeight: cfg.RerankSimilarityWeight,
			KeywordWeight:    cfg.RerankKeywordWeight,
			TitleWeight:      cfg.RerankTitleWeight,
		},
	})

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	textExtractor := extractor.NewComposite(plaintext.NewExtractor(storage))
	textExtractor.Register("application/pdf", pdf.NewExtractor(storage))
	textExtractor.Register("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsx.NewExtractor(storage))

	ingestUC := usecase.NewIngestDocumentUseCase(docRepo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(docRepo, textExtractor, chunker, embedder, chunkRepo)

	return &App{
		Config: cfg,
		Queue:  queue,
		Docs:   docRepo,

		AnswerUC:  answerUC,
		IngestUC:  ingestUC,
		ProcessUC: processUC,

		Breakers: breakers,

		CacheStats: func() []cache.Stats {
			return []cache.Stats{embedCache.Stats(), searchCache.Stats(), responseCache.Stats()}
		},

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func splitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(strings.ToLower(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
