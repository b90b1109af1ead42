package main

import (
	"context"
	"log/slog"

	"github.com/kevinmichaelchen/papers-without-code/internal/config"
	"github.com/kevinmichaelchen/papers-without-code/internal/embedding"
	"github.com/kevinmichaelchen/papers-without-code/internal/github"
	"github.com/kevinmichaelchen/papers-without-code/internal/keywords"
	"github.com/kevinmichaelchen/papers-without-code/internal/llm"
	"github.com/kevinmichaelchen/papers-without-code/internal/pipeline"
	"github.com/kevinmichaelchen/papers-without-code/internal/rank"
	"github.com/kevinmichaelchen/papers-without-code/internal/semanticscholar"
	"github.com/kevinmichaelchen/papers-without-code/internal/surrealdb"
)

// buildPipeline wires every collaborator from cfg. The returned func
// releases the embedding cache connection.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	cache, closeCache := openCache(ctx, cfg, logger)

	src := embedding.ResolveSource(cfg.EmbeddingCacheDir, cfg.EmbeddingModel, cfg.EmbeddingBaseURL, cfg.EmbeddingLocalURL)
	lazy := embedding.NewLazy(func() (embedding.Embedder, error) {
		logger.Debug("loading embedding model", "model", src.Model, "url", src.BaseURL, "local_dir", src.LocalDir)
		return embedding.NewClient(src.BaseURL, cfg.EmbeddingAPIKey, src.Model), nil
	})
	embedder := embedding.NewCachingEmbedder(lazy, src.Model, cache, embedding.WithLogger(logger))

	var extractor pipeline.KeywordExtractor
	switch cfg.KeywordExtractor {
	case config.ExtractorLLM:
		extractor = llm.NewKeywordClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, llm.WithLogger(logger))
	default:
		extractor = keywords.New(embedder,
			keywords.WithTopN(cfg.KeywordTopN),
			keywords.WithLogger(logger),
		)
	}

	if cfg.GitHubToken == "" {
		logger.Warn("GITHUB_TOKEN not set, repository search will be heavily rate limited")
	}
	gh := github.NewClient(cfg.GitHubToken,
		github.WithAPIURL(cfg.GitHubAPIURL),
		github.WithWebURL(cfg.GitHubWebURL),
		github.WithPageSize(cfg.SearchPageSize),
		github.WithMaxAttempts(cfg.SearchMaxAttempts),
		github.WithReadmeRetryBudget(cfg.ReadmeRetryBudget),
		github.WithLogger(logger),
	)

	s2 := semanticscholar.NewClient(cfg.SemanticScholarURL, cfg.SemanticScholarAPIKey,
		semanticscholar.WithLogger(logger))

	p := pipeline.New(gh, gh, extractor, rank.New(embedder, rank.WithLogger(logger)),
		pipeline.WithLogger(logger),
		pipeline.WithSearchWorkers(cfg.SearchWorkers),
		pipeline.WithFetchWorkers(cfg.FetchWorkers),
		pipeline.WithPaperLookup(s2),
	)
	return p, closeCache, nil
}

// openCache connects to SurrealDB when configured and falls back to an
// in-process cache otherwise.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embedding.Cache, func()) {
	if cfg.SurrealURL == "" {
		return embedding.NewMemoryCache(), func() {}
	}

	db, err := surrealdb.NewClient(ctx, surrealdb.Options{
		URL:       cfg.SurrealURL,
		Namespace: cfg.SurrealNS,
		Database:  cfg.SurrealDB,
		Username:  cfg.SurrealUser,
		Password:  cfg.SurrealPass,
	})
	if err != nil {
		logger.Warn("embedding cache unavailable, using memory", "url", cfg.SurrealURL, "error", err)
		return embedding.NewMemoryCache(), func() {}
	}
	if err := db.InitSchema(ctx); err != nil {
		logger.Warn("embedding cache schema failed, using memory", "error", err)
		_ = db.Close(ctx)
		return embedding.NewMemoryCache(), func() {}
	}
	logger.Debug("using SurrealDB embedding cache", "url", cfg.SurrealURL)
	return db, func() { _ = db.Close(context.Background()) }
}
