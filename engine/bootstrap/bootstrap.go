// Package bootstrap wires a config.Config into a serving rag.Session and
// its Dispatcher. Every binary starts through New.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/mealscout/mealscout/engine/catalog"
	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/index"
	"github.com/mealscout/mealscout/engine/query"
	"github.com/mealscout/mealscout/engine/rag"
	"github.com/mealscout/mealscout/engine/semantic"
	"github.com/mealscout/mealscout/pkg/config"
	"github.com/mealscout/mealscout/pkg/hashembed"
	"github.com/mealscout/mealscout/pkg/metrics"
	"github.com/mealscout/mealscout/pkg/ollama"
	"github.com/mealscout/mealscout/pkg/resilience"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config     config.Config
	Session    *rag.Session
	Dispatcher *rag.Dispatcher
	Metrics    *metrics.Registry

	backend semantic.Backend
	logger  *slog.Logger
}

// New builds every component, loads the catalog and indexes it. A fatal
// index error aborts startup; a partial population is logged and served.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := metrics.New()

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	limiter := newLimiter(cfg.RateLimit)
	embedder, err := newEmbedder(ctx, cfg, limiter)
	if err != nil {
		backend.Close()
		return nil, err
	}

	builder := index.NewBuilder(backend, embedder, logger, index.WithWorkers(cfg.Workers))
	engine := query.New(logger, query.WithMetrics(reg))
	synth := rag.NewSynthesizer(newGenerator(cfg, limiter), generationParams(cfg), logger,
		rag.WithBreaker(newBreaker(logger)),
		rag.WithSynthMetrics(reg),
	)
	session := rag.NewSession(cfg.Collection, builder, engine, synth, logger,
		rag.WithDefaultK(cfg.SimilarityTopK),
		rag.WithMetadata(map[string]string{"description": cfg.CollectionDescription}),
		rag.WithSessionMetrics(reg),
	)

	items := catalog.Load(cfg.CatalogPath, logger)
	if err := session.Rebuild(ctx, items); err != nil {
		if errors.Is(err, domain.ErrIndexFatal) {
			backend.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		logger.Warn("bootstrap: serving partial index", "err", err, "items", session.Size())
	}

	logger.Info("bootstrap: ready",
		"collection", cfg.Collection,
		"vector_backend", cfg.VectorBackend,
		"embed_backend", cfg.EmbedBackend,
		"dims", embedder.Dimensions(),
		"items", session.Size(),
		"generation", cfg.GenerationEnabled,
	)

	return &App{
		Config:     cfg,
		Session:    session,
		Dispatcher: rag.NewDispatcher(session, cfg.Workers, cfg.QueueSize, logger),
		Metrics:    reg,
		backend:    backend,
		logger:     logger,
	}, nil
}

// Close drains the dispatcher and releases the vector backend.
func (a *App) Close() error {
	a.Dispatcher.Close()
	return a.backend.Close()
}

func newBackend(cfg config.Config) (semantic.Backend, error) {
	switch cfg.VectorBackend {
	case config.VectorQdrant:
		vs, err := semantic.New(cfg.QdrantURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: qdrant: %w", err)
		}
		return vs, nil
	case config.VectorMemory:
		return semantic.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown vector backend %q", cfg.VectorBackend)
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func newEmbedder(ctx context.Context, cfg config.Config, limiter *rate.Limiter) (index.Embedder, error) {
	switch cfg.EmbedBackend {
	case config.EmbedOllama:
		client := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedDims, ollama.WithLimiter(limiter))
		if cfg.EmbedDims == 0 {
			if _, err := client.Probe(ctx); err != nil {
				return nil, fmt.Errorf("bootstrap: probe embedding dims: %w", err)
			}
		}
		return client, nil
	case config.EmbedHashing:
		dims := cfg.EmbedDims
		if dims == 0 {
			dims = hashembed.DefaultDims
		}
		return hashembed.New(dims), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown embed backend %q", cfg.EmbedBackend)
	}
}

func newGenerator(cfg config.Config, limiter *rate.Limiter) rag.Generator {
	if !cfg.GenerationEnabled {
		return nil
	}
	return ollamaGenerator{client: ollama.NewGenerateClient(cfg.OllamaURL, cfg.ChatModel, ollama.WithLimiter(limiter))}
}

func newBreaker(logger *slog.Logger) *resilience.Breaker {
	opts := resilience.DefaultBreakerOpts
	opts.OnStateChange = func(from, to resilience.State) {
		logger.Warn("bootstrap: generation breaker", "from", from.String(), "to", to.String())
	}
	return resilience.NewBreaker(opts)
}

func generationParams(cfg config.Config) rag.GenerationParams {
	return rag.GenerationParams{
		Temperature:  cfg.Temperature,
		MaxNewTokens: cfg.MaxNewTokens,
		MinNewTokens: cfg.MinNewTokens,
		TopK:         cfg.TopK,
		TopP:         cfg.TopP,
		DoSample:     cfg.DoSample,
	}
}

// ollamaGenerator adapts the Ollama client to rag.Generator. Ollama has no
// minimum-length option, so MinNewTokens is not forwarded; greedy decoding
// is expressed as temperature zero.
type ollamaGenerator struct {
	client *ollama.GenerateClient
}

func (g ollamaGenerator) Generate(ctx context.Context, prompt string, p rag.GenerationParams) (string, error) {
	return g.client.Generate(ctx, prompt, ollamaOptions(p))
}

func ollamaOptions(p rag.GenerationParams) ollama.Options {
	o := ollama.Options{
		Temperature: p.Temperature,
		NumPredict:  p.MaxNewTokens,
		TopK:        p.TopK,
		TopP:        p.TopP,
	}
	if !p.DoSample {
		o.Temperature = 0
		o.TopK = 1
	}
	return o
}
