// Package index builds searchable collections from catalog items.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/semantic"
	"github.com/mealscout/mealscout/pkg/fn"
)

const (
	// EmbedBatchSize is the number of items embedded and upserted per batch.
	EmbedBatchSize = 100
	// DefaultWorkers bounds concurrent embedding batches.
	DefaultWorkers = 4
	// Metric is the only supported distance metric.
	Metric = "cosine"
)

// Embedder turns text into fixed-size vectors. All vectors from one
// Embedder have Dimensions() components.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Collection is a handle to a created collection. It carries everything a
// query needs: the backend, the embedder the vectors came from, and the
// dimensionality they share.
type Collection struct {
	Name     string
	Metadata map[string]string
	Dims     int
	Metric   string

	backend  semantic.Backend
	embedder Embedder
}

// Backend returns the vector store holding the collection.
func (c *Collection) Backend() semantic.Backend { return c.backend }

// Embedder returns the embedder used to build the collection.
func (c *Collection) Embedder() Embedder { return c.embedder }

// Count returns the number of stored items.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.backend.Count(ctx, c.Name)
}

// Builder creates and fills collections.
type Builder struct {
	backend  semantic.Backend
	embedder Embedder
	workers  int
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers sets how many embedding batches may run at once.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBuilder creates a Builder writing to backend with vectors from embedder.
func NewBuilder(backend semantic.Backend, embedder Embedder, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{backend: backend, embedder: embedder, workers: DefaultWorkers, logger: logger}
	for _, o := range opts {
		o(b)
	}
	return b
}

// CreateCollection drops any collection called name and creates an empty
// one. Failures are fatal: the returned error is a *domain.IndexError with
// Fatal set.
func (b *Builder) CreateCollection(ctx context.Context, name string, metadata map[string]string) (*Collection, error) {
	dims := b.embedder.Dimensions()
	if dims <= 0 {
		return nil, &domain.IndexError{Collection: name, Op: "create", Fatal: true,
			Err: fmt.Errorf("embedder reports %d dimensions", dims)}
	}
	if err := b.backend.DeleteCollection(ctx, name); err != nil {
		return nil, &domain.IndexError{Collection: name, Op: "delete", Fatal: true, Err: err}
	}
	if err := b.backend.CreateCollection(ctx, name, dims, metadata); err != nil {
		return nil, &domain.IndexError{Collection: name, Op: "create", Fatal: true, Err: err}
	}
	b.logger.Info("index: collection created", "collection", name, "dims", dims)
	return &Collection{
		Name:     name,
		Metadata: metadata,
		Dims:     dims,
		Metric:   Metric,
		backend:  b.backend,
		embedder: b.embedder,
	}, nil
}

// Populate embeds items and upserts them into coll. Batches are embedded
// concurrently and written in catalog order. An item whose id is already
// stored replaces it. A failed batch does not stop the others: every batch
// that embeds is stored, and the failures come back joined in one
// *domain.IndexError without Fatal.
func (b *Builder) Populate(ctx context.Context, coll *Collection, items []domain.FoodItem) error {
	if len(items) == 0 {
		b.logger.Warn("index: nothing to populate", "collection", coll.Name)
		return nil
	}
	start := time.Now()
	batches := fn.Chunk(items, EmbedBatchSize)

	embedded := fn.ParMapResult(batches, b.workers, func(batch []domain.FoodItem) fn.Result[[]semantic.VectorRecord] {
		return fn.FromPair(b.embedBatch(ctx, coll, batch))
	})

	var errs []error
	stored := 0
	for i, res := range embedded {
		records, err := res.Unwrap()
		if err != nil {
			errs = append(errs, fmt.Errorf("embed batch %d: %w", i, err))
			continue
		}
		if err := coll.backend.Upsert(ctx, coll.Name, records); err != nil {
			errs = append(errs, fmt.Errorf("upsert batch %d: %w", i, err))
			continue
		}
		stored += len(records)
	}
	if len(errs) > 0 {
		b.logger.Warn("index: populated partially", "collection", coll.Name, "items", len(items),
			"stored", stored, "failed_batches", len(errs))
		return &domain.IndexError{Collection: coll.Name, Op: "populate", Err: errors.Join(errs...)}
	}
	b.logger.Info("index: populated", "collection", coll.Name, "items", len(items),
		"batches", len(batches), "duration", time.Since(start))
	return nil
}

func (b *Builder) embedBatch(ctx context.Context, coll *Collection, batch []domain.FoodItem) ([]semantic.VectorRecord, error) {
	texts := fn.Map(batch, CompositeText)
	vecs, err := coll.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
	}
	out := make([]semantic.VectorRecord, len(batch))
	for i, item := range batch {
		if len(vecs[i]) != coll.Dims {
			return nil, fmt.Errorf("item %s: embedding has %d dims, want %d", item.ID, len(vecs[i]), coll.Dims)
		}
		out[i] = semantic.VectorRecord{ID: item.ID, Embedding: vecs[i], Item: item}
	}
	return out, nil
}

// CompositeText is the text embedded for an item: name, description,
// ingredients and taste profile, skipping empty parts. It is never empty;
// an item with none of those is described by its cuisine and id.
func CompositeText(item domain.FoodItem) string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(item.Name); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(item.Description); s != "" {
		parts = append(parts, s)
	}
	if len(item.Ingredients) > 0 {
		parts = append(parts, "Ingredients: "+strings.Join(item.Ingredients, ", "))
	}
	if s := strings.TrimSpace(item.TasteProfile); s != "" {
		parts = append(parts, "Taste profile: "+s)
	}
	if len(parts) == 0 {
		return strings.Join(strings.Fields(item.CuisineType+" food item "+item.ID), " ")
	}
	return strings.Join(parts, ". ")
}
