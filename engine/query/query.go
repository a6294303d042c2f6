// Package query runs similarity searches against a built collection and
// turns raw vector hits into ranked, scored results.
package query

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/index"
	"github.com/mealscout/mealscout/engine/semantic"
	"github.com/mealscout/mealscout/pkg/fn"
	"github.com/mealscout/mealscout/pkg/metrics"
)

// Engine executes queries. It holds no per-collection state and is safe
// for concurrent use.
type Engine struct {
	logger  *slog.Logger
	queries *metrics.Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics counts executed queries in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(e *Engine) {
		e.queries = reg.Counter("mealscout_queries_total", "Similarity queries executed.")
	}
}

// New creates an Engine.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// request carries a query through the pipeline stages.
type request struct {
	coll   *index.Collection
	text   string
	k      int
	filter domain.Filter
	vector []float32
}

// Search returns the k items most similar to text.
func (e *Engine) Search(ctx context.Context, coll *index.Collection, text string, k int) ([]domain.SearchResult, error) {
	return e.FilteredSearch(ctx, coll, text, k, domain.Filter{})
}

// FilteredSearch returns up to k items passing filter, most similar first.
// Filtering happens before the top k are chosen, so fewer than k results
// means fewer than k items match. k <= 0 returns no results without
// embedding the text. Failures are *domain.QueryError.
func (e *Engine) FilteredSearch(ctx context.Context, coll *index.Collection, text string, k int, filter domain.Filter) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	if e.queries != nil {
		e.queries.Inc()
	}

	pipeline := fn.TracedStage("query.search", fn.Then(
		fn.TracedStage("query.embed", fn.Stage[request, request](embedStage)),
		fn.TracedStage("query.nearest", fn.Stage[request, []domain.SearchResult](nearestStage)),
	))
	results, err := pipeline(ctx, request{coll: coll, text: text, k: k, filter: filter}).Unwrap()
	if err != nil {
		return nil, &domain.QueryError{Collection: coll.Name, Err: err}
	}
	e.logger.Debug("query: done", "collection", coll.Name, "query_len", len(text),
		"k", k, "filtered", !filter.IsZero(), "results", len(results))
	return results, nil
}

func embedStage(ctx context.Context, req request) fn.Result[request] {
	vec, err := req.coll.Embedder().Embed(ctx, req.text)
	if err != nil {
		return fn.Err[request](err)
	}
	req.vector = vec
	return fn.Ok(req)
}

func nearestStage(ctx context.Context, req request) fn.Result[[]domain.SearchResult] {
	hits, err := req.coll.Backend().Search(ctx, req.coll.Name, req.vector, req.k, req.filter)
	if err != nil {
		return fn.Err[[]domain.SearchResult](err)
	}
	return fn.Ok(rank(hits))
}

// rank converts distances to scores and orders results by descending
// score. Equal scores keep the backend's order.
func rank(hits []semantic.Hit) []domain.SearchResult {
	out := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = domain.SearchResult{Item: h.Item, Score: Score(h.Distance)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Score maps a cosine distance to a similarity in [0,1].
func Score(distance float64) float64 {
	s := 1 - distance
	switch {
	case s < 0 || math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
