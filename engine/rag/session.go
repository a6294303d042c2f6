package rag

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/index"
	"github.com/mealscout/mealscout/engine/query"
	"github.com/mealscout/mealscout/pkg/metrics"
)

// DefaultK is the number of results retrieved when a request does not say.
const DefaultK = 5

// ErrNotReady is returned by Ask and Search before a successful Rebuild.
var ErrNotReady = errors.New("rag: no collection built")

// Request is one recommendation request.
type Request struct {
	Query  string        `json:"query"`
	K      int           `json:"k,omitempty"`
	Filter domain.Filter `json:"filter"`
}

// Answer is a response together with the results it was built from.
type Answer struct {
	Response
	Results []domain.SearchResult `json:"results"`
}

// Session owns one collection and answers requests against it. Rebuild
// replaces the collection under a write lock; Ask and Search share a read
// lock, so queries never observe a half-built index.
type Session struct {
	mu    sync.RWMutex
	coll  *index.Collection
	items int

	name     string
	metadata map[string]string
	defaultK int

	builder *index.Builder
	engine  *query.Engine
	synth   *Synthesizer
	logger  *slog.Logger

	catalogItems *metrics.Gauge
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDefaultK sets the result count used when a request has K == 0.
func WithDefaultK(k int) SessionOption {
	return func(s *Session) {
		if k > 0 {
			s.defaultK = k
		}
	}
}

// WithMetadata sets the metadata stored with the collection on Rebuild.
func WithMetadata(m map[string]string) SessionOption {
	return func(s *Session) { s.metadata = m }
}

// WithSessionMetrics reports the indexed catalog size in reg.
func WithSessionMetrics(reg *metrics.Registry) SessionOption {
	return func(s *Session) {
		s.catalogItems = reg.Gauge("mealscout_catalog_items", "Items in the active collection.")
	}
}

// NewSession creates a Session for the collection called name. It serves
// nothing until Rebuild succeeds.
func NewSession(name string, builder *index.Builder, engine *query.Engine, synth *Synthesizer, logger *slog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		name:     name,
		defaultK: DefaultK,
		builder:  builder,
		engine:   engine,
		synth:    synth,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rebuild drops and recreates the collection, then indexes items. If the
// collection cannot be created the session stops serving and the fatal
// *domain.IndexError is returned. A population failure leaves the new,
// partially filled collection in place and returns the non-fatal error.
func (s *Session) Rebuild(ctx context.Context, items []domain.FoodItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.builder.CreateCollection(ctx, s.name, s.metadata)
	if err != nil {
		s.coll, s.items = nil, 0
		s.setGauge(0)
		return err
	}
	s.coll = coll
	if err := s.builder.Populate(ctx, coll, items); err != nil {
		n, _ := coll.Count(ctx)
		s.items = n
		s.setGauge(n)
		return err
	}
	s.items = len(items)
	s.setGauge(len(items))
	s.logger.Info("rag: session rebuilt", "collection", s.name, "items", len(items))
	return nil
}

func (s *Session) setGauge(n int) {
	if s.catalogItems != nil {
		s.catalogItems.Set(int64(n))
	}
}

// Ready reports whether a collection is available.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll != nil
}

// Size returns the number of indexed items.
func (s *Session) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Search validates req and returns ranked results without generating text.
func (s *Session) Search(ctx context.Context, req Request) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search(ctx, &req)
}

// Ask validates req, retrieves matching items and synthesizes an answer.
// Invalid input yields a *domain.ValidationError and search failures a
// *domain.QueryError; generation failures are absorbed by the fallback.
func (s *Session) Ask(ctx context.Context, req Request) (*Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results, err := s.search(ctx, &req)
	if err != nil {
		return nil, err
	}
	return &Answer{Response: s.synth.Respond(ctx, req.Query, results), Results: results}, nil
}

// search normalizes req in place. Callers hold the read lock.
func (s *Session) search(ctx context.Context, req *Request) ([]domain.SearchResult, error) {
	q, err := domain.ValidateQuery(req.Query)
	if err != nil {
		return nil, err
	}
	k, err := domain.ValidateK(req.K, s.defaultK)
	if err != nil {
		return nil, err
	}
	if req.Filter.MaxCalories != nil && *req.Filter.MaxCalories < 0 {
		return nil, domain.NewValidationError("max_calories", strconv.Itoa(*req.Filter.MaxCalories), domain.ErrInvalidCalories)
	}
	req.Query, req.K = q, k
	if s.coll == nil {
		return nil, ErrNotReady
	}
	return s.engine.FilteredSearch(ctx, s.coll, q, k, req.Filter)
}
