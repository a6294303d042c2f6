package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mealscout/mealscout/engine/domain"
)

// MemoryStore is an in-process Backend. Contents are lost on exit.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dims   int
	meta   map[string]string
	order  []string
	points map[string]memPoint
}

type memPoint struct {
	vec  []float32
	norm float64
	item domain.FoodItem
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (m *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryStore) CreateCollection(_ context.Context, name string, dims int, metadata map[string]string) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: create collection %s: invalid dimension %d", name, dims)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("semantic: create collection %s: already exists", name)
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.collections[name] = &memCollection{dims: dims, meta: meta, points: make(map[string]memPoint)}
	return nil
}

// Metadata returns a copy of the metadata the collection was created with.
func (m *MemoryStore) Metadata(name string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(c.meta))
	for k, v := range c.meta {
		out[k] = v
	}
	return out, true
}

// Upsert stores records; an existing id is overwritten in place.
func (m *MemoryStore) Upsert(_ context.Context, name string, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("semantic: upsert %s: %w", name, ErrCollectionNotFound)
	}
	for _, r := range records {
		if len(r.Embedding) != c.dims {
			return fmt.Errorf("semantic: upsert %s: record %s has %d dims, want %d: %w",
				name, r.ID, len(r.Embedding), c.dims, ErrDimensionMismatch)
		}
	}
	for _, r := range records {
		if _, exists := c.points[r.ID]; !exists {
			c.order = append(c.order, r.ID)
		}
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		c.points[r.ID] = memPoint{vec: vec, norm: norm(vec), item: r.Item}
	}
	return nil
}

// Search scans every record passing the filter and returns the closest by
// cosine distance. Ties keep insertion order.
func (m *MemoryStore) Search(ctx context.Context, name string, vector []float32, limit int, filter domain.Filter) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("semantic: search %s: %w", name, ErrCollectionNotFound)
	}
	if len(vector) != c.dims {
		return nil, fmt.Errorf("semantic: search %s: query has %d dims, want %d: %w",
			name, len(vector), c.dims, ErrDimensionMismatch)
	}
	qn := norm(vector)
	hits := make([]Hit, 0, len(c.order))
	for _, id := range c.order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("semantic: search %s: %w", name, err)
		}
		p := c.points[id]
		if !filter.Matches(p.item) {
			continue
		}
		hits = append(hits, Hit{Item: p.item, Distance: cosineDistance(vector, qn, p.vec, p.norm)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryStore) Count(_ context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("semantic: count %s: %w", name, ErrCollectionNotFound)
	}
	return len(c.points), nil
}

func (m *MemoryStore) Close() error { return nil }

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosineDistance treats a zero vector as orthogonal to everything.
func cosineDistance(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(an*bn)
}
