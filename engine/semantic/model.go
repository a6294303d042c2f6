package semantic

import (
	"context"
	"errors"

	"github.com/mealscout/mealscout/engine/domain"
)

var (
	ErrCollectionNotFound = errors.New("semantic: collection not found")
	ErrDimensionMismatch  = errors.New("semantic: vector dimension mismatch")
)

// VectorRecord is one catalog item with its embedding, ready to store.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Item      domain.FoodItem
}

// Hit is a search match. Distance is cosine distance: 0 means identical
// direction, 2 means opposite.
type Hit struct {
	Item     domain.FoodItem
	Distance float64
}

// Backend stores named collections of vectors. Search applies the filter
// before selecting the limit nearest records.
type Backend interface {
	// DeleteCollection removes a collection. Missing collections are not an error.
	DeleteCollection(ctx context.Context, name string) error
	// CreateCollection creates an empty cosine collection. metadata is stored
	// alongside it where the backend supports that.
	CreateCollection(ctx context.Context, name string, dims int, metadata map[string]string) error
	Upsert(ctx context.Context, name string, records []VectorRecord) error
	Search(ctx context.Context, name string, vector []float32, limit int, filter domain.Filter) ([]Hit, error)
	Count(ctx context.Context, name string) (int, error)
	Close() error
}
