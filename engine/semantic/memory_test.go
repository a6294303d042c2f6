package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/mealscout/mealscout/engine/domain"
)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	ctx := context.Background()
	if err := m.CreateCollection(ctx, "foods", 2, map[string]string{"description": "test"}); err != nil {
		t.Fatal(err)
	}
	records := []VectorRecord{
		{ID: "1", Embedding: []float32{1, 0}, Item: domain.FoodItem{ID: "1", Name: "Pizza", CuisineType: "Italian", CaloriesPerServing: 800}},
		{ID: "2", Embedding: []float32{0, 1}, Item: domain.FoodItem{ID: "2", Name: "Pad Thai", CuisineType: "Thai", CaloriesPerServing: 400}},
		{ID: "3", Embedding: []float32{1, 1}, Item: domain.FoodItem{ID: "3", Name: "Risotto", CuisineType: "Italian", CaloriesPerServing: 450}},
	}
	if err := m.Upsert(ctx, "foods", records); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMemoryStore_SearchOrder(t *testing.T) {
	m := seedMemory(t)
	hits, err := m.Search(context.Background(), "foods", []float32{1, 0}, 3, domain.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Item.ID != "1" || hits[1].Item.ID != "3" || hits[2].Item.ID != "2" {
		t.Errorf("order: %s %s %s", hits[0].Item.ID, hits[1].Item.ID, hits[2].Item.ID)
	}
	if hits[0].Distance > 1e-9 {
		t.Errorf("identical vector distance: %v", hits[0].Distance)
	}
	if d := hits[2].Distance; d < 0.999 || d > 1.001 {
		t.Errorf("orthogonal distance: %v", d)
	}
}

func TestMemoryStore_FilterBeforeLimit(t *testing.T) {
	m := seedMemory(t)
	limit := 500
	// Pad Thai is farthest from the query but the only Thai item.
	hits, err := m.Search(context.Background(), "foods", []float32{1, 0}, 1, domain.Filter{Cuisine: "Thai"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Item.Name != "Pad Thai" {
		t.Fatalf("expected Pad Thai, got %+v", hits)
	}
	hits, err = m.Search(context.Background(), "foods", []float32{1, 0}, 5, domain.Filter{Cuisine: "Italian", MaxCalories: &limit})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Item.Name != "Risotto" {
		t.Fatalf("expected Risotto, got %+v", hits)
	}
}

func TestMemoryStore_UpsertOverwrites(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	err := m.Upsert(ctx, "foods", []VectorRecord{{ID: "1", Embedding: []float32{0, 1}, Item: domain.FoodItem{ID: "1", Name: "Calzone"}}})
	if err != nil {
		t.Fatal(err)
	}
	n, _ := m.Count(ctx, "foods")
	if n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}
	hits, _ := m.Search(ctx, "foods", []float32{0, 1}, 2, domain.Filter{})
	if len(hits) != 2 || hits[0].Item.Name != "Calzone" || hits[1].Item.ID != "2" {
		t.Fatalf("overwrite should keep position and win the tie, got %+v", hits)
	}
}

func TestMemoryStore_DeleteAndRecreate(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	if err := m.DeleteCollection(ctx, "foods"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteCollection(ctx, "foods"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := m.Count(ctx, "foods"); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
	if err := m.CreateCollection(ctx, "foods", 2, nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.Count(ctx, "foods"); n != 0 {
		t.Fatalf("recreated collection should be empty, got %d", n)
	}
}

func TestMemoryStore_Errors(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	if err := m.CreateCollection(ctx, "foods", 2, nil); err == nil {
		t.Error("expected duplicate create error")
	}
	if err := m.CreateCollection(ctx, "bad", 0, nil); err == nil {
		t.Error("expected dimension error")
	}
	if err := m.Upsert(ctx, "foods", []VectorRecord{{ID: "x", Embedding: []float32{1}}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := m.Upsert(ctx, "missing", nil); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
	if _, err := m.Search(ctx, "foods", []float32{1, 0, 0}, 1, domain.Filter{}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := m.Search(ctx, "missing", []float32{1, 0}, 1, domain.Filter{}); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
	if hits, err := m.Search(ctx, "foods", []float32{1, 0}, 0, domain.Filter{}); err != nil || len(hits) != 0 {
		t.Errorf("zero limit: %v %v", hits, err)
	}
}

func TestMemoryStore_ZeroVector(t *testing.T) {
	m := seedMemory(t)
	hits, err := m.Search(context.Background(), "foods", []float32{0, 0}, 3, domain.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.Distance != 1 {
			t.Errorf("zero query should be distance 1, got %v", h.Distance)
		}
	}
}

func TestMemoryStore_Metadata(t *testing.T) {
	m := seedMemory(t)
	meta, ok := m.Metadata("foods")
	if !ok || meta["description"] != "test" {
		t.Fatalf("metadata: %v %v", meta, ok)
	}
	if _, ok := m.Metadata("missing"); ok {
		t.Fatal("expected missing")
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	m := seedMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Search(ctx, "foods", []float32{1, 0}, 1, domain.Filter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
