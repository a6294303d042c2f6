package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/mealscout/mealscout/engine/catalog"
	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/index"
	"github.com/mealscout/mealscout/engine/semantic"
	"github.com/mealscout/mealscout/pkg/hashembed"
	"github.com/mealscout/mealscout/pkg/metrics"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countingEmbedder struct {
	*hashembed.Embedder
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.Embed(ctx, text)
}

func build(t *testing.T, emb index.Embedder, items []domain.FoodItem) *index.Collection {
	t.Helper()
	b := index.NewBuilder(semantic.NewMemoryStore(), emb, quiet())
	coll, err := b.CreateCollection(context.Background(), "foods", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Populate(context.Background(), coll, items); err != nil {
		t.Fatal(err)
	}
	return coll
}

func exampleCatalog(t *testing.T) []domain.FoodItem {
	t.Helper()
	items, err := catalog.Parse(strings.NewReader(`[
		{"name":"Margherita Pizza","cuisine_type":"Italian","calories_per_serving":250},
		{"name":"Pad Thai","cuisine_type":"Thai","calories_per_serving":400}
	]`), catalog.FormatJSON, quiet())
	if err != nil {
		t.Fatal(err)
	}
	return items
}

func randomCatalog(n int, seed int64) []domain.FoodItem {
	r := rand.New(rand.NewSource(seed))
	words := []string{"spicy", "sweet", "noodle", "rice", "cheese", "tomato", "curry", "grilled", "fresh", "creamy", "chocolate", "salad"}
	items := make([]domain.FoodItem, n)
	for i := range items {
		name := words[r.Intn(len(words))] + " " + words[r.Intn(len(words))]
		items[i] = domain.FoodItem{
			ID:                 fmt.Sprint(i + 1),
			Name:               name,
			Description:        words[r.Intn(len(words))],
			CuisineType:        domain.KnownCuisines[r.Intn(len(domain.KnownCuisines))],
			CaloriesPerServing: 100 + r.Intn(900),
			Ingredients:        []string{words[r.Intn(len(words))]},
		}
	}
	return items
}

func TestExample_PizzaRanksFirst(t *testing.T) {
	coll := build(t, hashembed.New(0), exampleCatalog(t))
	e := New(quiet())

	top, err := e.Search(context.Background(), coll, "pizza", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Item.Name != "Margherita Pizza" {
		t.Fatalf("expected Margherita Pizza, got %+v", top)
	}
	all, _ := e.Search(context.Background(), coll, "pizza", 2)
	for _, r := range all {
		if r.Item.Name == "Pad Thai" && r.Score > top[0].Score {
			t.Fatalf("Pad Thai outscored pizza: %v > %v", r.Score, top[0].Score)
		}
	}
}

func TestExample_CuisineFilter(t *testing.T) {
	coll := build(t, hashembed.New(0), exampleCatalog(t))
	e := New(quiet())
	for _, q := range []string{"pizza", "noodles", "anything"} {
		res, err := e.FilteredSearch(context.Background(), coll, q, 5, domain.Filter{Cuisine: "Thai"})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range res {
			if r.Item.Name != "Pad Thai" {
				t.Fatalf("query %q returned %s under Thai filter", q, r.Item.Name)
			}
		}
	}
}

func TestExample_CalorieFilter(t *testing.T) {
	coll := build(t, hashembed.New(0), exampleCatalog(t))
	e := New(quiet())
	limit := 300
	for _, q := range []string{"pad thai", "pizza", "thai noodles"} {
		res, err := e.FilteredSearch(context.Background(), coll, q, 5, domain.Filter{MaxCalories: &limit})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range res {
			if r.Item.Name == "Pad Thai" {
				t.Fatalf("query %q returned Pad Thai under 300 kcal filter", q)
			}
		}
	}
}

func TestSearch_Completeness(t *testing.T) {
	items := randomCatalog(40, 1)
	coll := build(t, hashembed.New(64), items)
	res, err := New(quiet()).Search(context.Background(), coll, "spicy noodle", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(res))
	}
	seen := map[string]bool{}
	for _, r := range res {
		seen[r.Item.ID] = true
	}
	for _, it := range items {
		if !seen[it.ID] {
			t.Fatalf("item %s missing from results", it.ID)
		}
	}
}

func TestFilteredSearch_PredicateAndOrder(t *testing.T) {
	items := randomCatalog(120, 7)
	coll := build(t, hashembed.New(0), items)
	e := New(quiet())
	limit := 500
	filters := []domain.Filter{
		{},
		{Cuisine: "Italian"},
		{MaxCalories: &limit},
		{Cuisine: "Thai", MaxCalories: &limit},
	}
	for _, f := range filters {
		for _, q := range []string{"spicy curry", "creamy chocolate", "fresh salad"} {
			res, err := e.FilteredSearch(context.Background(), coll, q, 10, f)
			if err != nil {
				t.Fatal(err)
			}
			for i, r := range res {
				if !f.Matches(r.Item) {
					t.Fatalf("result %+v violates filter %+v", r.Item, f)
				}
				if r.Score < 0 || r.Score > 1 {
					t.Fatalf("score out of range: %v", r.Score)
				}
				if i > 0 && r.Score > res[i-1].Score {
					t.Fatalf("scores increase at %d: %v > %v", i, r.Score, res[i-1].Score)
				}
			}
		}
	}
}

func TestFilteredSearch_NarrowFilterNotStarved(t *testing.T) {
	items := randomCatalog(60, 3)
	items = append(items, domain.FoodItem{ID: "rare", Name: "unrelated", CuisineType: "Nordic", Ingredients: []string{}})
	coll := build(t, hashembed.New(0), items)
	res, err := New(quiet()).FilteredSearch(context.Background(), coll, "spicy noodle", 1, domain.Filter{Cuisine: "Nordic"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Item.ID != "rare" {
		t.Fatalf("expected the only Nordic item, got %+v", res)
	}
}

func TestSearch_RecreateDropsPriorItems(t *testing.T) {
	store := semantic.NewMemoryStore()
	emb := hashembed.New(0)
	b := index.NewBuilder(store, emb, quiet())
	ctx := context.Background()

	coll, _ := b.CreateCollection(ctx, "foods", nil)
	_ = b.Populate(ctx, coll, []domain.FoodItem{{ID: "old-1", Name: "Pizza"}, {ID: "old-2", Name: "Pasta"}})
	coll, _ = b.CreateCollection(ctx, "foods", nil)
	_ = b.Populate(ctx, coll, []domain.FoodItem{{ID: "new-1", Name: "Pizza bianca"}})

	res, err := New(quiet()).Search(ctx, coll, "pizza", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res {
		if strings.HasPrefix(r.Item.ID, "old-") {
			t.Fatalf("stale item %s returned", r.Item.ID)
		}
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
}

func TestSearch_NonPositiveKSkipsEmbedding(t *testing.T) {
	emb := &countingEmbedder{Embedder: hashembed.New(8)}
	coll := build(t, emb, exampleCatalog(t))
	for _, k := range []int{0, -3} {
		res, err := New(quiet()).Search(context.Background(), coll, "pizza", k)
		if err != nil || res == nil || len(res) != 0 {
			t.Fatalf("k=%d: expected empty result, got %v %v", k, res, err)
		}
	}
	if emb.calls != 0 {
		t.Fatalf("expected no embedding calls, got %d", emb.calls)
	}
}

func TestSearch_NoMatchesIsEmpty(t *testing.T) {
	coll := build(t, hashembed.New(0), exampleCatalog(t))
	res, err := New(quiet()).FilteredSearch(context.Background(), coll, "pizza", 5, domain.Filter{Cuisine: "French"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("expected no results, got %+v", res)
	}
}

func TestSearch_EmbedFailure(t *testing.T) {
	emb := &countingEmbedder{Embedder: hashembed.New(8)}
	coll := build(t, emb, exampleCatalog(t))
	emb.err = errors.New("model offline")

	_, err := New(quiet()).Search(context.Background(), coll, "pizza", 3)
	if !errors.Is(err, domain.ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
	var qe *domain.QueryError
	if !errors.As(err, &qe) || qe.Collection != "foods" {
		t.Fatalf("expected QueryError for foods, got %#v", err)
	}
}

func TestSearch_CountsQueries(t *testing.T) {
	reg := metrics.New()
	coll := build(t, hashembed.New(0), exampleCatalog(t))
	e := New(quiet(), WithMetrics(reg))
	for i := 0; i < 3; i++ {
		if _, err := e.Search(context.Background(), coll, "pizza", 1); err != nil {
			t.Fatal(err)
		}
	}
	if !strings.Contains(reg.Render(), "mealscout_queries_total 3") {
		t.Fatalf("metrics:\n%s", reg.Render())
	}
}

func TestScore(t *testing.T) {
	cases := []struct{ dist, want float64 }{
		{0, 1}, {0.25, 0.75}, {1, 0}, {1.7, 0}, {-0.2, 1},
	}
	for _, c := range cases {
		if got := Score(c.dist); got != c.want {
			t.Errorf("Score(%v) = %v, want %v", c.dist, got, c.want)
		}
	}
}
