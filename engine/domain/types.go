// Package domain defines the food catalog types, error kinds, and input
// validation shared by the mealscout engine. It acts as the validation gate
// in front of the retrieval pipeline.
package domain

// Default values applied to catalog fields that are missing from a record.
const (
	DefaultCuisine  = "Unknown"
	DefaultCalories = 0
)

// Feature is a single named attribute from an item's feature map.
type Feature struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// FoodItem is the canonical, fully defaulted form of one catalog record.
type FoodItem struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	CuisineType        string    `json:"cuisine_type"`
	CaloriesPerServing int       `json:"calories_per_serving"`
	Ingredients        []string  `json:"ingredients"`
	HealthBenefits     string    `json:"health_benefits,omitempty"`
	CookingMethod      string    `json:"cooking_method,omitempty"`
	Features           []Feature `json:"feature_map,omitempty"`
	TasteProfile       string    `json:"taste_profile"`
}

// FeatureValue returns the value of the named feature, if present.
func (f FoodItem) FeatureValue(name string) (any, bool) {
	for _, ft := range f.Features {
		if ft.Name == name {
			return ft.Value, true
		}
	}
	return nil, false
}

// SearchResult is one ranked hit returned by the query engine.
// Score is in [0,1]; higher means more relevant.
type SearchResult struct {
	Item  FoodItem `json:"item"`
	Score float64  `json:"similarity_score"`
}

// Filter restricts candidates before top-k selection. Zero value matches everything.
type Filter struct {
	Cuisine     string `json:"cuisine,omitempty"`
	MaxCalories *int   `json:"max_calories,omitempty"`
}

// IsZero reports whether the filter places no restriction on candidates.
func (f Filter) IsZero() bool {
	return f.Cuisine == "" && f.MaxCalories == nil
}

// Matches reports whether item satisfies every predicate set on the filter.
func (f Filter) Matches(item FoodItem) bool {
	if f.Cuisine != "" && item.CuisineType != f.Cuisine {
		return false
	}
	if f.MaxCalories != nil && item.CaloriesPerServing > *f.MaxCalories {
		return false
	}
	return true
}

// KnownCuisines lists the cuisines offered for numbered selection.
var KnownCuisines = []string{
	"Italian", "Thai", "Mexican", "Indian", "Japanese", "French",
	"Mediterranean", "American", "Health Food", "Dessert",
}
