// Package catalog loads and normalizes the food catalog into domain.FoodItems.
package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/mealscout/mealscout/engine/domain"
)

// Accepted field names. The food_* variants come from the public dataset the
// catalog was first assembled from.
var (
	idKeys          = []string{"id", "food_id"}
	nameKeys        = []string{"name", "food_name"}
	descriptionKeys = []string{"description", "food_description"}
	cuisineKeys     = []string{"cuisine_type", "food_cuisine_type"}
	caloriesKeys    = []string{"calories_per_serving", "food_calories_per_serving"}
	ingredientKeys  = []string{"ingredients", "food_ingredients"}
	benefitKeys     = []string{"health_benefits", "food_health_benefits"}
	methodKeys      = []string{"cooking_method", "food_cooking_method"}
	featureKeys     = []string{"feature_map", "food_features"}
)

// Load reads the catalog at path. It never fails: unreadable or malformed
// input is logged and an empty catalog is returned.
func Load(path string, logger *slog.Logger) []domain.FoodItem {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Error("catalog: load failed", "err", &domain.DataLoadError{Source: path, Err: err})
		return []domain.FoodItem{}
	}
	defer f.Close()

	items, err := parse(f, path, FormatFor(path), logger)
	if err != nil {
		logger.Error("catalog: load failed", "err", err)
		return []domain.FoodItem{}
	}
	logger.Info("catalog: loaded", "path", path, "items", len(items))
	return items
}

// Parse decodes and normalizes a catalog stream. Errors are *domain.DataLoadError.
func Parse(r io.Reader, format Format, logger *slog.Logger) ([]domain.FoodItem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return parse(r, format.String()+" stream", format, logger)
}

func parse(r io.Reader, source string, format Format, logger *slog.Logger) ([]domain.FoodItem, error) {
	values, err := decode(r, format)
	if err != nil {
		return nil, &domain.DataLoadError{Source: source, Err: err}
	}
	return Normalize(values, logger), nil
}

// Normalize converts decoded records into FoodItems. Elements may be ordered
// records from Parse or plain map[string]any values; anything else is skipped.
// Positions are 1-based and count skipped elements.
func Normalize(values []any, logger *slog.Logger) []domain.FoodItem {
	if logger == nil {
		logger = slog.Default()
	}
	items := make([]domain.FoodItem, 0, len(values))
	seen := make(map[string]bool, len(values))
	for i, v := range values {
		pos := i + 1
		rec, ok := asRecord(v)
		if !ok {
			logger.Warn("catalog: skipping non-object record", "position", pos)
			continue
		}
		item := normalizeRecord(rec, pos)
		if seen[item.ID] {
			id := uniqueID(item.ID, pos, seen)
			logger.Warn("catalog: duplicate id renamed", "id", item.ID, "position", pos, "new_id", id)
			item.ID = id
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	return items
}

func uniqueID(id string, pos int, seen map[string]bool) string {
	candidate := fmt.Sprintf("%s-%d", id, pos)
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d-%d", id, pos, n)
	}
	return candidate
}

func asRecord(v any) (record, bool) {
	switch t := v.(type) {
	case record:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := make(record, 0, len(keys))
		for _, k := range keys {
			rec = append(rec, field{key: k, value: t[k]})
		}
		return rec, true
	default:
		return nil, false
	}
}

func normalizeRecord(rec record, pos int) domain.FoodItem {
	item := domain.FoodItem{
		ID:                 strconv.Itoa(pos),
		CuisineType:        domain.DefaultCuisine,
		CaloriesPerServing: domain.DefaultCalories,
		Ingredients:        []string{},
	}
	if v, ok := rec.lookup(idKeys...); ok {
		if s, ok := scalarString(v); ok && s != "" {
			item.ID = s
		}
	}
	item.Name = stringField(rec, nameKeys)
	item.Description = stringField(rec, descriptionKeys)
	if s := stringField(rec, cuisineKeys); s != "" {
		item.CuisineType = s
	}
	if v, ok := rec.lookup(caloriesKeys...); ok {
		if n, ok := toInt(v); ok {
			item.CaloriesPerServing = n
		}
	}
	if v, ok := rec.lookup(ingredientKeys...); ok {
		item.Ingredients = stringList(v)
	}
	item.HealthBenefits = stringField(rec, benefitKeys)
	item.CookingMethod = stringField(rec, methodKeys)
	if v, ok := rec.lookup(featureKeys...); ok {
		if fm, ok := asRecord(v); ok {
			item.Features = features(fm)
			item.TasteProfile = tasteProfile(item.Features)
		}
	}
	return item
}

func stringField(rec record, keys []string) string {
	v, ok := rec.lookup(keys...)
	if !ok {
		return ""
	}
	if s, ok := scalarString(v); ok {
		return s
	}
	return render(plain(v))
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			if s, ok := scalarString(e); ok {
				out = append(out, s)
				continue
			}
			out = append(out, render(plain(e)))
		}
		return out
	case nil:
		return []string{}
	default:
		if s, ok := scalarString(t); ok && s != "" {
			return []string{s}
		}
		return []string{}
	}
}
