package catalog

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mealscout/mealscout/engine/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse_JSONDefaults(t *testing.T) {
	in := `[{"name":"Margherita Pizza"},{"id":7,"name":"Pad Thai","cuisine_type":"Thai","calories_per_serving":400}]`
	items, err := Parse(strings.NewReader(in), FormatJSON, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	a := items[0]
	if a.ID != "1" {
		t.Errorf("positional id: got %q", a.ID)
	}
	if a.CuisineType != domain.DefaultCuisine || a.CaloriesPerServing != 0 || a.Description != "" {
		t.Errorf("defaults not applied: %+v", a)
	}
	if a.Ingredients == nil || len(a.Ingredients) != 0 {
		t.Errorf("ingredients should be empty non-nil, got %#v", a.Ingredients)
	}
	if a.TasteProfile != "" {
		t.Errorf("taste profile should be empty, got %q", a.TasteProfile)
	}
	b := items[1]
	if b.ID != "7" || b.CuisineType != "Thai" || b.CaloriesPerServing != 400 {
		t.Errorf("explicit fields: %+v", b)
	}
}

func TestParse_Aliases(t *testing.T) {
	in := `[{
		"food_id": "f-9",
		"food_name": "Ramen",
		"food_description": "Noodle soup",
		"food_calories_per_serving": "550",
		"food_ingredients": ["noodles", "broth"],
		"food_health_benefits": "warming",
		"food_features": {"spicy": false, "umami": "rich"}
	}]`
	items, err := Parse(strings.NewReader(in), FormatJSON, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := items[0]
	if got.ID != "f-9" || got.Name != "Ramen" || got.Description != "Noodle soup" {
		t.Errorf("aliases: %+v", got)
	}
	if got.CaloriesPerServing != 550 {
		t.Errorf("calories: got %d", got.CaloriesPerServing)
	}
	if len(got.Ingredients) != 2 || got.Ingredients[1] != "broth" {
		t.Errorf("ingredients: %v", got.Ingredients)
	}
	if got.HealthBenefits != "warming" {
		t.Errorf("health benefits: %q", got.HealthBenefits)
	}
	if got.TasteProfile != "rich" {
		t.Errorf("taste profile: %q", got.TasteProfile)
	}
}

func TestParse_TasteProfileOrderAndTruthiness(t *testing.T) {
	in := `[{"name":"x","feature_map":{
		"sweetness": "high",
		"spicy": true,
		"empty": "",
		"zero": 0,
		"none": null,
		"level": 2,
		"tags": ["crispy", "golden"],
		"nothing": [],
		"off": false
	}}]`
	items, err := Parse(strings.NewReader(in), FormatJSON, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "high, true, 2, crispy golden"
	if items[0].TasteProfile != want {
		t.Errorf("taste profile: got %q, want %q", items[0].TasteProfile, want)
	}
	if len(items[0].Features) != 9 || items[0].Features[0].Name != "sweetness" {
		t.Errorf("features should keep source order: %+v", items[0].Features)
	}
	if v, ok := items[0].FeatureValue("level"); !ok || v != int64(2) {
		t.Errorf("level feature: %v %v", v, ok)
	}
}

func TestParse_DuplicateIDs(t *testing.T) {
	in := `[{"id":"a","name":"one"},{"id":"a","name":"two"},{"name":"three"}]`
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	items, err := Parse(strings.NewReader(in), FormatJSON, logger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ids := []string{items[0].ID, items[1].ID, items[2].ID}
	if ids[0] != "a" || ids[1] != "a-2" || ids[2] != "3" {
		t.Errorf("ids: %v", ids)
	}
	if !strings.Contains(buf.String(), "duplicate id") {
		t.Errorf("expected duplicate warning, log: %s", buf.String())
	}
}

func TestParse_IdenticalRecordsGetPositionIDs(t *testing.T) {
	in := `[{"name":"x"},{"name":"x"}]`
	items, err := Parse(strings.NewReader(in), FormatJSON, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].ID != "2" {
		t.Fatalf("items: %+v", items)
	}
	if items[0].Name != "x" || items[1].Name != "x" {
		t.Errorf("names: %q %q", items[0].Name, items[1].Name)
	}
}

func TestParse_SkipsNonObjects(t *testing.T) {
	in := `[{"name":"one"}, 42, "x", {"name":"four"}]`
	items, err := Parse(strings.NewReader(in), FormatJSON, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[1].ID != "4" {
		t.Errorf("position should count skipped elements, got %q", items[1].ID)
	}
}

func TestParse_YAML(t *testing.T) {
	in := `
- id: 12
  name: Tiramisu
  cuisine_type: Dessert
  calories_per_serving: 450
  ingredients: [mascarpone, espresso]
  feature_map:
    texture: creamy
    caffeinated: true
    nuts: false
- name: Salad
`
	items, err := Parse(strings.NewReader(in), FormatYAML, quietLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2, got %d", len(items))
	}
	if items[0].ID != "12" || items[0].CaloriesPerServing != 450 {
		t.Errorf("yaml item: %+v", items[0])
	}
	if items[0].TasteProfile != "creamy, true" {
		t.Errorf("taste profile: %q", items[0].TasteProfile)
	}
	if items[1].ID != "2" {
		t.Errorf("positional id: %q", items[1].ID)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		format Format
	}{
		{"malformed json", `[{"name":`, FormatJSON},
		{"object root", `{"name":"x"}`, FormatJSON},
		{"trailing data", `[] []`, FormatJSON},
		{"empty", ``, FormatJSON},
		{"yaml mapping root", "name: x\n", FormatYAML},
		{"empty yaml", "", FormatYAML},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.in), tc.format, quietLogger())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrDataLoad) {
				t.Errorf("expected ErrDataLoad, got %v", err)
			}
			var dle *domain.DataLoadError
			if !errors.As(err, &dle) {
				t.Errorf("expected *DataLoadError, got %T", err)
			}
		})
	}
}

func TestLoad_MissingFileSoftFails(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	items := Load(filepath.Join(t.TempDir(), "missing.json"), logger)
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil catalog, got %#v", items)
	}
	if !strings.Contains(buf.String(), "load failed") {
		t.Errorf("expected logged failure, got %s", buf.String())
	}
}

func TestLoad_MalformedFileSoftFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if items := Load(path, quietLogger()); items == nil || len(items) != 0 {
		t.Fatalf("expected empty catalog, got %#v", items)
	}
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "foods.json")
	yamlPath := filepath.Join(dir, "foods.yml")
	if err := os.WriteFile(jsonPath, []byte(`[{"name":"a"},{"name":"b"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("- name: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := len(Load(jsonPath, quietLogger())); got != 2 {
		t.Errorf("json: got %d items", got)
	}
	if got := len(Load(yamlPath, quietLogger())); got != 1 {
		t.Errorf("yaml: got %d items", got)
	}
}

func TestNormalize_PlainMaps(t *testing.T) {
	items := Normalize([]any{
		map[string]any{"id": 3, "name": "Soup", "ingredients": []any{"water", nil, 2}},
		nil,
	}, quietLogger())
	if len(items) != 1 {
		t.Fatalf("expected 1, got %d", len(items))
	}
	if items[0].ID != "3" {
		t.Errorf("id: %q", items[0].ID)
	}
	if strings.Join(items[0].Ingredients, "|") != "water|2" {
		t.Errorf("ingredients: %v", items[0].Ingredients)
	}
}

func TestFormatFor(t *testing.T) {
	cases := map[string]Format{
		"a.json": FormatJSON,
		"a.YAML": FormatYAML,
		"a.yml":  FormatYAML,
		"a.txt":  FormatJSON,
		"noext":  FormatJSON,
	}
	for path, want := range cases {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %v, want %v", path, got, want)
		}
	}
}
