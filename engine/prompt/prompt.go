// Package prompt renders retrieved food items into the generation prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mealscout/mealscout/engine/domain"
)

const (
	// MaxContextItems is how many results are rendered into the context.
	MaxContextItems = 3
	// MaxIngredients is how many ingredients are listed per item.
	MaxIngredients = 5
)

// NoResultsContext stands in for the context when nothing was retrieved.
const NoResultsContext = "No relevant food items were found in the database."

// Template is the generation prompt. {query} and {context} are substituted
// by Assemble.
const Template = `You are a helpful food recommendation assistant. A user is asking for food recommendations, and I've retrieved relevant options from a food database.
User Query: "{query}"
Retrieved Food Information:
{context}
Please provide a helpful, short response that:
1. Acknowledges the user's request
2. Recommends 2-3 specific food items from the retrieved options
3. Explains why these recommendations match their request
4. Includes relevant details like cuisine type, calories, or health benefits
5. Uses a friendly, conversational tone
6. Keeps the response concise but informative
Response:`

// Assemble fills Template with query and the context built from results.
// Placeholder text inside query is left as typed.
func Assemble(query string, results []domain.SearchResult) string {
	r := strings.NewReplacer("{query}", query, "{context}", BuildContext(results))
	return r.Replace(Template)
}

// BuildContext renders up to MaxContextItems results, in the order given,
// as numbered blocks separated by blank lines.
func BuildContext(results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoResultsContext
	}
	if len(results) > MaxContextItems {
		results = results[:MaxContextItems]
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = block(i+1, r)
	}
	return strings.Join(blocks, "\n\n")
}

func block(n int, r domain.SearchResult) string {
	it := r.Item
	var b strings.Builder
	fmt.Fprintf(&b, "Food Item %d:\n", n)
	fmt.Fprintf(&b, "- Name: %s\n", it.Name)
	fmt.Fprintf(&b, "- Description: %s\n", it.Description)
	fmt.Fprintf(&b, "- Cuisine: %s\n", it.CuisineType)
	fmt.Fprintf(&b, "- Calories: %d per serving\n", it.CaloriesPerServing)
	if len(it.Ingredients) > 0 {
		ing := it.Ingredients
		if len(ing) > MaxIngredients {
			ing = ing[:MaxIngredients]
		}
		fmt.Fprintf(&b, "- Ingredients: %s\n", strings.Join(ing, ", "))
	}
	if it.HealthBenefits != "" {
		fmt.Fprintf(&b, "- Health Benefits: %s\n", it.HealthBenefits)
	}
	if it.CookingMethod != "" {
		fmt.Fprintf(&b, "- Cooking Method: %s\n", it.CookingMethod)
	}
	if it.TasteProfile != "" {
		fmt.Fprintf(&b, "- Taste Profile: %s\n", it.TasteProfile)
	}
	fmt.Fprintf(&b, "- Similarity Score: %.1f%%", r.Score*100)
	return b.String()
}
