package rag

import (
	"fmt"

	"github.com/mealscout/mealscout/engine/domain"
)

// NoResultsApology is the fallback answer when nothing was retrieved.
const NoResultsApology = "I'm sorry, I couldn't find any food items matching your request. Please try different search terms."

// Fallback builds a template answer from the top results. It is
// deterministic and never empty.
func Fallback(query string, results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoResultsApology
	}
	top := results[0].Item
	text := fmt.Sprintf("Based on your request for '%s', I recommend %s, a %s dish with %d calories per serving.",
		query, top.Name, top.CuisineType, top.CaloriesPerServing)
	if len(results) > 1 {
		text += fmt.Sprintf(" You might also enjoy %s.", results[1].Item.Name)
	}
	return text
}
