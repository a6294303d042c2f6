package rag

import (
	"github.com/mealscout/mealscout/engine/domain"
)

// RecommendRequest is the JSON request accepted over HTTP and NATS.
// Cuisine may be a name or a 1-based number into domain.KnownCuisines.
type RecommendRequest struct {
	Query       string `json:"query"`
	K           int    `json:"k,omitempty"`
	Cuisine     string `json:"cuisine,omitempty"`
	MaxCalories *int   `json:"max_calories,omitempty"`
}

// Request converts the wire form. Only the cuisine selection is resolved
// here; Session validates the rest.
func (r RecommendRequest) Request() (Request, error) {
	req := Request{Query: r.Query, K: r.K, Filter: domain.Filter{MaxCalories: r.MaxCalories}}
	if r.Cuisine != "" {
		c, err := domain.ParseCuisineSelection(r.Cuisine)
		if err != nil {
			return Request{}, err
		}
		req.Filter.Cuisine = c
	}
	return req, nil
}

// ResultView is the compact form of a ranked result.
type ResultView struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	CuisineType        string  `json:"cuisine_type"`
	CaloriesPerServing int     `json:"calories_per_serving"`
	Score              float64 `json:"score"`
}

// RecommendResponse is the JSON answer returned over HTTP and NATS.
type RecommendResponse struct {
	Answer         string       `json:"answer"`
	Generated      bool         `json:"generated"`
	FallbackReason string       `json:"fallback_reason,omitempty"`
	Results        []ResultView `json:"results"`
}

// Views converts ranked results to their wire form.
func Views(results []domain.SearchResult) []ResultView {
	out := make([]ResultView, len(results))
	for i, r := range results {
		out[i] = ResultView{
			ID:                 r.Item.ID,
			Name:               r.Item.Name,
			CuisineType:        r.Item.CuisineType,
			CaloriesPerServing: r.Item.CaloriesPerServing,
			Score:              r.Score,
		}
	}
	return out
}

// NewRecommendResponse flattens an Answer for the wire.
func NewRecommendResponse(a *Answer) RecommendResponse {
	return RecommendResponse{
		Answer:         a.Text,
		Generated:      a.Generated,
		FallbackReason: a.FallbackReason,
		Results:        Views(a.Results),
	}
}
