package domain

import (
	"strconv"
	"strings"
)

// MaxResults caps the k accepted from callers.
const MaxResults = 50

// ValidateQuery rejects blank queries and returns the trimmed text.
func ValidateQuery(text string) (string, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return "", NewValidationError("query", text, ErrEmptyQuery)
	}
	return q, nil
}

// ValidateK checks a requested result count. Zero selects def.
func ValidateK(k, def int) (int, error) {
	if k == 0 {
		return def, nil
	}
	if k < 0 || k > MaxResults {
		return 0, NewValidationError("k", strconv.Itoa(k), ErrInvalidK)
	}
	return k, nil
}

// ParseCuisineSelection resolves a cuisine chosen either by its 1-based number
// in KnownCuisines or by name. Names are passed through as typed so that
// catalogs with other cuisines can still be filtered.
func ParseCuisineSelection(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", NewValidationError("cuisine", input, ErrInvalidCuisine)
	}
	if isDigits(s) {
		idx, err := strconv.Atoi(s)
		if err != nil || idx < 1 || idx > len(KnownCuisines) {
			return "", NewValidationError("cuisine", input, ErrInvalidCuisine)
		}
		return KnownCuisines[idx-1], nil
	}
	return s, nil
}

// ParseMaxCalories parses an optional calorie ceiling. Blank input means no
// limit and yields nil.
func ParseMaxCalories(input string) (*int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, nil
	}
	if !isDigits(s) {
		return nil, NewValidationError("max_calories", input, ErrInvalidCalories)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, NewValidationError("max_calories", input, ErrInvalidCalories)
	}
	return &v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
