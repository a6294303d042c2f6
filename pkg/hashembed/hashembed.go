// Package hashembed is a local text embedder based on feature hashing.
// It needs no model server, which makes it the default for development
// and tests.
package hashembed

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/minio/highwayhash"
)

// DefaultDims matches the output size of the MiniLM sentence models.
const DefaultDims = 384

const bigramWeight = 0.5

var key = []byte("mealscout-hashembed-key-32-bytes")

// Embedder maps text to L2-normalized bag-of-words vectors. Word unigrams
// and adjacent bigrams are hashed into a fixed number of buckets.
type Embedder struct {
	dims int
}

// New returns an Embedder producing vectors of dims components.
// dims <= 0 selects DefaultDims.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Dimensions() int { return e.dims }

// Embed returns the vector for text. Text without any word characters
// yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	acc := make([]float64, e.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		acc[e.bucket(tok)]++
		if i > 0 {
			acc[e.bucket(tokens[i-1]+" "+tok)] += bigramWeight
		}
	}
	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	out := make([]float32, e.dims)
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, v := range acc {
		out[i] = float32(v / n)
	}
	return out
}

func (e *Embedder) bucket(token string) int {
	return int(highwayhash.Sum64([]byte(token), key) % uint64(e.dims))
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit, and folds simple plurals.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = singular(f)
	}
	return fields
}

func singular(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	default:
		return w
	}
}
