// Package rag turns retrieved food items into a recommendation. It builds
// the generation prompt, calls the text generator behind a circuit breaker,
// and falls back to a deterministic answer whenever generation is missing,
// failing, or produces unusable text.
package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/prompt"
	"github.com/mealscout/mealscout/pkg/fn"
	"github.com/mealscout/mealscout/pkg/metrics"
	"github.com/mealscout/mealscout/pkg/resilience"
)

// MinResponseLength is the shortest generated answer, in characters after
// trimming, that is accepted.
const MinResponseLength = 50

// Fallback reasons reported in Response.FallbackReason.
const (
	ReasonNoGenerator = "no_generator"
	ReasonError       = "generation_error"
	ReasonCircuitOpen = "circuit_open"
	ReasonEmpty       = "empty_output"
	ReasonTooShort    = "too_short"
)

// GenerationParams are the sampling settings passed to a Generator.
type GenerationParams struct {
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens" yaml:"max_new_tokens"`
	MinNewTokens int     `json:"min_new_tokens" yaml:"min_new_tokens"`
	TopK         int     `json:"top_k" yaml:"top_k"`
	TopP         float64 `json:"top_p" yaml:"top_p"`
	DoSample     bool    `json:"do_sample" yaml:"do_sample"`
}

// DefaultGenerationParams returns low-temperature sampling with room for a
// few paragraphs.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:  0.1,
		MaxNewTokens: 500,
		MinNewTokens: 1,
		TopK:         50,
		TopP:         1.0,
		DoSample:     true,
	}
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Response is the synthesized answer. Text is never blank.
type Response struct {
	Text           string `json:"answer"`
	Prompt         string `json:"-"`
	Generated      bool   `json:"generated"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// Synthesizer produces responses. It is safe for concurrent use.
type Synthesizer struct {
	gen     Generator
	params  GenerationParams
	breaker *resilience.Breaker
	logger  *slog.Logger

	reg        *metrics.Registry
	genSeconds *metrics.Histogram
}

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) SynthOption {
	return func(s *Synthesizer) { s.breaker = b }
}

// WithSynthMetrics records generation latency and fallbacks in reg.
func WithSynthMetrics(reg *metrics.Registry) SynthOption {
	return func(s *Synthesizer) {
		s.reg = reg
		s.genSeconds = reg.Histogram("mealscout_generation_seconds", "Text generation latency.", nil)
	}
}

// NewSynthesizer creates a Synthesizer. A nil gen is allowed; every
// response is then a fallback.
func NewSynthesizer(gen Generator, params GenerationParams, logger *slog.Logger, opts ...SynthOption) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{
		gen:     gen,
		params:  params,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Respond answers query from results. Generation problems never surface as
// errors: they are logged and replaced by Fallback.
func (s *Synthesizer) Respond(ctx context.Context, query string, results []domain.SearchResult) Response {
	ctx, span := otel.Tracer("engine/rag").Start(ctx, "rag.respond")
	defer span.End()

	p := prompt.Assemble(query, results)
	text, genErr := s.generate(ctx, p)
	if genErr != nil {
		span.SetAttributes(attribute.String("fallback_reason", genErr.Reason))
		s.logger.Warn("rag: using fallback response", "reason", genErr.Reason, "err", genErr)
		s.countFallback(genErr.Reason)
		return Response{Text: Fallback(query, results), Prompt: p, FallbackReason: genErr.Reason}
	}
	return Response{Text: text, Prompt: p, Generated: true}
}

func (s *Synthesizer) generate(ctx context.Context, p string) (string, *domain.GenerationError) {
	if s.gen == nil {
		return "", &domain.GenerationError{Reason: ReasonNoGenerator}
	}

	start := time.Now()
	out, err := resilience.CallResult(s.breaker, ctx, func(ctx context.Context) fn.Result[string] {
		return fn.FromPair(s.gen.Generate(ctx, p, s.params))
	}).Unwrap()
	if s.genSeconds != nil {
		s.genSeconds.Since(start)
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "", &domain.GenerationError{Reason: ReasonCircuitOpen, Err: err}
	case err != nil:
		return "", &domain.GenerationError{Reason: ReasonError, Err: err}
	}
	out = strings.TrimSpace(out)
	switch {
	case out == "":
		return "", &domain.GenerationError{Reason: ReasonEmpty}
	case utf8.RuneCountInString(out) < MinResponseLength:
		return "", &domain.GenerationError{Reason: ReasonTooShort}
	}
	return out, nil
}

func (s *Synthesizer) countFallback(reason string) {
	if s.reg == nil {
		return
	}
	s.reg.Counter(metrics.WithLabels("mealscout_fallbacks_total", "reason", reason),
		"Responses served from the fallback template.").Inc()
}
