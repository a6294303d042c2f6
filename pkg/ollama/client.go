// Package ollama talks to an Ollama server over its HTTP API for embeddings
// and text generation.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mealscout/mealscout/pkg/fn"
)

// DefaultURL is the address of a local Ollama server.
const DefaultURL = "http://localhost:11434"

// ErrBadResponse marks a reply that arrived but cannot be used: an
// undecodable body or an unusable payload. Such errors are never retried.
var ErrBadResponse = errors.New("ollama: bad response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ollama: %s: status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("ollama: %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Option configures a client.
type Option func(*base)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.client = c }
}

// WithLimiter paces outbound requests. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(b *base) { b.limiter = l }
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(opts fn.RetryOpts) Option {
	return func(b *base) { b.retry = opts }
}

var defaultRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
	ShouldRetry: retryable,
}

type base struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retry   fn.RetryOpts
}

func newBase(baseURL string, opts []Option) base {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	b := base{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		retry:   defaultRetry,
	}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// retryable reports whether err is worth another attempt. Client errors,
// bad responses and cancellation are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrBadResponse) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return true
}

// post sends a JSON request to path and decodes the JSON response into out.
func (b *base) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: %s: encode: %w", path, err)
	}
	res := fn.Retry(ctx, b.retry, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, b.once(ctx, path, body, out))
	})
	_, err = res.Unwrap()
	return err
}

func (b *base) once(ctx context.Context, path string, body []byte, out any) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("ollama: %s: %w", path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %w", ErrBadResponse, path, err)
	}
	return nil
}
