// Package main implements the mealscout HTTP API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/mealscout/mealscout/engine/bootstrap"
	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/rag"
	"github.com/mealscout/mealscout/pkg/config"
	"github.com/mealscout/mealscout/pkg/mid"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(app, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newHandler(app *bootstrap.App, logger *slog.Logger) http.Handler {
	var limiter *rate.Limiter
	if r := app.Config.APIRateLimit; r > 0 {
		limiter = rate.NewLimiter(rate.Limit(r), max(1, int(r)))
	}
	admit := func(h http.HandlerFunc) http.Handler {
		return mid.Chain(h, mid.RateLimit(limiter), mid.Timeout(app.Config.RequestTimeout))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(app.Session))
	mux.HandleFunc("GET /api/cuisines", handleCuisines)
	mux.Handle("POST /api/recommend", admit(handleRecommend(app.Dispatcher, logger)))
	mux.Handle("POST /api/search", admit(handleSearch(app.Dispatcher, logger)))
	mux.Handle("GET /metrics", app.Metrics.Handler())

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(app.Config.CORSOrigin),
		mid.OTel("mealscout-api"),
	)
}

// --- Handlers ---

type readiness interface {
	Ready() bool
	Size() int
}

func handleHealth(s readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, code := "ok", http.StatusOK
		if !s.Ready() {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "items": s.Size()})
	}
}

func handleCuisines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"cuisines": domain.KnownCuisines})
}

type submitter interface {
	Submit(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

func handleRecommend(d submitter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		ans, err := d.Submit(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rag.NewRecommendResponse(ans))
	}
}

type searcher interface {
	Search(ctx context.Context, req rag.Request) ([]domain.SearchResult, error)
}

func handleSearch(s searcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		results, err := s.Search(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": rag.Views(results)})
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (rag.Request, bool) {
	var body rag.RecommendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		mid.Error(w, "invalid request body", http.StatusBadRequest)
		return rag.Request{}, false
	}
	req, err := body.Request()
	if err != nil {
		mid.Error(w, err.Error(), http.StatusBadRequest)
		return rag.Request{}, false
	}
	return req, true
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrQueueFull), errors.Is(err, rag.ErrNotReady), errors.Is(err, rag.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
		msg = "internal server error"
	}
	mid.Error(w, msg, code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
