// Package main runs a NATS worker that answers recommendation requests.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/mealscout/mealscout/engine/bootstrap"
	"github.com/mealscout/mealscout/engine/rag"
	"github.com/mealscout/mealscout/pkg/config"
	"github.com/mealscout/mealscout/pkg/natsutil"
)

// queueGroup lets several workers share one subject.
const queueGroup = "mealscout-workers"

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
		logger.Error("worker exited with error", "err", err)
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

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("mealscout-worker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	// Requests beyond the dispatcher's capacity still reach Submit and are
	// answered with a queue-full error rather than waiting in NATS.
	inFlight := 2 * (cfg.Workers + cfg.QueueSize)
	sub, err := natsutil.RespondConcurrent(nc, cfg.NATSSubject, queueGroup, inFlight,
		answer(app.Dispatcher, cfg.RequestTimeout, logger))
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", cfg.NATSSubject, err)
	}
	defer sub.Unsubscribe()

	app.Metrics.ServeAsync(":"+cfg.Port, logger)
	logger.Info("worker listening", "subject", cfg.NATSSubject, "queue", queueGroup, "in_flight", inFlight)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

type submitter interface {
	Submit(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

// answer handles one request end to end within timeout.
func answer(d submitter, timeout time.Duration, logger *slog.Logger) func(context.Context, rag.RecommendRequest) (rag.RecommendResponse, error) {
	return func(ctx context.Context, in rag.RecommendRequest) (rag.RecommendResponse, error) {
		req, err := in.Request()
		if err != nil {
			return rag.RecommendResponse{}, err
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		ans, err := d.Submit(ctx, req)
		if err != nil {
			logger.Warn("worker: request failed", "query", in.Query, "err", err)
			return rag.RecommendResponse{}, err
		}
		return rag.NewRecommendResponse(ans), nil
	}
}
