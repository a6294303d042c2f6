// Package main is a one-shot command-line client: it answers a single food
// recommendation request, either in-process or through a NATS worker.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/mealscout/mealscout/engine/bootstrap"
	"github.com/mealscout/mealscout/engine/domain"
	"github.com/mealscout/mealscout/engine/rag"
	"github.com/mealscout/mealscout/pkg/config"
	"github.com/mealscout/mealscout/pkg/natsutil"
)

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	query       string
	k           int
	cuisine     string
	maxCalories string
	viaNATS     bool
	asJSON      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.query, "q", "", "what you feel like eating (prompted if empty)")
	fs.IntVar(&o.k, "k", 0, "number of matches (default SIMILARITY_TOP_K)")
	fs.StringVar(&o.cuisine, "cuisine", "", "cuisine name or number from the known list")
	fs.StringVar(&o.maxCalories, "max-calories", "", "calorie ceiling per serving")
	fs.BoolVar(&o.viaNATS, "nats", false, "send the request to a worker over NATS")
	fs.BoolVar(&o.asJSON, "json", false, "print the response as JSON")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

// request builds the wire request, prompting on stdin for a missing query.
func (o options) request(stdin io.Reader, stdout io.Writer) (rag.RecommendRequest, error) {
	q := o.query
	if strings.TrimSpace(q) == "" {
		fmt.Fprint(stdout, "What would you like to eat? ")
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return rag.RecommendRequest{}, err
		}
		q = line
	}
	if _, err := domain.ValidateQuery(q); err != nil {
		return rag.RecommendRequest{}, err
	}
	maxCal, err := domain.ParseMaxCalories(o.maxCalories)
	if err != nil {
		return rag.RecommendRequest{}, err
	}
	return rag.RecommendRequest{Query: strings.TrimSpace(q), K: o.k, Cuisine: o.cuisine, MaxCalories: maxCal}, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	wire, err := o.request(stdin, stdout)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	var resp rag.RecommendResponse
	if o.viaNATS {
		resp, err = remote(ctx, cfg, wire)
	} else {
		resp, err = local(ctx, cfg, logger, wire)
	}
	if err != nil {
		return err
	}
	if o.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(stdout, resp)
	return nil
}

func local(ctx context.Context, cfg config.Config, logger *slog.Logger, wire rag.RecommendRequest) (rag.RecommendResponse, error) {
	req, err := wire.Request()
	if err != nil {
		return rag.RecommendResponse{}, err
	}
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return rag.RecommendResponse{}, err
	}
	defer app.Close()

	ans, err := app.Session.Ask(ctx, req)
	if err != nil {
		return rag.RecommendResponse{}, err
	}
	return rag.NewRecommendResponse(ans), nil
}

func remote(ctx context.Context, cfg config.Config, wire rag.RecommendRequest) (rag.RecommendResponse, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("mealscout-recommend"))
	if err != nil {
		return rag.RecommendResponse{}, fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	return natsutil.Request[rag.RecommendRequest, rag.RecommendResponse](ctx, nc, cfg.NATSSubject, wire)
}

func printResponse(w io.Writer, resp rag.RecommendResponse) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Results) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Top matches:")
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%d. %s (%s, %d kcal) %.1f%%\n", i+1, r.Name, r.CuisineType, r.CaloriesPerServing, r.Score*100)
	}
}
