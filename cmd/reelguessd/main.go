package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/reelguess/reelguess"
	"github.com/reelguess/reelguess/config"
	"github.com/reelguess/reelguess/server"
	"github.com/reelguess/reelguess/tmdb"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("load config", zap.Error(err))
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	client := tmdb.New(cfg.TMDB.APIKey,
		tmdb.WithBaseURL(cfg.TMDB.BaseURL),
		tmdb.WithRateLimit(cfg.TMDB.RateLimit, cfg.TMDB.RateBurst),
		tmdb.WithMinVotes(cfg.TMDB.MinVotes),
		tmdb.WithPageWindow(cfg.TMDB.PageWindow),
		tmdb.WithLogger(logger.Named("tmdb")),
	)

	buffer := reelguess.New(client.Round, func(round tmdb.Round) string { return round.ID },
		reelguess.WithCapacity(cfg.Buffer.Capacity),
		reelguess.WithConcurrency(cfg.Buffer.Concurrency),
		reelguess.WithMaxAttempts(cfg.Buffer.MaxAttempts),
		reelguess.WithWaitTimeout(time.Duration(cfg.Buffer.WaitTimeout)),
		reelguess.WithLogger(logger.Named("buffer")),
		reelguess.WithPrometheus(reelguess.Prometheus(prometheus.DefaultRegisterer)),
	)

	// Equal filters are a no-op, so this is safe even when the config holds
	// none.
	buffer.SetFilters(tmdb.Filters{
		YearFrom: cfg.Filters.YearFrom,
		YearTo:   cfg.Filters.YearTo,
		Language: cfg.Filters.Language,
	})

	srv := server.New(buffer,
		server.WithListen(cfg.Listen),
		server.WithLogger(logger.Named("http")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(srv.Start)

	// Drain HTTP first so no handler is left consuming from a closed buffer.
	group.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}

		return buffer.Close()
	})

	if err := group.Wait(); err != nil {
		logger.Fatal("run", zap.Error(err))
	}

	logger.Info("stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	return cfg.Build()
}
