package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/recurring-calendar/internal/application"
	"github.com/example/recurring-calendar/internal/config"
	httptransport "github.com/example/recurring-calendar/internal/http"
	"github.com/example/recurring-calendar/internal/ics"
	"github.com/example/recurring-calendar/internal/janitor"
	"github.com/example/recurring-calendar/internal/persistence/sqlite"
	"github.com/example/recurring-calendar/internal/persistence/sqlite/migration"
	"github.com/example/recurring-calendar/internal/tz"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if _, err := tz.Load(cfg.Timezone); err != nil {
		logger.Error("configured timezone is not usable", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool, logger); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	now := time.Now
	cache := application.NewWindowCache(0, 0, now)

	seriesStore := sqlite.NewSeriesRepository(pool)
	exceptionStore := sqlite.NewExceptionRepository(pool)
	seriesRepo := newSeriesRepositoryAdapter(seriesStore)
	exceptionRepo := newExceptionRepositoryAdapter(exceptionStore)

	seriesService := application.NewSeriesServiceWithLogger(seriesRepo, cache, idGenerator, now, logger)
	occurrenceService := application.NewOccurrenceServiceWithLogger(seriesRepo, exceptionRepo, cache, idGenerator, now, logger)

	seriesHandler := httptransport.NewSeriesHandler(seriesService, logger)
	occurrenceHandler := httptransport.NewOccurrenceHandler(occurrenceService, ics.NewEncoder(now), logger).
		WithDefaultTimezone(cfg.Timezone)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Series:      seriesHandler,
		Occurrences: occurrenceHandler,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
		},
	})

	purger := janitor.New(seriesStore, cfg.PurgeCron, cfg.PurgeRetention, logger)
	if err := purger.Start(ctx); err != nil {
		logger.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}
	defer purger.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("calendar API listening", "addr", server.Addr, "timezone", cfg.Timezone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
