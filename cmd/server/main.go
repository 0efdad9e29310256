// Command server runs the CSV validation HTTP API.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/csvboard/csvboard/internal/apilog"
	"github.com/csvboard/csvboard/internal/assistant"
	"github.com/csvboard/csvboard/internal/config"
	"github.com/csvboard/csvboard/internal/logging"
	"github.com/csvboard/csvboard/internal/store"
	"github.com/csvboard/csvboard/internal/upload"
	"github.com/csvboard/csvboard/internal/web"
)

func main() {
	// Overload lets a local .env win over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file, using process environment")
	} else {
		slog.Info(".env loaded, overriding process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("configuration", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting",
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"assistant_configured", cfg.Assistant.APIKey != "",
	)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		fatal("database", err)
	}
	defer pool.Close()
	slog.Info("database ready", "name", dbName(cfg.Database.URL))

	st := store.New(pool, cfg.Upload.BatchSize)
	if err := st.Migrate(ctx); err != nil {
		fatal("schema migration", err)
	}

	limiter := upload.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	uploads := upload.NewService(st, limiter, slog.Default())
	recorder := apilog.New(st, cfg.RequestLog.BufferSize, slog.Default())

	ai, err := assistant.New(ctx, cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.Timeout)
	if err != nil {
		fatal("assistant", err)
	}
	if !ai.Enabled() {
		slog.Warn("assistant disabled: no API key configured")
	}

	server := web.NewServer(cfg, uploads, st, recorder, ai, slog.Default())

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go recorder.RunSweeper(jobCtx, cfg.RequestLog.SweepInterval, cfg.RequestLog.Retention)

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		slog.Info("shutdown signal received")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if ls := uploads.LimiterStatus(); ls.Active > 0 {
			slog.Info("draining active uploads", "active", ls.Active)
			if err := uploads.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("uploads still running at deadline", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}

	// Flush whatever the recorder still buffers before the pool closes.
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := recorder.Close(closeCtx); err != nil {
		slog.Warn("request log recorder did not drain", "error", err)
	}
}

// fatal logs the failed startup step and exits without running deferred
// cleanup.
func fatal(step string, err error) {
	slog.Error("startup failed", "step", step, "error", err)
	os.Exit(1)
}

// openPool builds a pgx pool from the database settings and verifies the
// connection before handing it back.
func openPool(ctx context.Context, dc config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dc.URL)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = int32(dc.MaxConns)
	pc.MinConns = int32(dc.MinConns)
	pc.MaxConnLifetime = dc.MaxConnLifetime
	pc.MaxConnIdleTime = dc.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// dbName pulls the database name out of a connection URL for logging.
// It returns the empty string when the URL does not parse.
func dbName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
