package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/suPer8Hu/ai-relay/internal/config"
	"github.com/suPer8Hu/ai-relay/internal/logger"
	"github.com/suPer8Hu/ai-relay/internal/metrics"
	"github.com/suPer8Hu/ai-relay/internal/tracing"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, cfg.LogFile)
	defer func() { _ = logg.Sync() }()

	if cfg.TracingEnabled {
		tp, err := tracing.Init(cfg.TracingServiceTag, cfg.TracingCollector)
		if err != nil {
			logg.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(sctx)
			}()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	app, err := newServer(ctx, cfg, logg, m)
	if err != nil {
		logg.Fatal("server wiring", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logg.Info("server listening",
		zap.String("addr", cfg.Addr),
		zap.String("persist_mode", cfg.PersistMode),
		zap.String("log_store", cfg.LogStore),
		zap.String("classifier", cfg.ClassifierProvider),
	)
	if err := runServer(ctx, srv); err != nil {
		logg.Error("server error", zap.Error(err))
	}

	dctx, cancel := context.WithTimeout(context.Background(), cfg.PersistTimeout)
	defer cancel()
	if err := app.close(dctx); err != nil {
		logg.Warn("pending log records abandoned on shutdown", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
