package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/ai-relay/internal/auditlog"
	"github.com/suPer8Hu/ai-relay/internal/config"
	"github.com/suPer8Hu/ai-relay/internal/logger"
	"github.com/suPer8Hu/ai-relay/internal/persist"
	"github.com/suPer8Hu/ai-relay/internal/store/rabbitmq"
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

	logg := logger.New(cfg.LogLevel, cfg.LogFile).Named("worker")
	defer func() { _ = logg.Sync() }()

	store, err := auditlog.Open(ctx, cfg)
	if err != nil {
		logg.Fatal("log store unavailable", zap.String("log_store", cfg.LogStore), zap.Error(err))
	}
	consumer := persist.NewConsumer(persist.NewStorePersister(store))

	conn, err := rabbitmq.Dial(ctx, cfg.RabbitURL, 2*time.Minute, logg)
	if err != nil {
		logg.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	rc := rabbitmq.NewConsumer(conn, cfg.RabbitQueue, rabbitmq.ConsumerOptions{
		Concurrency: cfg.WorkerConcurrency,
		Permanent: func(err error) bool {
			return errors.Is(err, persist.ErrBadMessage)
		},
	}, logg)

	handle := func(ctx context.Context, body []byte) (string, error) {
		cctx, cancel := context.WithTimeout(ctx, cfg.PersistTimeout)
		defer cancel()
		return consumer.Handle(cctx, body)
	}

	if err := rc.Run(ctx, handle); err != nil {
		logg.Fatal("worker stopped", zap.Error(err))
	}
}
