package main

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-relay/internal/ai"
	"github.com/suPer8Hu/ai-relay/internal/answer"
	"github.com/suPer8Hu/ai-relay/internal/auditlog"
	"github.com/suPer8Hu/ai-relay/internal/config"
	"github.com/suPer8Hu/ai-relay/internal/httpapi"
	"github.com/suPer8Hu/ai-relay/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-relay/internal/metrics"
	"github.com/suPer8Hu/ai-relay/internal/persist"
	"github.com/suPer8Hu/ai-relay/internal/relay"
	"github.com/suPer8Hu/ai-relay/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-relay/internal/store/redisstore"
	"go.uber.org/zap"
)

// server holds the wired HTTP surface and whatever needs closing at shutdown.
type server struct {
	router     *gin.Engine
	dispatcher *persist.Dispatcher
	persister  *persist.LazyPersister

	mu      sync.Mutex
	closers []func()
}

func (s *server) onClose(fn func()) {
	s.mu.Lock()
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

// close drains the dispatcher, then releases the connections opened by newServer.
func (s *server) close(ctx context.Context) error {
	err := s.dispatcher.Close(ctx)
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	return err
}

// newServer wires the relay, the evaluator and the log pipeline. The log
// store and the broker are optional at startup: when they are down the
// relay keeps answering, /logs is not registered, and records that cannot
// be written are logged and dropped. Only a broken relay or classifier
// configuration is an error.
func newServer(ctx context.Context, cfg config.Config, logg *zap.Logger, m *metrics.Metrics) (*server, error) {
	s := &server{persister: &persist.LazyPersister{}}

	var store auditlog.Store
	if st, err := auditlog.Open(ctx, cfg); err != nil {
		logg.Warn("log store unavailable, /logs disabled",
			zap.String("log_store", cfg.LogStore), zap.Error(err))
	} else {
		store = st
	}

	switch cfg.PersistMode {
	case "queue":
		go s.connectQueue(ctx, cfg, logg.Named("rabbit"))
	default:
		if store != nil {
			s.persister.Set(persist.NewStorePersister(store))
		} else {
			logg.Warn("direct persistence has no store, log records will be dropped")
		}
	}

	s.dispatcher = persist.NewDispatcher(s.persister, persist.Options{
		Workers: cfg.PersistWorkers,
		Buffer:  cfg.PersistBuffer,
		Timeout: cfg.PersistTimeout,
	}, logg.Named("persist"), m)

	client, err := relay.NewClient(relay.Options{
		URL:            cfg.UpstreamURL,
		AuthToken:      cfg.UpstreamAuthToken,
		ConnectTimeout: cfg.ConnectTimeout,
		TotalTimeout:   cfg.TotalTimeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UpstreamAuthToken == "" {
		logg.Warn("AUTH_TOKEN is empty, upstream calls will likely be rejected")
	}
	relaySvc := relay.NewService(client, s.dispatcher, logg.Named("relay"), m)

	// classifier registry (route by CLASSIFIER_PROVIDER + CLASSIFIER_MODEL)
	providers := ai.NewDefaultRegistry(ai.Backends{
		OllamaBaseURL:     cfg.OllamaBaseURL,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterSiteURL: cfg.OpenRouterSiteURL,
		OpenRouterAppName: cfg.OpenRouterAppName,
		ArkBaseURL:        cfg.ArkBaseURL,
		ArkRegion:         cfg.ArkRegion,
		ArkAPIKey:         cfg.ArkAPIKey,
	})
	classifier, err := providers.Get(ctx, cfg.ClassifierProvider, cfg.ClassifierModel)
	if err != nil {
		return nil, err
	}

	var cache answer.VerdictCache
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.VerdictTTL)
		if err != nil {
			logg.Warn("verdict cache disabled", zap.Error(err))
		} else {
			s.onClose(func() { _ = rs.Close() })
			cache = rs
		}
	}
	evaluator := answer.NewEvaluator(classifier, answer.Options{
		MaxTokens: cfg.ClassifierMaxTokens,
		Timeout:   cfg.ClassifierTimeout,
		Cache:     cache,
		Logger:    logg.Named("answer"),
		Metrics:   m,
	})

	// Leave the interfaces nil, not typed-nil, when the store is down.
	var (
		logs   auditlog.Store
		health handlers.Pinger
	)
	if store != nil {
		logs = store
		if p, ok := store.(handlers.Pinger); ok {
			health = p
		}
	}
	h := handlers.NewHandler(relaySvc, evaluator, logs, health, logg)

	s.router = httpapi.NewRouter(cfg, httpapi.Deps{
		Handler: h,
		Metrics: m,
		Log:     logg,
		Stop:    ctx.Done(),
	})
	return s, nil
}

// connectQueue dials the broker until it answers or ctx is done, then
// switches the persister over to publishing.
func (s *server) connectQueue(ctx context.Context, cfg config.Config, logg *zap.Logger) {
	conn, err := rabbitmq.Dial(ctx, cfg.RabbitURL, 0, logg)
	if err != nil {
		logg.Warn("rabbit unavailable, log records will be dropped", zap.Error(err))
		return
	}
	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitQueue)
	if err != nil {
		_ = conn.Close()
		logg.Error("rabbit publisher", zap.Error(err))
		return
	}
	s.onClose(func() { _ = pub.Close() })
	s.persister.Set(persist.NewQueuePersister(pub))
	logg.Info("rabbit connected, log records are queued", zap.String("queue", cfg.RabbitQueue))
}
