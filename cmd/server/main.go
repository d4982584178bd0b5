package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olyamironova/matching-core/internal/adapter/cache"
	"github.com/olyamironova/matching-core/internal/adapter/in_memory"
	"github.com/olyamironova/matching-core/internal/adapter/kafka"
	"github.com/olyamironova/matching-core/internal/adapter/outbox"
	"github.com/olyamironova/matching-core/internal/adapter/pg"
	grpcapi "github.com/olyamironova/matching-core/internal/api/grpc"
	httpapi "github.com/olyamironova/matching-core/internal/api/http"
	"github.com/olyamironova/matching-core/internal/config"
	"github.com/olyamironova/matching-core/internal/core"
	"github.com/olyamironova/matching-core/internal/domain"
	"github.com/olyamironova/matching-core/internal/intake"
	"github.com/olyamironova/matching-core/internal/pipeline"
	"github.com/olyamironova/matching-core/internal/port"
	"github.com/olyamironova/matching-core/internal/publisher"
	"github.com/olyamironova/matching-core/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// trading pairs
	pairs := in_memory.NewPairStore()
	var tradeSinks []port.TradeSink
	if cfg.PostgresDSN != "" {
		repo, err := pg.NewPgRepo(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		closers = append(closers, repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		loaded, err := repo.LoadPairs(ctx)
		if err != nil {
			return err
		}
		pairs.Replace(loaded)
		go pairs.Refresh(ctx, repo, cfg.PairRefresh, log)
		tradeSinks = append(tradeSinks, repo)
		log.Info("trading pairs loaded from postgres", "count", len(loaded))
	} else {
		defaults := make([]domain.TradingPair, 0, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			defaults = append(defaults, in_memory.DefaultPair(s, cfg.DefaultFeeRate))
		}
		pairs.Replace(defaults)
		log.Info("no PG_DSN, serving default trading pairs", "symbols", cfg.Symbols)
	}

	// snapshot sinks, read-through cache and dedupe
	var snapshotSinks []port.SnapshotSink
	var snapCache port.SnapshotCache
	var dedupe port.Deduper
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
		closers = append(closers, func() { _ = rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis not reachable yet", "addr", cfg.RedisAddr, "error", err)
		}
		snapshotSinks = append(snapshotSinks, rc)
		tradeSinks = append(tradeSinks, rc)
		snapCache, dedupe = rc, rc
	} else {
		mc := in_memory.NewCache()
		snapshotSinks = append(snapshotSinks, mc)
		snapCache, dedupe = mc, in_memory.NewDeduper()
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		tp := kafka.NewTradeProducer(producer, cfg.TradesTopic)
		closers = append(closers, func() { _ = tp.Close() })
		tradeSinks = append(tradeSinks, tp)

		stream := kafka.NewSnapshotStream(cfg.KafkaBrokers, cfg.SnapshotTopic)
		closers = append(closers, func() { _ = stream.Close() })
		snapshotSinks = append(snapshotSinks, stream)
	}
	if len(tradeSinks) == 0 {
		tradeSinks = append(tradeSinks, in_memory.NewTradeLog())
	}

	var tradeOutbox port.TradeOutbox
	if cfg.OutboxDir != "" {
		ob, err := outbox.Open(cfg.OutboxDir)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = ob.Close() })
		tradeOutbox = ob
	}

	settleCfg := settlement.DefaultConfig()
	settleCfg.QueueSize = cfg.SettleBuffer
	dispatcher := settlement.NewDispatcher(settleCfg, tradeOutbox, log, tradeSinks...)
	if err := dispatcher.Replay(ctx); err != nil {
		log.Warn("outbox replay incomplete", "error", err)
	}
	dispatcher.Start()

	pub := publisher.New(publisher.DefaultSinkTimeout, log, snapshotSinks...)
	pub.Start()

	registry := intake.NewRegistry()
	engine := core.NewEngine(pairs, dispatcher, pub, core.Options{
		DefaultFeeRate: cfg.DefaultFeeRate,
		Cache:          snapCache,
		Listener:       registry,
		Logger:         log,
	})
	for _, p := range pairs.Pairs() {
		engine.InitializeOrderBook(p.Symbol)
	}

	pipe := pipeline.New(cfg.RingSize, pipeline.EngineHandler{Engine: engine}, log)
	pipe.Start()

	svc := intake.NewService(pipe, engine, pairs, dedupe, registry, log)

	consumerDone := make(chan struct{})
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	if len(cfg.KafkaBrokers) > 0 {
		group, err := kafka.NewConsumerGroup(cfg.KafkaBrokers, cfg.OrdersGroupID)
		if err != nil {
			stopConsumer()
			return err
		}
		go func() {
			defer close(consumerDone)
			kafka.RunConsumerGroup(consumerCtx, group, []string{cfg.OrdersTopic},
				kafka.NewOrderCommandHandler(svc, log), log)
		}()
	} else {
		close(consumerDone)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewHTTPServer(svc, cfg.RateLimit, log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcSrv, health := grpcapi.NewServer(svc, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		stopConsumer()
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info("starting gRPC server", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	// Stop ingress first, then drain the pipeline, then the async workers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	health.Shutdown()
	stopConsumer()
	<-consumerDone
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()

	if err := pipe.Stop(shutdownCtx); err != nil {
		log.Error("pipeline did not drain", "error", err, "pending", pipe.Len())
	}
	if err := pub.Stop(shutdownCtx); err != nil {
		log.Warn("publisher stop", "error", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn("settlement stop", "error", err)
	}
	log.Info("server stopped")
	return runErr
}
