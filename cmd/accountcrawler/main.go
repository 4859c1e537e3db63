// Package main wires together the account crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/account"
	"github.com/meridian-im/account-crawler/internal/activeusers"
	"github.com/meridian-im/account-crawler/internal/api"
	"github.com/meridian-im/account-crawler/internal/cleaner"
	"github.com/meridian-im/account-crawler/internal/clock/system"
	"github.com/meridian-im/account-crawler/internal/config"
	"github.com/meridian-im/account-crawler/internal/crawler"
	"github.com/meridian-im/account-crawler/internal/cursor"
	"github.com/meridian-im/account-crawler/internal/directory"
	"github.com/meridian-im/account-crawler/internal/feedback"
	"github.com/meridian-im/account-crawler/internal/logging"
	"github.com/meridian-im/account-crawler/internal/metrics"
	memoryStorage "github.com/meridian-im/account-crawler/internal/storage/memory"
	"github.com/meridian-im/account-crawler/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	var cache cursor.Store
	if cfg.Cache.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("cache client close failed", zap.Error(closeErr))
			}
		}()
		cache = cursor.NewRedisStore(client)
		logger.Info("using redis cursor store", zap.String("addr", cfg.Cache.Addr))
	} else {
		cache = cursor.NewMemoryStore()
		logger.Warn("cache.addr unset, using in-memory cursor store; replicas will not coordinate")
	}

	var (
		pager    account.Pager
		accounts account.Manager
		dbPinger api.Pinger
	)
	if cfg.DB.DSN != "" {
		store, err := postgres.NewAccountStore(ctx, postgres.AccountStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			logger.Fatal("account store init failed", zap.Error(err))
		}
		defer store.Close()
		pager = store
		accounts = store
		dbPinger = store
		logger.Info("using postgres account store")
	} else {
		store := memoryStorage.NewAccountStore()
		pager = store
		accounts = store
		logger.Warn("db.dsn unset, using empty in-memory account store")
	}

	var queue directory.Queue
	if cfg.PubSub.ProjectID != "" {
		pubsubQueue, err := directory.NewPubSubQueue(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Fatal("directory queue init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := pubsubQueue.Close(); closeErr != nil {
				logger.Warn("directory queue close failed", zap.Error(closeErr))
			}
		}()
		queue = pubsubQueue
		logger.Info("using pubsub directory queue",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
	} else {
		queue = directory.NewMemoryQueue()
		logger.Warn("pubsub.project_id unset, directory messages stay in process")
	}

	// Registration order is dispatch order: feedback first so freshly
	// disabled devices are visible to the counters and reconciler in the
	// same chunk, cleaner last so it sees the post-feedback state.
	listeners := []crawler.Listener{
		feedback.New(accounts, queue, clock, cfg.FeedbackInterval(), logger.Named("feedback")),
		activeusers.New(clock, logger.Named("activeusers")),
	}
	if cfg.Directory.Enabled {
		listeners = append(listeners, directory.NewReconciler(queue, logger.Named("directory")))
	}
	listeners = append(listeners, cleaner.New(
		accounts,
		queue,
		clock,
		cfg.Retention(),
		cfg.Cleaner.MaxUpdatesPerChunk,
		logger.Named("cleaner"),
	))

	engine := crawler.New(pager, cache, listeners, crawler.Config{
		ChunkSize:           cfg.Crawler.ChunkSize,
		ChunkInterval:       cfg.ChunkInterval(),
		AcceleratedInterval: cfg.AcceleratedInterval(),
		LeaseTTL:            cfg.LeaseTTL(),
		ListenerTimeout:     cfg.ListenerTimeout(),
	}, clock, logger.Named("crawler"))

	apiServer := api.NewServer(cache, dbPinger, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-engineDone
	logger.Info("shutdown complete")
}
