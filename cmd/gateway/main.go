package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/config"
	"freestream-gateway/internal/gateway"
	"freestream-gateway/internal/handlers"
	"freestream-gateway/internal/httpserver"
	"freestream-gateway/internal/metrics"
	"freestream-gateway/internal/scheduler"
	"freestream-gateway/internal/snapshot"
	"freestream-gateway/internal/tmdb"
	"freestream-gateway/internal/watchmode"
	"freestream-gateway/pkg/logging/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run(configPath string) error {
	// ----- Config -----
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger := logging.New(logging.Options{
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logging.SetDefault(logger)
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("version_id", cfg.Cache.VersionID),
		zap.Strings("snapshot_regions", cfg.Snapshot.Regions),
		zap.String("snapshot_schedule", cfg.Snapshot.Schedule),
		zap.Bool("admin_secret_set", cfg.Snapshot.Secret != ""),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	}

	// ----- Request cache -----
	rawStore, err := cache.NewStore(cache.Config{
		Backend:         cfg.Cache.Backend,
		Prefix:          cfg.Cache.Prefix,
		BoltPath:        cfg.Cache.BoltPath,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, redisClient)
	if err != nil {
		return err
	}
	if closer, ok := rawStore.(io.Closer); ok {
		defer closer.Close()
	}
	store := cache.NewLoggingStore(rawStore)

	// ----- Upstream catalog client -----
	wm, err := watchmode.NewClient(watchmode.Config{
		BaseURL:         cfg.Watchmode.BaseURL,
		APIKey:          cfg.Watchmode.APIKey,
		UpstreamTimeout: cfg.Watchmode.Timeout,
		MaxRetries:      cfg.Watchmode.MaxRetries,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := wm.(io.Closer); ok {
		defer closer.Close()
	}

	// ----- Metadata provider (optional) -----
	var related gateway.Related
	if cfg.TMDB.ReadToken != "" {
		tc, err := tmdb.NewClient(tmdb.Config{
			BaseURL:   cfg.TMDB.BaseURL,
			ReadToken: cfg.TMDB.ReadToken,
		}, logger)
		if err != nil {
			return err
		}
		related = tc
	} else {
		logger.Info("tmdb read token not set, similar titles disabled")
	}

	// ----- Snapshot + gateway -----
	builder := snapshot.NewBuilder(snapshot.BuilderConfig{
		Secret:    cfg.Snapshot.Secret,
		Regions:   cfg.Snapshot.Regions,
		PageSize:  cfg.Snapshot.PageSize,
		PageDelay: cfg.Snapshot.PageDelay,
		MaxPages:  cfg.Snapshot.MaxPages,
	}, wm, store, logger)
	reader := snapshot.NewReader(store, logger)

	svc := gateway.New(wm, store, reader, gateway.Options{
		TTL:       cache.NewTTLPolicy(cfg.Cache.ListTTL, cfg.Cache.SearchTTL),
		VersionID: cfg.Cache.VersionID,
		Regions:   cfg.Snapshot.Regions,
		Related:   related,
		Logger:    logger,
	})

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.RouterConfig{
		RequestTimeout:     cfg.Server.RequestTimeout,
		AdminRatePerMinute: cfg.Server.AdminRatePerMinute,
	},
		handlers.NewListingsHandler(svc),
		handlers.NewAdminHandler(builder),
	)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// admin refresh runs synchronously
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ----- Scheduled refresh -----
	var sched *scheduler.Scheduler
	if cfg.Snapshot.Schedule != "" {
		sched, err = scheduler.New(cfg.Snapshot.Schedule, builder, 30*time.Minute, logger)
		if err != nil {
			return err
		}
		sched.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting gateway",
			zap.String("addr", srv.Addr),
			zap.String("cache_backend", cfg.Cache.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Snapshot.RefreshOnStart {
		g.Go(func() error {
			if sched != nil {
				sched.RunNow(gctx)
				return nil
			}
			if _, err := builder.Run(gctx); err != nil {
				logger.Warn("startup snapshot refresh failed", zap.Error(err))
			}
			return nil
		})
	}

	// ----- Graceful shutdown -----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if sched != nil {
			sched.Stop(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

