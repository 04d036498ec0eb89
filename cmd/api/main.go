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

	"github.com/geocoder89/hotchoc/internal/auth"
	"github.com/geocoder89/hotchoc/internal/cache"
	"github.com/geocoder89/hotchoc/internal/config"
	httpx "github.com/geocoder89/hotchoc/internal/http"
	"github.com/geocoder89/hotchoc/internal/observability"
	"github.com/geocoder89/hotchoc/internal/repo"
	"github.com/geocoder89/hotchoc/internal/security"
	"github.com/geocoder89/hotchoc/internal/service"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, cfg.LogFile)
	slog.SetDefault(log)

	if cfg.UsesInsecureSecret() {
		log.Warn("jwt_secret_insecure", "hint", "set JWT_SECRET before exposing this server")
	}

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: cfg.OTelServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	prom := observability.NewProm()

	startCtx, cancel := config.WithTimeout(15 * time.Second)
	store, err := repo.Open(startCtx, cfg)
	cancel()
	if err != nil {
		log.Error("store open failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	log.Info("store ready", "driver", cfg.StoreDriver)

	ratingCache, closeCache := openCache(cfg, log)

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	instrumented := repo.Instrumented(store, prom)

	router := httpx.NewRouter(httpx.RouterDeps{
		Env:                cfg.Env,
		Auth:               service.NewAuth(instrumented, security.NewHasher(cfg.BcryptCost), tokens),
		Ratings:            service.NewRatings(instrumented, ratingCache),
		Tokens:             tokens,
		Ping:               instrumented.Ping,
		Prom:               prom,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthRateLimit:      cfg.AuthRateLimit,
	})

	srv := newServer(cfg, router)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		// in-flight writes have finished, the store can go
		if err := store.Close(); err != nil {
			log.Error("store close failed", "err", err)
		}
		closeCache()

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// newServer bounds header reads and idle keep-alives only. Photo uploads get
// no whole-request deadline; MaxBodyBytes caps their size.
func newServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// openCache picks the rating read cache. A redis that cannot be reached at
// startup is kept anyway: cache errors only ever degrade to store reads.
func openCache(cfg config.Config, log *slog.Logger) (cache.Cache, func()) {
	switch cfg.CacheDriver {
	case "none":
		return cache.Nop{}, func() {}
	case "redis":
		rc := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})

		ctx, cancel := config.WithTimeout(2 * time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis_unreachable", "addr", cfg.RedisAddr, "err", err)
		}

		return rc, func() {
			if err := rc.Close(); err != nil {
				log.Error("redis close failed", "err", err)
			}
		}
	default:
		return cache.NewMemory(cfg.CacheTTL, cfg.CacheMaxEntries), func() {}
	}
}
