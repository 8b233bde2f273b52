package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidalsh/multiplayer-backend/internal/config"
	"github.com/davidalsh/multiplayer-backend/internal/httpapi"
	"github.com/davidalsh/multiplayer-backend/internal/hub"
	"github.com/davidalsh/multiplayer-backend/internal/presence"
	"github.com/davidalsh/multiplayer-backend/internal/session"
	"github.com/davidalsh/multiplayer-backend/internal/store"
	"github.com/davidalsh/multiplayer-backend/internal/ws"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal("init store", zap.Error(err))
	}

	h := hub.NewHub(ctx, gateway, session.Config{
		PersistTimeout:    cfg.PersistTimeout,
		PersistRetries:    cfg.PersistRetries,
		ReconcileInterval: cfg.ReconcileInterval,
		IdleTimeout:       cfg.IdleTimeout,
	}, log)
	tracker := presence.NewTracker()

	api := httpapi.NewServer(h, log)
	handler := httpapi.SetupRoutes(api, ws.Handler(h, tracker, log), []byte(cfg.JWTSecret))

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg config.Config) (store.Gateway, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.NewPostgres(cfg.PostgresDSN)
	case "redis":
		return store.NewRedis(ctx, cfg.RedisURL, cfg.RedisTTL)
	default:
		return store.NewMemory(), nil
	}
}
