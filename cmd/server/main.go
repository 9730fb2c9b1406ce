package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/archive"
	"github.com/codeclash/battle-backend/internal/challenge"
	"github.com/codeclash/battle-backend/internal/config"
	"github.com/codeclash/battle-backend/internal/httpapi"
	"github.com/codeclash/battle-backend/internal/queue"
	"github.com/codeclash/battle-backend/internal/registry"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := archive.Open(cfg.ArchiveDSN)
	if err != nil {
		logger.Fatal("open archive", zap.Error(err))
	}
	if store.Enabled() {
		logger.Info("battle archive enabled")
	}

	prov := challenge.NewStatic()
	runner := challenge.EchoRunner{}

	reg := registry.New(ctx, registry.Config{
		GraceSec:         int(cfg.GraceWindow.Seconds()),
		ProvisionTimeout: cfg.ProvisionTimeout,
		Retention:        cfg.Retention,
	}, prov, runner, store, logger)

	qm := queue.NewManager(ctx, queue.Config{
		MatchThreshold: cfg.MatchThreshold,
		StarvationMin:  cfg.StarvationMin,
	}, reg, logger)

	handler := httpapi.SetupRoutes(&httpapi.API{
		Queue:    qm,
		Registry: reg,
		Log:      logger,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		qm.Shutdown()
		reg.Shutdown()
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}
