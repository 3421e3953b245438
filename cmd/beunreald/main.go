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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/api/handler"
	"github.com/d60-Lab/beunreal/internal/app"
	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/pkg/errreport"
	"github.com/d60-Lab/beunreal/pkg/logger"
	"github.com/d60-Lab/beunreal/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "beunreald:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (default ./config.yaml)")
	probe := flag.Bool("probe", true, "poll the remote health endpoint for connectivity")
	flag.Parse()
	if *configPath != "" {
		_ = os.Setenv("BEUNREAL_CONFIG", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	if err := errreport.Init(cfg.Sentry, cfg.App.Version); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer errreport.Flush()

	store, err := kv.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(app.Deps{
		Config:     cfg,
		Store:      store,
		Registerer: reg,
		Probe:      *probe,
		// 没有探测时假定在线，由外壳通过 /api/v1/connectivity 纠正
		InitiallyOnline: !*probe,
	})
	if err != nil {
		return err
	}
	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(cfg, handler.New(a, cfg), reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("app close", zap.Error(err))
	}
	return shutdownTracing(shutdownCtx)
}
