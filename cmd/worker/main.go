package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docledger/docledger/internal/app"
	"github.com/docledger/docledger/internal/clock"
	"github.com/docledger/docledger/internal/config"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/internal/worker"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/docledger/docledger/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if err := logger.SetFormat(os.Getenv("LOG_FORMAT")); err != nil {
		logger.Warnf("%v; using text", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, "docledger-worker")
	if err != nil {
		logger.Fatalf("bootstrap error: %v", err)
	}
	defer a.Close()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	if addr := cfg.Lifecycle.WorkerMetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("worker metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	sw := worker.NewSweeper(a.Service, clock.RealClock{}, cfg.Lifecycle.SweepInterval)

	if a.NATS != nil {
		go func() {
			logger.Infof("worker subscribed to %s", cfg.NATS.SweepSubject)
			err := events.SubscribeSweeps(ctx, a.NATS, cfg.NATS.SweepSubject, cfg.NATS.QueueGroup, func(_ context.Context, req events.SweepRequest) error {
				logger.Debugw("sweep requested", "doc", req.DocumentID, "reason", req.Reason)
				sw.Trigger()
				return nil
			})
			if err != nil {
				logger.Errorf("worker subscribe error: %v", err)
			}
		}()
	}

	logger.Infof("purge worker running every %s", cfg.Lifecycle.SweepInterval)
	sw.Run(ctx)
	logger.Infof("purge worker stopped")
}
