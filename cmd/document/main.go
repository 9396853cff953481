package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docledger/docledger/internal/app"
	"github.com/docledger/docledger/internal/config"
	"github.com/docledger/docledger/internal/oidc"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/docledger/docledger/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
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

	a, err := app.New(ctx, cfg, "docledger-api")
	if err != nil {
		logger.Fatalf("bootstrap failed: %v", err)
	}
	defer a.Close()

	var chain oidc.Chain
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			chain = append(chain, ver)
		}
	}
	if cfg.JWT.Secret != "" {
		ver, err := oidc.NewHMACVerifier([]byte(cfg.JWT.Secret), cfg.JWT.Issuer)
		if err != nil {
			logger.Fatalf("invalid JWT secret: %v", err)
		}
		chain = append(chain, ver)
	}
	if len(chain) == 0 {
		logger.Fatalf("no token verifier available: set KEYCLOAK_URL/KEYCLOAK_CLIENT_ID or JWT_SECRET")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      a.Router(chain),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("docledger API listening on %s (env=%s)", srv.Addr, cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
