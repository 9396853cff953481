// Package app wires the lifecycle engine from configuration. The server, the
// purge worker and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/docledger/docledger/internal/audit"
	"github.com/docledger/docledger/internal/config"
	"github.com/docledger/docledger/internal/database"
	"github.com/docledger/docledger/internal/document/repository"
	"github.com/docledger/docledger/internal/document/service"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/internal/locks"
	"github.com/docledger/docledger/internal/resilience"
	"github.com/docledger/docledger/internal/retention"
	"github.com/docledger/docledger/internal/storage"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const mongoConnectAttempts = 5

// Collection names in the configured MongoDB database.
const (
	DocumentsCollection = "documents"
	VersionsCollection  = "document_versions"
	AuditCollection     = "audit_log"
	CountersCollection  = "counters"
)

// App holds the wired engine and the clients it owns.
type App struct {
	Config   *config.Config
	Service  service.Service
	Ledger   audit.Ledger
	Policies *retention.Registry
	Events   events.Publisher

	// nil when the backing service is not configured
	Redis redis.UniversalClient
	NATS  *nats.Conn

	// Backends names the implementation chosen for each concern.
	Backends map[string]string

	closers []func()
	checks  map[string]func(context.Context) error
}

// New connects every configured backend and falls back to in-process
// implementations for the rest.
func New(ctx context.Context, cfg *config.Config, name string) (*App, error) {
	a := &App{Config: cfg, Backends: map[string]string{}, checks: map[string]func(context.Context) error{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	policies, err := retention.LoadPolicies(cfg.Lifecycle.PolicyFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("retention policy file %q not found; every policy id is unresolvable", cfg.Lifecycle.PolicyFile)
		policies, err = retention.NewRegistry()
	}
	if err != nil {
		return nil, err
	}
	a.Policies = policies
	exec := resilience.NewExecutor(cfg.Resilience)

	opts := service.Options{Policies: policies, PresignTTL: cfg.Lifecycle.PresignTTL}

	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoConnectAttempts)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		a.checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		db := client.Database(cfg.MongoDB.Database)
		repo, err := repository.NewMongoRepo(ctx, db.Collection(DocumentsCollection), db.Collection(VersionsCollection))
		if err != nil {
			return nil, err
		}
		ledger, err := audit.NewMongoLedger(ctx, db.Collection(AuditCollection), db.Collection(CountersCollection))
		if err != nil {
			return nil, err
		}
		opts.Repo, opts.Ledger = repo, ledger
		a.Backends["store"] = "mongodb"
	} else {
		logger.Warn("MONGODB_URI not set; documents and audit records live in memory")
		opts.Repo, opts.Ledger = repository.NewMemoryRepo(), audit.NewMemoryLedger()
		a.Backends["store"] = "memory"
	}
	a.Ledger = opts.Ledger

	if cfg.Redis.Host != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		a.closers = append(a.closers, func() { _ = rc.Close() })
		if err := rc.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr(), err)
		}
		a.Redis = rc
		a.checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		opts.Locker = locks.NewRedis(rc, "docledger:lock:", cfg.Lifecycle.LockTTL)
		a.Backends["locks"] = "redis"
	} else {
		opts.Locker = locks.NewLocal()
		a.Backends["locks"] = "local"
	}

	if cfg.MinIO.Endpoint != "" {
		st, err := storage.NewMinIOStorage(&cfg.MinIO, exec)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		opts.Blobs = st
		a.Backends["blobs"] = "minio"
	} else {
		logger.Warn("MINIO_ENDPOINT not set; content URLs are not presigned and purges leave objects in place")
		opts.Blobs = &storage.MemoryBlobs{}
		a.Backends["blobs"] = "memory"
	}

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, events.Options{Name: name})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = nc.Drain() })
		a.NATS = nc
		a.checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}
		opts.Events = events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, cfg.NATS.SweepSubject, exec)
		a.Backends["events"] = "nats"
	} else {
		opts.Events = events.Noop{}
		a.Backends["events"] = "none"
	}
	a.Events = opts.Events

	a.Service = service.New(opts)
	logger.Infow("lifecycle engine ready", "store", a.Backends["store"], "locks", a.Backends["locks"],
		"blobs", a.Backends["blobs"], "events", a.Backends["events"], "policies", len(policies.List()))
	ok = true
	return a, nil
}

// Ready probes every connected backend. In-process backends are always ready.
func (a *App) Ready(ctx context.Context) map[string]error {
	out := make(map[string]error, len(a.checks))
	for name, check := range a.checks {
		out[name] = check(ctx)
	}
	return out
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
