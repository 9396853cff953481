// Package service is the document lifecycle engine. Every mutating call runs
// lock → load → authorize → transition → audit, and produces exactly one
// audit record whatever the outcome.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/audit"
	"github.com/docledger/docledger/internal/clock"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/document/repository"
	"github.com/docledger/docledger/internal/document/version"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/internal/locks"
	"github.com/docledger/docledger/internal/retention"
	"github.com/docledger/docledger/internal/storage"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/docledger/docledger/pkg/metrics"
)

// Service defines the lifecycle operations used by the handler layer, the
// worker and the admin CLI.
type Service interface {
	CreateDocument(ctx context.Context, actor access.Actor, in CreateInput) (*document.Document, error)
	ListDocuments(ctx context.Context, actor access.Actor, f document.Filter) (*document.Page, error)
	GetDocument(ctx context.Context, actor access.Actor, id string) (*document.Document, error)
	GetContent(ctx context.Context, actor access.Actor, id string, version *int) (*document.ContentRef, error)
	UpdateACL(ctx context.Context, actor access.Actor, id string, acl document.ACL) (*document.Document, error)
	UpdateRetention(ctx context.Context, actor access.Actor, id string, ret document.Retention) (*document.Document, error)
	DeleteDocument(ctx context.Context, actor access.Actor, id string) (*document.DeleteResult, error)
	RestoreDocument(ctx context.Context, actor access.Actor, id string) (*document.Document, error)

	CreateVersion(ctx context.Context, actor access.Actor, id string, meta document.VersionMetadata) (*document.Version, error)
	ListVersions(ctx context.Context, actor access.Actor, id string) ([]document.Version, error)
	SetVersionStatus(ctx context.Context, actor access.Actor, id string, n int, status document.VersionStatus) (*document.Document, error)

	AuditTrail(ctx context.Context, actor access.Actor, id string, version *int) ([]audit.Record, error)
	PurgeDue(ctx context.Context, now time.Time) (*PurgeReport, error)
}

// CreateInput is the caller-supplied part of a new document.
type CreateInput struct {
	CustomerID string             `json:"customerId"`
	ProcessID  string             `json:"processId,omitempty"`
	Taxonomy   document.Taxonomy  `json:"taxonomy"`
	ACL        document.ACL       `json:"acl"`
	Retention  document.Retention `json:"retention"`
}

// Options wires the engine's collaborators. Repo and Ledger are required;
// everything else has an in-process default.
type Options struct {
	Repo     repository.Repository
	Ledger   audit.Ledger
	Locker   locks.Locker
	Policies *retention.Registry
	Blobs    storage.Blobs
	Events   events.Publisher
	Clock    clock.Clock
	IDs      clock.IDGenerator

	// PresignTTL is the lifetime of content URLs returned by GetContent.
	PresignTTL time.Duration
}

type engine struct {
	repo       repository.Repository
	ledger     audit.Ledger
	locker     locks.Locker
	policies   *retention.Registry
	blobs      storage.Blobs
	events     events.Publisher
	clock      clock.Clock
	ids        clock.IDGenerator
	versions   *version.Manager
	presignTTL time.Duration
}

// New returns the lifecycle engine.
func New(o Options) Service {
	e := &engine{
		repo:       o.Repo,
		ledger:     o.Ledger,
		locker:     o.Locker,
		policies:   o.Policies,
		blobs:      o.Blobs,
		events:     o.Events,
		clock:      o.Clock,
		ids:        o.IDs,
		presignTTL: o.PresignTTL,
	}
	if e.locker == nil {
		e.locker = locks.NewLocal()
	}
	if e.blobs == nil {
		e.blobs = &storage.MemoryBlobs{}
	}
	if e.events == nil {
		e.events = events.Noop{}
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.ids == nil {
		e.ids = clock.UUIDGenerator{Prefix: "doc_"}
	}
	if e.presignTTL <= 0 {
		e.presignTTL = 15 * time.Minute
	}
	e.versions = version.NewManager(e.repo, e.clock)
	return e
}

// call carries the identity of one audited operation.
type call struct {
	actor  access.Actor
	docID  string
	action audit.Action
	op     string
}

func (c call) entry(version *int, result audit.Result, reason string) audit.Entry {
	return audit.Entry{
		DocumentID: c.docID,
		Version:    version,
		Action:     c.action,
		ActorID:    c.actor.ID,
		Roles:      c.actor.Roles,
		Result:     result,
		Reason:     reason,
		IP:         c.actor.IP,
		UserAgent:  c.actor.UserAgent,
	}
}

// succeed appends the SUCCESS record. A ledger failure is returned as an
// Infrastructure error; the caller must compensate.
func (e *engine) succeed(ctx context.Context, c call, version *int, reason string) error {
	if _, err := e.ledger.Append(ctx, c.entry(version, audit.ResultSuccess, reason)); err != nil {
		metrics.AuditFailures.WithLabelValues(string(c.action)).Inc()
		logger.Errorw("audit append failed", "action", c.action, "doc", c.docID, "actor", c.actor.ID, "err", err)
		return document.WrapError(document.ErrInfrastructure, c.op, err)
	}
	metrics.Operations.WithLabelValues(string(c.action), string(audit.ResultSuccess)).Inc()
	return nil
}

// fail records a failed outcome and returns err. The record is written even
// when the request context is gone. If the record cannot be written the
// outcome is an Infrastructure error instead of err.
func (e *engine) fail(ctx context.Context, c call, version *int, err error) error {
	result := audit.ResultError
	if errors.Is(err, document.ErrDenied) {
		result = audit.ResultDenied
	}
	metrics.Operations.WithLabelValues(string(c.action), string(result)).Inc()
	if errors.Is(err, document.ErrInfrastructure) {
		logger.Errorw("operation failed", "op", c.op, "doc", c.docID, "actor", c.actor.ID, "err", err)
	}
	if requireID(c) != nil {
		// no chain to append to; only a rejected request gets here
		logger.Warnw("failure without document id not audited", "op", c.op, "actor", c.actor.ID, "err", err)
		return err
	}
	if _, aerr := e.ledger.Append(context.WithoutCancel(ctx), c.entry(version, result, document.ReasonOf(err))); aerr != nil {
		metrics.AuditFailures.WithLabelValues(string(c.action)).Inc()
		logger.Errorw("audit append failed", "action", c.action, "result", result, "doc", c.docID, "cause", err, "err", aerr)
		return document.WrapError(document.ErrInfrastructure, c.op, aerr)
	}
	return err
}

func requireID(c call) error {
	if strings.TrimSpace(c.docID) == "" {
		return document.Invalidf(c.op, "document id is required")
	}
	return nil
}

func canceled(op string, err error) error {
	return &document.Error{Kind: document.ErrInfrastructure, Op: op, Reason: document.ReasonCanceled, Err: err}
}

// lock serializes mutations of one document.
func (e *engine) lock(ctx context.Context, c call) (func(), error) {
	if err := requireID(c); err != nil {
		return nil, err
	}
	start := time.Now()
	unlock, err := e.locker.Lock(ctx, c.docID)
	metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(c.op, err)
		}
		return nil, document.WrapError(document.ErrInfrastructure, c.op, err)
	}
	return unlock, nil
}

// load returns the stored document. Tombstones whose purge is due count as
// already purged.
func (e *engine) load(ctx context.Context, c call) (*document.Document, error) {
	if err := requireID(c); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(c.op, err)
	}
	d, err := e.repo.Get(ctx, c.docID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, document.NewError(document.ErrNotFound, c.op, document.ReasonNotFound)
	case err != nil:
		if ctx.Err() != nil {
			return nil, canceled(c.op, err)
		}
		return nil, document.WrapError(document.ErrInfrastructure, c.op, err)
	}
	if d.DeletedAt != nil && d.PurgeAt != nil && !d.PurgeAt.After(e.clock.Now()) {
		return nil, document.NewError(document.ErrNotFound, c.op, document.ReasonNotFound)
	}
	return d, nil
}

// loadLive is load plus the rule that tombstones are invisible to mutations.
func (e *engine) loadLive(ctx context.Context, c call) (*document.Document, error) {
	d, err := e.load(ctx, c)
	if err != nil {
		return nil, err
	}
	if d.DeletedAt != nil {
		return nil, document.NewError(document.ErrNotFound, c.op, document.ReasonNotFound)
	}
	return d, nil
}

func authorize(d *document.Document, c call, capability access.Capability) (access.Decision, error) {
	dec := access.Authorize(&d.ACL, c.actor, capability)
	if !dec.Allowed {
		return dec, document.NewError(document.ErrDenied, c.op, dec.Reason)
	}
	return dec, nil
}

// restore writes a snapshot back after a failed audit append.
func (e *engine) restore(ctx context.Context, c call, prev *document.Document) {
	if err := e.repo.Update(ctx, prev); err != nil {
		logger.Errorw("compensation failed", "op", c.op, "doc", c.docID, "err", err)
	}
}

func (e *engine) publish(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		logger.Warnw("event publish failed", "type", ev.Type, "doc", ev.DocumentID, "err", err)
	}
}

func intp(v int) *int { return &v }
