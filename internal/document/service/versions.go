package service

import (
	"context"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/audit"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/pkg/logger"
)

func (e *engine) CreateVersion(ctx context.Context, actor access.Actor, id string, meta document.VersionMetadata) (*document.Version, error) {
	c := call{actor: actor, docID: id, action: audit.ActionCreateVersion, op: "create-version"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	defer unlock()

	d, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	grant, err := authorize(d, c, access.Write)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	ctx = context.WithoutCancel(ctx)

	v, before, err := e.versions.Create(ctx, d, meta, grant)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if err := e.succeed(ctx, c, intp(v.Version), ""); err != nil {
		if rerr := e.versions.Remove(ctx, v, before); rerr != nil {
			logger.Errorw("compensation failed", "op", c.op, "doc", id, "version", v.Version, "err", rerr)
		}
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.VersionCreated, DocumentID: id, CustomerID: d.CustomerID, Version: v.Version, ActorID: actor.ID, At: v.CreatedAt})
	return v, nil
}

func (e *engine) ListVersions(ctx context.Context, actor access.Actor, id string) ([]document.Version, error) {
	c := call{actor: actor, docID: id, action: audit.ActionRead, op: "list-versions"}
	d, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if _, err := authorize(d, c, access.Read); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	vs, err := e.versions.List(ctx, id)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if err := e.succeed(ctx, c, nil, ""); err != nil {
		return nil, err
	}
	return vs, nil
}

// SetVersionStatus retires a version. The current version pointer follows
// the highest version still active.
func (e *engine) SetVersionStatus(ctx context.Context, actor access.Actor, id string, n int, status document.VersionStatus) (*document.Document, error) {
	c := call{actor: actor, docID: id, action: audit.ActionUpdateVersionStatus, op: "set-version-status"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, intp(n), err)
	}
	defer unlock()

	d, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, intp(n), err)
	}
	grant, err := authorize(d, c, access.Write)
	if err != nil {
		return nil, e.fail(ctx, c, intp(n), err)
	}
	ctx = context.WithoutCancel(ctx)

	next, from, err := e.versions.SetStatus(ctx, id, n, status, grant)
	if err != nil {
		return nil, e.fail(ctx, c, intp(n), err)
	}
	if err := e.succeed(ctx, c, intp(n), string(status)); err != nil {
		if rerr := e.versions.RevertStatus(ctx, id, n, status, from, d.UpdatedAt); rerr != nil {
			logger.Errorw("compensation failed", "op", c.op, "doc", id, "version", n, "err", rerr)
		}
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.VersionStatusChanged, DocumentID: id, CustomerID: d.CustomerID, Version: n, ActorID: actor.ID, Mode: string(status)})
	return next, nil
}
