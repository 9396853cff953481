package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/audit"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/document/repository"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/internal/retention"
	"github.com/docledger/docledger/pkg/logger"
)

func cleanIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// normalizeACL trims and de-duplicates every grant list.
func normalizeACL(a document.ACL) document.ACL {
	return document.ACL{
		Owners:   cleanIDs(a.Owners),
		Readers:  cleanIDs(a.Readers),
		Updaters: cleanIDs(a.Updaters),
		Roles:    cleanIDs(a.Roles),
	}
}

// resolvePolicy validates a retention request against the registry. A policy
// id the registry does not know is kept as given and resolves to nil, which
// the retention rules treat as soft delete with no purge.
func (e *engine) resolvePolicy(op string, ret document.Retention) (*retention.Policy, error) {
	if !ret.Mode.Valid() {
		return nil, document.Invalidf(op, "unknown retention mode %q", ret.Mode)
	}
	if ret.PolicyID == "" {
		return nil, nil
	}
	p := e.policies.Resolve(ret.PolicyID)
	if p == nil {
		logger.Warnw("unresolved retention policy", "op", op, "policy", ret.PolicyID)
	}
	return p, nil
}

func validateCreate(op string, actor access.Actor, in CreateInput) error {
	switch {
	case strings.TrimSpace(in.CustomerID) == "":
		return document.Invalidf(op, "customerId is required")
	case strings.TrimSpace(in.Taxonomy.Domain) == "",
		strings.TrimSpace(in.Taxonomy.Category) == "",
		strings.TrimSpace(in.Taxonomy.DocType) == "":
		return document.Invalidf(op, "taxonomy domain, category and docType are required")
	case len(in.ACL.Owners) == 0:
		return document.Invalidf(op, "acl.owners must not be empty")
	case !actor.IsSystem() && !slices.Contains(in.ACL.Owners, actor.ID):
		return document.Invalidf(op, "creator must be an owner")
	}
	return nil
}

func (e *engine) CreateDocument(ctx context.Context, actor access.Actor, in CreateInput) (*document.Document, error) {
	// the id comes first so a rejected create is still audited against it
	c := call{actor: actor, docID: e.ids.New(), action: audit.ActionCreate, op: "create-document"}
	if err := ctx.Err(); err != nil {
		return nil, e.fail(ctx, c, nil, canceled(c.op, err))
	}
	if actor.ID == "" {
		return nil, e.fail(ctx, c, nil, document.NewError(document.ErrDenied, c.op, document.ReasonInsufficientPermissions))
	}
	in.ACL = normalizeACL(in.ACL)
	if err := validateCreate(c.op, actor, in); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	policy, err := e.resolvePolicy(c.op, in.Retention)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	ctx = context.WithoutCancel(ctx)

	now := e.clock.Now()
	d := &document.Document{
		ID:         c.docID,
		CustomerID: strings.TrimSpace(in.CustomerID),
		ProcessID:  in.ProcessID,
		Taxonomy:   in.Taxonomy,
		ACL:        in.ACL,
		Retention:  retention.ComputeDeleteAt(in.Retention, policy, now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.repo.Create(ctx, d); err != nil {
		return nil, e.fail(ctx, c, nil, document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	if err := e.succeed(ctx, c, nil, ""); err != nil {
		if _, perr := e.repo.Purge(ctx, d.ID); perr != nil {
			logger.Errorw("compensation failed", "op", c.op, "doc", d.ID, "err", perr)
		}
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.DocumentCreated, DocumentID: d.ID, CustomerID: d.CustomerID, ActorID: actor.ID, At: now})
	return d, nil
}

// ListDocuments is not audited; it only returns documents the actor may read.
func (e *engine) ListDocuments(ctx context.Context, actor access.Actor, f document.Filter) (*document.Page, error) {
	const op = "list-documents"
	if f.Page < 0 || f.Limit < 0 {
		return nil, document.Invalidf(op, "page and limit must be positive")
	}
	f = f.Normalize()
	q := repository.ListQuery{Filter: f, ActorID: actor.ID, Roles: actor.Roles, System: actor.IsSystem()}
	items, total, err := e.repo.List(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(op, err)
		}
		return nil, document.WrapError(document.ErrInfrastructure, op, err)
	}
	logger.Debugw("list documents", "actor", actor.ID, "customer", f.CustomerID, "total", total)
	pages := 0
	if total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return &document.Page{Items: items, Page: f.Page, Limit: f.Limit, Total: total, TotalPages: pages}, nil
}

func (e *engine) GetDocument(ctx context.Context, actor access.Actor, id string) (*document.Document, error) {
	c := call{actor: actor, docID: id, action: audit.ActionRead, op: "get-document"}
	d, err := e.load(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if d.DeletedAt != nil {
		// tombstones exist only for actors who could restore them
		if !access.Can(&d.ACL, actor, access.ManageACL) {
			return nil, e.fail(ctx, c, nil, document.NewError(document.ErrNotFound, c.op, document.ReasonNotFound))
		}
	} else if _, err := authorize(d, c, access.Read); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if err := e.succeed(ctx, c, nil, ""); err != nil {
		return nil, err
	}
	return d, nil
}

func (e *engine) GetContent(ctx context.Context, actor access.Actor, id string, version *int) (*document.ContentRef, error) {
	c := call{actor: actor, docID: id, action: audit.ActionRead, op: "get-content"}
	d, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, version, err)
	}
	if _, err := authorize(d, c, access.Read); err != nil {
		return nil, e.fail(ctx, c, version, err)
	}
	n := d.CurrentVersion
	if version != nil {
		if *version < 1 {
			return nil, e.fail(ctx, c, version, document.Invalidf(c.op, "version must be positive"))
		}
		n = *version
	}
	if n == 0 {
		return nil, e.fail(ctx, c, nil, document.NewError(document.ErrNotFound, c.op, document.ReasonNotFound))
	}
	v, err := e.versions.Get(ctx, id, n)
	if err != nil {
		return nil, e.fail(ctx, c, intp(n), err)
	}
	if v.Status == document.VersionCorrupt {
		return nil, e.fail(ctx, c, intp(n), document.NewError(document.ErrConflict, c.op, document.ReasonCorruptVersion))
	}
	url, err := e.blobs.Presign(ctx, v.StorageKey, e.presignTTL)
	if err != nil {
		return nil, e.fail(ctx, c, intp(n), document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	if err := e.succeed(ctx, c, intp(n), ""); err != nil {
		return nil, err
	}
	return &document.ContentRef{
		DocumentID: id,
		Version:    v.Version,
		StorageKey: v.StorageKey,
		Filename:   v.Filename,
		MimeType:   v.MimeType,
		Size:       v.Size,
		Hash:       v.Hash,
		URL:        url,
	}, nil
}

func (e *engine) UpdateACL(ctx context.Context, actor access.Actor, id string, acl document.ACL) (*document.Document, error) {
	c := call{actor: actor, docID: id, action: audit.ActionUpdateACL, op: "update-acl"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	defer unlock()

	prev, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if _, err := authorize(prev, c, access.ManageACL); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	ctx = context.WithoutCancel(ctx)

	acl = normalizeACL(acl)
	if len(acl.Owners) == 0 {
		return nil, e.fail(ctx, c, nil, document.NewError(document.ErrConflict, c.op, document.ReasonZeroOwners))
	}
	next := prev.Clone()
	next.ACL = acl
	next.UpdatedAt = e.clock.Now()
	if err := e.repo.Update(ctx, next); err != nil {
		return nil, e.fail(ctx, c, nil, document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	if err := e.succeed(ctx, c, nil, ""); err != nil {
		e.restore(ctx, c, prev)
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.ACLUpdated, DocumentID: id, CustomerID: next.CustomerID, ActorID: actor.ID})
	return next, nil
}

func (e *engine) UpdateRetention(ctx context.Context, actor access.Actor, id string, ret document.Retention) (*document.Document, error) {
	c := call{actor: actor, docID: id, action: audit.ActionUpdateRetention, op: "update-retention"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	defer unlock()

	prev, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if _, err := authorize(prev, c, access.Write); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	ctx = context.WithoutCancel(ctx)

	policy, err := e.resolvePolicy(c.op, ret)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	ret = retention.ComputeDeleteAt(ret, policy, prev.CreatedAt)
	now := e.clock.Now()
	curPolicy := e.policies.Resolve(prev.Retention.PolicyID)
	if err := retention.CheckUpdate(prev.Retention, curPolicy, ret, policy, now); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}

	next := prev.Clone()
	next.Retention = ret
	next.UpdatedAt = now
	if err := e.repo.Update(ctx, next); err != nil {
		return nil, e.fail(ctx, c, nil, document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	if err := e.succeed(ctx, c, nil, ""); err != nil {
		e.restore(ctx, c, prev)
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.RetentionUpdated, DocumentID: id, CustomerID: next.CustomerID, ActorID: actor.ID, Mode: string(ret.Mode)})
	return next, nil
}

// DeleteDocument applies the retention plan. A hard delete tombstones the
// document with a due purge time, audits, and then purges; if the purge
// fails the tombstone stays invisible and the sweep finishes the job.
func (e *engine) DeleteDocument(ctx context.Context, actor access.Actor, id string) (*document.DeleteResult, error) {
	c := call{actor: actor, docID: id, action: audit.ActionDelete, op: "delete-document"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	defer unlock()

	prev, err := e.loadLive(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if _, err := authorize(prev, c, access.Delete); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	ctx = context.WithoutCancel(ctx)

	now := e.clock.Now()
	plan, err := retention.DecideDeletion(prev.Retention, e.policies.Resolve(prev.Retention.PolicyID), now)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if !plan.PolicyResolved {
		logger.Warnw("retention policy not resolvable, deleting softly", "doc", id, "policy", prev.Retention.PolicyID)
	}

	next := prev.Clone()
	next.DeletedAt = &now
	next.UpdatedAt = now
	switch {
	case plan.Immediate:
		next.PurgeAt = &now
	case plan.Scheduled():
		at := plan.EffectiveAt
		next.PurgeAt = &at
	}
	if err := e.repo.Update(ctx, next); err != nil {
		return nil, e.fail(ctx, c, nil, document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	mode := plan.Applied()
	if err := e.succeed(ctx, c, nil, string(mode)); err != nil {
		e.restore(ctx, c, prev)
		return nil, err
	}
	if plan.Immediate {
		if err := e.purge(ctx, id); err != nil {
			logger.Warnw("inline purge failed, deferring to sweep", "doc", id, "err", err)
			e.requestSweep(ctx, id, "inline-purge-failed")
		}
	}
	e.publish(ctx, events.Event{Type: events.DocumentDeleted, DocumentID: id, CustomerID: prev.CustomerID, ActorID: actor.ID, Mode: string(mode), At: now})
	return &document.DeleteResult{Mode: mode, DeletedAt: now, PurgeAt: next.PurgeAt}, nil
}

func (e *engine) RestoreDocument(ctx context.Context, actor access.Actor, id string) (*document.Document, error) {
	c := call{actor: actor, docID: id, action: audit.ActionRestore, op: "restore-document"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	defer unlock()

	prev, err := e.load(ctx, c)
	if err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if _, err := authorize(prev, c, access.ManageACL); err != nil {
		return nil, e.fail(ctx, c, nil, err)
	}
	if prev.DeletedAt == nil {
		return nil, e.fail(ctx, c, nil, document.NewError(document.ErrConflict, c.op, document.ReasonNotDeleted))
	}
	ctx = context.WithoutCancel(ctx)

	next := prev.Clone()
	next.DeletedAt = nil
	next.PurgeAt = nil
	next.UpdatedAt = e.clock.Now()
	if err := e.repo.Update(ctx, next); err != nil {
		return nil, e.fail(ctx, c, nil, document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	if err := e.succeed(ctx, c, nil, ""); err != nil {
		e.restore(ctx, c, prev)
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.DocumentRestored, DocumentID: id, CustomerID: next.CustomerID, ActorID: actor.ID})
	return next, nil
}

// AuditTrail returns the ledger records of a document. It requires
// manage-acl and is not itself audited. The system actor may read the trail
// of a purged document.
func (e *engine) AuditTrail(ctx context.Context, actor access.Actor, id string, version *int) ([]audit.Record, error) {
	c := call{actor: actor, docID: id, op: "audit-trail"}
	if err := requireID(c); err != nil {
		return nil, err
	}
	if !actor.IsSystem() {
		d, err := e.load(ctx, c)
		if err != nil {
			return nil, err
		}
		if _, err := authorize(d, c, access.ManageACL); err != nil {
			return nil, err
		}
	}
	recs, err := e.ledger.Query(ctx, audit.Query{DocumentID: id, Version: version})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, canceled(c.op, err)
		}
		return nil, document.WrapError(document.ErrInfrastructure, c.op, err)
	}
	return recs, nil
}
