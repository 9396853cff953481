package service

import (
	"context"
	"errors"
	"time"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/audit"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/document/repository"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/docledger/docledger/pkg/metrics"
)

// PurgeReport summarizes one sweep.
type PurgeReport struct {
	Purged []string          `json:"purged"`
	Failed map[string]string `json:"failed,omitempty"`
}

// purge removes version content from object storage and then the document
// and its versions from the store. Content goes first so a failure never
// leaves blobs without the metadata that points at them.
func (e *engine) purge(ctx context.Context, id string) error {
	vs, err := e.repo.ListVersions(ctx, id)
	if err != nil {
		metrics.Purges.WithLabelValues("failed").Inc()
		return err
	}
	keys := make([]string, 0, len(vs))
	for _, v := range vs {
		keys = append(keys, v.StorageKey)
	}
	if err := e.blobs.Remove(ctx, keys); err != nil {
		metrics.Purges.WithLabelValues("failed").Inc()
		return err
	}
	if _, err := e.repo.Purge(ctx, id); err != nil {
		metrics.Purges.WithLabelValues("failed").Inc()
		return err
	}
	metrics.Purges.WithLabelValues("purged").Inc()
	return nil
}

func (e *engine) requestSweep(ctx context.Context, id, reason string) {
	req := events.SweepRequest{DocumentID: id, Reason: reason, At: e.clock.Now()}
	if err := e.events.RequestSweep(ctx, req); err != nil {
		logger.Warnw("sweep request failed", "doc", id, "err", err)
	}
}

// PurgeDue physically removes every tombstone whose purge time has passed.
// Each purge is recorded as PURGE by the system actor. A failed document
// does not stop the sweep; it is reported and retried next time.
func (e *engine) PurgeDue(ctx context.Context, now time.Time) (*PurgeReport, error) {
	const op = "purge-due"
	ids, err := e.repo.ListPurgeDue(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			return nil, canceled(op, err)
		}
		return nil, document.WrapError(document.ErrInfrastructure, op, err)
	}
	report := &PurgeReport{Purged: []string{}, Failed: map[string]string{}}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		purged, err := e.purgeOne(ctx, id, now)
		if err != nil {
			report.Failed[id] = err.Error()
			continue
		}
		if purged {
			report.Purged = append(report.Purged, id)
		}
	}
	if len(report.Purged) > 0 || len(report.Failed) > 0 {
		logger.Infow("purge sweep finished", "purged", len(report.Purged), "failed", len(report.Failed))
	}
	return report, nil
}

func (e *engine) purgeOne(ctx context.Context, id string, now time.Time) (bool, error) {
	c := call{actor: access.System(), docID: id, action: audit.ActionPurge, op: "purge"}
	unlock, err := e.lock(ctx, c)
	if err != nil {
		return false, err
	}
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	// re-check under the lock: the document may have been restored or
	// purged inline since it was listed
	d, err := e.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.DeletedAt == nil || d.PurgeAt == nil || d.PurgeAt.After(now) {
		return false, nil
	}
	if err := e.purge(ctx, id); err != nil {
		return false, e.fail(ctx, c, nil, document.WrapError(document.ErrInfrastructure, c.op, err))
	}
	// the document is gone; a lost PURGE record can only be logged
	_ = e.succeed(ctx, c, nil, "retention")
	e.publish(ctx, events.Event{Type: events.DocumentPurged, DocumentID: id, CustomerID: d.CustomerID, ActorID: access.SystemActorID, At: now})
	return true, nil
}
