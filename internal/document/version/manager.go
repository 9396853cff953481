// Package version assigns and stores immutable document versions.
package version

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/clock"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/document/repository"
)

const maxInsertAttempts = 3

// Manager creates versions with dense numbering. Callers must present an
// allowed write Decision for the document.
type Manager struct {
	repo  repository.Repository
	clock clock.Clock
}

func NewManager(repo repository.Repository, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{repo: repo, clock: clk}
}

// Validate checks caller-supplied version metadata.
func Validate(meta document.VersionMetadata) error {
	const op = "create-version"
	switch {
	case strings.TrimSpace(meta.Filename) == "":
		return document.Invalidf(op, "filename is required")
	case strings.TrimSpace(meta.StorageKey) == "":
		return document.Invalidf(op, "storageKey is required")
	case strings.TrimSpace(meta.MimeType) == "":
		return document.Invalidf(op, "mimeType is required")
	case meta.Size <= 0:
		return document.Invalidf(op, "size must be positive")
	}
	return nil
}

// Create stores version doc.LatestVersion+1. On a lost race it reloads the
// document and tries the next number, up to three times. It returns the new
// version and the document as it was right before the insert, which is what
// Remove needs to undo it.
func (m *Manager) Create(ctx context.Context, doc *document.Document, meta document.VersionMetadata, grant access.Decision) (*document.Version, *document.Document, error) {
	const op = "create-version"
	if !grant.Allowed || grant.Capability != access.Write {
		return nil, nil, document.NewError(document.ErrDenied, op, document.ReasonInsufficientPermissions)
	}
	if err := Validate(meta); err != nil {
		return nil, nil, err
	}
	if doc.DeletedAt != nil {
		return nil, nil, document.NewError(document.ErrNotFound, op, document.ReasonNotFound)
	}

	before := doc.Clone()
	for attempt := 1; ; attempt++ {
		v := &document.Version{
			DocumentID: before.ID,
			Version:    before.LatestVersion + 1,
			Filename:   meta.Filename,
			MimeType:   meta.MimeType,
			Size:       meta.Size,
			Hash:       meta.Hash,
			StorageKey: meta.StorageKey,
			Status:     document.VersionActive,
			CreatedBy:  grant.ActorID,
			CreatedAt:  m.clock.Now(),
		}
		err := m.repo.InsertVersion(ctx, v)
		switch {
		case err == nil:
			return v, before, nil
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrDeleted):
			return nil, nil, document.NewError(document.ErrNotFound, op, document.ReasonNotFound)
		case !errors.Is(err, repository.ErrVersionConflict):
			return nil, nil, document.WrapError(document.ErrInfrastructure, op, err)
		case attempt >= maxInsertAttempts:
			return nil, nil, document.NewError(document.ErrConflict, op, document.ReasonVersionConflict)
		}
		if before, err = m.repo.Get(ctx, doc.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, document.NewError(document.ErrNotFound, op, document.ReasonNotFound)
			}
			return nil, nil, document.WrapError(document.ErrInfrastructure, op, err)
		}
		if before.DeletedAt != nil {
			return nil, nil, document.NewError(document.ErrNotFound, op, document.ReasonNotFound)
		}
	}
}

// Remove undoes a Create whose audit record could not be written.
func (m *Manager) Remove(ctx context.Context, v *document.Version, before *document.Document) error {
	return m.repo.RemoveVersion(ctx, v.DocumentID, v.Version, before)
}

// List returns all versions of a document in ascending order.
func (m *Manager) List(ctx context.Context, documentID string) ([]document.Version, error) {
	vs, err := m.repo.ListVersions(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, document.NewError(document.ErrNotFound, "list-versions", document.ReasonNotFound)
	}
	if err != nil {
		return nil, document.WrapError(document.ErrInfrastructure, "list-versions", err)
	}
	return vs, nil
}

// Get returns one version.
func (m *Manager) Get(ctx context.Context, documentID string, n int) (*document.Version, error) {
	v, err := m.repo.GetVersion(ctx, documentID, n)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrVersionNotFound) {
		return nil, document.NewError(document.ErrNotFound, "get-version", document.ReasonNotFound)
	}
	if err != nil {
		return nil, document.WrapError(document.ErrInfrastructure, "get-version", err)
	}
	return v, nil
}

// SetStatus applies a version status transition and returns the updated
// document together with the status the version had before.
func (m *Manager) SetStatus(ctx context.Context, documentID string, n int, status document.VersionStatus, grant access.Decision) (*document.Document, document.VersionStatus, error) {
	const op = "set-version-status"
	if !grant.Allowed || grant.Capability != access.Write {
		return nil, "", document.NewError(document.ErrDenied, op, document.ReasonInsufficientPermissions)
	}
	switch status {
	case document.VersionActive, document.VersionSuperseded, document.VersionCorrupt:
	default:
		return nil, "", document.Invalidf(op, "unknown status %q", status)
	}
	v, err := m.Get(ctx, documentID, n)
	if err != nil {
		return nil, "", err
	}
	if !v.Status.CanTransition(status) {
		return nil, "", document.NewError(document.ErrConflict, op, document.ReasonInvalidTransition)
	}
	d, err := m.repo.SetVersionStatus(ctx, documentID, n, v.Status, status, m.clock.Now())
	switch {
	case err == nil:
		return d, v.Status, nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrVersionNotFound):
		return nil, "", document.NewError(document.ErrNotFound, op, document.ReasonNotFound)
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, "", document.NewError(document.ErrConflict, op, document.ReasonVersionConflict)
	}
	return nil, "", document.WrapError(document.ErrInfrastructure, op, err)
}

// RevertStatus undoes a SetStatus whose audit record could not be written.
// It bypasses the transition rules.
func (m *Manager) RevertStatus(ctx context.Context, documentID string, n int, from, to document.VersionStatus, at time.Time) error {
	_, err := m.repo.SetVersionStatus(ctx, documentID, n, from, to, at)
	return err
}
