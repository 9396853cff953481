package repository

import (
	"context"
	"errors"
	"time"

	"github.com/docledger/docledger/internal/document"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrDeleted         = errors.New("document is deleted")
	ErrDuplicate       = errors.New("document already exists")
	ErrVersionConflict = errors.New("version changed concurrently")
)

// ListQuery is a listing filter plus the viewer whose ACL visibility applies.
type ListQuery struct {
	document.Filter
	ActorID string
	Roles   []string
	System  bool
}

// Repository persists documents and their versions. Implementations return
// copies; callers never hold references into the store.
type Repository interface {
	Create(ctx context.Context, doc *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context, q ListQuery) ([]*document.Document, int, error)
	// Update writes the mutable fields of doc: ACL, retention, timestamps,
	// deletedAt and purgeAt. Taxonomy and version pointers are left alone.
	Update(ctx context.Context, doc *document.Document) error
	// Purge removes the document and all its versions and returns the
	// removed versions.
	Purge(ctx context.Context, id string) ([]document.Version, error)
	// ListPurgeDue returns ids of tombstoned documents whose purgeAt <= now.
	ListPurgeDue(ctx context.Context, now time.Time) ([]string, error)

	// InsertVersion stores v and advances the document's latest and current
	// version to v.Version, but only if the document's latest version is
	// v.Version-1 and the document is not deleted (ErrVersionConflict,
	// ErrDeleted otherwise).
	InsertVersion(ctx context.Context, v *document.Version) error
	// RemoveVersion undoes an InsertVersion. It only exists for compensation
	// when the audit append of a new version fails.
	RemoveVersion(ctx context.Context, documentID string, version int, prev *document.Document) error
	GetVersion(ctx context.Context, documentID string, version int) (*document.Version, error)
	ListVersions(ctx context.Context, documentID string) ([]document.Version, error)
	// SetVersionStatus moves a version from one status to another and
	// recomputes the document's current version. It fails with
	// ErrVersionConflict when the stored status is not from. Transition rules
	// are enforced by the caller. It returns the updated document.
	SetVersionStatus(ctx context.Context, documentID string, version int, from, to document.VersionStatus, at time.Time) (*document.Document, error)
}
