package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docledger/docledger/internal/document"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newDoc(id string, created time.Time) *document.Document {
	return &document.Document{
		ID:         id,
		CustomerID: "cust-1",
		Taxonomy:   document.Taxonomy{Domain: "finance", Category: "invoices", DocType: "pdf"},
		ACL:        document.ACL{Owners: []string{"alice"}, Readers: []string{"rita"}, Roles: []string{"legal"}},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func version(id string, n int) *document.Version {
	return &document.Version{
		DocumentID: id, Version: n, Filename: "f.pdf", MimeType: "application/pdf",
		Size: 10, StorageKey: fmt.Sprintf("%s/v%d", id, n), Status: document.VersionActive,
		CreatedBy: "alice", CreatedAt: t0.Add(time.Duration(n) * time.Minute),
	}
}

func TestMemoryRepoCRUD(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := newDoc("doc_1", t0)
	require.NoError(t, r.Create(ctx, d))
	require.ErrorIs(t, r.Create(ctx, d), ErrDuplicate)

	got, err := r.Get(ctx, "doc_1")
	require.NoError(t, err)
	require.Equal(t, "cust-1", got.CustomerID)

	got.ACL.Owners[0] = "mallory"
	again, err := r.Get(ctx, "doc_1")
	require.NoError(t, err)
	require.Equal(t, "alice", again.ACL.Owners[0])

	again.ACL.Readers = []string{"bob"}
	again.Taxonomy.Domain = "changed"
	require.NoError(t, r.Update(ctx, again))
	after, err := r.Get(ctx, "doc_1")
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, after.ACL.Readers)
	require.Equal(t, "finance", after.Taxonomy.Domain)

	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Update(ctx, newDoc("missing", t0)), ErrNotFound)
}

func TestMemoryRepoListVisibilityAndPaging(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Create(ctx, newDoc(fmt.Sprintf("doc_%d", i), t0.Add(time.Duration(5-i)*time.Hour))))
	}
	other := newDoc("doc_x", t0)
	other.ACL = document.ACL{Owners: []string{"zed"}}
	require.NoError(t, r.Create(ctx, other))

	items, total, err := r.List(ctx, ListQuery{ActorID: "rita", Filter: document.Filter{Limit: 2}})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, items, 2)
	require.Equal(t, "doc_4", items[0].ID)
	require.Equal(t, "doc_3", items[1].ID)

	_, total, err = r.List(ctx, ListQuery{Roles: []string{"legal"}, ActorID: "someone"})
	require.NoError(t, err)
	require.Equal(t, 5, total)

	items, total, err = r.List(ctx, ListQuery{System: true, Filter: document.Filter{Page: 10}})
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Empty(t, items)

	_, total, err = r.List(ctx, ListQuery{ActorID: "rita", Filter: document.Filter{Domain: "hr"}})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestMemoryRepoTombstonesOnlyForOwners(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := newDoc("doc_1", t0)
	require.NoError(t, r.Create(ctx, d))
	del := t0.Add(time.Hour)
	d.DeletedAt = &del
	require.NoError(t, r.Update(ctx, d))

	_, total, err := r.List(ctx, ListQuery{ActorID: "alice"})
	require.NoError(t, err)
	require.Zero(t, total)

	_, total, err = r.List(ctx, ListQuery{ActorID: "alice", Filter: document.Filter{IncludeDeleted: true}})
	require.NoError(t, err)
	require.Equal(t, 1, total)

	_, total, err = r.List(ctx, ListQuery{ActorID: "rita", Filter: document.Filter{IncludeDeleted: true}})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestMemoryRepoVersions(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newDoc("doc_1", t0)))

	require.ErrorIs(t, r.InsertVersion(ctx, version("doc_1", 2)), ErrVersionConflict)
	require.NoError(t, r.InsertVersion(ctx, version("doc_1", 1)))
	require.ErrorIs(t, r.InsertVersion(ctx, version("doc_1", 1)), ErrVersionConflict)
	require.NoError(t, r.InsertVersion(ctx, version("doc_1", 2)))
	require.ErrorIs(t, r.InsertVersion(ctx, version("missing", 1)), ErrNotFound)

	d, err := r.Get(ctx, "doc_1")
	require.NoError(t, err)
	require.Equal(t, 2, d.CurrentVersion)
	require.Equal(t, 2, d.LatestVersion)

	vs, err := r.ListVersions(ctx, "doc_1")
	require.NoError(t, err)
	require.Len(t, vs, 2)
	require.Equal(t, 1, vs[0].Version)

	_, err = r.GetVersion(ctx, "doc_1", 3)
	require.ErrorIs(t, err, ErrVersionNotFound)

	d, err = r.SetVersionStatus(ctx, "doc_1", 2, document.VersionActive, document.VersionCorrupt, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, d.CurrentVersion)
	require.Equal(t, 2, d.LatestVersion)

	_, err = r.SetVersionStatus(ctx, "doc_1", 2, document.VersionActive, document.VersionSuperseded, t0)
	require.ErrorIs(t, err, ErrVersionConflict)
	_, err = r.SetVersionStatus(ctx, "doc_1", 7, document.VersionActive, document.VersionCorrupt, t0)
	require.ErrorIs(t, err, ErrVersionNotFound)

	// numbering continues from the latest version, not the current one
	require.NoError(t, r.InsertVersion(ctx, version("doc_1", 3)))

	d, err = r.SetVersionStatus(ctx, "doc_1", 1, document.VersionActive, document.VersionSuperseded, t0)
	require.NoError(t, err)
	require.Equal(t, 3, d.CurrentVersion)
}

func TestMemoryRepoRemoveVersionRestoresPointers(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newDoc("doc_1", t0)))
	require.NoError(t, r.InsertVersion(ctx, version("doc_1", 1)))
	prev, err := r.Get(ctx, "doc_1")
	require.NoError(t, err)

	require.NoError(t, r.InsertVersion(ctx, version("doc_1", 2)))
	require.NoError(t, r.RemoveVersion(ctx, "doc_1", 2, prev))

	d, err := r.Get(ctx, "doc_1")
	require.NoError(t, err)
	require.Equal(t, 1, d.CurrentVersion)
	require.Equal(t, 1, d.LatestVersion)
	require.Equal(t, prev.UpdatedAt, d.UpdatedAt)
	require.ErrorIs(t, r.RemoveVersion(ctx, "doc_1", 2, prev), ErrVersionNotFound)
}

func TestMemoryRepoDeletedRejectsVersionsAndPurges(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := newDoc("doc_1", t0)
	require.NoError(t, r.Create(ctx, d))
	require.NoError(t, r.InsertVersion(ctx, version("doc_1", 1)))

	del := t0.Add(time.Hour)
	purge := t0.Add(48 * time.Hour)
	d.DeletedAt, d.PurgeAt = &del, &purge
	require.NoError(t, r.Update(ctx, d))
	require.ErrorIs(t, r.InsertVersion(ctx, version("doc_1", 2)), ErrDeleted)

	due, err := r.ListPurgeDue(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)
	due, err = r.ListPurgeDue(ctx, purge)
	require.NoError(t, err)
	require.Equal(t, []string{"doc_1"}, due)

	removed, err := r.Purge(ctx, "doc_1")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	_, err = r.Get(ctx, "doc_1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.ListVersions(ctx, "doc_1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Purge(ctx, "doc_1")
	require.ErrorIs(t, err, ErrNotFound)
}
