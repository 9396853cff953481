package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/document"
)

// MemoryRepo is an in-process repository used for single-replica setups and
// unit tests. Documents are indexed by id and versions are kept densely per
// document, so version n lives at index n-1.
type MemoryRepo struct {
	mu       sync.RWMutex
	store    map[string]*document.Document
	versions map[string][]document.Version
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		store:    make(map[string]*document.Document),
		versions: make(map[string][]document.Version),
	}
}

func (m *MemoryRepo) Create(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[doc.ID]; ok {
		return ErrDuplicate
	}
	m.store[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(ctx context.Context, q ListQuery) ([]*document.Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f := q.Filter.Normalize()
	actor := access.Actor{ID: q.ActorID, Roles: q.Roles}
	if q.System {
		actor = access.System()
	}

	m.mu.RLock()
	matched := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		if matches(d, f) && visible(d, actor, f.IncludeDeleted) {
			matched = append(matched, d.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return []*document.Document{}, total, nil
	}
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func matches(d *document.Document, f document.Filter) bool {
	return (f.CustomerID == "" || d.CustomerID == f.CustomerID) &&
		(f.Domain == "" || d.Taxonomy.Domain == f.Domain) &&
		(f.Category == "" || d.Taxonomy.Category == f.Category) &&
		(f.DocType == "" || d.Taxonomy.DocType == f.DocType)
}

// visible hides tombstones unless requested, and then only from actors that
// could manage the document.
func visible(d *document.Document, actor access.Actor, includeDeleted bool) bool {
	if d.DeletedAt != nil {
		return includeDeleted && access.Can(&d.ACL, actor, access.ManageACL)
	}
	return access.Can(&d.ACL, actor, access.Read)
}

func (m *MemoryRepo) Update(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[doc.ID]
	if !ok {
		return ErrNotFound
	}
	in := doc.Clone()
	d.ACL = in.ACL
	d.Retention = in.Retention
	d.UpdatedAt = in.UpdatedAt
	d.DeletedAt = in.DeletedAt
	d.PurgeAt = in.PurgeAt
	return nil
}

func (m *MemoryRepo) Purge(_ context.Context, id string) ([]document.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return nil, ErrNotFound
	}
	removed := m.versions[id]
	delete(m.store, id)
	delete(m.versions, id)
	return removed, nil
}

func (m *MemoryRepo) ListPurgeDue(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for id, d := range m.store {
		if d.DeletedAt != nil && d.PurgeAt != nil && !d.PurgeAt.After(now) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepo) InsertVersion(_ context.Context, v *document.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[v.DocumentID]
	if !ok {
		return ErrNotFound
	}
	if d.DeletedAt != nil {
		return ErrDeleted
	}
	if d.LatestVersion != v.Version-1 || len(m.versions[d.ID]) != d.LatestVersion {
		return ErrVersionConflict
	}
	m.versions[d.ID] = append(m.versions[d.ID], *v)
	d.LatestVersion = v.Version
	d.CurrentVersion = v.Version
	d.UpdatedAt = v.CreatedAt
	return nil
}

func (m *MemoryRepo) RemoveVersion(_ context.Context, documentID string, version int, prev *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[documentID]
	if !ok {
		return ErrNotFound
	}
	vs := m.versions[documentID]
	if len(vs) == 0 || vs[len(vs)-1].Version != version {
		return ErrVersionNotFound
	}
	m.versions[documentID] = vs[:len(vs)-1]
	d.LatestVersion = prev.LatestVersion
	d.CurrentVersion = prev.CurrentVersion
	d.UpdatedAt = prev.UpdatedAt
	return nil
}

func (m *MemoryRepo) GetVersion(_ context.Context, documentID string, version int) (*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.store[documentID]; !ok {
		return nil, ErrNotFound
	}
	vs := m.versions[documentID]
	if version < 1 || version > len(vs) {
		return nil, ErrVersionNotFound
	}
	v := vs[version-1]
	return &v, nil
}

func (m *MemoryRepo) ListVersions(_ context.Context, documentID string) ([]document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.store[documentID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]document.Version, len(m.versions[documentID]))
	copy(out, m.versions[documentID])
	return out, nil
}

func (m *MemoryRepo) SetVersionStatus(_ context.Context, documentID string, version int, from, to document.VersionStatus, at time.Time) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	vs := m.versions[documentID]
	if version < 1 || version > len(vs) {
		return nil, ErrVersionNotFound
	}
	if vs[version-1].Status != from {
		return nil, ErrVersionConflict
	}
	vs[version-1].Status = to
	d.CurrentVersion = highestActive(vs)
	d.UpdatedAt = at
	return d.Clone(), nil
}

func highestActive(vs []document.Version) int {
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Status == document.VersionActive {
			return vs[i].Version
		}
	}
	return 0
}
