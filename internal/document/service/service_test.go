package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/docledger/docledger/internal/access"
	"github.com/docledger/docledger/internal/audit"
	"github.com/docledger/docledger/internal/document"
	"github.com/docledger/docledger/internal/document/repository"
	"github.com/docledger/docledger/internal/events"
	"github.com/docledger/docledger/internal/retention"
	"github.com/docledger/docledger/internal/storage"
	"github.com/docledger/docledger/internal/testutil"
	"github.com/docledger/docledger/pkg/metrics"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = access.Actor{ID: "alice", IP: "10.0.0.1", UserAgent: "test"}
	rita  = access.Actor{ID: "rita"}
	uma   = access.Actor{ID: "uma"}
	bob   = access.Actor{ID: "bob", Roles: []string{"legal"}}
	eve   = access.Actor{ID: "eve"}
)

const day = 24 * time.Hour

// flakyLedger fails appends for one action.
type flakyLedger struct {
	audit.Ledger
	mu   sync.Mutex
	fail audit.Action
}

func (f *flakyLedger) setFail(a audit.Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = a
}

func (f *flakyLedger) Append(ctx context.Context, e audit.Entry) (audit.Record, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail != "" && e.Action == fail {
		return audit.Record{}, errors.New("ledger unavailable")
	}
	return f.Ledger.Append(ctx, e)
}

type fixture struct {
	svc    Service
	repo   *repository.MemoryRepo
	ledger *audit.MemoryLedger
	flaky  *flakyLedger
	clock  *testutil.StubClock
	blobs  *storage.MemoryBlobs
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	policies, err := retention.NewRegistry(
		retention.Policy{ID: "standard", Period: 365 * day, DefaultMode: document.ModeSoft},
		retention.Policy{ID: "gdpr", Period: 30 * day, DefaultMode: document.ModeHard},
		retention.Policy{ID: "legal-hold", Period: 30 * day, DefaultMode: document.ModeHardLocked},
	)
	require.NoError(t, err)

	f := &fixture{
		repo:   repository.NewMemoryRepo(),
		ledger: audit.NewMemoryLedger(),
		clock:  testutil.FixedClock(),
		blobs:  &storage.MemoryBlobs{BaseURL: "https://blobs.test"},
		events: &events.Recorder{},
	}
	f.flaky = &flakyLedger{Ledger: f.ledger}
	f.svc = New(Options{
		Repo:     f.repo,
		Ledger:   f.flaky,
		Policies: policies,
		Blobs:    f.blobs,
		Events:   f.events,
		Clock:    f.clock,
		IDs:      testutil.NewStubIDGenerator("doc-"),
	})
	return f
}

func input(ret document.Retention) CreateInput {
	return CreateInput{
		CustomerID: "cust-1",
		Taxonomy:   document.Taxonomy{Domain: "finance", Category: "invoices", DocType: "pdf"},
		ACL: document.ACL{
			Owners:   []string{"alice"},
			Readers:  []string{"rita"},
			Updaters: []string{"uma"},
			Roles:    []string{"legal"},
		},
		Retention: ret,
	}
}

func (f *fixture) create(t *testing.T, ret document.Retention) *document.Document {
	t.Helper()
	d, err := f.svc.CreateDocument(context.Background(), alice, input(ret))
	require.NoError(t, err)
	return d
}

func (f *fixture) addVersion(t *testing.T, id string, key string) *document.Version {
	t.Helper()
	v, err := f.svc.CreateVersion(context.Background(), alice, id, document.VersionMetadata{
		Filename: key + ".pdf", MimeType: "application/pdf", Size: 42, StorageKey: key,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) records(t *testing.T, id string, action audit.Action) []audit.Record {
	t.Helper()
	all, err := f.ledger.Query(context.Background(), audit.Query{DocumentID: id})
	require.NoError(t, err)
	out := []audit.Record{}
	for _, r := range all {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

func TestSoftDeleteByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{Mode: document.ModeSoft})

	res, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ModeSoft, res.Mode)
	require.Equal(t, f.clock.Now(), res.DeletedAt)
	require.Nil(t, res.PurgeAt)

	page, err := f.svc.ListDocuments(ctx, rita, document.Filter{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	page, err = f.svc.ListDocuments(ctx, alice, document.Filter{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	page, err = f.svc.ListDocuments(ctx, alice, document.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	got, err := f.svc.GetDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.StateSoftDeleted, got.State())

	_, err = f.svc.GetDocument(ctx, rita, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)

	dels := f.records(t, d.ID, audit.ActionDelete)
	require.Len(t, dels, 1)
	require.Equal(t, audit.ResultSuccess, dels[0].Result)
	require.Equal(t, "soft", dels[0].Reason)
	require.Equal(t, "10.0.0.1", dels[0].IP)
}

func TestHardLockedDeleteBeforeDeadline(t *testing.T) {
	f := newFixture(t)
	deadline := f.clock.Now().Add(30 * day)
	d := f.create(t, document.Retention{Mode: document.ModeHardLocked, DeleteAt: &deadline})

	_, err := f.svc.DeleteDocument(context.Background(), alice, d.ID)
	require.ErrorIs(t, err, document.ErrRetentionLock)

	stored, err := f.repo.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Nil(t, stored.DeletedAt)
	require.Equal(t, d.UpdatedAt, stored.UpdatedAt)

	dels := f.records(t, d.ID, audit.ActionDelete)
	require.Len(t, dels, 1)
	require.Equal(t, audit.ResultError, dels[0].Result)
	require.Equal(t, document.ReasonRetentionLock, dels[0].Reason)

	// once the deadline passes the lock turns into an immediate hard delete
	f.clock.Advance(31 * day)
	res, err := f.svc.DeleteDocument(context.Background(), alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ModeHard, res.Mode)
	_, err = f.repo.Get(context.Background(), d.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReaderCannotUpdateACL(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, document.Retention{})
	before := promtest.ToFloat64(metrics.Operations.WithLabelValues("UPDATE_ACL", "DENIED"))

	_, err := f.svc.UpdateACL(context.Background(), rita, d.ID, document.ACL{Owners: []string{"rita"}})
	require.ErrorIs(t, err, document.ErrDenied)
	require.Equal(t, document.ReasonInsufficientPermissions, document.ReasonOf(err))

	stored, err := f.repo.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, stored.ACL.Owners)

	recs := f.records(t, d.ID, audit.ActionUpdateACL)
	require.Len(t, recs, 1)
	require.Equal(t, audit.ResultDenied, recs[0].Result)
	require.Equal(t, document.ReasonInsufficientPermissions, recs[0].Reason)
	require.Equal(t, before+1, promtest.ToFloat64(metrics.Operations.WithLabelValues("UPDATE_ACL", "DENIED")))
}

func TestVersionsAndContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{})
	require.Zero(t, d.CurrentVersion)

	_, err := f.svc.GetContent(ctx, alice, d.ID, nil)
	require.ErrorIs(t, err, document.ErrNotFound)

	f.addVersion(t, d.ID, "k1")
	f.clock.Advance(time.Minute)
	v2 := f.addVersion(t, d.ID, "k2")
	require.Equal(t, 2, v2.Version)

	got, err := f.svc.GetDocument(ctx, rita, d.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.CurrentVersion)

	vs, err := f.svc.ListVersions(ctx, rita, d.ID)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	require.Equal(t, 1, vs[0].Version)
	require.Equal(t, 2, vs[1].Version)
	require.True(t, vs[0].CreatedAt.Before(vs[1].CreatedAt))

	ref, err := f.svc.GetContent(ctx, rita, d.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ref.Version)
	require.Equal(t, "k2", ref.StorageKey)
	require.Equal(t, "https://blobs.test/k2", ref.URL)

	one := 1
	ref, err = f.svc.GetContent(ctx, rita, d.ID, &one)
	require.NoError(t, err)
	require.Equal(t, "k1", ref.StorageKey)

	missing := 9
	_, err = f.svc.GetContent(ctx, rita, d.ID, &missing)
	require.ErrorIs(t, err, document.ErrNotFound)

	reads := f.records(t, d.ID, audit.ActionRead)
	var withVersion int
	for _, r := range reads {
		if r.Version != nil && r.Result == audit.ResultSuccess {
			withVersion++
		}
	}
	require.Equal(t, 2, withVersion)

	creates := f.records(t, d.ID, audit.ActionCreateVersion)
	require.Len(t, creates, 2)
	require.Equal(t, 2, *creates[1].Version)
	require.Len(t, f.events.Events(), 3)
}

func TestCreateVersionPermissions(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, document.Retention{})
	meta := document.VersionMetadata{Filename: "a", MimeType: "text/plain", Size: 1, StorageKey: "a"}

	_, err := f.svc.CreateVersion(context.Background(), uma, d.ID, meta)
	require.NoError(t, err)
	_, err = f.svc.CreateVersion(context.Background(), bob, d.ID, meta)
	require.NoError(t, err)
	_, err = f.svc.CreateVersion(context.Background(), rita, d.ID, meta)
	require.ErrorIs(t, err, document.ErrDenied)
	_, err = f.svc.CreateVersion(context.Background(), alice, d.ID, document.VersionMetadata{Filename: "a"})
	require.ErrorIs(t, err, document.ErrInvalidInput)

	recs := f.records(t, d.ID, audit.ActionCreateVersion)
	require.Len(t, recs, 4)
	require.Equal(t, audit.ResultDenied, recs[2].Result)
	require.Equal(t, audit.ResultError, recs[3].Result)
}

func TestUpdateACLRejectsZeroOwners(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, document.Retention{})

	for _, acl := range []document.ACL{
		{Readers: []string{"rita"}},
		{Owners: []string{" ", ""}, Readers: []string{"rita"}},
	} {
		_, err := f.svc.UpdateACL(context.Background(), alice, d.ID, acl)
		require.ErrorIs(t, err, document.ErrConflict)
		require.Equal(t, document.ReasonZeroOwners, document.ReasonOf(err))
	}
	stored, err := f.repo.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, stored.ACL.Owners)

	updated, err := f.svc.UpdateACL(context.Background(), alice, d.ID, document.ACL{Owners: []string{"alice", "alice", "carol"}})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, updated.ACL.Owners)
	require.Empty(t, updated.ACL.Readers)

	_, err = f.svc.GetDocument(context.Background(), rita, d.ID)
	require.ErrorIs(t, err, document.ErrDenied)
}

func TestExactlyOneDeleteRecordPerOutcome(t *testing.T) {
	deadline := testutil.FixedClock().Now().Add(time.Hour)
	cases := []struct {
		name   string
		ret    document.Retention
		actor  access.Actor
		id     string
		result audit.Result
	}{
		{"soft", document.Retention{}, alice, "", audit.ResultSuccess},
		{"hard", document.Retention{Mode: document.ModeHard}, alice, "", audit.ResultSuccess},
		{"updater denied", document.Retention{}, uma, "", audit.ResultDenied},
		{"role denied", document.Retention{}, bob, "", audit.ResultDenied},
		{"locked", document.Retention{Mode: document.ModeHardLocked, DeleteAt: &deadline}, alice, "", audit.ResultError},
		{"missing", document.Retention{}, alice, "doc-missing", audit.ResultError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.create(t, tc.ret)
			id := d.ID
			if tc.id != "" {
				id = tc.id
			}
			_, _ = f.svc.DeleteDocument(context.Background(), tc.actor, id)
			dels := f.records(t, id, audit.ActionDelete)
			require.Len(t, dels, 1)
			require.Equal(t, tc.result, dels[0].Result)
			require.NotEmpty(t, dels[0].Reason)
		})
	}
}

func TestGetDocumentTwiceProducesTwoReads(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, document.Retention{})

	first, err := f.svc.GetDocument(context.Background(), rita, d.ID)
	require.NoError(t, err)
	second, err := f.svc.GetDocument(context.Background(), rita, d.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	reads := f.records(t, d.ID, audit.ActionRead)
	require.Len(t, reads, 2)
	require.NotEqual(t, reads[0].Seq, reads[1].Seq)
}

func TestConcurrentCreateVersionIsDense(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, document.Retention{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateVersion(context.Background(), alice, d.ID, document.VersionMetadata{
				Filename: "f", MimeType: "text/plain", Size: 1, StorageKey: "k",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	vs, err := f.svc.ListVersions(context.Background(), alice, d.ID)
	require.NoError(t, err)
	require.Len(t, vs, 10)
	for i, v := range vs {
		require.Equal(t, i+1, v.Version)
	}
	require.Len(t, f.records(t, d.ID, audit.ActionCreateVersion), 10)
}

func TestAuditFailureCompensates(t *testing.T) {
	ctx := context.Background()

	t.Run("update acl", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t, document.Retention{})
		f.flaky.setFail(audit.ActionUpdateACL)
		_, err := f.svc.UpdateACL(ctx, alice, d.ID, document.ACL{Owners: []string{"carol"}})
		require.ErrorIs(t, err, document.ErrInfrastructure)
		stored, err := f.repo.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"alice"}, stored.ACL.Owners)
	})

	t.Run("create version", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t, document.Retention{})
		f.addVersion(t, d.ID, "k1")
		f.flaky.setFail(audit.ActionCreateVersion)
		_, err := f.svc.CreateVersion(ctx, alice, d.ID, document.VersionMetadata{Filename: "f", MimeType: "m", Size: 1, StorageKey: "k2"})
		require.ErrorIs(t, err, document.ErrInfrastructure)

		stored, err := f.repo.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.CurrentVersion)
		require.Equal(t, 1, stored.LatestVersion)
		vs, err := f.repo.ListVersions(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, vs, 1)

		f.flaky.setFail("")
		v := f.addVersion(t, d.ID, "k2")
		require.Equal(t, 2, v.Version)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t, document.Retention{Mode: document.ModeHard})
		f.flaky.setFail(audit.ActionDelete)
		_, err := f.svc.DeleteDocument(ctx, alice, d.ID)
		require.ErrorIs(t, err, document.ErrInfrastructure)
		stored, err := f.repo.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Nil(t, stored.DeletedAt)
		require.Nil(t, stored.PurgeAt)
	})

	t.Run("create document", func(t *testing.T) {
		f := newFixture(t)
		f.flaky.setFail(audit.ActionCreate)
		_, err := f.svc.CreateDocument(ctx, alice, input(document.Retention{}))
		require.ErrorIs(t, err, document.ErrInfrastructure)
		_, err = f.repo.Get(ctx, "doc-1")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("version status", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t, document.Retention{})
		f.addVersion(t, d.ID, "k1")
		f.flaky.setFail(audit.ActionUpdateVersionStatus)
		_, err := f.svc.SetVersionStatus(ctx, alice, d.ID, 1, document.VersionCorrupt)
		require.ErrorIs(t, err, document.ErrInfrastructure)
		v, err := f.repo.GetVersion(ctx, d.ID, 1)
		require.NoError(t, err)
		require.Equal(t, document.VersionActive, v.Status)
		stored, err := f.repo.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.CurrentVersion)
	})

	t.Run("read", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t, document.Retention{})
		f.flaky.setFail(audit.ActionRead)
		_, err := f.svc.GetDocument(ctx, alice, d.ID)
		require.ErrorIs(t, err, document.ErrInfrastructure)
	})

	t.Run("denial", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t, document.Retention{})
		f.flaky.setFail(audit.ActionUpdateACL)
		before := promtest.ToFloat64(metrics.AuditFailures.WithLabelValues("UPDATE_ACL"))

		_, err := f.svc.UpdateACL(ctx, rita, d.ID, document.ACL{Owners: []string{"rita"}})
		require.ErrorIs(t, err, document.ErrInfrastructure)
		require.NotErrorIs(t, err, document.ErrDenied)
		require.Empty(t, f.records(t, d.ID, audit.ActionUpdateACL))
		require.Equal(t, before+1, promtest.ToFloat64(metrics.AuditFailures.WithLabelValues("UPDATE_ACL")))
	})

	t.Run("rejected delete", func(t *testing.T) {
		f := newFixture(t)
		deadline := f.clock.Now().Add(30 * day)
		d := f.create(t, document.Retention{Mode: document.ModeHardLocked, DeleteAt: &deadline})
		f.flaky.setFail(audit.ActionDelete)
		_, err := f.svc.DeleteDocument(ctx, alice, d.ID)
		require.ErrorIs(t, err, document.ErrInfrastructure)
		require.NotErrorIs(t, err, document.ErrRetentionLock)
	})
}

func TestEmptyDocumentIDIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meta := document.VersionMetadata{Filename: "f", MimeType: "m", Size: 1, StorageKey: "k"}
	calls := map[string]func() error{
		"get":       func() error { _, err := f.svc.GetDocument(ctx, alice, ""); return err },
		"acl":       func() error { _, err := f.svc.UpdateACL(ctx, alice, " ", document.ACL{Owners: []string{"alice"}}); return err },
		"retention": func() error { _, err := f.svc.UpdateRetention(ctx, alice, "", document.Retention{}); return err },
		"delete":    func() error { _, err := f.svc.DeleteDocument(ctx, alice, ""); return err },
		"restore":   func() error { _, err := f.svc.RestoreDocument(ctx, alice, ""); return err },
		"versions":  func() error { _, err := f.svc.ListVersions(ctx, alice, ""); return err },
		"version":   func() error { _, err := f.svc.CreateVersion(ctx, alice, "", meta); return err },
		"trail":     func() error { _, err := f.svc.AuditTrail(ctx, access.System(), "", nil); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), document.ErrInvalidInput)
		})
	}
	require.Zero(t, f.ledger.Len())
}

func TestScheduledHardDeleteRestoreAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{PolicyID: "gdpr"})
	require.NotNil(t, d.Retention.DeleteAt)
	require.Equal(t, d.CreatedAt.Add(30*day), *d.Retention.DeleteAt)
	f.addVersion(t, d.ID, "k1")
	f.addVersion(t, d.ID, "k2")

	res, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ModeSoft, res.Mode)
	require.NotNil(t, res.PurgeAt)
	require.Equal(t, *d.Retention.DeleteAt, *res.PurgeAt)

	_, err = f.svc.DeleteDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)

	_, err = f.svc.RestoreDocument(ctx, rita, d.ID)
	require.ErrorIs(t, err, document.ErrDenied)
	restored, err := f.svc.RestoreDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)
	require.Nil(t, restored.PurgeAt)
	_, err = f.svc.RestoreDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrConflict)

	_, err = f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)

	report, err := f.svc.PurgeDue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Empty(t, report.Purged)

	f.clock.Advance(31 * day)
	_, err = f.svc.GetDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)

	report, err = f.svc.PurgeDue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, []string{d.ID}, report.Purged)
	require.ElementsMatch(t, []string{"k1", "k2"}, f.blobs.Removed())
	_, err = f.repo.Get(ctx, d.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	purges := f.records(t, d.ID, audit.ActionPurge)
	require.Len(t, purges, 1)
	require.Equal(t, access.SystemActorID, purges[0].ActorID)

	trail, err := f.svc.AuditTrail(ctx, access.System(), d.ID, nil)
	require.NoError(t, err)
	require.NoError(t, audit.Verify(trail))
	_, err = f.svc.AuditTrail(ctx, alice, d.ID, nil)
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestImmediateHardDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{Mode: document.ModeHard})
	f.addVersion(t, d.ID, "k1")

	res, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ModeHard, res.Mode)
	require.Equal(t, []string{"k1"}, f.blobs.Removed())
	_, err = f.svc.GetDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)

	dels := f.records(t, d.ID, audit.ActionDelete)
	require.Len(t, dels, 1)
	require.Equal(t, "hard", dels[0].Reason)
}

func TestFailedInlinePurgeIsLeftToSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{Mode: document.ModeHard})
	f.addVersion(t, d.ID, "k1")
	f.blobs.Err = errors.New("object store down")

	res, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ModeHard, res.Mode)

	_, err = f.repo.Get(ctx, d.ID)
	require.NoError(t, err, "tombstone stays until the sweep succeeds")
	_, err = f.svc.GetDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = f.svc.RestoreDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
	require.Len(t, f.events.Sweeps(), 1)

	report, err := f.svc.PurgeDue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Contains(t, report.Failed, d.ID)
	failed := f.records(t, d.ID, audit.ActionPurge)
	require.Len(t, failed, 1)
	require.Equal(t, audit.ResultError, failed[0].Result)

	f.blobs.Err = nil
	report, err = f.svc.PurgeDue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, []string{d.ID}, report.Purged)
	require.Len(t, f.records(t, d.ID, audit.ActionDelete), 1)
}

func TestCreateDocumentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(*CreateInput){
		"customer": func(in *CreateInput) { in.CustomerID = "" },
		"taxonomy": func(in *CreateInput) { in.Taxonomy.DocType = "" },
		"owners":   func(in *CreateInput) { in.ACL.Owners = nil },
		"creator":  func(in *CreateInput) { in.ACL.Owners = []string{"carol"} },
		"mode":     func(in *CreateInput) { in.Retention.Mode = "forever" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := input(document.Retention{})
			mutate(&in)
			_, err := f.svc.CreateDocument(ctx, alice, in)
			require.ErrorIs(t, err, document.ErrInvalidInput)
		})
	}

	// every rejected create is audited against the id it would have had
	for _, id := range []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"} {
		recs := f.records(t, id, audit.ActionCreate)
		require.Len(t, recs, 1)
		require.Equal(t, audit.ResultError, recs[0].Result)
	}

	d, err := f.svc.CreateDocument(ctx, access.System(), input(document.Retention{PolicyID: "standard"}))
	require.NoError(t, err)
	require.Equal(t, "doc-6", d.ID)
	require.Equal(t, d.CreatedAt.Add(365*day), *d.Retention.DeleteAt)
}

func TestUnresolvedPolicyDeletesSoftly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{PolicyID: "default", Mode: document.ModeHard})
	require.Equal(t, "default", d.Retention.PolicyID)
	require.Nil(t, d.Retention.DeleteAt)

	res, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ModeSoft, res.Mode)
	require.Nil(t, res.PurgeAt)

	stored, err := f.repo.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.StateSoftDeleted, stored.State())

	dels := f.records(t, d.ID, audit.ActionDelete)
	require.Len(t, dels, 1)
	require.Equal(t, "soft", dels[0].Reason)
}

func TestSetVersionStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{})
	f.addVersion(t, d.ID, "k1")
	f.addVersion(t, d.ID, "k2")

	_, err := f.svc.SetVersionStatus(ctx, rita, d.ID, 2, document.VersionCorrupt)
	require.ErrorIs(t, err, document.ErrDenied)

	updated, err := f.svc.SetVersionStatus(ctx, uma, d.ID, 2, document.VersionCorrupt)
	require.NoError(t, err)
	require.Equal(t, 1, updated.CurrentVersion)
	require.Equal(t, 2, updated.LatestVersion)

	ref, err := f.svc.GetContent(ctx, rita, d.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, ref.Version)
	two := 2
	_, err = f.svc.GetContent(ctx, rita, d.ID, &two)
	require.ErrorIs(t, err, document.ErrConflict)

	_, err = f.svc.SetVersionStatus(ctx, alice, d.ID, 2, document.VersionActive)
	require.ErrorIs(t, err, document.ErrConflict)

	v3 := f.addVersion(t, d.ID, "k3")
	require.Equal(t, 3, v3.Version)

	recs := f.records(t, d.ID, audit.ActionUpdateVersionStatus)
	require.Len(t, recs, 3)
	require.Equal(t, 2, *recs[1].Version)
}

func TestUpdateRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{PolicyID: "legal-hold"})
	require.NotNil(t, d.Retention.DeleteAt)

	_, err := f.svc.UpdateRetention(ctx, rita, d.ID, document.Retention{})
	require.ErrorIs(t, err, document.ErrDenied)

	_, err = f.svc.UpdateRetention(ctx, alice, d.ID, document.Retention{Mode: document.ModeSoft})
	require.ErrorIs(t, err, document.ErrRetentionLock)

	// an unresolvable policy would delete softly, which releases the lock
	nope := d.Retention.DeleteAt.Add(day)
	_, err = f.svc.UpdateRetention(ctx, alice, d.ID, document.Retention{PolicyID: "nope", Mode: document.ModeHardLocked, DeleteAt: &nope})
	require.ErrorIs(t, err, document.ErrRetentionLock)

	later := d.Retention.DeleteAt.Add(day)
	updated, err := f.svc.UpdateRetention(ctx, uma, d.ID, document.Retention{PolicyID: "legal-hold", DeleteAt: &later})
	require.NoError(t, err)
	require.Equal(t, later, *updated.Retention.DeleteAt)

	recs := f.records(t, d.ID, audit.ActionUpdateRetention)
	require.Len(t, recs, 4)
	require.Equal(t, audit.ResultSuccess, recs[3].Result)
}

func TestMutationsOnDeletedDocumentAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{})
	_, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateACL(ctx, alice, d.ID, document.ACL{Owners: []string{"alice"}})
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = f.svc.UpdateRetention(ctx, alice, d.ID, document.Retention{})
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = f.svc.CreateVersion(ctx, alice, d.ID, document.VersionMetadata{Filename: "f", MimeType: "m", Size: 1, StorageKey: "k"})
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = f.svc.GetContent(ctx, alice, d.ID, nil)
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = f.svc.ListVersions(ctx, alice, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestListDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t, document.Retention{})
		f.clock.Advance(time.Minute)
	}
	other := input(document.Retention{})
	other.ACL = document.ACL{Owners: []string{"eve"}}
	other.Taxonomy.Domain = "hr"
	_, err := f.svc.CreateDocument(ctx, eve, other)
	require.NoError(t, err)

	page, err := f.svc.ListDocuments(ctx, bob, document.Filter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	require.Equal(t, "doc-1", page.Items[0].ID)

	page, err = f.svc.ListDocuments(ctx, access.System(), document.Filter{Domain: "hr"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	page, err = f.svc.ListDocuments(ctx, eve, document.Filter{Domain: "finance"})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Zero(t, page.TotalPages)

	_, err = f.svc.ListDocuments(ctx, alice, document.Filter{Limit: -1})
	require.ErrorIs(t, err, document.ErrInvalidInput)

	// listing is not audited
	require.Empty(t, f.records(t, "doc-1", audit.ActionRead))
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{})
	f.addVersion(t, d.ID, "k1")
	_, err := f.svc.UpdateACL(ctx, rita, d.ID, document.ACL{Owners: []string{"rita"}})
	require.Error(t, err)

	trail, err := f.svc.AuditTrail(ctx, alice, d.ID, nil)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	require.Equal(t, audit.ActionCreate, trail[0].Action)
	require.NoError(t, audit.Verify(trail))

	one := 1
	trail, err = f.svc.AuditTrail(ctx, alice, d.ID, &one)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, audit.ActionCreateVersion, trail[0].Action)

	_, err = f.svc.AuditTrail(ctx, rita, d.ID, nil)
	require.ErrorIs(t, err, document.ErrDenied)

	// the trail query itself leaves no record
	trail, err = f.svc.AuditTrail(ctx, alice, d.ID, nil)
	require.NoError(t, err)
	require.Len(t, trail, 3)
}

func TestCanceledReadIsAuditedAsError(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, document.Retention{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.GetDocument(ctx, alice, d.ID)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, document.ErrInfrastructure)

	reads := f.records(t, d.ID, audit.ActionRead)
	require.Len(t, reads, 1)
	require.Equal(t, audit.ResultError, reads[0].Result)
	require.Equal(t, document.ReasonCanceled, reads[0].Reason)
}

func TestLifecycleEventsArePublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, document.Retention{})
	_, err := f.svc.DeleteDocument(ctx, alice, d.ID)
	require.NoError(t, err)
	_, err = f.svc.RestoreDocument(ctx, alice, d.ID)
	require.NoError(t, err)

	var types []events.Type
	for _, e := range f.events.Events() {
		types = append(types, e.Type)
		require.Equal(t, d.ID, e.DocumentID)
	}
	require.Equal(t, []events.Type{events.DocumentCreated, events.DocumentDeleted, events.DocumentRestored}, types)

	// a broken bus never fails the operation
	f.events.Err = errors.New("bus down")
	_, err = f.svc.UpdateACL(ctx, alice, d.ID, document.ACL{Owners: []string{"alice"}})
	require.NoError(t, err)
}
