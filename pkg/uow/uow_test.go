package uow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/store/memstore"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type job struct {
	entity.Base
	Name string
}

func (*job) Kind() string { return "job" }

type unregistered struct {
	entity.Base
}

func (*unregistered) Kind() string { return "unregistered" }

func jobMapping() isolation.Mapping[*job] {
	return isolation.Mapping[*job]{
		Table:   "jobs",
		Columns: []string{"name"},
		New:     func() *job { return &job{} },
		Values:  func(j *job) []any { return []any{j.Name} },
		Targets: func(j *job) []any { return []any{&j.Name} },
		Clone: func(j *job) *job {
			c := *j
			c.Base = j.Base.Clone()
			return &c
		},
	}
}

type recorder struct {
	mu      sync.Mutex
	batches []events.Batch
	err     error
}

func (r *recorder) Dispatch(_ context.Context, b events.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return r.err
}

func (r *recorder) all() []events.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	jobs     isolation.Type[*job]
	manager  *uow.Manager
	recorder *recorder
	clock    *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func newFixture(t *testing.T, opts ...uow.Option) *fixture {
	t.Helper()
	reg := isolation.NewRegistry()
	f := &fixture{
		store:    memstore.New(),
		jobs:     isolation.Register(reg, jobMapping()),
		recorder: &recorder{},
		clock:    &clock{now: t0},
	}
	opts = append([]uow.Option{
		uow.WithDispatcher(f.recorder),
		uow.WithClock(f.clock.Now),
		uow.WithLogger(quietLogger()),
	}, opts...)
	f.manager = uow.NewManager(f.store, reg, opts...)
	return f
}

func tenantCtx(t *testing.T, tenantID uuid.UUID, actor string) context.Context {
	t.Helper()
	tc, err := tenancy.New(tenantID, actor)
	require.NoError(t, err)
	return composables.WithTenantContext(context.Background(), tc)
}

func (f *fixture) create(t *testing.T, ctx context.Context, name string) *job {
	t.Helper()
	j := &job{Name: name}
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Add(ctx, j)
	}))
	return j
}

func (f *fixture) get(ctx context.Context, id uuid.UUID, opts ...uow.ReadOption) (*job, error) {
	return uow.RunResult(ctx, f.manager, func(ctx context.Context) (*job, error) {
		return uow.Get(ctx, f.jobs, id, opts...)
	})
}

func TestCreate_StampsTenantAndAudit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenantA := uuid.New()
	ctx := tenantCtx(t, tenantA, "user-1")

	j := f.create(t, ctx, "Acme Job")

	require.NotEqual(t, uuid.Nil, j.ID)
	require.Equal(t, tenantA, j.TenantID)
	require.Equal(t, t0, j.CreatedAt)
	require.Equal(t, "user-1", j.CreatedBy)
	require.False(t, j.IsDeleted)
	require.Nil(t, j.UpdatedAt)
	require.False(t, j.Version.IsZero())

	stored, ok := f.store.Raw(f.jobs.Descriptor(), j.ID)
	require.True(t, ok)
	require.Equal(t, j.Version, stored.Meta().Version)
	require.Equal(t, "Acme Job", stored.(*job).Name)
}

func TestRead_OtherTenantSeesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctxA := tenantCtx(t, uuid.New(), "user-a")
	ctxB := tenantCtx(t, uuid.New(), "user-b")
	j := f.create(t, ctxA, "Acme Job")

	_, err := f.get(ctxB, j.ID)
	require.ErrorIs(t, err, uow.ErrNotFound)

	found, err := uow.RunResult(ctxB, f.manager, func(ctx context.Context) ([]*job, error) {
		return uow.Find(ctx, f.jobs)
	})
	require.NoError(t, err)
	require.Empty(t, found)

	n, err := uow.RunResult(ctxB, f.manager, func(ctx context.Context) (int64, error) {
		return uow.Count(ctx, f.jobs, uow.IncludeDeleted())
	})
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, 1, f.store.Len(f.jobs.Descriptor()))

	got, err := f.get(ctxA, j.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Job", got.Name)
}

func TestRemove_SoftDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "Acme Job")

	f.clock.Advance(time.Hour)
	require.NoError(t, f.manager.Run(tenantCtx(t, j.TenantID, "user-2"), func(ctx context.Context) error {
		loaded, err := uow.Get(ctx, f.jobs, j.ID)
		if err != nil {
			return err
		}
		return uow.Remove(ctx, loaded)
	}))

	require.Equal(t, 1, f.store.Len(f.jobs.Descriptor()))

	_, err := f.get(ctx, j.ID)
	require.ErrorIs(t, err, uow.ErrNotFound)

	list, err := uow.RunResult(ctx, f.manager, func(ctx context.Context) ([]*job, error) {
		return uow.Find(ctx, f.jobs, uow.IncludeDeleted())
	})
	require.NoError(t, err)
	require.Len(t, list, 1)

	deleted := list[0]
	require.True(t, deleted.IsDeleted)
	require.NotNil(t, deleted.DeletedAt)
	require.Equal(t, t0.Add(time.Hour), *deleted.DeletedAt)
	require.Equal(t, "user-2", *deleted.DeletedBy)
	require.Equal(t, t0, deleted.CreatedAt)
	require.Equal(t, "user-1", deleted.CreatedBy)
	require.NotEqual(t, j.Version, deleted.Version)
}

func TestRemove_AlreadyDeletedIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "Acme Job")

	remove := func(ctx context.Context) error {
		loaded, err := uow.Get(ctx, f.jobs, j.ID, uow.IncludeDeleted())
		if err != nil {
			return err
		}
		return uow.Remove(ctx, loaded)
	}
	require.NoError(t, f.manager.Run(ctx, remove))
	first, err := f.get(ctx, j.ID, uow.IncludeDeleted())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.manager.Run(tenantCtx(t, j.TenantID, "user-2"), remove))

	second, err := f.get(ctx, j.ID, uow.IncludeDeleted())
	require.NoError(t, err)
	require.Equal(t, *first.DeletedAt, *second.DeletedAt)
	require.Equal(t, *first.DeletedBy, *second.DeletedBy)
	require.Equal(t, first.Version, second.Version)
}

func TestUpdate_StaleVersionConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "Acme Job")

	first, err := f.manager.Begin(ctx)
	require.NoError(t, err)
	second, err := f.manager.Begin(ctx)
	require.NoError(t, err)

	a, err := uow.Get(uow.WithUnitOfWork(ctx, first), f.jobs, j.ID)
	require.NoError(t, err)
	b, err := uow.Get(uow.WithUnitOfWork(ctx, second), f.jobs, j.ID)
	require.NoError(t, err)
	require.Equal(t, a.Version, b.Version)

	a.Name = "First"
	require.NoError(t, first.Update(a))
	require.NoError(t, first.Commit(ctx))
	require.NotEqual(t, b.Version, a.Version)

	b.Name = "Second"
	b.Raise("job.renamed", "Second")
	require.NoError(t, second.Update(b))
	err = second.Commit(ctx)
	require.ErrorIs(t, err, uow.ErrConcurrencyConflict)
	require.True(t, uow.IsConflict(err))

	require.Nil(t, b.UpdatedAt)
	require.Empty(t, b.PendingEvents())

	stored, err := f.get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, "First", stored.Name)
	require.Equal(t, a.Version, stored.Version)
	require.Len(t, f.recorder.all(), 0)
}

func TestUpdate_StampsModification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "Acme Job")
	created := j.Version

	f.clock.Advance(time.Minute)
	j.Name = "Renamed"
	require.NoError(t, f.manager.Run(tenantCtx(t, j.TenantID, "user-2"), func(ctx context.Context) error {
		return uow.Update(ctx, j)
	}))

	require.NotEqual(t, created, j.Version)
	require.Equal(t, t0.Add(time.Minute), *j.UpdatedAt)
	require.Equal(t, "user-2", *j.UpdatedBy)
	require.Equal(t, t0, j.CreatedAt)
	require.Equal(t, "user-1", j.CreatedBy)
}

func TestUpdate_DetectsInPlaceEdits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "Acme Job")

	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		loaded, err := uow.Get(ctx, f.jobs, j.ID)
		if err != nil {
			return err
		}
		loaded.Name = "Edited"
		return nil
	}))

	got, err := f.get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, "Edited", got.Name)
	require.NotNil(t, got.UpdatedAt)
}

func TestUpdate_KeepsCreationFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "alice")
	j := f.create(t, ctx, "Acme Job")
	forged := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		loaded, err := uow.Get(ctx, f.jobs, j.ID)
		if err != nil {
			return err
		}
		loaded.Name = "Renamed"
		loaded.CreatedAt = forged
		loaded.CreatedBy = "mallory"
		return uow.Update(ctx, loaded)
	}))

	stored, ok := f.store.Raw(f.jobs.Descriptor(), j.ID)
	require.True(t, ok)
	require.Equal(t, "Renamed", stored.(*job).Name)
	require.Equal(t, t0, stored.Meta().CreatedAt)
	require.Equal(t, "alice", stored.Meta().CreatedBy)

	// A record from an earlier unit of work is restored by the store.
	j.CreatedAt = forged
	j.CreatedBy = "mallory"
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Update(ctx, j)
	}))
	require.Equal(t, t0, j.CreatedAt)
	require.Equal(t, "alice", j.CreatedBy)

	stored, ok = f.store.Raw(f.jobs.Descriptor(), j.ID)
	require.True(t, ok)
	require.Equal(t, t0, stored.Meta().CreatedAt)
	require.Equal(t, "alice", stored.Meta().CreatedBy)
}

func TestUpdate_DeletedFlagIsStampedAsRemove(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "alice")
	j := f.create(t, ctx, "Acme Job")

	f.clock.Advance(time.Hour)
	require.NoError(t, f.manager.Run(tenantCtx(t, j.TenantID, "bob"), func(ctx context.Context) error {
		loaded, err := uow.Get(ctx, f.jobs, j.ID)
		if err != nil {
			return err
		}
		loaded.IsDeleted = true
		return uow.Update(ctx, loaded)
	}))

	stored, ok := f.store.Raw(f.jobs.Descriptor(), j.ID)
	require.True(t, ok)
	b := stored.Meta()
	require.True(t, b.IsDeleted)
	require.NotNil(t, b.DeletedAt)
	require.Equal(t, t0.Add(time.Hour), *b.DeletedAt)
	require.NotNil(t, b.DeletedBy)
	require.Equal(t, "bob", *b.DeletedBy)

	_, err := f.get(ctx, j.ID)
	require.ErrorIs(t, err, uow.ErrNotFound)

	// Same for a record handed straight to Update.
	k := f.create(t, ctx, "Beta Job")
	k.IsDeleted = true
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Update(ctx, k)
	}))
	require.NotNil(t, k.DeletedAt)
	require.Equal(t, "alice", *k.DeletedBy)
}

func TestUpdate_IgnoresForgedDeletionStamps(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "alice")
	j := f.create(t, ctx, "Acme Job")

	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		loaded, err := uow.Get(ctx, f.jobs, j.ID)
		if err != nil {
			return err
		}
		mallory := "mallory"
		loaded.Name = "Renamed"
		loaded.DeletedBy = &mallory
		return uow.Update(ctx, loaded)
	}))

	got, err := f.get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
	require.False(t, got.IsDeleted)
	require.Nil(t, got.DeletedAt)
	require.Nil(t, got.DeletedBy)
}

func TestRead_ReturnsTrackedInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "Acme Job")

	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		a, err := uow.Get(ctx, f.jobs, j.ID)
		require.NoError(t, err)
		list, err := uow.Find(ctx, f.jobs, uow.Where("name", "Acme Job"))
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Same(t, a, list[0])

		ok, err := uow.Exists(ctx, f.jobs, j.ID)
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	}))
}

func TestAdd_CrossTenantAssignmentAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")

	ok := &job{Name: "ok"}
	ok.Raise("job.created", nil)
	bad := &job{Name: "bad"}
	bad.TenantID = uuid.New()

	err := f.manager.Run(ctx, func(ctx context.Context) error {
		if err := uow.Add(ctx, ok); err != nil {
			return err
		}
		return uow.Add(ctx, bad)
	})
	require.ErrorIs(t, err, uow.ErrCrossTenantAssignment)
	require.Zero(t, f.store.Len(f.jobs.Descriptor()))
	require.Empty(t, f.recorder.all())
	require.True(t, ok.Version.IsZero())
	require.Empty(t, ok.PendingEvents())
}

func TestUpdate_CrossTenantRecordAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctxA := tenantCtx(t, uuid.New(), "user-a")
	j := f.create(t, ctxA, "Acme Job")

	err := f.manager.Run(tenantCtx(t, uuid.New(), "user-b"), func(ctx context.Context) error {
		j.Name = "hijack"
		return uow.Update(ctx, j)
	})
	require.ErrorIs(t, err, uow.ErrCrossTenantAssignment)

	got, err := f.get(ctxA, j.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Job", got.Name)
}

func TestEvents_DeliveredAfterCommitInRaiseOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenantID := uuid.New()
	ctx := tenantCtx(t, tenantID, "user-1")

	a := &job{Name: "a"}
	b := &job{Name: "b"}
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		require.NoError(t, uow.Add(ctx, a))
		require.NoError(t, uow.Add(ctx, b))
		a.Raise("first", nil)
		b.Raise("second", nil)
		a.Raise("third", nil)
		require.Empty(t, f.recorder.all())
		return nil
	}))

	batches := f.recorder.all()
	require.Len(t, batches, 1)
	batch := batches[0]
	require.Equal(t, []string{"first", "second", "third"}, batch.Kinds())
	require.Equal(t, tenantID, batch.TenantID)
	require.Equal(t, "user-1", batch.ActorID)
	require.NotEqual(t, uuid.Nil, batch.CommitID)
	require.Equal(t, a.ID, batch.Events[0].EntityID)
	require.Equal(t, b.ID, batch.Events[1].EntityID)
	require.Equal(t, "job", batch.Events[0].EntityKind)
	require.Equal(t, tenantID, batch.Events[2].TenantID)

	require.Empty(t, a.PendingEvents())
	require.Empty(t, b.PendingEvents())
}

func TestEvents_RollbackDiscards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := &job{Name: "a"}
	boom := errors.New("boom")

	err := f.manager.Run(ctx, func(ctx context.Context) error {
		require.NoError(t, uow.Add(ctx, j))
		j.Raise("job.created", nil)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, f.recorder.all())
	require.Empty(t, j.PendingEvents())
	require.True(t, j.Version.IsZero())
	require.Zero(t, f.store.Len(f.jobs.Descriptor()))
}

func TestEvents_DispatchFailureKeepsCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.recorder.err = errors.New("downstream unavailable")
	ctx := tenantCtx(t, uuid.New(), "user-1")

	j := &job{Name: "a"}
	j.Raise("job.created", nil)
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Add(ctx, j)
	}))
	require.Len(t, f.recorder.all(), 1)
	require.Equal(t, 1, f.store.Len(f.jobs.Descriptor()))
}

func TestEvents_DurableModeStagesInOutbox(t *testing.T) {
	t.Parallel()

	f := newFixture(t, uow.WithDurableEvents(true))
	ctx := tenantCtx(t, uuid.New(), "user-1")

	j := &job{Name: "a"}
	j.Raise("job.created", nil)
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Add(ctx, j)
	}))

	require.Empty(t, f.recorder.all())
	staged := f.store.DrainOutbox()
	require.Len(t, staged, 1)
	require.Equal(t, []string{"job.created"}, staged[0].Kinds())
	require.Empty(t, f.store.Outbox())
}

func TestRemove_AfterAddCancelsInsert(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")

	j := &job{Name: "draft"}
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		require.NoError(t, uow.Add(ctx, j))
		j.Raise("job.created", nil)
		return uow.Remove(ctx, j)
	}))
	require.Zero(t, f.store.Len(f.jobs.Descriptor()))
	require.Empty(t, f.recorder.all())
}

func TestBegin_MissingTenantContextFailsFast(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	called := false
	err := f.manager.Run(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, tenancy.ErrNoTenantContext)
	require.False(t, called)

	_, err = uow.Get(context.Background(), f.jobs, uuid.New())
	require.ErrorIs(t, err, uow.ErrNoUnitOfWork)
}

func TestSystemWide_OnlyAllTenantsReads(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.create(t, tenantCtx(t, uuid.New(), "user-a"), "a")
	f.create(t, tenantCtx(t, uuid.New(), "user-b"), "b")

	ctx := composables.WithTenantContext(context.Background(), tenancy.SystemWide())
	require.NoError(t, f.manager.Run(ctx, func(ctx context.Context) error {
		all, err := uow.Find(ctx, f.jobs, uow.AllTenants(), uow.OrderBy("name", false))
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, "a", all[0].Name)

		_, err = uow.Find(ctx, f.jobs)
		require.ErrorIs(t, err, tenancy.ErrNoTenantContext)

		err = uow.Add(ctx, &job{Name: "c"})
		require.ErrorIs(t, err, tenancy.ErrNoTenantContext)
		return nil
	}))
}

func TestAdd_UnregisteredKindFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.manager.Run(tenantCtx(t, uuid.New(), "user-1"), func(ctx context.Context) error {
		return uow.Add(ctx, &unregistered{})
	})
	require.ErrorIs(t, err, isolation.ErrUnregisteredEntity)
}

func TestAdd_RejectsPersistedAndUpdateRejectsNew(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	j := f.create(t, ctx, "a")

	err := f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Add(ctx, j)
	})
	require.ErrorIs(t, err, uow.ErrAlreadyPersisted)

	err = f.manager.Run(ctx, func(ctx context.Context) error {
		return uow.Update(ctx, &job{Name: "new"})
	})
	require.ErrorIs(t, err, uow.ErrNotPersisted)
}

func TestUnitOfWork_FinishedRejectsUse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")
	u, err := f.manager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, u.Rollback(ctx))
	require.NoError(t, u.Rollback(ctx))

	require.ErrorIs(t, u.Commit(ctx), uow.ErrFinished)
	require.ErrorIs(t, u.Add(&job{}), uow.ErrFinished)

	_, err = uow.Use(uow.WithUnitOfWork(ctx, u))
	require.ErrorIs(t, err, uow.ErrFinished)
}

func TestRun_NestedJoinsOuter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := tenantCtx(t, uuid.New(), "user-1")

	err := f.manager.Run(ctx, func(ctx context.Context) error {
		outer, err := uow.Use(ctx)
		require.NoError(t, err)
		return f.manager.Run(ctx, func(ctx context.Context) error {
			inner, err := uow.Use(ctx)
			require.NoError(t, err)
			require.Same(t, outer, inner)
			return uow.Add(ctx, &job{Name: "nested"})
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Len(f.jobs.Descriptor()))
}

type failingCommitStore struct {
	uow.Store
}

type failingCommitSession struct {
	uow.Session
}

func (s failingCommitStore) Begin(ctx context.Context) (uow.Session, error) {
	sess, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingCommitSession{Session: sess}, nil
}

func (s failingCommitSession) Commit(ctx context.Context) error {
	_ = s.Session.Rollback(ctx)
	return errors.New("connection reset")
}

func TestCommit_StoreFailureAppliesNothing(t *testing.T) {
	t.Parallel()

	reg := isolation.NewRegistry()
	jobs := isolation.Register(reg, jobMapping())
	rec := &recorder{}
	m := uow.NewManager(failingCommitStore{Store: memstore.New()}, reg, uow.WithDispatcher(rec), uow.WithLogger(quietLogger()))

	j := &job{Name: "a"}
	j.Raise("job.created", nil)
	err := m.Run(tenantCtx(t, uuid.New(), "user-1"), func(ctx context.Context) error {
		return uow.Add(ctx, j)
	})
	require.Error(t, err)
	require.True(t, j.Version.IsZero())
	require.Equal(t, uuid.Nil, j.TenantID)
	require.Empty(t, j.PendingEvents())
	require.Empty(t, rec.all())
	require.Equal(t, "job", jobs.Kind())
}

func TestRetry_RetriesOnlyConflicts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := uow.Retry(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return uow.ErrConcurrencyConflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("boom")
	err = uow.Retry(context.Background(), 3, func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)

	err = uow.Retry(context.Background(), 2, func(context.Context) error {
		return uow.ErrConcurrencyConflict
	})
	require.True(t, uow.IsConflict(err))
}

func TestRetry_StopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := uow.Retry(ctx, 5, func(context.Context) error {
		calls++
		cancel()
		return uow.ErrConcurrencyConflict
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
