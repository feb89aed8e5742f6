package services_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/tenantkit/modules/projects/services"
	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/store/memstore"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type collected struct {
	mu     sync.Mutex
	events []entity.Event
}

func (c *collected) Dispatch(_ context.Context, b events.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, b.Events...)
	return nil
}

func (c *collected) kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

func newService(t *testing.T) (*services.ProjectService, *collected) {
	t.Helper()
	reg := isolation.NewRegistry()
	typ := persistence.Register(reg)
	sink := &collected{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	m := uow.NewManager(memstore.New(), reg, uow.WithDispatcher(sink), uow.WithLogger(logrus.NewEntry(log)))
	return services.NewProjectService(m, typ), sink
}

func asTenant(tenantID uuid.UUID, actor string) context.Context {
	return composables.WithTenantContext(context.Background(), tenancy.Context{TenantID: tenantID, ActorID: actor})
}

func TestProjectService_CreateIsIsolated(t *testing.T) {
	t.Parallel()

	svc, sink := newService(t)
	tenantA, tenantB := uuid.New(), uuid.New()
	ctxA := asTenant(tenantA, "alice")

	p, err := svc.Create(ctxA, &project.CreateDTO{Name: "Acme Job", Code: "acme1"})
	require.NoError(t, err)
	require.Equal(t, tenantA, p.TenantID)
	require.Equal(t, "alice", p.CreatedBy)
	require.Equal(t, "ACME1", p.Code)
	require.False(t, p.IsDeleted)
	require.False(t, p.Version.IsZero())
	require.Equal(t, []string{project.EventCreated}, sink.kinds())

	_, err = svc.GetByID(asTenant(tenantB, "bob"), p.ID)
	require.ErrorIs(t, err, uow.ErrNotFound)

	items, total, err := svc.GetPaginated(asTenant(tenantB, "bob"), nil)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, items)

	_, err = svc.Create(ctxA, &project.CreateDTO{Name: "Again", Code: "ACME1"})
	require.ErrorIs(t, err, project.ErrCodeTaken)

	// Another tenant may reuse the code.
	_, err = svc.Create(asTenant(tenantB, "bob"), &project.CreateDTO{Name: "Acme Job", Code: "ACME1"})
	require.NoError(t, err)
}

func TestProjectService_CreateRequiresTenant(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), &project.CreateDTO{Name: "Orphan", Code: "X1"})
	require.ErrorIs(t, err, tenancy.ErrNoTenantContext)
}

func TestProjectService_ParentMustBeVisible(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctxA := asTenant(uuid.New(), "alice")
	ctxB := asTenant(uuid.New(), "bob")

	parentB, err := svc.Create(ctxB, &project.CreateDTO{Name: "Foreign", Code: "B1"})
	require.NoError(t, err)

	_, err = svc.Create(ctxA, &project.CreateDTO{Name: "Child", Code: "A1", ParentID: &parentB.ID})
	require.ErrorIs(t, err, project.ErrParentNotFound)
}

func TestProjectService_UpdateChecksVersionAndCycles(t *testing.T) {
	t.Parallel()

	svc, sink := newService(t)
	ctx := asTenant(uuid.New(), "alice")

	root, err := svc.Create(ctx, &project.CreateDTO{Name: "Root", Code: "R"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, &project.CreateDTO{Name: "Child", Code: "C", ParentID: &root.ID})
	require.NoError(t, err)

	name := "Root renamed"
	renamed, err := svc.Update(ctx, root.ID, uuid.UUID(root.Version), &project.UpdateDTO{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, renamed.Name)
	require.NotEqual(t, root.Version, renamed.Version)
	require.NotNil(t, renamed.UpdatedBy)
	require.Equal(t, "alice", *renamed.UpdatedBy)

	// The first version is stale now.
	other := "Lost update"
	_, err = svc.Update(ctx, root.ID, uuid.UUID(root.Version), &project.UpdateDTO{Name: &other})
	require.ErrorIs(t, err, uow.ErrConcurrencyConflict)

	current, err := svc.GetByID(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, name, current.Name)

	_, err = svc.Update(ctx, root.ID, uuid.Nil, &project.UpdateDTO{ParentID: &child.ID})
	require.ErrorIs(t, err, project.ErrCycle)

	moved, err := svc.Update(ctx, child.ID, uuid.Nil, &project.UpdateDTO{ClearParent: true})
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)

	require.Equal(t, []string{
		project.EventCreated,
		project.EventCreated,
		project.EventRenamed,
		project.EventReparented,
	}, sink.kinds())
}

func TestProjectService_ArchiveIsSoftAndIdempotent(t *testing.T) {
	t.Parallel()

	svc, sink := newService(t)
	ctx := asTenant(uuid.New(), "alice")

	p, err := svc.Create(ctx, &project.CreateDTO{Name: "Doomed", Code: "D1"})
	require.NoError(t, err)

	stale := uuid.New()
	require.ErrorIs(t, svc.Archive(ctx, p.ID, stale), uow.ErrConcurrencyConflict)
	_, err = svc.GetByID(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Archive(ctx, p.ID, uuid.UUID(p.Version)))
	require.NoError(t, svc.Archive(ctx, p.ID, stale))

	_, err = svc.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, uow.ErrNotFound)

	archived, total, err := svc.GetPaginated(ctx, &services.FindParams{Archived: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, archived, 1)
	require.True(t, archived[0].IsDeleted)
	require.NotNil(t, archived[0].DeletedAt)
	require.Equal(t, "alice", *archived[0].DeletedBy)
	require.Equal(t, p.CreatedAt, archived[0].CreatedAt)

	require.Equal(t, []string{project.EventCreated, project.EventArchived}, sink.kinds())
}

func TestProjectService_GetPaginated(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := asTenant(uuid.New(), "alice")

	root, err := svc.Create(ctx, &project.CreateDTO{Name: "Root", Code: "B"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &project.CreateDTO{Name: "Other root", Code: "A"})
	require.NoError(t, err)
	for _, code := range []string{"C2", "C1", "C3"} {
		_, err := svc.Create(ctx, &project.CreateDTO{Name: code, Code: code, ParentID: &root.ID})
		require.NoError(t, err)
	}

	roots, total, err := svc.GetPaginated(ctx, &services.FindParams{Roots: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, "A", roots[0].Code)

	children, total, err := svc.GetPaginated(ctx, &services.FindParams{ParentID: &root.ID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, children, 2)
	require.Equal(t, "C2", children[0].Code)
	require.Equal(t, "C3", children[1].Code)
}
