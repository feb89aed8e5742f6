package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
	"github.com/iota-uz/tenantkit/modules/tenants/services"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
)

type memRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*tenant.Tenant
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[uuid.UUID]*tenant.Tenant{}}
}

func (r *memRepo) Create(_ context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Slug == t.Slug {
			return nil, tenant.ErrSlugTaken
		}
	}
	c := *t
	r.byID[t.ID] = &c
	return &c, nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return t, nil
}

func (r *memRepo) GetBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.Slug == tenant.NormalizeSlug(slug) {
			return t, nil
		}
	}
	return nil, tenant.ErrNotFound
}

func (r *memRepo) UpdateSettings(_ context.Context, id uuid.UUID, settings json.RawMessage) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	t.Settings = settings
	t.UpdatedAt = time.Now().UTC()
	return t, nil
}

func TestTenantService_Provision(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(nil)
	var provisioned []*tenant.ProvisionedEvent
	bus.Subscribe(func(_ context.Context, e *tenant.ProvisionedEvent) error {
		provisioned = append(provisioned, e)
		return nil
	})
	svc := services.NewTenantService(newMemRepo(), bus)
	ctx := context.Background()

	created, err := svc.Provision(ctx, &tenant.ProvisionDTO{Slug: " Acme ", Name: "Acme Inc"})
	require.NoError(t, err)
	require.Equal(t, "acme", created.Slug)
	require.Len(t, provisioned, 1)
	require.Equal(t, created.ID, provisioned[0].TenantID)

	_, err = svc.Provision(ctx, &tenant.ProvisionDTO{Slug: "acme"})
	require.ErrorIs(t, err, tenant.ErrSlugTaken)
	require.Len(t, provisioned, 1)

	_, err = svc.Provision(ctx, &tenant.ProvisionDTO{Slug: "bad slug"})
	require.ErrorIs(t, err, tenant.ErrInvalidSlug)

	bySlug, err := svc.GetBySlug(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, created.ID, bySlug.ID)
}

func TestTenantService_UpdateSettings(t *testing.T) {
	t.Parallel()

	svc := services.NewTenantService(newMemRepo(), nil)
	ctx := context.Background()

	created, err := svc.Provision(ctx, &tenant.ProvisionDTO{Slug: "globex"})
	require.NoError(t, err)

	updated, err := svc.UpdateSettings(ctx, created.ID, &tenant.UpdateSettingsDTO{Settings: json.RawMessage(`{ "locale": "uz" }`)})
	require.NoError(t, err)
	require.Equal(t, `{"locale":"uz"}`, string(updated.Settings))

	_, err = svc.UpdateSettings(ctx, created.ID, &tenant.UpdateSettingsDTO{Settings: json.RawMessage(`[]`)})
	require.ErrorIs(t, err, tenant.ErrInvalidSettings)

	_, err = svc.UpdateSettings(ctx, uuid.New(), &tenant.UpdateSettingsDTO{Settings: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, tenant.ErrNotFound)
}
