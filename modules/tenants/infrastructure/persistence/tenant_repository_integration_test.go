//go:build integration

package persistence_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
	"github.com/iota-uz/tenantkit/modules/tenants/infrastructure/persistence"
	"github.com/iota-uz/tenantkit/pkg/rls"
	"github.com/iota-uz/tenantkit/pkg/testutil/containers"
)

func TestTenantRepository_Integration(t *testing.T) {
	pool := containers.NewPostgresContainer(t).MigratedPool(t, rls.NewBinder())
	ctx := context.Background()
	repo := persistence.NewTenantRepository(pool)

	ten, err := tenant.New("globex", "Globex", json.RawMessage(`{"plan":"pro"}`), time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)

	created, err := repo.Create(ctx, ten)
	require.NoError(t, err)
	require.Equal(t, ten.ID, created.ID)
	require.JSONEq(t, `{"plan":"pro"}`, string(created.Settings))

	dup, err := tenant.New("globex", "Other", nil, time.Now().UTC())
	require.NoError(t, err)
	_, err = repo.Create(ctx, dup)
	require.ErrorIs(t, err, tenant.ErrSlugTaken)

	bySlug, err := repo.GetBySlug(ctx, " GLOBEX ")
	require.NoError(t, err)
	require.Equal(t, ten.ID, bySlug.ID)

	updated, err := repo.UpdateSettings(ctx, ten.ID, json.RawMessage(`{"plan":"free"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"plan":"free"}`, string(updated.Settings))
	require.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	_, err = repo.GetBySlug(ctx, "nobody")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}
