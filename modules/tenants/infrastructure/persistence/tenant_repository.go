package persistence

import (
	"context"
	"encoding/json"
	"errors"

	faster "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
)

const (
	tenantFindQuery = `SELECT id, slug, name, settings, created_at, updated_at FROM tenants`

	tenantInsertQuery = `INSERT INTO tenants (id, slug, name, settings, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	tenantUpdateSettingsQuery = `UPDATE tenants SET settings = $1, updated_at = now() WHERE id = $2
RETURNING id, slug, name, settings, created_at, updated_at`

	uniqueViolation = "23505"
)

type TenantRepository struct {
	pool *pgxpool.Pool
}

var _ tenant.Repository = (*TenantRepository)(nil)

func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	_, err := r.pool.Exec(ctx, tenantInsertQuery,
		t.ID, t.Slug, t.Name, []byte(t.Settings), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, tenant.ErrSlugTaken.Withf("%q", t.Slug)
		}
		return nil, faster.Wrap(err, "insert tenant")
	}
	return r.GetByID(ctx, t.ID)
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return r.queryOne(ctx, tenantFindQuery+" WHERE id = $1", id)
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return r.queryOne(ctx, tenantFindQuery+" WHERE slug = $1", tenant.NormalizeSlug(slug))
}

func (r *TenantRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) (*tenant.Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, tenantUpdateSettingsQuery, []byte(settings), id))
	if err != nil {
		return nil, faster.Wrap(err, "update tenant settings")
	}
	return t, nil
}

func (r *TenantRepository) queryOne(ctx context.Context, query string, arg any) (*tenant.Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, faster.Wrap(err, "query tenant")
	}
	return t, nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t        tenant.Tenant
		settings []byte
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrNotFound
		}
		return nil, err
	}
	t.Settings = json.RawMessage(settings)
	return &t, nil
}
