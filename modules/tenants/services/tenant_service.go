package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
)

type TenantService struct {
	repo      tenant.Repository
	publisher eventbus.EventBus
	now       func() time.Time
}

func NewTenantService(repo tenant.Repository, publisher eventbus.EventBus) *TenantService {
	return &TenantService{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *TenantService) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// TenantIDBySlug serves host based tenant resolution.
func (s *TenantService) TenantIDBySlug(ctx context.Context, slug string) (uuid.UUID, error) {
	t, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID, nil
}

func (s *TenantService) Provision(ctx context.Context, dto *tenant.ProvisionDTO) (*tenant.Tenant, error) {
	dto.Normalize()
	t, err := tenant.New(dto.Slug, dto.Name, dto.Settings, s.now())
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	s.logger(ctx).WithFields(logrus.Fields{"tenant_id": created.ID, "slug": created.Slug}).Info("tenant provisioned")
	s.publish(ctx, &tenant.ProvisionedEvent{TenantID: created.ID, Slug: created.Slug})
	return created, nil
}

func (s *TenantService) UpdateSettings(ctx context.Context, id uuid.UUID, dto *tenant.UpdateSettingsDTO) (*tenant.Tenant, error) {
	settings, err := tenant.NormalizeSettings(dto.Settings)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateSettings(ctx, id, settings)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &tenant.SettingsUpdatedEvent{TenantID: updated.ID, Slug: updated.Slug})
	return updated, nil
}

func (s *TenantService) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishE(ctx, event); err != nil && !eventbus.IsNoSubscribers(err) {
		s.logger(ctx).WithError(err).Warn("tenant event handler failed")
	}
}

func (s *TenantService) logger(ctx context.Context) *logrus.Entry {
	return composables.UseLogger(ctx).WithField("component", "tenants")
}
