package tenants

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
	"github.com/iota-uz/tenantkit/modules/tenants/infrastructure/cache"
	"github.com/iota-uz/tenantkit/modules/tenants/infrastructure/persistence"
	"github.com/iota-uz/tenantkit/modules/tenants/services"
	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/httpapi"
)

type ModuleOptions struct {
	// Redis enables the slug cache when set.
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	httpapi.RegisterStatus(tenant.ErrNotFound, http.StatusNotFound)
	httpapi.RegisterStatus(tenant.ErrSlugTaken, http.StatusConflict)
	httpapi.RegisterStatus(tenant.ErrInvalidSlug, http.StatusUnprocessableEntity)
	httpapi.RegisterStatus(tenant.ErrInvalidSettings, http.StatusUnprocessableEntity)

	var repo tenant.Repository = persistence.NewTenantRepository(app.DB())
	if m.options.Redis != nil {
		repo = cache.NewCachedRepository(repo, m.options.Redis, m.options.CacheTTL,
			logrus.NewEntry(app.Logger()).WithField("component", "tenant-cache"))
	}
	app.RegisterServices(services.NewTenantService(repo, app.EventPublisher()))
	return nil
}

func (m *Module) Name() string {
	return "tenants"
}
