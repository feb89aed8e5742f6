package modules

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/tenantkit/modules/projects"
	"github.com/iota-uz/tenantkit/modules/tenants"
	"github.com/iota-uz/tenantkit/pkg/application"
)

type BuiltInOptions struct {
	// Identity guards the tenant-scoped HTTP APIs. Without it no API
	// controllers are registered.
	Identity       mux.MiddlewareFunc
	Redis          *redis.Client
	TenantCacheTTL time.Duration
}

// BuiltIn returns the modules shipped with tenantkit. tenants comes first so
// its services exist before anything that resolves tenants by slug.
func BuiltIn(opts BuiltInOptions) []application.Module {
	return []application.Module{
		tenants.NewModule(&tenants.ModuleOptions{Redis: opts.Redis, CacheTTL: opts.TenantCacheTTL}),
		projects.NewModule(&projects.ModuleOptions{Identity: opts.Identity}),
	}
}

func Load(app application.Application, modules ...application.Module) error {
	return application.LoadModules(app, modules...)
}
