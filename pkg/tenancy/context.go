// Package tenancy defines the tenant context a unit of work runs under.
//
// A Context is a plain value. It is resolved once per request or job from
// the caller identity and threaded through the unit of work; it is never
// stored in a package-level variable.
package tenancy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/serrors"
)

// SystemActor identifies work that no user initiated: scheduled jobs,
// migrations, outbox relays.
const SystemActor = "system"

var (
	ErrNoTenantContext = serrors.NewError("TENANT_CONTEXT_MISSING", "tenant context is required", "Errors.TenantContextMissing")
	ErrNoActor         = serrors.NewError("TENANT_ACTOR_MISSING", "actor is required", "Errors.TenantActorMissing")
)

type Context struct {
	TenantID uuid.UUID
	ActorID  string
}

// New builds a Context for a user-initiated unit of work.
func New(tenantID uuid.UUID, actorID string) (Context, error) {
	c := Context{TenantID: tenantID, ActorID: strings.TrimSpace(actorID)}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return c, nil
}

// System builds a Context for system-originated work scoped to one tenant.
func System(tenantID uuid.UUID) Context {
	return Context{TenantID: tenantID, ActorID: SystemActor}
}

// SystemWide builds a Context with no tenant. Only all-tenants reads are
// permitted under it; default-scoped reads and every write fail.
func SystemWide() Context {
	return Context{ActorID: SystemActor}
}

func (c Context) HasTenant() bool {
	return c.TenantID != uuid.Nil
}

func (c Context) IsSystem() bool {
	return c.ActorID == SystemActor
}

// Validate rejects contexts that would let a write go out unscoped or
// unattributed. A tenantless context is valid only for the system actor.
func (c Context) Validate() error {
	if c.ActorID == "" {
		return ErrNoActor
	}
	if !c.HasTenant() && !c.IsSystem() {
		return ErrNoTenantContext
	}
	return nil
}

// RequireTenant returns ErrNoTenantContext unless the context names a tenant.
func (c Context) RequireTenant() error {
	if !c.HasTenant() {
		return ErrNoTenantContext
	}
	return nil
}
