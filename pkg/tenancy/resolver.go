package tenancy

import (
	"github.com/google/uuid"
)

// Identity is what the identity collaborator hands over for an
// authenticated caller. The core treats both fields as opaque.
type Identity struct {
	ActorID  string
	TenantID uuid.UUID
}

// Resolver turns a caller identity into the Context for one unit of work.
type Resolver interface {
	Resolve(identity *Identity) (Context, error)
}

type identityResolver struct{}

func NewResolver() Resolver {
	return identityResolver{}
}

// Resolve fails fast on a missing or partial identity. A user identity
// claiming the system actor is rejected so user requests never take the
// system path.
func (identityResolver) Resolve(identity *Identity) (Context, error) {
	if identity == nil {
		return Context{}, ErrNoTenantContext
	}
	if identity.ActorID == SystemActor {
		return Context{}, ErrNoActor.Withf("actor %q is reserved", SystemActor)
	}
	if identity.TenantID == uuid.Nil {
		return Context{}, ErrNoTenantContext
	}
	return New(identity.TenantID, identity.ActorID)
}
