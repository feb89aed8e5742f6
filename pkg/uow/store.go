package uow

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
)

// Store opens a transactional session. The context passed to Begin carries
// the tenant context, so connection-level binding sees the same tenant as
// the read predicates.
type Store interface {
	Begin(ctx context.Context) (Session, error)
}

// Session is one transaction. Every read receives the composed isolation
// predicate and must apply it; writes never delete rows.
type Session interface {
	Get(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, id uuid.UUID) (entity.Entity, error)
	Find(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, q Query) ([]entity.Entity, error)
	Count(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, q Query) (int64, error)

	Insert(ctx context.Context, d *isolation.Descriptor, e entity.Entity) error
	// Update writes e only where id, tenant and expected version all match.
	// Zero affected rows is ErrConcurrencyConflict.
	Update(ctx context.Context, d *isolation.Descriptor, e entity.Entity, expected entity.Version) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// OutboxStager is implemented by sessions that can persist a batch in the
// same transaction as the writes that produced it.
type OutboxStager interface {
	StageEvents(ctx context.Context, batch events.Batch) error
}

type Filter struct {
	Column string
	Value  any
}

type Order struct {
	Column string
	Desc   bool
}

// Query narrows a read beyond the isolation predicate. Columns may be base
// or business columns of the descriptor.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}
