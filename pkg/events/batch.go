// Package events defines the batch handed to downstream processing after a
// unit of work commits.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
)

// Batch is every event one commit produced, in raise order.
type Batch struct {
	CommitID    uuid.UUID      `json:"commit_id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	ActorID     string         `json:"actor_id"`
	CommittedAt time.Time      `json:"committed_at"`
	Events      []entity.Event `json:"events"`
}

func (b Batch) Empty() bool {
	return len(b.Events) == 0
}

// Kinds lists event kinds in batch order.
func (b Batch) Kinds() []string {
	out := make([]string, len(b.Events))
	for i, e := range b.Events {
		out[i] = e.Kind
	}
	return out
}

// Dispatcher receives committed batches. It is called at most once per
// commit and never for a unit of work that rolled back.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch Batch) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, batch Batch) error

func (f DispatcherFunc) Dispatch(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

// Discard drops every batch.
var Discard Dispatcher = DispatcherFunc(func(context.Context, Batch) error { return nil })
