// Package eventbus replays relayed outbox rows onto the in-process event bus.
package eventbus

import (
	"context"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
	"github.com/iota-uz/tenantkit/pkg/outbox"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

type Dispatcher struct {
	bus eventbus.EventBus
}

func New(bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

// Dispatch decodes the envelope and publishes the event with a system
// context for the row's tenant. Subscribers take either shape:
//   - func(ctx context.Context, e entity.Event) error
//   - func(ctx context.Context, meta *outbox.Meta, env outbox.Envelope) error
//
// Handler errors and panics surface so the relay retries the row.
func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	env, err := outbox.DecodeEnvelope(msg)
	if err != nil {
		return err
	}
	ctx = composables.WithTenantContext(ctx, tenancy.System(msg.Meta.TenantID))

	meta := msg.Meta
	if err := d.bus.PublishE(ctx, &meta, env); err != nil && !eventbus.IsNoSubscribers(err) {
		return err
	}
	if err := d.bus.PublishE(ctx, env.Event); err != nil && !eventbus.IsNoSubscribers(err) {
		return err
	}
	return nil
}
