package events

import (
	"context"
	"errors"

	"github.com/iota-uz/tenantkit/pkg/eventbus"
)

// BusDispatcher publishes committed batches to an in-process event bus.
//
// Subscribers receive the whole batch and then each event, so handlers may
// take either shape:
//   - func(ctx context.Context, batch events.Batch) error
//   - func(ctx context.Context, e entity.Event) error
type BusDispatcher struct {
	bus eventbus.EventBus
}

func NewBusDispatcher(bus eventbus.EventBus) *BusDispatcher {
	return &BusDispatcher{bus: bus}
}

// Dispatch publishes the batch, then every event in order. A batch nobody
// subscribed to is not an error.
func (d *BusDispatcher) Dispatch(ctx context.Context, batch Batch) error {
	var errs []error
	if err := d.bus.PublishE(ctx, batch); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
		errs = append(errs, err)
	}
	for _, e := range batch.Events {
		if err := d.bus.PublishE(ctx, e); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
