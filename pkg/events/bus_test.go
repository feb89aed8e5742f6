package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
)

func TestBusDispatcher_DeliversBatchThenEventsInOrder(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(nil)
	var seen []string
	bus.Subscribe(func(_ context.Context, b Batch) error {
		seen = append(seen, "batch")
		return nil
	})
	bus.Subscribe(func(_ context.Context, e entity.Event) error {
		seen = append(seen, e.Kind)
		return nil
	})

	batch := Batch{
		CommitID: uuid.New(),
		Events:   []entity.Event{{Kind: "a"}, {Kind: "b"}},
	}
	require.NoError(t, NewBusDispatcher(bus).Dispatch(context.Background(), batch))
	require.Equal(t, []string{"batch", "a", "b"}, seen)
	require.Equal(t, []string{"a", "b"}, batch.Kinds())
}

func TestBusDispatcher_NoSubscribersIsNotAnError(t *testing.T) {
	t.Parallel()

	err := NewBusDispatcher(eventbus.New(nil)).Dispatch(context.Background(), Batch{
		Events: []entity.Event{{Kind: "a"}},
	})
	require.NoError(t, err)
}

func TestBusDispatcher_SurfacesHandlerErrors(t *testing.T) {
	t.Parallel()

	bus := eventbus.New(nil)
	boom := errors.New("boom")
	bus.Subscribe(func(_ context.Context, e entity.Event) error { return boom })

	err := NewBusDispatcher(bus).Dispatch(context.Background(), Batch{
		Events: []entity.Event{{Kind: "a"}},
	})
	require.ErrorIs(t, err, boom)
}
