package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/tenantkit/pkg/events"
)

// Execer is the part of pgx.Tx the publisher needs. Passing the unit of
// work's transaction makes the enqueue atomic with the business writes.
type Execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Publisher interface {
	Enqueue(ctx context.Context, tx Execer, table pgx.Identifier, msg Message) (sequence int64, err error)
	EnqueueBatch(ctx context.Context, tx Execer, table pgx.Identifier, batch events.Batch) error
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, tx Execer, table pgx.Identifier, msg Message) (int64, error) {
	switch {
	case msg.TenantID == uuid.Nil:
		return 0, invalidConfig("tenant_id is required")
	case msg.EventID == uuid.Nil:
		return 0, invalidConfig("event_id is required")
	case msg.Topic == "":
		return 0, invalidConfig("topic is required")
	case len(table) == 0:
		return 0, invalidConfig("table is required")
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (tenant_id, topic, payload, event_id, available_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		table.Sanitize(),
	)

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.TenantID, msg.Topic, []byte(msg.Payload), msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(TableLabel(table), msg.Topic).Inc()
	return sequence, nil
}

// EnqueueBatch stores every event of batch in order. Sequences are
// assigned by the table, so relay order matches raise order.
func (p *publisher) EnqueueBatch(ctx context.Context, tx Execer, table pgx.Identifier, batch events.Batch) error {
	msgs, err := MessagesFromBatch(batch)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if _, err := p.Enqueue(ctx, tx, table, msg); err != nil {
			return err
		}
	}
	return nil
}
