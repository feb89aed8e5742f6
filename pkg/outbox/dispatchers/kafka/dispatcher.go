// Package kafka forwards relayed outbox rows to a Kafka topic. Messages are
// keyed by tenant so each tenant's events stay ordered within a partition.
package kafka

import (
	"context"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
	sdk "github.com/segmentio/kafka-go"

	"github.com/iota-uz/tenantkit/pkg/outbox"
)

const (
	HeaderEventID  = "event-id"
	HeaderTenantID = "tenant-id"
	HeaderKind     = "event-kind"
)

// Writer is the subset of *kafka.Writer the dispatcher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...sdk.Message) error
	Close() error
}

type Params struct {
	Brokers []string
	Topic   string
}

// Record is the value written for each event.
type Record struct {
	EventID  string          `json:"event_id"`
	TenantID string          `json:"tenant_id"`
	Kind     string          `json:"kind"`
	Sequence int64           `json:"sequence"`
	Envelope json.RawMessage `json:"envelope"`
}

type Dispatcher struct {
	writer Writer
}

// NewWriter builds a writer that hashes keys to partitions and waits for
// all in-sync replicas.
func NewWriter(p Params) *sdk.Writer {
	return &sdk.Writer{
		Addr:         sdk.TCP(p.Brokers...),
		Topic:        p.Topic,
		RequiredAcks: sdk.RequireAll,
		Balancer:     &sdk.Hash{},
	}
}

func New(writer Writer) *Dispatcher {
	return &Dispatcher{writer: writer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	value, err := json.Marshal(Record{
		EventID:  msg.Meta.EventID.String(),
		TenantID: msg.Meta.TenantID.String(),
		Kind:     msg.Meta.Topic,
		Sequence: msg.Meta.Sequence,
		Envelope: json.RawMessage(msg.Payload),
	})
	if err != nil {
		return fmt.Errorf("encode kafka record: %w", err)
	}
	err = d.writer.WriteMessages(ctx, sdk.Message{
		Key:   []byte(msg.Meta.TenantID.String()),
		Value: value,
		Headers: []sdk.Header{
			{Key: HeaderEventID, Value: []byte(msg.Meta.EventID.String())},
			{Key: HeaderTenantID, Value: []byte(msg.Meta.TenantID.String())},
			{Key: HeaderKind, Value: []byte(msg.Meta.Topic)},
			{Key: "attempt", Value: []byte(strconv.Itoa(msg.Meta.Attempts))},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message %s: %w", msg.Meta.EventID, err)
	}
	return nil
}

func (d *Dispatcher) Close() error {
	return d.writer.Close()
}
