package outbox

import (
	json "github.com/goccy/go-json"

	"github.com/iota-uz/tenantkit/pkg/events"
)

// MessagesFromBatch turns a committed batch into outbox rows, one per
// event, preserving batch order.
func MessagesFromBatch(batch events.Batch) ([]Message, error) {
	out := make([]Message, 0, len(batch.Events))
	for i, e := range batch.Events {
		payload, err := json.Marshal(Envelope{
			CommitID:    batch.CommitID,
			ActorID:     batch.ActorID,
			CommittedAt: batch.CommittedAt,
			Position:    i,
			BatchSize:   len(batch.Events),
			Event:       e,
		})
		if err != nil {
			return nil, invalidConfig("encode event %s: %v", e.ID, err)
		}
		out = append(out, Message{
			TenantID: batch.TenantID,
			Topic:    e.Kind,
			EventID:  e.ID,
			Payload:  payload,
		})
	}
	return out, nil
}

// DecodeEnvelope reads an event stored by MessagesFromBatch. The payload of
// the inner event comes back as generic JSON values.
func DecodeEnvelope(msg DispatchedMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, ErrMalformedPayload.Wrap(err)
	}
	return env, nil
}
