package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/tenantkit/pkg/entity"
)

// Message is one row of an outbox table.
type Message struct {
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Payload  json.RawMessage
}

// Meta is the stable dispatch metadata handed to dispatchers.
type Meta struct {
	Table    pgx.Identifier
	TenantID uuid.UUID
	Topic    string
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

// DispatchedMessage is the unit delivered by Relay to a Dispatcher.
type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

// Envelope is the payload stored for one domain event. It keeps the commit
// the event belongs to so consumers can regroup a batch.
type Envelope struct {
	CommitID    uuid.UUID    `json:"commit_id"`
	ActorID     string       `json:"actor_id"`
	CommittedAt time.Time    `json:"committed_at"`
	Position    int          `json:"position"`
	BatchSize   int          `json:"batch_size"`
	Event       entity.Event `json:"event"`
}
