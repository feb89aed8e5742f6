package entity

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// raiseSeq orders events across entities within a process.
var raiseSeq atomic.Uint64

// Event is an immutable notification raised by a record. EntityKind,
// EntityID and TenantID are filled in by the unit of work when it collects
// the event at commit.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	EntityKind string    `json:"entity_kind"`
	EntityID   uuid.UUID `json:"entity_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Payload    any       `json:"payload"`
	RaisedAt   time.Time `json:"raised_at"`

	seq uint64
}

func newEvent(kind string, payload any) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		Payload:  payload,
		RaisedAt: time.Now().UTC(),
		seq:      raiseSeq.Add(1),
	}
}

// Seq is the raise order of the event within the process.
func (e Event) Seq() uint64 {
	return e.seq
}

// SortByRaise orders events by the sequence they were raised in.
func SortByRaise(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].seq < events[j].seq
	})
}
