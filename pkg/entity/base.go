// Package entity holds the shape every tenant-scoped record embeds.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Entity is satisfied by any type that embeds Base. Kind names the entity
// type and must match the kind it is registered under.
type Entity interface {
	Meta() *Base
	Kind() string
}

// Base carries identity, tenant ownership, audit stamps, soft-delete state
// and the concurrency version. Tenant and audit fields are written by the
// unit of work at commit; business code only reads them.
type Base struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt *time.Time
	UpdatedBy *string
	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy *string
	Version   Version

	events []Event
}

func (b *Base) Meta() *Base {
	return b
}

// EnsureID assigns a fresh id when the record has none yet.
func (b *Base) EnsureID() uuid.UUID {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return b.ID
}

func (b *Base) IsNew() bool {
	return b.Version.IsZero()
}

// Raise buffers a domain event on the record. It is delivered only after
// the unit of work that tracks the record commits.
func (b *Base) Raise(kind string, payload any) {
	b.events = append(b.events, newEvent(kind, payload))
}

// PendingEvents returns a copy of the buffered events.
func (b *Base) PendingEvents() []Event {
	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Base) ClearEvents() {
	b.events = nil
}

// CopyAudit copies every persisted Base field from src, leaving the event
// buffer untouched.
func (b *Base) CopyAudit(src *Base) {
	events := b.events
	*b = *src
	b.events = events
}

// Clone returns a deep copy of the persisted fields without the event buffer.
func (b Base) Clone() Base {
	out := b
	out.events = nil
	out.UpdatedAt = cloneTime(b.UpdatedAt)
	out.UpdatedBy = cloneString(b.UpdatedBy)
	out.DeletedAt = cloneTime(b.DeletedAt)
	out.DeletedBy = cloneString(b.DeletedBy)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
