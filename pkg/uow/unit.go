package uow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

type state uint8

const (
	stateUnchanged state = iota
	stateAdded
	stateModified
	stateDeleted
)

func (s state) String() string {
	switch s {
	case stateAdded:
		return "added"
	case stateModified:
		return "modified"
	case stateDeleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

type key struct {
	kind string
	id   uuid.UUID
}

type entry struct {
	desc      *isolation.Descriptor
	entity    entity.Entity
	state     state
	expected  entity.Version
	// persisted is the base as read, or as handed to Update/Remove.
	persisted entity.Base
	snapshot  []any
	detached  bool
}

// UnitOfWork tracks the records one transaction reads and writes. It is
// bound to a single tenant context and must not be shared between
// goroutines.
type UnitOfWork struct {
	m       *Manager
	tc      tenancy.Context
	session Session
	entries []*entry
	index   map[key]*entry
	done    bool
}

func newUnitOfWork(m *Manager, tc tenancy.Context, session Session) *UnitOfWork {
	return &UnitOfWork{
		m:       m,
		tc:      tc,
		session: session,
		index:   make(map[key]*entry),
	}
}

func (u *UnitOfWork) TenantContext() tenancy.Context {
	return u.tc
}

// Session exposes the underlying store session for queries the read
// helpers do not cover. Such queries bypass the isolation predicate.
func (u *UnitOfWork) Session() Session {
	return u.session
}

func (u *UnitOfWork) writable() error {
	if u.done {
		return ErrFinished
	}
	return u.tc.RequireTenant()
}

func (u *UnitOfWork) describe(e entity.Entity) (*isolation.Descriptor, error) {
	return u.m.registry.Lookup(e.Kind())
}

// Add schedules e for insertion. An id is assigned if e has none.
func (u *UnitOfWork) Add(e entity.Entity) error {
	if err := u.writable(); err != nil {
		return err
	}
	d, err := u.describe(e)
	if err != nil {
		return err
	}
	b := e.Meta()
	if !b.IsNew() {
		return ErrAlreadyPersisted.Withf("%s %s", d.Kind(), b.ID)
	}
	k := key{kind: d.Kind(), id: b.EnsureID()}
	if existing, ok := u.index[k]; ok {
		if existing.entity == e {
			return nil
		}
		return ErrAlreadyTracked.Withf("%s %s", d.Kind(), b.ID)
	}
	u.track(&entry{desc: d, entity: e, state: stateAdded})
	return nil
}

// Update schedules e for a versioned update. A record that was not read in
// this unit of work is attached with its current version as the expected
// one.
func (u *UnitOfWork) Update(e entity.Entity) error {
	if err := u.writable(); err != nil {
		return err
	}
	d, err := u.describe(e)
	if err != nil {
		return err
	}
	b := e.Meta()
	if existing, ok := u.index[key{kind: d.Kind(), id: b.ID}]; ok {
		if existing.entity != e {
			return ErrAlreadyTracked.Withf("%s %s", d.Kind(), b.ID)
		}
		if existing.state == stateUnchanged {
			existing.state = stateModified
		}
		return nil
	}
	if b.IsNew() {
		return ErrNotPersisted.Withf("%s %s", d.Kind(), b.ID)
	}
	u.track(&entry{desc: d, entity: e, state: stateModified, expected: b.Version, persisted: b.Clone()})
	return nil
}

// Remove schedules a soft delete. Removing a record added in this same unit
// of work cancels the insert and drops its events.
func (u *UnitOfWork) Remove(e entity.Entity) error {
	if err := u.writable(); err != nil {
		return err
	}
	d, err := u.describe(e)
	if err != nil {
		return err
	}
	b := e.Meta()
	k := key{kind: d.Kind(), id: b.ID}
	if existing, ok := u.index[k]; ok {
		if existing.entity != e {
			return ErrAlreadyTracked.Withf("%s %s", d.Kind(), b.ID)
		}
		if existing.state == stateAdded {
			existing.detached = true
			delete(u.index, k)
			b.ClearEvents()
			return nil
		}
		existing.state = stateDeleted
		return nil
	}
	if b.IsNew() {
		return ErrNotPersisted.Withf("%s %s", d.Kind(), b.ID)
	}
	u.track(&entry{desc: d, entity: e, state: stateDeleted, expected: b.Version, persisted: b.Clone()})
	return nil
}

func (u *UnitOfWork) track(en *entry) {
	u.entries = append(u.entries, en)
	u.index[key{kind: en.desc.Kind(), id: en.entity.Meta().ID}] = en
}

// attach tracks a record returned by a read and returns the instance the
// unit of work already holds for the same id, if any.
func (u *UnitOfWork) attach(d *isolation.Descriptor, e entity.Entity) entity.Entity {
	k := key{kind: d.Kind(), id: e.Meta().ID}
	if existing, ok := u.index[k]; ok {
		return existing.entity
	}
	u.track(&entry{
		desc:      d,
		entity:    e,
		state:     stateUnchanged,
		expected:  e.Meta().Version,
		persisted: e.Meta().Clone(),
		snapshot:  snapshot(d, e),
	})
	return e
}

// Commit stamps and writes every tracked change, commits the session and
// then dispatches the raised events as one batch. Any failure before the
// session commits rolls everything back and drops the events.
func (u *UnitOfWork) Commit(ctx context.Context) (err error) {
	if u.done {
		return ErrFinished
	}
	u.done = true

	start := time.Now()
	ctx, span := u.m.tracer.Start(ctx, "uow.Commit", trace.WithAttributes(
		attribute.String("tenant.id", u.tc.TenantID.String()),
		attribute.Int("uow.tracked", len(u.entries)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		u.m.m.commitLatency.Observe(time.Since(start).Seconds())
	}()

	if err := u.tc.RequireTenant(); err != nil && u.hasChanges() {
		u.abort(ctx, "failed")
		return err
	}

	now := u.m.now().UTC().Truncate(time.Microsecond)
	writes, err := intercept(u.tc, now, u.entries)
	if err != nil {
		u.abort(ctx, "failed")
		return err
	}

	for _, w := range writes {
		if err := u.apply(ctx, w); err != nil {
			if IsConflict(err) {
				u.m.m.conflictsTotal.WithLabelValues(w.entry.desc.Kind()).Inc()
				u.abort(ctx, "conflict")
			} else {
				u.abort(ctx, "failed")
			}
			return err
		}
	}

	batch := u.collect(now)
	staged := false
	if u.m.durable && !batch.Empty() {
		if stager, ok := u.session.(OutboxStager); ok {
			if err := stager.StageEvents(ctx, batch); err != nil {
				u.abort(ctx, "failed")
				return errors.Wrap(err, "stage events")
			}
			staged = true
		}
	}

	if err := u.session.Commit(ctx); err != nil {
		u.clearEvents()
		u.m.m.finishedTotal.WithLabelValues("failed").Inc()
		return errors.Wrap(err, "commit unit of work")
	}
	u.m.m.finishedTotal.WithLabelValues("committed").Inc()

	for _, w := range writes {
		w.entry.entity.Meta().CopyAudit(w.staged.Meta())
	}
	u.clearEvents()

	span.SetAttributes(
		attribute.Int("uow.writes", len(writes)),
		attribute.Int("uow.events", len(batch.Events)),
	)
	if !staged && !batch.Empty() {
		u.m.dispatch(ctx, batch)
	}
	return nil
}

// Rollback discards every staged change and event. It is a no-op once the
// unit of work has finished.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	return u.abort(ctx, "rolled_back")
}

func (u *UnitOfWork) abort(ctx context.Context, result string) error {
	u.clearEvents()
	u.m.m.finishedTotal.WithLabelValues(result).Inc()
	if err := u.session.Rollback(ctx); err != nil {
		u.m.log.WithFields(logrus.Fields{
			"tenant_id": u.tc.TenantID,
			"result":    result,
		}).WithError(err).Warn("rollback unit of work")
		return err
	}
	return nil
}

func (u *UnitOfWork) apply(ctx context.Context, w write) error {
	d := w.entry.desc
	switch w.op {
	case opInsert:
		if err := u.session.Insert(ctx, d, w.staged); err != nil {
			return fmt.Errorf("insert %s %s: %w", d.Kind(), w.staged.Meta().ID, err)
		}
	case opUpdate:
		if err := u.session.Update(ctx, d, w.staged, w.expected); err != nil {
			return fmt.Errorf("update %s %s: %w", d.Kind(), w.staged.Meta().ID, err)
		}
	}
	return nil
}

func (u *UnitOfWork) hasChanges() bool {
	for _, en := range u.entries {
		if !en.detached && (en.state != stateUnchanged || en.dirty()) {
			return true
		}
	}
	return false
}

// collect gathers pending events from every tracked record in raise order.
func (u *UnitOfWork) collect(now time.Time) events.Batch {
	batch := events.Batch{
		CommitID:    uuid.New(),
		TenantID:    u.tc.TenantID,
		ActorID:     u.tc.ActorID,
		CommittedAt: now,
	}
	for _, en := range u.entries {
		if en.detached {
			continue
		}
		b := en.entity.Meta()
		for _, e := range b.PendingEvents() {
			e.EntityKind = en.desc.Kind()
			e.EntityID = b.ID
			e.TenantID = u.tc.TenantID
			batch.Events = append(batch.Events, e)
		}
	}
	entity.SortByRaise(batch.Events)
	return batch
}

func (u *UnitOfWork) clearEvents() {
	for _, en := range u.entries {
		en.entity.Meta().ClearEvents()
	}
}

// Add schedules e for insertion in the unit of work carried by ctx.
func Add(ctx context.Context, e entity.Entity) error {
	u, err := Use(ctx)
	if err != nil {
		return err
	}
	return u.Add(e)
}

// Update schedules e for update in the unit of work carried by ctx.
func Update(ctx context.Context, e entity.Entity) error {
	u, err := Use(ctx)
	if err != nil {
		return err
	}
	return u.Update(e)
}

// Remove schedules a soft delete in the unit of work carried by ctx.
func Remove(ctx context.Context, e entity.Entity) error {
	u, err := Use(ctx)
	if err != nil {
		return err
	}
	return u.Remove(e)
}
