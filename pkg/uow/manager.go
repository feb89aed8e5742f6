// Package uow runs tenant-scoped units of work: it applies the isolation
// predicate to every read, stamps audit fields and enforces version checks
// at commit, and hands domain events to a dispatcher only after commit.
package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/constants"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
)

type Manager struct {
	store      Store
	registry   *isolation.Registry
	dispatcher events.Dispatcher
	log        *logrus.Entry
	now        func() time.Time
	durable    bool
	tracer     trace.Tracer
	m          *metrics
}

type Option func(*Manager)

func WithDispatcher(d events.Dispatcher) Option {
	return func(m *Manager) {
		if d != nil {
			m.dispatcher = d
		}
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock replaces the source of audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDurableEvents stages committed batches in the session's outbox
// instead of dispatching them in-process. Sessions that cannot stage fall
// back to in-process dispatch.
func WithDurableEvents(enabled bool) Option {
	return func(m *Manager) {
		m.durable = enabled
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// NewManager seals registry: no type may be registered once units of work
// can run.
func NewManager(store Store, registry *isolation.Registry, opts ...Option) *Manager {
	registry.Seal()
	m := &Manager{
		store:      store,
		registry:   registry,
		dispatcher: events.Discard,
		log:        logrus.NewEntry(logrus.StandardLogger()),
		now:        time.Now,
		tracer:     otel.Tracer("github.com/iota-uz/tenantkit/pkg/uow"),
		m:          getMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "uow")
	return m
}

func (m *Manager) Registry() *isolation.Registry {
	return m.registry
}

// Begin resolves the tenant context from ctx and opens a store session.
// A missing tenant context fails before any connection is acquired.
func (m *Manager) Begin(ctx context.Context) (*UnitOfWork, error) {
	tc, err := composables.UseTenantContext(ctx)
	if err != nil {
		return nil, err
	}
	session, err := m.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return newUnitOfWork(m, tc, session), nil
}

// Run executes fn inside a unit of work and commits it when fn returns nil.
// If ctx already carries an open unit of work, fn joins it and the outer
// caller owns the commit.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if existing, ok := ctx.Value(constants.UnitOfWorkKey).(*UnitOfWork); ok && existing != nil && !existing.done {
		return fn(ctx)
	}

	ctx, span := m.tracer.Start(ctx, "uow.Run")
	defer span.End()

	u, err := m.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.String("tenant.id", u.tc.TenantID.String()),
		attribute.String("actor.id", u.tc.ActorID),
	)

	defer func() {
		if r := recover(); r != nil {
			_ = u.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(WithUnitOfWork(ctx, u)); err != nil {
		if rErr := u.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	if err := u.Commit(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// RunResult is Run for functions that produce a value.
func RunResult[T any](ctx context.Context, m *Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = fn(ctx)
		return innerErr
	})
	return out, err
}

func (m *Manager) dispatch(ctx context.Context, batch events.Batch) {
	// Handlers run after the unit of work is gone and must open their own.
	ctx = context.WithValue(ctx, constants.UnitOfWorkKey, (*UnitOfWork)(nil))
	log := m.log.WithFields(logrus.Fields{
		"commit_id": batch.CommitID,
		"tenant_id": batch.TenantID,
		"events":    len(batch.Events),
	})
	if err := m.dispatcher.Dispatch(ctx, batch); err != nil {
		m.m.dispatchTotal.WithLabelValues("error").Inc()
		log.WithError(err).Error("dispatch committed events")
		return
	}
	m.m.dispatchTotal.WithLabelValues("ok").Inc()
	m.m.dispatchedEvents.Add(float64(len(batch.Events)))
}

func WithUnitOfWork(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, constants.UnitOfWorkKey, u)
}

// Use returns the open unit of work carried by ctx.
func Use(ctx context.Context) (*UnitOfWork, error) {
	u, ok := ctx.Value(constants.UnitOfWorkKey).(*UnitOfWork)
	if !ok || u == nil {
		return nil, ErrNoUnitOfWork
	}
	if u.done {
		return nil, ErrFinished
	}
	return u, nil
}
