// Package rls keeps a Postgres session setting in step with the tenant of
// the context that acquires a pooled connection, so row-level security
// policies keyed on that setting see the same tenant as the application.
//
// The binding is supplementary. Failures are logged and counted, never
// returned: the isolation predicate applied by the stores stays the
// authoritative filter.
package rls

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/composables"
)

const DefaultSetting = "app.current_tenant"

const resetTimeout = 5 * time.Second

// Execer is the part of a connection the binder writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Binder struct {
	setting string
	log     *logrus.Entry
	m       *metrics
}

type Option func(*Binder)

// WithSetting overrides the session setting name.
func WithSetting(name string) Option {
	return func(b *Binder) {
		if name != "" {
			b.setting = name
		}
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(b *Binder) {
		if log != nil {
			b.log = log
		}
	}
}

func NewBinder(opts ...Option) *Binder {
	b := &Binder{
		setting: DefaultSetting,
		log:     logrus.NewEntry(logrus.StandardLogger()),
		m:       getMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithField("component", "rls")
	return b
}

func (b *Binder) Setting() string {
	return b.setting
}

// Bind writes the tenant carried by ctx, or an empty value when ctx has no
// tenant, into the session setting of conn. The value is session-scoped
// (is_local = false) so it holds for every statement until the next bind.
func (b *Binder) Bind(ctx context.Context, conn Execer) error {
	value := composables.TenantSetting(ctx)
	if _, err := conn.Exec(ctx, "SELECT set_config($1, $2, false)", b.setting, value); err != nil {
		b.m.failures.WithLabelValues("bind").Inc()
		b.log.WithError(err).WithField("tenant_id", value).Warn("bind tenant to connection")
		return err
	}
	b.m.binds.Inc()
	return nil
}

// Reset clears the session setting.
func (b *Binder) Reset(ctx context.Context, conn Execer) error {
	if _, err := conn.Exec(ctx, "SELECT set_config($1, '', false)", b.setting); err != nil {
		b.m.failures.WithLabelValues("reset").Inc()
		b.log.WithError(err).Warn("reset tenant on released connection")
		return err
	}
	return nil
}

// BeforeAcquire is a pgxpool hook. It runs on every acquisition, fresh or
// reused, before the connection is handed out. It always returns true: a
// failed bind does not fail the acquisition.
func (b *Binder) BeforeAcquire(ctx context.Context, conn *pgx.Conn) bool {
	_ = b.Bind(ctx, conn)
	return true
}

// AfterRelease is a pgxpool hook. A connection whose reset fails is
// destroyed rather than returned to the pool with a stale tenant.
func (b *Binder) AfterRelease(conn *pgx.Conn) bool {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	return b.Reset(ctx, conn) == nil
}

// Install chains the binder into cfg's acquire and release hooks, after
// any hooks already set.
func (b *Binder) Install(cfg *pgxpool.Config) {
	prevAcquire := cfg.BeforeAcquire
	cfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		if prevAcquire != nil && !prevAcquire(ctx, conn) {
			return false
		}
		return b.BeforeAcquire(ctx, conn)
	}

	prevRelease := cfg.AfterRelease
	cfg.AfterRelease = func(conn *pgx.Conn) bool {
		if prevRelease != nil && !prevRelease(conn) {
			return false
		}
		return b.AfterRelease(conn)
	}
}
