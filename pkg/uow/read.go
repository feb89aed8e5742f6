package uow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/isolation"
)

type readOptions struct {
	scope isolation.Scope
	query Query
}

type ReadOption func(*readOptions)

// IncludeDeleted widens a read to soft-deleted rows of the active tenant.
func IncludeDeleted() ReadOption {
	return func(o *readOptions) {
		o.scope |= isolation.IncludeDeleted
	}
}

// AllTenants widens a read to every tenant. It is meant for system work
// and is the only read allowed under a context without a tenant.
func AllTenants() ReadOption {
	return func(o *readOptions) {
		o.scope |= isolation.AllTenants
	}
}

func Where(column string, value any) ReadOption {
	return func(o *readOptions) {
		o.query.Filters = append(o.query.Filters, Filter{Column: column, Value: value})
	}
}

func OrderBy(column string, desc bool) ReadOption {
	return func(o *readOptions) {
		o.query.Order = append(o.query.Order, Order{Column: column, Desc: desc})
	}
}

func Limit(n int) ReadOption {
	return func(o *readOptions) {
		o.query.Limit = n
	}
}

func Offset(n int) ReadOption {
	return func(o *readOptions) {
		o.query.Offset = n
	}
}

func (u *UnitOfWork) prepare(d *isolation.Descriptor, opts []ReadOption) (isolation.Predicate, Query, error) {
	if u.done {
		return isolation.Predicate{}, Query{}, ErrFinished
	}
	o := readOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	p, err := d.Predicate(u.tc, o.scope)
	if err != nil {
		return isolation.Predicate{}, Query{}, err
	}
	return p, o.query, nil
}

// Get loads one T by id through the isolation predicate. A row of another
// tenant, or a soft-deleted row without IncludeDeleted, is ErrNotFound.
func Get[T entity.Entity](ctx context.Context, typ isolation.Type[T], id uuid.UUID, opts ...ReadOption) (T, error) {
	var zero T
	u, err := Use(ctx)
	if err != nil {
		return zero, err
	}
	d := typ.Descriptor()
	p, _, err := u.prepare(d, opts)
	if err != nil {
		return zero, err
	}
	rec, err := u.session.Get(ctx, d, p, id)
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", d.Kind(), id, err)
	}
	return u.attach(d, rec).(T), nil
}

// Find loads every T matching the predicate and opts.
func Find[T entity.Entity](ctx context.Context, typ isolation.Type[T], opts ...ReadOption) ([]T, error) {
	u, err := Use(ctx)
	if err != nil {
		return nil, err
	}
	d := typ.Descriptor()
	p, q, err := u.prepare(d, opts)
	if err != nil {
		return nil, err
	}
	recs, err := u.session.Find(ctx, d, p, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", d.Kind(), err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		out = append(out, u.attach(d, rec).(T))
	}
	return out, nil
}

// Count counts T rows matching the predicate and opts, ignoring order and
// paging.
func Count[T entity.Entity](ctx context.Context, typ isolation.Type[T], opts ...ReadOption) (int64, error) {
	u, err := Use(ctx)
	if err != nil {
		return 0, err
	}
	d := typ.Descriptor()
	p, q, err := u.prepare(d, opts)
	if err != nil {
		return 0, err
	}
	q.Order, q.Limit, q.Offset = nil, 0, 0
	n, err := u.session.Count(ctx, d, p, q)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", d.Kind(), err)
	}
	return n, nil
}

// Exists reports whether a T with id is visible under opts.
func Exists[T entity.Entity](ctx context.Context, typ isolation.Type[T], id uuid.UUID, opts ...ReadOption) (bool, error) {
	opts = append(opts, Where(isolation.ColumnID, id))
	n, err := Count(ctx, typ, opts...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
