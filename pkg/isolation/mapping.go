package isolation

import (
	"errors"
	"fmt"

	"github.com/iota-uz/tenantkit/pkg/entity"
)

// Base columns every tenant-scoped table carries, in scan order.
const (
	ColumnID        = "id"
	ColumnTenantID  = "tenant_id"
	ColumnCreatedAt = "created_at"
	ColumnCreatedBy = "created_by"
	ColumnUpdatedAt = "updated_at"
	ColumnUpdatedBy = "updated_by"
	ColumnIsDeleted = "is_deleted"
	ColumnDeletedAt = "deleted_at"
	ColumnDeletedBy = "deleted_by"
	ColumnVersion   = "version"
)

var baseColumns = []string{
	ColumnID,
	ColumnTenantID,
	ColumnCreatedAt,
	ColumnCreatedBy,
	ColumnUpdatedAt,
	ColumnUpdatedBy,
	ColumnIsDeleted,
	ColumnDeletedAt,
	ColumnDeletedBy,
	ColumnVersion,
}

// BaseColumns returns the persisted layout shared by every tenant-scoped table.
func BaseColumns() []string {
	out := make([]string, len(baseColumns))
	copy(out, baseColumns)
	return out
}

// BaseValues returns b's persisted fields in BaseColumns order.
func BaseValues(b *entity.Base) []any {
	return []any{
		b.ID,
		b.TenantID,
		b.CreatedAt,
		b.CreatedBy,
		b.UpdatedAt,
		b.UpdatedBy,
		b.IsDeleted,
		b.DeletedAt,
		b.DeletedBy,
		b.Version,
	}
}

// BaseTargets returns scan targets for b in BaseColumns order.
func BaseTargets(b *entity.Base) []any {
	return []any{
		&b.ID,
		&b.TenantID,
		&b.CreatedAt,
		&b.CreatedBy,
		&b.UpdatedAt,
		&b.UpdatedBy,
		&b.IsDeleted,
		&b.DeletedAt,
		&b.DeletedBy,
		&b.Version,
	}
}

// Mapping declares how T is stored. Columns, Values and Targets describe
// business columns only and must line up index by index.
type Mapping[T entity.Entity] struct {
	Table   string
	Columns []string
	New     func() T
	Values  func(T) []any
	Targets func(T) []any
	Clone   func(T) T
}

func (m Mapping[T]) describe() (*Descriptor, error) {
	if m.New == nil {
		return nil, errors.New("mapping has no constructor")
	}
	proto := m.New()
	kind := proto.Kind()
	if kind == "" {
		return nil, errors.New("entity kind is empty")
	}
	if m.Table == "" {
		return nil, fmt.Errorf("%s: table is required", kind)
	}
	if m.Values == nil || m.Targets == nil || m.Clone == nil {
		return nil, fmt.Errorf("%s: values, targets and clone are required", kind)
	}
	seen := make(map[string]struct{}, len(baseColumns)+len(m.Columns))
	for _, c := range baseColumns {
		seen[c] = struct{}{}
	}
	for _, c := range m.Columns {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%s: column %q is duplicated or reserved", kind, c)
		}
		seen[c] = struct{}{}
	}
	if n := len(m.Values(proto)); n != len(m.Columns) {
		return nil, fmt.Errorf("%s: %d values for %d columns", kind, n, len(m.Columns))
	}
	if n := len(m.Targets(proto)); n != len(m.Columns) {
		return nil, fmt.Errorf("%s: %d targets for %d columns", kind, n, len(m.Columns))
	}

	columns := make([]string, len(m.Columns))
	copy(columns, m.Columns)
	return &Descriptor{
		kind:    kind,
		table:   m.Table,
		columns: columns,
		newFn:   func() entity.Entity { return m.New() },
		values:  func(e entity.Entity) []any { return m.Values(e.(T)) },
		targets: func(e entity.Entity) []any { return m.Targets(e.(T)) },
		clone:   func(e entity.Entity) entity.Entity { return m.Clone(e.(T)) },
	}, nil
}

// Type is the typed handle Register returns. Generic read helpers take it
// so results come back as T without assertions at the call site.
type Type[T entity.Entity] struct {
	d *Descriptor
}

func (t Type[T]) Descriptor() *Descriptor {
	return t.d
}

func (t Type[T]) Kind() string {
	return t.d.kind
}

// Descriptor is the untyped view of a registered type used by stores.
type Descriptor struct {
	kind    string
	table   string
	columns []string

	newFn   func() entity.Entity
	values  func(entity.Entity) []any
	targets func(entity.Entity) []any
	clone   func(entity.Entity) entity.Entity
}

func (d *Descriptor) Kind() string {
	return d.kind
}

// Table is the possibly schema-qualified table name.
func (d *Descriptor) Table() string {
	return d.table
}

// Columns returns the business columns.
func (d *Descriptor) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// AllColumns returns base columns followed by business columns.
func (d *Descriptor) AllColumns() []string {
	return append(BaseColumns(), d.columns...)
}

func (d *Descriptor) New() entity.Entity {
	return d.newFn()
}

func (d *Descriptor) Values(e entity.Entity) []any {
	return d.values(e)
}

// AllValues returns base values followed by business values.
func (d *Descriptor) AllValues(e entity.Entity) []any {
	return append(BaseValues(e.Meta()), d.values(e)...)
}

// AllTargets returns scan targets for AllColumns.
func (d *Descriptor) AllTargets(e entity.Entity) []any {
	return append(BaseTargets(e.Meta()), d.targets(e)...)
}

// Clone returns a copy of e that shares no mutable state with it.
func (d *Descriptor) Clone(e entity.Entity) entity.Entity {
	return d.clone(e)
}

// ColumnIndex returns the index of a business column, or -1.
func (d *Descriptor) ColumnIndex(column string) int {
	for i, c := range d.columns {
		if c == column {
			return i
		}
	}
	return -1
}
