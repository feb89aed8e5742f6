// Package memstore is an in-memory uow.Store. Rows live in an arena keyed
// by id per entity kind; every read and write goes through clones so
// callers never alias stored state.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string]map[uuid.UUID]entity.Entity
	outbox []events.Batch
}

var _ uow.Store = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string]map[uuid.UUID]entity.Entity)}
}

func (s *Store) Begin(ctx context.Context) (uow.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{store: s}, nil
}

// Raw returns a clone of the stored row regardless of tenant or deletion.
// It exists for tests and diagnostics.
func (s *Store) Raw(d *isolation.Descriptor, id uuid.UUID) (entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tables[d.Kind()][id]
	if !ok {
		return nil, false
	}
	return d.Clone(rec), true
}

// Len is the number of stored rows of d's kind, deleted ones included.
func (s *Store) Len(d *isolation.Descriptor) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[d.Kind()])
}

// Outbox returns the batches staged by durable commits, oldest first.
func (s *Store) Outbox() []events.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Batch, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// DrainOutbox removes and returns the staged batches.
func (s *Store) DrainOutbox() []events.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

type pendingWrite struct {
	desc     *isolation.Descriptor
	rec      entity.Entity
	insert   bool
	expected entity.Version
}

type session struct {
	store   *Store
	writes  []pendingWrite
	batches []events.Batch
	closed  bool
}

var (
	_ uow.Session      = (*session)(nil)
	_ uow.OutboxStager = (*session)(nil)
)

func (s *session) open() error {
	if s.closed {
		return uow.ErrFinished
	}
	return nil
}

func (s *session) Get(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, id uuid.UUID) (entity.Entity, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	rec, ok := s.store.tables[d.Kind()][id]
	if !ok || !p.Matches(rec.Meta()) {
		return nil, uow.ErrNotFound
	}
	return d.Clone(rec), nil
}

func (s *session) Find(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, q uow.Query) ([]entity.Entity, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	matched, err := s.match(d, p, q)
	if err != nil {
		return nil, err
	}
	if err := sortRecords(d, matched, q.Order); err != nil {
		return nil, err
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	out := make([]entity.Entity, len(matched))
	for i, rec := range matched {
		out[i] = d.Clone(rec)
	}
	return out, nil
}

func (s *session) Count(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, q uow.Query) (int64, error) {
	if err := s.open(); err != nil {
		return 0, err
	}
	matched, err := s.match(d, p, q)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *session) match(d *isolation.Descriptor, p isolation.Predicate, q uow.Query) ([]entity.Entity, error) {
	columns := d.AllColumns()
	idx := make([]int, len(q.Filters))
	for i, f := range q.Filters {
		idx[i] = indexOf(columns, f.Column)
		if idx[i] < 0 {
			return nil, fmt.Errorf("%s: unknown column %q", d.Kind(), f.Column)
		}
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	var out []entity.Entity
	for _, rec := range s.store.tables[d.Kind()] {
		if !p.Matches(rec.Meta()) {
			continue
		}
		values := d.AllValues(rec)
		ok := true
		for i, f := range q.Filters {
			if !equalValue(values[idx[i]], f.Value) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *session) Insert(ctx context.Context, d *isolation.Descriptor, e entity.Entity) error {
	if err := s.open(); err != nil {
		return err
	}
	id := e.Meta().ID
	s.store.mu.RLock()
	_, exists := s.store.tables[d.Kind()][id]
	s.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("%s %s: duplicate id", d.Kind(), id)
	}
	s.writes = append(s.writes, pendingWrite{desc: d, rec: d.Clone(e), insert: true})
	return nil
}

func (s *session) Update(ctx context.Context, d *isolation.Descriptor, e entity.Entity, expected entity.Version) error {
	if err := s.open(); err != nil {
		return err
	}
	s.store.mu.RLock()
	table := s.store.tables[d.Kind()]
	err := checkVersion(table, e, expected)
	if err == nil {
		cur := table[e.Meta().ID].Meta()
		e.Meta().CreatedAt, e.Meta().CreatedBy = cur.CreatedAt, cur.CreatedBy
	}
	s.store.mu.RUnlock()
	if err != nil {
		return err
	}
	s.writes = append(s.writes, pendingWrite{desc: d, rec: d.Clone(e), expected: expected})
	return nil
}

func (s *session) StageEvents(ctx context.Context, batch events.Batch) error {
	if err := s.open(); err != nil {
		return err
	}
	s.batches = append(s.batches, batch)
	return nil
}

// Commit re-validates every pending write under the store lock and applies
// them all or none.
func (s *session) Commit(ctx context.Context) error {
	if err := s.open(); err != nil {
		return err
	}
	s.closed = true
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for _, w := range s.writes {
		table := s.store.tables[w.desc.Kind()]
		if w.insert {
			if _, exists := table[w.rec.Meta().ID]; exists {
				return fmt.Errorf("%s %s: duplicate id", w.desc.Kind(), w.rec.Meta().ID)
			}
			continue
		}
		if err := checkVersion(table, w.rec, w.expected); err != nil {
			return err
		}
	}
	for _, w := range s.writes {
		table, ok := s.store.tables[w.desc.Kind()]
		if !ok {
			table = make(map[uuid.UUID]entity.Entity)
			s.store.tables[w.desc.Kind()] = table
		}
		table[w.rec.Meta().ID] = w.rec
	}
	s.store.outbox = append(s.store.outbox, s.batches...)
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	s.closed = true
	s.writes = nil
	s.batches = nil
	return nil
}

// checkVersion mirrors UPDATE ... WHERE id AND tenant_id AND version.
func checkVersion(table map[uuid.UUID]entity.Entity, e entity.Entity, expected entity.Version) error {
	b := e.Meta()
	cur, ok := table[b.ID]
	if !ok || cur.Meta().TenantID != b.TenantID || cur.Meta().Version != expected {
		return uow.ErrConcurrencyConflict
	}
	return nil
}

func indexOf(columns []string, column string) int {
	for i, c := range columns {
		if c == column {
			return i
		}
	}
	return -1
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func equalValue(stored, want any) bool {
	a, b := deref(stored), deref(want)
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if av, ok := a.(entity.Version); ok {
		if bv, ok := b.(entity.Version); ok {
			return av == bv
		}
		if bu, ok := b.(uuid.UUID); ok {
			return uuid.UUID(av) == bu
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func sortRecords(d *isolation.Descriptor, recs []entity.Entity, order []uow.Order) error {
	columns := d.AllColumns()
	type key struct {
		idx  int
		desc bool
	}
	keys := make([]key, 0, len(order)+2)
	for _, o := range order {
		i := indexOf(columns, o.Column)
		if i < 0 {
			return fmt.Errorf("%s: unknown column %q", d.Kind(), o.Column)
		}
		keys = append(keys, key{idx: i, desc: o.Desc})
	}
	keys = append(keys,
		key{idx: indexOf(columns, isolation.ColumnCreatedAt)},
		key{idx: indexOf(columns, isolation.ColumnID)},
	)

	type row struct {
		rec    entity.Entity
		values []any
	}
	rows := make([]row, len(recs))
	for i, r := range recs {
		rows[i] = row{rec: r, values: d.AllValues(r)}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := rows[i].values, rows[j].values
		for _, k := range keys {
			c := compare(vi[k.idx], vj[k.idx])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	for i := range rows {
		recs[i] = rows[i].rec
	}
	return nil
}

// compare orders nil first, then by the natural order of the dereferenced
// value. Unknown types compare by their formatted text.
func compare(a, b any) int {
	a, b = deref(a), deref(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmpOrdered(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return cmpOrdered(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmpOrdered(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmpOrdered(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return cmpOrdered(boolInt(av), boolInt(bv))
		}
	}
	return cmpOrdered(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int | int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
