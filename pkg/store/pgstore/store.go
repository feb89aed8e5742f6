// Package pgstore is the Postgres uow.Store. Sessions are pgx transactions
// opened through a pool whose acquire hook binds the tenant for row-level
// security before any statement runs.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	faster "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/outbox"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type Store struct {
	pool        *pgxpool.Pool
	publisher   outbox.Publisher
	outboxTable pgx.Identifier
}

var _ uow.Store = (*Store)(nil)

type Option func(*Store)

// WithOutbox enables StageEvents on sessions: committed batches are written
// to table in the same transaction as the writes that raised them.
func WithOutbox(publisher outbox.Publisher, table pgx.Identifier) Option {
	return func(s *Store) {
		s.publisher = publisher
		s.outboxTable = table
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Begin acquires a connection with ctx, so the binder sees the tenant of
// the unit of work, and opens a read-committed transaction on it.
func (s *Store) Begin(ctx context.Context) (uow.Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, faster.Wrap(err, "begin transaction")
	}
	if s.publisher != nil {
		return &stagingSession{session: session{tx: tx}, publisher: s.publisher, table: s.outboxTable}, nil
	}
	return &session{tx: tx}, nil
}

type session struct {
	tx pgx.Tx
}

var _ uow.Session = (*session)(nil)

// Tx exposes the transaction for callers that need raw SQL alongside the
// unit of work.
func (s *session) Tx() pgx.Tx {
	return s.tx
}

func (s *session) Get(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, id uuid.UUID) (entity.Entity, error) {
	q, err := getSQL(d, p)
	if err != nil {
		return nil, err
	}
	_, predArgs := p.SQL(2)
	args := append([]any{id}, predArgs...)

	rec := d.New()
	if err := s.tx.QueryRow(ctx, q, args...).Scan(d.AllTargets(rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, uow.ErrNotFound
		}
		return nil, faster.Wrap(err, "scan row")
	}
	return rec, nil
}

func (s *session) Find(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, q uow.Query) ([]entity.Entity, error) {
	sql, args, err := selectSQL(d, p, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, faster.Wrap(err, "query rows")
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		rec := d.New()
		if err := rows.Scan(d.AllTargets(rec)...); err != nil {
			return nil, faster.Wrap(err, "scan row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, faster.Wrap(err, "iterate rows")
	}
	return out, nil
}

func (s *session) Count(ctx context.Context, d *isolation.Descriptor, p isolation.Predicate, q uow.Query) (int64, error) {
	sql, args, err := countSQL(d, p, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.tx.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, faster.Wrap(err, "count rows")
	}
	return n, nil
}

func (s *session) Insert(ctx context.Context, d *isolation.Descriptor, e entity.Entity) error {
	sql, err := insertSQL(d)
	if err != nil {
		return err
	}
	if _, err := s.tx.Exec(ctx, sql, d.AllValues(e)...); err != nil {
		return faster.Wrap(err, "insert row")
	}
	return nil
}

func (s *session) Update(ctx context.Context, d *isolation.Descriptor, e entity.Entity, expected entity.Version) error {
	sql, err := updateSQL(d)
	if err != nil {
		return err
	}
	b := e.Meta()
	args := []any{b.UpdatedAt, b.UpdatedBy, b.IsDeleted, b.DeletedAt, b.DeletedBy, b.Version}
	args = append(args, d.Values(e)...)
	args = append(args, b.ID, b.TenantID, expected)

	err = s.tx.QueryRow(ctx, sql, args...).Scan(&b.CreatedAt, &b.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return uow.ErrConcurrencyConflict
	}
	if err != nil {
		return faster.Wrap(err, "update row")
	}
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *session) Rollback(ctx context.Context) error {
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

type stagingSession struct {
	session
	publisher outbox.Publisher
	table     pgx.Identifier
}

var _ uow.OutboxStager = (*stagingSession)(nil)

func (s *stagingSession) StageEvents(ctx context.Context, batch events.Batch) error {
	if err := s.publisher.EnqueueBatch(ctx, s.tx, s.table, batch); err != nil {
		return fmt.Errorf("stage %d events: %w", len(batch.Events), err)
	}
	return nil
}
