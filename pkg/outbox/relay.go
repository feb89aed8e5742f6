package outbox

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}

// Relay delivers committed outbox rows to a Dispatcher at least once.
// Failed rows are retried with exponential backoff until MaxAttempts, after
// which they stay unpublished as dead rows for the Cleaner.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	lockKey    int64
	m          *metrics
	tableLabel string
	rnd        *rand.Rand
}

// queueDepthEvery spaces out the pending-row count, which scans the table.
const queueDepthEvery = 10 * time.Second

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	switch {
	case pool == nil:
		return nil, invalidConfig("pool is required")
	case len(table) == 0:
		return nil, invalidConfig("table is required")
	case dispatcher == nil:
		return nil, invalidConfig("dispatcher is required")
	}

	opts.setDefaults()
	if opts.Logger == nil {
		opts.Logger = silentLogger()
	}
	label := TableLabel(table)
	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		lockKey:    advisoryLockKey("outbox:" + label),
		m:          getMetrics(),
		tableLabel: label,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
	}, nil
}

// Run polls until ctx is done. The relay is system work spanning every
// tenant, so its connections are bound with no tenant.
func (r *Relay) Run(ctx context.Context) error {
	ctx = composables.WithTenantContext(ctx, tenancy.SystemWide())
	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}
	r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
	return r.runLoop(ctx, nil)
}

// ProcessOnce claims and dispatches one batch of rows and reports how many
// were claimed.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	ctx = composables.WithTenantContext(ctx, tenancy.SystemWide())
	return r.processOnce(ctx, nil)
}

func (r *Relay) log() *logrus.Entry {
	return r.opts.Logger.WithField("table", r.tableLabel)
}

func (r *Relay) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.opts.PollInterval):
		return nil
	}
}

func (r *Relay) runSingleActive(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			r.log().WithError(err).Warn("outbox: acquire connection for leader election")
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		var leader bool
		err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&leader)
		if err != nil || !leader {
			conn.Release()
			r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
			if err != nil {
				r.log().WithError(err).Warn("outbox: try advisory lock")
			}
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
		r.log().Info("outbox: relay became leader")

		err = r.runLoop(ctx, conn)
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey)
		conn.Release()
		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
		return err
	}
}

func (r *Relay) runLoop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, conn); err != nil {
				r.log().WithError(err).Debug("outbox: observe queue depth")
			}
			nextDepthAt = time.Now().Add(queueDepthEvery)
		}

		if _, err := r.processOnce(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.log().WithError(err).Warn("outbox: process tick")
		}
	}
}

type claimed struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Topic    string
	Payload  []byte
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

func (c claimed) fields(table string) logrus.Fields {
	return logrus.Fields{
		"table":     table,
		"topic":     c.Topic,
		"event_id":  c.EventID.String(),
		"tenant_id": c.TenantID.String(),
		"sequence":  c.Sequence,
		"attempts":  c.Attempts,
	}
}

// processOnce dispatches claimed rows in sequence order. Once a row is
// scheduled for retry, later rows of the same commit are put back with the
// same due time and no attempt counted, so a batch is never delivered out of
// raise order.
func (r *Relay) processOnce(ctx context.Context, conn *pgxpool.Conn) (int, error) {
	now := time.Now()
	rows, err := r.claim(ctx, conn, now, now.Add(-r.opts.LockTTL))
	if err != nil {
		return 0, err
	}

	held := make(map[uuid.UUID]time.Time)
	for _, c := range rows {
		commit := commitOf(c)
		if next, ok := held[commit]; ok {
			r.m.heldTotal.WithLabelValues(r.tableLabel, c.Topic).Inc()
			r.settleOrWarn(ctx, conn, c, settlement{kind: settleHold, next: next})
			continue
		}

		err := r.dispatch(ctx, c)
		var s settlement
		switch {
		case err == nil:
			s = settlement{kind: settleAck}
		case c.Attempts >= r.opts.MaxAttempts:
			r.m.deadTotal.WithLabelValues(r.tableLabel, c.Topic).Inc()
			s = settlement{kind: settleDead, lastError: clip(err, r.opts.LastErrorMaxLen)}
		default:
			s = settlement{
				kind:      settleRetry,
				lastError: clip(err, r.opts.LastErrorMaxLen),
				next:      time.Now().Add(retryDelay(c.Attempts, r.opts.MaxBackoff) + jitter(r.rnd, r.opts.JitterMax)),
			}
			if commit != uuid.Nil {
				held[commit] = s.next
			}
		}
		r.settleOrWarn(ctx, conn, c, s)
	}
	return len(rows), nil
}

func (r *Relay) settleOrWarn(ctx context.Context, conn *pgxpool.Conn, c claimed, s settlement) {
	if err := r.settle(ctx, conn, c.ID, s); err != nil {
		r.opts.Logger.WithError(err).WithFields(c.fields(r.tableLabel)).Warnf("outbox: settle %s", s.kind)
	}
}

// commitOf reads the commit id from a batch envelope. Rows enqueued one by
// one have none and are never held.
func commitOf(c claimed) uuid.UUID {
	var env struct {
		CommitID uuid.UUID `json:"commit_id"`
	}
	if err := json.Unmarshal(c.Payload, &env); err != nil {
		return uuid.Nil
	}
	return env.CommitID
}

func (r *Relay) dispatch(ctx context.Context, c claimed) error {
	if r.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		defer cancel()
	}

	start := time.Now()
	err := r.dispatcher.Dispatch(ctx, DispatchedMessage{
		Meta: Meta{
			Table:    r.table,
			TenantID: c.TenantID,
			Topic:    c.Topic,
			EventID:  c.EventID,
			Sequence: c.Sequence,
			Attempts: c.Attempts,
		},
		Payload: c.Payload,
	})

	result := "success"
	if err != nil {
		result = "failure"
	}
	r.m.dispatchTotal.WithLabelValues(r.tableLabel, c.Topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.tableLabel, c.Topic, result).Observe(time.Since(start).Seconds())
	return err
}

// claim locks up to BatchSize due rows in sequence order. SKIP LOCKED lets
// several relays share a table without double delivery inside LockTTL.
func (r *Relay) claim(ctx context.Context, conn *pgxpool.Conn, now, lockCutoff time.Time) ([]claimed, error) {
	var items []claimed
	err := r.inTx(ctx, conn, func(tx pgx.Tx) error {
		q := fmt.Sprintf(
			`SELECT id, tenant_id, topic, payload, event_id, sequence, attempts
			   FROM %s
			  WHERE published_at IS NULL
			    AND available_at <= $1
			    AND attempts < $2
			    AND (locked_at IS NULL OR locked_at < $3)
			  ORDER BY available_at, sequence
			  LIMIT $4
			  FOR UPDATE SKIP LOCKED`,
			r.table.Sanitize(),
		)
		rows, err := tx.Query(ctx, q, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("outbox claim select: %w", err)
		}
		defer rows.Close()

		var ids []uuid.UUID
		for rows.Next() {
			var c claimed
			if err := rows.Scan(&c.ID, &c.TenantID, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts); err != nil {
				return fmt.Errorf("outbox claim scan: %w", err)
			}
			c.Attempts++
			items = append(items, c)
			ids = append(ids, c.ID)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("outbox claim rows: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		update := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, r.table.Sanitize())
		if _, err := tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return fmt.Errorf("outbox claim update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

type settleKind string

const (
	settleAck   settleKind = "ack"
	settleRetry settleKind = "retry"
	settleDead  settleKind = "dead"
	settleHold  settleKind = "hold"
)

type settlement struct {
	kind      settleKind
	lastError string
	next      time.Time
}

// settle records the outcome of one dispatch and releases the row lock.
func (r *Relay) settle(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, s settlement) error {
	table := r.table.Sanitize()
	var (
		q    string
		args []any
	)
	switch s.kind {
	case settleAck:
		q = fmt.Sprintf(`UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL
		  WHERE id = $1 AND published_at IS NULL`, table)
		args = []any{id}
	case settleRetry:
		q = fmt.Sprintf(`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3
		  WHERE id = $1 AND published_at IS NULL`, table)
		args = []any{id, s.lastError, s.next}
	case settleDead:
		q = fmt.Sprintf(`UPDATE %s SET locked_at = NULL, last_error = $2, available_at = now()
		  WHERE id = $1 AND published_at IS NULL`, table)
		args = []any{id, s.lastError}
	case settleHold:
		q = fmt.Sprintf(`UPDATE %s SET locked_at = NULL, attempts = attempts - 1, available_at = $2
		  WHERE id = $1 AND published_at IS NULL`, table)
		args = []any{id, s.next}
	default:
		return invalidConfig("unknown settlement %q", s.kind)
	}

	return r.inTx(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("outbox %s: %w", s.kind, err)
		}
		return nil
	})
}

func (r *Relay) observeQueueDepth(ctx context.Context, conn *pgxpool.Conn) error {
	var db interface {
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	} = r.pool
	if conn != nil {
		db = conn
	}

	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE published_at IS NULL`, r.table.Sanitize())
	var pending int64
	if err := db.QueryRow(ctx, q).Scan(&pending); err != nil {
		return fmt.Errorf("outbox queue depth: %w", err)
	}
	r.m.pending.WithLabelValues(r.tableLabel).Set(float64(pending))
	return nil
}

// inTx runs fn in a transaction on conn, or on a pooled connection when
// conn is nil.
func (r *Relay) inTx(ctx context.Context, conn *pgxpool.Conn, fn func(tx pgx.Tx) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if conn != nil {
		tx, err = conn.BeginTx(ctx, pgx.TxOptions{})
	} else {
		tx, err = r.pool.BeginTx(ctx, pgx.TxOptions{})
	}
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
