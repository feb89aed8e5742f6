// Package schemacheck verifies at startup that every registered
// tenant-scoped table carries the isolation columns, an index on tenant_id
// and, when enforcement is on, row-level security.
package schemacheck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/outbox"
	"github.com/iota-uz/tenantkit/pkg/serrors"
)

var ErrSchemaMismatch = serrors.NewError("SCHEMA_MISMATCH", "tenant-scoped schema does not match the registry", "Errors.SchemaMismatch")

const (
	columnsQuery = `SELECT column_name FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2`

	tenantIndexQuery = `SELECT EXISTS (
	SELECT 1 FROM pg_indexes
	WHERE schemaname = COALESCE(NULLIF($1, ''), current_schema()) AND tablename = $2
	AND indexdef ~* '\(\s*"?tenant_id"?\s*[,)]'
)`

	rlsQuery = `SELECT c.relrowsecurity FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = COALESCE(NULLIF($1, ''), current_schema()) AND c.relname = $2`
)

type Checker struct {
	db         *sql.DB
	enforceRLS bool
	log        *logrus.Entry
}

type Option func(*Checker)

func WithRLS(enforce bool) Option {
	return func(c *Checker) {
		c.enforceRLS = enforce
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Checker) {
		if log != nil {
			c.log = log
		}
	}
}

func New(db *sql.DB, opts ...Option) *Checker {
	c := &Checker{
		db:  db,
		log: logrus.WithField("component", "schemacheck"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Problem is one mismatch between a descriptor and its table.
type Problem struct {
	Kind  string
	Table string
	Issue string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s (%s): %s", p.Kind, p.Table, p.Issue)
}

// Inspect reports every problem it finds without failing on the first.
func (c *Checker) Inspect(ctx context.Context, descriptors []*isolation.Descriptor) ([]Problem, error) {
	var problems []Problem
	for _, d := range descriptors {
		found, err := c.inspect(ctx, d)
		if err != nil {
			return nil, err
		}
		problems = append(problems, found...)
	}
	return problems, nil
}

// Check fails with ErrSchemaMismatch when Inspect finds any problem.
func (c *Checker) Check(ctx context.Context, descriptors []*isolation.Descriptor) error {
	problems, err := c.Inspect(ctx, descriptors)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		c.log.WithField("tables", len(descriptors)).Info("tenant-scoped schema verified")
		return nil
	}
	lines := make([]string, len(problems))
	for i, p := range problems {
		lines[i] = p.String()
		c.log.WithFields(logrus.Fields{"kind": p.Kind, "table": p.Table}).Error(p.Issue)
	}
	return ErrSchemaMismatch.Withf("%s", strings.Join(lines, "; "))
}

func (c *Checker) inspect(ctx context.Context, d *isolation.Descriptor) ([]Problem, error) {
	ident, err := outbox.ParseIdentifier(d.Table())
	if err != nil {
		return []Problem{{Kind: d.Kind(), Table: d.Table(), Issue: err.Error()}}, nil
	}
	schema, table := "", ident[len(ident)-1]
	if len(ident) == 2 {
		schema = ident[0]
	}
	problem := func(issue string) Problem {
		return Problem{Kind: d.Kind(), Table: d.Table(), Issue: issue}
	}

	columns, err := c.columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return []Problem{problem("table does not exist")}, nil
	}

	var problems []Problem
	for _, col := range d.AllColumns() {
		if !columns[col] {
			problems = append(problems, problem(fmt.Sprintf("missing column %q", col)))
		}
	}

	var indexed bool
	if err := c.db.QueryRowContext(ctx, tenantIndexQuery, schema, table).Scan(&indexed); err != nil {
		return nil, fmt.Errorf("inspect indexes of %s: %w", d.Table(), err)
	}
	if !indexed {
		problems = append(problems, problem("no index on tenant_id"))
	}

	if c.enforceRLS {
		var enabled bool
		if err := c.db.QueryRowContext(ctx, rlsQuery, schema, table).Scan(&enabled); err != nil {
			return nil, fmt.Errorf("inspect row security of %s: %w", d.Table(), err)
		}
		if !enabled {
			problems = append(problems, problem("row level security is not enabled"))
		}
	}
	return problems, nil
}

func (c *Checker) columns(ctx context.Context, schema, table string) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("inspect columns of %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
