package pgstore

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/outbox"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

// updateColumns are the base columns an update may change. id, tenant_id
// and created_* are fixed at insert.
var updateColumns = []string{
	isolation.ColumnUpdatedAt,
	isolation.ColumnUpdatedBy,
	isolation.ColumnIsDeleted,
	isolation.ColumnDeletedAt,
	isolation.ColumnDeletedBy,
	isolation.ColumnVersion,
}

func tableName(d *isolation.Descriptor) (string, error) {
	ident, err := outbox.ParseIdentifier(d.Table())
	if err != nil {
		return "", fmt.Errorf("%s: %w", d.Kind(), err)
	}
	return ident.Sanitize(), nil
}

func quote(column string) string {
	return pgx.Identifier{column}.Sanitize()
}

func columnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

func hasColumn(d *isolation.Descriptor, column string) bool {
	for _, c := range d.AllColumns() {
		if c == column {
			return true
		}
	}
	return false
}

// whereClause renders the isolation predicate followed by query filters.
// Column names are checked against the descriptor before they are quoted.
func whereClause(d *isolation.Descriptor, p isolation.Predicate, filters []uow.Filter, args []any) (string, []any, error) {
	pred, predArgs := p.SQL(len(args) + 1)
	args = append(args, predArgs...)
	conds := []string{pred}
	for _, f := range filters {
		if !hasColumn(d, f.Column) {
			return "", nil, fmt.Errorf("%s: unknown column %q", d.Kind(), f.Column)
		}
		if f.Value == nil {
			conds = append(conds, quote(f.Column)+" IS NULL")
			continue
		}
		args = append(args, f.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", quote(f.Column), len(args)))
	}
	return strings.Join(conds, " AND "), args, nil
}

func orderClause(d *isolation.Descriptor, order []uow.Order) (string, error) {
	parts := make([]string, 0, len(order)+2)
	for _, o := range order {
		if !hasColumn(d, o.Column) {
			return "", fmt.Errorf("%s: unknown column %q", d.Kind(), o.Column)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, quote(o.Column)+" "+dir)
	}
	parts = append(parts, quote(isolation.ColumnCreatedAt)+" ASC", quote(isolation.ColumnID)+" ASC")
	return strings.Join(parts, ", "), nil
}

func selectSQL(d *isolation.Descriptor, p isolation.Predicate, q uow.Query) (string, []any, error) {
	table, err := tableName(d)
	if err != nil {
		return "", nil, err
	}
	where, args, err := whereClause(d, p, q.Filters, nil)
	if err != nil {
		return "", nil, err
	}
	order, err := orderClause(d, q.Order)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s", columnList(d.AllColumns()), table, where, order)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return sql, args, nil
}

func countSQL(d *isolation.Descriptor, p isolation.Predicate, q uow.Query) (string, []any, error) {
	table, err := tableName(d)
	if err != nil {
		return "", nil, err
	}
	where, args, err := whereClause(d, p, q.Filters, nil)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", table, where), args, nil
}

func getSQL(d *isolation.Descriptor, p isolation.Predicate) (string, error) {
	table, err := tableName(d)
	if err != nil {
		return "", err
	}
	pred, _ := p.SQL(2)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s",
		columnList(d.AllColumns()), table, quote(isolation.ColumnID), pred), nil
}

func insertSQL(d *isolation.Descriptor) (string, error) {
	table, err := tableName(d)
	if err != nil {
		return "", err
	}
	columns := d.AllColumns()
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, columnList(columns), strings.Join(placeholders, ", ")), nil
}

// updateSQL sets the mutable base columns and every business column, and
// guards on id, tenant and the expected version. Arguments are the values
// of updateColumns, then business values, then id, tenant_id, expected.
func updateSQL(d *isolation.Descriptor) (string, error) {
	table, err := tableName(d)
	if err != nil {
		return "", err
	}
	columns := append(append([]string{}, updateColumns...), d.Columns()...)
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", quote(c), i+1)
	}
	n := len(columns)
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d AND %s = $%d AND %s = $%d RETURNING %s, %s",
		table, strings.Join(sets, ", "),
		quote(isolation.ColumnID), n+1,
		quote(isolation.ColumnTenantID), n+2,
		quote(isolation.ColumnVersion), n+3,
		quote(isolation.ColumnCreatedAt), quote(isolation.ColumnCreatedBy),
	), nil
}
