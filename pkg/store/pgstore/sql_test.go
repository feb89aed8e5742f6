package pgstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type note struct {
	entity.Base
	Title string
}

func (*note) Kind() string { return "note" }

func noteDescriptor(t *testing.T, table string) *isolation.Descriptor {
	t.Helper()
	return isolation.Register(isolation.NewRegistry(), isolation.Mapping[*note]{
		Table:   table,
		Columns: []string{"title"},
		New:     func() *note { return &note{} },
		Values:  func(n *note) []any { return []any{n.Title} },
		Targets: func(n *note) []any { return []any{&n.Title} },
		Clone: func(n *note) *note {
			c := *n
			c.Base = n.Base.Clone()
			return &c
		},
	}).Descriptor()
}

const allNoteColumns = `"id", "tenant_id", "created_at", "created_by", "updated_at", "updated_by", "is_deleted", "deleted_at", "deleted_by", "version", "title"`

func TestSelectSQL_AppliesPredicateFirst(t *testing.T) {
	t.Parallel()

	d := noteDescriptor(t, "app.notes")
	tenantID := uuid.New()
	p, err := d.Predicate(tenancy.Context{TenantID: tenantID, ActorID: "u"}, 0)
	require.NoError(t, err)

	sql, args, err := selectSQL(d, p, uow.Query{
		Filters: []uow.Filter{{Column: "title", Value: "x"}, {Column: "deleted_by", Value: nil}},
		Order:   []uow.Order{{Column: "title", Desc: true}},
		Limit:   10,
		Offset:  5,
	})
	require.NoError(t, err)
	require.Equal(t,
		`SELECT `+allNoteColumns+` FROM "app"."notes" WHERE tenant_id = $1 AND is_deleted = false AND "title" = $2 AND "deleted_by" IS NULL ORDER BY "title" DESC, "created_at" ASC, "id" ASC LIMIT $3 OFFSET $4`,
		sql)
	require.Equal(t, []any{tenantID, "x", 10, 5}, args)
}

func TestSelectSQL_AllTenantsIncludeDeleted(t *testing.T) {
	t.Parallel()

	d := noteDescriptor(t, "notes")
	p, err := d.Predicate(tenancy.SystemWide(), isolation.AllTenants|isolation.IncludeDeleted)
	require.NoError(t, err)

	sql, args, err := countSQL(d, p, uow.Query{})
	require.NoError(t, err)
	require.Equal(t, `SELECT count(*) FROM "notes" WHERE TRUE`, sql)
	require.Empty(t, args)
}

func TestSelectSQL_RejectsUnknownColumns(t *testing.T) {
	t.Parallel()

	d := noteDescriptor(t, "notes")
	p, err := d.Predicate(tenancy.Context{TenantID: uuid.New(), ActorID: "u"}, 0)
	require.NoError(t, err)

	_, _, err = selectSQL(d, p, uow.Query{Filters: []uow.Filter{{Column: "title; DROP TABLE notes", Value: 1}}})
	require.Error(t, err)

	_, _, err = selectSQL(d, p, uow.Query{Order: []uow.Order{{Column: "nope"}}})
	require.Error(t, err)

	bad := noteDescriptor(t, "notes; --")
	_, _, err = selectSQL(bad, p, uow.Query{})
	require.Error(t, err)
}

func TestGetSQL(t *testing.T) {
	t.Parallel()

	d := noteDescriptor(t, "notes")
	p, err := d.Predicate(tenancy.Context{TenantID: uuid.New(), ActorID: "u"}, isolation.IncludeDeleted)
	require.NoError(t, err)

	sql, err := getSQL(d, p)
	require.NoError(t, err)
	require.Equal(t, `SELECT `+allNoteColumns+` FROM "notes" WHERE "id" = $1 AND tenant_id = $2`, sql)
}

func TestWriteSQL(t *testing.T) {
	t.Parallel()

	d := noteDescriptor(t, "notes")

	insert, err := insertSQL(d)
	require.NoError(t, err)
	require.Equal(t,
		`INSERT INTO "notes" (`+allNoteColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		insert)

	update, err := updateSQL(d)
	require.NoError(t, err)
	require.Equal(t,
		`UPDATE "notes" SET "updated_at" = $1, "updated_by" = $2, "is_deleted" = $3, "deleted_at" = $4, "deleted_by" = $5, "version" = $6, "title" = $7 WHERE "id" = $8 AND "tenant_id" = $9 AND "version" = $10 RETURNING "created_at", "created_by"`,
		update)
	require.NotContains(t, update, `"created_at" =`)
}
