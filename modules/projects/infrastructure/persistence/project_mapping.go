package persistence

import (
	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/pkg/isolation"
)

const (
	Table          = "projects"
	OutboxTable    = "projects_outbox"
	ColumnName     = "name"
	ColumnCode     = "code"
	ColumnParentID = "parent_id"
)

func Mapping() isolation.Mapping[*project.Project] {
	return isolation.Mapping[*project.Project]{
		Table:   Table,
		Columns: []string{ColumnName, ColumnCode, ColumnParentID},
		New:     func() *project.Project { return &project.Project{} },
		Values: func(p *project.Project) []any {
			return []any{p.Name, p.Code, p.ParentID}
		},
		Targets: func(p *project.Project) []any {
			return []any{&p.Name, &p.Code, &p.ParentID}
		},
		Clone: func(p *project.Project) *project.Project { return p.Clone() },
	}
}

// Register adds projects to reg and returns the typed handle used for reads.
func Register(reg *isolation.Registry) isolation.Type[*project.Project] {
	return isolation.Register(reg, Mapping())
}
