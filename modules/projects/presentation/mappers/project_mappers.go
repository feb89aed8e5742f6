package mappers

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
)

type ProjectView struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	ParentID  *uuid.UUID `json:"parent_id"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedAt *time.Time `json:"updated_at"`
	UpdatedBy *string    `json:"updated_by"`
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
	Version   string     `json:"version"`
}

func ProjectToView(p *project.Project) ProjectView {
	return ProjectView{
		ID:        p.ID,
		TenantID:  p.TenantID,
		Name:      p.Name,
		Code:      p.Code,
		ParentID:  p.ParentID,
		CreatedAt: p.CreatedAt,
		CreatedBy: p.CreatedBy,
		UpdatedAt: p.UpdatedAt,
		UpdatedBy: p.UpdatedBy,
		IsDeleted: p.IsDeleted,
		DeletedAt: p.DeletedAt,
		DeletedBy: p.DeletedBy,
		Version:   p.Version.String(),
	}
}

func ProjectsToViews(items []*project.Project) []ProjectView {
	out := make([]ProjectView, len(items))
	for i, p := range items {
		out[i] = ProjectToView(p)
	}
	return out
}
