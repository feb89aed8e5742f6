package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

// maxDepth bounds the ancestor walk of the cycle guard.
const maxDepth = 64

type FindParams struct {
	ParentID *uuid.UUID
	Roots    bool
	Archived bool
	Limit    int
	Offset   int
}

type ProjectService struct {
	units    *uow.Manager
	projects isolation.Type[*project.Project]
}

func NewProjectService(units *uow.Manager, projects isolation.Type[*project.Project]) *ProjectService {
	return &ProjectService{units: units, projects: projects}
}

func (s *ProjectService) GetByID(ctx context.Context, id uuid.UUID) (*project.Project, error) {
	return uow.RunResult(ctx, s.units, func(ctx context.Context) (*project.Project, error) {
		return uow.Get(ctx, s.projects, id)
	})
}

// GetPaginated lists live projects, or archived ones when params.Archived is set.
func (s *ProjectService) GetPaginated(ctx context.Context, params *FindParams) ([]*project.Project, int64, error) {
	if params == nil {
		params = &FindParams{}
	}
	var filters []uow.ReadOption
	switch {
	case params.Roots:
		filters = append(filters, uow.Where(persistence.ColumnParentID, nil))
	case params.ParentID != nil:
		filters = append(filters, uow.Where(persistence.ColumnParentID, *params.ParentID))
	}
	if params.Archived {
		filters = append(filters, uow.IncludeDeleted(), uow.Where("is_deleted", true))
	}

	type page struct {
		items []*project.Project
		total int64
	}
	res, err := uow.RunResult(ctx, s.units, func(ctx context.Context) (page, error) {
		total, err := uow.Count(ctx, s.projects, filters...)
		if err != nil {
			return page{}, err
		}
		opts := append(append([]uow.ReadOption{}, filters...),
			uow.OrderBy(persistence.ColumnCode, false),
			uow.Limit(params.Limit),
			uow.Offset(params.Offset),
		)
		items, err := uow.Find(ctx, s.projects, opts...)
		if err != nil {
			return page{}, err
		}
		return page{items: items, total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.items, res.total, nil
}

func (s *ProjectService) Create(ctx context.Context, dto *project.CreateDTO) (*project.Project, error) {
	if dto == nil {
		return nil, errors.New("missing dto")
	}
	dto.Normalize()
	return uow.RunResult(ctx, s.units, func(ctx context.Context) (*project.Project, error) {
		if err := s.ensureCodeFree(ctx, dto.Code); err != nil {
			return nil, err
		}
		if dto.ParentID != nil {
			if err := s.ensureParent(ctx, *dto.ParentID); err != nil {
				return nil, err
			}
		}
		p := project.New(dto.Name, dto.Code, dto.ParentID)
		if err := uow.Add(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Update applies dto to the project. expected, when not zero, must match the
// stored version, so clients holding a stale copy get a conflict.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, expected uuid.UUID, dto *project.UpdateDTO) (*project.Project, error) {
	if dto == nil {
		return nil, errors.New("missing dto")
	}
	dto.Normalize()
	return uow.RunResult(ctx, s.units, func(ctx context.Context) (*project.Project, error) {
		p, err := uow.Get(ctx, s.projects, id)
		if err != nil {
			return nil, err
		}
		if expected != uuid.Nil && uuid.UUID(p.Version) != expected {
			return nil, uow.ErrConcurrencyConflict
		}
		if dto.Name != nil {
			p.Rename(*dto.Name)
		}
		switch {
		case dto.ClearParent:
			if _, err := p.Reparent(nil); err != nil {
				return nil, err
			}
		case dto.ParentID != nil:
			if err := s.ensureAcyclic(ctx, p.ID, *dto.ParentID); err != nil {
				return nil, err
			}
			if _, err := p.Reparent(dto.ParentID); err != nil {
				return nil, err
			}
		}
		return p, nil
	})
}

// Archive soft-deletes the project. Archiving an archived project is a no-op.
// A non-nil expected version must match the stored one, as in Update.
func (s *ProjectService) Archive(ctx context.Context, id uuid.UUID, expected uuid.UUID) error {
	return s.units.Run(ctx, func(ctx context.Context) error {
		p, err := uow.Get(ctx, s.projects, id, uow.IncludeDeleted())
		if err != nil {
			return err
		}
		if p.IsDeleted {
			return nil
		}
		if expected != uuid.Nil && uuid.UUID(p.Version) != expected {
			return uow.ErrConcurrencyConflict
		}
		p.Archive()
		return uow.Remove(ctx, p)
	})
}

func (s *ProjectService) ensureCodeFree(ctx context.Context, code string) error {
	n, err := uow.Count(ctx, s.projects, uow.Where(persistence.ColumnCode, code))
	if err != nil {
		return err
	}
	if n > 0 {
		return project.ErrCodeTaken.Withf("%s", code)
	}
	return nil
}

func (s *ProjectService) ensureParent(ctx context.Context, parentID uuid.UUID) error {
	ok, err := uow.Exists(ctx, s.projects, parentID)
	if err != nil {
		return err
	}
	if !ok {
		return project.ErrParentNotFound
	}
	return nil
}

// ensureAcyclic walks up from parentID and fails if it reaches id.
func (s *ProjectService) ensureAcyclic(ctx context.Context, id, parentID uuid.UUID) error {
	current := parentID
	for depth := 0; depth < maxDepth; depth++ {
		if current == id {
			return project.ErrCycle
		}
		parent, err := uow.Get(ctx, s.projects, current)
		if err != nil {
			if uow.IsNotFound(err) {
				if depth == 0 {
					return project.ErrParentNotFound
				}
				return nil
			}
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		current = *parent.ParentID
	}
	return project.ErrCycle
}
