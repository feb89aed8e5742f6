package project

import (
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/constants"
	"github.com/iota-uz/tenantkit/pkg/serrors"
)

type CreateDTO struct {
	Name     string     `json:"name" validate:"required,max=200"`
	Code     string     `json:"code" validate:"required,max=32,alphanum"`
	ParentID *uuid.UUID `json:"parent_id"`
}

func (d *CreateDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Code = normalizeCode(d.Code)
}

func (d *CreateDTO) Ok() (serrors.ValidationErrors, bool) {
	d.Normalize()
	if errs := serrors.FromValidator(constants.Validate.Struct(d)); len(errs) > 0 {
		return errs, false
	}
	return nil, true
}

// UpdateDTO changes only the fields that are set. ClearParent moves the
// project to the root.
type UpdateDTO struct {
	Name        *string    `json:"name" validate:"omitempty,max=200"`
	ParentID    *uuid.UUID `json:"parent_id"`
	ClearParent bool       `json:"clear_parent"`
}

func (d *UpdateDTO) Normalize() {
	if d.Name != nil {
		name := strings.TrimSpace(*d.Name)
		d.Name = &name
	}
}

func (d *UpdateDTO) Ok() (serrors.ValidationErrors, bool) {
	d.Normalize()
	errs := serrors.FromValidator(constants.Validate.Struct(d))
	if errs == nil {
		errs = serrors.ValidationErrors{}
	}
	if d.Name != nil && *d.Name == "" {
		errs["Name"] = "Name is required"
	}
	if d.ClearParent && d.ParentID != nil {
		errs["ParentID"] = "ParentID cannot be set together with ClearParent"
	}
	if len(errs) > 0 {
		return errs, false
	}
	return nil, true
}
