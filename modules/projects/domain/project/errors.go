package project

import "github.com/iota-uz/tenantkit/pkg/serrors"

var (
	ErrCycle          = serrors.NewError("PROJECT_CYCLE", "project cannot be its own ancestor", "Projects.Errors.Cycle")
	ErrParentNotFound = serrors.NewError("PROJECT_PARENT_NOT_FOUND", "parent project not found", "Projects.Errors.ParentNotFound")
	ErrCodeTaken      = serrors.NewError("PROJECT_CODE_TAKEN", "project code already exists", "Projects.Errors.CodeTaken")
)
