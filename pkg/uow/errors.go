package uow

import (
	"errors"

	"github.com/iota-uz/tenantkit/pkg/serrors"
)

var (
	// ErrConcurrencyConflict means the row changed since it was read. The
	// caller may reload and retry the whole unit of work.
	ErrConcurrencyConflict = serrors.NewError("CONCURRENCY_CONFLICT", "record was modified elsewhere, retry", "Errors.ConcurrencyConflict")
	// ErrCrossTenantAssignment is a programming error: a record was given a
	// tenant other than the active one.
	ErrCrossTenantAssignment = serrors.NewError("CROSS_TENANT_ASSIGNMENT", "record is assigned to another tenant", "Errors.CrossTenantAssignment")
	ErrNotFound              = serrors.NewError("RECORD_NOT_FOUND", "record not found", "Errors.RecordNotFound")

	ErrNoUnitOfWork     = serrors.NewError("UOW_MISSING", "no unit of work in context", "")
	ErrFinished         = serrors.NewError("UOW_FINISHED", "unit of work already committed or rolled back", "")
	ErrNotPersisted     = serrors.NewError("RECORD_NOT_PERSISTED", "record has not been persisted yet", "")
	ErrAlreadyPersisted = serrors.NewError("RECORD_ALREADY_PERSISTED", "record is already persisted", "")
	ErrAlreadyTracked   = serrors.NewError("RECORD_ALREADY_TRACKED", "another instance of the record is tracked", "")
)

func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
