package httpapi

import (
	"errors"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/serrors"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

var (
	statusMu     sync.RWMutex
	statusByCode = map[string]int{
		uow.ErrConcurrencyConflict.Code:      http.StatusConflict,
		uow.ErrNotFound.Code:                 http.StatusNotFound,
		tenancy.ErrNoTenantContext.Code:      http.StatusUnauthorized,
		tenancy.ErrNoActor.Code:              http.StatusUnauthorized,
		serrors.ErrValidation.Code:           http.StatusUnprocessableEntity,
		uow.ErrCrossTenantAssignment.Code:    http.StatusInternalServerError,
		isolation.ErrUnregisteredEntity.Code: http.StatusInternalServerError,
	}
)

// RegisterStatus maps a coded error to the HTTP status its responses use.
// Modules call it while registering.
func RegisterStatus(err *serrors.BaseError, status int) {
	statusMu.Lock()
	defer statusMu.Unlock()
	statusByCode[err.Code] = status
}

// StatusOf returns the status for err and its code. Uncoded errors are 500.
func StatusOf(err error) (int, string) {
	code, ok := serrors.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError, "INTERNAL"
	}
	statusMu.RLock()
	status, known := statusByCode[code]
	statusMu.RUnlock()
	if !known {
		return http.StatusInternalServerError, code
	}
	return status, code
}

// WriteServiceError renders err as an ErrorEnvelope. Server errors hide the
// message and are logged through log.
func WriteServiceError(w http.ResponseWriter, log *logrus.Entry, err error) error {
	status, code := StatusOf(err)
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.WithError(err).WithField("code", code).Error("request failed")
		}
		return WriteError(w, status, code, http.StatusText(status), nil)
	}
	var be *serrors.BaseError
	message := err.Error()
	if errors.As(err, &be) {
		message = be.Message
	}
	return WriteError(w, status, code, message, nil)
}

// WriteValidation renders per-field messages with 422.
func WriteValidation(w http.ResponseWriter, fields serrors.ValidationErrors) error {
	return WriteError(w, http.StatusUnprocessableEntity, serrors.ErrValidation.Code, serrors.ErrValidation.Message, fields)
}
