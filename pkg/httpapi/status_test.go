package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/pkg/serrors"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

func TestStatusOf(t *testing.T) {
	errCustom := serrors.NewError("WIDGET_JAMMED", "widget jammed", "")
	RegisterStatus(errCustom, http.StatusTeapot)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{uow.ErrConcurrencyConflict, http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{fmt.Errorf("load: %w", uow.ErrNotFound), http.StatusNotFound, "RECORD_NOT_FOUND"},
		{tenancy.ErrNoTenantContext, http.StatusUnauthorized, "TENANT_CONTEXT_MISSING"},
		{uow.ErrCrossTenantAssignment, http.StatusInternalServerError, "CROSS_TENANT_ASSIGNMENT"},
		{errCustom.Withf("left side"), http.StatusTeapot, "WIDGET_JAMMED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := StatusOf(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.Equal(t, tc.code, code)
	}
}

func TestWriteServiceError_HidesServerErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)

	rec := httptest.NewRecorder()
	require.NoError(t, WriteServiceError(rec, logrus.NewEntry(l), errors.New("dial tcp: secret host")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret host")
	require.Contains(t, buf.String(), "secret host")

	rec = httptest.NewRecorder()
	require.NoError(t, WriteServiceError(rec, nil, uow.ErrConcurrencyConflict))
	require.Equal(t, http.StatusConflict, rec.Code)

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "CONCURRENCY_CONFLICT", env.Code)
	require.Equal(t, uow.ErrConcurrencyConflict.Message, env.Message)
}

func TestWriteValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteValidation(rec, serrors.ValidationErrors{"Name": "Name is required"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "Name is required", env.Meta["Name"])
}

func TestWriteJSON_UnencodablePayload(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.Error(t, WriteJSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)}))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Header().Get("Content-Type"), "application/json")
}
