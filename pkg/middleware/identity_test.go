package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

type slugLookup map[string]uuid.UUID

func (l slugLookup) TenantIDBySlug(_ context.Context, slug string) (uuid.UUID, error) {
	id, ok := l[slug]
	if !ok {
		return uuid.Nil, errors.New("not found")
	}
	return id, nil
}

func captureTenant(got *tenancy.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := composables.UseTenantContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		*got = tc
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestWithIdentity_Headers(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	var got tenancy.Context
	h := WithIdentity(HeaderIdentityProvider{}, tenancy.NewResolver())(captureTenant(&got))

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set(TenantHeader, tenantID.String())
	req.Header.Set(ActorHeader, "user-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, tenantID, got.TenantID)
	require.Equal(t, "user-7", got.ActorID)
}

func TestWithIdentity_RejectsMissingIdentity(t *testing.T) {
	t.Parallel()

	var got tenancy.Context
	h := WithIdentity(HeaderIdentityProvider{}, tenancy.NewResolver())(captureTenant(&got))

	cases := map[string]map[string]string{
		"no tenant":    {ActorHeader: "user-7"},
		"bad tenant":   {TenantHeader: "acme", ActorHeader: "user-7"},
		"no actor":     {TenantHeader: uuid.NewString()},
		"system actor": {TenantHeader: uuid.NewString(), ActorHeader: tenancy.SystemActor},
	}
	for name, headers := range cases {
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
	require.Equal(t, tenancy.Context{}, got)
}

func TestWithIdentity_Host(t *testing.T) {
	t.Parallel()

	acme := uuid.New()
	provider := HostIdentityProvider{Suffix: "example.com", Lookup: slugLookup{"acme": acme}}
	var got tenancy.Context
	h := WithIdentity(provider, tenancy.NewResolver())(captureTenant(&got))

	req := httptest.NewRequest(http.MethodGet, "http://ACME.example.com:8080/projects", nil)
	req.Header.Set(ActorHeader, "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, acme, got.TenantID)

	for _, host := range []string{"globex.example.com", "example.com", "a.b.example.com", "acme.other.org"} {
		req := httptest.NewRequest(http.MethodGet, "http://"+host+"/projects", nil)
		req.Header.Set(ActorHeader, "user-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code, host)
	}
}
