package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/httpapi"
	"github.com/iota-uz/tenantkit/pkg/serrors"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

const (
	TenantHeader = "X-Tenant-ID"
	ActorHeader  = "X-Actor-ID"
)

var ErrUnknownTenant = serrors.NewError("TENANT_UNKNOWN", "tenant could not be determined for this request", "Errors.TenantUnknown")

// IdentityProvider extracts the caller identity from a request. Producing
// authenticated identities is the job of whatever sits in front of the
// service; providers only read what it forwarded.
type IdentityProvider interface {
	Identify(r *http.Request) (tenantID uuid.UUID, actorID string, err error)
}

// HeaderIdentityProvider reads the tenant and actor from request headers.
type HeaderIdentityProvider struct {
	TenantHeader string
	ActorHeader  string
}

func (p HeaderIdentityProvider) Identify(r *http.Request) (uuid.UUID, string, error) {
	th, ah := p.TenantHeader, p.ActorHeader
	if th == "" {
		th = TenantHeader
	}
	if ah == "" {
		ah = ActorHeader
	}
	raw := strings.TrimSpace(r.Header.Get(th))
	if raw == "" {
		return uuid.Nil, "", tenancy.ErrNoTenantContext
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", tenancy.ErrNoTenantContext.Withf("malformed %s", th)
	}
	return id, strings.TrimSpace(r.Header.Get(ah)), nil
}

// WithIdentity resolves the tenant context for every request and rejects
// requests without one. Nothing downstream runs with a defaulted tenant.
func WithIdentity(provider IdentityProvider, resolver tenancy.Resolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := composables.UseLogger(r.Context())

			tenantID, actorID, err := provider.Identify(r)
			if err != nil {
				if errors.Is(err, ErrUnknownTenant) {
					logger.WithError(err).WithField("host", r.Host).Warn("tenant not found for host")
					_ = httpapi.WriteError(w, http.StatusNotFound, ErrUnknownTenant.Code, ErrUnknownTenant.Message, nil)
					return
				}
				_ = httpapi.WriteServiceError(w, logger, err)
				return
			}

			tc, err := resolver.Resolve(&tenancy.Identity{TenantID: tenantID, ActorID: actorID})
			if err != nil {
				_ = httpapi.WriteServiceError(w, logger, err)
				return
			}

			ctx := composables.WithTenantContext(r.Context(), tc)
			ctx = composables.WithLogger(ctx, logger.WithFields(logrus.Fields{
				"tenant_id": tc.TenantID.String(),
				"actor_id":  tc.ActorID,
			}))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
