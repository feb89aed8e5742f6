package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TenantLookup finds the tenant owning a slug.
type TenantLookup interface {
	TenantIDBySlug(ctx context.Context, slug string) (uuid.UUID, error)
}

// HostIdentityProvider takes the tenant from the leftmost label of hosts
// under suffix (acme.example.com with suffix example.com) and the actor from
// the actor header.
type HostIdentityProvider struct {
	Suffix      string
	Lookup      TenantLookup
	ActorHeader string
}

func (p HostIdentityProvider) Identify(r *http.Request) (uuid.UUID, string, error) {
	slug := slugFromHost(normalizeHost(r.Host), strings.ToLower(strings.Trim(p.Suffix, ".")))
	if slug == "" {
		return uuid.Nil, "", ErrUnknownTenant
	}
	id, err := p.Lookup.TenantIDBySlug(r.Context(), slug)
	if err != nil {
		return uuid.Nil, "", ErrUnknownTenant.Wrap(err)
	}
	header := p.ActorHeader
	if header == "" {
		header = ActorHeader
	}
	return id, strings.TrimSpace(r.Header.Get(header)), nil
}

func slugFromHost(host, suffix string) string {
	if host == "" || suffix == "" || !strings.HasSuffix(host, "."+suffix) {
		return ""
	}
	slug := strings.TrimSuffix(host, "."+suffix)
	if strings.Contains(slug, ".") {
		return ""
	}
	return slug
}

func normalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = strings.ToLower(raw)
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return strings.ToLower(strings.TrimSpace(h))
	}
	return raw
}
