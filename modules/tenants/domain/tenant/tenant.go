// Package tenant is the directory of tenants. Tenants are system-level
// records: they are not tenant-scoped and are never physically deleted.
package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/serrors"
)

var (
	ErrNotFound        = serrors.NewError("TENANT_NOT_FOUND", "tenant not found", "Errors.TenantNotFound")
	ErrSlugTaken       = serrors.NewError("TENANT_SLUG_TAKEN", "tenant slug is already taken", "Errors.TenantSlugTaken")
	ErrInvalidSlug     = serrors.NewError("TENANT_INVALID_SLUG", "tenant slug is invalid", "Errors.TenantInvalidSlug")
	ErrInvalidSettings = serrors.NewError("TENANT_INVALID_SETTINGS", "tenant settings must be a JSON object", "Errors.TenantInvalidSettings")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

type Tenant struct {
	ID        uuid.UUID       `json:"id"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, t *Tenant) (*Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) (*Tenant, error)
}

func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// New returns an unsaved tenant. Empty settings become {}.
func New(slug, name string, settings json.RawMessage, now time.Time) (*Tenant, error) {
	slug = NormalizeSlug(slug)
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug.Withf("%q", slug)
	}
	settings, err := NormalizeSettings(settings)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = slug
	}
	return &Tenant{
		ID:        uuid.New(),
		Slug:      slug,
		Name:      name,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NormalizeSettings checks that raw is a JSON object and compacts it.
func NormalizeSettings(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, ErrInvalidSettings
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, ErrInvalidSettings.Wrap(err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
