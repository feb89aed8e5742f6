package tenant

import "github.com/google/uuid"

// ProvisionedEvent is published on the event bus after a tenant is created.
type ProvisionedEvent struct {
	TenantID uuid.UUID
	Slug     string
}

type SettingsUpdatedEvent struct {
	TenantID uuid.UUID
	Slug     string
}
