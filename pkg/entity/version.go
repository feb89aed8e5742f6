package entity

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// Version is the opaque concurrency marker stored with every row. Each
// successful write replaces it with a fresh random value, so a marker is
// never reused for the same row.
type Version uuid.UUID

func NewVersion() Version {
	return Version(uuid.New())
}

func ParseVersion(s string) (Version, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Version{}, fmt.Errorf("parse version: %w", err)
	}
	return Version(id), nil
}

func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	return uuid.UUID(v).String()
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Value stores the marker as a uuid column.
func (v Version) Value() (driver.Value, error) {
	return v.String(), nil
}

// Scan reads the marker back from a uuid column.
func (v *Version) Scan(src any) error {
	var id uuid.UUID
	if err := id.Scan(src); err != nil {
		return fmt.Errorf("scan version: %w", err)
	}
	*v = Version(id)
	return nil
}
