package uow

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

type opKind uint8

const (
	opInsert opKind = iota + 1
	opUpdate
)

type write struct {
	op       opKind
	entry    *entry
	staged   entity.Entity
	expected entity.Version
}

// snapshot records what a read returned so later in-place edits are
// detected even if the caller never calls Update.
func snapshot(d *isolation.Descriptor, e entity.Entity) []any {
	c := d.Clone(e)
	return append([]any{c.Meta().TenantID}, d.Values(c)...)
}

func (en *entry) dirty() bool {
	if en.snapshot == nil {
		return false
	}
	return !reflect.DeepEqual(en.snapshot, snapshot(en.desc, en.entity))
}

// intercept turns tracked entries into writes, in tracking order. Audit
// stamps go onto clones; the caller's records are only updated once the
// session has committed.
func intercept(tc tenancy.Context, now time.Time, entries []*entry) ([]write, error) {
	var writes []write
	for _, en := range entries {
		if en.detached {
			continue
		}
		w, ok, err := stage(tc, now, en)
		if err != nil {
			return nil, err
		}
		if ok {
			writes = append(writes, w)
		}
	}
	return writes, nil
}

func stage(tc tenancy.Context, now time.Time, en *entry) (write, bool, error) {
	b := en.entity.Meta()

	switch en.state {
	case stateAdded:
		if b.TenantID != uuid.Nil && b.TenantID != tc.TenantID {
			return write{}, false, crossTenant(en, b.TenantID, tc)
		}
		staged := en.desc.Clone(en.entity)
		sb := staged.Meta()
		sb.TenantID = tc.TenantID
		if sb.CreatedAt.IsZero() {
			sb.CreatedAt = now
		}
		if sb.CreatedBy == "" {
			sb.CreatedBy = tc.ActorID
		}
		sb.UpdatedAt, sb.UpdatedBy = nil, nil
		sb.IsDeleted = false
		sb.DeletedAt, sb.DeletedBy = nil, nil
		sb.Version = entity.NewVersion()
		return write{op: opInsert, entry: en, staged: staged}, true, nil

	case stateUnchanged:
		if !en.dirty() {
			return write{}, false, nil
		}
		fallthrough

	case stateModified:
		if b.TenantID != tc.TenantID {
			return write{}, false, crossTenant(en, b.TenantID, tc)
		}
		if b.IsDeleted && !stamped(en.persisted) {
			return stageDelete(tc, now, en), true, nil
		}
		staged := en.desc.Clone(en.entity)
		sb := staged.Meta()
		keepPersisted(sb, en.persisted)
		stampModified(sb, tc, now)
		return write{op: opUpdate, entry: en, staged: staged, expected: en.expected}, true, nil

	case stateDeleted:
		if b.TenantID != tc.TenantID {
			return write{}, false, crossTenant(en, b.TenantID, tc)
		}
		if stamped(en.persisted) {
			return write{}, false, nil
		}
		return stageDelete(tc, now, en), true, nil
	}
	return write{}, false, nil
}

func stageDelete(tc tenancy.Context, now time.Time, en *entry) write {
	staged := en.desc.Clone(en.entity)
	sb := staged.Meta()
	keepPersisted(sb, en.persisted)
	actor := tc.ActorID
	deletedAt := now
	sb.IsDeleted = true
	sb.DeletedAt = &deletedAt
	sb.DeletedBy = &actor
	stampModified(sb, tc, now)
	return write{op: opUpdate, entry: en, staged: staged, expected: en.expected}
}

// keepPersisted puts back the creation and soft-delete fields as they were
// when the record was read or handed to Update/Remove. Business code never
// writes them.
func keepPersisted(b *entity.Base, persisted entity.Base) {
	b.CreatedAt = persisted.CreatedAt
	b.CreatedBy = persisted.CreatedBy
	p := persisted.Clone()
	b.IsDeleted = p.IsDeleted
	b.DeletedAt = p.DeletedAt
	b.DeletedBy = p.DeletedBy
}

// stamped reports whether b is a soft delete that carries its stamps.
func stamped(b entity.Base) bool {
	return b.IsDeleted && b.DeletedAt != nil && b.DeletedBy != nil
}

func stampModified(b *entity.Base, tc tenancy.Context, now time.Time) {
	actor := tc.ActorID
	updatedAt := now
	b.UpdatedAt = &updatedAt
	b.UpdatedBy = &actor
	b.Version = entity.NewVersion()
}

func crossTenant(en *entry, got uuid.UUID, tc tenancy.Context) error {
	return ErrCrossTenantAssignment.Withf("%s %s has tenant %s, active tenant is %s",
		en.desc.Kind(), en.entity.Meta().ID, got, tc.TenantID)
}
