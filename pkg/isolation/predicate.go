package isolation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

// Scope relaxes the default read predicate. The zero value is the default:
// current tenant only, live rows only.
type Scope uint8

const (
	IncludeDeleted Scope = 1 << iota
	AllTenants
)

func (s Scope) Has(flag Scope) bool {
	return s&flag != 0
}

func (s Scope) String() string {
	var parts []string
	if s.Has(IncludeDeleted) {
		parts = append(parts, "include_deleted")
	}
	if s.Has(AllTenants) {
		parts = append(parts, "all_tenants")
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "|")
}

// Predicate is the composed isolation filter for one read. It renders both
// as an in-memory matcher and as a SQL fragment so every store applies the
// same rule.
type Predicate struct {
	tenantID       uuid.UUID
	anyTenant      bool
	includeDeleted bool
}

// Predicate composes "tenant matches AND not deleted" for a read under tc.
// Each conjunct is dropped only when scope names it. The default scope
// without a tenant is ErrNoTenantContext.
func (d *Descriptor) Predicate(tc tenancy.Context, scope Scope) (Predicate, error) {
	p := Predicate{
		tenantID:       tc.TenantID,
		anyTenant:      scope.Has(AllTenants),
		includeDeleted: scope.Has(IncludeDeleted),
	}
	if !p.anyTenant {
		if err := tc.RequireTenant(); err != nil {
			return Predicate{}, err
		}
	}
	return p, nil
}

func (p Predicate) TenantID() (uuid.UUID, bool) {
	return p.tenantID, !p.anyTenant
}

func (p Predicate) IncludesDeleted() bool {
	return p.includeDeleted
}

func (p Predicate) Matches(b *entity.Base) bool {
	if !p.anyTenant && b.TenantID != p.tenantID {
		return false
	}
	if !p.includeDeleted && b.IsDeleted {
		return false
	}
	return true
}

// SQL renders the predicate with positional placeholders starting at
// nextArg. An unrestricted predicate renders as TRUE.
func (p Predicate) SQL(nextArg int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !p.anyTenant {
		conds = append(conds, fmt.Sprintf("%s = $%d", ColumnTenantID, nextArg))
		args = append(args, p.tenantID)
	}
	if !p.includeDeleted {
		conds = append(conds, ColumnIsDeleted+" = false")
	}
	if len(conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conds, " AND "), args
}

func (p Predicate) String() string {
	tenant := p.tenantID.String()
	if p.anyTenant {
		tenant = "*"
	}
	return fmt.Sprintf("tenant=%s include_deleted=%t", tenant, p.includeDeleted)
}
