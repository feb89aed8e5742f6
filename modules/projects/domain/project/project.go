package project

import (
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/entity"
)

const Kind = "project"

const (
	EventCreated    = "project.created"
	EventRenamed    = "project.renamed"
	EventReparented = "project.reparented"
	EventArchived   = "project.archived"
)

type CreatedPayload struct {
	Name     string     `json:"name"`
	Code     string     `json:"code"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type RenamedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ReparentedPayload struct {
	From *uuid.UUID `json:"from,omitempty"`
	To   *uuid.UUID `json:"to,omitempty"`
}

type ArchivedPayload struct {
	Code string `json:"code"`
}

// Project is a tenant-scoped record organised as a forest through ParentID.
type Project struct {
	entity.Base
	Name     string
	Code     string
	ParentID *uuid.UUID
}

func (*Project) Kind() string { return Kind }

// New builds an unsaved project and raises project.created.
func New(name, code string, parentID *uuid.UUID) *Project {
	p := &Project{
		Name:     strings.TrimSpace(name),
		Code:     normalizeCode(code),
		ParentID: cloneID(parentID),
	}
	p.EnsureID()
	p.Raise(EventCreated, CreatedPayload{Name: p.Name, Code: p.Code, ParentID: cloneID(p.ParentID)})
	return p
}

// Rename reports whether the name changed.
func (p *Project) Rename(name string) bool {
	name = strings.TrimSpace(name)
	if name == p.Name {
		return false
	}
	p.Raise(EventRenamed, RenamedPayload{From: p.Name, To: name})
	p.Name = name
	return true
}

// Reparent moves the project under parentID, or to the root when nil. Cycle
// checks need the whole tree and belong to the caller.
func (p *Project) Reparent(parentID *uuid.UUID) (bool, error) {
	if parentID != nil && *parentID == p.ID {
		return false, ErrCycle
	}
	if sameID(p.ParentID, parentID) {
		return false, nil
	}
	p.Raise(EventReparented, ReparentedPayload{From: cloneID(p.ParentID), To: cloneID(parentID)})
	p.ParentID = cloneID(parentID)
	return true, nil
}

// Archive raises project.archived. The soft delete itself is done by the
// unit of work.
func (p *Project) Archive() {
	p.Raise(EventArchived, ArchivedPayload{Code: p.Code})
}

func (p *Project) Clone() *Project {
	c := *p
	c.Base = p.Base.Clone()
	c.ParentID = cloneID(p.ParentID)
	return &c
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
