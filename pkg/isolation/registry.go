// Package isolation holds the startup-time registry of tenant-scoped entity
// types and the read predicate every store attaches to queries against them.
package isolation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/serrors"
)

var ErrUnregisteredEntity = serrors.NewError("ENTITY_UNREGISTERED", "entity type is not registered for isolation", "Errors.EntityUnregistered")

// Registry maps entity kinds to their descriptors. It is filled once at
// startup, sealed, and then shared read-only by every unit of work.
type Registry struct {
	mu     sync.RWMutex
	byKind map[string]*Descriptor
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[string]*Descriptor)}
}

// Register adds T to the registry and returns its typed handle. It panics on
// an invalid mapping, a duplicate kind, or a sealed registry: all three are
// wiring mistakes that must stop the process before it serves traffic.
func Register[T entity.Entity](r *Registry, m Mapping[T]) Type[T] {
	d, err := m.describe()
	if err != nil {
		panic(fmt.Sprintf("isolation: %v", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("isolation: register %q after seal", d.kind))
	}
	if _, ok := r.byKind[d.kind]; ok {
		panic(fmt.Sprintf("isolation: kind %q registered twice", d.kind))
	}
	r.byKind[d.kind] = d
	return Type[T]{d: d}
}

// Seal freezes the registry. Calling it more than once is harmless.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the descriptor for kind or ErrUnregisteredEntity.
func (r *Registry) Lookup(kind string) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.byKind[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnregisteredEntity.Withf("kind %q", kind)
	}
	return d, nil
}

// Require verifies that every prototype's kind is registered. Call it at
// startup with one zero value per tenant-scoped type the binary uses.
func (r *Registry) Require(prototypes ...entity.Entity) error {
	var missing []string
	for _, p := range prototypes {
		if _, err := r.Lookup(p.Kind()); err != nil {
			missing = append(missing, p.Kind())
		}
	}
	if len(missing) > 0 {
		return ErrUnregisteredEntity.Withf("kinds %v", missing)
	}
	return nil
}

// Descriptors returns every registered descriptor ordered by kind.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.byKind))
	for _, d := range r.byKind {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].kind < out[j].kind })
	return out
}
