package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"clinic-trash/internal/model"
)

// Registry maps entity-type names to collections.
type Registry struct {
	backend Backend

	mu    sync.RWMutex
	known map[string]Collection
	loose map[string]Collection
}

func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend: backend,
		known:   map[string]Collection{},
		loose:   map[string]Collection{},
	}
}

// NewClinicRegistry registers the dashboard's record kinds.
func NewClinicRegistry(backend Backend) *Registry {
	r := NewRegistry(backend)
	Register[model.Appointment](r, model.EntityAppointment)
	Register[model.Patient](r, model.EntityPatient)
	Register[model.AttendanceRecord](r, model.EntityAttendance)
	Register[model.InventoryItem](r, model.EntityInventory)
	Register[model.Role](r, model.EntityRole)
	return r
}

// Register adds a statically known kind backed by the registry's backend.
func Register[T model.Entity](r *Registry, name string) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[name] = &typedCollection[T]{name: name, backend: r.backend}
	delete(r.loose, name)
}

func (r *Registry) Resolve(entityType string) (Collection, error) {
	name := strings.TrimSpace(entityType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.known[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownEntityType, name)
}

// ResolveOrLoose never fails: unregistered types get a loose collection that
// is materialized on first use and reused afterwards.
func (r *Registry) ResolveOrLoose(entityType string) Collection {
	if c, err := r.Resolve(entityType); err == nil {
		return c
	}

	name := strings.TrimSpace(entityType)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.known[name]; ok {
		return c
	}
	if c, ok := r.loose[name]; ok {
		return c
	}
	c := NewLooseCollection(name, r.backend)
	r.loose[name] = c
	return c
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.known))
	for name := range r.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
