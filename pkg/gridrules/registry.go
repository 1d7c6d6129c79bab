package gridrules

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrDuplicateModule = errors.New("duplicate module id")
	ErrUnknownOwner    = errors.New("unknown owner")
)

// Registry holds the unit and its modules. Modules are enumerated in
// registration order, which is the order the engine reasons about them.
type Registry struct {
	unit *Unit

	mu      sync.RWMutex
	modules []Owner
}

func NewRegistry(unit *Unit) *Registry {
	return &Registry{unit: unit}
}

func (r *Registry) Unit() *Unit {
	return r.unit
}

func (r *Registry) AddModule(m Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID() == r.unit.ID() || r.indexOf(m.ID()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, m.ID())
	}
	r.modules = append(r.modules, m)
	return nil
}

func (r *Registry) RemoveModule(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownOwner, id)
	}
	r.modules = slices.Delete(r.modules, i, i+1)
	return nil
}

func (r *Registry) indexOf(id string) int {
	return slices.IndexFunc(r.modules, func(m Owner) bool { return m.ID() == id })
}

// Modules returns the modules in registration order.
func (r *Registry) Modules() []Owner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// Owners returns the unit followed by every module.
func (r *Registry) Owners() []Owner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make([]Owner, 0, len(r.modules)+1)
	owners = append(owners, r.unit)
	return append(owners, r.modules...)
}

func (r *Registry) Owner(id string) (Owner, error) {
	if id == r.unit.ID() {
		return r.unit, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.modules[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOwner, id)
}
