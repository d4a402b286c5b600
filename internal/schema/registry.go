package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/persistorai/doctrail/internal/models"
)

// Lookup resolves type names. Registry implements it.
type Lookup interface {
	Type(name string) (*Type, bool)
}

// Registry holds the known types. Safe for concurrent reads after Load.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry builds a registry from types, checking relation targets.
func NewRegistry(types ...Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(types))}

	if err := r.Load(types...); err != nil {
		return nil, err
	}

	return r, nil
}

// Load adds or replaces types. Either all of them are accepted or none.
func (r *Registry) Load(types ...Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Type, len(r.types)+len(types))
	for k, v := range r.types {
		next[k] = v
	}

	for i := range types {
		t := types[i]
		t.index()
		next[t.Name] = &t
	}

	staged := &Registry{types: next}
	for _, t := range next {
		if err := t.check(staged); err != nil {
			return err
		}
	}

	r.types = next

	return nil
}

// Type returns the named type.
func (r *Registry) Type(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]

	return t, ok
}

// MustType returns the named type or an ErrUnknownType error.
func (r *Registry) MustType(name string) (*Type, error) {
	t, ok := r.Type(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, name)
	}

	return t, nil
}

// Related returns the type embedded under relation on t.
func (r *Registry) Related(t *Type, relation string) (*Type, bool) {
	name, ok := t.RelatedTypeName(relation)
	if !ok {
		return nil, false
	}

	return r.Type(name)
}

// Names returns every registered type name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.types))
	for k := range r.types {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// TypeAtChain walks relation names from a root type name along chain and
// returns the type of the last link.
func (r *Registry) TypeAtChain(chain models.AssociationChain) (*Type, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty association chain", models.ErrValidation)
	}

	t, err := r.MustType(chain[0].Name)
	if err != nil {
		return nil, err
	}

	for _, link := range chain[1:] {
		next, ok := r.Related(t, link.Name)
		if !ok {
			return nil, &models.ConfigurationError{Type: t.Name, Reason: "no embedded relation " + link.Name}
		}

		t = next
	}

	return t, nil
}
