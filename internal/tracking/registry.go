package tracking

import (
	"sort"
	"sync"

	"github.com/persistorai/doctrail/internal/schema"
)

// Registry memoizes resolved Specs per type. It is created explicitly and
// passed to whoever needs it.
type Registry struct {
	types schema.Lookup

	mu    sync.RWMutex
	specs map[string]*Spec
	opts  map[string]Options
}

// NewRegistry creates an empty Registry over types.
func NewRegistry(types schema.Lookup) *Registry {
	return &Registry{
		types: types,
		specs: make(map[string]*Spec),
		opts:  make(map[string]Options),
	}
}

// Register resolves opts for typeName and caches the result, replacing any
// earlier registration of the same type.
func (r *Registry) Register(typeName string, opts Options) (*Spec, error) {
	spec, err := Resolve(r.types, typeName, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.specs[typeName] = spec
	r.opts[typeName] = opts
	r.mu.Unlock()

	return spec, nil
}

// Spec returns the cached Spec of typeName.
func (r *Registry) Spec(typeName string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.specs[typeName]

	return s, ok
}

// Invalidate forgets typeName. Returns whether it was registered.
func (r *Registry) Invalidate(typeName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.specs[typeName]
	delete(r.specs, typeName)
	delete(r.opts, typeName)

	return ok
}

// Refresh re-resolves every registered type, e.g. after the schema changed.
// On error no cached Spec is replaced.
func (r *Registry) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Spec, len(r.opts))

	for name, opts := range r.opts {
		spec, err := Resolve(r.types, name, opts)
		if err != nil {
			return err
		}

		next[name] = spec
	}

	r.specs = next

	return nil
}

// Types returns the tracked type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.specs))
	for k := range r.specs {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
