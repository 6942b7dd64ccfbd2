package chainspec

// Registry is the set of allychain ids already written into the genesis of
// the relay spec being built. A launch creates one and shares it between
// every pipeline run of that launch.
type Registry struct {
	ids map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Has reports whether [id] is already registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Add registers [id]. Adding an id twice is a no-op.
func (r *Registry) Add(id string) {
	r.ids[id] = struct{}{}
}

func (r *Registry) Len() int {
	return len(r.ids)
}
