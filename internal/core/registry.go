package core

import "sync/atomic"

// Registry holds the current Dataset. Readers never block: a Dataset is
// built completely before it is stored and is not mutated afterwards, so
// a pointer load is enough to see a consistent snapshot.
//
// Concurrent Replace calls are not ordered; the last one to complete wins.
type Registry struct {
	current atomic.Pointer[Dataset]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the current Dataset, or false before the first successful load.
func (r *Registry) Current() (*Dataset, bool) {
	ds := r.current.Load()
	return ds, ds != nil
}

// Replace publishes ds and returns the Dataset it replaced, nil if none.
// Replacing with nil is ignored so a failed load never clears the slot.
func (r *Registry) Replace(ds *Dataset) *Dataset {
	if ds == nil {
		return r.current.Load()
	}
	return r.current.Swap(ds)
}
