package eventfold

import "sync"

// EntityRepository applies the unit-of-work cache pattern at sub-aggregate
// granularity: each child entity key is constructed at most once and reused
// for every later Get. It is safe for concurrent use by entity repositories
// operating on the same aggregate's children.
type EntityRepository[T any] struct {
	build    func(id string) T
	entities sync.Map
}

func NewEntityRepository[T any](build func(id string) T) *EntityRepository[T] {
	return &EntityRepository[T]{build: build}
}

// Get returns the cached entity for id, constructing it on first use.
func (r *EntityRepository[T]) Get(id string) T {
	if v, ok := r.entities.Load(id); ok {
		return v.(T)
	}
	v, _ := r.entities.LoadOrStore(id, r.build(id))
	return v.(T)
}

// Range iterates over the constructed entities.
func (r *EntityRepository[T]) Range(f func(id string, entity T) bool) {
	r.entities.Range(func(k, v interface{}) bool {
		return f(k.(string), v.(T))
	})
}
