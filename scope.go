package eventfold

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrDependencyNotProvided returns if a scope cannot build the requested type.
var ErrDependencyNotProvided = errors.New("dependency not provided")

// Scope resolves dependencies by declared type. Child scopes inherit their
// parent's providers and can shadow them; the repository hands every aggregate
// a fresh child scope at construction time.
type Scope struct {
	parent    *Scope
	mu        sync.RWMutex
	providers map[reflect.Type]func(*Scope) (interface{}, error)
}

func NewScope() *Scope {
	return &Scope{
		providers: make(map[reflect.Type]func(*Scope) (interface{}, error)),
	}
}

// Child creates a scope that falls back to s for unknown types.
func (s *Scope) Child() *Scope {
	child := NewScope()
	child.parent = s
	return child
}

func (s *Scope) provider(t reflect.Type) (func(*Scope) (interface{}, error), bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		f, ok := cur.providers[t]
		cur.mu.RUnlock()
		if ok {
			return f, true
		}
	}
	return nil, false
}

// Provide registers a builder for T on the scope.
func Provide[T any](s *Scope, build func(*Scope) (T, error)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[t] = func(scope *Scope) (interface{}, error) {
		return build(scope)
	}
}

// ProvideValue registers a fixed instance for T on the scope.
func ProvideValue[T any](s *Scope, value T) {
	Provide(s, func(*Scope) (T, error) { return value, nil })
}

// Build resolves T from the scope or any of its ancestors.
func Build[T any](s *Scope) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	f, ok := s.provider(t)
	if !ok {
		return zero, fmt.Errorf("%s: %w", t.String(), ErrDependencyNotProvided)
	}
	v, err := f(s)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
