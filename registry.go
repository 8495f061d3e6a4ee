package remember

import (
	"strings"
	"sync"
)

// Key names a capability published in a Registry. The type parameter
// ties the key to the type stored under it.
type Key[T any] struct {
	name string
}

// NewKey creates a capability key
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: strings.TrimSpace(name)}
}

func (k Key[T]) String() string {
	return k.name
}

var (
	// MechanismKey holds the resolved remember-me Mechanism
	MechanismKey = NewKey[Mechanism]("remember.mechanism")
	// UserLookupKey holds the UserLookup shared by sibling configurators
	UserLookupKey = NewKey[UserLookup]("remember.user_lookup")
	// DispatcherKey holds the pipeline authentication Dispatcher
	DispatcherKey = NewKey[Dispatcher]("remember.dispatcher")
	// LogoutCoordinatorKey holds the LogoutCoordinator, when one is applied
	LogoutCoordinatorKey = NewKey[LogoutCoordinator]("remember.logout_coordinator")
)

// Registry is the set-once object map shared by configurators during a
// single pipeline build.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]any
}

func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]any)}
}

// Set publishes value under key. A key can only be set once.
func Set[T any](r *Registry, key Key[T], value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.objects[key.name]; exists {
		return failure(ErrSharedObjectExists, map[string]any{"key": key.name})
	}
	r.objects[key.name] = value
	return nil
}

// Get returns the value under key, or false when absent
func Get[T any](r *Registry, key Key[T]) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	raw, ok := r.objects[key.name]
	r.mu.RUnlock()
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return value, true
}

// Has reports whether key has been set
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.objects[strings.TrimSpace(name)]
	return ok
}
