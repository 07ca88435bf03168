// pkg/adapter/registry.go
package adapter

import (
	"context"
	"fmt"
	"sync"
)

// Factory constructs a platform adapter. Construction may do I/O (fetching
// platform descriptors, probing endpoints) and so takes a context.
type Factory func(ctx context.Context) (Adapter, error)

var (
	mu  sync.RWMutex
	reg = map[string]Factory{}
)

// Register binds a named adapter factory referenced by capability requests.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("adapter: name and factory required")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := reg[name]; dup {
		panic("adapter: duplicate " + name)
	}
	reg[name] = f
}

// Lookup retrieves a registered factory by name.
func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := reg[name]
	return f, ok
}

// Load constructs the adapter registered under name.
func Load(ctx context.Context, name string) (Adapter, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("adapter: %q not registered", name)
	}
	a, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("adapter: load %q: %w", name, err)
	}
	if a == nil {
		return nil, fmt.Errorf("adapter: factory %q returned nil", name)
	}
	return a, nil
}

// Reset clears the registry. Test hook.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	reg = map[string]Factory{}
}
