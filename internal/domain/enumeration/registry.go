package enumeration

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sitescout/sitescout/internal/domain/scanning"
)

// ErrEnumeratorNotFound is returned when a name does not resolve to a
// registered enumerator.
var ErrEnumeratorNotFound = errors.New("enumerator not found")

// ErrDuplicateEnumerator is returned when a name is registered twice.
var ErrDuplicateEnumerator = errors.New("enumerator already registered")

type registration struct {
	descriptor Descriptor
	impl       Enumerator
}

// Registry maps enumerator names to their implementations. It is constructed
// by the composing process at startup, populated by registration calls, and
// read-only during scan execution. The scheduler holds it by reference; there
// is no process-wide mutable singleton.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds an enumerator under its descriptor's name. Duplicate names
// are rejected so two plugins cannot silently shadow each other.
func (r *Registry) Register(descriptor Descriptor, impl Enumerator) error {
	if descriptor.Name() == "" {
		return errors.New("enumerator descriptor requires a name")
	}
	if impl == nil {
		return fmt.Errorf("enumerator %s requires an implementation", descriptor.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[descriptor.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEnumerator, descriptor.Name())
	}
	r.entries[descriptor.Name()] = registration{descriptor: descriptor, impl: impl}
	return nil
}

// Resolve returns the implementation registered under name.
func (r *Registry) Resolve(name string) (Enumerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEnumeratorNotFound, name)
	}
	return reg.impl, nil
}

// Describe returns the descriptor registered under name.
func (r *Registry) Describe(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrEnumeratorNotFound, name)
	}
	return reg.descriptor, nil
}

// List returns all registered descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// EnabledNames returns the names of enabled enumerators sorted by name.
// A request with an empty enumerator set expands to these.
func (r *Registry) EnabledNames() []string {
	var names []string
	for _, d := range r.List() {
		if d.Enabled() {
			names = append(names, d.Name())
		}
	}
	return names
}

// ValidateConfig checks that every required key for the named enumerator is
// present and non-empty in the request options. It returns a
// scanning.ConfigError listing every missing key.
func (r *Registry) ValidateConfig(name string, options map[string]string) error {
	desc, err := r.Describe(name)
	if err != nil {
		return err
	}

	var missing []string
	for _, key := range desc.RequiredConfig() {
		if options[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &scanning.ConfigError{Enumerator: name, MissingKeys: missing}
	}
	return nil
}
