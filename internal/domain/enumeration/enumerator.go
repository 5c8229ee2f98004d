// Package enumeration defines the plugin contract for information-gathering
// strategies and the registry the scheduler resolves them from. Enumerator
// implementations (DNS lookups, third-party intelligence APIs, browser
// script injection) live outside this module and register at process start.
package enumeration

import (
	"context"

	"github.com/sitescout/sitescout/internal/domain/scanning"
)

// Enumerator is one pluggable strategy that gathers a category of
// information about a target. Implementations must honor ctx cancellation
// best-effort and must not hold their pool slot past their return: an
// enumerator exceeding its per-task timeout is forcibly treated as timed out
// by the scheduler regardless of its internal state.
type Enumerator interface {
	// Name returns the unique name this enumerator registers under.
	Name() string

	// RequiredConfig returns option keys that must be present in the scan
	// request for this enumerator to run. Validation happens before slot
	// acquisition so a misconfigured task never consumes a browser.
	RequiredConfig() []string

	// Run executes the strategy against the target. Cancellation arrives
	// through ctx; browser-based enumerators retrieve their borrowed
	// automation instance from ctx as well. Config holds the request
	// options merged over configured defaults.
	Run(ctx context.Context, target string, config map[string]string) (scanning.EnumerationResult, error)
}

// Descriptor describes a registered enumerator for listing and validation.
// Descriptors are registered once at process start and read-only thereafter.
type Descriptor struct {
	name           string
	requiredConfig []string
	description    string
	enabled        bool
}

// NewDescriptor creates a Descriptor for registration.
func NewDescriptor(name string, requiredConfig []string, description string, enabled bool) Descriptor {
	return Descriptor{
		name:           name,
		requiredConfig: append([]string(nil), requiredConfig...),
		description:    description,
		enabled:        enabled,
	}
}

// Name returns the enumerator's unique name.
func (d Descriptor) Name() string { return d.name }

// RequiredConfig returns the required option keys.
func (d Descriptor) RequiredConfig() []string {
	return append([]string(nil), d.requiredConfig...)
}

// Description returns a human-readable description of the strategy.
func (d Descriptor) Description() string { return d.description }

// Enabled reports whether the enumerator participates in "all registered"
// requests. Disabled enumerators still resolve when requested by name.
func (d Descriptor) Enabled() bool { return d.enabled }
