//go:build js || wasip1

package wasi

import "fmt"

// NewDefault fails on targets without threads. Build the runtime with New
// and a taskmanager.Cooperative instead.
func NewDefault(opts ...Option) (*PluggableRuntime, error) {
	return nil, fmt.Errorf("%w: no threaded task manager on this platform", ErrConstructionFailure)
}
