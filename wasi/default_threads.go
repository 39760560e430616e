//go:build !js && !wasip1

package wasi

import (
	"fmt"

	"github.com/caffeineduck/wasirt/engine"
	"github.com/caffeineduck/wasirt/taskmanager"
)

// NewDefault assembles a runtime with a threaded task manager and the
// default engine.
func NewDefault(opts ...Option) (*PluggableRuntime, error) {
	tasks, err := taskmanager.NewThreaded(taskmanager.ThreadedConfig{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstructionFailure, err)
	}
	return New(tasks, append([]Option{WithEngine(engine.Default())}, opts...)...)
}
