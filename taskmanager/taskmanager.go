// Package taskmanager runs units of guest or host-adjacent work
// concurrently with the host.
//
// Two managers are provided:
//   - Threaded runs every unit on its own goroutine; blocking units are
//     pinned to an OS thread for their whole life.
//   - Cooperative runs units one at a time on a single control loop, for
//     embeddings that cannot use real threads.
//
// Callers are agnostic to which one they hold. The only ordering guarantee
// is causal: effects of a unit are visible to whoever observes its Handle
// resolve. Timeouts are the caller's business; race Handle.Wait against a
// context deadline.
package taskmanager

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
)

// Manager schedules units.
type Manager interface {
	// Spawn schedules d and returns a handle resolving when the unit ends.
	// A *SchedulingError is returned, and nothing runs, when capacity
	// cannot be obtained.
	Spawn(ctx context.Context, d Descriptor) (*Handle, error)

	// Sleep waits for d or until ctx is done. Called from a cooperative
	// unit it suspends the unit instead of holding the scheduler.
	Sleep(ctx context.Context, d time.Duration) error

	// Parallelism is the number of units that can make progress at once.
	Parallelism() int
}

// Usable reports whether m can schedule units. It is false for nil and for
// nil pointers to the managers of this package.
func Usable(m Manager) bool {
	switch m := m.(type) {
	case nil:
		return false
	case *Threaded:
		return m != nil
	case *Cooperative:
		return m != nil
	default:
		return true
	}
}

// SingleLoop is implemented by managers that run one unit at a time. Long
// work spawned on them must be cooperative, or it holds the loop until it
// ends.
type SingleLoop interface {
	SingleLoop() bool
}

// DedicatedType is the spawn type for long-running work with its own store
// on m: cooperative on single-loop managers, blocking otherwise.
func DedicatedType(m Manager) SpawnType {
	if sl, ok := m.(SingleLoop); ok && sl.SingleLoop() {
		return CooperativeDedicated
	}
	return BlockingDedicated
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Prefix: "taskmanager", Level: log.WarnLevel})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
