// Package capability defines the shared vocabulary for host capabilities
// handed to guest code, most importantly the "capability unavailable"
// condition that every provider reports when it was not granted.
package capability

import (
	"errors"
	"fmt"
)

// Capability names used in errors and reports.
const (
	Networking = "networking"
	HTTP       = "http"
	TTY        = "tty"
	Engine     = "engine"
)

// ErrUnavailable is matched by every error reporting an absent or
// unsupported capability.
var ErrUnavailable = errors.New("capability unavailable")

// UnavailableError reports that an operation needed a capability the
// runtime does not grant.
type UnavailableError struct {
	Capability string
	Op         string
}

func (e *UnavailableError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Capability, ErrUnavailable)
	}
	return fmt.Sprintf("%s %s: %v", e.Capability, e.Op, ErrUnavailable)
}

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable returns an *UnavailableError for the capability and operation.
func Unavailable(capability, op string) error {
	return &UnavailableError{Capability: capability, Op: op}
}

// IsUnavailable reports whether err is a capability-unavailable condition.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
