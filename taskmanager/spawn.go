package taskmanager

import (
	"context"
	"fmt"

	"github.com/caffeineduck/wasirt/engine"
)

// SpawnType selects how a unit is executed and which memory it runs over.
//
// Blocking units run to completion on a thread of their own and never yield.
// Cooperative units give control back to the scheduler at suspension points
// (Env.Yield, Env.Block, Env.Await, Manager.Sleep).
//
// Dedicated units get a fresh store that the manager closes when the unit
// ends. Shared units run over the spawner's store; they are meant for
// trusted host-side helpers and must not run untrusted guest code.
type SpawnType uint8

const (
	BlockingDedicated SpawnType = iota
	BlockingShared
	CooperativeDedicated
	CooperativeShared
)

func (t SpawnType) Valid() bool { return t <= CooperativeShared }

func (t SpawnType) Blocking() bool { return t == BlockingDedicated || t == BlockingShared }

func (t SpawnType) Shared() bool { return t == BlockingShared || t == CooperativeShared }

func (t SpawnType) String() string {
	switch t {
	case BlockingDedicated:
		return "blocking/dedicated"
	case BlockingShared:
		return "blocking/shared"
	case CooperativeDedicated:
		return "cooperative/dedicated"
	case CooperativeShared:
		return "cooperative/shared"
	default:
		return fmt.Sprintf("SpawnType(%d)", uint8(t))
	}
}

// Provisioner creates the store of a dedicated unit.
type Provisioner interface {
	NewStore(ctx context.Context) *engine.Store
}

// Unit is the work payload of a spawned task. ctx is canceled when the
// handle is released or the manager shuts down.
type Unit func(ctx context.Context, env *Env) error

// Descriptor describes one unit of concurrent work. It is consumed by Spawn.
type Descriptor struct {
	// Name is used in logs and errors.
	Name string
	Type SpawnType
	// Store is the memory a shared unit runs over. Required for shared types.
	Store *engine.Store
	// Provisioner creates the store of a dedicated unit. When nil the
	// manager's provisioner is used, falling back to engine.Default().
	Provisioner Provisioner
	Run         Unit
}

func (d Descriptor) validate() error {
	if d.Run == nil {
		return fmt.Errorf("%w: no unit", ErrInvalidDescriptor)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, d.Type)
	}
	if d.Type.Shared() && d.Store == nil {
		return fmt.Errorf("%w: %v requires a store", ErrInvalidDescriptor, d.Type)
	}
	return nil
}
