// Package wasi assembles the capabilities a guest runtime hands to guest
// code: networking, task management, store provisioning, and the optional
// HTTP, TTY and engine capabilities.
//
// Networking and the task manager are always present; an unconfigured
// networking capability is network.Unsupported, which fails every operation
// with capability.ErrUnavailable. HTTP, TTY and a custom engine may be
// absent, which is a normal state that callers branch on.
package wasi

import (
	"context"
	"errors"

	"github.com/caffeineduck/wasirt/capability"
	"github.com/caffeineduck/wasirt/engine"
	"github.com/caffeineduck/wasirt/httpclient"
	"github.com/caffeineduck/wasirt/network"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/caffeineduck/wasirt/tty"
)

// ErrConstructionFailure reports a runtime configuration that cannot be
// assembled on this platform.
var ErrConstructionFailure = errors.New("wasi: cannot construct runtime")

// Runtime is the set of capabilities available to guest sessions.
type Runtime interface {
	// Networking is never nil.
	Networking() network.Networking
	// TaskManager is never nil.
	TaskManager() taskmanager.Manager
	// NewStore returns a fresh store for a guest instantiation. It never
	// fails; see NewStoreFor.
	NewStore(ctx context.Context) *engine.Store

	HTTPClient() (httpclient.Client, bool)
	TTY() (tty.Bridge, bool)
	Engine() (*engine.Engine, bool)
}

// Unimplemented reports every optional capability as absent. Embed it in
// Runtime implementations that grant none of them.
type Unimplemented struct{}

func (Unimplemented) HTTPClient() (httpclient.Client, bool) { return nil, false }

func (Unimplemented) TTY() (tty.Bridge, bool) { return nil, false }

func (Unimplemented) Engine() (*engine.Engine, bool) { return nil, false }

// NewStoreFor provisions a store from rt's engine, or from the process
// default engine when rt has none.
func NewStoreFor(ctx context.Context, rt Runtime) *engine.Store {
	if e, ok := rt.Engine(); ok && e != nil {
		return e.NewStore(ctx)
	}
	return engine.Default().NewStore(ctx)
}

func RequireHTTPClient(rt Runtime) (httpclient.Client, error) {
	if c, ok := rt.HTTPClient(); ok && c != nil {
		return c, nil
	}
	return nil, capability.Unavailable(capability.HTTP, "client")
}

func RequireTTY(rt Runtime) (tty.Bridge, error) {
	if b, ok := rt.TTY(); ok && b != nil {
		return b, nil
	}
	return nil, capability.Unavailable(capability.TTY, "bridge")
}

func RequireEngine(rt Runtime) (*engine.Engine, error) {
	if e, ok := rt.Engine(); ok && e != nil {
		return e, nil
	}
	return nil, capability.Unavailable(capability.Engine, "engine")
}

// Spawn schedules d on rt's task manager. Dedicated units without their own
// provisioner get their store from rt.
func Spawn(ctx context.Context, rt Runtime, d taskmanager.Descriptor) (*taskmanager.Handle, error) {
	if d.Provisioner == nil {
		d.Provisioner = provisioner{rt}
	}
	return rt.TaskManager().Spawn(ctx, d)
}

type provisioner struct{ rt Runtime }

func (p provisioner) NewStore(ctx context.Context) *engine.Store { return p.rt.NewStore(ctx) }
