package taskmanager

import (
	"context"
	"runtime"

	"github.com/caffeineduck/wasirt/engine"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

// scheduler is the manager-specific half of an Env.
type scheduler interface {
	yield(ctx context.Context, t *task) error
	block(ctx context.Context, t *task, fn func() error) error
	await(ctx context.Context, t *task, h *Handle) error
}

type task struct {
	id     string
	name   string
	typ    SpawnType
	run    Unit
	ctx    context.Context
	cancel context.CancelFunc
	env    *Env

	store     *engine.Store
	ownsStore bool

	// resume hands the baton to the task under the cooperative manager.
	resume chan struct{}

	done chan struct{}
	err  error
}

type envKey struct{}

// newTask provisions the memory of d and builds its execution context. The
// unit context keeps the values of ctx but not its cancellation: units are
// only canceled through their own handle or by manager shutdown.
func newTask(ctx context.Context, d Descriptor, mgr Manager, sched scheduler, fallback Provisioner) (*task, error) {
	t := &task{
		id:   uuid.NewString(),
		name: d.Name,
		typ:  d.Type,
		run:  d.Run,
		done: make(chan struct{}),
	}

	if d.Type.Shared() {
		t.store = d.Store
	} else {
		p := d.Provisioner
		if p == nil {
			p = fallback
		}
		if p == nil {
			p = engine.Default()
		}

		var pc panics.Catcher
		pc.Try(func() { t.store = p.NewStore(ctx) })
		if r := pc.Recovered(); r != nil {
			return nil, &SchedulingError{Name: d.Name, Err: r.AsError()}
		}
		t.ownsStore = true
	}

	t.env = &Env{
		ID:      t.id,
		Name:    t.name,
		Store:   t.store,
		Manager: mgr,
		t:       t,
		sched:   sched,
	}

	unitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.ctx = context.WithValue(unitCtx, envKey{}, t.env)
	t.cancel = cancel
	return t, nil
}

// execute runs the unit, converting errors and panics into *UnitError.
func (t *task) execute() error {
	if t.ctx.Err() != nil {
		return ErrCanceled
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = t.run(t.ctx, t.env) })

	if r := pc.Recovered(); r != nil {
		return &UnitError{TaskID: t.id, Name: t.name, Err: r.AsError(), Panic: r.Value, Stack: r.Stack}
	}
	if err != nil {
		return &UnitError{TaskID: t.id, Name: t.name, Err: err}
	}
	return nil
}

// reclaim closes a dedicated store and drops the unit context.
func (t *task) reclaim(logger *log.Logger) {
	t.cancel()
	if t.ownsStore && t.store != nil {
		if err := t.store.Close(context.Background()); err != nil {
			logger.Warn("close store", "task", t.id, "store", t.store.ID(), "err", err)
		}
	}
}

func (t *task) finish(err error) {
	t.err = err
	close(t.done)
}

func (t *task) label() string {
	if t.name != "" {
		return t.name
	}
	return t.id
}

// Handle is the completion handle of a spawned unit.
//
// Releasing a handle that has not resolved cancels its unit; the manager
// then reclaims the unit's goroutine and dedicated store. A handle that
// becomes unreachable without being released is released when collected.
type Handle struct {
	t *task
}

func newHandle(t *task) *Handle {
	h := &Handle{t: t}
	runtime.AddCleanup(h, func(cancel context.CancelFunc) { cancel() }, t.cancel)
	return h
}

func (h *Handle) ID() string { return h.t.id }

func (h *Handle) Name() string { return h.t.name }

func (h *Handle) Type() SpawnType { return h.t.typ }

// Done is closed once the unit has ended and its resources are reclaimed.
func (h *Handle) Done() <-chan struct{} { return h.t.done }

// Err returns the unit's outcome. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.t.done:
		return h.t.err
	default:
		return nil
	}
}

// Wait blocks until the unit ends and returns its outcome, or returns
// ctx.Err() if ctx is done first. Giving up on a wait does not cancel the
// unit; use Release for that.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.t.done:
		return h.t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release cancels the unit if it is still running. It is safe to call at
// any time and more than once.
func (h *Handle) Release() {
	h.t.cancel()
}

// Env is handed to a running unit. Its methods must be called from the
// unit's own goroutine.
type Env struct {
	ID      string
	Name    string
	Store   *engine.Store
	Manager Manager

	t     *task
	sched scheduler
}

// EnvFromContext returns the Env of the unit running with ctx.
func EnvFromContext(ctx context.Context) (*Env, bool) {
	env, ok := ctx.Value(envKey{}).(*Env)
	return env, ok
}

// Type reports how the unit was spawned.
func (e *Env) Type() SpawnType { return e.t.typ }

// Yield lets other units run. Blocking units never yield, so for them this
// only reports cancellation.
func (e *Env) Yield(ctx context.Context) error {
	return e.sched.yield(ctx, e.t)
}

// Block runs fn, typically a blocking host call, without holding the
// scheduler.
func (e *Env) Block(ctx context.Context, fn func() error) error {
	return e.sched.block(ctx, e.t, fn)
}

// Await waits for another unit from inside a unit. Every unit gives up the
// scheduler while it awaits, blocking units included, so the awaited unit
// can run.
func (e *Env) Await(ctx context.Context, h *Handle) error {
	return e.sched.await(ctx, e.t, h)
}

// Spawn schedules a child unit on the same manager. The child is not
// canceled with its parent.
func (e *Env) Spawn(ctx context.Context, d Descriptor) (*Handle, error) {
	return e.Manager.Spawn(ctx, d)
}
