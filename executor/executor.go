package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/caffeineduck/wasirt/hostfunc"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/caffeineduck/wasirt/wasi"
	"github.com/charmbracelet/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
	"golang.org/x/sync/errgroup"
)

// Result holds the output and metadata from a guest run.
type Result struct {
	// Output is stdout followed by stderr with protocol messages removed.
	Output string
	// ExitCode is the guest's proc_exit code, or -1 when the run was cut
	// short by a timeout or cancellation.
	ExitCode int
	Duration time.Duration
	Error    error
}

// Executor runs WASI command modules as units of a runtime's task manager.
type Executor struct {
	rt       wasi.Runtime
	registry *hostfunc.Registry
	timeout  time.Duration
	logger   *log.Logger
}

// New creates an Executor for rt. Guests can call the capability-backed
// host functions of rt plus any given through WithRegistry.
func New(rt wasi.Runtime, opts ...ExecutorOption) (*Executor, error) {
	if rt == nil {
		return nil, errors.New("executor: runtime is required")
	}

	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "executor", Level: log.WarnLevel})
	}

	registry := hostfunc.NewRegistry()
	hostfunc.Bind(registry, rt)
	if cfg.registry != nil {
		for _, name := range cfg.registry.List() {
			fn, _ := cfg.registry.Get(name)
			registry.Register(name, fn)
		}
	}

	return &Executor{
		rt:       rt,
		registry: registry,
		timeout:  cfg.timeout,
		logger:   cfg.logger,
	}, nil
}

// Registry returns the host functions visible to guests.
func (e *Executor) Registry() *hostfunc.Registry { return e.registry }

// Runtime returns the runtime guests run on.
func (e *Executor) Runtime() wasi.Runtime { return e.rt }

// guestIO is filled by the unit and read once its handle resolves.
type guestIO struct {
	stdout   bytes.Buffer
	protocol *protocolHandler
}

func (g *guestIO) output() string {
	out := g.stdout.String()
	if g.protocol != nil {
		out += g.protocol.Stderr()
	}
	return out
}

// Run executes a WASI command module in a fresh store. The run is bounded by
// ctx and the configured timeout; when either ends first the guest is
// released and Run waits for it to be torn down.
func (e *Executor) Run(ctx context.Context, wasm []byte, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig(e.timeout)
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	typ := taskmanager.DedicatedType(e.rt.TaskManager())
	if cfg.cooperative {
		typ = taskmanager.CooperativeDedicated
	}

	gio := &guestIO{}
	h, err := wasi.Spawn(ctx, e.rt, taskmanager.Descriptor{
		Name: "guest",
		Type: typ,
		Run: func(ctx context.Context, env *taskmanager.Env) error {
			return e.runGuest(ctx, env, wasm, cfg, gio)
		},
	})
	if err != nil {
		return Result{ExitCode: -1, Error: err, Duration: time.Since(start)}
	}
	defer h.Release()

	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Release()
		<-h.Done()
	}

	result := Result{
		Output:   gio.output(),
		Duration: time.Since(start),
	}

	err = h.Err()
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = int(exitErr.ExitCode())
		if result.ExitCode == 0 {
			err = nil
		}
	}

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.ExitCode = -1
			result.Error = fmt.Errorf("timeout after %v", cfg.timeout)
		case ctx.Err() != nil:
			result.ExitCode = -1
			result.Error = fmt.Errorf("execution canceled: %w", ctx.Err())
		default:
			result.Error = fmt.Errorf("execution failed: %w", err)
		}
	}

	e.logger.Debug("run finished", "task", h.ID(), "exit", result.ExitCode, "duration", result.Duration, "err", result.Error)
	return result
}

func (e *Executor) runGuest(ctx context.Context, env *taskmanager.Env, wasm []byte, cfg runConfig, gio *guestIO) error {
	compiled, err := env.Store.Compile(ctx, cfg.name, wasm)
	if err != nil {
		return err
	}

	stdinReader, stdinWriter := io.Pipe()
	// A guest blocked reading stdin must not outlive its context.
	stop := context.AfterFunc(ctx, func() { stdinWriter.CloseWithError(ctx.Err()) })
	defer stop()

	protocol := newProtocolHandler(ctx, env, e.registry, stdinWriter, e.logger)
	gio.protocol = protocol

	var stdin io.Reader = stdinReader
	if len(cfg.stdin) > 0 {
		stdin = io.MultiReader(bytes.NewReader(cfg.stdin), stdinReader)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&gio.stdout).
		WithStderr(protocol).
		WithStdin(&suspendingReader{ctx: ctx, env: env, r: stdin}).
		WithArgs(cfg.args...).
		WithSysWalltime().
		WithSysNanotime().
		WithName("")

	for _, k := range slices.Sorted(maps.Keys(cfg.env)) {
		moduleConfig = moduleConfig.WithEnv(k, cfg.env[k])
	}

	if len(cfg.mounts) > 0 {
		fsConfig := wazero.NewFSConfig()
		for _, m := range cfg.mounts {
			if m.Mode == MountReadOnly {
				fsConfig = fsConfig.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
			} else {
				fsConfig = fsConfig.WithDirMount(m.HostPath, m.GuestPath)
			}
		}
		moduleConfig = moduleConfig.WithFSConfig(fsConfig)
	}

	_, err = env.Store.Instantiate(ctx, compiled, moduleConfig)
	protocol.drain()
	stdinWriter.Close()
	return err
}

// suspendingReader lets the scheduler run other units while the guest
// waits on stdin.
type suspendingReader struct {
	ctx context.Context
	env *taskmanager.Env
	r   io.Reader
}

func (s *suspendingReader) Read(p []byte) (n int, err error) {
	s.env.Block(context.WithoutCancel(s.ctx), func() error {
		n, err = s.r.Read(p)
		return nil
	})
	return n, err
}

// Job is one module of a RunAll batch.
type Job struct {
	Name    string
	Wasm    []byte
	Options []Option
}

// RunAll runs jobs concurrently, at most Parallelism of the task manager at
// a time, and returns their results in order.
func (e *Executor) RunAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(1, e.rt.TaskManager().Parallelism()))
	for i, job := range jobs {
		g.Go(func() error {
			opts := append([]Option{WithName(job.Name)}, job.Options...)
			results[i] = e.Run(ctx, job.Wasm, opts...)
			return nil
		})
	}
	g.Wait()

	return results
}
