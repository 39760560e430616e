package wasi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caffeineduck/wasirt/engine"
	"github.com/caffeineduck/wasirt/httpclient"
	"github.com/caffeineduck/wasirt/network"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/caffeineduck/wasirt/tty"
	"github.com/charmbracelet/log"
)

// PluggableRuntime is a Runtime assembled from independently replaceable
// providers.
//
// The Set methods replace a provider outright. They are not safe for
// concurrent use and must all happen before the runtime is handed to any
// session.
type PluggableRuntime struct {
	tasks      taskmanager.Manager
	networking network.Networking
	http       httpclient.Client
	tty        tty.Bridge
	engine     *engine.Engine
	logger     *log.Logger
}

var _ Runtime = (*PluggableRuntime)(nil)

type Option func(*PluggableRuntime)

func WithNetworking(n network.Networking) Option {
	return func(r *PluggableRuntime) { r.networking = n }
}

func WithHTTPClient(c httpclient.Client) Option {
	return func(r *PluggableRuntime) { r.http = c }
}

// WithTTY sets the TTY bridge. A nil bridge leaves the runtime without one.
func WithTTY(b tty.Bridge) Option {
	return func(r *PluggableRuntime) { r.tty = b }
}

func WithEngine(e *engine.Engine) Option {
	return func(r *PluggableRuntime) { r.engine = e }
}

func WithLogger(l *log.Logger) Option {
	return func(r *PluggableRuntime) { r.logger = l }
}

// New assembles a runtime around tasks, which is required. Unless options
// say otherwise networking is unsupported, there is no HTTP client, the TTY
// is an in-memory bridge and stores come from the default engine.
func New(tasks taskmanager.Manager, opts ...Option) (*PluggableRuntime, error) {
	if !taskmanager.Usable(tasks) {
		return nil, fmt.Errorf("%w: task manager is required", ErrConstructionFailure)
	}

	r := &PluggableRuntime{
		tasks:      tasks,
		networking: network.Unsupported{},
		tty:        tty.NewDefault(),
		logger:     log.NewWithOptions(os.Stderr, log.Options{Prefix: "wasi", Level: log.WarnLevel}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.networking == nil {
		r.networking = network.Unsupported{}
	}

	r.logger.Debug("runtime assembled", "capabilities", Capabilities(r))
	return r, nil
}

func (r *PluggableRuntime) Networking() network.Networking { return r.networking }

func (r *PluggableRuntime) TaskManager() taskmanager.Manager { return r.tasks }

func (r *PluggableRuntime) NewStore(ctx context.Context) *engine.Store {
	return NewStoreFor(ctx, r)
}

func (r *PluggableRuntime) HTTPClient() (httpclient.Client, bool) {
	return r.http, r.http != nil
}

func (r *PluggableRuntime) TTY() (tty.Bridge, bool) {
	return r.tty, r.tty != nil
}

func (r *PluggableRuntime) Engine() (*engine.Engine, bool) {
	return r.engine, r.engine != nil
}

// SetNetworking replaces the networking provider. nil selects
// network.Unsupported.
func (r *PluggableRuntime) SetNetworking(n network.Networking) {
	if n == nil {
		n = network.Unsupported{}
	}
	r.networking = n
}

// SetHTTPClient replaces the HTTP client. nil removes the capability.
func (r *PluggableRuntime) SetHTTPClient(c httpclient.Client) { r.http = c }

// SetTTY replaces the TTY bridge. nil removes the capability.
func (r *PluggableRuntime) SetTTY(b tty.Bridge) { r.tty = b }

// SetEngine replaces the engine. nil selects the default engine.
func (r *PluggableRuntime) SetEngine(e *engine.Engine) { r.engine = e }

// Close releases providers that hold OS resources, such as a pseudo
// console. The task manager and engine are owned by the caller.
func (r *PluggableRuntime) Close() error {
	var errs []error
	for _, p := range []any{r.networking, r.http, r.tty} {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
