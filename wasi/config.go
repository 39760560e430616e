package wasi

import (
	"fmt"
	"os"
	"time"

	"github.com/caffeineduck/wasirt/engine"
	"github.com/caffeineduck/wasirt/network"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
)

// Config selects providers by name. Empty names select the conservative
// defaults: unsupported networking, no HTTP client, in-memory TTY.
type Config struct {
	Networking string `validate:"omitempty,printascii"`
	HTTPClient string `validate:"omitempty,printascii"`
	TTY        string `validate:"omitempty,printascii"`

	HTTPAllowedHosts []string      `validate:"dive,required"`
	HTTPMaxBodySize  int64         `validate:"gte=0"`
	HTTPTimeout      time.Duration `validate:"gte=0"`
	DialTimeout      time.Duration `validate:"gte=0"`

	// Engine provisions stores; nil uses the default engine.
	Engine *engine.Engine `validate:"-"`
	Logger *log.Logger    `validate:"-"`
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.NewWithOptions(os.Stderr, log.Options{Prefix: "wasi", Level: log.WarnLevel})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Builder resolves the providers named by a Config into a runtime.
type Builder struct {
	cfg      Config
	registry *ProviderRegistry
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, registry: DefaultRegistry()}
}

func (b *Builder) WithRegistry(r *ProviderRegistry) *Builder {
	b.registry = r
	return b
}

// Build validates the config, resolves each provider and assembles a
// runtime around tasks. Every failure matches ErrConstructionFailure.
func (b *Builder) Build(tasks taskmanager.Manager) (*PluggableRuntime, error) {
	if !taskmanager.Usable(tasks) {
		return nil, fmt.Errorf("%w: task manager is required", ErrConstructionFailure)
	}
	cfg := b.cfg
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstructionFailure, err)
	}
	if cfg.Networking == "" {
		cfg.Networking = NetworkingUnsupported
	}
	if cfg.HTTPClient == "" {
		cfg.HTTPClient = HTTPNone
	}
	if cfg.TTY == "" {
		cfg.TTY = TTYDefault
	}
	logger := cfg.logger()

	nf, err := b.registry.networkingFactory(cfg.Networking)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstructionFailure, err)
	}
	hf, err := b.registry.httpFactory(cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstructionFailure, err)
	}
	tf, err := b.registry.ttyFactory(cfg.TTY)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstructionFailure, err)
	}

	networking, err := nf(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: networking %s: %w", ErrConstructionFailure, cfg.Networking, err)
	}
	client, err := hf(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: http %s: %w", ErrConstructionFailure, cfg.HTTPClient, err)
	}
	bridge, err := tf(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: tty %s: %w", ErrConstructionFailure, cfg.TTY, err)
	}

	logger.Debug("providers resolved", "networking", cfg.Networking, "http", cfg.HTTPClient, "tty", cfg.TTY)

	opts := []Option{
		WithNetworking(networking),
		WithHTTPClient(client),
		WithTTY(bridge),
		WithEngine(cfg.Engine),
		WithLogger(logger),
	}
	return New(tasks, opts...)
}

// Report summarizes the capabilities of a runtime.
type Report struct {
	Networking  string `json:"networking"`
	HTTP        bool   `json:"http"`
	TTY         bool   `json:"tty"`
	Engine      bool   `json:"engine"`
	Parallelism int    `json:"parallelism"`
}

// Capabilities reports which capabilities rt grants.
func Capabilities(rt Runtime) Report {
	var rep Report
	switch rt.Networking().(type) {
	case network.Unsupported, *network.Unsupported:
		rep.Networking = NetworkingUnsupported
	case *network.Local:
		rep.Networking = NetworkingLocal
	default:
		rep.Networking = "custom"
	}
	_, rep.HTTP = rt.HTTPClient()
	_, rep.TTY = rt.TTY()
	_, rep.Engine = rt.Engine()
	rep.Parallelism = rt.TaskManager().Parallelism()
	return rep
}
