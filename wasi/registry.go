package wasi

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/caffeineduck/wasirt/httpclient"
	"github.com/caffeineduck/wasirt/network"
	"github.com/caffeineduck/wasirt/tty"
)

// Built-in provider names.
const (
	NetworkingUnsupported = "unsupported"
	NetworkingLocal       = "local"

	HTTPNone = "none"
	HTTPHost = "host"

	TTYNone    = "none"
	TTYDefault = "default"
	TTYSys     = "sys"
	TTYPty     = "pty"
)

// Factories build one provider from a Config. An HTTP or TTY factory may
// return nil to leave the capability absent.
type (
	NetworkingFactory func(cfg Config) (network.Networking, error)
	HTTPFactory       func(cfg Config) (httpclient.Client, error)
	TTYFactory        func(cfg Config) (tty.Bridge, error)
)

// ProviderRegistry maps provider names to factories. Builders resolve every
// provider once, when the runtime is built.
type ProviderRegistry struct {
	mu         sync.RWMutex
	networking map[string]NetworkingFactory
	http       map[string]HTTPFactory
	tty        map[string]TTYFactory
}

// NewProviderRegistry returns a registry holding the built-in providers.
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{
		networking: make(map[string]NetworkingFactory),
		http:       make(map[string]HTTPFactory),
		tty:        make(map[string]TTYFactory),
	}

	r.RegisterNetworking(NetworkingUnsupported, func(Config) (network.Networking, error) {
		return network.Unsupported{}, nil
	})
	r.RegisterNetworking(NetworkingLocal, func(cfg Config) (network.Networking, error) {
		var opts []network.LocalOption
		if cfg.DialTimeout > 0 {
			opts = append(opts, network.WithDialTimeout(cfg.DialTimeout))
		}
		return network.NewLocal(opts...), nil
	})

	r.RegisterHTTP(HTTPNone, func(Config) (httpclient.Client, error) { return nil, nil })
	r.RegisterHTTP(HTTPHost, func(cfg Config) (httpclient.Client, error) {
		return httpclient.NewHost(httpclient.Config{
			AllowedHosts:   cfg.HTTPAllowedHosts,
			MaxBodySize:    cfg.HTTPMaxBodySize,
			RequestTimeout: cfg.HTTPTimeout,
		}), nil
	})

	r.RegisterTTY(TTYNone, func(Config) (tty.Bridge, error) { return nil, nil })
	r.RegisterTTY(TTYDefault, func(Config) (tty.Bridge, error) { return tty.NewDefault(), nil })
	r.RegisterTTY(TTYSys, func(cfg Config) (tty.Bridge, error) {
		return tty.NewSys(os.Stdin, tty.WithLogger(cfg.logger()))
	})
	r.RegisterTTY(TTYPty, func(cfg Config) (tty.Bridge, error) {
		return tty.OpenPseudoConsole(tty.WithLogger(cfg.logger()))
	})

	return r
}

var (
	defaultRegistry     *ProviderRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry is the registry used by builders without their own.
func DefaultRegistry() *ProviderRegistry {
	defaultRegistryOnce.Do(func() { defaultRegistry = NewProviderRegistry() })
	return defaultRegistry
}

func (r *ProviderRegistry) RegisterNetworking(name string, f NetworkingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networking[name] = f
}

func (r *ProviderRegistry) RegisterHTTP(name string, f HTTPFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.http[name] = f
}

func (r *ProviderRegistry) RegisterTTY(name string, f TTYFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tty[name] = f
}

func (r *ProviderRegistry) networkingFactory(name string) (NetworkingFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.networking[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown networking provider %q", name)
}

func (r *ProviderRegistry) httpFactory(name string) (HTTPFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.http[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown http provider %q", name)
}

func (r *ProviderRegistry) ttyFactory(name string) (TTYFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.tty[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown tty provider %q", name)
}

// Names lists registered provider names per capability, sorted.
func (r *ProviderRegistry) Names() (networking, http, tty []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.networking), sortedKeys(r.http), sortedKeys(r.tty)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
