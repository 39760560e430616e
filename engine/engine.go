// Package engine provisions isolated execution contexts (stores) for guest
// instantiations. An Engine owns the compilation settings and a compilation
// cache shared by all of its stores; each Store is an independent wazero
// runtime, so modules in different stores never share memory or state.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var ErrStoreClosed = errors.New("engine: store closed")

// Engine produces stores sharing one compilation configuration and cache.
type Engine struct {
	rtConfig wazero.RuntimeConfig
	cache    wazero.CompilationCache
	wasi     bool
	logger   *log.Logger

	live   atomic.Int64
	closed atomic.Bool
}

// New creates an Engine. Compiled code is cached in memory, or on disk when
// WithDiskCache is given.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.memoryLimitPages > MaxMemoryPages {
		return nil, fmt.Errorf("memory limit %d exceeds %d pages", cfg.memoryLimitPages, MaxMemoryPages)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(cache)
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	return &Engine{
		rtConfig: rtConfig,
		cache:    cache,
		wasi:     cfg.wasi,
		logger:   cfg.logger,
	}, nil
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the process-wide engine used when a runtime has no
// dedicated engine configured. It is never closed.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		e, err := New()
		if err != nil {
			// New without options cannot fail.
			panic(fmt.Sprintf("engine: default engine: %v", err))
		}
		defaultEngine = e
	})
	return defaultEngine
}

// NewStore creates a fresh isolated store. It always succeeds.
func (e *Engine) NewStore(ctx context.Context) *Store {
	rt := wazero.NewRuntimeWithConfig(ctx, e.rtConfig)
	if e.wasi {
		wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	}

	s := &Store{
		id:       uuid.NewString(),
		engine:   e,
		runtime:  rt,
		compiled: make(map[string]wazero.CompiledModule),
	}
	e.live.Add(1)
	e.logger.Debug("store provisioned", "store", s.id)
	return s
}

// LiveStores reports how many stores of this engine are not yet closed.
func (e *Engine) LiveStores() int64 {
	return e.live.Load()
}

// Close releases the compilation cache. Stores should be closed first.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n := e.live.Load(); n > 0 {
		e.logger.Warn("closing engine with live stores", "stores", n)
	}
	return e.cache.Close(ctx)
}

// Store is an isolated execution context: one wazero runtime with its own
// module namespace and linear memories.
type Store struct {
	id       string
	engine   *Engine
	runtime  wazero.Runtime
	compiled map[string]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

func (s *Store) ID() string { return s.id }

// Runtime exposes the underlying wazero runtime for host module wiring.
func (s *Store) Runtime() wazero.Runtime { return s.runtime }

// Engine returns the engine the store was created from.
func (s *Store) Engine() *Engine { return s.engine }

// Compile returns a cached compiled module, compiling if necessary. An empty
// name keys the cache by the module digest.
func (s *Store) Compile(ctx context.Context, name string, wasm []byte) (wazero.CompiledModule, error) {
	if name == "" {
		sum := sha256.Sum256(wasm)
		name = hex.EncodeToString(sum[:])
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	if compiled, ok := s.compiled[name]; ok {
		s.mu.RUnlock()
		return compiled, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if compiled, ok := s.compiled[name]; ok {
		return compiled, nil
	}

	compiled, err := s.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	s.compiled[name] = compiled
	return compiled, nil
}

// Instantiate runs a compiled module in this store.
func (s *Store) Instantiate(ctx context.Context, compiled wazero.CompiledModule, cfg wazero.ModuleConfig) (api.Module, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	return s.runtime.InstantiateModule(ctx, compiled, cfg)
}

// Close releases the store and every module instantiated in it. It is safe
// to call more than once.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.compiled = nil
	s.engine.live.Add(-1)
	s.engine.logger.Debug("store closed", "store", s.id)

	return s.runtime.Close(ctx)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "wasirt")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "wasirt")
	}
	return filepath.Join(os.TempDir(), "wasirt-cache")
}
