package engine

import (
	"os"

	"github.com/charmbracelet/log"
)

// Option configures an Engine at creation time.
type Option func(*config)

type config struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
	wasi             bool
	logger           *log.Logger
}

func defaultConfig() config {
	return config{
		wasi:   true,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "engine", Level: log.WarnLevel}),
	}
}

// WithDiskCache enables a persistent compilation cache shared across
// processes. Optionally provide a custom directory; otherwise
// ~/.cache/wasirt or XDG_CACHE_HOME/wasirt is used.
//
// Examples:
//
//	engine.New(engine.WithDiskCache())            // default dir
//	engine.New(engine.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) Option {
	return func(c *config) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum linear memory available to modules in
// every store of the engine. Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithoutWASI creates stores without the wasi_snapshot_preview1 host module.
func WithoutWASI() Option {
	return func(c *config) {
		c.wasi = false
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// MaxMemoryPages is the wasm32 address space limit.
const MaxMemoryPages uint32 = 65536
