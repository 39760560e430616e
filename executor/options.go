package executor

import (
	"time"

	"github.com/caffeineduck/wasirt/hostfunc"
	"github.com/charmbracelet/log"
)

// Option configures a single run.
type Option func(*runConfig)

type runConfig struct {
	name        string
	timeout     time.Duration
	args        []string
	env         map[string]string
	stdin       []byte
	mounts      []Mount
	cooperative bool
}

func defaultRunConfig(timeout time.Duration) runConfig {
	return runConfig{
		timeout: timeout,
		args:    []string{"guest"},
	}
}

// WithName sets the key the compiled module is cached under in the run's
// store. Without it the module digest is used.
func WithName(name string) Option {
	return func(c *runConfig) {
		c.name = name
	}
}

// WithTimeout sets the maximum execution time. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithArgs sets the guest's argv, including argv[0].
func WithArgs(args ...string) Option {
	return func(c *runConfig) {
		c.args = args
	}
}

// WithEnv adds an environment variable visible to the guest.
func WithEnv(key, value string) Option {
	return func(c *runConfig) {
		if c.env == nil {
			c.env = make(map[string]string)
		}
		c.env[key] = value
	}
}

// WithStdin sets data the guest reads before any host call responses.
func WithStdin(data []byte) Option {
	return func(c *runConfig) {
		c.stdin = data
	}
}

type MountMode int

const (
	MountReadOnly MountMode = iota
	MountReadWrite
)

// Mount exposes a host directory to the guest.
type Mount struct {
	GuestPath string
	HostPath  string
	Mode      MountMode
}

// WithMount adds a directory mount. The guest path is what the guest sees;
// the host path is the actual location.
//
//	executor.WithMount("/data", "./input", executor.MountReadOnly)
//	executor.WithMount("/output", "./results", executor.MountReadWrite)
func WithMount(guestPath, hostPath string, mode MountMode) Option {
	return func(c *runConfig) {
		c.mounts = append(c.mounts, Mount{GuestPath: guestPath, HostPath: hostPath, Mode: mode})
	}
}

// WithCooperative runs the guest as a cooperative unit. Guests on a
// taskmanager.Cooperative always are, so that stdin reads and host calls
// suspend the guest instead of holding the scheduler.
func WithCooperative() Option {
	return func(c *runConfig) {
		c.cooperative = true
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	registry *hostfunc.Registry
	timeout  time.Duration
	logger   *log.Logger
}

const DefaultTimeout = 30 * time.Second

func defaultExecutorConfig() executorConfig {
	return executorConfig{timeout: DefaultTimeout}
}

// WithRegistry adds host functions on top of the capability-backed ones.
// Functions in reg win over built-ins of the same name.
func WithRegistry(reg *hostfunc.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.registry = reg
	}
}

// WithDefaultTimeout sets the timeout of runs that do not set their own.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.timeout = d
	}
}

func WithLogger(l *log.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = l
	}
}
