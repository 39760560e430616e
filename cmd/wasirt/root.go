package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/wasirt/engine"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/caffeineduck/wasirt/wasi"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wasirt",
		Short: "WebAssembly guest runtime with explicit host capabilities",
		Long: `wasirt - Run WASI guests with host capabilities granted explicitly.

Guests get no network, no outbound HTTP and only an in-memory terminal
unless flags or WASIRT_* environment variables say otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("networking", wasi.NetworkingUnsupported, "Networking provider: unsupported, local")
	flags.String("http", wasi.HTTPNone, "HTTP client provider: none, host")
	flags.StringSlice("allow-host", nil, "Allow HTTP to host (repeatable, * for any)")
	flags.Int64("http-max-body", 1024*1024, "Max HTTP body size")
	flags.String("tty", wasi.TTYDefault, "TTY provider: none, default, sys, pty")
	flags.String("memory", "256mb", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	flags.Bool("disk-cache", false, "Persist compiled modules across runs")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(), newCapsCmd(), newContainerCmd())
	return root
}

// loadConfig merges flags with WASIRT_* environment variables. Flags set on
// the command line win.
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("WASIRT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func newLogger(w io.Writer, v *viper.Viper) (*log.Logger, error) {
	level, err := log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{Prefix: "wasirt", Level: level}), nil
}

// session is a runtime built from configuration plus what it owns.
type session struct {
	rt     *wasi.PluggableRuntime
	tasks  *taskmanager.Threaded
	engine *engine.Engine
	logger *log.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	v, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), v)
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if pages := parseMemoryLimit(v.GetString("memory")); pages > 0 {
		engineOpts = append(engineOpts, engine.WithMemoryLimit(pages))
	}
	if v.GetBool("disk-cache") {
		engineOpts = append(engineOpts, engine.WithDiskCache())
	}
	eng, err := engine.New(engineOpts...)
	if err != nil {
		return nil, err
	}

	tasks, err := taskmanager.NewThreaded(taskmanager.ThreadedConfig{Logger: logger})
	if err != nil {
		eng.Close(context.Background())
		return nil, err
	}

	rt, err := wasi.NewBuilder(wasi.Config{
		Networking:       v.GetString("networking"),
		HTTPClient:       v.GetString("http"),
		TTY:              v.GetString("tty"),
		HTTPAllowedHosts: v.GetStringSlice("allow-host"),
		HTTPMaxBodySize:  v.GetInt64("http-max-body"),
		Engine:           eng,
		Logger:           logger,
	}).Build(tasks)
	if err != nil {
		tasks.Shutdown(context.Background())
		eng.Close(context.Background())
		return nil, err
	}

	return &session{rt: rt, tasks: tasks, engine: eng, logger: logger}, nil
}

func (s *session) Close() error {
	ctx := context.Background()
	if err := s.rt.Close(); err != nil {
		s.logger.Warn("close providers", "err", err)
	}
	if err := s.tasks.Shutdown(ctx); err != nil {
		return err
	}
	return s.engine.Close(ctx)
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return engine.MemoryLimit1MB
	case "16mb":
		return engine.MemoryLimit16MB
	case "64mb":
		return engine.MemoryLimit64MB
	case "256mb":
		return engine.MemoryLimit256MB
	case "1gb":
		return engine.MemoryLimit1GB
	default:
		return 0 // use default
	}
}

func parseMount(spec string) (guest, host string, ro bool, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return "", "", false, fmt.Errorf("invalid mount spec %q (expected guest:host:mode)", spec)
	}
	switch parts[2] {
	case "ro":
		ro = true
	case "rw":
	default:
		return "", "", false, fmt.Errorf("invalid mount mode %q (expected ro or rw)", parts[2])
	}
	return parts[0], parts[1], ro, nil
}
