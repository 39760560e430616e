package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/wasirt/container"
	"github.com/caffeineduck/wasirt/executor"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run FILE [-- ARGS...]",
		Short: "Run a WASI module or package",
		Long: `Run a WASI command module, or the entrypoint of a wasirt package.

  wasirt run hello.wasm
  wasirt run --networking local app.wasirt -- --port 8080`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Duration("timeout", executor.DefaultTimeout, "Execution timeout (0 disables)")
	cmd.Flags().StringSlice("env", nil, "Guest environment variable KEY=VALUE (repeatable)")
	cmd.Flags().StringSlice("mount", nil, "Mount directory guest:host:mode, mode ro or rw (repeatable)")
	return cmd
}

var zipMagic = []byte("PK\x03\x04")

func runRun(cmd *cobra.Command, args []string) error {
	file := args[0]
	wasm, guestArgs, err := loadModule(file)
	if err != nil {
		return err
	}
	guestArgs = append(guestArgs, args[1:]...)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	envs, _ := cmd.Flags().GetStringSlice("env")
	mounts, _ := cmd.Flags().GetStringSlice("mount")

	opts := []executor.Option{
		executor.WithName(file),
		executor.WithTimeout(timeout),
		executor.WithArgs(append([]string{file}, guestArgs...)...),
	}
	for _, kv := range envs {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid env %q (expected KEY=VALUE)", kv)
		}
		opts = append(opts, executor.WithEnv(k, val))
	}
	for _, spec := range mounts {
		guest, host, ro, err := parseMount(spec)
		if err != nil {
			return err
		}
		mode := executor.MountReadWrite
		if ro {
			mode = executor.MountReadOnly
		}
		opts = append(opts, executor.WithMount(guest, host, mode))
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	exec, err := executor.New(s.rt, executor.WithLogger(s.logger))
	if err != nil {
		return err
	}

	result := exec.Run(cmd.Context(), wasm, opts...)
	fmt.Fprint(cmd.OutOrStdout(), result.Output)
	s.logger.Debug("run", "file", file, "duration", result.Duration.Round(time.Millisecond), "exit", result.ExitCode)

	if result.ExitCode > 0 {
		return &exitError{code: result.ExitCode}
	}
	return result.Error
}

// loadModule reads a module, or the entrypoint atom of a package.
func loadModule(file string) ([]byte, []string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading file: %w", err)
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return data, nil, nil
	}

	pkg, err := container.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open package at '%s': %w", file, err)
	}
	defer pkg.Close()

	atom, args, err := pkg.Entrypoint()
	if err != nil {
		return nil, nil, err
	}
	wasm, err := pkg.Atom(atom)
	if err != nil {
		return nil, nil, err
	}
	return wasm, args, nil
}
