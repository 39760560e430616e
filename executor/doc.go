// Package executor runs WASI command modules on a [wasi.Runtime].
//
// Each run is a dedicated unit on the runtime's task manager with its own
// store, so guests never share memory. Output is captured, and guests reach
// host capabilities through the stderr call protocol handled by a
// [hostfunc.Registry].
//
// # Basic Usage
//
//	rt, err := wasi.NewDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	exec, err := executor.New(rt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result := exec.Run(ctx, wasm, executor.WithTimeout(5*time.Second))
//	fmt.Println(result.Output, result.ExitCode)
//
// # Host Calls
//
// A guest writes \x00WASIRT:{"fn":"tty_get","args":{}}\x00 to stderr and
// reads one JSON line from stdin: {"data":...} or {"error":"..."}. Calls
// that carry an "id" are answered asynchronously, in completion order, with
// the same id.
//
// # Timeouts
//
// The task manager imposes no timeouts. Run races the unit's handle against
// its context and releases the unit when the context ends first.
package executor
