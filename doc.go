// Package wasirt runs WebAssembly guests against host capabilities that are
// granted explicitly.
//
// # Overview
//
// A guest sees networking, outbound HTTP, a terminal and task scheduling
// only through a [wasi.Runtime]. The default runtime grants no network,
// no HTTP client and an in-memory terminal; anything more must be plugged
// in.
//
// # Basic Usage
//
//	rt, _ := wasi.NewDefault()
//	exec, _ := executor.New(rt)
//
//	result := exec.Run(ctx, wasm, executor.WithArgs("app", "--verbose"))
//	fmt.Println(result.Output)
//
// # Enabling Capabilities
//
//	// Host networking and an allowlisted HTTP client
//	rt, _ := wasi.NewBuilder(wasi.Config{
//	    Networking:       wasi.NetworkingLocal,
//	    HTTPClient:       wasi.HTTPHost,
//	    HTTPAllowedHosts: []string{"api.example.com"},
//	}).Build(tasks)
//
//	// Filesystem access
//	result := exec.Run(ctx, wasm,
//	    executor.WithMount("/data", "./input", executor.MountReadOnly))
//
// # Scheduling
//
// Guests and host helpers run as units on a [taskmanager.Manager]. The
// threaded manager gives each unit a goroutine; the cooperative manager runs
// one unit at a time on a single control loop.
//
// See the [wasi], [taskmanager], [executor], [tty], [network], [httpclient]
// and [container] packages for detailed API documentation.
package wasirt
