// Package hostfunc exposes runtime capabilities to guest code as named host
// functions.
//
// Guest code has no implicit access to host resources. A [Registry] holds
// the functions a guest may call, and [Bind] registers the ones backed by a
// [wasi.Runtime]:
//
//	reg := hostfunc.NewRegistry()
//	hostfunc.Bind(reg, rt)
//	reg.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// The bound functions are time_now, sleep, net_resolve, http_request,
// tty_get, tty_set and tty_reset. A function whose capability the runtime
// does not grant stays callable and fails with an error matching
// [capability.ErrUnavailable], so the guest sees an explicit refusal.
package hostfunc
