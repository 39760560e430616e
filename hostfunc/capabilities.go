package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caffeineduck/wasirt/httpclient"
	"github.com/caffeineduck/wasirt/tty"
	"github.com/caffeineduck/wasirt/wasi"
)

// MaxSleep bounds a single sleep call.
const MaxSleep = time.Minute

// Bind registers the capability-backed host functions of rt on reg.
//
// Every function is registered whether or not rt grants the capability it
// needs; calling one whose capability is absent returns an error matching
// capability.ErrUnavailable.
func Bind(reg *Registry, rt wasi.Runtime) {
	reg.Register("time_now", timeNow)
	reg.Register("sleep", sleepFunc(rt))
	reg.Register("net_resolve", netResolve(rt))
	reg.Register("http_request", httpRequest(rt))
	reg.Register("tty_get", ttyGet(rt))
	reg.Register("tty_set", ttySet(rt))
	reg.Register("tty_reset", ttyReset(rt))
}

func timeNow(ctx context.Context, args map[string]any) (any, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

func sleepFunc(rt wasi.Runtime) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		ms, ok := args["ms"].(float64)
		if !ok || ms < 0 {
			return nil, errors.New("ms required")
		}
		d := time.Duration(ms * float64(time.Millisecond))
		if d > MaxSleep {
			return nil, fmt.Errorf("sleep exceeds %v", MaxSleep)
		}
		if err := rt.TaskManager().Sleep(ctx, d); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func netResolve(rt wasi.Runtime) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		host, ok := args["host"].(string)
		if !ok || host == "" {
			return nil, errors.New("host required")
		}

		addrs, err := rt.Networking().ResolveHost(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(addrs))
		for i, a := range addrs {
			out[i] = a.String()
		}
		return out, nil
	}
}

func httpRequest(rt wasi.Runtime) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		client, err := wasi.RequireHTTPClient(rt)
		if err != nil {
			return nil, err
		}

		req := &httpclient.Request{}
		req.Method, _ = args["method"].(string)
		req.URL, _ = args["url"].(string)
		if body, ok := args["body"].(string); ok {
			req.Body = []byte(body)
		}
		if headers, ok := args["headers"].(map[string]any); ok {
			req.Headers = make(map[string]string, len(headers))
			for k, v := range headers {
				if s, ok := v.(string); ok {
					req.Headers[k] = s
				}
			}
		}

		resp, err := client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status":  resp.Status,
			"headers": resp.Headers,
			"body":    string(resp.Body),
		}, nil
	}
}

func ttyGet(rt wasi.Runtime) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		b, err := wasi.RequireTTY(rt)
		if err != nil {
			return nil, err
		}
		return stateMap(b.Get()), nil
	}
}

// ttySet replaces the whole state; missing flags are false.
func ttySet(rt wasi.Runtime) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		b, err := wasi.RequireTTY(rt)
		if err != nil {
			return nil, err
		}
		var s tty.State
		s.Echo, _ = args["echo"].(bool)
		s.LineBuffered, _ = args["line_buffered"].(bool)
		s.LineFeeds, _ = args["line_feeds"].(bool)
		b.Set(s)
		return stateMap(s), nil
	}
}

func ttyReset(rt wasi.Runtime) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		b, err := wasi.RequireTTY(rt)
		if err != nil {
			return nil, err
		}
		b.Reset()
		return stateMap(b.Get()), nil
	}
}

func stateMap(s tty.State) map[string]any {
	return map[string]any{
		"echo":          s.Echo,
		"line_buffered": s.LineBuffered,
		"line_feeds":    s.LineFeeds,
	}
}
