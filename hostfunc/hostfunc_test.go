package hostfunc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caffeineduck/wasirt/capability"
	"github.com/caffeineduck/wasirt/httpclient"
	"github.com/caffeineduck/wasirt/network"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/caffeineduck/wasirt/tty"
	"github.com/caffeineduck/wasirt/wasi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, opts ...wasi.Option) *wasi.PluggableRuntime {
	t.Helper()
	tasks, err := taskmanager.NewThreaded(taskmanager.ThreadedConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { tasks.Shutdown(context.Background()) })

	rt, err := wasi.New(tasks, opts...)
	require.NoError(t, err)
	return rt
}

func bound(t *testing.T, rt wasi.Runtime) *Registry {
	t.Helper()
	reg := NewRegistry()
	Bind(reg, rt)
	return reg
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", func(ctx context.Context, args map[string]any) (any, error) { return "b", nil })
	reg.Register("a", func(ctx context.Context, args map[string]any) (any, error) { return args["x"], nil })

	assert.Equal(t, []string{"a", "b"}, reg.List())

	got, err := reg.Call(context.Background(), "a", map[string]any{"x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = reg.Call(context.Background(), "missing", nil)
	assert.EqualError(t, err, "unknown function: missing")

	clone := reg.Clone()
	clone.Register("c", func(ctx context.Context, args map[string]any) (any, error) { return nil, nil })
	assert.Len(t, reg.List(), 2)
	assert.Len(t, clone.List(), 3)
}

func TestBindRegistersEveryFunction(t *testing.T) {
	reg := bound(t, newRuntime(t))
	assert.Equal(t, []string{
		"http_request", "net_resolve", "sleep", "time_now", "tty_get", "tty_reset", "tty_set",
	}, reg.List())
}

func TestTimeNow(t *testing.T) {
	reg := bound(t, newRuntime(t))
	got, err := reg.Call(context.Background(), "time_now", nil)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Unix()), got.(float64), 5)
}

func TestSleep(t *testing.T) {
	reg := bound(t, newRuntime(t))

	start := time.Now()
	_, err := reg.Call(context.Background(), "sleep", map[string]any{"ms": 20.0})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	_, err = reg.Call(context.Background(), "sleep", map[string]any{})
	assert.Error(t, err)
	_, err = reg.Call(context.Background(), "sleep", map[string]any{"ms": float64(2 * MaxSleep / time.Millisecond)})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = reg.Call(ctx, "sleep", map[string]any{"ms": 1000.0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNetResolve(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		reg := bound(t, newRuntime(t))
		_, err := reg.Call(context.Background(), "net_resolve", map[string]any{"host": "example.com"})
		assert.ErrorIs(t, err, capability.ErrUnavailable)
	})

	t.Run("local", func(t *testing.T) {
		reg := bound(t, newRuntime(t, wasi.WithNetworking(network.NewLocal())))
		got, err := reg.Call(context.Background(), "net_resolve", map[string]any{"host": "127.0.0.1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"127.0.0.1"}, got)
	})

	t.Run("missing host", func(t *testing.T) {
		reg := bound(t, newRuntime(t))
		_, err := reg.Call(context.Background(), "net_resolve", map[string]any{})
		assert.EqualError(t, err, "host required")
	})
}

func TestHTTPRequestWithoutCapability(t *testing.T) {
	reg := bound(t, newRuntime(t))
	_, err := reg.Call(context.Background(), "http_request", map[string]any{"url": "https://example.com"})
	require.ErrorIs(t, err, capability.ErrUnavailable)
	assert.Equal(t, "http client: capability unavailable", err.Error())
}

func TestHTTPRequestThroughHostClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(201)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := httpclient.NewHost(httpclient.Config{AllowedHosts: []string{"127.0.0.1"}})
	reg := bound(t, newRuntime(t, wasi.WithHTTPClient(client)))

	got, err := reg.Call(context.Background(), "http_request", map[string]any{
		"method":  "post",
		"url":     server.URL,
		"headers": map[string]any{"X-Test": "yes"},
		"body":    "payload",
	})
	require.NoError(t, err)

	resp := got.(map[string]any)
	assert.Equal(t, 201, resp["status"])
	assert.Equal(t, `{"ok": true}`, resp["body"])
	assert.Equal(t, "application/json", resp["headers"].(map[string]string)["Content-Type"])

	_, err = reg.Call(context.Background(), "http_request", map[string]any{"url": "https://evil.com"})
	assert.ErrorIs(t, err, httpclient.ErrHostNotAllowed)
}

func TestTTYFunctions(t *testing.T) {
	bridge := tty.NewDefault()
	reg := bound(t, newRuntime(t, wasi.WithTTY(bridge)))
	ctx := context.Background()

	got, err := reg.Call(ctx, "tty_get", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": false, "line_buffered": false, "line_feeds": true}, got)

	_, err = reg.Call(ctx, "tty_set", map[string]any{"echo": true, "line_buffered": true})
	require.NoError(t, err)
	assert.Equal(t, tty.State{Echo: true, LineBuffered: true}, bridge.Get())

	got, err = reg.Call(ctx, "tty_reset", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": false, "line_buffered": false, "line_feeds": false}, got)
	assert.Equal(t, tty.State{}, bridge.Get())
}

func TestTTYFunctionsWithoutCapability(t *testing.T) {
	reg := bound(t, newRuntime(t, wasi.WithTTY(nil)))
	for _, name := range []string{"tty_get", "tty_set", "tty_reset"} {
		_, err := reg.Call(context.Background(), name, nil)
		assert.ErrorIs(t, err, capability.ErrUnavailable, name)
	}
}

func TestResultsAreJSONEncodable(t *testing.T) {
	reg := bound(t, newRuntime(t))
	got, err := reg.Call(context.Background(), "tty_get", nil)
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":false,"line_buffered":false,"line_feeds":true}`, string(data))
}
