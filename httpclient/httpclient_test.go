package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBlockedWhenNoHosts(t *testing.T) {
	_, err := NewHost(Config{}).Do(context.Background(), &Request{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrHostNotAllowed)
}

func TestHostBlockedForUnallowedHost(t *testing.T) {
	c := NewHost(Config{AllowedHosts: []string{"allowed.com"}})
	_, err := c.Do(context.Background(), &Request{URL: "https://evil.com"})
	assert.EqualError(t, err, "host not allowed: evil.com")
}

func TestHostBypassAttempts(t *testing.T) {
	c := NewHost(Config{AllowedHosts: []string{"allowed.com"}})

	for _, u := range []string{
		"https://evil.com/?x=allowed.com",
		"https://allowed.com.evil.com/",
		"https://notallowed.com/",
	} {
		_, err := c.Do(context.Background(), &Request{URL: u})
		assert.ErrorIs(t, err, ErrHostNotAllowed, u)
	}
}

func TestHostRejectsBadInput(t *testing.T) {
	c := NewHost(Config{AllowedHosts: []string{AnyHost}, MaxURLLength: 32, MaxBodySize: 4})
	ctx := context.Background()

	_, err := c.Do(ctx, &Request{Method: "TRACE", URL: "https://a.com"})
	assert.ErrorIs(t, err, ErrMethodNotAllowed)

	_, err = c.Do(ctx, &Request{})
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = c.Do(ctx, &Request{URL: "ftp://a.com/file"})
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = c.Do(ctx, &Request{URL: "https://a.com/" + strings.Repeat("x", 64)})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = c.Do(ctx, &Request{Method: "POST", URL: "https://a.com", Body: []byte("too long")})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestHostRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusCreated)
		w.Write(append([]byte("echo:"), body...))
	}))
	defer server.Close()

	c := NewHost(Config{AllowedHosts: []string{"127.0.0.1"}})
	resp, err := c.Do(context.Background(), &Request{
		Method:  "post",
		URL:     server.URL,
		Headers: map[string]string{"X-Token": "abc"},
		Body:    []byte("ping"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "echo:ping", string(resp.Body))
	assert.Equal(t, "POST", resp.Headers["X-Method"])
	assert.Equal(t, "abc", resp.Headers["X-Token"])
}

func TestHostTruncatesLargeResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer server.Close()

	c := NewHost(Config{AllowedHosts: []string{AnyHost}, MaxBodySize: 10})
	resp, err := c.Do(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)
	assert.Len(t, resp.Body, 10)
}

func TestHostRedirectsHonorAllowlist(t *testing.T) {
	var hitForbidden bool
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitForbidden = true
		w.Write([]byte("secret"))
	}))
	defer forbidden.Close()
	forbiddenURL := strings.Replace(forbidden.URL, "127.0.0.1", "localhost", 1)

	allowed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/away":
			http.Redirect(w, r, forbiddenURL, http.StatusFound)
		case "/scheme":
			http.Redirect(w, r, "ftp://127.0.0.1/file", http.StatusFound)
		case "/home":
			http.Redirect(w, r, "/done", http.StatusFound)
		default:
			w.Write([]byte("done"))
		}
	}))
	defer allowed.Close()

	c := NewHost(Config{AllowedHosts: []string{"127.0.0.1"}})

	_, err := c.Do(context.Background(), &Request{URL: allowed.URL + "/away"})
	assert.ErrorIs(t, err, ErrHostNotAllowed)
	assert.False(t, hitForbidden, "redirect target outside the allowlist was contacted")

	_, err = c.Do(context.Background(), &Request{URL: allowed.URL + "/scheme"})
	assert.ErrorIs(t, err, ErrInvalidURL)

	resp, err := c.Do(context.Background(), &Request{URL: allowed.URL + "/home"})
	require.NoError(t, err)
	assert.Equal(t, "done", string(resp.Body))
}
