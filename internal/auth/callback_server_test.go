package auth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeRedirectURI reserves a free loopback port and returns a redirect URI
// on it, so parallel tests never fight over a fixed port.
func freeRedirectURI(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return fmt.Sprintf("http://127.0.0.1:%d/callback", port)
}

func TestNewCallbackServer_InvalidRedirectURI(t *testing.T) {
	_, err := NewCallbackServer("127.0.0.1:8888")
	assert.Error(t, err, "redirect URI without scheme/path must be rejected")
}

func TestCallbackServer_SuccessCallback(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop()

	resp, err := http.Get(redirectURI + "?code=abc123&state=xyz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Success")

	result, err := server.WaitForCallback(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.Code)
	assert.Equal(t, "xyz", result.State)
	assert.False(t, result.IsError())
}

func TestCallbackServer_ProviderDenial(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop()

	resp, err := http.Get(redirectURI + "?error=access_denied&error_description=User+declined")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Contains(t, string(body), "Authentication Failed")

	result, err := server.WaitForCallback(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, result.IsError())
	assert.Equal(t, "access_denied", result.Error)
	assert.Equal(t, "User declined", result.ErrorDescription)
}

func TestCallbackServer_SecondRequestRejected(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	defer server.Stop()

	resp1, err := http.Get(redirectURI + "?code=first&state=s")
	require.NoError(t, err)
	resp1.Body.Close()
	require.Equal(t, http.StatusOK, resp1.StatusCode)

	resp2, err := http.Get(redirectURI + "?code=second&state=s")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	// Only the first request's result is delivered.
	result, err := server.WaitForCallback(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", result.Code)
}

func TestCallbackServer_Timeout(t *testing.T) {
	redirectURI := freeRedirectURI(t)
	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))

	start := time.Now()
	_, err = server.WaitForCallback(ctx, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.Less(t, time.Since(start), time.Second, "timeout must not hang")
}

func TestCallbackServer_BindFailure(t *testing.T) {
	redirectURI := freeRedirectURI(t)

	// Occupy the port to simulate a stale previous instance.
	u := strings.TrimPrefix(redirectURI, "http://")
	addr := u[:strings.Index(u, "/")]
	blocker, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer blocker.Close()

	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err = server.Start(ctx)
	assert.ErrorIs(t, err, ErrBindFailed)
}

func TestCallbackServer_PortReleasedAfterStop(t *testing.T) {
	redirectURI := freeRedirectURI(t)

	for i := 0; i < 3; i++ {
		server, err := NewCallbackServer(redirectURI)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, server.Start(ctx), "iteration %d could not rebind", i)
		server.Stop()
		cancel()
	}
}

func TestCallbackServer_PortReleasedAfterTimeout(t *testing.T) {
	redirectURI := freeRedirectURI(t)

	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))

	_, err = server.WaitForCallback(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrLoginTimeout)

	// A fresh login attempt must be able to bind the same port.
	next, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)
	require.NoError(t, next.Start(ctx))
	next.Stop()
}

func TestCallbackServer_ContextCancellationStopsServer(t *testing.T) {
	redirectURI := freeRedirectURI(t)

	server, err := NewCallbackServer(redirectURI)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, server.Start(ctx))

	cancel()

	// Shutdown is asynchronous; poll briefly for the port to come free.
	deadline := time.Now().Add(2 * time.Second)
	for {
		next, err := NewCallbackServer(redirectURI)
		require.NoError(t, err)
		if err := next.Start(context.Background()); err == nil {
			next.Stop()
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("port was not released after context cancellation")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
