//go:build integration
// +build integration

package integration

import (
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebobos/LambdaTerminal/internal/config"
	"github.com/glebobos/LambdaTerminal/internal/server"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return port
}

// startServer boots a full server on a loopback port with a
// filesystem-backed store and returns its base URL.
func startServer(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Session.Backend = "fs"
	cfg.Session.Dir = t.TempDir()
	cfg.Logging.Level = "error"

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)

	go srv.Run()
	t.Cleanup(func() { srv.Close() })

	return "http://127.0.0.1:" + cfg.Server.Port
}

func newClient(t *testing.T, baseURL string) *resty.Client {
	t.Helper()
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	require.Eventually(t, func() bool {
		resp, err := client.R().Get("/health")
		return err == nil && resp.StatusCode() == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond, "server never became healthy")

	return client
}

func runCommand(t *testing.T, client *resty.Client, identity, command string) string {
	t.Helper()
	resp, err := client.R().
		SetHeader("X-Forwarded-For", identity).
		SetQueryParam("command", command).
		Get("/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Contains(t, resp.Header().Get("Content-Type"), "text/html")
	return resp.String()
}

func TestTerminalEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	baseURL := startServer(t)
	client := newClient(t, baseURL)

	t.Run("Echo Then Clear Then False", func(t *testing.T) {
		page := runCommand(t, client, "203.0.113.7", "echo marker-e2e")
		assert.Contains(t, page, "marker-e2e")

		page = runCommand(t, client, "203.0.113.7", "clear")
		assert.NotContains(t, page, "marker-e2e")

		page = runCommand(t, client, "203.0.113.7", "false")
		assert.Contains(t, page, "<form", "failed commands still render the page")
	})

	t.Run("Working Directory Persists", func(t *testing.T) {
		dir := t.TempDir()

		runCommand(t, client, "203.0.113.8", "cd "+dir)
		page := runCommand(t, client, "203.0.113.8", "pwd")
		assert.Contains(t, page, dir)
	})

	t.Run("Identities Are Isolated", func(t *testing.T) {
		runCommand(t, client, "203.0.113.9", "echo alpha")
		page := runCommand(t, client, "203.0.113.10", "echo beta")
		assert.NotContains(t, page, "alpha")
	})

	t.Run("Envelope Endpoint", func(t *testing.T) {
		event := `{"httpMethod":"GET","path":"/","headers":{"x-forwarded-for":"203.0.113.11"},"queryStringParameters":{"command":"echo enveloped"}}`

		resp, err := client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(event).
			Post("/invoke")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())

		body := resp.String()
		assert.Contains(t, body, `"isBase64Encoded":true`)
		assert.Contains(t, body, `"statusCode":200`)
		assert.Contains(t, body, `"Content-Type":"text/html"`)
	})

	t.Run("Session Administration", func(t *testing.T) {
		runCommand(t, client, "203.0.113.12", "echo archived")

		resp, err := client.R().Get("/sessions")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Contains(t, resp.String(), "203.0.113.12")

		resp, err = client.R().Get("/sessions/203.0.113.12/transcript")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		assert.True(t, strings.Contains(resp.String(), "archived"))

		resp, err = client.R().Delete("/sessions/203.0.113.12")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())

		resp, err = client.R().Get("/sessions")
		require.NoError(t, err)
		assert.NotContains(t, resp.String(), "203.0.113.12")
	})

	t.Run("Metrics Exposed", func(t *testing.T) {
		resp, err := client.R().Get("/metrics")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Contains(t, resp.String(), "terminal_http_requests_total")
	})
}
