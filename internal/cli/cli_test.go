package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teller/internal/app"
	"teller/internal/platform/config"
)

// startTestServer runs the full auth service with in-memory stores and returns its URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	cfg := config.Server{
		Auth: config.Auth{
			JWTSigningKey:   "cli-test-key",
			Issuer:          "interswitch-banking",
			Audience:        "interswitch-banking-client",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 24 * time.Hour,
		},
		RateLimit: config.RateLimit{FailureThreshold: 5, SuccessThreshold: 3, CleanupInterval: time.Minute},
	}
	a, err := app.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ts := httptest.NewServer(a.Handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

type harness struct {
	t      *testing.T
	global []string
}

func newHarness(t *testing.T, serverURL string) *harness {
	return &harness{t: t, global: []string{"--server", serverURL, "--state-dir", t.TempDir(), "--log-level", "error"}}
}

// run executes one tellerctl invocation, as a separate process would.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append(append([]string{}, h.global...), args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t, startTestServer(t))

	out, err := h.run("", "login", "--email", "test@interswitch.com", "--password", "password123")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as Test User <test@interswitch.com>\n", out)

	out, err = h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "User: Test User <test@interswitch.com>")
	assert.Contains(t, out, "Role:    customer")
	assert.Contains(t, out, "Expires:")

	out, err = h.run("", "whoami", "--remote")
	require.NoError(t, err)
	assert.Contains(t, out, "ID:      1")

	_, err = h.run("", "refresh")
	require.NoError(t, err)

	out, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestLoginPrompts(t *testing.T) {
	h := newHarness(t, startTestServer(t))

	out, err := h.run("admin@interswitch.com\nadmin123\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email: Password: Signed in as Admin User <admin@interswitch.com>")
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t, startTestServer(t))

	_, err := h.run("", "login", "--email", "test@interswitch.com", "--password", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())

	_, err = h.run("", "login", "--email", "test@interswitch.com")
	assert.EqualError(t, err, "password cannot be empty")
}

func TestSessionIsStoredInStateDir(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, startTestServer(t))
	h.global = append(h.global, "--state-dir", dir)

	_, err := h.run("", "login", "--email", "test@interswitch.com", "--password", "password123")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "auth_session"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t, startTestServer(t))
	h.global = append(h.global, "--redis-url", "redis://"+mr.Addr(), "--redis-namespace", "ops")

	_, err := h.run("", "login", "--email", "test@interswitch.com", "--password", "password123")
	require.NoError(t, err)
	assert.True(t, mr.Exists("teller:client:ops:auth_session"))

	out, err := h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "test@interswitch.com")
}

func TestWatchSignsOutWhenIdle(t *testing.T) {
	h := newHarness(t, startTestServer(t))
	_, err := h.run("", "login", "--email", "test@interswitch.com", "--password", "password123")
	require.NoError(t, err)

	out, err := h.run("", "watch", "--timeout", "2s", "--warning", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, "Session expires in 1s")
	assert.Contains(t, out, "Signed out after inactivity")

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestWatchRequiresSession(t *testing.T) {
	h := newHarness(t, startTestServer(t))

	_, err := h.run("", "watch")
	assert.ErrorIs(t, err, errNotSignedIn)
}
