package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dairyops/internal/server"
	"dairyops/internal/shared"
	"dairyops/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateSeedDBCheck(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "dairy.db")
	t.Setenv(shared.EnvDBDriver, shared.DriverSQLite)
	t.Setenv(shared.EnvDBDSN, dsn)

	out, err := run(t, "migrate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "migrations applied")
	_, err = os.Stat(dsn)
	require.NoError(t, err)

	out, err = run(t, "seed", "admin", "auth-uid-1")
	require.NoError(t, err, out)
	assert.Len(t, strings.TrimSpace(out), 36)

	_, err = run(t, "seed", "admin", "auth-uid-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = run(t, "seed", "cow", "KE-001")
	require.NoError(t, err)

	out, err = run(t, "dbcheck")
	require.NoError(t, err, out)
	assert.Contains(t, out, "admins: 1")
	assert.Contains(t, out, "cows: 1")
	assert.Contains(t, out, "orders: 0")
}

func TestDBCheckBeforeMigrate(t *testing.T) {
	t.Setenv(shared.EnvDBDSN, filepath.Join(t.TempDir(), "empty.db"))
	_, err := run(t, "dbcheck")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing tables")
}

func TestServeRejectsIncompleteConfig(t *testing.T) {
	t.Setenv(shared.EnvDBDSN, filepath.Join(t.TempDir(), "x.db"))
	t.Setenv(shared.EnvIdentityURL, "")
	_, err := run(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), shared.EnvIdentityURL)
}

func TestBadDriverFlag(t *testing.T) {
	_, err := run(t, "--db-driver", "mysql", "migrate")
	require.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--log-level", "loud", "migrate"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestWebhookSend(t *testing.T) {
	api := &server.API{
		Store:         store.NewMemory(nil),
		WebhookSecret: "test-secret",
		Log:           zap.NewNop(),
	}
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	_, err := run(t, "webhook", "send", "--url", srv.URL, "--secret", "test-secret", "--txn-ref", "abc-1", "--amount", "1000")
	require.NoError(t, err)

	body := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(body, []byte(`{"txn_ref":"abc-1","amount":1000}`), 0o600))
	_, err = run(t, "webhook", "send", "--url", srv.URL, "--secret", "test-secret", "--body", body, "--prefixed")
	require.NoError(t, err)

	_, err = run(t, "webhook", "send", "--url", srv.URL, "--secret", "wrong", "--txn-ref", "abc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	_, err = run(t, "webhook", "send", "--url", srv.URL, "--secret", "test-secret")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{shared.LogFormatJSON, shared.LogFormatConsole} {
		log, err := newLogger("debug", format)
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zap.DebugLevel))
	}
	_, err := newLogger("chatty", shared.LogFormatJSON)
	assert.Error(t, err)
}
