package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/config"
	"github.com/fyrsmithlabs/copyvara/internal/events"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
	"github.com/fyrsmithlabs/copyvara/internal/storage/postgrest"
	"github.com/fyrsmithlabs/copyvara/internal/storage/sqlite"
)

func TestOpenEvents(t *testing.T) {
	logger := zap.NewNop()

	t.Run("disabled", func(t *testing.T) {
		pub, closeFn, err := openEvents(config.EventsConfig{}, logger)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, events.Nop{}, pub)
	})

	t.Run("embedded", func(t *testing.T) {
		pub, closeFn, err := openEvents(config.EventsConfig{
			Enabled:      true,
			Embedded:     true,
			EmbeddedHost: "127.0.0.1",
			EmbeddedPort: -1,
		}, logger)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &events.NATSPublisher{}, pub)
		assert.NoError(t, pub.Publish(context.Background(), events.Event{Type: events.WorkspaceReset}))
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, _, err := openEvents(config.EventsConfig{Enabled: true, URL: "nats://127.0.0.1:1"}, logger)
		assert.Error(t, err)
	})
}

func TestOpenStore(t *testing.T) {
	logger := zap.NewNop()

	t.Run("memory", func(t *testing.T) {
		store, err := openStore(config.StorageConfig{Driver: config.StorageMemory}, logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.MemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		dir := t.TempDir()
		store, err := openStore(config.StorageConfig{Driver: config.StorageSQLite, SQLiteDir: dir}, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		require.IsType(t, &sqlite.Store{}, store)
		assert.Equal(t, filepath.Join(dir, sqlite.DatabaseFile), store.(*sqlite.Store).Path())
	})

	t.Run("postgrest", func(t *testing.T) {
		store, err := openStore(config.StorageConfig{
			Driver:       config.StoragePostgREST,
			PostgRESTURL: "https://example.supabase.co/",
			PostgRESTKey: config.Secret("anon"),
		}, logger)
		require.NoError(t, err)
		assert.IsType(t, &postgrest.Store{}, store)
	})

	t.Run("postgrest requires https", func(t *testing.T) {
		store, err := openStore(config.StorageConfig{
			Driver:       config.StoragePostgREST,
			PostgRESTURL: "http://example.supabase.co",
			PostgRESTKey: config.Secret("anon"),
		}, logger)
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := openStore(config.StorageConfig{Driver: "redis"}, logger)
		assert.Error(t, err)
	})
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("COPYVARA_TEST_VALUE=from-dotenv\n"), 0600))
	t.Setenv("COPYVARA_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("COPYVARA_TEST_VALUE"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv("COPYVARA_TEST_VALUE"))
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:    "+version)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunServe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	port := freePort(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORAGE_DRIVER", config.StorageMemory)
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("SERVER_HTTP_PORT", fmt.Sprint(port))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(ctx, &rootOptions{logLevel: "error", logFormat: "json"})
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
