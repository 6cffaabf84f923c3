package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/task-tracker/internal/config"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:               8080,
			LogLevel:           "debug",
			RequestTimeout:     5 * time.Second,
			CORSAllowedOrigins: []string{"http://localhost:4200"},
		},
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Cache: config.CacheConfig{
			Enabled:    true,
			ItemTTL:    time.Minute,
			SearchTTL:  time.Minute,
			MaxEntries: 1000,
		},
		Telemetry: config.TelemetryConfig{ServiceName: "task-tracker-test"},
	}
}

func newTestApplication(t *testing.T) *application {
	t.Helper()

	l, _ := logger.GetTestLogger(t)
	app, err := newApplication(logger.WithLogger(context.Background(), l), testConfig(), l)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"-config", "dev.yaml", "-migrate", "status"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, options{configPath: "dev.yaml", migrate: "status"}, opts)

	opts, err = parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, options{}, opts)

	_, err = parseFlags([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}

func TestOpenStorage(t *testing.T) {
	t.Parallel()

	ctx, logs := logger.NewLogCaptureContext(t)

	t.Run("memory", func(t *testing.T) {
		s, err := openStorage(ctx, config.DatabaseConfig{Driver: config.DriverMemory})
		require.NoError(t, err)
		assert.NotNil(t, s.tasks)
		assert.NoError(t, s.close())
		logger.AssertLogContains(t, logs, "in-memory task storage")
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tasks.db")
		s, err := openStorage(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
		require.NoError(t, err)
		all, err := s.tasks.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		assert.NoError(t, s.close())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := openStorage(ctx, config.DatabaseConfig{Driver: "oracle"})
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestRunMigrations(t *testing.T) {
	t.Parallel()

	ctx, _ := logger.NewLogCaptureContext(t)
	path := filepath.Join(t.TempDir(), "tasks.db")

	require.NoError(t, runMigrations(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}, "up"))
	assert.ErrorContains(t,
		runMigrations(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}, "down"),
		"not supported")
	assert.ErrorContains(t,
		runMigrations(ctx, config.DatabaseConfig{Driver: config.DriverMemory}, "up"),
		"has no migrations")
}

func TestRouter(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t)
	server := httptest.NewServer(app.setupRouter())
	t.Cleanup(server.Close)

	client := server.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	t.Run("health", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/health")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", string(body))
		assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
	})

	t.Run("root redirects to the task list", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/tasks", resp.Header.Get("Location"))
	})

	t.Run("api create and list", func(t *testing.T) {
		resp, err := client.Post(server.URL+"/api/tasks", "application/json",
			strings.NewReader(`{"title":"Ship it","priority":"High"}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/api/tasks/"))

		resp, err = client.Get(server.URL + "/api/tasks?keyword=ship")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var tasks []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
		require.Len(t, tasks, 1)
		assert.Equal(t, "Ship it", tasks[0]["title"])
		assert.Equal(t, "High", tasks[0]["priority"])
	})

	t.Run("task pages", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/tasks")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		assert.Contains(t, string(body), "Ship it")
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/tasks", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:4200")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, "http://localhost:4200", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln, app.setupRouter()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout):
		t.Fatal("server did not shut down")
	}
}
