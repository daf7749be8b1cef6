package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"enotebook-sync/internal/domain"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "notesync", cmd.Use)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, "", envFlag.DefValue)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "probe", "sync"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

// notesAPI serves the health and list endpoints under /api.
func notesAPI(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"2026-10-14T10:00:00Z"}`))
	}).Methods(http.MethodGet)
	api.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.Note{{ID: "n1", Title: "Groceries", SubNotes: []domain.SubNote{}}})
	}).Methods(http.MethodGet)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, apiURL string) {
	t.Helper()
	t.Setenv("API_URL", apiURL)
	t.Setenv("AUTH_TOKEN", "opaque-token")
	t.Setenv("AUTH_TOKEN_FILE", "")
	t.Setenv("ROUTE_HINT", "")
	t.Setenv("JOURNAL_URL", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("PROBE_TIMEOUT", "2s")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestProbeCommand(t *testing.T) {
	srv := notesAPI(t)

	t.Run("healthy", func(t *testing.T) {
		setEnv(t, srv.URL)
		out, err := run(t, "probe")
		require.NoError(t, err)

		var report domain.HealthReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Reachable)
		assert.True(t, report.EndpointsWorking)
		assert.NotNil(t, report.ServerTime)
	})

	t.Run("unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		setEnv(t, dead.URL)

		out, err := run(t, "probe")
		assert.ErrorIs(t, err, errUnhealthy)

		var report domain.HealthReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.False(t, report.Reachable)
		assert.NotEmpty(t, report.Errors)
	})
}

func TestSyncCommand(t *testing.T) {
	srv := notesAPI(t)
	setEnv(t, srv.URL)

	out, err := run(t, "sync")
	require.NoError(t, err)

	var report domain.ReconcileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Skipped)
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, 0, report.Remaining)
}

func TestSyncCommand_Unreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	setEnv(t, dead.URL)

	_, err := run(t, "sync")
	assert.Error(t, err)
}

func TestLoadFailureStopsCommand(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	t.Setenv("PROBE_INTERVAL", "often")

	_, err := run(t, "probe")
	assert.ErrorContains(t, err, "PROBE_INTERVAL")
}
