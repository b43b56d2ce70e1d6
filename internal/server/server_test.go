package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/mediascribe/pkg/runstate"
)

func seedRun(t *testing.T, outputRoot, runID string) runstate.Layout {
	t.Helper()
	l := runstate.NewLayout(outputRoot, runID)
	require.NoError(t, l.Ensure())
	s := runstate.New(runID, "/photos", "ollama", "llava", "narrative")
	require.NoError(t, s.Save(l))
	return l
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := New("127.0.0.1", 0, t.TempDir(), nil)
	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundEnvelope(t *testing.T) {
	srv := New("127.0.0.1", 0, t.TempDir(), nil)
	rec := get(t, srv, "/does-not-exist")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0, t.TempDir(), nil)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestListRuns(t *testing.T) {
	root := t.TempDir()
	seedRun(t, root, "20260101T000000Z-aaaa")
	seedRun(t, root, "20260201T000000Z-bbbb")

	srv := New("127.0.0.1", 0, root, nil)
	rec := get(t, srv, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []RunListing `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "20260101T000000Z-aaaa", body.Runs[0].RunID)
	assert.Equal(t, "ollama", body.Runs[0].Provider)
	assert.Equal(t, "llava", body.Runs[0].Model)
}

func TestListRuns_EmptyRoot(t *testing.T) {
	srv := New("127.0.0.1", 0, t.TempDir(), nil)
	rec := get(t, srv, "/api/v1/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunState(t *testing.T) {
	root := t.TempDir()
	seedRun(t, root, "run-1")

	srv := New("127.0.0.1", 0, root, nil)
	rec := get(t, srv, "/api/v1/runs/run-1/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var st runstate.RunState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, "ollama", st.Provider)
}

func TestRunStatus_NotYetWritten(t *testing.T) {
	root := t.TempDir()
	seedRun(t, root, "run-1")

	srv := New("127.0.0.1", 0, root, nil)
	rec := get(t, srv, "/api/v1/runs/run-1/status")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_YET_AVAILABLE", body.Error.Code)
}

func TestRunStatus_ServesSurface(t *testing.T) {
	root := t.TempDir()
	l := seedRun(t, root, "run-1")
	require.NoError(t, runstate.WriteJSONAtomic(l.Status(), map[string]any{
		"stage":   "describe",
		"message": "describing",
	}))

	srv := New("127.0.0.1", 0, root, nil)
	rec := get(t, srv, "/api/v1/runs/run-1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var surface map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&surface))
	assert.Equal(t, "describing", surface["message"])
}

func TestRunStatus_UnknownRun(t *testing.T) {
	srv := New("127.0.0.1", 0, t.TempDir(), nil)
	rec := get(t, srv, "/api/v1/runs/nope/status")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RUN_NOT_FOUND", body.Error.Code)
}

func TestLatestRun_Redirects(t *testing.T) {
	root := t.TempDir()
	seedRun(t, root, "20260101T000000Z-aaaa")
	seedRun(t, root, "20260201T000000Z-bbbb")

	srv := New("127.0.0.1", 0, root, nil)
	rec := get(t, srv, "/api/v1/runs/latest")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/api/v1/runs/20260201T000000Z-bbbb/status", rec.Header().Get("Location"))
}

func TestLatestRun_NoRuns(t *testing.T) {
	srv := New("127.0.0.1", 0, t.TempDir(), nil)
	rec := get(t, srv, "/api/v1/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
