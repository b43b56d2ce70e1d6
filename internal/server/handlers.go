package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/scribeworks/mediascribe/pkg/runstate"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a stable machine code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunListing is one entry in the run index.
type RunListing struct {
	RunID    string `json:"run_id"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Created  string `json:"created_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, ErrorResponse{Error: ErrorBody{Code: errCode, Message: message}})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns returns all run ids under the output root, newest last.
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runsDir := filepath.Join(s.outputRoot, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"runs": []RunListing{}})
			return
		}
		writeError(w, http.StatusInternalServerError, "READ_FAILED", err.Error())
		return
	}

	var runs []RunListing
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		listing := RunListing{RunID: e.Name()}
		// State enriches the listing when readable; a torn or missing
		// state file still lists the run id.
		if st, err := runstate.Load(runstate.Layout{Dir: filepath.Join(runsDir, e.Name())}); err == nil {
			listing.Provider = st.Provider
			listing.Model = st.Model
			listing.Created = st.CreatedAt.Format("2006-01-02T15:04:05Z")
		}
		runs = append(runs, listing)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleLatestRun redirects to the most recent run's status.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	layout, err := runstate.LatestRun(s.outputRoot)
	if err != nil {
		writeError(w, http.StatusNotFound, "NO_RUNS", "no runs under output root")
		return
	}
	runID := filepath.Base(layout.Dir)
	http.Redirect(w, r, "/api/v1/runs/"+runID+"/status", http.StatusTemporaryRedirect)
}

// handleRunStatus serves the live status surface for one run.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	layout, ok := s.runLayout(w, r)
	if !ok {
		return
	}
	s.serveFileJSON(w, layout.Status(), "status not yet written for this run")
}

// handleRunState serves the persisted run state for one run.
func (s *Server) handleRunState(w http.ResponseWriter, r *http.Request) {
	layout, ok := s.runLayout(w, r)
	if !ok {
		return
	}
	s.serveFileJSON(w, layout.State(), "state not yet written for this run")
}

// runLayout resolves the {runID} path parameter to an existing run
// directory, rejecting ids that escape the runs directory.
func (s *Server) runLayout(w http.ResponseWriter, r *http.Request) (runstate.Layout, bool) {
	runID := chi.URLParam(r, "runID")
	if runID == "" || runID != filepath.Base(runID) {
		writeError(w, http.StatusBadRequest, "INVALID_RUN_ID", "invalid run id")
		return runstate.Layout{}, false
	}
	layout := runstate.NewLayout(s.outputRoot, runID)
	if _, err := os.Stat(layout.Dir); err != nil {
		writeError(w, http.StatusNotFound, "RUN_NOT_FOUND", "run not found: "+runID)
		return runstate.Layout{}, false
	}
	return layout, true
}

// serveFileJSON streams an on-disk JSON artifact verbatim. The pipeline
// writes these files atomically, so a read never observes a torn write.
func (s *Server) serveFileJSON(w http.ResponseWriter, path, missingMsg string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "NOT_YET_AVAILABLE", missingMsg)
			return
		}
		writeError(w, http.StatusInternalServerError, "READ_FAILED", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
