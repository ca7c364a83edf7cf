package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/runstore"
)

// RunResponse is the API response for a run
type RunResponse struct {
	ID         string          `json:"id"`
	Case       string          `json:"case"`
	Comment    string          `json:"comment,omitempty"`
	DateStamp  string          `json:"date_stamp"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	MaxDom     int             `json:"max_dom"`
	Status     string          `json:"status"`
	ScratchDir string          `json:"scratch_dir,omitempty"`
	OutputDir  string          `json:"output_dir"`
	CreatedAt  string          `json:"created_at"`
	Stages     []StageResponse `json:"stages,omitempty"`
}

// StageResponse is the API response for one stage verdict
type StageResponse struct {
	Stage         string `json:"stage"`
	Step          string `json:"step,omitempty"`
	Status        string `json:"status"`
	Indeterminate bool   `json:"indeterminate,omitempty"`
	Reason        string `json:"reason,omitempty"`
	LogPath       string `json:"log_path,omitempty"`
	ExitCode      int    `json:"exit_code"`
	Duration      string `json:"duration"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func runToResponse(r *runstore.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Case:       r.Case,
		Comment:    r.Comment,
		DateStamp:  r.DateStamp,
		Start:      r.Start.Format(time.RFC3339),
		End:        r.End.Format(time.RFC3339),
		MaxDom:     r.MaxDom,
		Status:     string(r.Status),
		ScratchDir: r.ScratchDir,
		OutputDir:  r.OutputDir,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

func stageToResponse(res domain.StageResult) StageResponse {
	return StageResponse{
		Stage:         res.Stage,
		Step:          res.Step,
		Status:        string(res.Outcome.Status),
		Indeterminate: res.Outcome.Indeterminate,
		Reason:        res.Outcome.Reason,
		LogPath:       res.LogPath,
		ExitCode:      res.ExitCode,
		Duration:      res.Duration.Round(time.Second).String(),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runs, err := s.store.ListRuns(runstore.ListOptions{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var status StatusResponse
		status.Total = len(runs)

		for _, run := range runs {
			switch run.Status {
			case domain.RunRunning:
				status.Running++
			case domain.RunCompleted:
				status.Completed++
			case domain.RunFailed:
				status.Failed++
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		opts := runstore.ListOptions{
			Case:   r.URL.Query().Get("case"),
			Status: domain.RunStatus(r.URL.Query().Get("status")),
		}

		runs, err := s.store.ListRuns(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Extract run ID from path: /api/runs/{id}
		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.store.GetRun(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		resp := runToResponse(run)
		stages, err := s.store.StageResults(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, res := range stages {
			resp.Stages = append(resp.Stages, stageToResponse(res))
		}

		writeJSON(w, resp)
	}
}
