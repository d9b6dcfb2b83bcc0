package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	detail, err := s.service.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleGenerateSpecification materializes one submission.
func (s *Server) handleGenerateSpecification(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.GenerateSpecification(r.Context(), chi.URLParam(r, "id"))
	s.writeItemResult(w, r, res, err)
}

// handleRerunStage runs one stage for one submission.
func (s *Server) handleRerunStage(w http.ResponseWriter, r *http.Request) {
	stage, err := core.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		s.respondError(w, r, badRequest("%v", err))
		return
	}
	res, err := s.service.RerunStage(r.Context(), chi.URLParam(r, "id"), stage)
	s.writeItemResult(w, r, res, err)
}

// writeItemResult sends the result of a single-submission run. A failed
// item keeps the result body but carries the status of its failure kind.
func (s *Server) writeItemResult(w http.ResponseWriter, r *http.Request, res *core.ItemResult, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Failure != nil {
		code = statusForKind(res.Failure.Kind)
	}
	writeJSON(w, code, res)
}

type transitionRequest struct {
	Status string `json:"status"`
	Force  bool   `json:"force"`
}

// handleTransition moves one submission to a new status. force is the
// administrative override and bypasses the transition table.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	target, err := status.Parse(req.Status)
	if err != nil {
		s.respondError(w, r, badRequest("%v", err))
		return
	}

	view, err := s.service.Transition(r.Context(), chi.URLParam(r, "id"), target, req.Force)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type bulkTransitionRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

// maxBulkIDs bounds one bulk transition request.
const maxBulkIDs = 10000

// handleTransitionMany moves every eligible id to a new status and itemizes
// the rest.
func (s *Server) handleTransitionMany(w http.ResponseWriter, r *http.Request) {
	var req bulkTransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	target, err := status.Parse(req.Status)
	if err != nil {
		s.respondError(w, r, badRequest("%v", err))
		return
	}

	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		s.respondError(w, r, badRequest("ids must not be empty"))
		return
	}
	if len(ids) > maxBulkIDs {
		s.respondError(w, r, badRequest("at most %d ids per request", maxBulkIDs))
		return
	}

	res, err := s.service.TransitionMany(r.Context(), ids, target)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListEvents lists pipeline events, newest first.
//
// Query parameters: submission, run, stage, kind, limit.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.EventFilter{
		SubmissionID: q.Get("submission"),
		RunID:        q.Get("run"),
		Kind:         core.Kind(q.Get("kind")),
		Limit:        parseIntParam(r, "limit", 0),
	}
	if raw := q.Get("stage"); raw != "" {
		stage, err := core.ParseStage(raw)
		if err != nil {
			s.respondError(w, r, badRequest("%v", err))
			return
		}
		filter.Stage = stage
	}

	events, err := s.service.ListEvents(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type previewRequest struct {
	Title string `json:"title"`
}

// handlePreviewTitle shows what the active title rules do to a title.
func (s *Server) handlePreviewTitle(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	trace, err := s.service.PreviewTitle(r.Context(), req.Title)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}
