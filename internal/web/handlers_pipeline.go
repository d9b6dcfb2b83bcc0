package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/go-chi/chi/v5"
)

// sseHeartbeat keeps idle progress streams alive through proxies.
var sseHeartbeat = 15 * time.Second

// handleRunPipeline runs every stage in order and returns the per-stage
// summaries. A stage that stops the run is reported alongside the partial
// result.
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RunPipeline(r.Context())
	if err != nil {
		if result == nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, statusForKind(core.KindOf(err)), struct {
			*core.PipelineResult
			Error ErrorResponse `json:"error"`
		}{result, errorResponse(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRunStage runs one stage over every eligible submission.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	stage, err := core.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		s.respondError(w, r, badRequest("%v", err))
		return
	}

	summary, err := s.service.RunStage(r.Context(), stage)
	if err != nil {
		if summary == nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, statusForKind(core.KindOf(err)), struct {
			*core.Summary
			Error ErrorResponse `json:"error"`
		}{summary, errorResponse(err)})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleProgress streams materialization progress as server-sent events.
// The most recent event is replayed on connect.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	events, unsubscribe := s.service.Progress().Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case p, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(p)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s-%d\nevent: progress\ndata: %s\n\n", p.RunID, p.Processed, data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
