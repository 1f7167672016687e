package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/propertydigital/pdimport/internal/ingest"
	"github.com/propertydigital/pdimport/pkg/core"
)

// importRequest is the wire shape of one chunk upload. The job id may come
// from the X-Job-Id header or the body; the header wins.
type importRequest struct {
	EntityType  string           `json:"entityType"`
	Data        []map[string]any `json:"data"`
	JobID       string           `json:"jobId"`
	ImportedBy  string           `json:"importedBy"`
	ChunkIndex  int              `json:"chunkIndex"`
	TotalChunks int              `json:"totalChunks"`
}

// handleMassiveImport accepts one chunk. Partial failures still answer 200
// with a completed_with_errors body; callers inspect the body, not the
// status code, to detect them.
func (s *Server) handleMassiveImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID := r.Header.Get("X-Job-Id")
	if jobID == "" {
		jobID = req.JobID
	}

	result, err := s.service.Ingest(r.Context(), &ingest.Request{
		JobID:       jobID,
		EntityType:  core.EntityType(req.EntityType),
		Records:     req.Data,
		ImportedBy:  req.ImportedBy,
		ChunkIndex:  req.ChunkIndex,
		TotalChunks: req.TotalChunks,
	})
	if err != nil {
		var reqErr *core.RequestError
		if errors.As(err, &reqErr) {
			writeError(w, http.StatusBadRequest, reqErr.Error())
			return
		}
		var storeErr *core.StoreUnavailableError
		if errors.As(err, &storeErr) {
			writeError(w, http.StatusInternalServerError, storeErr.Error())
			return
		}
		s.logger.Error("import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.jobs.GetJob(jobID)
	if err != nil {
		s.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	entityType := core.EntityType(r.URL.Query().Get("entityType"))
	if entityType != "" && !entityType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown entity type")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := s.jobs.ListJobs(entityType, limit)
	if err != nil {
		s.logger.Error("job list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleHealth reports readiness: the durable store must answer and the
// entity cache must have finished warming.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	storeOK := s.records.Available()
	cacheOK := s.resolver == nil || s.resolver.Ready()

	code := http.StatusOK
	status := "ok"
	if !storeOK || !cacheOK {
		code = http.StatusServiceUnavailable
		status = "unavailable"
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"store":  storeOK,
		"cache":  cacheOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
