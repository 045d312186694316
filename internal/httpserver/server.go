package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/reviewhub/review-engine/internal/config"
	"github.com/reviewhub/review-engine/internal/models"
	"github.com/reviewhub/review-engine/internal/service"
	"github.com/reviewhub/review-engine/internal/store"
)

type Server struct {
	cfg     config.Config
	service *service.Service
	store   store.Store
}

func New(cfg config.Config, svc *service.Service, st store.Store) *Server {
	return &Server{cfg: cfg, service: svc, store: st}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/review", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/assignments/{id}", s.handleGetAssignment)
		r.Get("/assignments/{id}/assessment", s.handleGetAssignmentAssessment)
		r.Get("/applications/{id}/assignments", s.handleListApplicationAssignments)
		r.Get("/assessors/{id}/assignments", s.handleListAssessorAssignments)
		r.Get("/applications/{id}/result", s.handleApplicationResult)
		r.Get("/applications/{id}/progress", s.handleApplicationProgress)

		r.Post("/assignments/{id}/assessment", s.handleStartAssessment)
		r.Patch("/assessments/{id}", s.handleUpdateAssessment)
		r.Post("/assessments/{id}/submit", s.handleSubmitAssessment)

		r.Group(func(r chi.Router) {
			r.Use(s.requireCoordinator)
			r.Post("/assignments/bulk", s.handleDistributeBulk)
			r.Delete("/assignments/{id}", s.handleDeleteAssignment)
			r.Post("/assessments/{id}/return", s.handleReturnAssessment)
			r.Delete("/assessments/{id}", s.handleDeleteAssessment)
			r.Post("/applications/{id}/result/archive", s.handleArchiveResult)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type bulkAssignmentRequest struct {
	ApplicationIDs []string   `json:"applicationIds"`
	AssessorIDs    []string   `json:"assessorIds"`
	AssignedBy     string     `json:"assignedBy"`
	DueAt          *time.Time `json:"dueAt"`
}

func (s *Server) handleDistributeBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	applicationIDs, err := parseIDs(req.ApplicationIDs)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid applicationIds")
		return
	}
	assessorIDs, err := parseIDs(req.AssessorIDs)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid assessorIds")
		return
	}
	assignedBy, err := uuid.Parse(req.AssignedBy)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid assignedBy")
		return
	}
	created, err := s.service.DistributeBulk(r.Context(), service.BulkAssignmentRequest{
		ApplicationIDs: applicationIDs,
		AssessorIDs:    assessorIDs,
		AssignedBy:     assignedBy,
		DueAt:          req.DueAt,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if created == nil {
		created = []models.Assignment{}
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	assignment, err := s.service.GetAssignment(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleListApplicationAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	assignments, err := s.service.ListApplicationAssignments(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if assignments == nil {
		assignments = []models.Assignment{}
	}
	respondJSON(w, http.StatusOK, assignments)
}

func (s *Server) handleListAssessorAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	assignments, err := s.service.ListAssessorAssignments(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if assignments == nil {
		assignments = []models.Assignment{}
	}
	respondJSON(w, http.StatusOK, assignments)
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteAssignment(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// body is optional: starting with no initial fields is the common case
	var req service.StartAssessmentRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	assessment, err := s.service.StartAssessment(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleGetAssignmentAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	assessment, err := s.service.GetAssignmentAssessment(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleUpdateAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req service.UpdateAssessmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	assessment, err := s.service.UpdateAssessment(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	assessment, err := s.service.SubmitAssessment(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

type returnRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReturnAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.ReturnForRevision(r.Context(), id, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteAssessment(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplicationResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := s.service.ApplicationResult(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleApplicationProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	progress, err := s.service.ApplicationProgress(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleArchiveResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	key, err := s.service.ArchiveApplicationResult(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
