package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitstack/coach-chat/internal/middleware"
	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/service"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
)

// CatalogHandler handles exercise and training plan endpoints.
type CatalogHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(svc *service.CatalogService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: svc,
		logger:  log,
	}
}

// CreateExercise handles POST /api/v1/exercises
func (h *CatalogHandler) CreateExercise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trainerID := middleware.GetUserID(ctx)

	var req model.CreateExerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ex, err := h.service.CreateExercise(ctx, trainerID, &req)
	if err != nil {
		h.logger.Error("failed to create exercise")
		writeError(w, http.StatusInternalServerError, "failed to create exercise")
		return
	}

	writeJSON(w, http.StatusCreated, ex)
}

// ListExercises handles GET /api/v1/exercises
func (h *CatalogHandler) ListExercises(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trainerID := middleware.GetUserID(ctx)

	exercises, err := h.service.ListExercises(ctx, trainerID)
	if err != nil {
		h.logger.Error("failed to list exercises")
		writeError(w, http.StatusInternalServerError, "failed to list exercises")
		return
	}

	writeJSON(w, http.StatusOK, exercises)
}

// CreatePlan handles POST /api/v1/plans
func (h *CatalogHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trainerID := middleware.GetUserID(ctx)

	var req model.CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.service.CreatePlan(ctx, trainerID, &req)
	if err != nil {
		h.logger.Error("failed to create plan")
		writeError(w, http.StatusInternalServerError, "failed to create plan")
		return
	}

	writeJSON(w, http.StatusCreated, plan)
}

// AddPlanExercise handles POST /api/v1/plans/:id/exercises
func (h *CatalogHandler) AddPlanExercise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trainerID := middleware.GetUserID(ctx)
	planID := chi.URLParam(r, "id")

	var req struct {
		ExerciseID string `json:"exercise_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExerciseID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.AddPlanExercise(ctx, trainerID, planID, req.ExerciseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("failed to add plan exercise")
		writeError(w, http.StatusInternalServerError, "failed to add plan exercise")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AssignPlan handles POST /api/v1/plans/:id/assignments
func (h *CatalogHandler) AssignPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trainerID := middleware.GetUserID(ctx)
	planID := chi.URLParam(r, "id")

	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.AssignPlan(ctx, trainerID, planID, req.ClientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("failed to assign plan")
		writeError(w, http.StatusInternalServerError, "failed to assign plan")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
