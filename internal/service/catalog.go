package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fitstack/coach-chat/internal/model"
	"github.com/fitstack/coach-chat/internal/store"
	"github.com/fitstack/coach-chat/pkg/logger"
)

// CatalogService manages the exercise catalog and training plans that
// feed the assistant's context.
type CatalogService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(st *store.Store, log *logger.Logger) *CatalogService {
	return &CatalogService{store: st, logger: log}
}

// CreateExercise adds an exercise to a trainer's catalog.
func (s *CatalogService) CreateExercise(ctx context.Context, trainerID string, req *model.CreateExerciseRequest) (*model.Exercise, error) {
	ex := &model.Exercise{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TrainerID:   trainerID,
		Name:        req.Name,
		Type:        req.Type,
		MuscleGroup: req.MuscleGroup,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateExercise(ctx, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// ListExercises returns a trainer's own catalog.
func (s *CatalogService) ListExercises(ctx context.Context, trainerID string) ([]model.Exercise, error) {
	return s.store.ExercisesByTrainer(ctx, trainerID)
}

// CreatePlan creates a training plan owned by a trainer.
func (s *CatalogService) CreatePlan(ctx context.Context, trainerID string, req *model.CreatePlanRequest) (*model.TrainingPlan, error) {
	plan := &model.TrainingPlan{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TrainerID: trainerID,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// AddPlanExercise links an exercise into a plan owned by the trainer.
func (s *CatalogService) AddPlanExercise(ctx context.Context, trainerID, planID, exerciseID string) error {
	if _, err := s.store.GetPlan(ctx, trainerID, planID); err != nil {
		return err
	}
	return s.store.AddPlanExercise(ctx, planID, exerciseID)
}

// AssignPlan assigns a plan owned by the trainer to a client. The
// client's assistant context then includes the plan's exercises.
func (s *CatalogService) AssignPlan(ctx context.Context, trainerID, planID, clientID string) error {
	if _, err := s.store.GetPlan(ctx, trainerID, planID); err != nil {
		return err
	}
	return s.store.AssignPlan(ctx, planID, clientID)
}
