package model

import (
	"time"
)

// Exercise is one entry in a trainer's exercise catalog.
type Exercise struct {
	ID          string    `json:"id"`
	TrainerID   string    `json:"trainer_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	MuscleGroup string    `json:"muscle_group,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateExerciseRequest is the request to add a catalog entry.
type CreateExerciseRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	MuscleGroup string `json:"muscle_group,omitempty"`
	Description string `json:"description,omitempty"`
}

// TrainingPlan groups exercises for assignment to clients.
type TrainingPlan struct {
	ID        string    `json:"id"`
	TrainerID string    `json:"trainer_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatePlanRequest is the request to create a training plan.
type CreatePlanRequest struct {
	Name string `json:"name"`
}
