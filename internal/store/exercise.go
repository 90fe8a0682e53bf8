package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fitstack/coach-chat/internal/model"
)

// CreateExercise inserts a catalog entry.
func (s *Store) CreateExercise(ctx context.Context, ex *model.Exercise) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO exercises (id, trainer_id, name, type, muscle_group, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.TrainerID, ex.Name, ex.Type, ex.MuscleGroup, ex.Description, ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create exercise: %w", err)
	}
	return nil
}

// ExercisesByTrainer retrieves a trainer's own catalog, oldest first.
func (s *Store) ExercisesByTrainer(ctx context.Context, trainerID string) ([]model.Exercise, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, trainer_id, name, type, muscle_group, description, created_at
		 FROM exercises WHERE trainer_id = ? ORDER BY created_at, rowid`,
		trainerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}
	defer rows.Close()

	return scanExercises(rows)
}

// ExercisesForClient retrieves the de-duplicated union of exercises
// reachable through all plans assigned to a client.
func (s *Store) ExercisesForClient(ctx context.Context, clientID string) ([]model.Exercise, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT DISTINCT e.id, e.trainer_id, e.name, e.type, e.muscle_group, e.description, e.created_at
		 FROM exercises e
		 JOIN plan_exercises pe ON pe.exercise_id = e.id
		 JOIN plan_assignments pa ON pa.plan_id = pe.plan_id
		 WHERE pa.client_id = ?
		 ORDER BY e.name`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list client exercises: %w", err)
	}
	defer rows.Close()

	return scanExercises(rows)
}

// CreatePlan inserts a training plan.
func (s *Store) CreatePlan(ctx context.Context, plan *model.TrainingPlan) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO training_plans (id, trainer_id, name, created_at) VALUES (?, ?, ?, ?)`,
		plan.ID, plan.TrainerID, plan.Name, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by id, scoped to the owning trainer.
func (s *Store) GetPlan(ctx context.Context, trainerID, id string) (*model.TrainingPlan, error) {
	var plan model.TrainingPlan
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, trainer_id, name, created_at
		 FROM training_plans WHERE id = ? AND trainer_id = ?`,
		id, trainerID,
	).Scan(&plan.ID, &plan.TrainerID, &plan.Name, &plan.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// AddPlanExercise links an exercise into a plan. Adding the same exercise
// twice is a no-op.
func (s *Store) AddPlanExercise(ctx context.Context, planID, exerciseID string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO plan_exercises (plan_id, exercise_id) VALUES (?, ?)`,
		planID, exerciseID,
	)
	if err != nil {
		return fmt.Errorf("failed to add plan exercise: %w", err)
	}
	return nil
}

// AssignPlan assigns a plan to a client. Re-assigning is a no-op.
func (s *Store) AssignPlan(ctx context.Context, planID, clientID string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO plan_assignments (plan_id, client_id) VALUES (?, ?)`,
		planID, clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign plan: %w", err)
	}
	return nil
}

func scanExercises(rows *sql.Rows) ([]model.Exercise, error) {
	exercises := []model.Exercise{}
	for rows.Next() {
		var ex model.Exercise
		if err := rows.Scan(&ex.ID, &ex.TrainerID, &ex.Name, &ex.Type, &ex.MuscleGroup, &ex.Description, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}
