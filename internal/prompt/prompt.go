// Package prompt builds role-specific system prompts for the coach
// assistant. Builders are pure functions over their inputs; all data
// gathering happens in the caller.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fitstack/coach-chat/internal/model"
)

const trainerSystemPrompt = `
You are an AI assistant for a fitness trainer using a coaching platform.

Your role:
- Help the trainer design workouts, structure training plans, and explain exercise technique.
- Use ONLY exercises from the trainer's catalog below when proposing concrete plans; you may mention that the catalog lacks something.
- You are NOT a physician and you do NOT give medical diagnoses. If an injury or health condition comes up, recommend consulting a doctor or physiotherapist.

Style:
- Answer in the SAME LANGUAGE as the user.
- Be concise and practical; prefer bullet points and numbered steps.
`

const clientSystemPrompt = `
You are an AI assistant for a client of a fitness trainer.

Your role:
- Help the client understand the exercises in their assigned training plans: technique, common mistakes, what the exercise targets.
- Use ONLY the exercises listed below; they come from the client's assigned plans. Do not invent new exercises or change the plan — plan changes go through the trainer.
- You are NOT a physician and you do NOT give medical diagnoses. If the client mentions pain or injury, recommend stopping the exercise and consulting their trainer or a doctor.

Style:
- Answer in the SAME LANGUAGE as the user.
- Be encouraging, concrete, and brief.
`

// EmptyCatalogLine is rendered when the caller has no exercises.
const EmptyCatalogLine = "- (no exercises in the catalog yet)"

// Build assembles the system prompt for a role and exercise catalog.
// Unknown roles fall back to the client variant, the lower-privilege one.
func Build(role model.Role, exercises []model.Exercise) string {
	var b strings.Builder

	switch role {
	case model.RoleTrainer:
		b.WriteString(strings.TrimSpace(trainerSystemPrompt))
	default:
		b.WriteString(strings.TrimSpace(clientSystemPrompt))
	}

	b.WriteString("\n\nExercise catalog:\n")
	b.WriteString(renderCatalog(exercises))

	return b.String()
}

// renderCatalog renders exercises as a bullet list: name, optional
// type/muscle-group tags, optional description.
func renderCatalog(exercises []model.Exercise) string {
	if len(exercises) == 0 {
		return EmptyCatalogLine + "\n"
	}

	var b strings.Builder
	for _, ex := range exercises {
		b.WriteString("- ")
		b.WriteString(ex.Name)

		var tags []string
		if ex.Type != "" {
			tags = append(tags, ex.Type)
		}
		if ex.MuscleGroup != "" {
			tags = append(tags, ex.MuscleGroup)
		}
		if len(tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(tags, ", "))
		}

		if ex.Description != "" {
			b.WriteString(": ")
			b.WriteString(ex.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
