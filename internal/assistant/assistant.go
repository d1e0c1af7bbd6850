// Package assistant defines the contracts for the language-model collaborator.
//
// The core never talks to a model directly; it consumes this interface. Plan
// generation and revision surface errors to the caller, reply generation and
// completion detection are failure-soft by contract.
package assistant

import (
	"context"
	"fmt"

	"github.com/luminara-labs/luminara/internal/models"
)

// FallbackReply is returned in place of a generated chat reply when the
// collaborator fails. Conversation flow is never broken by a model outage.
const FallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// PlanConstraints narrows what a generated plan may look like.
type PlanConstraints struct {
	Deadline     string             `json:"deadline,omitempty"`
	DailyHours   string             `json:"daily_hours,omitempty"`
	Granularity  models.Granularity `json:"granularity"`
	UseWebSearch bool               `json:"use_web_search,omitempty"`
}

// PlanTask is one task proposed by the planner, before it is admitted into
// the entity graph.
type PlanTask struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Priority     int               `json:"priority"`
	DurationMins int               `json:"duration_mins"`
	Due          string            `json:"due,omitempty"`
	ActionType   models.ActionType `json:"action_type"`
	SourceURLs   []string          `json:"source_urls,omitempty"`
}

// Plan is the planner's response for a goal.
type Plan struct {
	AgentName   string     `json:"agent_name"`
	Description string     `json:"description"`
	Tasks       []PlanTask `json:"tasks"`
	Confidence  float64    `json:"confidence"`
	Explanation string     `json:"explanation"`
}

// GenerationError is the one reportable error class crossing the core/UI
// boundary: plan generation or revision failed, with a human-readable cause.
type GenerationError struct {
	Cause string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("plan generation failed: %s", e.Cause)
}

// Assistant is the language-model collaborator consumed by the core.
type Assistant interface {
	// GeneratePlan produces a plan for a goal under the given constraints.
	// Fails with a *GenerationError.
	GeneratePlan(ctx context.Context, goal string, constraints PlanConstraints) (*Plan, error)

	// RevisePlan produces a new plan from a previous one plus user feedback,
	// under the same constraints the agent was configured with. Same shape
	// and failure contract as GeneratePlan.
	RevisePlan(ctx context.Context, goal string, constraints PlanConstraints, previous *Plan, feedback string) (*Plan, error)

	// GenerateReply produces a free-text reply for a conversation turn. It
	// must not fail the caller: on internal error it returns FallbackReply.
	GenerateReply(ctx context.Context, agent *models.Agent, message string) string

	// DetectCompletions returns the subset of pending titles the user claims
	// to have finished, or nil when the message is unrelated. Errors mean
	// "nothing detected" to the caller, but are returned for diagnostics.
	DetectCompletions(ctx context.Context, message string, pendingTitles []string) ([]string, error)
}

// granularityLimits pins how many tasks each granularity setting allows.
var granularityLimits = map[models.Granularity]struct{ Min, Max int }{
	models.GranularityMinimal:  {1, 3},
	models.GranularityBalanced: {4, 8},
	models.GranularityDetailed: {9, 15},
}

// TaskLimits returns the inclusive task-count bounds for a granularity
// setting. Unknown values fall back to balanced.
func TaskLimits(g models.Granularity) (min, max int) {
	l, ok := granularityLimits[g]
	if !ok {
		l = granularityLimits[models.GranularityBalanced]
	}
	return l.Min, l.Max
}
