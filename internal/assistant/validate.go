package assistant

import "fmt"

// ValidatePlan checks a generated plan before it is admitted into the entity
// graph. Malformed model output is rejected here with a *GenerationError
// rather than propagated into the state store.
func ValidatePlan(p *Plan) error {
	if p == nil {
		return &GenerationError{Cause: "model returned no plan"}
	}
	if p.AgentName == "" {
		return &GenerationError{Cause: "plan is missing an agent name"}
	}
	if len(p.Tasks) == 0 {
		return &GenerationError{Cause: "plan contains no tasks"}
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return &GenerationError{Cause: fmt.Sprintf("confidence %v outside [0,1]", p.Confidence)}
	}
	for i, t := range p.Tasks {
		if t.Title == "" {
			return &GenerationError{Cause: fmt.Sprintf("task %d has no title", i+1)}
		}
		if t.Priority < 1 || t.Priority > 5 {
			return &GenerationError{Cause: fmt.Sprintf("task %q has priority %d outside 1..5", t.Title, t.Priority)}
		}
		if t.DurationMins < 0 {
			return &GenerationError{Cause: fmt.Sprintf("task %q has negative duration", t.Title)}
		}
	}
	return nil
}
