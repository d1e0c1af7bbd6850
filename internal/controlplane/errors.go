package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrEmptyGoal     = errors.New("goal must not be empty")
	ErrEmptyMessage  = errors.New("message must not be empty")
)
