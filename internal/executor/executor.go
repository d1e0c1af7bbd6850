package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luminara-labs/luminara/internal/models"
	"github.com/luminara-labs/luminara/internal/store"
)

// Executor runs one task's action at a time per task id, writing every state
// change through the store. Failures are contained per-task and retryable by
// calling Execute again on the failed task.
type Executor struct {
	store  *store.Store
	action Action
	logger *zap.Logger

	inflight inflightSet
}

// New creates an executor backed by the given action collaborator.
func New(s *store.Store, action Action, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:    s,
		action:   action,
		logger:   logger,
		inflight: newInflightSet(),
	}
}

// Execute runs the action for one task. Missing agent or task ids are a
// no-op. A task already mid-execution is not started twice: the in-flight set
// guarantees at-most-one concurrent execution per task id.
//
// The task becomes in_progress before the action runs, so observers see the
// transition immediately. On success the task is completed, a success entry
// is appended to the action log, and a system chat message announces the
// completion. On failure the task is failed with a human-readable reason and
// a failure entry is logged; no chat message is appended.
func (e *Executor) Execute(ctx context.Context, agentID, taskID string) models.ActionOutcome {
	agent := e.store.Get(agentID)
	if agent == nil {
		return ""
	}
	task := agent.Task(taskID)
	if task == nil {
		return ""
	}

	if !e.inflight.tryAdd(taskID) {
		e.logger.Debug("task already executing, skipping",
			zap.String("agent_id", agentID), zap.String("task_id", taskID))
		return ""
	}
	defer e.inflight.remove(taskID)

	if updated := e.store.BeginTask(agentID, taskID); updated == nil {
		// The task was not in a startable state (already completed, or the
		// agent vanished mid-flight).
		return ""
	}

	err := e.action.Perform(ctx, agent, task)
	if err != nil {
		reason := fmt.Sprintf("%s action failed: %v", e.action.Name(), err)
		e.store.FailTask(agentID, taskID, reason)
		e.store.AppendActionLog(agentID, models.ActionLogEntry{
			TaskID:    taskID,
			TaskTitle: task.Title,
			Outcome:   models.OutcomeFailure,
			Error:     reason,
		})
		e.logger.Warn("task execution failed",
			zap.String("agent_id", agentID), zap.String("task_id", taskID), zap.Error(err))
		return models.OutcomeFailure
	}

	e.store.CompleteTask(agentID, taskID)
	e.store.AppendActionLog(agentID, models.ActionLogEntry{
		TaskID:    taskID,
		TaskTitle: task.Title,
		Outcome:   models.OutcomeSuccess,
	})
	e.store.AppendMessage(agentID, models.Message{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf("✓ Agent completed task: **%q**.", task.Title),
	})
	e.logger.Info("task executed",
		zap.String("agent_id", agentID), zap.String("task_id", taskID))
	return models.OutcomeSuccess
}

// Executing reports whether the task currently has an in-flight run.
func (e *Executor) Executing(taskID string) bool {
	return e.inflight.has(taskID)
}
