// Package controlplane provides the HTTP API and service layer for Luminara.
package controlplane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luminara-labs/luminara/internal/assistant"
	"github.com/luminara-labs/luminara/internal/executor"
	"github.com/luminara-labs/luminara/internal/match"
	"github.com/luminara-labs/luminara/internal/models"
	"github.com/luminara-labs/luminara/internal/store"
)

// Defaults applied to new agents when the creation request leaves them unset.
type Defaults struct {
	MaxDailyActions int
	Granularity     models.Granularity
}

// Service provides the agent workspace business logic. All mutations go
// through the store; the assistant and executor are collaborators.
type Service struct {
	store     *store.Store
	assistant assistant.Assistant
	executor  *executor.Executor
	defaults  Defaults
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the control plane service.
func NewService(s *store.Store, a assistant.Assistant, e *executor.Executor, defaults Defaults, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.MaxDailyActions == 0 {
		defaults.MaxDailyActions = 5
	}
	if defaults.Granularity == "" {
		defaults.Granularity = models.GranularityBalanced
	}
	return &Service{
		store:     s,
		assistant: a,
		executor:  e,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateAgentRequest carries the wizard inputs for a new agent.
type CreateAgentRequest struct {
	Goal        string               `json:"goal"`
	Deadline    *time.Time           `json:"deadline,omitempty"`
	DailyHours  string               `json:"daily_hours,omitempty"`
	Granularity models.Granularity   `json:"granularity,omitempty"`
	Priority    models.AgentPriority `json:"priority,omitempty"`
	AutoExecute bool                 `json:"auto_execute"`
}

// CreateAgent generates a plan for the goal and admits a new agent into the
// store. Plan failures (including schema violations) surface to the caller
// as a *assistant.GenerationError.
func (s *Service) CreateAgent(ctx context.Context, req CreateAgentRequest) (*models.Agent, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, ErrEmptyGoal
	}

	granularity := req.Granularity
	if granularity == "" {
		granularity = s.defaults.Granularity
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	constraints := assistant.PlanConstraints{
		DailyHours:  req.DailyHours,
		Granularity: granularity,
	}
	if req.Deadline != nil {
		constraints.Deadline = req.Deadline.Format(time.RFC3339)
	}

	plan, err := s.assistant.GeneratePlan(ctx, req.Goal, constraints)
	if err != nil {
		return nil, err
	}
	if err := assistant.ValidatePlan(plan); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	agent := &models.Agent{
		ID:          uuid.New().String(),
		Name:        plan.AgentName,
		Description: plan.Description,
		Goal:        req.Goal,
		Status:      models.AgentStatusActive,
		CreatedAt:   now,
		Deadline:    req.Deadline,
		Priority:    priority,
		Tasks:       s.planTasks(plan, now),
		Chat: []models.Message{{
			Role:      models.RoleAssistant,
			Content:   fmt.Sprintf("Hello! I'm your new agent, **%s**. %s", plan.AgentName, plan.Explanation),
			Timestamp: now,
		}},
		Config: models.AgentConfig{
			AutoExecute:     req.AutoExecute,
			MaxDailyActions: s.defaults.MaxDailyActions,
			Granularity:     granularity,
		},
	}

	s.store.Add(agent)
	s.logger.Info("agent created",
		zap.String("agent_id", agent.ID),
		zap.String("name", agent.Name),
		zap.Int("tasks", len(agent.Tasks)))
	return s.store.Get(agent.ID), nil
}

// ReviseAgent regenerates the plan for an agent from user feedback. Tasks
// already completed or failed are kept; the pending remainder is replaced by
// the revised plan.
func (s *Service) ReviseAgent(ctx context.Context, agentID, feedback string) (*models.Agent, error) {
	agent := s.store.Get(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	previous := &assistant.Plan{
		AgentName:   agent.Name,
		Description: agent.Description,
	}
	for _, t := range agent.Tasks {
		previous.Tasks = append(previous.Tasks, assistant.PlanTask{
			Title:        t.Title,
			Description:  t.Description,
			Priority:     t.Priority,
			DurationMins: t.DurationMins,
			ActionType:   t.ActionType,
		})
	}

	granularity := agent.Config.Granularity
	if granularity == "" {
		granularity = s.defaults.Granularity
	}
	constraints := assistant.PlanConstraints{Granularity: granularity}
	if agent.Deadline != nil {
		constraints.Deadline = agent.Deadline.Format(time.RFC3339)
	}

	plan, err := s.assistant.RevisePlan(ctx, agent.Goal, constraints, previous, feedback)
	if err != nil {
		return nil, err
	}
	if err := assistant.ValidatePlan(plan); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var tasks []models.Task
	for _, t := range agent.Tasks {
		if t.Status != models.TaskStatusPending {
			tasks = append(tasks, t)
		}
	}
	tasks = append(tasks, s.planTasks(plan, now)...)

	name := plan.AgentName
	desc := plan.Description
	updated := s.store.UpdateAgent(agentID, store.AgentPatch{
		Name:        &name,
		Description: &desc,
		Tasks:       &tasks,
	})
	s.logger.Info("agent plan revised", zap.String("agent_id", agentID), zap.Int("tasks", len(tasks)))
	return updated, nil
}

// planTasks converts validated plan tasks into pending task entities.
func (s *Service) planTasks(plan *assistant.Plan, now time.Time) []models.Task {
	tasks := make([]models.Task, 0, len(plan.Tasks))
	for _, pt := range plan.Tasks {
		actionType := pt.ActionType
		if actionType == "" {
			actionType = models.ActionTypeTask
		}
		task := models.Task{
			ID:           uuid.New().String(),
			Title:        pt.Title,
			Description:  pt.Description,
			Priority:     pt.Priority,
			DurationMins: pt.DurationMins,
			ActionType:   actionType,
			Status:       models.TaskStatusPending,
			CreatedAt:    now,
		}
		if pt.Due != "" {
			if due, err := time.Parse(time.RFC3339, pt.Due); err == nil {
				task.Due = &due
			} else if due, err := time.Parse("2006-01-02T15:04:05", pt.Due); err == nil {
				task.Due = &due
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// SendMessage records the user's message, reconciles any task completions it
// implies, and otherwise generates an assistant reply. The returned agent
// reflects the full exchange.
//
// Completion detection is failure-soft: a collaborator outage degrades to
// "nothing detected" and the conversation continues.
func (s *Service) SendMessage(ctx context.Context, agentID, message string) (*models.Agent, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	agent := s.store.Get(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	updated := s.store.AppendMessage(agentID, models.Message{
		Role:      models.RoleUser,
		Content:   message,
		Timestamp: s.now().UTC(),
	})
	if updated == nil {
		return nil, ErrAgentNotFound
	}

	if completed := s.reconcileCompletions(ctx, agent, agentID, message); completed > 0 {
		return s.store.Get(agentID), nil
	}

	reply := s.assistant.GenerateReply(ctx, s.store.Get(agentID), message)
	s.store.AppendMessage(agentID, models.Message{
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: s.now().UTC(),
	})
	return s.store.Get(agentID), nil
}

// reconcileCompletions runs the completion detector over a user message and
// marks every resolvable claimed title as completed. Returns the number of
// tasks completed.
func (s *Service) reconcileCompletions(ctx context.Context, agent *models.Agent, agentID, message string) int {
	pending := agent.PendingTasks()
	if len(pending) == 0 {
		// Never invoke the model when there is nothing to complete.
		return 0
	}

	titles := make([]string, len(pending))
	for i, t := range pending {
		titles[i] = t.Title
	}

	claimed, err := s.assistant.DetectCompletions(ctx, message, titles)
	if err != nil {
		s.logger.Warn("completion detection failed, treating as no completions",
			zap.String("agent_id", agentID), zap.Error(err))
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}

	var completed []models.Task
	for _, title := range claimed {
		current := s.store.Get(agentID)
		if current == nil {
			return len(completed)
		}
		// Titles from the detector are not ids; resolve each against the
		// tasks still pending right now. A title that no longer matches
		// (completed in a faster concurrent flow) is silently discarded.
		target := match.FindBest(title, current.Tasks)
		if target == nil {
			continue
		}
		if updated := s.store.CompleteTask(agentID, target.ID); updated != nil {
			completed = append(completed, *target)
		}
	}

	if len(completed) == 0 {
		return 0
	}

	var content string
	if len(completed) == 1 {
		content = fmt.Sprintf("✓ You marked **%q** as complete.", completed[0].Title)
	} else {
		lines := make([]string, len(completed))
		for i, t := range completed {
			lines[i] = fmt.Sprintf("* **%q**", t.Title)
		}
		content = fmt.Sprintf("✓ You marked %d tasks as complete:\n%s", len(completed), strings.Join(lines, "\n"))
	}
	s.store.AppendMessage(agentID, models.Message{
		Role:      models.RoleSystem,
		Content:   content,
		Timestamp: s.now().UTC(),
	})
	return len(completed)
}

// ConfirmMarkAll applies a user-confirmed bulk completion carried by a system
// message. Missing or non-pending task ids are skipped, not errors.
func (s *Service) ConfirmMarkAll(agentID string, taskIDs []string) (*models.Agent, error) {
	agent := s.store.Get(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	marked := 0
	for _, taskID := range taskIDs {
		current := s.store.Get(agentID)
		if current == nil {
			break
		}
		// Only pending tasks are confirmable; ids that are missing or already
		// settled (including duplicates in the request) are skipped.
		task := current.Task(taskID)
		if task == nil || task.Status != models.TaskStatusPending {
			continue
		}
		if updated := s.store.CompleteTask(agentID, taskID); updated != nil {
			marked++
		}
	}
	if marked > 0 {
		s.store.AppendMessage(agentID, models.Message{
			Role:      models.RoleSystem,
			Content:   fmt.Sprintf("✓ Marked %d tasks complete!", marked),
			Timestamp: s.now().UTC(),
		})
	}
	return s.store.Get(agentID), nil
}

// ExecuteTask runs the action for one task through the executor.
func (s *Service) ExecuteTask(ctx context.Context, agentID, taskID string) (models.ActionOutcome, error) {
	agent := s.store.Get(agentID)
	if agent == nil {
		return "", ErrAgentNotFound
	}
	if agent.Task(taskID) == nil {
		return "", ErrTaskNotFound
	}
	return s.executor.Execute(ctx, agentID, taskID), nil
}

// --- Lifecycle operations ---

// GetAgent returns the agent with the given id.
func (s *Service) GetAgent(agentID string) (*models.Agent, error) {
	agent := s.store.Get(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// ListAgents returns all agents, or only the non-deleted ones.
func (s *Service) ListAgents(includeDeleted bool) []*models.Agent {
	if includeDeleted {
		return s.store.List()
	}
	return s.store.Active()
}

// ToggleStatus flips an agent between active and paused.
func (s *Service) ToggleStatus(agentID string) (*models.Agent, error) {
	agent := s.store.ToggleStatus(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// ToggleAutoExecute flips the agent's auto-execute setting.
func (s *Service) ToggleAutoExecute(agentID string) (*models.Agent, error) {
	agent := s.store.ToggleAutoExecute(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

// DeleteAgent soft-deletes an agent. It stays restorable until the UI's undo
// window closes; the core keeps no timer.
func (s *Service) DeleteAgent(agentID string) (*models.Agent, error) {
	agent := s.store.SoftDelete(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	s.logger.Info("agent soft-deleted", zap.String("agent_id", agentID))
	return agent, nil
}

// RestoreAgent undoes a soft delete. The restored agent is always active.
func (s *Service) RestoreAgent(agentID string) (*models.Agent, error) {
	agent := s.store.Restore(agentID)
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	s.logger.Info("agent restored", zap.String("agent_id", agentID))
	return agent, nil
}
