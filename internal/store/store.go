// Package store is the single mutation authority for the agent entity graph.
//
// All state changes flow through a Store under one mutex, so derived fields
// (progress) are always consistent with the task list when a caller observes
// them, and chat appends are ordered by append-completion time. The store
// hands out deep copies only; callers never hold a reference into the graph.
package store

import (
	"math"
	"sync"
	"time"

	"github.com/luminara-labs/luminara/internal/models"
)

// Store holds the in-memory agent collection.
type Store struct {
	mu     sync.Mutex
	agents []*models.Agent
	byID   map[string]*models.Agent
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID: make(map[string]*models.Agent),
		now:  time.Now,
	}
}

// SetClock overrides the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AgentPatch is a partial update to an agent. Nil fields are left untouched.
// Status and DeletedAt are deliberately absent: agent lifecycle is mutated
// only through ToggleStatus, SoftDelete and Restore.
type AgentPatch struct {
	Name        *string
	Description *string
	Goal        *string
	Deadline    **time.Time
	Priority    *models.AgentPriority
	Tasks       *[]models.Task
	Config      *models.AgentConfig
}

// TaskPatch is a partial update to a single task. A Status change that is not
// a legal transition invalidates the whole patch.
type TaskPatch struct {
	Status      *models.TaskStatus
	Due         **time.Time
	CompletedAt **time.Time
	LastError   *string
}

// Add inserts an agent into the store. The stored copy is independent of the
// caller's value.
func (s *Store) Add(agent *models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := agent.Clone()
	recomputeProgress(c)
	s.agents = append(s.agents, c)
	s.byID[c.ID] = c
}

// Get returns a copy of the agent with the given id, or nil if absent.
func (s *Store) Get(agentID string) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	return a.Clone()
}

// List returns copies of all agents in insertion order.
func (s *Store) List() []*models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Agent, len(s.agents))
	for i, a := range s.agents {
		out[i] = a.Clone()
	}
	return out
}

// Active returns copies of agents that are not soft-deleted, in insertion order.
func (s *Store) Active() []*models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Agent
	for _, a := range s.agents {
		if a.Status == models.AgentStatusArchived && a.DeletedAt != nil {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// UpdateAgent merges a partial update into the identified agent. When the
// patch replaces the task list, progress is recomputed within the same
// critical section, so no caller observes a stale derivation. Missing ids are
// a no-op. Returns the updated agent, or nil when absent.
func (s *Store) UpdateAgent(agentID string, patch AgentPatch) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyAgentPatch(agentID, patch)
}

func (s *Store) applyAgentPatch(agentID string, patch AgentPatch) *models.Agent {
	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}

	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Goal != nil {
		a.Goal = *patch.Goal
	}
	if patch.Deadline != nil {
		a.Deadline = *patch.Deadline
	}
	if patch.Priority != nil {
		a.Priority = *patch.Priority
	}
	if patch.Config != nil {
		a.Config = *patch.Config
	}
	if patch.Tasks != nil {
		tasks := make([]models.Task, len(*patch.Tasks))
		copy(tasks, *patch.Tasks)
		a.Tasks = tasks
		recomputeProgress(a)
	}
	return a.Clone()
}

// UpdateTask merges a partial update into one task of the identified agent.
// It resolves to an agent update with a derived task list, so it carries the
// same atomic progress guarantee. Missing agent or task ids, and patches
// whose status change is not a legal transition, are no-ops.
func (s *Store) UpdateTask(agentID, taskID string, patch TaskPatch) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}

	idx := -1
	for i := range a.Tasks {
		if a.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	if patch.Status != nil && !models.CanTransition(a.Tasks[idx].Status, *patch.Status) {
		return nil
	}

	tasks := make([]models.Task, len(a.Tasks))
	copy(tasks, a.Tasks)
	t := &tasks[idx]

	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Due != nil {
		t.Due = *patch.Due
	}
	if patch.CompletedAt != nil {
		t.CompletedAt = *patch.CompletedAt
	}
	if patch.LastError != nil {
		t.LastError = *patch.LastError
	}

	return s.applyAgentPatch(agentID, AgentPatch{Tasks: &tasks})
}

// CompleteTask moves a pending or in-progress task to completed and stamps
// completed_at. No-op when the transition is not legal or ids are missing.
func (s *Store) CompleteTask(agentID, taskID string) *models.Agent {
	now := s.clock()
	status := models.TaskStatusCompleted
	completedAt := &now
	return s.UpdateTask(agentID, taskID, TaskPatch{Status: &status, CompletedAt: &completedAt})
}

// FailTask moves an in-progress task to failed with a human-readable reason.
func (s *Store) FailTask(agentID, taskID, reason string) *models.Agent {
	status := models.TaskStatusFailed
	return s.UpdateTask(agentID, taskID, TaskPatch{Status: &status, LastError: &reason})
}

// BeginTask moves a pending or failed (retry) task to in_progress.
func (s *Store) BeginTask(agentID, taskID string) *models.Agent {
	status := models.TaskStatusInProgress
	return s.UpdateTask(agentID, taskID, TaskPatch{Status: &status})
}

// AppendMessage appends a chat message to the agent's transcript. Appends are
// serialized through the store mutex: transcript order is the order appends
// complete, regardless of when the triggering operations started.
func (s *Store) AppendMessage(agentID string, msg models.Message) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	a.Chat = append(a.Chat, msg)
	return a.Clone()
}

// AppendActionLog appends an immutable execution record to the agent's log.
func (s *Store) AppendActionLog(agentID string, entry models.ActionLogEntry) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	a.ActionsLog = append(a.ActionsLog, entry)
	return a.Clone()
}

// ToggleStatus flips an agent between active and paused. Archived agents are
// left untouched.
func (s *Store) ToggleStatus(agentID string) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	switch a.Status {
	case models.AgentStatusActive:
		a.Status = models.AgentStatusPaused
	case models.AgentStatusPaused:
		a.Status = models.AgentStatusActive
	case models.AgentStatusArchived:
		// No-op: lifecycle of archived agents goes through Restore.
	}
	return a.Clone()
}

// ToggleAutoExecute flips the agent's auto-execute setting.
func (s *Store) ToggleAutoExecute(agentID string) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	a.Config.AutoExecute = !a.Config.AutoExecute
	return a.Clone()
}

// SoftDelete archives an agent and stamps deleted_at. The agent stays
// restorable; task statuses are not touched.
func (s *Store) SoftDelete(agentID string) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	now := s.now()
	a.Status = models.AgentStatusArchived
	a.DeletedAt = &now
	return a.Clone()
}

// Restore brings an archived agent back. The restored status is always
// active, regardless of the status before deletion.
func (s *Store) Restore(agentID string) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[agentID]
	if !ok {
		return nil
	}
	if a.Status != models.AgentStatusArchived {
		return a.Clone()
	}
	a.Status = models.AgentStatusActive
	a.DeletedAt = nil
	return a.Clone()
}

func (s *Store) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

// recomputeProgress derives the completion percentage from the task list:
// round(100 * completed / total), half away from zero, or 0 with no tasks.
func recomputeProgress(a *models.Agent) {
	if len(a.Tasks) == 0 {
		a.Progress = 0
		return
	}
	completed := 0
	for _, t := range a.Tasks {
		if t.Status == models.TaskStatusCompleted {
			completed++
		}
	}
	a.Progress = int(math.Round(100 * float64(completed) / float64(len(a.Tasks))))
}
