// Package models defines the core domain types for Luminara.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// taskTransitions enumerates the legal task status transitions.
// Completed is terminal: nothing moves a task out of it.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusCompleted},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusFailed:     {TaskStatusInProgress},
	TaskStatusCompleted:  {},
}

// CanTransition reports whether a task may move from one status to another.
// A transition to the same status is allowed (idempotent update).
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActionType classifies the real-world action a task maps to.
type ActionType string

const (
	ActionTypeCalendarEvent ActionType = "calendar_event"
	ActionTypeTask          ActionType = "task"
	ActionTypeReminder      ActionType = "reminder"
)

// Task represents one unit of work inside an agent's plan.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     int        `json:"priority"`
	DurationMins int        `json:"duration_mins"`
	Due          *time.Time `json:"due,omitempty"`
	ActionType   ActionType `json:"action_type"`
	Status       TaskStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusPaused   AgentStatus = "paused"
	AgentStatusArchived AgentStatus = "archived"
)

// AgentPriority is the user-assigned priority of an agent's goal.
type AgentPriority string

const (
	PriorityLow    AgentPriority = "low"
	PriorityMedium AgentPriority = "medium"
	PriorityHigh   AgentPriority = "high"
)

// Granularity constrains how many tasks a generated plan should contain.
type Granularity string

const (
	GranularityMinimal  Granularity = "minimal"
	GranularityBalanced Granularity = "balanced"
	GranularityDetailed Granularity = "detailed"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageAction tags a system message that carries a pending, user-confirmable
// bulk action. It is applied only through the explicit confirmation operation.
type MessageAction string

const ActionConfirmMarkAll MessageAction = "confirm_mark_all"

// Message is one entry in an agent's chat transcript. Transcripts are
// append-only; ordering is append position, not timestamp value.
type Message struct {
	Role      MessageRole   `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Action    MessageAction `json:"action,omitempty"`
	TaskIDs   []string      `json:"task_ids,omitempty"`
}

// ActionOutcome is the result of one executor run.
type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeFailure ActionOutcome = "failure"
)

// ActionLogEntry is an immutable audit record of one executor run.
type ActionLogEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	TaskID    string        `json:"task_id"`
	TaskTitle string        `json:"task_title"`
	Outcome   ActionOutcome `json:"outcome"`
	Error     string        `json:"error,omitempty"`
}

// AgentConfig holds per-agent execution settings.
type AgentConfig struct {
	AutoExecute     bool        `json:"auto_execute"`
	MaxDailyActions int         `json:"max_daily_actions"`
	Granularity     Granularity `json:"granularity"`
}

// Agent is one autonomous unit of work: a goal, a task plan, a chat
// transcript, and an execution log.
type Agent struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Goal        string           `json:"goal"`
	Status      AgentStatus      `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	DeletedAt   *time.Time       `json:"deleted_at,omitempty"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Priority    AgentPriority    `json:"priority"`
	Tasks       []Task           `json:"tasks"`
	Progress    int              `json:"progress"`
	Chat        []Message        `json:"chat"`
	Config      AgentConfig      `json:"config"`
	ActionsLog  []ActionLogEntry `json:"actions_log"`
}

// PendingTasks returns the agent's tasks that are still pending, in plan order.
func (a *Agent) PendingTasks() []Task {
	var pending []Task
	for _, t := range a.Tasks {
		if t.Status == TaskStatusPending {
			pending = append(pending, t)
		}
	}
	return pending
}

// Task returns the task with the given id, or nil if the agent does not own it.
func (a *Agent) Task(taskID string) *Task {
	for i := range a.Tasks {
		if a.Tasks[i].ID == taskID {
			return &a.Tasks[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the agent. The store hands out clones only, so
// no caller ever holds a reference into the store's entity graph.
func (a *Agent) Clone() *Agent {
	c := *a
	c.DeletedAt = cloneTime(a.DeletedAt)
	c.Deadline = cloneTime(a.Deadline)
	if a.Tasks != nil {
		c.Tasks = make([]Task, len(a.Tasks))
		for i, t := range a.Tasks {
			c.Tasks[i] = t
			c.Tasks[i].Due = cloneTime(t.Due)
			c.Tasks[i].CompletedAt = cloneTime(t.CompletedAt)
		}
	}
	if a.Chat != nil {
		c.Chat = make([]Message, len(a.Chat))
		for i, m := range a.Chat {
			c.Chat[i] = m
			if m.TaskIDs != nil {
				c.Chat[i].TaskIDs = append([]string(nil), m.TaskIDs...)
			}
		}
	}
	if a.ActionsLog != nil {
		c.ActionsLog = append([]ActionLogEntry(nil), a.ActionsLog...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
