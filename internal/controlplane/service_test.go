package controlplane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminara-labs/luminara/internal/assistant"
	"github.com/luminara-labs/luminara/internal/executor"
	"github.com/luminara-labs/luminara/internal/models"
	"github.com/luminara-labs/luminara/internal/store"
)

// fakeAssistant scripts the language-model collaborator.
type fakeAssistant struct {
	plan       *assistant.Plan
	planErr    error
	reply      string
	detected   []string
	detectErr  error
	detectSeen []string
	reviseSeen assistant.PlanConstraints
}

func (f *fakeAssistant) GeneratePlan(_ context.Context, _ string, _ assistant.PlanConstraints) (*assistant.Plan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	return f.plan, nil
}

func (f *fakeAssistant) RevisePlan(_ context.Context, _ string, constraints assistant.PlanConstraints, _ *assistant.Plan, _ string) (*assistant.Plan, error) {
	f.reviseSeen = constraints
	if f.planErr != nil {
		return nil, f.planErr
	}
	return f.plan, nil
}

func (f *fakeAssistant) GenerateReply(_ context.Context, _ *models.Agent, _ string) string {
	if f.reply == "" {
		return assistant.FallbackReply
	}
	return f.reply
}

func (f *fakeAssistant) DetectCompletions(_ context.Context, _ string, pendingTitles []string) ([]string, error) {
	f.detectSeen = pendingTitles
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.detected, nil
}

// noopAction always succeeds instantly.
type noopAction struct{}

func (noopAction) Name() string { return "noop" }
func (noopAction) Perform(context.Context, *models.Agent, *models.Task) error {
	return nil
}

func newTestService(fa *fakeAssistant) (*Service, *store.Store) {
	s := store.New()
	exec := executor.New(s, noopAction{}, nil)
	svc := NewService(s, fa, exec, Defaults{}, nil)
	return svc, s
}

func seedAgent(s *store.Store) *models.Agent {
	agent := &models.Agent{
		ID:        "a1",
		Name:      "Semester Agent",
		Goal:      "Finish the semester",
		Status:    models.AgentStatusActive,
		CreatedAt: time.Now().UTC(),
		Tasks: []models.Task{
			{ID: "t1", Title: "Email professor", Status: models.TaskStatusPending, CreatedAt: time.Now().UTC()},
			{ID: "t2", Title: "Submit form", Status: models.TaskStatusPending, CreatedAt: time.Now().UTC()},
		},
	}
	s.Add(agent)
	return agent
}

func TestCreateAgent(t *testing.T) {
	fa := &fakeAssistant{
		plan: &assistant.Plan{
			AgentName:   "Exam Prep Agent",
			Description: "Preps for finals.",
			Tasks: []assistant.PlanTask{
				{Title: "Review notes", Priority: 3, DurationMins: 60},
				{Title: "Practice problems", Priority: 4, DurationMins: 90, Due: "2026-09-10T09:00:00"},
			},
			Confidence:  0.9,
			Explanation: "Two study blocks.",
		},
	}
	svc, _ := newTestService(fa)

	agent, err := svc.CreateAgent(context.Background(), CreateAgentRequest{
		Goal:        "Pass the final exam",
		Granularity: models.GranularityMinimal,
		AutoExecute: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Exam Prep Agent", agent.Name)
	assert.Equal(t, models.AgentStatusActive, agent.Status)
	assert.Equal(t, 0, agent.Progress)
	assert.True(t, agent.Config.AutoExecute)
	assert.Equal(t, models.GranularityMinimal, agent.Config.Granularity)

	require.Len(t, agent.Tasks, 2)
	for _, task := range agent.Tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
		assert.NotEmpty(t, task.ID)
	}
	require.NotNil(t, agent.Tasks[1].Due, "plan due dates must be parsed")

	require.Len(t, agent.Chat, 1)
	assert.Equal(t, models.RoleAssistant, agent.Chat[0].Role)
	assert.Contains(t, agent.Chat[0].Content, "Exam Prep Agent")
}

func TestCreateAgent_EmptyGoal(t *testing.T) {
	svc, _ := newTestService(&fakeAssistant{})
	_, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Goal: "   "})
	assert.ErrorIs(t, err, ErrEmptyGoal)
}

func TestCreateAgent_GenerationErrorSurfaces(t *testing.T) {
	fa := &fakeAssistant{planErr: &assistant.GenerationError{Cause: "model unavailable"}}
	svc, s := newTestService(fa)

	_, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Goal: "anything"})

	var genErr *assistant.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Empty(t, s.List(), "failed generation must not admit an agent")
}

func TestCreateAgent_MalformedPlanRejected(t *testing.T) {
	fa := &fakeAssistant{plan: &assistant.Plan{AgentName: "X", Tasks: []assistant.PlanTask{{Title: "", Priority: 3}}}}
	svc, s := newTestService(fa)

	_, err := svc.CreateAgent(context.Background(), CreateAgentRequest{Goal: "anything"})

	var genErr *assistant.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Empty(t, s.List())
}

func TestSendMessage_CompletionScenario(t *testing.T) {
	// Chat message "I already emailed the professor" -> detector claims
	// "Email professor" -> t1 completes, t2 untouched, progress 50.
	fa := &fakeAssistant{detected: []string{"Email professor"}}
	svc, s := newTestService(fa)
	seedAgent(s)

	agent, err := svc.SendMessage(context.Background(), "a1", "I already emailed the professor")
	require.NoError(t, err)

	assert.Equal(t, []string{"Email professor", "Submit form"}, fa.detectSeen,
		"detector must receive the pending titles")

	t1 := agent.Task("t1")
	assert.Equal(t, models.TaskStatusCompleted, t1.Status)
	assert.NotNil(t, t1.CompletedAt)
	assert.Equal(t, models.TaskStatusPending, agent.Task("t2").Status)
	assert.Equal(t, 50, agent.Progress)

	// Transcript: user message then one system summary; no assistant reply
	// when a completion was reconciled.
	require.Len(t, agent.Chat, 2)
	assert.Equal(t, models.RoleUser, agent.Chat[0].Role)
	assert.Equal(t, models.RoleSystem, agent.Chat[1].Role)
	assert.Contains(t, agent.Chat[1].Content, "Email professor")
}

func TestSendMessage_MultipleCompletions(t *testing.T) {
	fa := &fakeAssistant{detected: []string{"Email professor", "Submit form"}}
	svc, s := newTestService(fa)
	seedAgent(s)

	agent, err := svc.SendMessage(context.Background(), "a1", "done with the email and the form")
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, agent.Task("t1").Status)
	assert.Equal(t, models.TaskStatusCompleted, agent.Task("t2").Status)
	assert.Equal(t, 100, agent.Progress)
	assert.Contains(t, agent.Chat[len(agent.Chat)-1].Content, "2 tasks")
}

func TestSendMessage_PlainReply(t *testing.T) {
	fa := &fakeAssistant{reply: "Here's how to get started."}
	svc, s := newTestService(fa)
	seedAgent(s)

	agent, err := svc.SendMessage(context.Background(), "a1", "how should I begin?")
	require.NoError(t, err)

	require.Len(t, agent.Chat, 2)
	assert.Equal(t, models.RoleUser, agent.Chat[0].Role)
	assert.Equal(t, models.RoleAssistant, agent.Chat[1].Role)
	assert.Equal(t, "Here's how to get started.", agent.Chat[1].Content)
}

func TestSendMessage_DetectorFailureIsSoft(t *testing.T) {
	fa := &fakeAssistant{
		detectErr: errors.New("model timeout"),
		reply:     "Still here to help.",
	}
	svc, s := newTestService(fa)
	seedAgent(s)

	agent, err := svc.SendMessage(context.Background(), "a1", "I finished emailing the professor")
	require.NoError(t, err, "detector outage must never surface to the user")

	// User message recorded, reply still generated, no task touched.
	require.Len(t, agent.Chat, 2)
	assert.Equal(t, "Still here to help.", agent.Chat[1].Content)
	assert.Equal(t, models.TaskStatusPending, agent.Task("t1").Status)
}

func TestSendMessage_NoPendingTasksSkipsDetector(t *testing.T) {
	fa := &fakeAssistant{reply: "All done already!"}
	svc, s := newTestService(fa)
	agent := seedAgent(s)
	s.CompleteTask(agent.ID, "t1")
	s.CompleteTask(agent.ID, "t2")

	_, err := svc.SendMessage(context.Background(), "a1", "I did everything")
	require.NoError(t, err)
	assert.Nil(t, fa.detectSeen, "detector must not be invoked without pending tasks")
}

func TestSendMessage_UnmatchedTitleDiscarded(t *testing.T) {
	fa := &fakeAssistant{
		detected: []string{"Completely unrelated chore"},
		reply:    "Noted.",
	}
	svc, s := newTestService(fa)
	seedAgent(s)

	agent, err := svc.SendMessage(context.Background(), "a1", "I did the unrelated chore")
	require.NoError(t, err)

	// No title resolved, so the flow falls through to a normal reply.
	assert.Equal(t, models.TaskStatusPending, agent.Task("t1").Status)
	assert.Equal(t, models.TaskStatusPending, agent.Task("t2").Status)
	assert.Equal(t, models.RoleAssistant, agent.Chat[len(agent.Chat)-1].Role)
}

func TestSendMessage_MissingAgent(t *testing.T) {
	svc, _ := newTestService(&fakeAssistant{})
	_, err := svc.SendMessage(context.Background(), "ghost", "hello")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestConfirmMarkAll(t *testing.T) {
	svc, s := newTestService(&fakeAssistant{})
	seedAgent(s)

	agent, err := svc.ConfirmMarkAll("a1", []string{"t1", "t2", "ghost-task"})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, agent.Task("t1").Status)
	assert.Equal(t, models.TaskStatusCompleted, agent.Task("t2").Status)
	assert.Equal(t, 100, agent.Progress)
	assert.Contains(t, agent.Chat[len(agent.Chat)-1].Content, "2 tasks")
}

func TestConfirmMarkAll_SkipsSettledTasks(t *testing.T) {
	svc, s := newTestService(&fakeAssistant{})
	seedAgent(s)

	firstDone := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return firstDone })
	s.CompleteTask("a1", "t1")

	s.SetClock(func() time.Time { return firstDone.Add(time.Hour) })
	agent, err := svc.ConfirmMarkAll("a1", []string{"t1", "t1", "t2"})
	require.NoError(t, err)

	// t1 was settled before the confirmation: its completion stamp must not
	// move, and it must not be counted again.
	require.NotNil(t, agent.Task("t1").CompletedAt)
	assert.True(t, agent.Task("t1").CompletedAt.Equal(firstDone),
		"settled task re-stamped: %v", agent.Task("t1").CompletedAt)
	assert.Equal(t, models.TaskStatusCompleted, agent.Task("t2").Status)
	assert.Contains(t, agent.Chat[len(agent.Chat)-1].Content, "1 task")
}

func TestConfirmMarkAll_AllMissingNoMessage(t *testing.T) {
	svc, s := newTestService(&fakeAssistant{})
	seedAgent(s)

	agent, err := svc.ConfirmMarkAll("a1", []string{"ghost"})
	require.NoError(t, err)
	assert.Empty(t, agent.Chat, "no system message when nothing was marked")
}

func TestReviseAgent_KeepsSettledTasks(t *testing.T) {
	fa := &fakeAssistant{
		plan: &assistant.Plan{
			AgentName:   "Semester Agent v2",
			Description: "Revised.",
			Tasks: []assistant.PlanTask{
				{Title: "Book office hours", Priority: 2, DurationMins: 30},
			},
			Confidence:  0.7,
			Explanation: "Tighter plan.",
		},
	}
	svc, s := newTestService(fa)
	agent := seedAgent(s)
	s.CompleteTask(agent.ID, "t1")

	revised, err := svc.ReviseAgent(context.Background(), "a1", "fewer tasks please")
	require.NoError(t, err)

	assert.Equal(t, "Semester Agent v2", revised.Name)
	require.Len(t, revised.Tasks, 2, "completed task kept, pending replaced")
	assert.Equal(t, models.TaskStatusCompleted, revised.Tasks[0].Status)
	assert.Equal(t, "Book office hours", revised.Tasks[1].Title)
	assert.Equal(t, 50, revised.Progress)
}

func TestReviseAgent_UsesConfiguredGranularity(t *testing.T) {
	fa := &fakeAssistant{
		plan: &assistant.Plan{
			AgentName:   "Semester Agent",
			Description: "Revised.",
			Tasks:       []assistant.PlanTask{{Title: "Outline thesis", Priority: 3, DurationMins: 60}},
			Confidence:  0.8,
			Explanation: "Reworked.",
		},
	}
	svc, s := newTestService(fa)

	deadline := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	s.Add(&models.Agent{
		ID:        "a1",
		Name:      "Semester Agent",
		Goal:      "Finish the semester",
		Status:    models.AgentStatusActive,
		CreatedAt: time.Now().UTC(),
		Deadline:  &deadline,
		Config:    models.AgentConfig{Granularity: models.GranularityDetailed},
		Tasks: []models.Task{
			{ID: "t1", Title: "Email professor", Status: models.TaskStatusPending},
		},
	})

	_, err := svc.ReviseAgent(context.Background(), "a1", "more detail please")
	require.NoError(t, err)

	assert.Equal(t, models.GranularityDetailed, fa.reviseSeen.Granularity,
		"revision must be constrained by the agent's configured granularity")
	assert.Equal(t, deadline.Format(time.RFC3339), fa.reviseSeen.Deadline)
}

func TestExecuteTask_Errors(t *testing.T) {
	svc, s := newTestService(&fakeAssistant{})
	seedAgent(s)

	_, err := svc.ExecuteTask(context.Background(), "ghost", "t1")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = svc.ExecuteTask(context.Background(), "a1", "ghost")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	outcome, err := svc.ExecuteTask(context.Background(), "a1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, outcome)
}

func TestLifecycleOperations(t *testing.T) {
	svc, s := newTestService(&fakeAssistant{})
	seedAgent(s)

	paused, err := svc.ToggleStatus("a1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusPaused, paused.Status)

	auto, err := svc.ToggleAutoExecute("a1")
	require.NoError(t, err)
	assert.True(t, auto.Config.AutoExecute)

	deleted, err := svc.DeleteAgent("a1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusArchived, deleted.Status)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Empty(t, svc.ListAgents(false))
	assert.Len(t, svc.ListAgents(true), 1)

	restored, err := svc.RestoreAgent("a1")
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusActive, restored.Status)
	assert.Nil(t, restored.DeletedAt)

	_, err = svc.ToggleStatus("ghost")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
