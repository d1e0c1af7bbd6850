package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luminara-labs/luminara/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "luminara.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleAgent() *models.Agent {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(72 * time.Hour)
	due := now.Add(24 * time.Hour)
	return &models.Agent{
		ID:          "a1",
		Name:        "Trip Agent",
		Description: "Plans the trip.",
		Goal:        "Plan a trip to Kyoto",
		Status:      models.AgentStatusActive,
		CreatedAt:   now,
		Deadline:    &deadline,
		Priority:    models.PriorityHigh,
		Progress:    50,
		Tasks: []models.Task{
			{
				ID: "t1", Title: "Book flights", Priority: 5, DurationMins: 45,
				Due: &due, ActionType: models.ActionTypeTask,
				Status: models.TaskStatusCompleted, CreatedAt: now, CompletedAt: &now,
			},
			{
				ID: "t2", Title: "Reserve hotel", Priority: 4, DurationMins: 30,
				ActionType: models.ActionTypeTask,
				Status:     models.TaskStatusPending, CreatedAt: now,
			},
		},
		Chat: []models.Message{
			{Role: models.RoleUser, Content: "booked the flights", Timestamp: now},
			{Role: models.RoleSystem, Content: "Marked complete", Timestamp: now, TaskIDs: []string{"t1"}},
		},
		ActionsLog: []models.ActionLogEntry{
			{Timestamp: now, TaskID: "t1", TaskTitle: "Book flights", Outcome: models.OutcomeSuccess},
		},
		Config: models.AgentConfig{
			AutoExecute:     true,
			MaxDailyActions: 5,
			Granularity:     models.GranularityBalanced,
		},
	}
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "luminara.db")

	d, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestSaveAndLoadAgent(t *testing.T) {
	d := newTestDB(t)

	agent := sampleAgent()
	if err := d.SaveAgent(agent); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	got, err := d.LoadAgent("a1")
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if got == nil {
		t.Fatal("LoadAgent returned nil")
	}

	if got.Name != agent.Name || got.Goal != agent.Goal || got.Progress != 50 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Priority != models.PriorityHigh {
		t.Errorf("priority = %s, want high", got.Priority)
	}
	if got.Deadline == nil || !got.Deadline.Equal(*agent.Deadline) {
		t.Errorf("deadline = %v, want %v", got.Deadline, agent.Deadline)
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(got.Tasks))
	}
	if got.Tasks[0].Status != models.TaskStatusCompleted || got.Tasks[0].CompletedAt == nil {
		t.Errorf("task t1 not restored: %+v", got.Tasks[0])
	}
	if len(got.Chat) != 2 || got.Chat[1].TaskIDs[0] != "t1" {
		t.Errorf("chat not restored: %+v", got.Chat)
	}
	if len(got.ActionsLog) != 1 || got.ActionsLog[0].Outcome != models.OutcomeSuccess {
		t.Errorf("actions log not restored: %+v", got.ActionsLog)
	}
	if !got.Config.AutoExecute || got.Config.Granularity != models.GranularityBalanced {
		t.Errorf("config not restored: %+v", got.Config)
	}
}

func TestSaveAgentUpsert(t *testing.T) {
	d := newTestDB(t)

	agent := sampleAgent()
	if err := d.SaveAgent(agent); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	agent.Progress = 100
	agent.Tasks[1].Status = models.TaskStatusCompleted
	if err := d.SaveAgent(agent); err != nil {
		t.Fatalf("second SaveAgent failed: %v", err)
	}

	agents, err := d.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("len(agents) = %d, want 1 after upsert", len(agents))
	}
	if agents[0].Progress != 100 {
		t.Errorf("progress = %d, want 100", agents[0].Progress)
	}
	if agents[0].Tasks[1].Status != models.TaskStatusCompleted {
		t.Errorf("task t2 status = %s, want completed", agents[0].Tasks[1].Status)
	}
}

func TestLoadAgentsIncludesArchived(t *testing.T) {
	d := newTestDB(t)

	active := sampleAgent()
	if err := d.SaveAgent(active); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	deletedAt := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	archived := sampleAgent()
	archived.ID = "a2"
	archived.Status = models.AgentStatusArchived
	archived.DeletedAt = &deletedAt
	if err := d.SaveAgent(archived); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	agents, err := d.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("len(agents) = %d, want 2", len(agents))
	}

	var got *models.Agent
	for _, a := range agents {
		if a.ID == "a2" {
			got = a
		}
	}
	if got == nil {
		t.Fatal("archived agent not loaded")
	}
	if got.Status != models.AgentStatusArchived {
		t.Errorf("status = %s, want archived", got.Status)
	}
	if got.DeletedAt == nil || !got.DeletedAt.Equal(deletedAt) {
		t.Errorf("deleted_at = %v, want %v", got.DeletedAt, deletedAt)
	}
}

func TestLoadAgentMissing(t *testing.T) {
	d := newTestDB(t)

	got, err := d.LoadAgent("ghost")
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing agent, got %+v", got)
	}
}

func TestDeleteAgent(t *testing.T) {
	d := newTestDB(t)

	if err := d.SaveAgent(sampleAgent()); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	if err := d.DeleteAgent("a1"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}

	got, err := d.LoadAgent("a1")
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if got != nil {
		t.Error("agent still present after delete")
	}
}
