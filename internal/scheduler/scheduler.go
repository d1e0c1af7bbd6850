package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luminara-labs/luminara/internal/executor"
	"github.com/luminara-labs/luminara/internal/models"
	"github.com/luminara-labs/luminara/internal/store"
)

// Scheduler polls for agents with auto-execute enabled and dispatches their
// pending tasks through the executor. The executor's in-flight set is the
// per-task serialization authority; the scheduler only enforces pool limits
// and the agent's daily action budget.
type Scheduler struct {
	store    *store.Store
	executor *executor.Executor
	config   *Config
	logger   *zap.Logger

	mu            sync.Mutex
	activeWorkers int
	agentCounts   map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler.
func New(s *store.Store, e *executor.Executor, cfg *Config, logger *zap.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:       s,
		executor:    e,
		config:      cfg,
		logger:      logger,
		agentCounts: make(map[string]int),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.loop()
	sch.logger.Info("scheduler started")
}

// Stop cancels the loop and waits for in-flight workers to finish. Started
// executions are never cancelled; they run to success or failure.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped")
}

func (sch *Scheduler) loop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch scans active auto-execute agents and dispatches at most one
// task per agent per tick, within the pool limits.
func (sch *Scheduler) pollAndDispatch() {
	for _, agent := range sch.store.Active() {
		if agent.Status != models.AgentStatusActive || !agent.Config.AutoExecute {
			continue
		}
		if agent.Config.MaxDailyActions > 0 && sch.actionsToday(agent) >= agent.Config.MaxDailyActions {
			continue
		}

		task := sch.nextTask(agent)
		if task == nil {
			continue
		}

		if !sch.reserve(agent.ID) {
			continue
		}

		sch.logger.Debug("dispatching task",
			zap.String("agent_id", agent.ID),
			zap.String("task_id", task.ID),
			zap.String("title", task.Title))

		sch.wg.Add(1)
		go sch.runWorker(agent.ID, task.ID)
	}
}

// nextTask picks the first pending task that is not already executing.
func (sch *Scheduler) nextTask(agent *models.Agent) *models.Task {
	for i := range agent.Tasks {
		t := &agent.Tasks[i]
		if t.Status != models.TaskStatusPending {
			continue
		}
		if sch.executor.Executing(t.ID) {
			continue
		}
		return t
	}
	return nil
}

// actionsToday counts executor runs recorded for the current UTC day.
func (sch *Scheduler) actionsToday(agent *models.Agent) int {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	n := 0
	for _, entry := range agent.ActionsLog {
		if !entry.Timestamp.UTC().Truncate(24 * time.Hour).Equal(today) {
			continue
		}
		n++
	}
	return n
}

// reserve claims a worker slot for an agent, returning false when either the
// global or the per-agent limit is reached.
func (sch *Scheduler) reserve(agentID string) bool {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	if sch.activeWorkers >= sch.config.GlobalMax {
		return false
	}
	if sch.agentCounts[agentID] >= sch.config.PerAgent {
		return false
	}
	sch.activeWorkers++
	sch.agentCounts[agentID]++
	return true
}

func (sch *Scheduler) release(agentID string) {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.activeWorkers--
	sch.agentCounts[agentID]--
}

func (sch *Scheduler) runWorker(agentID, taskID string) {
	defer sch.wg.Done()
	defer sch.release(agentID)

	outcome := sch.executor.Execute(sch.ctx, agentID, taskID)
	if outcome == "" {
		return
	}
	sch.logger.Info("auto-executed task",
		zap.String("agent_id", agentID),
		zap.String("task_id", taskID),
		zap.String("outcome", string(outcome)))
}

// Stats returns current scheduler counters.
func (sch *Scheduler) Stats() (active int, perAgent map[string]int) {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	perAgent = make(map[string]int, len(sch.agentCounts))
	for k, v := range sch.agentCounts {
		perAgent[k] = v
	}
	return sch.activeWorkers, perAgent
}
