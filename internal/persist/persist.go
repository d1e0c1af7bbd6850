// Package persist provides SQLite-backed snapshot persistence for agents.
//
// The in-memory store remains the source of truth while the daemon runs;
// persist writes full agent snapshots after mutations and reloads them at
// boot. Tasks, chat, action log, and config are stored as JSON columns
// since they are only ever read back whole.
package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/luminara-labs/luminara/internal/models"
)

// DB wraps the SQLite snapshot database.
type DB struct {
	db *sql.DB
}

// Open creates the database file if needed and runs migrations.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		goal TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		priority TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		deadline DATETIME,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		tasks TEXT NOT NULL,
		chat TEXT NOT NULL,
		actions_log TEXT NOT NULL,
		config TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
	`

	_, err := d.db.Exec(schema)
	return err
}

// SaveAgent upserts a full agent snapshot.
func (d *DB) SaveAgent(agent *models.Agent) error {
	tasks, err := json.Marshal(agent.Tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	chat, err := json.Marshal(agent.Chat)
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}
	actionsLog, err := json.Marshal(agent.ActionsLog)
	if err != nil {
		return fmt.Errorf("marshal actions log: %w", err)
	}
	config, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT INTO agents (id, name, description, goal, status, priority, progress, deadline, deleted_at, created_at, updated_at, tasks, chat, actions_log, config)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			goal = excluded.goal,
			status = excluded.status,
			priority = excluded.priority,
			progress = excluded.progress,
			deadline = excluded.deadline,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at,
			tasks = excluded.tasks,
			chat = excluded.chat,
			actions_log = excluded.actions_log,
			config = excluded.config`,
		agent.ID, agent.Name, agent.Description, agent.Goal, agent.Status, agent.Priority,
		agent.Progress, nullableTime(agent.Deadline), nullableTime(agent.DeletedAt),
		agent.CreatedAt, time.Now().UTC(),
		string(tasks), string(chat), string(actionsLog), string(config),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// LoadAgents returns every persisted agent, including archived ones.
func (d *DB) LoadAgents() ([]*models.Agent, error) {
	rows, err := d.db.Query(
		`SELECT id, name, description, goal, status, priority, progress, deadline, deleted_at, created_at, tasks, chat, actions_log, config
		 FROM agents ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// LoadAgent returns one agent by ID, or nil when absent.
func (d *DB) LoadAgent(id string) (*models.Agent, error) {
	rows, err := d.db.Query(
		`SELECT id, name, description, goal, status, priority, progress, deadline, deleted_at, created_at, tasks, chat, actions_log, config
		 FROM agents WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query agent: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAgent(rows)
}

// DeleteAgent removes an agent row entirely. Soft deletes are a status
// change and go through SaveAgent; this is for permanent cleanup.
func (d *DB) DeleteAgent(id string) error {
	_, err := d.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

func scanAgent(rows *sql.Rows) (*models.Agent, error) {
	agent := &models.Agent{}
	var deadline, deletedAt sql.NullTime
	var priority sql.NullString
	var tasks, chat, actionsLog, config string

	if err := rows.Scan(
		&agent.ID, &agent.Name, &agent.Description, &agent.Goal, &agent.Status,
		&priority, &agent.Progress, &deadline, &deletedAt, &agent.CreatedAt,
		&tasks, &chat, &actionsLog, &config,
	); err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}

	if priority.Valid {
		agent.Priority = models.AgentPriority(priority.String)
	}
	if deadline.Valid {
		t := deadline.Time
		agent.Deadline = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		agent.DeletedAt = &t
	}

	if err := json.Unmarshal([]byte(tasks), &agent.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	if err := json.Unmarshal([]byte(chat), &agent.Chat); err != nil {
		return nil, fmt.Errorf("unmarshal chat: %w", err)
	}
	if err := json.Unmarshal([]byte(actionsLog), &agent.ActionsLog); err != nil {
		return nil, fmt.Errorf("unmarshal actions log: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &agent.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return agent, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
