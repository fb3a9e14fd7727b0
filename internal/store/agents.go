package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

const agentColumns = `id, telegram_user_id, name, email, is_online, handled_count, avg_response_ms, created_at`

func scanAgent(row pgx.Row) (Agent, error) {
	var (
		agent Agent
		id    pgtype.UUID
		email pgtype.Text
	)
	err := row.Scan(&id, &agent.TelegramUserID, &agent.Name, &email, &agent.Online, &agent.HandledCount, &agent.AvgResponseMs, &agent.CreatedAt)
	if err != nil {
		return Agent{}, err
	}
	agent.ID = uuidString(id)
	agent.Email = dbpkg.TextToString(email)
	return agent, nil
}

// ListOnlineAgents returns all online agents ordered by current workload
// ascending. The order is deterministic (created_at breaks equal workloads)
// so that selection's first-seen-wins tie-break is stable.
func (s *Store) ListOnlineAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		WHERE is_online = TRUE
		ORDER BY handled_count ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

// ListAgents returns all agents, newest first.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func collectAgents(rows pgx.Rows) ([]Agent, error) {
	agents := make([]Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// GetAgent returns one agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (Agent, error) {
	agentID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Agent{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, agentID)
	return scanAgent(row)
}

// GetAgentByTelegramUserID looks an agent up by its bot-channel identity.
func (s *Store) GetAgentByTelegramUserID(ctx context.Context, telegramUserID int64) (Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE telegram_user_id = $1`, telegramUserID)
	return scanAgent(row)
}

// CreateAgent inserts a new agent, offline by default.
func (s *Store) CreateAgent(ctx context.Context, params CreateAgentParams) (Agent, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agents (telegram_user_id, name, email)
		VALUES ($1, $2, $3)
		RETURNING `+agentColumns,
		params.TelegramUserID, strings.TrimSpace(params.Name), dbpkg.ToPgText(params.Email))
	return scanAgent(row)
}

// UpdateAgent updates profile fields; nil params keep current values.
func (s *Store) UpdateAgent(ctx context.Context, id string, params UpdateAgentParams) (Agent, error) {
	agentID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Agent{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE agents
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    telegram_user_id = COALESCE($4, telegram_user_id)
		WHERE id = $1
		RETURNING `+agentColumns,
		agentID, params.Name, params.Email, params.TelegramUserID)
	return scanAgent(row)
}

// DeleteAgent removes an agent row.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	agentID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, agentID)
	return err
}

// SetAgentOnline flips the availability flag and returns the updated row.
func (s *Store) SetAgentOnline(ctx context.Context, id string, online bool) (Agent, error) {
	agentID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Agent{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE agents SET is_online = $2 WHERE id = $1
		RETURNING `+agentColumns,
		agentID, online)
	return scanAgent(row)
}

// IncrementHandledCount bumps the agent workload counter by one as a single
// atomic update; there is no read-modify-write window.
func (s *Store) IncrementHandledCount(ctx context.Context, id string) error {
	agentID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE agents SET handled_count = handled_count + 1 WHERE id = $1`, agentID)
	return err
}

// DecrementHandledCount lowers the workload counter, floored at zero.
func (s *Store) DecrementHandledCount(ctx context.Context, id string) error {
	agentID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE agents SET handled_count = GREATEST(handled_count - 1, 0) WHERE id = $1`, agentID)
	return err
}

// RecordAgentActivity appends an event to the agent activity log.
func (s *Store) RecordAgentActivity(ctx context.Context, agentID, eventType string) error {
	pgAgentID, err := dbpkg.ParseUUID(agentID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_activity_log (agent_id, event_type) VALUES ($1, $2)`,
		pgAgentID, eventType)
	return err
}

// AgentWorkloadStats reports each agent's counter alongside the actual
// number of open threads assigned to it, for drift inspection.
func (s *Store) AgentWorkloadStats(ctx context.Context) ([]AgentWorkload, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.name, a.is_online, a.handled_count,
		       COUNT(t.id) FILTER (WHERE t.status = 'open') AS active_threads
		FROM agents a
		LEFT JOIN chat_threads t ON t.assigned_agent_id = a.id
		GROUP BY a.id, a.name, a.is_online, a.handled_count
		ORDER BY a.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]AgentWorkload, 0)
	for rows.Next() {
		var (
			item AgentWorkload
			id   pgtype.UUID
		)
		if err := rows.Scan(&id, &item.Name, &item.Online, &item.HandledCount, &item.ActiveThreads); err != nil {
			return nil, err
		}
		item.ID = uuidString(id)
		stats = append(stats, item)
	}
	return stats, rows.Err()
}
