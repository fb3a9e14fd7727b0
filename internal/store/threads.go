package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

const threadColumns = `id, customer_id, category_id, assigned_agent_id, status, created_at, updated_at`

func scanThread(row pgx.Row) (Thread, error) {
	var (
		thread     Thread
		id         pgtype.UUID
		customerID pgtype.UUID
		categoryID pgtype.UUID
		agentID    pgtype.UUID
	)
	err := row.Scan(&id, &customerID, &categoryID, &agentID, &thread.Status, &thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		return Thread{}, err
	}
	thread.ID = uuidString(id)
	thread.CustomerID = uuidString(customerID)
	thread.CategoryID = uuidString(categoryID)
	thread.AssignedAgentID = uuidString(agentID)
	return thread, nil
}

// GetThread returns one thread by id.
func (s *Store) GetThread(ctx context.Context, id string) (Thread, error) {
	threadID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Thread{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+threadColumns+` FROM chat_threads WHERE id = $1`, threadID)
	return scanThread(row)
}

// FindOpenThread returns the newest open thread for a (customer, category)
// pair, or pgx.ErrNoRows when the customer has none in that category.
func (s *Store) FindOpenThread(ctx context.Context, customerID, categoryID string) (Thread, error) {
	pgCustomerID, err := dbpkg.ParseUUID(customerID)
	if err != nil {
		return Thread{}, err
	}
	pgCategoryID, err := dbpkg.ParseUUID(categoryID)
	if err != nil {
		return Thread{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM chat_threads
		WHERE customer_id = $1 AND category_id = $2 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT 1`,
		pgCustomerID, pgCategoryID)
	return scanThread(row)
}

// CreateThread inserts a new open thread.
func (s *Store) CreateThread(ctx context.Context, customerID, categoryID string) (Thread, error) {
	pgCustomerID, err := dbpkg.ParseUUID(customerID)
	if err != nil {
		return Thread{}, err
	}
	pgCategoryID, err := dbpkg.ParseUUID(categoryID)
	if err != nil {
		return Thread{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chat_threads (customer_id, category_id)
		VALUES ($1, $2)
		RETURNING `+threadColumns,
		pgCustomerID, pgCategoryID)
	return scanThread(row)
}

// AssignAgent writes the thread's assigned agent.
func (s *Store) AssignAgent(ctx context.Context, threadID, agentID string) error {
	pgThreadID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return err
	}
	pgAgentID, err := dbpkg.ParseUUID(agentID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE chat_threads SET assigned_agent_id = $2, updated_at = now() WHERE id = $1`,
		pgThreadID, pgAgentID)
	return err
}

// TouchThread bumps the thread's updated timestamp.
func (s *Store) TouchThread(ctx context.Context, threadID string) error {
	pgThreadID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE chat_threads SET updated_at = now() WHERE id = $1`, pgThreadID)
	return err
}

// CloseThread transitions an open thread to closed and returns the agent
// that was assigned at close time, if any. The update is conditional on
// status so closing an already-closed thread reports pgx.ErrNoRows instead
// of double-firing the caller's counter decrement.
func (s *Store) CloseThread(ctx context.Context, threadID string) (assignedAgentID string, err error) {
	pgThreadID, parseErr := dbpkg.ParseUUID(threadID)
	if parseErr != nil {
		return "", parseErr
	}
	var agentID pgtype.UUID
	err = s.pool.QueryRow(ctx, `
		UPDATE chat_threads
		SET status = 'closed', updated_at = now()
		WHERE id = $1 AND status = 'open'
		RETURNING assigned_agent_id`,
		pgThreadID).Scan(&agentID)
	if err != nil {
		return "", err
	}
	return uuidString(agentID), nil
}

// FindOpenThreadByIDPrefix resolves a truncated thread id hint against open
// threads. It succeeds only on exactly one match: zero matches return
// pgx.ErrNoRows, two or more return ErrAmbiguousPrefix.
func (s *Store) FindOpenThreadByIDPrefix(ctx context.Context, prefix string) (Thread, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return Thread{}, pgx.ErrNoRows
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+threadColumns+`
		FROM chat_threads
		WHERE status = 'open' AND id::text LIKE $1 || '%'
		LIMIT 2`,
		prefix)
	if err != nil {
		return Thread{}, err
	}
	defer rows.Close()

	var (
		matched Thread
		count   int
	)
	for rows.Next() {
		thread, scanErr := scanThread(rows)
		if scanErr != nil {
			return Thread{}, scanErr
		}
		matched = thread
		count++
	}
	if err := rows.Err(); err != nil {
		return Thread{}, err
	}
	switch count {
	case 0:
		return Thread{}, pgx.ErrNoRows
	case 1:
		return matched, nil
	default:
		return Thread{}, ErrAmbiguousPrefix
	}
}

// LatestOpenThreadForAgent returns the most recently updated open thread
// assigned to the given agent.
func (s *Store) LatestOpenThreadForAgent(ctx context.Context, agentID string) (Thread, error) {
	pgAgentID, err := dbpkg.ParseUUID(agentID)
	if err != nil {
		return Thread{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM chat_threads
		WHERE assigned_agent_id = $1 AND status = 'open'
		ORDER BY updated_at DESC
		LIMIT 1`,
		pgAgentID)
	return scanThread(row)
}

// CloseThreadsIdleSince closes open threads whose last activity predates the
// cutoff and releases the assigned agents' workload slots in the same
// statement, keeping counters aligned with open assignments. Used by the
// retention job.
func (s *Store) CloseThreadsIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var closed int64
	err := s.pool.QueryRow(ctx, `
		WITH closed AS (
			UPDATE chat_threads
			SET status = 'closed'
			WHERE status = 'open' AND updated_at < $1
			RETURNING assigned_agent_id
		), released AS (
			UPDATE agents a
			SET handled_count = GREATEST(a.handled_count - c.n, 0)
			FROM (
				SELECT assigned_agent_id, COUNT(*) AS n
				FROM closed
				WHERE assigned_agent_id IS NOT NULL
				GROUP BY assigned_agent_id
			) c
			WHERE a.id = c.assigned_agent_id
		)
		SELECT COUNT(*) FROM closed`,
		cutoff).Scan(&closed)
	if err != nil {
		return 0, err
	}
	return closed, nil
}

// IsNotFound reports whether err is the store's row-absence error.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
