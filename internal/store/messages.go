package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

const messageColumns = `id, thread_id, sender_role, sender_id, content, media_url, media_type, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var (
		message   Message
		id        pgtype.UUID
		threadID  pgtype.UUID
		senderID  pgtype.UUID
		content   pgtype.Text
		mediaURL  pgtype.Text
		mediaType pgtype.Text
	)
	err := row.Scan(&id, &threadID, &message.SenderRole, &senderID, &content, &mediaURL, &mediaType, &message.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	message.ID = uuidString(id)
	message.ThreadID = uuidString(threadID)
	message.SenderID = uuidString(senderID)
	message.Content = dbpkg.TextToString(content)
	message.MediaURL = dbpkg.TextToString(mediaURL)
	message.MediaType = dbpkg.TextToString(mediaType)
	return message, nil
}

// InsertMessage appends one message to a thread.
func (s *Store) InsertMessage(ctx context.Context, params InsertMessageParams) (Message, error) {
	pgThreadID, err := dbpkg.ParseUUID(params.ThreadID)
	if err != nil {
		return Message{}, err
	}
	var pgSenderID pgtype.UUID
	if params.SenderID != "" {
		pgSenderID, err = dbpkg.ParseUUID(params.SenderID)
		if err != nil {
			return Message{}, err
		}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (thread_id, sender_role, sender_id, content, media_url, media_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+messageColumns,
		pgThreadID, params.SenderRole, pgSenderID,
		dbpkg.ToPgText(params.Content), dbpkg.ToPgText(params.MediaURL), dbpkg.ToPgText(params.MediaType))
	return scanMessage(row)
}

// ListMessages returns a thread's messages oldest-first with limit/offset
// paging.
func (s *Store) ListMessages(ctx context.Context, threadID string, limit, offset int32) ([]Message, error) {
	pgThreadID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		pgThreadID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		message, scanErr := scanMessage(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// DeleteMessagesBefore removes messages created before the cutoff. Used by
// the retention job; message rows are otherwise never deleted.
func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
