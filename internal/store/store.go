package store

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAmbiguousPrefix reports that a thread id prefix matched more than one
// open thread; callers treat it as a failed lookup, not a hit.
var ErrAmbiguousPrefix = errors.New("thread id prefix is ambiguous")

// Store provides typed access to the relational state: agents, threads,
// messages, customers, categories, analytics and the activity log.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over the given connection pool.
func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "store")),
	}
}

func decodeMetadata(payload []byte) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil
	}
	return data
}

func encodeMetadata(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(data)
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return id.String()
}
