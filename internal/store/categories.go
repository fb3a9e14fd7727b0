package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

const categoryColumns = `id, title, created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var (
		category Category
		id       pgtype.UUID
	)
	err := row.Scan(&id, &category.Title, &category.CreatedAt)
	if err != nil {
		return Category{}, err
	}
	category.ID = uuidString(id)
	return category, nil
}

// GetCategory returns one category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (Category, error) {
	categoryID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Category{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, categoryID)
	return scanCategory(row)
}

// ListCategories returns all categories ordered by title.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		category, scanErr := scanCategory(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a new category.
func (s *Store) CreateCategory(ctx context.Context, title string) (Category, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO categories (title) VALUES ($1) RETURNING `+categoryColumns,
		strings.TrimSpace(title))
	return scanCategory(row)
}
