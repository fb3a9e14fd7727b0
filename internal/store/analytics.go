package store

import (
	"context"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

// RecordContact upserts the per-(customer, category) contact counter. The
// increment happens inside the upsert so concurrent contacts never lose a
// count.
func (s *Store) RecordContact(ctx context.Context, customerID, categoryID string) error {
	pgCustomerID, err := dbpkg.ParseUUID(customerID)
	if err != nil {
		return err
	}
	pgCategoryID, err := dbpkg.ParseUUID(categoryID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analytics (customer_id, category_id, contact_count, last_contacted_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (customer_id, category_id)
		DO UPDATE SET contact_count = analytics.contact_count + 1, last_contacted_at = now()`,
		pgCustomerID, pgCategoryID)
	return err
}
