package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
)

const customerColumns = `id, username, site_origin, external_id, full_name, email, device_hash, metadata, last_seen_at, created_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		customer   Customer
		id         pgtype.UUID
		externalID pgtype.Text
		fullName   pgtype.Text
		email      pgtype.Text
		metadata   []byte
	)
	err := row.Scan(&id, &customer.Username, &customer.SiteOrigin, &externalID, &fullName, &email, &customer.DeviceHash, &metadata, &customer.LastSeenAt, &customer.CreatedAt)
	if err != nil {
		return Customer{}, err
	}
	customer.ID = uuidString(id)
	customer.ExternalID = dbpkg.TextToString(externalID)
	customer.FullName = dbpkg.TextToString(fullName)
	customer.Email = dbpkg.TextToString(email)
	customer.Metadata = decodeMetadata(metadata)
	return customer, nil
}

// GetCustomer returns one customer by id.
func (s *Store) GetCustomer(ctx context.Context, id string) (Customer, error) {
	customerID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Customer{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, customerID)
	return scanCustomer(row)
}

// GetCustomerByExternalID looks up an integrated customer by its embedding
// site's identity.
func (s *Store) GetCustomerByExternalID(ctx context.Context, externalID, siteOrigin string) (Customer, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE external_id = $1 AND site_origin = $2`,
		strings.TrimSpace(externalID), siteOrigin)
	return scanCustomer(row)
}

// GetGuestCustomer looks up a guest (no external identity) by username and
// site origin. The external_id IS NULL guard keeps integrated customers from
// being picked up by a colliding guest name.
func (s *Store) GetGuestCustomer(ctx context.Context, username, siteOrigin string) (Customer, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE username = $1 AND site_origin = $2 AND external_id IS NULL`,
		strings.TrimSpace(username), siteOrigin)
	return scanCustomer(row)
}

// CreateCustomer inserts a new customer row (guest or integrated).
func (s *Store) CreateCustomer(ctx context.Context, params CreateCustomerParams) (Customer, error) {
	metadata, err := encodeMetadata(params.Metadata)
	if err != nil {
		return Customer{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (username, site_origin, external_id, full_name, email, device_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+customerColumns,
		strings.TrimSpace(params.Username), params.SiteOrigin,
		dbpkg.ToPgText(params.ExternalID), dbpkg.ToPgText(params.FullName), dbpkg.ToPgText(params.Email),
		params.DeviceHash, metadata)
	return scanCustomer(row)
}

// UpdateCustomerProfile refreshes an integrated customer's profile and
// last-seen timestamp on each new contact.
func (s *Store) UpdateCustomerProfile(ctx context.Context, params UpdateCustomerProfileParams) (Customer, error) {
	customerID, err := dbpkg.ParseUUID(params.ID)
	if err != nil {
		return Customer{}, err
	}
	metadata, err := encodeMetadata(params.Metadata)
	if err != nil {
		return Customer{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE customers
		SET username = COALESCE(NULLIF($2, ''), username),
		    full_name = COALESCE(NULLIF($3, ''), full_name),
		    email = COALESCE(NULLIF($4, ''), email),
		    device_hash = $5,
		    metadata = $6,
		    last_seen_at = now()
		WHERE id = $1
		RETURNING `+customerColumns,
		customerID, strings.TrimSpace(params.Username), strings.TrimSpace(params.FullName),
		strings.TrimSpace(params.Email), params.DeviceHash, metadata)
	return scanCustomer(row)
}
