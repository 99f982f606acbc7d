// Package postgres provides read-only PostgreSQL access to user profiles.
// The profiles table is owned by the account system; the router never
// writes to it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-commerce-router/pkg/profile"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Provider implements profile.Provider over a profiles table.
type Provider struct {
	db *sql.DB
}

// New creates a PostgreSQL profile provider.
func New(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// GetProfile returns the user's profile or profile.ErrNotFound.
func (p *Provider) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	query, args, err := psq.
		Select("id", "full_name", "email", "phone", "payment_ref", "addresses").
		From("profiles").
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building profile query: %w", err)
	}

	var (
		prof      profile.Profile
		fullName  sql.NullString
		email     sql.NullString
		phone     sql.NullString
		payment   sql.NullString
		addresses []byte
	)
	err = p.db.QueryRowContext(ctx, query, args...).Scan(
		&prof.UserID, &fullName, &email, &phone, &payment, &addresses,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile for %s: %w", userID, err)
	}

	prof.FullName = fullName.String
	prof.Email = email.String
	prof.Phone = phone.String
	prof.PaymentRef = payment.String
	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &prof.Addresses); err != nil {
			return nil, fmt.Errorf("decoding addresses for %s: %w", userID, err)
		}
	}
	return &prof, nil
}

// Verify interface compliance.
var _ profile.Provider = (*Provider)(nil)
