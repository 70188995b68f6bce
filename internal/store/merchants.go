package store

import (
	"context"
	"strings"

	"cpxtbgateway/internal/models"
)

func (s *Store) CreateMerchant(ctx context.Context, m *models.Merchant) error {
	m.WalletAddress = strings.ToLower(m.WalletAddress)
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO merchants (name, wallet_address, contact_email)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, m.Name, m.WalletAddress, m.ContactEmail)
	return row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (s *Store) GetMerchant(ctx context.Context, id int64) (*models.Merchant, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, wallet_address, contact_email, created_at, updated_at
		FROM merchants WHERE id=$1
	`, id)
	var m models.Merchant
	if err := row.Scan(&m.ID, &m.Name, &m.WalletAddress, &m.ContactEmail, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMerchants(ctx context.Context) ([]*models.Merchant, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, wallet_address, contact_email, created_at, updated_at
		FROM merchants ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []*models.Merchant
	for rows.Next() {
		var m models.Merchant
		if err := rows.Scan(&m.ID, &m.Name, &m.WalletAddress, &m.ContactEmail, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		merchants = append(merchants, &m)
	}
	return merchants, rows.Err()
}
