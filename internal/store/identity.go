package store

import (
	"database/sql"
	"log/slog"

	"github.com/avetrov/examforge/internal/model"
)

// CreateIdentity inserts a new identity with its credential hash.
func (s *Store) CreateIdentity(id model.Identity, passwordHash string) error {
	_, err := s.db.Exec(
		`INSERT INTO identities (id, email, display_name, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.ID, id.Email, id.DisplayName, passwordHash, id.Role, id.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to create identity", "email", id.Email, "error", err)
		return err
	}
	slog.Info("created identity", "id", id.ID, "email", id.Email, "role", id.Role)
	return nil
}

// GetIdentityByEmail returns the identity and its password hash for an
// email, or nil when no such identity exists.
func (s *Store) GetIdentityByEmail(email string) (*model.Identity, string, error) {
	var id model.Identity
	var hash string
	err := s.db.QueryRow(
		`SELECT id, email, display_name, password_hash, role, created_at
		 FROM identities WHERE email = ?`, email,
	).Scan(&id.ID, &id.Email, &id.DisplayName, &hash, &id.Role, &id.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &id, hash, nil
}

// GetIdentity returns an identity by id, or nil.
func (s *Store) GetIdentity(identityID string) (*model.Identity, error) {
	var id model.Identity
	var hash string
	err := s.db.QueryRow(
		`SELECT id, email, display_name, password_hash, role, created_at
		 FROM identities WHERE id = ?`, identityID,
	).Scan(&id.ID, &id.Email, &id.DisplayName, &hash, &id.Role, &id.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// IdentityCount returns the total number of identities.
func (s *Store) IdentityCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}
