package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/avetrov/examforge/internal/model"
)

const sessionTTL = 24 * time.Hour

// currentSessionKey is the metadata key carrying the durable pointer to the
// device's current session token.
const currentSessionKey = "current_session"

// CreateAuthSession creates a new session token for an identity.
func (s *Store) CreateAuthSession(identityID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (token, identity_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, identityID, now, now.Add(sessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the session for a token, or nil if unknown or
// expired. Expired rows are deleted on sight.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT token, identity_id, created_at, expires_at FROM auth_sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.IdentityID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE token = ?`, token)
	return err
}

// SetCurrentSession records token as the device's current session.
func (s *Store) SetCurrentSession(token string) error {
	return s.SetMetadata(currentSessionKey, token)
}

// CurrentSession returns the recorded current session token, or "".
func (s *Store) CurrentSession() (string, error) {
	return s.GetMetadata(currentSessionKey)
}

// ClearCurrentSession removes the current session pointer.
func (s *Store) ClearCurrentSession() error {
	return s.DeleteMetadata(currentSessionKey)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
