// Package session owns the current identity of the process and enforces
// role-based access to every other component.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/avetrov/examforge/internal/model"
	"github.com/avetrov/examforge/internal/store"
)

var (
	// ErrInvalidCredentials is returned when the credential check rejects
	// a login, or the identity is not bound to the requested role.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned by Signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnauthorized is returned when no identity is logged in or the
	// session's role does not match the required one.
	ErrUnauthorized = errors.New("unauthorized")
)

// Manager holds the single current session. The identity is persisted in
// the store so it survives process restarts until an explicit logout.
type Manager struct {
	store *store.Store

	mu      sync.Mutex
	current *model.Identity
	token   string
}

// New creates a Manager and reloads a persisted session if one exists.
func New(st *store.Store) (*Manager, error) {
	m := &Manager{store: st}

	token, err := st.CurrentSession()
	if err != nil {
		return nil, fmt.Errorf("load current session: %w", err)
	}
	if token == "" {
		return m, nil
	}

	sess, err := st.GetAuthSession(token)
	if err != nil {
		return nil, fmt.Errorf("load auth session: %w", err)
	}
	if sess == nil {
		// Stale pointer: token expired or was deleted out of band.
		_ = st.ClearCurrentSession()
		return m, nil
	}
	identity, err := st.GetIdentity(sess.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if identity == nil {
		_ = st.ClearCurrentSession()
		return m, nil
	}

	m.current = identity
	m.token = token
	slog.Info("restored session", "email", identity.Email, "role", identity.Role)
	return m, nil
}

// Login verifies the credentials and makes the identity current.
func (m *Manager) Login(email, password string, role model.Role) (*model.Identity, error) {
	identity, hash, err := m.store.GetIdentityByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if identity == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if identity.Role != role {
		return nil, ErrInvalidCredentials
	}
	if err := m.open(identity); err != nil {
		return nil, err
	}
	slog.Info("logged in", "email", identity.Email, "role", identity.Role)
	return identity, nil
}

// Signup creates a new identity bound to the given role and makes it current.
func (m *Manager) Signup(name, email, password string, role model.Role) (*model.Identity, error) {
	if name == "" || email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if !model.ValidRole(role) {
		return nil, ErrInvalidCredentials
	}

	existing, _, err := m.store.GetIdentityByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := &model.Identity{
		ID:          uuid.NewString(),
		DisplayName: name,
		Email:       email,
		Role:        role,
		CreatedAt:   time.Now(),
	}
	if err := m.store.CreateIdentity(*identity, string(hash)); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	if err := m.open(identity); err != nil {
		return nil, err
	}
	slog.Info("signed up", "email", identity.Email, "role", identity.Role)
	return identity, nil
}

func (m *Manager) open(identity *model.Identity) error {
	token, err := m.store.CreateAuthSession(identity.ID)
	if err != nil {
		return fmt.Errorf("create auth session: %w", err)
	}
	if err := m.store.SetCurrentSession(token); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" {
		_ = m.store.DeleteAuthSession(m.token)
	}
	m.current = identity
	m.token = token
	return nil
}

// Logout clears the current session. Calling it while logged out is a no-op.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	if err := m.store.ClearCurrentSession(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	_ = m.store.DeleteAuthSession(m.token)
	slog.Info("logged out", "email", m.current.Email)
	m.current = nil
	m.token = ""
	return nil
}

// Current returns the logged-in identity, or nil.
func (m *Manager) Current() *model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Token returns the current session token, or "".
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// RequireRole returns the current identity if it holds the given role.
func (m *Manager) RequireRole(role model.Role) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.Role != role {
		return nil, ErrUnauthorized
	}
	return m.current, nil
}
