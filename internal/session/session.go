package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/models"
)

// ErrNoSession indicates nothing has been persisted yet.
var ErrNoSession = errors.New("no stored session")

// Session is the authenticated identity attached to every API call.
type Session struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// Store persists the session between runs.
type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, session Session) error
	Clear(ctx context.Context) error
}

// Manager owns the live session for one engine instance.
type Manager struct {
	mu      sync.RWMutex
	current Session
	store   Store
	logger  zerolog.Logger
}

// NewManager builds a manager. A nil store keeps the session in memory only.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Restore loads a previously persisted session, if any.
func (m *Manager) Restore(ctx context.Context) error {
	stored, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.current = stored
	m.mu.Unlock()
	return nil
}

// Set replaces the session and persists it.
func (m *Manager) Set(ctx context.Context, user models.User, token string) error {
	next := Session{User: user, Token: token}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	return m.store.Save(ctx, next)
}

// Token returns the bearer token, empty when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

// Current returns a copy of the live session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Authenticated reports whether a token is present.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// Clear drops the session both in memory and in the backing store.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear persisted session")
	}
}

// MemoryStore keeps the session for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, ErrNoSession
	}
	return *s.session, nil
}

func (s *MemoryStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
