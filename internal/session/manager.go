package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maauso/guided-audio/internal/compose"
)

// Manager creates and stores sessions and holds the playback ownership
// token: only the session that owns it may play. Beginning another session
// takes the token and tears the previous owner down.
type Manager struct {
	repo      Repository
	composer  Composer
	newPlayer func() Player
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	owner string
}

// NewManager creates a new Manager.
func NewManager(repo Repository, composer Composer, newPlayer func() Player, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:      repo,
		composer:  composer,
		newPlayer: newPlayer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create stores a new idle session.
func (m *Manager) Create(ctx context.Context, prompts []compose.Prompt, opts compose.Options) (*Session, error) {
	if len(prompts) == 0 {
		return nil, compose.ErrNoPrompts
	}
	s := New(prompts, opts, m.composer, m.newPlayer, m.logger, WithConfig(m.cfg), WithOwnerCheck(m.owns))
	if err := m.repo.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Info("session created", slog.String("session_id", s.ID), slog.Int("prompts", len(prompts)))
	return s, nil
}

// Get returns a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.repo.FindByID(ctx, id)
}

// List returns all sessions.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	return m.repo.List(ctx)
}

// Begin takes the ownership token for id and begins the session. If another
// session takes the token before this one goes active, Begin returns
// ErrInterrupted and the session stays idle.
func (m *Manager) Begin(ctx context.Context, id string) (*Session, error) {
	s, err := m.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, s.Begin(ctx)
}

// Restart takes the ownership token for id and restarts the session.
func (m *Manager) Restart(ctx context.Context, id string) (*Session, error) {
	s, err := m.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, s.Restart(ctx)
}

// Owner returns the ID of the session holding the token, or "".
func (m *Manager) Owner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// Delete closes and removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	s, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	s.Close()

	m.mu.Lock()
	if m.owner == id {
		m.owner = ""
	}
	m.mu.Unlock()

	return m.repo.Delete(ctx, id)
}

// Close closes every session.
func (m *Manager) Close(ctx context.Context) error {
	sessions, err := m.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		s.Close()
	}
	m.mu.Lock()
	m.owner = ""
	m.mu.Unlock()
	return nil
}

func (m *Manager) owns(id string) bool {
	return m.Owner() == id
}

func (m *Manager) claim(ctx context.Context, id string) (*Session, error) {
	s, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.owner
	m.owner = id
	m.mu.Unlock()

	if prev != "" && prev != id {
		if ps, err := m.repo.FindByID(ctx, prev); err == nil {
			ps.Skip()
			m.logger.Info("playback ownership moved",
				slog.String("from", prev),
				slog.String("to", id),
			)
		}
	}
	return s, nil
}
