// Package store provides storage backends for the clinichat history layer.
//
// It persists chat sessions and their message transcripts so the browser
// client can render a session list and reload past conversations. SQLite and
// PostgreSQL backends are selected by DSN; an in-memory store backs tests and
// DSN-less deployments.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinichat/clinichat/internal/models"
	"github.com/google/uuid"
)

// Store defines the persistence operations for chat history.
type Store interface {
	// CreateChatSession creates a new persisted chat session with the given title.
	CreateChatSession(title string) (*models.ChatSession, error)

	// ListChatSessions returns all chat sessions, newest first.
	ListChatSessions() ([]models.ChatSession, error)

	// UpdateChatSessionTitle replaces the title of an existing chat session.
	UpdateChatSessionTitle(id, title string) error

	// AddMessage appends a message to a chat session's transcript.
	AddMessage(sessionID string, role models.MessageRole, content string) (*models.Message, error)

	// GetMessages returns a session's transcript ordered by creation time, oldest first.
	GetMessages(sessionID string) ([]models.Message, error)

	// Close releases the backend's resources.
	Close() error
}

// Opts holds configuration options for persistent stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for persistent stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Anything that is
// not recognizably a Postgres URL or key/value DSN is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a non-durable Store for tests and DSN-less deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ChatSession
	messages map[string][]models.Message
	nextID   int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.ChatSession),
		messages: make(map[string][]models.Message),
	}
}

func (s *InMemoryStore) CreateChatSession(title string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := models.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	s.sessions[cs.ID] = cs
	return &cs, nil
}

func (s *InMemoryStore) ListChatSessions() ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateChatSessionTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	cs.Title = title
	s.sessions[id] = cs
	return nil
}

func (s *InMemoryStore) AddMessage(sessionID string, role models.MessageRole, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, models.ErrSessionNotFound
	}
	s.nextID++
	m := models.Message{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], m)
	return &m, nil
}

func (s *InMemoryStore) GetMessages(sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
