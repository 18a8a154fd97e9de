// Package store provides storage backends for the clinichat history layer.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/clinichat/clinichat/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateChatSession(title string) (*models.ChatSession, error) {
	cs := models.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	_, err := s.db.Exec(`INSERT INTO chat_sessions (id, title, created_at) VALUES ($1, $2, $3)`,
		cs.ID, cs.Title, cs.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateChatSession failed", "error", err)
		return nil, fmt.Errorf("failed to insert chat session: %w", err)
	}
	slog.Debug("PostgresStore CreateChatSession succeeded", "sessionID", cs.ID)
	return &cs, nil
}

func (s *PostgresStore) ListChatSessions() ([]models.ChatSession, error) {
	rows, err := s.db.Query(`SELECT id, title, created_at FROM chat_sessions ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("PostgresStore ListChatSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var cs models.ChatSession
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.CreatedAt); err != nil {
			slog.Error("PostgresStore ListChatSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan chat session row: %w", err)
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListChatSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate chat session rows: %w", err)
	}
	slog.Debug("PostgresStore ListChatSessions succeeded", "count", len(sessions))
	return sessions, nil
}

func (s *PostgresStore) UpdateChatSessionTitle(id, title string) error {
	res, err := s.db.Exec(`UPDATE chat_sessions SET title = $1 WHERE id = $2`, title, id)
	if err != nil {
		slog.Error("PostgresStore UpdateChatSessionTitle failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to update chat session title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("PostgresStore UpdateChatSessionTitle succeeded", "sessionID", id)
	return nil
}

func (s *PostgresStore) AddMessage(sessionID string, role models.MessageRole, content string) (*models.Message, error) {
	m := models.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	err := s.db.QueryRow(
		`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		m.SessionID, m.Role, m.Content, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to insert message for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore AddMessage succeeded", "sessionID", sessionID, "role", role)
	return &m, nil
}

func (s *PostgresStore) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, created_at FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC, id ASC`,
		sessionID)
	if err != nil {
		slog.Error("PostgresStore GetMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			slog.Error("PostgresStore GetMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
