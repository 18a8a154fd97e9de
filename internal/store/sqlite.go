// Package store provides storage backends for the clinichat history layer.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/clinichat/clinichat/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateChatSession(title string) (*models.ChatSession, error) {
	cs := models.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	_, err := s.db.Exec(`INSERT INTO chat_sessions (id, title, created_at) VALUES (?, ?, ?)`,
		cs.ID, cs.Title, cs.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateChatSession failed", "error", err)
		return nil, fmt.Errorf("failed to insert chat session: %w", err)
	}
	slog.Debug("SQLiteStore CreateChatSession succeeded", "sessionID", cs.ID)
	return &cs, nil
}

func (s *SQLiteStore) ListChatSessions() ([]models.ChatSession, error) {
	rows, err := s.db.Query(`SELECT id, title, created_at FROM chat_sessions ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListChatSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var cs models.ChatSession
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListChatSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan chat session row: %w", err)
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListChatSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate chat session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListChatSessions succeeded", "count", len(sessions))
	return sessions, nil
}

func (s *SQLiteStore) UpdateChatSessionTitle(id, title string) error {
	res, err := s.db.Exec(`UPDATE chat_sessions SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateChatSessionTitle failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to update chat session title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("SQLiteStore UpdateChatSessionTitle succeeded", "sessionID", id)
	return nil
}

func (s *SQLiteStore) AddMessage(sessionID string, role models.MessageRole, content string) (*models.Message, error) {
	m := models.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	res, err := s.db.Exec(`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		m.SessionID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to insert message for %s: %w", sessionID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	slog.Debug("SQLiteStore AddMessage succeeded", "sessionID", sessionID, "role", role)
	return &m, nil
}

func (s *SQLiteStore) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			slog.Error("SQLiteStore GetMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
