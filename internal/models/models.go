// Package models defines the core data structures for clinichat.
//
// It includes the intake session record, the API request/response shapes
// consumed by the browser client, and the persisted chat history types
// shared across modules.
package models

import (
	"errors"
	"time"
)

// FieldID identifies one question of the intake questionnaire. Lookups are
// exact against these identifiers, never against (translatable) prompt text.
type FieldID string

// Questionnaire field identifiers.
const (
	FieldAge       FieldID = "edad"
	FieldSex       FieldID = "sexo"
	FieldComplaint FieldID = "motivo"
	FieldDuration  FieldID = "duracion"
	FieldSymptoms  FieldID = "sintomas"
	FieldHistory   FieldID = "antecedentes"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a chat turn message
	MaxMessageLength = 4096
	// MaxImageBytes defines the maximum allowed size for a decoded image attachment
	MaxImageBytes = 10 << 20
)

// Error variables for better error handling and testability
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrValidationRejected   = errors.New("answer rejected by field validator")
	ErrMissingRequiredField = errors.New("required intake fields missing")
	ErrMessageTooLong       = errors.New("message exceeds maximum length")
	ErrEmptyTitleTranscript = errors.New("at least two messages are required for a title")
)

// Answer holds one accepted questionnaire answer. Answers keep collection
// order; re-answering a field replaces its value in place.
type Answer struct {
	Field FieldID `json:"field"`
	Value string  `json:"value"`
}

// Session represents one in-progress intake conversation. It is exclusively
// owned by the session store; handlers must mutate it only while holding the
// store's per-session lock.
type Session struct {
	ID        string    `json:"id"`
	Cursor    int       `json:"cursor"`
	Answers   []Answer  `json:"answers,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	HistoryID string    `json:"history_id,omitempty"` // persisted chat-session row, when history is enabled
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Answer returns the collected value for a field, or "" when not yet answered.
func (s *Session) Answer(id FieldID) string {
	for _, a := range s.Answers {
		if a.Field == id {
			return a.Value
		}
	}
	return ""
}

// SetAnswer records a value for a field, replacing in place when the field
// was already answered.
func (s *Session) SetAnswer(id FieldID, value string) {
	for i, a := range s.Answers {
		if a.Field == id {
			s.Answers[i].Value = value
			return
		}
	}
	s.Answers = append(s.Answers, Answer{Field: id, Value: value})
}

// ChatRequest is one "submit turn" from the browser client. All fields are
// optional; an absent or unknown session id starts a new session.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Image     string `json:"image,omitempty"`      // base64-encoded payload
	ImageMIME string `json:"image_mime,omitempty"` // declared MIME type, defaults to image/jpeg
}

// Validate performs validation on a ChatRequest structure.
func (r *ChatRequest) Validate() error {
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the reply to a chat turn. The browser reads the "response"
// key verbatim, so the shape is part of the external contract.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// AnalyzeImageRequest asks for a standalone description of an uploaded image.
type AnalyzeImageRequest struct {
	Image     string `json:"image"`
	ImageMIME string `json:"image_mime,omitempty"`
}

// AnalyzeImageResponse carries the generated image description.
type AnalyzeImageResponse struct {
	Description string `json:"description"`
}

// TitleRequest asks for a short title summarizing a transcript. When a
// persisted session id is supplied the generated title is also stored.
type TitleRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Messages  []string `json:"messages"`
}

// TitleResponse carries the generated session title.
type TitleResponse struct {
	Title string `json:"title"`
}

// ErrorResponse is the error payload shape the browser client expects.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageRole describes who authored a persisted chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession is one persisted conversation in the history store.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted chat message, ordered by CreatedAt within a session.
type Message struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
