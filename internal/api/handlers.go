// Package api provides HTTP handlers for clinichat endpoints.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clinichat/clinichat/internal/genai"
	"github.com/clinichat/clinichat/internal/intake"
	"github.com/clinichat/clinichat/internal/models"
)

// Prompts for the standalone image-analysis endpoint.
const (
	imageAnalysisSystemPrompt = "Eres un asistente médico virtual en español. Describes imágenes aportadas por pacientes " +
		"con prudencia, señalando lo clínicamente relevante sin emitir diagnósticos definitivos."
	imageAnalysisUserPrompt = "Describe brevemente, en español, el contenido de esta imagen y cualquier hallazgo que " +
		"merezca comentarse con un profesional."

	titleSystemPrompt = "Genera un título muy corto, de cinco palabras como máximo y en español, que resuma la " +
		"conversación. Responde únicamente con el título, sin comillas."

	// DefaultSessionTitle is the placeholder title for a freshly persisted session.
	DefaultSessionTitle = "Nueva conversación"
)

// chatHandler processes one intake turn: admin override first, then the
// field collector, then (when intake is complete) report compilation and the
// model gateway call.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "formato JSON inválido"})
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	// Resolve the session; an absent or stale id starts a new conversation.
	var (
		sess    *models.Session
		release func()
		isNew   bool
	)
	if req.SessionID != "" {
		if got, rel, ok := s.sessions.Acquire(req.SessionID); ok {
			sess, release = got, rel
		}
	}
	if sess == nil {
		sess, release = s.sessions.Create()
		isNew = true
		s.beginHistory(sess)
	}
	defer release()

	if req.Message != "" {
		s.appendHistory(sess, models.RoleUser, req.Message)
	}

	respond := func(text string) {
		s.appendHistory(sess, models.RoleAssistant, text)
		writeJSONResponse(w, http.StatusOK, models.ChatResponse{SessionID: sess.ID, Response: text})
	}

	// The admin override takes priority over every other branch, including
	// the first-contact greeting.
	if s.collector.MaybeActivateAdmin(sess, req.Message) {
		respond(intake.AdminAckMessage)
		return
	}

	// First contact always yields the first question; any text or image sent
	// with the same call is not consumed as an answer.
	if isNew {
		respond(s.collector.FirstPrompt(sess))
		return
	}

	result := s.collector.Advance(sess, req.Message)
	if !result.Ready {
		respond(result.Prompt)
		return
	}

	report, err := s.collector.Compile(sess, req.Image, req.ImageMIME)
	if err != nil {
		var missing *intake.MissingFieldsError
		if errors.As(err, &missing) {
			// The session survives; the caller can still supply the fields.
			respond(missing.UserMessage())
			return
		}
		slog.Error("Server.chatHandler: report compilation failed", "error", err, "sessionID", sess.ID)
		respond(intake.ApologyMessage)
		return
	}

	ctx, cancel := s.gatewayContext(r.Context())
	defer cancel()
	reply, err := s.gaClient.GenerateWithParts(ctx, report.System, reportText(report), reportAttachments(report))
	if err != nil {
		// The collected answers are kept so the caller can retry the report.
		slog.Error("Server.chatHandler: model gateway failure", "error", err, "sessionID", sess.ID, "timeout", isGatewayTimeout(err))
		respond(intake.ApologyMessage)
		return
	}

	// Terminal transition: the id becomes invalid and the next contact
	// starts a fresh intake.
	s.sessions.Delete(sess.ID)
	slog.Info("Server.chatHandler: report generated, session completed", "sessionID", sess.ID, "answers", len(sess.Answers), "admin", sess.IsAdmin)
	respond(reply)
}

// analyzeImageHandler describes a standalone uploaded image.
func (s *Server) analyzeImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.analyzeImageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.AnalyzeImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.analyzeImageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "formato JSON inválido"})
		return
	}
	if req.Image == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "falta la imagen"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		slog.Warn("Server.analyzeImageHandler: malformed image payload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "la imagen no es base64 válido"})
		return
	}
	if len(data) > models.MaxImageBytes {
		slog.Warn("Server.analyzeImageHandler: image too large", "bytes", len(data))
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "la imagen es demasiado grande"})
		return
	}
	mime := req.ImageMIME
	if mime == "" {
		mime = intake.DefaultImageMIME
	}

	ctx, cancel := s.gatewayContext(r.Context())
	defer cancel()
	description, err := s.gaClient.GenerateWithParts(ctx, imageAnalysisSystemPrompt, imageAnalysisUserPrompt,
		[]genai.Attachment{{Data: data, MIME: mime}})
	if err != nil {
		slog.Error("Server.analyzeImageHandler: model gateway failure", "error", err, "timeout", isGatewayTimeout(err))
		writeJSONResponse(w, http.StatusInternalServerError, models.ErrorResponse{Error: "no se pudo analizar la imagen"})
		return
	}
	writeJSONResponse(w, http.StatusOK, models.AnalyzeImageResponse{Description: strings.TrimSpace(description)})
}

// generateTitleHandler produces a short Spanish title for a transcript and,
// when the request names a persisted session, stores it.
func (s *Server) generateTitleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.generateTitleHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.TitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.generateTitleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "formato JSON inválido"})
		return
	}
	if len(req.Messages) < 2 {
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: models.ErrEmptyTitleTranscript.Error()})
		return
	}

	ctx, cancel := s.gatewayContext(r.Context())
	defer cancel()
	title, err := s.gaClient.GenerateWithParts(ctx, titleSystemPrompt, strings.Join(req.Messages, "\n"), nil)
	if err != nil {
		slog.Error("Server.generateTitleHandler: model gateway failure", "error", err, "timeout", isGatewayTimeout(err))
		writeJSONResponse(w, http.StatusInternalServerError, models.ErrorResponse{Error: "no se pudo generar el título"})
		return
	}
	title = strings.Trim(strings.TrimSpace(title), `"“”`)
	if title == "" {
		title = "Sin título"
	}

	if req.SessionID != "" {
		if err := s.history.UpdateChatSessionTitle(req.SessionID, title); err != nil {
			slog.Warn("Server.generateTitleHandler: failed to persist title", "error", err, "sessionID", req.SessionID)
		}
	}
	writeJSONResponse(w, http.StatusOK, models.TitleResponse{Title: title})
}

// sessionsHandler lists persisted chat sessions, newest first.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.sessionsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.history.ListChatSessions()
	if err != nil {
		slog.Error("Server.sessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// sessionMessagesHandler returns a persisted session transcript, oldest first.
// Route shape: GET /api/sessions/{id}/messages
func (s *Server) sessionMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.sessionMessagesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[3] != "messages" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[2]
	messages, err := s.history.GetMessages(sessionID)
	if err != nil {
		slog.Error("Server.sessionMessagesHandler: failed to load transcript", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load transcript"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

// beginHistory creates the persisted chat-session row backing a new intake
// session. History failures never block a turn.
func (s *Server) beginHistory(sess *models.Session) {
	cs, err := s.history.CreateChatSession(DefaultSessionTitle)
	if err != nil {
		slog.Warn("Server.beginHistory: failed to create history session", "error", err, "sessionID", sess.ID)
		return
	}
	sess.HistoryID = cs.ID
}

// appendHistory records one message in the persisted transcript.
func (s *Server) appendHistory(sess *models.Session, role models.MessageRole, content string) {
	if sess.HistoryID == "" {
		return
	}
	if _, err := s.history.AddMessage(sess.HistoryID, role, content); err != nil {
		slog.Warn("Server.appendHistory: failed to persist message", "error", err, "sessionID", sess.ID, "role", role)
	}
}

func reportText(report *intake.ReportRequest) string {
	var b strings.Builder
	for _, p := range report.Parts {
		if p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func reportAttachments(report *intake.ReportRequest) []genai.Attachment {
	var atts []genai.Attachment
	for _, p := range report.Parts {
		if len(p.Data) > 0 {
			atts = append(atts, genai.Attachment{Data: p.Data, MIME: p.MIME})
		}
	}
	return atts
}
