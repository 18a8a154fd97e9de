package intake

import (
	"log/slog"
	"strings"

	"github.com/clinichat/clinichat/internal/models"
)

// Product copy shared by the collector and the API layer.
const (
	// AdminToken activates the admin override when sent as an entire message.
	AdminToken = "admin"
	// AdminAckMessage acknowledges admin activation; the turn consumes no field.
	AdminAckMessage = "Modo administrador activado ✅. La validación está desactivada: puedes escribir libremente y pedir el informe cuando quieras."
	// ApologyMessage is the only text surfaced to the caller on a gateway failure.
	ApologyMessage = "Lo siento, ha ocurrido un error al generar la respuesta. Por favor, inténtalo de nuevo en unos momentos."
)

// Result is the outcome of one collector turn.
type Result struct {
	Prompt   string // next question to show the caller; empty when Ready
	Ready    bool   // all fields collected (or admin active): compile the report
	Rejected bool   // the input failed validation; Prompt repeats the question
}

// Collector walks the ordered field list for a session. It mutates the
// session's cursor and answers in place; callers must hold the session
// store's per-session lock across a turn.
type Collector struct {
	fields []Field
}

// NewCollector creates a collector over the given questionnaire. A nil or
// empty field list falls back to DefaultFields.
func NewCollector(fields []Field) *Collector {
	if len(fields) == 0 {
		fields = DefaultFields()
	}
	return &Collector{fields: fields}
}

// Fields returns the questionnaire in interview order.
func (c *Collector) Fields() []Field {
	return c.fields
}

// MaybeActivateAdmin activates the admin override when the message is exactly
// the admin token, case-insensitively. It reports whether it fired; when it
// does, the caller must short-circuit the turn with AdminAckMessage and leave
// cursor and answers untouched. The flag is sticky for the session's lifetime.
func (c *Collector) MaybeActivateAdmin(s *models.Session, input string) bool {
	if !strings.EqualFold(strings.TrimSpace(input), AdminToken) {
		return false
	}
	s.IsAdmin = true
	slog.Info("Collector.MaybeActivateAdmin: admin override activated", "sessionID", s.ID)
	return true
}

// FirstPrompt returns the question for field 0. The very first contact of a
// session always yields this verbatim; any text or image sent with that same
// call is ignored rather than consumed as an answer.
func (c *Collector) FirstPrompt(s *models.Session) string {
	return renderPrompt(c.fields[0].Prompt, s)
}

// Advance runs one turn for an existing session. Empty input re-asks the
// current question without consuming anything (e.g. an image-only message).
// Invalid input leaves cursor and answers unchanged and repeats the question
// with a rejection annotation.
func (c *Collector) Advance(s *models.Session, input string) Result {
	if s.IsAdmin {
		return Result{Ready: true}
	}

	if s.Cursor < len(c.fields) && input != "" {
		field := c.fields[s.Cursor]
		if !field.Check(input) {
			slog.Debug("Collector.Advance: answer rejected", "sessionID", s.ID, "field", field.ID, "cursor", s.Cursor)
			return Result{
				Prompt:   field.Invalid + renderPrompt(field.Prompt, s),
				Rejected: true,
			}
		}
		s.SetAnswer(field.ID, input)
		s.Cursor++
		slog.Debug("Collector.Advance: answer accepted", "sessionID", s.ID, "field", field.ID, "cursor", s.Cursor)
	}

	if s.Cursor >= len(c.fields) {
		return Result{Ready: true}
	}
	return Result{Prompt: renderPrompt(c.fields[s.Cursor].Prompt, s)}
}
