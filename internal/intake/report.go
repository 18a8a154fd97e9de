package intake

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinichat/clinichat/internal/models"
)

// Report prompt copy.
const (
	// ReportSystemPrompt frames the model as a cautious Spanish-language
	// clinical assistant producing an orientative report, not a diagnosis.
	ReportSystemPrompt = "Eres un asistente médico virtual en español. A partir de los datos de una entrevista de " +
		"admisión generas un informe clínico orientativo, con lenguaje claro y prudente. Nunca presentas el " +
		"resultado como un diagnóstico definitivo ni sustituyes una consulta presencial."

	// reportClosing is the fixed instruction appended after the collected data.
	reportClosing = "Con base en los datos anteriores, redacta un informe clínico estructurado con tres secciones: " +
		"1) Resumen del caso, 2) Hipótesis diagnósticas diferenciales, 3) Recomendaciones y señales de alarma. " +
		"Si se adjunta una imagen, incorpora su descripción al resumen. Aclara al final que el informe es " +
		"orientativo."

	// DefaultImageMIME is assumed when the caller declares no MIME type.
	DefaultImageMIME = "image/jpeg"
)

// Part is one segment of the report request handed to the model gateway:
// either text or a binary attachment.
type Part struct {
	Text string
	Data []byte
	MIME string
}

// ReportRequest is the compiled, ephemeral prompt for the model gateway.
type ReportRequest struct {
	System string
	Parts  []Part
}

// MissingFieldsError reports which guarded fields block report compilation.
// It unwraps to models.ErrMissingRequiredField.
type MissingFieldsError struct {
	Fields []Field
}

func (e *MissingFieldsError) Error() string {
	ids := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		ids[i] = string(f.ID)
	}
	return fmt.Sprintf("required intake fields missing: %s", strings.Join(ids, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return models.ErrMissingRequiredField
}

// UserMessage renders the re-prompt shown to the caller so they can supply
// the missing fields. The session stays alive.
func (e *MissingFieldsError) UserMessage() string {
	labels := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		labels[i] = strings.ToLower(f.Label)
	}
	return fmt.Sprintf("Antes de generar el informe necesito algunos datos: %s. ¿Puedes indicármelos?", strings.Join(labels, ", "))
}

// Compile builds the final report request from the session's collected
// answers, optionally attaching an image supplied with the final turn.
//
// On the non-admin path it fails with *MissingFieldsError when any guarded
// field (edad, sexo, motivo) is absent or blank; admin mode tolerates partial
// or empty data. A malformed image payload is logged and dropped rather than
// failing the turn. Compile never mutates the session; removing it after a
// successful gateway reply is the caller's responsibility.
func (c *Collector) Compile(s *models.Session, imageB64, imageMIME string) (*ReportRequest, error) {
	if !s.IsAdmin {
		var missing []Field
		for _, f := range c.fields {
			if !isRequiredForReport(f.ID) {
				continue
			}
			if strings.TrimSpace(s.Answer(f.ID)) == "" {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			slog.Debug("Collector.Compile: guarded fields missing", "sessionID", s.ID, "missing", len(missing))
			return nil, &MissingFieldsError{Fields: missing}
		}
	}

	var b strings.Builder
	if len(s.Answers) > 0 {
		b.WriteString("Datos recopilados:\n")
		n := 0
		for _, a := range s.Answers {
			n++
			b.WriteString(fmt.Sprintf("%d. %s: %s\n", n, c.labelFor(a.Field), a.Value))
		}
		b.WriteString("\n")
	}
	b.WriteString(reportClosing)

	req := &ReportRequest{
		System: ReportSystemPrompt,
		Parts:  []Part{{Text: b.String()}},
	}

	if imageB64 != "" {
		if data, ok := decodeImage(s.ID, imageB64); ok {
			if imageMIME == "" {
				imageMIME = DefaultImageMIME
			}
			req.Parts = append(req.Parts, Part{Data: data, MIME: imageMIME})
		}
	}

	return req, nil
}

// decodeImage decodes a base64 attachment. Undecodable or oversized payloads
// are logged and reported as not ok; the turn must proceed without them.
func decodeImage(sessionID, imageB64 string) ([]byte, bool) {
	data, err := base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		slog.Warn("Collector.Compile: malformed image payload dropped", "sessionID", sessionID, "error", err)
		return nil, false
	}
	if len(data) > models.MaxImageBytes {
		slog.Warn("Collector.Compile: oversized image payload dropped", "sessionID", sessionID, "bytes", len(data))
		return nil, false
	}
	return data, true
}

func (c *Collector) labelFor(id models.FieldID) string {
	for _, f := range c.fields {
		if f.ID == id {
			return f.Label
		}
	}
	return string(id)
}

func isRequiredForReport(id models.FieldID) bool {
	for _, r := range requiredForReport {
		if r == id {
			return true
		}
	}
	return false
}
