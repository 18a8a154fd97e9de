// Package intake implements the clinical intake questionnaire: the ordered
// field list, the per-turn collector state machine, the admin override, and
// the report compiler that turns collected answers into a model prompt.
package intake

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/clinichat/clinichat/internal/models"
)

// Validator reports whether a candidate answer is acceptable for a field.
// Validators never see admin-mode input; the collector bypasses them entirely
// once the admin override is active.
type Validator func(input string) bool

// Field is one question of the intake questionnaire. Prompt templates may
// reference previously collected answers with {field_id} placeholders.
type Field struct {
	ID      models.FieldID
	Label   string
	Prompt  string
	Invalid string // rejection annotation prefixed to the repeated prompt
	Check   Validator
}

var digitRe = regexp.MustCompile(`[0-9]`)

// validAge accepts any text containing at least one decimal digit.
func validAge(input string) bool {
	return digitRe.MatchString(input)
}

// sexTokens are the literal answers accepted for the sex field.
var sexTokens = []string{"masculino", "femenino", "m", "f", "hombre", "mujer"}

// validSex accepts text containing any of the accepted tokens as a whole word,
// case-insensitively. Matching on word boundaries keeps the one-letter tokens
// from firing inside unrelated words.
func validSex(input string) bool {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		for _, tok := range sexTokens {
			if w == tok {
				return true
			}
		}
	}
	return false
}

// nonEmpty accepts any text with at least one non-space character.
func nonEmpty(input string) bool {
	return strings.TrimSpace(input) != ""
}

// DefaultFields returns the intake questionnaire in interview order.
func DefaultFields() []Field {
	return []Field{
		{
			ID:      models.FieldAge,
			Label:   "Edad",
			Prompt:  "¡Hola! 👋 Soy tu asistente de consulta médica. Para comenzar, ¿cuántos años tienes?",
			Invalid: "La edad debe incluir un número, por ejemplo \"45\" o \"45 años\". ",
			Check:   validAge,
		},
		{
			ID:      models.FieldSex,
			Label:   "Sexo",
			Prompt:  "Gracias. ¿Cuál es tu sexo? Puedes responder masculino o femenino.",
			Invalid: "No he reconocido la respuesta. Por favor indica masculino o femenino. ",
			Check:   validSex,
		},
		{
			ID:      models.FieldComplaint,
			Label:   "Motivo de consulta",
			Prompt:  "¿Cuál es el motivo principal de tu consulta? Cuéntame qué te ocurre.",
			Invalid: "Necesito que me cuentes el motivo de tu consulta para continuar. ",
			Check:   nonEmpty,
		},
		{
			ID:      models.FieldDuration,
			Label:   "Duración",
			Prompt:  "Entiendo, mencionas: {motivo}. ¿Desde cuándo presentas estas molestias?",
			Invalid: "Necesito saber desde cuándo presentas las molestias. ",
			Check:   nonEmpty,
		},
		{
			ID:      models.FieldSymptoms,
			Label:   "Síntomas asociados",
			Prompt:  "¿Has notado otros síntomas acompañantes? Si no hay más, escribe \"ninguno\".",
			Invalid: "Necesito una respuesta para continuar; puedes escribir \"ninguno\". ",
			Check:   nonEmpty,
		},
		{
			ID:      models.FieldHistory,
			Label:   "Antecedentes",
			Prompt:  "Por último, ¿tienes antecedentes médicos relevantes o tomas alguna medicación habitual? Si no, escribe \"ninguno\".",
			Invalid: "Necesito una respuesta para continuar; puedes escribir \"ninguno\". ",
			Check:   nonEmpty,
		},
	}
}

// requiredForReport lists the fields the report compiler refuses to proceed
// without on the non-admin path.
var requiredForReport = []models.FieldID{models.FieldAge, models.FieldSex, models.FieldComplaint}

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// renderPrompt resolves {field_id} placeholders in a prompt template from the
// session's collected answers. Unresolved placeholders render as empty.
func renderPrompt(template string, s *models.Session) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		id := models.FieldID(ph[1 : len(ph)-1])
		return s.Answer(id)
	})
}
