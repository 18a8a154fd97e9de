package intake

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/clinichat/clinichat/internal/models"
)

func TestCompile_MissingGuardedFields(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.SetAnswer(models.FieldAge, "45")

	_, err := c.Compile(s, "", "")
	if err == nil {
		t.Fatal("expected error with guarded fields missing")
	}
	if !errors.Is(err, models.ErrMissingRequiredField) {
		t.Errorf("expected ErrMissingRequiredField, got %v", err)
	}
	var missing *MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingFieldsError, got %T", err)
	}
	if len(missing.Fields) != 2 {
		t.Errorf("expected 2 missing fields (sexo, motivo), got %d", len(missing.Fields))
	}
	msg := missing.UserMessage()
	if !strings.Contains(msg, "sexo") || !strings.Contains(msg, "motivo") {
		t.Errorf("user message should name the missing fields, got %q", msg)
	}
}

func TestCompile_AdminToleratesEmptySession(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.IsAdmin = true

	req, err := c.Compile(s, "", "")
	if err != nil {
		t.Fatalf("admin compile must succeed on empty session: %v", err)
	}
	if len(req.Parts) != 1 {
		t.Fatalf("expected a single text part, got %d", len(req.Parts))
	}
	if strings.Contains(req.Parts[0].Text, "Datos recopilados") {
		t.Errorf("empty session must omit the collected-data section, got %q", req.Parts[0].Text)
	}
	if req.System == "" {
		t.Error("expected system instruction")
	}
}

func TestCompile_NumbersAnswersInCollectionOrder(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.SetAnswer(models.FieldAge, "45 años")
	s.SetAnswer(models.FieldSex, "femenino")
	s.SetAnswer(models.FieldComplaint, "dolor de cabeza")

	req, err := c.Compile(s, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := req.Parts[0].Text
	for _, want := range []string{"1. Edad: 45 años", "2. Sexo: femenino", "3. Motivo de consulta: dolor de cabeza"} {
		if !strings.Contains(text, want) {
			t.Errorf("report text missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "Hipótesis diagnósticas") {
		t.Errorf("report text missing closing instruction:\n%s", text)
	}
}

func TestCompile_AttachesValidImage(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.SetAnswer(models.FieldAge, "45")
	s.SetAnswer(models.FieldSex, "m")
	s.SetAnswer(models.FieldComplaint, "erupción cutánea")

	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	req, err := c.Compile(s, base64.StdEncoding.EncodeToString(payload), "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Parts) != 2 {
		t.Fatalf("expected text + image parts, got %d", len(req.Parts))
	}
	img := req.Parts[1]
	if string(img.Data) != string(payload) {
		t.Error("image bytes not preserved")
	}
	if img.MIME != "image/png" {
		t.Errorf("expected declared MIME kept, got %q", img.MIME)
	}
}

func TestCompile_DefaultsImageMIME(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.IsAdmin = true

	req, err := c.Compile(s, base64.StdEncoding.EncodeToString([]byte("img")), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Parts[1].MIME != DefaultImageMIME {
		t.Errorf("expected default MIME %q, got %q", DefaultImageMIME, req.Parts[1].MIME)
	}
}

func TestCompile_DropsMalformedImage(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.IsAdmin = true

	req, err := c.Compile(s, "not-valid-base64!!!", "image/png")
	if err != nil {
		t.Fatalf("malformed image must not fail the turn: %v", err)
	}
	if len(req.Parts) != 1 {
		t.Errorf("malformed image must be dropped, got %d parts", len(req.Parts))
	}
}

func TestCompile_DoesNotMutateSession(t *testing.T) {
	c := NewCollector(nil)
	s := newTestSession()
	s.SetAnswer(models.FieldAge, "45")
	s.SetAnswer(models.FieldSex, "f")
	s.SetAnswer(models.FieldComplaint, "tos")
	before := *s

	if _, err := c.Compile(s, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Cursor != before.Cursor || len(s.Answers) != len(before.Answers) || s.IsAdmin != before.IsAdmin {
		t.Error("Compile mutated the session")
	}
}
