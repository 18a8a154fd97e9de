package models

import (
	"errors"
	"strings"
	"testing"
)

func TestSessionSetAnswer_ReplacesInPlace(t *testing.T) {
	s := &Session{}
	s.SetAnswer(FieldAge, "40")
	s.SetAnswer(FieldSex, "femenino")
	s.SetAnswer(FieldAge, "45")

	if got := s.Answer(FieldAge); got != "45" {
		t.Errorf("expected replaced value '45', got %q", got)
	}
	if len(s.Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(s.Answers))
	}
	// Replacing must not disturb collection order.
	if s.Answers[0].Field != FieldAge || s.Answers[1].Field != FieldSex {
		t.Errorf("unexpected answer order %+v", s.Answers)
	}
}

func TestSessionAnswer_UnansweredFieldIsEmpty(t *testing.T) {
	s := &Session{}
	if got := s.Answer(FieldComplaint); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestChatRequestValidate(t *testing.T) {
	req := &ChatRequest{Message: strings.Repeat("a", MaxMessageLength)}
	if err := req.Validate(); err != nil {
		t.Errorf("expected message at limit to pass, got %v", err)
	}
	req.Message += "a"
	if err := req.Validate(); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestAPIResponseBuilder(t *testing.T) {
	resp := NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage("done").
		WithResult(42).
		Build()
	if resp.Status != string(APIStatusOK) {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	if resp.Message != "done" || resp.Result != 42 {
		t.Errorf("unexpected response %+v", resp)
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("unexpected error response %+v", errResp)
	}
}
