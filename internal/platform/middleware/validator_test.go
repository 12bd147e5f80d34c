package middleware

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	SpO2  int    `json:"spo2" validate:"gte=0,lte=100"`
	Flag  *bool  `json:"flag" validate:"required"`
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	yes := true
	if err := v.Validate(&sampleRequest{Name: "a", SpO2: 97, Flag: &yes}); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidator_Messages(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&sampleRequest{Email: "not-an-email", SpO2: 140})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"Name is required", "Email must be a valid email address", "SpO2 must be lte 100", "Flag is required"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}
