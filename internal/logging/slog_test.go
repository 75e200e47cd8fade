package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithOperation(t *testing.T) {
	logger := slog.Default()
	result := WithOperation(logger, "test_operation")
	if result == nil {
		t.Error("WithOperation returned nil")
	}
}

func TestWithStep(t *testing.T) {
	logger := slog.Default()
	result := WithStep(logger, "gmail")
	if result == nil {
		t.Error("WithStep returned nil")
	}
}

func TestOperationAttr(t *testing.T) {
	attr := Operation("test_op")
	if attr.Key != KeyOperation {
		t.Errorf("Operation key = %q, want %q", attr.Key, KeyOperation)
	}
	if attr.Value.String() != "test_op" {
		t.Errorf("Operation value = %q, want %q", attr.Value.String(), "test_op")
	}
}

func TestStepAttr(t *testing.T) {
	attr := Step("telegram")
	if attr.Key != KeyStep {
		t.Errorf("Step key = %q, want %q", attr.Key, KeyStep)
	}
	if attr.Value.String() != "telegram" {
		t.Errorf("Step value = %q, want %q", attr.Value.String(), "telegram")
	}
}

func TestAttemptAttr(t *testing.T) {
	attr := Attempt("attempt-123")
	if attr.Key != KeyAttempt {
		t.Errorf("Attempt key = %q, want %q", attr.Key, KeyAttempt)
	}
	if attr.Value.String() != "attempt-123" {
		t.Errorf("Attempt value = %q, want %q", attr.Value.String(), "attempt-123")
	}
}

func TestErrAttr(t *testing.T) {
	err := errors.New("boom")
	attr := Err(err)
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "boom" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "boom")
	}
}

func TestErrAttrNil(t *testing.T) {
	attr := Err(nil)
	// A nil error should produce an empty group that slog omits
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "empty email", email: "", want: ""},
		{name: "normal email", email: "user@example.com", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			if tt.email == "" {
				if got != "" {
					t.Errorf("AnonymizeEmail(%q) = %q, want empty", tt.email, got)
				}
				return
			}
			if !strings.HasPrefix(got, "user:") {
				t.Errorf("AnonymizeEmail(%q) = %q, want user: prefix", tt.email, got)
			}
			if strings.Contains(got, tt.email) {
				t.Errorf("AnonymizeEmail(%q) leaked the email", tt.email)
			}
		})
	}
}

func TestAnonymizeEmailStable(t *testing.T) {
	a := AnonymizeEmail("user@example.com")
	b := AnonymizeEmail("user@example.com")
	if a != b {
		t.Errorf("AnonymizeEmail not stable: %q != %q", a, b)
	}
	c := AnonymizeEmail("other@example.com")
	if a == c {
		t.Error("AnonymizeEmail collided for different emails")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %q, want <empty>", got)
	}
	got := SanitizeToken("super-secret-state-token")
	if strings.Contains(got, "secret") {
		t.Errorf("SanitizeToken leaked content: %q", got)
	}
	if got != "[token:24 chars]" {
		t.Errorf("SanitizeToken = %q, want [token:24 chars]", got)
	}
}

func TestSanitizeCode(t *testing.T) {
	if got := SanitizeCode(""); got != "<empty>" {
		t.Errorf("SanitizeCode(\"\") = %q, want <empty>", got)
	}
	if got := SanitizeCode("ABC123"); got != "A*****" {
		t.Errorf("SanitizeCode = %q, want A*****", got)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "normal email", email: "user@example.com", want: "example.com"},
		{name: "empty email", email: "", want: ""},
		{name: "no at sign", email: "not-an-email", want: ""},
		{name: "multiple at signs", email: "a@b@c", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractDomain(tt.email); got != tt.want {
				t.Errorf("ExtractDomain(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}
