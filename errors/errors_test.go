package errors

import (
	"fmt"
	"testing"
)

func TestAutoregError(t *testing.T) {
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeCommandFailed, "command failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeCommandFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("session_id", "abc").WithDetail("pid", 4242)
	if detailed.Details["session_id"] != "abc" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := SessionNotFound("s1")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}
	if err.Details["session_id"] != "s1" {
		t.Error("SessionNotFound should include session detail")
	}

	err = SessionExists("s1", 99)
	if err.Code != ErrCodeSessionExists {
		t.Errorf("expected code %s, got %s", ErrCodeSessionExists, err.Code)
	}
	if err.Details["pid"] != 99 {
		t.Error("SessionExists should include pid detail")
	}

	err = FlagProtected("pula.flag")
	if err.Code != ErrCodeFlagProtected {
		t.Errorf("expected code %s, got %s", ErrCodeFlagProtected, err.Code)
	}
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	base := ProcessExited("s2")
	wrapped := fmt.Errorf("send input: %w", base)

	if got := GetCode(wrapped); got != ErrCodeProcessExited {
		t.Errorf("expected %s through fmt wrapping, got %s", ErrCodeProcessExited, got)
	}
	if MessageOf(wrapped) != base.Message {
		t.Errorf("MessageOf should return the structured message, got %q", MessageOf(wrapped))
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("plain errors carry no code")
	}
	if Is(nil, "") {
		t.Error("nil error matches nothing")
	}
}
