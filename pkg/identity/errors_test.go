package identity

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := WrapError(CodeInvalidCredentials, "nope", fmt.Errorf("provider said 400"))

	if !errors.Is(err, ErrInvalidCredentials) {
		t.Error("Expected errors.Is to match the invalid-credentials sentinel")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("Should not match a different code")
	}
}

func TestErrorIs_SurvivesWrapping(t *testing.T) {
	inner := RateLimitedError(30 * time.Second)
	wrapped := fmt.Errorf("login failed: %w", inner)

	if !errors.Is(wrapped, ErrRateLimited) {
		t.Error("Expected match through fmt.Errorf wrapping")
	}

	var e *Error
	if !errors.As(wrapped, &e) {
		t.Fatal("Expected errors.As to find the classified error")
	}
	if e.RetryAfter != 30*time.Second {
		t.Errorf("Expected RetryAfter 30s, got %v", e.RetryAfter)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := WrapError(CodeNetwork, "unreachable", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected the raw cause to remain reachable via Unwrap")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(ErrSessionExpired); got != CodeSessionExpired {
		t.Errorf("Expected %s, got %s", CodeSessionExpired, got)
	}
	if got := CodeOf(fmt.Errorf("plain error")); got != CodeUnknown {
		t.Errorf("Unclassified errors should read as %s, got %s", CodeUnknown, got)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Errorf("nil should read as %s, got %s", CodeUnknown, got)
	}
}
