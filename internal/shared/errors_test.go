package shared

import (
	"net/http"
	"testing"
)

func TestNewAPIError(t *testing.T) {
	err := NewAPIError("bad_persona", "persona does not exist")
	if err.Code != "bad_persona" {
		t.Errorf("expected code bad_persona, got %s", err.Code)
	}
	if err.Message != "persona does not exist" {
		t.Errorf("unexpected message: %s", err.Message)
	}
	if err.Details != nil {
		t.Error("expected nil details")
	}
}

func TestAPIError_WithDetails(t *testing.T) {
	details := map[string]string{"field": "persona_id"}
	err := NewAPIError("invalid_request", "validation failed").WithDetails(details)
	if err.Details == nil {
		t.Fatal("expected details to be set")
	}
}

func TestAPIError_ToHTTP(t *testing.T) {
	httpErr := NewAPIError("rate_limited", "too many attempts").ToHTTP(http.StatusTooManyRequests)
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.Code)
	}
	apiErr, ok := httpErr.Message.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError message, got %T", httpErr.Message)
	}
	if apiErr.Code != "rate_limited" {
		t.Errorf("unexpected code: %s", apiErr.Code)
	}
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(code, message string) error
		status int
	}{
		{"bad request", func(c, m string) error { return BadRequest(c, m) }, http.StatusBadRequest},
		{"unauthorized", func(c, m string) error { return Unauthorized(c, m) }, http.StatusUnauthorized},
		{"forbidden", func(c, m string) error { return Forbidden(c, m) }, http.StatusForbidden},
		{"not found", func(c, m string) error { return NotFound(c, m) }, http.StatusNotFound},
		{"conflict", func(c, m string) error { return Conflict(c, m) }, http.StatusConflict},
		{"too many requests", func(c, m string) error { return TooManyRequests(c, m) }, http.StatusTooManyRequests},
		{"internal", func(c, m string) error { return InternalError(c, m) }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn("code", "message")
			httpErr, ok := err.(interface{ Error() string })
			if !ok || httpErr == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewID(t *testing.T) {
	a := NewID("prac_")
	b := NewID("prac_")
	if a == b {
		t.Error("expected unique ids")
	}
	if len(a) != len("prac_")+32 {
		t.Errorf("unexpected id length: %d", len(a))
	}
	if a[:5] != "prac_" {
		t.Errorf("expected prefix prac_, got %s", a[:5])
	}
}
