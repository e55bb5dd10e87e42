package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parley-labs/parley/internal/shared"
)

func TestGraderGrade(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := NewGrader(srv.URL, "gk_test")
	if err := g.Grade(context.Background(), "ps_1"); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if gotAuth != "Bearer gk_test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody["session_id"] != "ps_1" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestGraderGradeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGrader(srv.URL, "")
	err := g.Grade(context.Background(), "ps_1")
	if !errors.Is(err, shared.ErrGradingFailed) {
		t.Fatalf("error = %v, want ErrGradingFailed", err)
	}
}
