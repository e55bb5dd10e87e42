package partner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parley-labs/parley/internal/shared"
)

func TestExchangeSuccess(t *testing.T) {
	var gotAuth, gotModel, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.URL.Query().Get("model")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("v=0\r\nanswer"))
	}))
	defer srv.Close()

	s := NewSignaler(srv.URL)
	answer, err := s.Exchange(context.Background(), "ek_secret", "partner-realtime", "v=0\r\noffer")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if answer != "v=0\r\nanswer" {
		t.Errorf("answer = %q", answer)
	}
	if gotAuth != "Bearer ek_secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotModel != "partner-realtime" {
		t.Errorf("model = %q", gotModel)
	}
	if gotContentType != "application/sdp" {
		t.Errorf("content type = %q", gotContentType)
	}
}

func TestExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credential", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSignaler(srv.URL)
	_, err := s.Exchange(context.Background(), "expired", "m", "v=0")
	if !errors.Is(err, shared.ErrHandshakeRejected) {
		t.Fatalf("error = %v, want ErrHandshakeRejected", err)
	}
}

func TestExchangeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := NewSignaler(srv.URL)
	_, err := s.Exchange(ctx, "s", "m", "v=0")
	if !errors.Is(err, shared.ErrHandshakeTimeout) {
		t.Fatalf("error = %v, want ErrHandshakeTimeout", err)
	}
}

func TestTransportSendBeforeConnect(t *testing.T) {
	tr := New(Config{SignalingURL: "http://localhost:0"})
	if err := tr.Send([]byte(`{"type":"response.cancel"}`)); !errors.Is(err, shared.ErrTransportFailed) {
		t.Fatalf("Send() error = %v, want ErrTransportFailed", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true before handshake")
	}
}

func TestTransportCloseIdempotent(t *testing.T) {
	tr := New(Config{SignalingURL: "http://localhost:0"})
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := tr.Send(nil); !errors.Is(err, shared.ErrTransportFailed) {
		t.Fatalf("Send() after Close error = %v", err)
	}
}
