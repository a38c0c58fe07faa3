package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend_PostsToRelayWithBearerAuth(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody sendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), newTestLogger(), "re_test_key")
	client.endpoint = server.URL

	id, err := client.Send(context.Background(), Message{
		From:    "invoices@example.com",
		To:      "billing@acme.example",
		Subject: "Invoice INV-1",
		HTML:    "<p>hello</p>",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if id != "email-1" {
		t.Errorf("message id = %q, want email-1", id)
	}
	if gotAuth != "Bearer re_test_key" {
		t.Errorf("Authorization = %q, want Bearer token", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if len(gotBody.To) != 1 || gotBody.To[0] != "billing@acme.example" {
		t.Errorf("to = %v, want single recipient", gotBody.To)
	}
	if gotBody.Subject != "Invoice INV-1" {
		t.Errorf("subject = %q", gotBody.Subject)
	}
}

func TestSend_WithoutAPIKey_FailsClosed(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.Client(), newTestLogger(), "")
	client.endpoint = server.URL

	_, err := client.Send(context.Background(), Message{To: "a@example.com"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send() error = %v, want ErrNotConfigured", err)
	}
	if called {
		t.Error("relay must not be called without an API key")
	}
}

func TestSend_RelayError_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), newTestLogger(), "re_test_key")
	client.endpoint = server.URL

	_, err := client.Send(context.Background(), Message{To: "a@example.com"})
	if err == nil {
		t.Fatal("expected error for non-2xx relay status")
	}
}

func TestSend_UnparsableSuccessBody_SendStillSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), newTestLogger(), "re_test_key")
	client.endpoint = server.URL

	id, err := client.Send(context.Background(), Message{To: "a@example.com"})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil for accepted message", err)
	}
	if id != "" {
		t.Errorf("message id = %q, want empty when body is unparsable", id)
	}
}
