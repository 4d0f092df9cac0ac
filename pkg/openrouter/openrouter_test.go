package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if NewClient(Config{BaseURL: "http://localhost"}) != nil {
		t.Fatal("expected nil client without api key")
	}
}

func TestVerifyModel(t *testing.T) {
	t.Parallel()

	var (
		mu                sync.Mutex
		gotAuth, gotTitle string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		mu.Unlock()
		if !strings.HasSuffix(r.URL.Path, "/models/known/model") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"known/model","object":"model","created":0,"owned_by":"test"}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL, SiteName: "support-router"})
	if client == nil {
		t.Fatal("expected client")
	}

	if err := VerifyModel(context.Background(), client, "known/model"); err != nil {
		t.Fatalf("VerifyModel() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotTitle != "support-router" {
		t.Fatalf("X-Title = %q", gotTitle)
	}

}

func TestVerifyModelUnknown(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	if err := VerifyModel(context.Background(), client, "missing/model"); err == nil {
		t.Fatal("expected error for unknown model")
	}
	if err := VerifyModel(context.Background(), nil, "known/model"); err == nil {
		t.Fatal("expected error for nil client")
	}
}
