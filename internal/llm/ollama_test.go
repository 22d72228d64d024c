package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		json.NewEncoder(w).Encode(generateResponse{
			Model:    req.Model,
			Response: `{"type":"final","content":"ok"}`,
			Done:     true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "test-model", 0)
	out, err := c.Complete(context.Background(), "decide the next action")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if out != `{"type":"final","content":"ok"}` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOllamaClient_CompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "missing", 0)
	_, err := c.Complete(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestOllamaClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", 0)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping error: %v", err)
	}
}
