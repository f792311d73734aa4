package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kishek/graph-store/dispatch"
)

func TestClientDoSucceedsOnFirstTry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	var result map[string]interface{}
	if err := c.Do(context.Background(), dispatch.Envelope{Type: "diagnostic", Operation: "echo"}, &result); err != nil {
		t.Fatalf("Do() = %v", err)
	}
	if result["ok"] != true {
		t.Fatalf("Do() result = %v", result)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server called %d times, want 1", calls)
	}
}

func TestClientDoRetries5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	var result map[string]interface{}
	if err := c.Do(context.Background(), dispatch.Envelope{Type: "diagnostic", Operation: "echo"}, &result); err != nil {
		t.Fatalf("Do() = %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("server called %d times, want 3 (max attempts)", calls)
	}
}

func TestClientDoExhaustsRetriesOnPersistent5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.Do(context.Background(), dispatch.Envelope{Type: "diagnostic", Operation: "echo"}, nil)
	if err == nil {
		t.Fatalf("Do() = nil error, want exhausted-retries error")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("server called %d times, want 3 (maxAttempts)", calls)
	}
}

func TestClientDoDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.Do(context.Background(), dispatch.Envelope{Type: "query", Operation: "bogus"}, nil)
	if err == nil {
		t.Fatalf("Do() = nil error, want request-failed error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server called %d times, want 1 (4xx must not retry)", calls)
	}
}
