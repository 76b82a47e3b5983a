package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	c := NewClientWithBaseURL("test-key", url)
	c.backoff = time.Millisecond
	return c
}

func TestComplete_ReturnsFirstChoice(t *testing.T) {
	var got ChatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"{\"sorted_ids\":[\"1\"]}"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Complete(context.Background(), "google/gemini-2.0-flash-001", "rank these", true)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"sorted_ids":["1"]}` {
		t.Errorf("out = %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "rank these" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_PlainTextNoResponseFormat(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hi"}}]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Complete(context.Background(), "m", "p", false); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(raw, "response_format") {
		t.Errorf("body contains response_format: %s", raw)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Complete(context.Background(), "m", "p", true); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestComplete_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"no credits"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "m", "p", true)
	if err == nil || !strings.Contains(err.Error(), "no credits") {
		t.Fatalf("err = %v, want provider error", err)
	}
}

func TestComplete_RateLimit_Retry(t *testing.T) {
	var attempt atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), "m", "p", false)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
	if got := attempt.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestComplete_RateLimit_Exhausted(t *testing.T) {
	var attempt atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "m", "p", false)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "rate limited")
	}
	if got := attempt.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestComplete_ServerErrorNotRetried(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Complete(context.Background(), "m", "p", false); err == nil {
		t.Fatal("expected error")
	}
	if got := attempt.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(ModelList{Data: []Model{
			{ID: "google/gemini-2.0-flash-001"},
			{ID: "openai/gpt-4o-mini"},
		}})
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[1].ID != "openai/gpt-4o-mini" {
		t.Errorf("models = %+v", models)
	}
}

func TestListModels_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null}`)
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 0 {
		t.Errorf("got %d models, want 0", len(models))
	}
}
