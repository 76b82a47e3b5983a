package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/cinesense/internal/openrouter"
)

type mockGenerator struct {
	mu     sync.Mutex
	calls  int
	out    string
	err    error
	prompt string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompt = prompt
	return m.out, m.err
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestFallback_FirstSuccessWins(t *testing.T) {
	a := &mockGenerator{out: "a"}
	b := &mockGenerator{out: "b"}
	f := &Fallback{Backends: []Named{{"a", a}, {"b", b}}}

	out, err := f.Generate(context.Background(), "p", true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "a" {
		t.Errorf("out = %q, want a", out)
	}
	if b.callCount() != 0 {
		t.Error("second backend called after first succeeded")
	}
}

func TestFallback_UsesNextOnError(t *testing.T) {
	a := &mockGenerator{err: errors.New("connection refused")}
	b := &mockGenerator{out: "b"}
	f := &Fallback{Backends: []Named{{"a", a}, {"b", b}}}

	out, err := f.Generate(context.Background(), "p", true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "b" {
		t.Errorf("out = %q, want b", out)
	}
}

func TestFallback_AllFail(t *testing.T) {
	f := &Fallback{Backends: []Named{
		{"a", &mockGenerator{err: errors.New("down")}},
		{"b", &mockGenerator{err: errors.New("also down")}},
	}}

	_, err := f.Generate(context.Background(), "p", true)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestFallback_Empty(t *testing.T) {
	f := &Fallback{}
	if _, err := f.Generate(context.Background(), "p", true); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestFallback_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &mockGenerator{out: "b"}
	f := &Fallback{Backends: []Named{
		{"a", &mockGenerator{err: context.Canceled}},
		{"b", b},
	}}

	if _, err := f.Generate(ctx, "p", true); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if b.callCount() != 0 {
		t.Error("fallback tried after cancellation")
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	m := &mockGenerator{err: errors.New("timeout")}
	b := NewBreaker("test-open", m, 2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := b.Generate(context.Background(), "p", false); err == nil || errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: err = %v, want backend error", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %q, want open", b.State())
	}

	_, err := b.Generate(context.Background(), "p", false)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if m.callCount() != 2 {
		t.Errorf("backend called %d times, want 2", m.callCount())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	m := &mockGenerator{err: errors.New("x")}
	b := NewBreaker("test-reset", m, 2, time.Minute)

	b.Generate(context.Background(), "p", false)
	m.mu.Lock()
	m.err = nil
	m.out = "ok"
	m.mu.Unlock()
	if out, err := b.Generate(context.Background(), "p", false); err != nil || out != "ok" {
		t.Fatalf("Generate = %q, %v", out, err)
	}
	m.mu.Lock()
	m.err = errors.New("x")
	m.mu.Unlock()
	b.Generate(context.Background(), "p", false)

	if b.State() != "closed" {
		t.Errorf("state = %q, want closed", b.State())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	m := &mockGenerator{err: context.Canceled}
	b := NewBreaker("test-cancel", m, 1, time.Minute)

	for i := 0; i < 3; i++ {
		b.Generate(context.Background(), "p", false)
	}
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed", b.State())
	}
}

func TestSwitch(t *testing.T) {
	s := NewSwitch(nil)
	if s.Current() != nil {
		t.Error("Current() non-nil for disabled switch")
	}
	if _, err := s.Generate(context.Background(), "p", true); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}

	m := &mockGenerator{out: "hi"}
	s.Set(m)
	out, err := s.Generate(context.Background(), "p", true)
	if err != nil || out != "hi" {
		t.Errorf("Generate = %q, %v", out, err)
	}

	s.Set(nil)
	if s.Current() != nil {
		t.Error("Current() non-nil after Set(nil)")
	}
}

func TestInstrument_PassesThrough(t *testing.T) {
	m := &mockGenerator{out: "x", err: nil}
	g := Instrument("test", m)
	out, err := g.Generate(context.Background(), "prompt", false)
	if err != nil || out != "x" {
		t.Errorf("Generate = %q, %v", out, err)
	}
	if m.prompt != "prompt" {
		t.Errorf("prompt = %q", m.prompt)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantNil bool
		wantErr bool
		chain   int
	}{
		{name: "disabled", s: Settings{Enabled: false, Provider: "ollama"}, wantNil: true},
		{name: "ollama", s: Settings{Enabled: true, Provider: "ollama", OllamaHost: "http://localhost:11434", OllamaModel: "llama3"}, chain: 1},
		{name: "ollama missing model", s: Settings{Enabled: true, Provider: "ollama", OllamaHost: "http://localhost:11434"}, wantErr: true},
		{name: "openrouter without key", s: Settings{Enabled: true, Provider: "openrouter"}, wantErr: true},
		{name: "unknown", s: Settings{Enabled: true, Provider: "gpt"}, wantErr: true},
		{
			name: "with fallback",
			s: Settings{Enabled: true, Provider: "ollama", FallbackProvider: "openrouter",
				OllamaHost: "http://localhost:11434", OllamaModel: "llama3", OpenRouterAPIKey: "k", OpenRouterModel: "m"},
			chain: 2,
		},
		{
			name:  "fallback same as primary",
			s:     Settings{Enabled: true, Provider: "ollama", FallbackProvider: "ollama", OllamaHost: "http://h", OllamaModel: "m"},
			chain: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := Build(tt.s, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if tt.wantNil {
				if gen != nil {
					t.Errorf("gen = %T, want nil", gen)
				}
				return
			}
			f, ok := gen.(*Fallback)
			if !ok {
				t.Fatalf("gen = %T, want *Fallback", gen)
			}
			if len(f.Backends) != tt.chain {
				t.Errorf("chain length = %d, want %d", len(f.Backends), tt.chain)
			}
		})
	}
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"response":"[\"1\"]","done":true}`))
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "llama3")
	out, err := g.Generate(context.Background(), "rank", true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `["1"]` {
		t.Errorf("out = %q", out)
	}
}

func TestOpenRouterGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenRouterGeneratorWithClient(openrouter.NewClientWithBaseURL("k", srv.URL), "m")
	out, err := g.Generate(context.Background(), "p", true)
	if err != nil || out != "{}" {
		t.Errorf("Generate = %q, %v", out, err)
	}
}
