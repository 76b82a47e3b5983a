package tasteprofile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/kvcache"
	"github.com/kalambet/cinesense/internal/storage"
)

// --- Mocks ---

type mockHistory struct {
	mu        sync.Mutex
	loads     int
	records   map[string]storage.PlayRecord
	favorites map[string]storage.Favorite
	searches  []string
	err       error
}

func (m *mockHistory) GetAllPlayRecords(_ context.Context, _ string) (map[string]storage.PlayRecord, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()
	return m.records, m.err
}

func (m *mockHistory) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *mockHistory) GetSearchHistory(_ context.Context, _ string) ([]string, error) {
	return m.searches, nil
}

func (m *mockHistory) GetAllFavorites(_ context.Context, _ string) (map[string]storage.Favorite, error) {
	return m.favorites, nil
}

type mockGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	out     string
	err     error
	delay   time.Duration
	panics  bool
}

func (m *mockGenerator) Generate(ctx context.Context, p string, _ bool) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, p)
	delay, panics := m.delay, m.panics
	m.mu.Unlock()
	if panics {
		panic("boom")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.out, m.err
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

const profileJSON = `{"preferredGenres":["科幻","悬疑"],"favoriteThemes":["时间旅行"],"keyFigures":["诺兰"],"moodPreference":["烧脑"],"dislikedElements":["狗血"]}`

func validRecords(n int) map[string]storage.PlayRecord {
	out := make(map[string]storage.PlayRecord, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%d", i)
		out[k] = storage.PlayRecord{
			Key: k, Title: fmt.Sprintf("Title %d", i), Year: "2020",
			Description:   "<p>A \"great\"\nstory</p>",
			TotalEpisodes: 1, PlayPositionSeconds: 90, TotalDurationSeconds: 100,
			LastSavedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func newTestStore(h *mockHistory, g *mockGenerator, cache kvcache.Cache) *Store {
	return New(Deps{
		Cache:     cache,
		History:   h,
		Generator: func() engine.Generator { return g },
		Options:   Options{MinValidRecords: 5, MinFavorites: 1},
	})
}

// --- Tests ---

func TestGet_Miss(t *testing.T) {
	s := newTestStore(&mockHistory{}, &mockGenerator{}, kvcache.NewMemory())
	p, err := s.Get(context.Background(), "alice")
	if err != nil || p != nil {
		t.Errorf("Get = %v, %v; want nil, nil", p, err)
	}
}

func TestGet_CorruptEntryIsMiss(t *testing.T) {
	cache := kvcache.NewMemory()
	cache.Set(context.Background(), CacheKey("alice"), []byte("not json"), time.Hour)
	s := newTestStore(&mockHistory{}, &mockGenerator{}, cache)
	p, err := s.Get(context.Background(), "alice")
	if err != nil || p != nil {
		t.Errorf("Get = %v, %v; want nil, nil", p, err)
	}
}

func TestGet_NeverGenerates(t *testing.T) {
	g := &mockGenerator{out: profileJSON}
	s := newTestStore(&mockHistory{records: validRecords(10)}, g, kvcache.NewMemory())
	s.Get(context.Background(), "alice")
	if g.callCount() != 0 {
		t.Errorf("Get called generator %d times", g.callCount())
	}
}

func TestBuild_CachesProfile(t *testing.T) {
	cache := kvcache.NewMemory()
	g := &mockGenerator{out: "```json\n" + profileJSON + "\n```"}
	s := newTestStore(&mockHistory{records: validRecords(6), searches: []string{"诺兰"}}, g, cache)

	p, err := s.Build(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p == nil || len(p.PreferredGenres) != 2 {
		t.Fatalf("profile = %+v", p)
	}

	got, err := s.Get(context.Background(), "alice")
	if err != nil || got == nil {
		t.Fatalf("Get after Build = %v, %v", got, err)
	}
	if got.KeyFigures[0] != "诺兰" {
		t.Errorf("KeyFigures = %v", got.KeyFigures)
	}
}

func TestBuild_InsufficientSignal(t *testing.T) {
	g := &mockGenerator{out: profileJSON}
	s := newTestStore(&mockHistory{records: validRecords(4)}, g, kvcache.NewMemory())

	p, err := s.Build(context.Background(), "alice")
	if err != nil || p != nil {
		t.Errorf("Build = %v, %v; want nil, nil", p, err)
	}
	if g.callCount() != 0 {
		t.Errorf("generator called %d times, want 0", g.callCount())
	}
}

func TestBuild_FavoritesLowerTheBar(t *testing.T) {
	g := &mockGenerator{out: profileJSON}
	h := &mockHistory{
		records:   validRecords(1),
		favorites: map[string]storage.Favorite{"f": {Key: "f", Title: "星际穿越", Year: "2014"}},
	}
	s := newTestStore(h, g, kvcache.NewMemory())

	if _, err := s.Build(context.Background(), "alice"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", g.callCount())
	}
	if !strings.Contains(g.prompts[0], "HIGHEST WEIGHT") || !strings.Contains(g.prompts[0], "星际穿越 (2014)") {
		t.Errorf("prompt missing favorites section:\n%s", g.prompts[0])
	}
}

func TestBuild_PromptIsSanitized(t *testing.T) {
	g := &mockGenerator{out: profileJSON}
	s := newTestStore(&mockHistory{records: validRecords(5), searches: []string{"bad\"\nterm"}}, g, kvcache.NewMemory())

	s.Build(context.Background(), "alice")
	p := g.prompts[0]
	if strings.Contains(p, "<p>") || strings.Contains(p, `"great"`) {
		t.Errorf("prompt contains unsanitized synopsis:\n%s", p)
	}
	if !strings.Contains(p, "A great story") {
		t.Errorf("prompt missing cleaned synopsis:\n%s", p)
	}
	if !strings.Contains(p, "bad term") {
		t.Errorf("prompt missing cleaned search term:\n%s", p)
	}
}

func TestBuild_MalformedOutputNotCached(t *testing.T) {
	for _, out := range []string{"I cannot help with that", `["科幻"]`, `{"preferredGenres":[]}`} {
		cache := kvcache.NewMemory()
		s := newTestStore(&mockHistory{records: validRecords(5)}, &mockGenerator{out: out}, cache)
		if _, err := s.Build(context.Background(), "alice"); err == nil {
			t.Errorf("Build(%q) returned nil error", out)
		}
		if cache.Len() != 0 {
			t.Errorf("Build(%q) wrote to cache", out)
		}
	}
}

func TestBuild_NoGenerator(t *testing.T) {
	s := New(Deps{Cache: kvcache.NewMemory(), History: &mockHistory{records: validRecords(10)}})
	p, err := s.Build(context.Background(), "alice")
	if err != nil || p != nil {
		t.Errorf("Build = %v, %v; want nil, nil", p, err)
	}
}

func TestBuildAndCache_SwallowsErrors(t *testing.T) {
	s := newTestStore(&mockHistory{err: errors.New("db down")}, &mockGenerator{}, kvcache.NewMemory())
	s.BuildAndCache(context.Background(), "alice")
}

func TestTrigger_ConcurrentCallsShareOneBuild(t *testing.T) {
	g := &mockGenerator{out: profileJSON, delay: 100 * time.Millisecond}
	cache := kvcache.NewMemory()
	s := newTestStore(&mockHistory{records: validRecords(6)}, g, cache)

	for i := 0; i < 5; i++ {
		s.Trigger("alice")
	}
	s.Wait()

	if g.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", g.callCount())
	}
	if p, _ := s.Get(context.Background(), "alice"); p == nil {
		t.Error("profile not cached after Trigger")
	}
}

func TestTrigger_RecoversFromPanic(t *testing.T) {
	g := &mockGenerator{panics: true}
	s := newTestStore(&mockHistory{records: validRecords(6)}, g, kvcache.NewMemory())

	s.Trigger("alice")
	s.Wait()

	if g.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", g.callCount())
	}
}

func TestTrigger_SkipsUserBelowThreshold(t *testing.T) {
	h := &mockHistory{records: validRecords(2)}
	g := &mockGenerator{out: profileJSON}
	s := newTestStore(h, g, kvcache.NewMemory())

	s.Trigger("alice")
	s.Wait()
	for i := 0; i < 3; i++ {
		s.Trigger("alice")
	}
	s.Wait()

	if n := h.loadCount(); n != 1 {
		t.Errorf("history loaded %d times, want 1", n)
	}
	if g.callCount() != 0 {
		t.Errorf("generator called %d times, want 0", g.callCount())
	}
}

func TestTrigger_InsufficientMarkerIsPerUser(t *testing.T) {
	cache := kvcache.NewMemory()
	h := &mockHistory{records: validRecords(2)}
	s := newTestStore(h, &mockGenerator{out: profileJSON}, cache)

	s.Trigger("alice")
	s.Wait()
	s.Trigger("bob")
	s.Wait()

	if n := h.loadCount(); n != 2 {
		t.Errorf("history loaded %d times, want 2", n)
	}
}
