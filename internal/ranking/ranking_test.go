package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/engine"
)

var ctx = context.Background()

type mockGenerator struct {
	out     string
	err     error
	prompts []string
}

func (m *mockGenerator) Generate(_ context.Context, p string, _ bool) (string, error) {
	m.prompts = append(m.prompts, p)
	return m.out, m.err
}

type failingStrategy struct{ calls int }

func (f *failingStrategy) Name() string { return "failing" }

func (f *failingStrategy) Rank(context.Context, []catalog.Item, []string) ([]catalog.Item, error) {
	f.calls++
	return nil, errors.New("nope")
}

func items(ratings ...string) []catalog.Item {
	out := make([]catalog.Item, len(ratings))
	for i, r := range ratings {
		out[i] = catalog.Item{ID: fmt.Sprintf("id%d", i+1), Title: fmt.Sprintf("T%d", i+1), Rating: r}
	}
	return out
}

func ids(items []catalog.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equal(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestHeuristic(t *testing.T) {
	in := items("7.5", "", "9.1", "abc", "7.5", "8")
	got, err := Heuristic{}.Rank(ctx, in, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"id3", "id6", "id1", "id5", "id2", "id4"}
	if !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	if in[0].ID != "id1" {
		t.Error("input reordered")
	}
}

func TestLLM_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"bare array", `["id3","id1","id2"]`},
		{"sorted_ids", `{"sorted_ids":["id3","id1","id2"]}`},
		{"result", `{"result":["id3","id1","id2"]}`},
		{"fenced", "```json\n{\"sorted_ids\": [\"id3\", \"id1\", \"id2\"]}\n```"},
		{"objects", `[{"id":"id3"},{"id":"id1"},{"id":"id2"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{out: tt.out}
			got, err := LLM{Gen: gen}.Rank(ctx, items("1", "2", "3"), []string{"三体"})
			if err != nil {
				t.Fatalf("Rank: %v", err)
			}
			if want := []string{"id3", "id1", "id2"}; !equal(ids(got), want) {
				t.Errorf("order = %v, want %v", ids(got), want)
			}
		})
	}
}

func TestLLM_NumericIDs(t *testing.T) {
	in := []catalog.Item{{ID: "35267208", Title: "A"}, {ID: "1292052", Title: "B"}}
	gen := &mockGenerator{out: `[1292052, 35267208]`}
	got, err := LLM{Gen: gen}.Rank(ctx, in, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if want := []string{"1292052", "35267208"}; !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestLLM_UnknownDuplicateAndMissingIDs(t *testing.T) {
	gen := &mockGenerator{out: `{"sorted_ids":["id4","zzz","id2","id4"]}`}
	got, err := LLM{Gen: gen}.Rank(ctx, items("1", "2", "3", "4", "5"), nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"id4", "id2", "id1", "id3", "id5"}
	if !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestLLM_Malformed(t *testing.T) {
	for _, out := range []string{
		"I think you will like id3 the most.",
		`{"ranking":["id1"]}`,
		`{"sorted_ids":"id1,id2"}`,
		`["nothing","known"]`,
	} {
		gen := &mockGenerator{out: out}
		_, err := LLM{Gen: gen}.Rank(ctx, items("1", "2"), nil)
		if !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("output %q: err = %v, want ErrMalformedOutput", out, err)
		}
	}
}

func TestLLM_GeneratorError(t *testing.T) {
	gen := &mockGenerator{err: engine.ErrUnavailable}
	_, err := LLM{Gen: gen}.Rank(ctx, items("1"), nil)
	if !errors.Is(err, engine.ErrUnavailable) {
		t.Errorf("err = %v", err)
	}
	if _, err := (LLM{}).Rank(ctx, items("1"), nil); !errors.Is(err, engine.ErrNotConfigured) {
		t.Errorf("nil generator err = %v", err)
	}
}

func TestLLM_CeilingTruncatesByRating(t *testing.T) {
	// id2 has the lowest rating and falls outside a ceiling of 2.
	gen := &mockGenerator{out: `["id3","id1"]`}
	got, err := LLM{Gen: gen, MaxCandidates: 2}.Rank(ctx, items("8", "5", "9"), nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if want := []string{"id3", "id1", "id2"}; !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	if strings.Contains(gen.prompts[0], "id2") {
		t.Error("prompt contains candidate beyond the ceiling")
	}
}

func TestLLM_PromptSanitized(t *testing.T) {
	gen := &mockGenerator{out: `["id1"]`}
	in := []catalog.Item{{ID: "id1", Title: `<i>"Quoted"</i>`, Year: "2020", Intro: "line1\nline2"}}
	if _, err := (LLM{Gen: gen}).Rank(ctx, in, []string{"看过的"}); err != nil {
		t.Fatalf("Rank: %v", err)
	}
	p := gen.prompts[0]
	if strings.Contains(p, "<i>") || strings.Contains(p, `"Quoted"`) || strings.Contains(p, "line1\nline2") {
		t.Errorf("prompt not sanitized:\n%s", p)
	}
	if !strings.Contains(p, "看过的") || !strings.Contains(p, "sorted_ids") {
		t.Errorf("prompt missing watched titles or format:\n%s", p)
	}
}

func TestChain_LLMWins(t *testing.T) {
	gen := &mockGenerator{out: `{"sorted_ids":["id3","id1","id2"]}`}
	c := Chain{Strategies: []Strategy{LLM{Gen: gen}, Heuristic{}}}

	got := c.Rank(ctx, items("9", "8", "7"), nil)
	if want := []string{"id3", "id1", "id2"}; !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestChain_FallsBackToHeuristic(t *testing.T) {
	gen := &mockGenerator{out: "not json at all"}
	c := Chain{Strategies: []Strategy{LLM{Gen: gen}, Heuristic{}}}

	got := c.Rank(ctx, items("7", "9", "8"), nil)
	if want := []string{"id2", "id3", "id1"}; !equal(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestChain_AllFailKeepsInput(t *testing.T) {
	f := &failingStrategy{}
	c := Chain{Strategies: []Strategy{f, f}}
	in := items("1", "9")
	got := c.Rank(ctx, in, nil)
	if !equal(ids(got), ids(in)) {
		t.Errorf("order = %v, want input order", ids(got))
	}
	if f.calls != 2 {
		t.Errorf("calls = %d, want 2", f.calls)
	}
}

func TestChain_Empty(t *testing.T) {
	f := &failingStrategy{}
	if got := (Chain{Strategies: []Strategy{f}}).Rank(ctx, nil, nil); len(got) != 0 {
		t.Errorf("got %v", got)
	}
	if f.calls != 0 {
		t.Error("strategy called for empty input")
	}
}
