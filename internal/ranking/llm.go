package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/prompt"
)

const (
	defaultMaxCandidates = 50
	defaultTimeout       = 30 * time.Second

	maxIntroRunes   = 120
	maxTitleRunes   = 80
	maxWatchedTitle = 20
)

// LLM asks a text generation backend to reorder candidates by likely
// preference.
type LLM struct {
	Gen engine.Generator
	// MaxCandidates caps how many candidates go into the prompt. Larger
	// inputs are pre-ordered by rating and the overflow is appended after
	// the ranked head.
	MaxCandidates int
	Timeout       time.Duration
	Logger        *slog.Logger
}

func (LLM) Name() string { return "llm" }

func (l LLM) Rank(ctx context.Context, items []catalog.Item, watched []string) ([]catalog.Item, error) {
	if l.Gen == nil {
		return nil, engine.ErrNotConfigured
	}
	limit := l.MaxCandidates
	if limit <= 0 {
		limit = defaultMaxCandidates
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	head, tail := items, []catalog.Item(nil)
	if len(items) > limit {
		sorted := SortByRating(items)
		head, tail = sorted[:limit], sorted[limit:]
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := l.Gen.Generate(ctx, buildPrompt(head, watched), true)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}
	ids, err := decodeIDs(raw)
	if err != nil {
		return nil, err
	}

	ranked, err := applyOrder(head, ids)
	if err != nil {
		return nil, err
	}
	return append(ranked, tail...), nil
}

func buildPrompt(items []catalog.Item, watched []string) string {
	var sb strings.Builder
	titles := prompt.SanitizeAll(watched, maxTitleRunes)
	if len(titles) > maxWatchedTitle {
		titles = titles[:maxWatchedTitle]
	}
	if len(titles) > 0 {
		fmt.Fprintf(&sb, "A user likes the following titles: %s.\n", strings.Join(titles, ", "))
	} else {
		sb.WriteString("Nothing is known about this user's history yet.\n")
	}
	sb.WriteString("Re-rank the candidate list below by how likely the user is to enjoy each title, most likely first. Each candidate has an id, title, year and plot summary.\n\n[Candidates]\n")
	for _, it := range items {
		fmt.Fprintf(&sb, "- id: %s | title: %s | year: %s | intro: %s\n",
			it.ID, prompt.Sanitize(it.Title, maxTitleRunes), it.Year, prompt.Sanitize(it.Intro, maxIntroRunes))
	}
	sb.WriteString("\nReturn ONLY a JSON object of the form {\"sorted_ids\": [\"<id>\", ...]} listing candidate ids, no other text.\n")
	return sb.String()
}

// decodeIDs accepts, in order: a bare array, {"sorted_ids": [...]} and
// {"result": [...]}.
func decodeIDs(raw string) ([]string, error) {
	text, err := prompt.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var list []any
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return coerceIDs(list)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	for _, key := range []string{"sorted_ids", "result"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, &list); err != nil {
			return nil, fmt.Errorf("%w: %q is not an array", ErrMalformedOutput, key)
		}
		return coerceIDs(list)
	}
	return nil, fmt.Errorf("%w: no id list", ErrMalformedOutput)
}

func coerceIDs(list []any) ([]string, error) {
	ids := make([]string, 0, len(list))
	for _, v := range list {
		switch id := v.(type) {
		case string:
			ids = append(ids, strings.TrimSpace(id))
		case float64:
			ids = append(ids, strconv.FormatFloat(id, 'f', -1, 64))
		case map[string]any:
			// Some models echo candidate objects instead of bare ids.
			if s, ok := id["id"].(string); ok {
				ids = append(ids, s)
			} else if f, ok := id["id"].(float64); ok {
				ids = append(ids, strconv.FormatFloat(f, 'f', -1, 64))
			}
		}
	}
	return ids, nil
}

// applyOrder places items in the order of ids. Unknown and repeated ids are
// ignored; items not mentioned keep their relative order at the end.
func applyOrder(items []catalog.Item, ids []string) ([]catalog.Item, error) {
	byID := make(map[string]int, len(items))
	for i, it := range items {
		if _, dup := byID[it.ID]; !dup {
			byID[it.ID] = i
		}
	}

	used := make([]bool, len(items))
	out := make([]catalog.Item, 0, len(items))
	for _, id := range ids {
		i, ok := byID[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, items[i])
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no known ids", ErrMalformedOutput)
	}
	for i, it := range items {
		if !used[i] {
			out = append(out, it)
		}
	}
	return out, nil
}
