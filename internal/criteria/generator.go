package criteria

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/prompt"
	"github.com/kalambet/cinesense/internal/tasteprofile"
)

const (
	defaultCount   = 3
	assistantMax   = 2
	defaultTimeout = 60 * time.Second
)

// Request carries the context for one generation. An empty Query selects
// discovery mode; a non-empty one selects assistant mode.
type Request struct {
	Profile      *tasteprofile.Profile
	RecentTitles []string
	Disliked     []string
	Query        string
}

// Options tunes a Generator.
type Options struct {
	// Count is the number of combinations requested in discovery mode,
	// clamped to 2..3.
	Count   int
	Timeout time.Duration
	Logger  *slog.Logger
}

// Generator asks a text generation backend for criteria and validates them.
type Generator struct {
	gen     engine.Generator
	count   int
	timeout time.Duration
	logger  *slog.Logger
}

func New(gen engine.Generator, opts Options) *Generator {
	count := opts.Count
	if count == 0 {
		count = defaultCount
	}
	count = min(max(count, 2), len(strategies))
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{gen: gen, count: count, timeout: timeout, logger: logger}
}

// Generate returns at least one validated criterion. Backend failures are
// returned wrapped; unusable output is a *MalformedResponseError.
func (g *Generator) Generate(ctx context.Context, req Request) ([]Criterion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	key, limit, text := discoverKey, g.count, ""
	if req.Query != "" {
		key, limit = assistantKey, assistantMax
		text = buildAssistantPrompt(req)
	} else {
		text = buildDiscoverPrompt(req, g.count)
	}

	raw, err := g.gen.Generate(ctx, text, true)
	if err != nil {
		return nil, fmt.Errorf("generating criteria: %w", err)
	}

	out, err := g.parse(raw, key)
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// parse decodes raw into criteria under key. Entries that fail validation
// are dropped; an error is returned only when none survive.
func (g *Generator) parse(raw, key string) ([]Criterion, error) {
	obj, err := prompt.ExtractJSON(raw)
	if err != nil {
		return nil, &MalformedResponseError{Reason: err.Error(), Raw: raw}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &envelope); err != nil {
		return nil, &MalformedResponseError{Reason: "response is not a JSON object: " + err.Error(), Raw: raw}
	}
	list, ok := envelope[key]
	if !ok {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("missing %q key", key), Raw: raw}
	}
	var entries []map[string]any
	if err := json.Unmarshal(list, &entries); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("%q is not an array of objects", key), Raw: raw}
	}

	out := make([]Criterion, 0, len(entries))
	seen := make(map[Criterion]bool, len(entries))
	for i, e := range entries {
		c := Criterion{
			Kind:     strings.ToLower(field(e, "kind")),
			Category: field(e, "category"),
			Region:   field(e, "region"),
			Year:     field(e, "year"),
			Label:    field(e, "label"),
			Platform: field(e, "platform"),
		}
		if c.Kind == "" {
			g.logger.Warn("dropping criterion without kind", "index", i)
			continue
		}
		c, err := c.Canonical()
		if err != nil {
			g.logger.Warn("dropping invalid criterion", "index", i, "criterion", c.String(), "error", err)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, &MalformedResponseError{Reason: "no valid criteria", Raw: raw}
	}
	return out, nil
}

// field reads a string-ish value, normalizing "all" to empty. Numbers are
// accepted since models often emit years unquoted.
func field(e map[string]any, name string) string {
	var s string
	switch v := e[name].(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if strings.EqualFold(s, "all") || s == "全部" {
		return ""
	}
	return s
}
