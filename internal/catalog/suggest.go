package catalog

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var yearPattern = regexp.MustCompile(`(\d{4})`)

type suggestItem struct {
	ID            flexString `json:"id"`
	Title         string     `json:"title"`
	OriginalTitle string     `json:"original_title"`
	SubTitle      string     `json:"sub_title"`
	Year          flexString `json:"year"`
	Type          string     `json:"type"`
	Subtype       string     `json:"subtype"`
	Img           string     `json:"img"`
	Cover         string     `json:"cover"`
	Poster        string     `json:"poster"`
}

// Suggest returns title suggestions for q. Shows are reported as tv.
func (d *Douban) Suggest(ctx context.Context, q string) ([]Item, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}

	target := d.suggestURL + "?q=" + url.QueryEscape(q)
	var raw []suggestItem
	if err := d.fetch(ctx, "suggest", d.wrap(target), &raw); err != nil {
		return nil, fmt.Errorf("fetching douban suggestions: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, s := range raw {
		kind := strings.ToLower(s.Type)
		if kind == "" {
			kind = strings.ToLower(s.Subtype)
		}
		switch kind {
		case "movie":
		case "tv", "show":
			kind = "tv"
		default:
			continue
		}

		item := Item{
			ID:     string(s.ID),
			Title:  firstNonEmpty(s.Title, s.OriginalTitle),
			Poster: firstNonEmpty(s.Img, s.Cover, s.Poster),
			Year:   string(s.Year),
			Kind:   kind,
		}
		if item.Year == "" {
			if m := yearPattern.FindStringSubmatch(s.SubTitle); m != nil {
				item.Year = m[1]
			}
		}
		if item.ID == "" || item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
