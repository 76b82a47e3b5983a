package tasteprofile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/cinesense/internal/prompt"
	"github.com/kalambet/cinesense/internal/storage"
)

const (
	maxTitleRunes    = 80
	maxSynopsisRunes = 120
	maxSearchRunes   = 40

	maxFavorites = 20
	maxWatched   = 30
	maxAbandoned = 15
	maxSearches  = 20
)

const instructions = `You are a film and TV taste analyst. Study the viewing activity below and summarize what this user enjoys and avoids.
Favorited titles were saved explicitly by the user and carry the HIGHEST WEIGHT. Watched titles are positive signal. Abandoned titles were stopped early and are negative signal.`

const outputFormat = `Return ONLY a JSON object with exactly these keys, each an array of short strings (Chinese or English as appropriate), and no other text:
{"preferredGenres": [], "favoriteThemes": [], "keyFigures": [], "moodPreference": [], "dislikedElements": []}`

// buildPrompt renders the profile-generation prompt. Every piece of
// user-controlled text passes through prompt.Sanitize.
func buildPrompt(favorites []storage.Favorite, watched, abandoned []storage.PlayRecord, searches []string) string {
	var sb strings.Builder
	sb.WriteString(instructions)

	sb.WriteString("\n\n[Favorited titles, HIGHEST WEIGHT]\n")
	if len(favorites) == 0 {
		sb.WriteString("None\n")
	}
	for i, f := range favorites {
		if i == maxFavorites {
			break
		}
		fmt.Fprintf(&sb, "- %s\n", titleWithYear(f.Title, f.Year))
	}

	writeRecords(&sb, "[Watched titles]", watched, maxWatched)
	writeRecords(&sb, "[Abandoned titles]", abandoned, maxAbandoned)

	sb.WriteString("\n[Search terms]\n")
	terms := prompt.SanitizeAll(searches, maxSearchRunes)
	if len(terms) > maxSearches {
		terms = terms[:maxSearches]
	}
	if len(terms) == 0 {
		sb.WriteString("None\n")
	} else {
		sb.WriteString(strings.Join(terms, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(outputFormat)
	return sb.String()
}

func writeRecords(sb *strings.Builder, heading string, records []storage.PlayRecord, limit int) {
	fmt.Fprintf(sb, "\n%s\n", heading)
	if len(records) == 0 {
		sb.WriteString("None\n")
		return
	}
	for i, r := range records {
		if i == limit {
			break
		}
		line := titleWithYear(r.Title, r.Year)
		if syn := prompt.Sanitize(r.Description, maxSynopsisRunes); syn != "" {
			line += ": " + syn
		}
		fmt.Fprintf(sb, "- %s\n", line)
	}
}

func titleWithYear(title, year string) string {
	t := prompt.Sanitize(title, maxTitleRunes)
	if y := prompt.Sanitize(year, 8); y != "" {
		return fmt.Sprintf("%s (%s)", t, y)
	}
	return t
}

// sortedFavorites flattens the favorites map, most recently saved first.
func sortedFavorites(m map[string]storage.Favorite) []storage.Favorite {
	out := make([]storage.Favorite, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].SavedAt.After(out[j].SavedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
