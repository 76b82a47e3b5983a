package criteria

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kalambet/cinesense/internal/prompt"
)

const (
	discoverKey  = "combinations"
	assistantKey = "searchCriteria"

	maxTitleRunes = 80
	maxQueryRunes = 200
)

var strategies = []string{
	"core interest: squarely inside the user's strongest preferences",
	"adjacent exploration: a neighboring genre, region or era the user has not explored much",
	"wildcard: a well-regarded surprise outside their usual taste",
}

func buildDiscoverPrompt(req Request, n int) string {
	var sb strings.Builder
	sb.WriteString("You are a recommendation engine for a Douban-backed film and TV catalog. Generate catalog filter combinations that will surface titles this user has not seen but is likely to enjoy.\n")

	writeProfile(&sb, req)
	writeDisliked(&sb, req.Disliked)
	writeVocabulary(&sb)

	fmt.Fprintf(&sb, "\n[Task]\nProduce exactly %d combinations, one per strategy, so the results stay diverse:\n", n)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strategies[i])
	}
	fmt.Fprintf(&sb, "\nReturn ONLY a JSON object with a single key %q holding an array of criteria objects and no other text. Example:\n", discoverKey)
	sb.WriteString(`{"combinations": [{"kind": "movie", "category": "科幻", "region": "美国", "label": "高分"}, {"kind": "tv", "category": "悬疑", "region": "韩国"}]}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildAssistantPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are an expert assistant for a media streaming app. Your sole task is to turn the user's request into precise Douban catalog filter combinations, informed by their taste profile and recent activity.\n")

	writeProfile(&sb, req)
	writeDisliked(&sb, req.Disliked)

	fmt.Fprintf(&sb, "\n[Current query]\n%s\n", prompt.Sanitize(req.Query, maxQueryRunes))

	sb.WriteString(`
[Step 1: classify intent]
Pick the primary intent of the query:
- Specific Search: a specific actor, director or exact title (e.g. 汤姆·汉克斯的电影, 找一下三体)
- Thematic Search: a theme, genre or plot type (e.g. 关于时间旅行的电影)
- Mood Search: a feeling or mood (e.g. 适合一个人晚上看的治愈系电影)
- Similarity Search: something like a known title (e.g. 有没有像星际穿越那样的科幻片)

[Step 2: generate criteria]
Produce 1-2 highly relevant combinations. For a Specific Search focus on the entity mentioned; otherwise combine the query with the taste profile and recent history.
`)
	writeVocabulary(&sb)

	fmt.Fprintf(&sb, "\nReturn ONLY a JSON object with a single key %q holding an array of criteria objects and no other text. Example:\n", assistantKey)
	sb.WriteString(`{"searchCriteria": [{"kind": "movie", "category": "科幻", "label": "经典"}, {"kind": "movie", "category": "悬疑"}]}`)
	sb.WriteString("\n")
	return sb.String()
}

func writeProfile(sb *strings.Builder, req Request) {
	if req.Profile != nil {
		b, err := json.MarshalIndent(req.Profile, "", "  ")
		if err == nil {
			fmt.Fprintf(sb, "\n[User taste profile]\n%s\n", b)
		}
	} else {
		sb.WriteString("\n[User taste profile]\nNo taste profile is available yet. Infer the user's taste solely from their recently watched titles.\n")
	}

	titles := prompt.SanitizeAll(req.RecentTitles, maxTitleRunes)
	sb.WriteString("\n[Recently watched titles]\n")
	if len(titles) == 0 {
		sb.WriteString("None\n")
	} else {
		sb.WriteString(strings.Join(titles, ", "))
		sb.WriteString("\n")
	}
}

func writeDisliked(sb *strings.Builder, disliked []string) {
	titles := prompt.SanitizeAll(disliked, maxTitleRunes)
	if len(titles) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n[Disliked or abandoned titles, avoid similar content]\n%s\n", strings.Join(titles, ", "))
}

func writeVocabulary(sb *strings.Builder) {
	sb.WriteString("\n[Allowed values]\n")
	sb.WriteString(`- "kind": "movie" or "tv" (required)` + "\n")
	for _, kind := range []string{KindMovie, KindTV} {
		v := vocabulary[kind]
		fmt.Fprintf(sb, "- \"category\" (%s): %s\n", kind, strings.Join(v.Categories, ", "))
		fmt.Fprintf(sb, "- \"region\" (%s): %s\n", kind, strings.Join(v.Regions, ", "))
	}
	fmt.Fprintf(sb, "- \"year\": %s\n", strings.Join(years, ", "))
	fmt.Fprintf(sb, "- \"platform\" (tv only): %s\n", strings.Join(vocabulary[KindTV].Platforms, ", "))
	fmt.Fprintf(sb, "- \"label\" (optional): %s\n", strings.Join(labels, ", "))
	sb.WriteString("Use only the exact values listed above. Do not invent new values; omit a field rather than guess.\n")
}
