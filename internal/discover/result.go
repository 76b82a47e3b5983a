package discover

import "github.com/kalambet/cinesense/internal/catalog"

const (
	sourceDouban     = "douban"
	sourceDoubanName = "豆瓣"
)

// Result is one discovery entry as served to clients.
type Result struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Poster         string   `json:"poster"`
	Source         string   `json:"source"`
	SourceName     string   `json:"source_name"`
	Year           string   `json:"year"`
	Episodes       []string `json:"episodes"`
	EpisodesTitles []string `json:"episodes_titles"`
}

// FromItems projects catalog items to results.
func FromItems(items []catalog.Item) []Result {
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{
			ID:             it.ID,
			Title:          it.Title,
			Poster:         it.Poster,
			Source:         sourceDouban,
			SourceName:     sourceDoubanName,
			Year:           it.Year,
			Episodes:       []string{},
			EpisodesTitles: []string{},
		}
	}
	return out
}

// Page is one slice of a result list plus the full length.
type Page struct {
	List  []Result `json:"list"`
	Total int      `json:"total"`
}

const defaultPageSize = 25

// Paginate returns results[start:start+limit], clamped. A negative start is
// treated as 0 and a non-positive limit as the default page size.
func Paginate(results []Result, start, limit int) Page {
	if start < 0 {
		start = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	total := len(results)
	if start > total {
		start = total
	}
	end := min(start+limit, total)
	list := results[start:end]
	if list == nil {
		list = []Result{}
	}
	return Page{List: list, Total: total}
}
