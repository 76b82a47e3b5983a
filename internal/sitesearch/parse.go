package sitesearch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kalambet/cinesense/internal/prompt"
)

// Result is one title from a site, with its playable episodes.
type Result struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Poster         string   `json:"poster"`
	Episodes       []string `json:"episodes"`
	EpisodesTitles []string `json:"episodes_titles"`
	Source         string   `json:"source"`
	SourceName     string   `json:"source_name"`
	Class          string   `json:"class,omitempty"`
	Year           string   `json:"year"`
	Desc           string   `json:"desc,omitempty"`
	TypeName       string   `json:"type_name,omitempty"`
	DoubanID       int      `json:"douban_id,omitempty"`
}

type apiResponse struct {
	List []apiItem `json:"list"`
}

type apiItem struct {
	ID       flexString `json:"vod_id"`
	Name     string     `json:"vod_name"`
	Pic      string     `json:"vod_pic"`
	PlayURL  string     `json:"vod_play_url"`
	Class    string     `json:"vod_class"`
	Year     flexString `json:"vod_year"`
	Content  string     `json:"vod_content"`
	DoubanID flexString `json:"vod_douban_id"`
	TypeName string     `json:"type_name"`
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.Trim(s, `"`))
	return nil
}

var yearPattern = regexp.MustCompile(`\d{4}`)

func toResult(site Site, it apiItem) Result {
	titles, urls := parsePlayURL(it.PlayURL)
	doubanID, _ := strconv.Atoi(string(it.DoubanID))
	year := yearPattern.FindString(string(it.Year))
	if year == "" {
		year = "unknown"
	}
	return Result{
		ID:             string(it.ID),
		Title:          strings.TrimSpace(strings.Join(strings.Fields(it.Name), " ")),
		Poster:         it.Pic,
		Episodes:       urls,
		EpisodesTitles: titles,
		Source:         site.Key,
		SourceName:     site.Name,
		Class:          it.Class,
		Year:           year,
		Desc:           prompt.Sanitize(it.Content, 0),
		TypeName:       it.TypeName,
		DoubanID:       doubanID,
	}
}

// parsePlayURL splits a vod_play_url value. Sources are separated by "$$$",
// episodes by "#", and each episode is "title$url". The source with the
// most m3u8 episodes wins; otherwise the first non-empty source.
func parsePlayURL(raw string) (titles, urls []string) {
	titles, urls = []string{}, []string{}
	best := -1
	for _, src := range strings.Split(raw, "$$$") {
		var t, u []string
		m3u8 := 0
		for i, ep := range strings.Split(src, "#") {
			ep = strings.TrimSpace(ep)
			if ep == "" {
				continue
			}
			title, link, ok := strings.Cut(ep, "$")
			if !ok {
				link, title = title, ""
			}
			if link == "" {
				continue
			}
			if title == "" {
				title = strconv.Itoa(i + 1)
			}
			if strings.HasSuffix(link, ".m3u8") {
				m3u8++
			}
			t = append(t, title)
			u = append(u, link)
		}
		if len(u) == 0 {
			continue
		}
		if m3u8 > best {
			titles, urls, best = t, u, m3u8
		}
	}
	return titles, urls
}
