// Package catalog fetches recommendation lists and title suggestions from
// Douban.
package catalog

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// Proxy types select how requests reach Douban.
const (
	ProxyDirect       = "direct"
	ProxyCorsZwei     = "cors-proxy-zwei"
	ProxyCDNTencent   = "cmliussss-cdn-tencent"
	ProxyCDNAli       = "cmliussss-cdn-ali"
	ProxyCorsAnywhere = "cors-anywhere"
	ProxyCustom       = "custom"
)

// Query selects one page of the recommendation list. Empty filters and the
// value "all" mean unfiltered.
type Query struct {
	Kind     string
	Category string
	Format   string
	Label    string
	Region   string
	Year     string
	Platform string
	Sort     string
	Start    int
	Limit    int
}

// Item is one catalog entry. Rating is kept as the raw formatted string.
type Item struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Year   string `json:"year"`
	Poster string `json:"poster"`
	Rating string `json:"rate"`
	Intro  string `json:"intro,omitempty"`
	Kind   string `json:"type,omitempty"`
}

// Page is one page of results plus the total the source reports.
type Page struct {
	Items []Item
	Total int
}

// flexString decodes either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func formatRating(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
