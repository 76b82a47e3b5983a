// Package sitesearch queries MacCMS-style video site APIs in parallel.
package sitesearch

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// Site is one searchable source.
type Site struct {
	Key  string `json:"key" validate:"required"`
	Name string `json:"name" validate:"required"`
	API  string `json:"api" validate:"required,url"`
}

var validate = validator.New()

// ParseSites decodes a JSON array of sites. An empty string yields no
// sites. Keys must be unique.
func ParseSites(raw string) ([]Site, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var sites []Site
	if err := json.Unmarshal([]byte(raw), &sites); err != nil {
		return nil, fmt.Errorf("decoding sites: %w", err)
	}
	seen := make(map[string]bool, len(sites))
	for i, s := range sites {
		if err := validate.Struct(s); err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("site %d: duplicate key %q", i, s.Key)
		}
		seen[s.Key] = true
	}
	return sites, nil
}

// adultTypeNames are category names filtered out unless the filter is
// disabled.
var adultTypeNames = []string{
	"伦理片", "福利", "里番动漫", "门事件", "萝莉少女", "制服诱惑", "国产传媒",
	"cosplay", "黑丝诱惑", "无码", "日本无码", "有码", "日本有码", "SWAG",
	"网红主播", "色情片", "同性片", "福利视频", "福利片", "写真热舞", "倫理片",
	"理论片", "韩国伦理", "港台三级", "伦理", "日本伦理",
}

func isAdult(typeName string) bool {
	for _, w := range adultTypeNames {
		if strings.Contains(typeName, w) {
			return true
		}
	}
	return false
}
