package sitesearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var ctx = context.Background()

const siteBody = `{"list":[
  {"vod_id": 101, "vod_name": "三体  第一季", "vod_pic": "P", "vod_year": "2023",
   "vod_class": "科幻", "type_name": "国产剧", "vod_douban_id": 25887288,
   "vod_content": "<p>地球文明与三体文明</p>",
   "vod_play_url": "第1集$https://a/1.mp4#第2集$https://a/2.mp4$$$第1集$https://b/1.m3u8#第2集$https://b/2.m3u8"},
  {"vod_id": "102", "vod_name": "限制级", "type_name": "伦理片", "vod_play_url": "1$https://x/1.m3u8"},
  {"vod_id": "103", "vod_name": "无片源", "type_name": "电影", "vod_play_url": ""}
]}`

func siteServer(t *testing.T, h http.HandlerFunc) Site {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return Site{Key: "s1", Name: "Site One", API: srv.URL + "/api.php/provide/vod"}
}

func TestSearchSite(t *testing.T) {
	var gotQuery string
	site := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ac") != "videolist" {
			t.Errorf("ac = %q", r.URL.Query().Get("ac"))
		}
		gotQuery = r.URL.Query().Get("wd")
		w.Write([]byte(siteBody))
	})

	s := New(Options{Sites: []Site{site}})
	res, err := s.SearchSite(ctx, site, "三体")
	if err != nil {
		t.Fatalf("SearchSite: %v", err)
	}
	if gotQuery != "三体" {
		t.Errorf("wd = %q", gotQuery)
	}
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1 (adult and empty filtered): %+v", len(res), res)
	}
	r := res[0]
	if r.ID != "101" || r.Title != "三体 第一季" || r.Year != "2023" || r.Source != "s1" || r.SourceName != "Site One" {
		t.Errorf("result = %+v", r)
	}
	if r.Desc != "地球文明与三体文明" {
		t.Errorf("desc = %q", r.Desc)
	}
	if len(r.Episodes) != 2 || r.Episodes[0] != "https://b/1.m3u8" || r.EpisodesTitles[1] != "第2集" {
		t.Errorf("episodes = %v titles = %v", r.Episodes, r.EpisodesTitles)
	}
	if r.DoubanID != 25887288 {
		t.Errorf("douban id = %d", r.DoubanID)
	}
}

func TestSearchSite_AdultFilterDisabled(t *testing.T) {
	site := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(siteBody))
	})
	res, err := New(Options{DisableAdultFilter: true}).SearchSite(ctx, site, "x")
	if err != nil {
		t.Fatalf("SearchSite: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("got %d results, want 2", len(res))
	}
}

func TestSearchSite_Errors(t *testing.T) {
	site := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	if _, err := New(Options{}).SearchSite(ctx, site, "x"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v", err)
	}

	slow := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	if _, err := New(Options{Timeout: 30 * time.Millisecond}).SearchSite(ctx, slow, "x"); err == nil {
		t.Error("expected timeout")
	}
}

func TestParsePlayURL(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantURLs   []string
		wantTitles []string
	}{
		{"empty", "", []string{}, []string{}},
		{"single", "正片$https://a/1.mp4", []string{"https://a/1.mp4"}, []string{"正片"}},
		{"no title", "https://a/1.m3u8#https://a/2.m3u8", []string{"https://a/1.m3u8", "https://a/2.m3u8"}, []string{"1", "2"}},
		{"prefers m3u8", "1$https://a/1.mp4$$$1$https://b/1.m3u8", []string{"https://b/1.m3u8"}, []string{"1"}},
		{"first when tie", "1$https://a/1.mp4$$$1$https://b/1.mp4", []string{"https://a/1.mp4"}, []string{"1"}},
		{"skips empty source", "$$$1$https://b/1.mp4#", []string{"https://b/1.mp4"}, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			titles, urls := parsePlayURL(tt.raw)
			if strings.Join(urls, "|") != strings.Join(tt.wantURLs, "|") {
				t.Errorf("urls = %v, want %v", urls, tt.wantURLs)
			}
			if strings.Join(titles, "|") != strings.Join(tt.wantTitles, "|") {
				t.Errorf("titles = %v, want %v", titles, tt.wantTitles)
			}
			if urls == nil || titles == nil {
				t.Error("nil slice")
			}
		})
	}
}

func TestStream(t *testing.T) {
	good := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(siteBody))
	})
	empty := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list":[]}`))
	})
	bad := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	empty.Key, bad.Key = "s2", "s3"

	s := New(Options{Sites: []Site{good, empty, bad}})
	var batches []Batch
	if err := s.Stream(ctx, "三体", func(b Batch) error {
		batches = append(batches, b)
		return nil
	}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(batches) != 1 || batches[0].Site.Key != "s1" {
		t.Errorf("batches = %+v", batches)
	}
}

func TestStream_EmitErrorStops(t *testing.T) {
	var sites []Site
	for _, k := range []string{"a", "b", "c"} {
		site := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(siteBody))
		})
		site.Key = k
		sites = append(sites, site)
	}
	stop := errors.New("client gone")
	calls := 0
	err := New(Options{Sites: sites}).Stream(ctx, "x", func(Batch) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}

func TestSearch_SiteOrder(t *testing.T) {
	slow := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.Write([]byte(`{"list":[{"vod_id":"1","vod_name":"Slow","vod_play_url":"1$u1"}]}`))
	})
	fast := siteServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"list":[{"vod_id":"2","vod_name":"Fast","vod_play_url":"1$u2"}]}`))
	})
	fast.Key = "s2"

	res := New(Options{Sites: []Site{slow, fast}}).Search(ctx, "x")
	if len(res) != 2 || res[0].Title != "Slow" || res[1].Title != "Fast" {
		t.Errorf("results = %+v", res)
	}
}

func TestParseSites(t *testing.T) {
	sites, err := ParseSites(`[{"key":"a","name":"A","api":"https://a.example/api.php/provide/vod"}]`)
	if err != nil || len(sites) != 1 || sites[0].Key != "a" {
		t.Errorf("ParseSites = %+v, %v", sites, err)
	}
	if sites, err := ParseSites("  "); err != nil || sites != nil {
		t.Errorf("empty = %+v, %v", sites, err)
	}
	for _, bad := range []string{
		`{"key":"a"}`,
		`[{"key":"a","name":"A","api":"not a url"}]`,
		`[{"key":"","name":"A","api":"https://a.example"}]`,
		`[{"key":"a","name":"A","api":"https://a.example"},{"key":"a","name":"B","api":"https://b.example"}]`,
	} {
		if _, err := ParseSites(bad); err == nil {
			t.Errorf("ParseSites(%s) succeeded", bad)
		}
	}
}
