// Package history turns raw play records into positive and negative taste
// signal.
package history

import (
	"sort"

	"github.com/kalambet/cinesense/internal/storage"
)

// minWatchedFraction is the share of a single-episode title that must have
// been played for it to count as watched.
const minWatchedFraction = 0.20

// Key identifies a title across catalog sources and pages.
type Key struct {
	Title string
	Year  string
}

// IsValid reports whether r is a positive signal. Multi-episode records are
// valid once any episode has been started; single-episode records need at
// least 20% progress of a known duration.
func IsValid(r storage.PlayRecord) bool {
	if r.TotalEpisodes > 1 {
		return r.EpisodeIndex >= 1
	}
	if r.TotalDurationSeconds <= 0 {
		return false
	}
	return r.PlayPositionSeconds/r.TotalDurationSeconds >= minWatchedFraction
}

// Classify partitions records into valid and abandoned, each ordered by
// LastSavedAt, most recent first. Ties keep input order.
func Classify(records []storage.PlayRecord) (valid, abandoned []storage.PlayRecord) {
	valid = []storage.PlayRecord{}
	abandoned = []storage.PlayRecord{}
	for _, r := range records {
		if IsValid(r) {
			valid = append(valid, r)
		} else {
			abandoned = append(abandoned, r)
		}
	}
	sortRecent(valid)
	sortRecent(abandoned)
	return valid, abandoned
}

// ClassifyMap is Classify over the map returned by the history store. The
// map is flattened in key order so the result does not depend on map
// iteration order.
func ClassifyMap(records map[string]storage.PlayRecord) (valid, abandoned []storage.PlayRecord) {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flat := make([]storage.PlayRecord, 0, len(keys))
	for _, k := range keys {
		flat = append(flat, records[k])
	}
	return Classify(flat)
}

func sortRecent(rs []storage.PlayRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].LastSavedAt.After(rs[j].LastSavedAt)
	})
}

// WatchedKeys returns the (title, year) set of every record, valid or not.
func WatchedKeys(records map[string]storage.PlayRecord) map[Key]struct{} {
	out := make(map[Key]struct{}, len(records))
	for _, r := range records {
		out[Key{Title: r.Title, Year: r.Year}] = struct{}{}
	}
	return out
}

// RecentTitles returns the titles of the first n records. Records are
// expected to be sorted most recent first, as Classify returns them.
func RecentTitles(records []storage.PlayRecord, n int) []string {
	if n > len(records) {
		n = len(records)
	}
	out := make([]string, 0, n)
	for _, r := range records[:n] {
		out = append(out, r.Title)
	}
	return out
}
