package storage

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// epochMillis is a save time on the wire: milliseconds since the Unix
// epoch. An RFC 3339 string is accepted on input as well.
type epochMillis int64

func millisOf(t time.Time) epochMillis {
	if t.IsZero() {
		return 0
	}
	return epochMillis(t.UnixMilli())
}

func (m epochMillis) time() time.Time {
	if m <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m)).UTC()
}

func (m *epochMillis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("save_time: %w", err)
		}
		*m = millisOf(t)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("save_time: %q is not a number", b)
	}
	*m = epochMillis(f)
	return nil
}

type playRecordJSON PlayRecord

func (r PlayRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		playRecordJSON
		SaveTime epochMillis `json:"save_time"`
	}{playRecordJSON(r), millisOf(r.LastSavedAt)})
}

func (r *PlayRecord) UnmarshalJSON(b []byte) error {
	aux := struct {
		playRecordJSON
		SaveTime epochMillis `json:"save_time"`
	}{playRecordJSON: playRecordJSON(*r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = PlayRecord(aux.playRecordJSON)
	r.LastSavedAt = aux.SaveTime.time()
	return nil
}

type favoriteJSON Favorite

func (f Favorite) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		favoriteJSON
		SaveTime epochMillis `json:"save_time"`
	}{favoriteJSON(f), millisOf(f.SavedAt)})
}

func (f *Favorite) UnmarshalJSON(b []byte) error {
	aux := struct {
		favoriteJSON
		SaveTime epochMillis `json:"save_time"`
	}{favoriteJSON: favoriteJSON(*f)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*f = Favorite(aux.favoriteJSON)
	f.SavedAt = aux.SaveTime.time()
	return nil
}
