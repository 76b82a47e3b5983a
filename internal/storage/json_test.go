package storage

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPlayRecordJSON_SaveTime(t *testing.T) {
	want := time.UnixMilli(1760000000000).UTC()

	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{"epoch millis", `{"key":"k","title":"t","save_time":1760000000000}`, want},
		{"rfc3339", `{"key":"k","title":"t","save_time":"` + want.Format(time.RFC3339) + `"}`, want},
		{"missing", `{"key":"k","title":"t"}`, time.Time{}},
		{"zero", `{"key":"k","title":"t","save_time":0}`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r PlayRecord
			if err := json.Unmarshal([]byte(tt.body), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !r.LastSavedAt.Equal(tt.want) {
				t.Errorf("LastSavedAt = %v, want %v", r.LastSavedAt, tt.want)
			}
			if r.Key != "k" || r.Title != "t" {
				t.Errorf("record = %+v", r)
			}
		})
	}
}

func TestPlayRecordJSON_EncodesMillis(t *testing.T) {
	r := PlayRecord{Key: "k", Title: "t", EpisodeIndex: 2, LastSavedAt: time.UnixMilli(1760000000123)}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, `"save_time":1760000000123`) {
		t.Errorf("json = %s, want numeric save_time", s)
	}
	if !strings.Contains(s, `"index":2`) {
		t.Errorf("json = %s, want other fields kept", s)
	}
}

func TestPlayRecordJSON_RejectsGarbage(t *testing.T) {
	var r PlayRecord
	if err := json.Unmarshal([]byte(`{"key":"k","title":"t","save_time":"yesterday"}`), &r); err == nil {
		t.Error("expected error for unparseable save_time")
	}
}

func TestFavoriteJSON_SaveTime(t *testing.T) {
	var f Favorite
	if err := json.Unmarshal([]byte(`{"key":"f","title":"t","save_time":1760000000000}`), &f); err != nil {
		t.Fatal(err)
	}
	if f.SavedAt.UnixMilli() != 1760000000000 {
		t.Errorf("SavedAt = %v", f.SavedAt)
	}

	b, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"save_time":1760000000000`) {
		t.Errorf("json = %s", b)
	}
}
