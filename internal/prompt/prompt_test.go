package prompt

import (
	"errors"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "三体", 0, "三体"},
		{"quotes and newlines", "He said \"hi\"\nthen 'left'", 0, "He said hi then left"},
		{"curly quotes", "“流浪地球”", 0, "流浪地球"},
		{"html", "<p>A <b>bold</b> plot</p><script>alert(1)</script>", 0, "A bold plot"},
		{"entities", "Tom &amp; Jerry", 0, "Tom & Jerry"},
		{"collapse", "  a \t\t b  ", 0, "a b"},
		{"truncate runes", "一二三四五六", 4, "一二三四"},
		{"backslash", `a\"b`, 0, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in, tt.max); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeAll_DropsEmpty(t *testing.T) {
	got := SanitizeAll([]string{"a", "\"\"", "  ", "b"}, 0)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("SanitizeAll = %q", got)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"bare array", `["1","2"]`, `["1","2"]`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n[1,2]\n```", `[1,2]`},
		{"filler", `Sure! Here you go: {"combinations":[{"kind":"tv"}]} Enjoy.`, `{"combinations":[{"kind":"tv"}]}`},
		{"object containing array", `{"sorted_ids":["3","1"]}`, `{"sorted_ids":["3","1"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractJSON_None(t *testing.T) {
	for _, in := range []string{"", "no json here", "{ unterminated", "]["} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSON", in, err)
		}
	}
}
