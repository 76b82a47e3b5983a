// Package prompt holds helpers shared by every component that talks to a
// text generation backend: cleaning user-controlled text before it is
// interpolated into a prompt, and recovering JSON from model output.
package prompt

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrNoJSON is returned by ExtractJSON when the text holds no JSON value.
var ErrNoJSON = errors.New("no JSON value in response")

var quoteReplacer = strings.NewReplacer(
	`"`, "", "'", "", "`", "", `\`, "",
	"“", "", "”", "", "‘", "", "’", "",
	"\r", " ", "\n", " ", "\t", " ",
)

// Sanitize strips HTML markup, quotes and line breaks from s, collapses
// whitespace and truncates the result to at most maxRunes runes (0 means
// no limit).
func Sanitize(s string, maxRunes int) string {
	s = stripHTML(s)
	s = quoteReplacer.Replace(s)
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxRunes]))
	}
	return s
}

// SanitizeAll applies Sanitize to every element, dropping ones that end up empty.
func SanitizeAll(ss []string, maxRunes int) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if c := Sanitize(s, maxRunes); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) {
				skip++
			}
			sb.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) && skip > 0 {
				skip--
			}
			sb.WriteByte(' ')
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	n := string(name)
	return n == "script" || n == "style"
}

// ExtractJSON returns the outermost JSON object or array embedded in a model
// response. Small local models often wrap JSON in markdown code fences or
// add conversational filler; both are removed. The returned text is not
// validated beyond bracket positions.
func ExtractJSON(resp string) (string, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return "", ErrNoJSON
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}
