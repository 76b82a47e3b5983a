// Package criteria turns a taste profile, recent activity and an optional
// free-text query into validated catalog filter combinations.
package criteria

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse matches every *MalformedResponseError.
var ErrMalformedResponse = errors.New("malformed generator response")

// MalformedResponseError reports generator output that could not be turned
// into at least one valid criterion.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return "malformed generator response: " + e.Reason
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// Criterion is one catalog filter combination. Empty fields are unfiltered.
type Criterion struct {
	Kind     string `json:"kind"`
	Category string `json:"category,omitempty"`
	Region   string `json:"region,omitempty"`
	Year     string `json:"year,omitempty"`
	Label    string `json:"label,omitempty"`
	Platform string `json:"platform,omitempty"`
}

func (c Criterion) String() string {
	parts := []string{c.Kind}
	for _, v := range []string{c.Category, c.Region, c.Year, c.Label, c.Platform} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "/")
}

// Validate checks every field against the vocabulary for c.Kind.
func (c Criterion) Validate() error {
	_, err := c.Canonical()
	return err
}

// Canonical validates c and returns it with every field spelled as in the
// vocabulary. Latin values match regardless of case ("netflix", "hbo").
func (c Criterion) Canonical() (Criterion, error) {
	v, ok := vocabulary[c.Kind]
	if !ok {
		return c, fmt.Errorf("unknown kind %q", c.Kind)
	}
	checks := []struct {
		field   string
		value   *string
		allowed []string
	}{
		{"category", &c.Category, v.Categories},
		{"region", &c.Region, v.Regions},
		{"year", &c.Year, v.Years},
		{"label", &c.Label, v.Labels},
		{"platform", &c.Platform, v.Platforms},
	}
	for _, ch := range checks {
		if *ch.value == "" {
			continue
		}
		canon, ok := lookup(ch.allowed, *ch.value)
		if !ok {
			return c, fmt.Errorf("%s %q not allowed for %s", ch.field, *ch.value, c.Kind)
		}
		*ch.value = canon
	}
	return c, nil
}

func lookup(list []string, v string) (string, bool) {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return s, true
		}
	}
	return "", false
}
