package tasteprofile

// Profile is a structured summary of a user's inferred preferences.
type Profile struct {
	PreferredGenres  []string `json:"preferredGenres"`
	FavoriteThemes   []string `json:"favoriteThemes"`
	KeyFigures       []string `json:"keyFigures"`
	MoodPreference   []string `json:"moodPreference"`
	DislikedElements []string `json:"dislikedElements"`
}

// normalize replaces nil slices with empty ones so the profile always
// encodes every key as an array.
func (p *Profile) normalize() {
	for _, f := range []*[]string{&p.PreferredGenres, &p.FavoriteThemes, &p.KeyFigures, &p.MoodPreference, &p.DislikedElements} {
		if *f == nil {
			*f = []string{}
		}
	}
}

// IsEmpty reports whether every field is empty.
func (p *Profile) IsEmpty() bool {
	return len(p.PreferredGenres) == 0 && len(p.FavoriteThemes) == 0 && len(p.KeyFigures) == 0 &&
		len(p.MoodPreference) == 0 && len(p.DislikedElements) == 0
}
