package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PlayRecord is one title's playback progress for a user.
type PlayRecord struct {
	Key                  string    `json:"key" validate:"required"`
	Title                string    `json:"title" validate:"required"`
	SourceName           string    `json:"source_name"`
	Cover                string    `json:"cover"`
	Year                 string    `json:"year"`
	Description          string    `json:"description,omitempty"`
	EpisodeIndex         int       `json:"index" validate:"gte=0"`
	TotalEpisodes        int       `json:"total_episodes" validate:"gte=0"`
	PlayPositionSeconds  float64   `json:"play_time" validate:"gte=0"`
	TotalDurationSeconds float64   `json:"total_time" validate:"gte=0"`
	LastSavedAt          time.Time `json:"-"`
	SearchTitle          string    `json:"search_title,omitempty"`
}

// Favorite is a title the user explicitly starred.
type Favorite struct {
	Key           string    `json:"key" validate:"required"`
	Title         string    `json:"title" validate:"required"`
	SourceName    string    `json:"source_name"`
	Cover         string    `json:"cover"`
	Year          string    `json:"year"`
	TotalEpisodes int       `json:"total_episodes" validate:"gte=0"`
	SavedAt       time.Time `json:"-"`
	SearchTitle   string    `json:"search_title,omitempty"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
