// Package worker drains the SQLite job queue: discovery list refreshes and
// taste profile builds, plus periodic cache cleanup.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kalambet/cinesense/internal/discover"
	"github.com/kalambet/cinesense/internal/storage"
	"github.com/kalambet/cinesense/internal/tasteprofile"
)

// Job types handled by the worker.
const (
	JobDiscoverRefresh = "discover_refresh"
	JobProfileBuild    = "taste_profile_build"
)

var jobTypes = []string{JobDiscoverRefresh, JobProfileBuild}

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	HasActiveJob(ctx context.Context, jobType, payloadJSON string) (bool, error)
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Refresher recomputes a user's discovery list.
type Refresher interface {
	Refresh(ctx context.Context, username string) ([]discover.Result, error)
}

// ProfileBuilder builds and caches a user's taste profile.
type ProfileBuilder interface {
	Build(ctx context.Context, username string) (*tasteprofile.Profile, error)
}

// Purger drops expired cache entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type payload struct {
	Username string `json:"username"`
}

// Enqueue schedules a job for username unless an identical one is already
// pending or running. It returns the job id and whether a new job was added.
func Enqueue(ctx context.Context, store JobStore, jobType, username string) (string, bool, error) {
	raw, err := json.Marshal(payload{Username: username})
	if err != nil {
		return "", false, err
	}
	active, err := store.HasActiveJob(ctx, jobType, string(raw))
	if err != nil {
		return "", false, fmt.Errorf("checking active jobs: %w", err)
	}
	if active {
		return "", false, nil
	}
	id := uuid.New().String()
	if err := store.EnqueueJob(ctx, storage.Job{ID: id, Type: jobType, PayloadJSON: string(raw)}); err != nil {
		return "", false, fmt.Errorf("enqueueing %s: %w", jobType, err)
	}
	return id, true, nil
}

type Deps struct {
	Store     JobStore
	Refresher Refresher
	Profiles  ProfileBuilder
	// Purger is optional; when nil no cleanup runs.
	Purger Purger
	Logger *slog.Logger

	PollInterval  time.Duration
	PurgeInterval time.Duration
}

// Worker processes jobs from the SQLite job queue.
type Worker struct {
	store      JobStore
	refresher  Refresher
	profiles   ProfileBuilder
	purger     Purger
	poll       time.Duration
	purgeEvery time.Duration
	logger     *slog.Logger
}

// NewWorker creates a Worker. Poll interval defaults to 1s and purge
// interval to 1h.
func NewWorker(d Deps) *Worker {
	w := &Worker{
		store:      d.Store,
		refresher:  d.Refresher,
		profiles:   d.Profiles,
		purger:     d.Purger,
		poll:       d.PollInterval,
		purgeEvery: d.PurgeInterval,
		logger:     d.Logger,
	}
	if w.poll <= 0 {
		w.poll = time.Second
	}
	if w.purgeEvery <= 0 {
		w.purgeEvery = time.Hour
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	lastPurge := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		if w.purger != nil && time.Since(lastPurge) >= w.purgeEvery {
			w.purge(ctx)
			lastPurge = time.Now()
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

func (w *Worker) purge(ctx context.Context) {
	n, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		w.logger.Warn("purging expired cache entries failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Debug("purged expired cache entries", "count", n)
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, jobTypes)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Debug("job completed", "job_id", job.ID, "type", job.Type)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if p.Username == "" {
		return errors.New("payload has no username")
	}

	switch job.Type {
	case JobDiscoverRefresh:
		out, err := w.refresher.Refresh(ctx, p.Username)
		if err != nil {
			return fmt.Errorf("refreshing discovery for %s: %w", p.Username, err)
		}
		w.logger.Info("discovery refreshed", "user", p.Username, "results", len(out))
	case JobProfileBuild:
		profile, err := w.profiles.Build(ctx, p.Username)
		if err != nil {
			return fmt.Errorf("building taste profile for %s: %w", p.Username, err)
		}
		if profile == nil {
			w.logger.Info("taste profile skipped, not enough history", "user", p.Username)
		}
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
	return nil
}
