package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/kalambet/cinesense/internal/storage"
)

// SettingsKey is the settings table key holding admin overrides.
const SettingsKey = "ai_settings"

// SettingsStore persists admin overrides. Implemented by storage.Store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Controller owns the live Settings and rebuilds the Switch whenever they
// change. Secrets and breaker tuning always come from the base settings.
type Controller struct {
	mu       sync.Mutex
	settings Settings
	sw       *Switch
	store    SettingsStore
	logger   *slog.Logger
}

func NewController(base Settings, sw *Switch, store SettingsStore, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{settings: base, sw: sw, store: store, logger: logger}
}

// Load applies persisted overrides, if any, on top of the base settings and
// installs the resulting chain. A build failure leaves generation disabled
// and is returned so the caller can report it.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.settings
	raw, err := c.store.GetSetting(ctx, SettingsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("reading ai settings: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			c.logger.Warn("ignoring unreadable ai settings", "error", err)
			s = c.settings
		}
	}

	gen, err := Build(s, c.logger)
	c.settings = s
	if err != nil {
		c.sw.Set(nil)
		return fmt.Errorf("building generator: %w", err)
	}
	c.sw.Set(gen)
	return nil
}

// Settings returns a copy of the live settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Apply builds a chain from s, persists s and swaps the chain in. Nothing
// changes if the build or the write fails.
func (c *Controller) Apply(ctx context.Context, s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.OpenRouterAPIKey = c.settings.OpenRouterAPIKey
	s.BreakerFailures = c.settings.BreakerFailures

	gen, err := Build(s, c.logger)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.store.SetSetting(ctx, SettingsKey, string(raw)); err != nil {
		return fmt.Errorf("saving ai settings: %w", err)
	}
	c.settings = s
	c.sw.Set(gen)
	c.logger.Info("ai settings updated", "enabled", s.Enabled, "provider", s.Provider)
	return nil
}
