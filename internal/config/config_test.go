package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mapBackend) SetString(key, val string) error { m.strs[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *mapBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

func TestDefaults(t *testing.T) {
	t.Setenv("USERNAME", "")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3400 {
		t.Errorf("Server.Port = %d, want 3400", cfg.Server.Port)
	}
	if cfg.Server.DefaultUser != "test" {
		t.Errorf("Server.DefaultUser = %q, want %q", cfg.Server.DefaultUser, "test")
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("Cache.Backend = %q, want sqlite", cfg.Cache.Backend)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "llama3" {
		t.Errorf("Ollama.Model = %q, want llama3", cfg.Ollama.Model)
	}
	if !cfg.AI.Enabled {
		t.Error("AI.Enabled = false, want true")
	}
	if cfg.Discover.TTL != "24h" || cfg.Profile.TTL != "168h" {
		t.Errorf("TTLs = %q/%q, want 24h/168h", cfg.Discover.TTL, cfg.Profile.TTL)
	}
	if cfg.Profile.MinValidRecords != 5 {
		t.Errorf("Profile.MinValidRecords = %d, want 5", cfg.Profile.MinValidRecords)
	}
	if cfg.Douban.ProxyType != "cmliussss-cdn-tencent" {
		t.Errorf("Douban.ProxyType = %q", cfg.Douban.ProxyType)
	}
}

func TestDefaultUserFromEnv(t *testing.T) {
	t.Setenv("USERNAME", "admin")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.DefaultUser != "admin" {
		t.Errorf("DefaultUser = %q, want admin", cfg.Server.DefaultUser)
	}
}

func TestBackendValues(t *testing.T) {
	b := newMapBackend()
	b.ints["server.port"] = 5000
	b.strs["cache.backend"] = "redis"
	b.strs["ai.enabled"] = "false"
	b.strs["douban.rate_limit"] = "2.5"
	b.strs["search.disable_adult_filter"] = "true"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want redis", cfg.Cache.Backend)
	}
	if cfg.AI.Enabled {
		t.Error("AI.Enabled = true, want false")
	}
	if cfg.Douban.RateLimit != 2.5 {
		t.Errorf("Douban.RateLimit = %v, want 2.5", cfg.Douban.RateLimit)
	}
	if !cfg.Search.DisableAdultFilter {
		t.Error("Search.DisableAdultFilter = false, want true")
	}
}

func TestBackendUnparseableBoolKeepsDefault(t *testing.T) {
	b := newMapBackend()
	b.strs["ai.enabled"] = "maybe"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.AI.Enabled {
		t.Error("AI.Enabled changed on unparseable value")
	}
}

func TestEnvOverride(t *testing.T) {
	b := newMapBackend()
	b.strs["ollama.model"] = "file-model"

	t.Setenv("CINESENSE_OLLAMA_MODEL", "env-model")
	t.Setenv("CINESENSE_OPENROUTER_API_KEY", "sk-env")
	t.Setenv("CINESENSE_DISCOVER_PAGE_LIMIT", "30")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ollama.Model != "env-model" {
		t.Errorf("Ollama.Model = %q, want env-model", cfg.Ollama.Model)
	}
	if cfg.OpenRouter.APIKey != "sk-env" {
		t.Errorf("OpenRouter.APIKey = %q, want sk-env", cfg.OpenRouter.APIKey)
	}
	if cfg.Discover.PageLimit != 30 {
		t.Errorf("Discover.PageLimit = %d, want 30", cfg.Discover.PageLimit)
	}
}

func TestEnvOverrideBadIntKeepsValue(t *testing.T) {
	t.Setenv("CINESENSE_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 3400 {
		t.Errorf("Server.Port = %d, want 3400", cfg.Server.Port)
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	b := newMapBackend()
	b.strs["openrouter.api_key"] = "from-file"
	t.Setenv("CINESENSE_OPENROUTER_API_KEY", "")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenRouter.APIKey != "" {
		t.Errorf("APIKey = %q, secrets must not be read from the config file", cfg.OpenRouter.APIKey)
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cases := map[string]string{
		"cache.backend":        "memcached",
		"ai.provider":          "gemini",
		"ai.fallback_provider": "claude",
		"discover.fallback":    "random",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			b := newMapBackend()
			b.strs[key] = val
			_, err := loadWith(b)
			if err == nil {
				t.Fatalf("expected error for %s=%q", key, val)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error = %q, want it to mention %s", err, key)
			}
		})
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinesense", "config.json")

	b := newFileBackend(path)
	if err := setKeyWith(b, "server.port", "4100"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if err := setKeyWith(b, "discover.fallback", "empty"); err != nil {
		t.Fatalf("set fallback: %v", err)
	}
	if err := setKeyWith(b, "douban.rate_limit", "1.5"); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Discover.Fallback != "empty" {
		t.Errorf("Discover.Fallback = %q, want empty", cfg.Discover.Fallback)
	}
	if cfg.Douban.RateLimit != 1.5 {
		t.Errorf("Douban.RateLimit = %v, want 1.5", cfg.Douban.RateLimit)
	}
}

func TestFileBackendInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 3400 {
		t.Errorf("Server.Port = %d, want default 3400", cfg.Server.Port)
	}
}

func TestSetKeyErrors(t *testing.T) {
	b := newMapBackend()

	if err := setKeyWith(b, "openrouter.api_key", "x"); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("secret key: err = %v, want secret error", err)
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Errorf("unknown key: err = %v, want unknown error", err)
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "ai.enabled", "perhaps"); err == nil {
		t.Error("expected error for non-bool value")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.OpenRouter.APIKey = "sk-secret"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "openrouter.api_key" || ki.Key == "server.api_token" {
			t.Errorf("ShowAll exposed secret key %s", ki.Key)
		}
		if ki.Value == "sk-secret" {
			t.Error("ShowAll exposed secret value")
		}
	}
	for _, k := range ValidKeys() {
		if k == "openrouter.api_key" {
			t.Error("ValidKeys includes secret key")
		}
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("x", "12h", time.Hour); got != 12*time.Hour {
		t.Errorf("Duration(12h) = %s", got)
	}
	if got := Duration("x", "", time.Hour); got != time.Hour {
		t.Errorf("Duration(empty) = %s, want default", got)
	}
	if got := Duration("x", "soon", time.Hour); got != time.Hour {
		t.Errorf("Duration(bad) = %s, want default", got)
	}
	if got := Duration("x", "-5s", time.Hour); got != time.Hour {
		t.Errorf("Duration(negative) = %s, want default", got)
	}
}

func TestGetAPIToken(t *testing.T) {
	cfg := defaults()
	cfg.Storage.DataDir = t.TempDir()

	tok1, err := GetAPIToken(cfg)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok1) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(tok1))
	}

	tok2, err := GetAPIToken(cfg)
	if err != nil {
		t.Fatalf("GetAPIToken (second): %v", err)
	}
	if tok1 != tok2 {
		t.Error("token not persisted between calls")
	}

	info, err := os.Stat(secretsFilePath(cfg.Storage.DataDir))
	if err != nil {
		t.Fatalf("stat secrets: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets perm = %o, want 600", info.Mode().Perm())
	}

	cfg.Server.APIToken = "explicit"
	if tok, _ := GetAPIToken(cfg); tok != "explicit" {
		t.Errorf("explicit token = %q, want explicit", tok)
	}
}
