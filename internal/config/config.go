package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Cache      CacheConfig
	AI         AIConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Douban     DoubanConfig
	Discover   DiscoverConfig
	Profile    ProfileConfig
	Search     SearchConfig
	Worker     WorkerConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port        int
	DefaultUser string
	UserHeader  string
	APIToken    string
}

type StorageConfig struct {
	DataDir string
}

type CacheConfig struct {
	Backend   string
	RedisAddr string
}

type AIConfig struct {
	Enabled          bool
	Provider         string
	FallbackProvider string
	Timeout          string
	BreakerFailures  int
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenRouterConfig struct {
	APIKey string
	Model  string
}

type DoubanConfig struct {
	ProxyType string
	ProxyURL  string
	RateLimit float64
}

type DiscoverConfig struct {
	TTL           string
	Fallback      string
	CriteriaCount int
	PageLimit     int
	RankCeiling   int
}

type ProfileConfig struct {
	TTL             string
	MinValidRecords int
	MinFavorites    int
}

type SearchConfig struct {
	Sites              string
	DisableAdultFilter bool
	Timeout            string
}

type WorkerConfig struct {
	PollInterval string
}

type LogConfig struct {
	Level string
}

var (
	cacheBackends = map[string]bool{"sqlite": true, "redis": true, "memory": true}
	aiProviders   = map[string]bool{"ollama": true, "openrouter": true}
	fallbackModes = map[string]bool{"popular": true, "empty": true}
)

func defaults() Config {
	user := os.Getenv("USERNAME")
	if user == "" {
		user = "test"
	}
	return Config{
		Server: ServerConfig{
			Port:        3400,
			DefaultUser: user,
			UserHeader:  "X-Forwarded-User",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cache: CacheConfig{
			Backend:   "sqlite",
			RedisAddr: "localhost:6379",
		},
		AI: AIConfig{
			Enabled:         true,
			Provider:        "ollama",
			Timeout:         "60s",
			BreakerFailures: 5,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.0-flash-001",
		},
		Douban: DoubanConfig{
			ProxyType: "cmliussss-cdn-tencent",
			RateLimit: 5,
		},
		Discover: DiscoverConfig{
			TTL:           "24h",
			Fallback:      "popular",
			CriteriaCount: 3,
			PageLimit:     20,
			RankCeiling:   50,
		},
		Profile: ProfileConfig{
			TTL:             "168h",
			MinValidRecords: 5,
			MinFavorites:    1,
		},
		Search: SearchConfig{
			Timeout: "20s",
		},
		Worker: WorkerConfig{
			PollInterval: "1s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/cinesense/config.json, then applies CINESENSE_*
// environment variable overrides. Secrets are only read from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if !cacheBackends[cfg.Cache.Backend] {
		return fmt.Errorf("invalid config: cache.backend %q (want sqlite, redis or memory)", cfg.Cache.Backend)
	}
	if !aiProviders[cfg.AI.Provider] {
		return fmt.Errorf("invalid config: ai.provider %q (want ollama or openrouter)", cfg.AI.Provider)
	}
	if cfg.AI.FallbackProvider != "" && !aiProviders[cfg.AI.FallbackProvider] {
		return fmt.Errorf("invalid config: ai.fallback_provider %q (want ollama, openrouter or empty)", cfg.AI.FallbackProvider)
	}
	if !fallbackModes[cfg.Discover.Fallback] {
		return fmt.Errorf("invalid config: discover.fallback %q (want popular or empty)", cfg.Discover.Fallback)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}
	return nil
}

// Duration parses a duration-valued config string, falling back to def
// with a warning when the value is empty or malformed.
func Duration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q. Using default %s.\n", key, raw, def)
		return def
	}
	return d
}
