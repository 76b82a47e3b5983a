package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CINESENSE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.default_user", typ: kString, env: "CINESENSE_SERVER_DEFAULT_USER",
		apply:   func(cfg *Config, v any) { cfg.Server.DefaultUser = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.DefaultUser },
	},
	{
		key: "server.user_header", typ: kString, env: "CINESENSE_SERVER_USER_HEADER",
		apply:   func(cfg *Config, v any) { cfg.Server.UserHeader = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.UserHeader },
	},
	{
		key: "server.api_token", typ: kString, env: "CINESENSE_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CINESENSE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "cache.backend", typ: kString, env: "CINESENSE_CACHE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Cache.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Backend },
	},
	{
		key: "cache.redis_addr", typ: kString, env: "CINESENSE_CACHE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisAddr },
	},
	{
		key: "ai.enabled", typ: kBool, env: "CINESENSE_AI_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.AI.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.AI.Enabled },
	},
	{
		key: "ai.provider", typ: kString, env: "CINESENSE_AI_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.AI.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Provider },
	},
	{
		key: "ai.fallback_provider", typ: kString, env: "CINESENSE_AI_FALLBACK_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.AI.FallbackProvider = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.FallbackProvider },
	},
	{
		key: "ai.timeout", typ: kString, env: "CINESENSE_AI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.AI.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Timeout },
	},
	{
		key: "ai.breaker_failures", typ: kInt, env: "CINESENSE_AI_BREAKER_FAILURES",
		apply:   func(cfg *Config, v any) { cfg.AI.BreakerFailures = v.(int) },
		extract: func(cfg Config) any { return cfg.AI.BreakerFailures },
	},
	{
		key: "ollama.base_url", typ: kString, env: "CINESENSE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "CINESENSE_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "CINESENSE_OPENROUTER_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "openrouter.model", typ: kString, env: "CINESENSE_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Model },
	},
	{
		key: "douban.proxy_type", typ: kString, env: "CINESENSE_DOUBAN_PROXY_TYPE",
		apply:   func(cfg *Config, v any) { cfg.Douban.ProxyType = v.(string) },
		extract: func(cfg Config) any { return cfg.Douban.ProxyType },
	},
	{
		key: "douban.proxy_url", typ: kString, env: "CINESENSE_DOUBAN_PROXY_URL",
		apply:   func(cfg *Config, v any) { cfg.Douban.ProxyURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Douban.ProxyURL },
	},
	{
		key: "douban.rate_limit", typ: kFloat, env: "CINESENSE_DOUBAN_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Douban.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Douban.RateLimit },
	},
	{
		key: "discover.ttl", typ: kString, env: "CINESENSE_DISCOVER_TTL",
		apply:   func(cfg *Config, v any) { cfg.Discover.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Discover.TTL },
	},
	{
		key: "discover.fallback", typ: kString, env: "CINESENSE_DISCOVER_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Discover.Fallback = v.(string) },
		extract: func(cfg Config) any { return cfg.Discover.Fallback },
	},
	{
		key: "discover.criteria_count", typ: kInt, env: "CINESENSE_DISCOVER_CRITERIA_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Discover.CriteriaCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Discover.CriteriaCount },
	},
	{
		key: "discover.page_limit", typ: kInt, env: "CINESENSE_DISCOVER_PAGE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Discover.PageLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Discover.PageLimit },
	},
	{
		key: "discover.rank_ceiling", typ: kInt, env: "CINESENSE_DISCOVER_RANK_CEILING",
		apply:   func(cfg *Config, v any) { cfg.Discover.RankCeiling = v.(int) },
		extract: func(cfg Config) any { return cfg.Discover.RankCeiling },
	},
	{
		key: "profile.ttl", typ: kString, env: "CINESENSE_PROFILE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Profile.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.TTL },
	},
	{
		key: "profile.min_valid_records", typ: kInt, env: "CINESENSE_PROFILE_MIN_VALID_RECORDS",
		apply:   func(cfg *Config, v any) { cfg.Profile.MinValidRecords = v.(int) },
		extract: func(cfg Config) any { return cfg.Profile.MinValidRecords },
	},
	{
		key: "profile.min_favorites", typ: kInt, env: "CINESENSE_PROFILE_MIN_FAVORITES",
		apply:   func(cfg *Config, v any) { cfg.Profile.MinFavorites = v.(int) },
		extract: func(cfg Config) any { return cfg.Profile.MinFavorites },
	},
	{
		key: "search.sites", typ: kString, env: "CINESENSE_SEARCH_SITES",
		apply:   func(cfg *Config, v any) { cfg.Search.Sites = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.Sites },
	},
	{
		key: "search.disable_adult_filter", typ: kBool, env: "CINESENSE_SEARCH_DISABLE_ADULT_FILTER",
		apply:   func(cfg *Config, v any) { cfg.Search.DisableAdultFilter = v.(bool) },
		extract: func(cfg Config) any { return cfg.Search.DisableAdultFilter },
	},
	{
		key: "search.timeout", typ: kString, env: "CINESENSE_SEARCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Search.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.Timeout },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "CINESENSE_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "CINESENSE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parseValue converts a raw string into the Go type a key expects.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
