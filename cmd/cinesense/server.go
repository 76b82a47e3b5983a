package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/cinesense/internal/api"
	"github.com/kalambet/cinesense/internal/assistant"
	"github.com/kalambet/cinesense/internal/catalog"
	"github.com/kalambet/cinesense/internal/config"
	"github.com/kalambet/cinesense/internal/discover"
	"github.com/kalambet/cinesense/internal/engine"
	"github.com/kalambet/cinesense/internal/kvcache"
	"github.com/kalambet/cinesense/internal/sitesearch"
	"github.com/kalambet/cinesense/internal/storage"
	"github.com/kalambet/cinesense/internal/tasteprofile"
	"github.com/kalambet/cinesense/internal/worker"
)

var mcpStdio bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cinesense server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cinesense server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cinesense system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&mcpStdio, "mcp-stdio", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cinesense.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// openCache returns the cache for the configured backend and a func
// releasing it.
func openCache(ctx context.Context, cfg config.Config, store *storage.Store) (kvcache.Cache, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		r, err := kvcache.NewRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return r, func() { r.Close() }, nil
	case "memory":
		return kvcache.NewMemory(), func() {}, nil
	default:
		return store, func() {}, nil
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "cinesense version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	logger := slog.Default()

	apiToken, err := config.GetAPIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cinesense is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cinesense is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}()

	cache, closeCache, err := openCache(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeCache()
	slog.Info("cache ready", "backend", cfg.Cache.Backend)

	// Text generation. Persisted admin overrides win over the config file.
	sw := engine.NewSwitch(nil)
	ai := engine.NewController(engine.SettingsFromConfig(cfg), sw, store, logger)
	if err := ai.Load(ctx); err != nil {
		slog.Warn("AI features disabled", "error", err)
	}
	if s := ai.Settings(); s.Enabled && (s.Provider == "ollama" || s.FallbackProvider == "ollama") {
		if err := engine.NewOllamaGenerator(s.OllamaHost, s.OllamaModel).EnsureReady(ctx, os.Stderr); err != nil {
			printWarning("%v", err)
		}
	}
	aiTimeout := config.Duration("ai.timeout", cfg.AI.Timeout, 60*time.Second)

	douban := catalog.NewDouban(catalog.Options{
		ProxyType: cfg.Douban.ProxyType,
		ProxyURL:  cfg.Douban.ProxyURL,
		RateLimit: cfg.Douban.RateLimit,
		Logger:    logger,
	})

	profiles := tasteprofile.New(tasteprofile.Deps{
		Cache:     cache,
		History:   store,
		Generator: sw.Current,
		Logger:    logger,
		Options: tasteprofile.Options{
			TTL:             config.Duration("profile.ttl", cfg.Profile.TTL, 7*24*time.Hour),
			MinValidRecords: cfg.Profile.MinValidRecords,
			MinFavorites:    cfg.Profile.MinFavorites,
			BuildTimeout:    aiTimeout,
		},
	})
	defer profiles.Wait()

	disc := discover.New(discover.Deps{
		Cache:     cache,
		History:   store,
		Catalog:   douban,
		Generator: sw.Current,
		Profiles:  profiles,
		Logger:    logger,
		Options: discover.Options{
			TTL:             config.Duration("discover.ttl", cfg.Discover.TTL, 24*time.Hour),
			Fallback:        cfg.Discover.Fallback,
			CriteriaCount:   cfg.Discover.CriteriaCount,
			PageLimit:       cfg.Discover.PageLimit,
			RankCeiling:     cfg.Discover.RankCeiling,
			CriteriaTimeout: aiTimeout,
		},
	})

	sites, err := sitesearch.ParseSites(cfg.Search.Sites)
	if err != nil {
		return fmt.Errorf("parsing search sites: %w", err)
	}
	searcher := sitesearch.New(sitesearch.Options{
		Sites:              sites,
		DisableAdultFilter: cfg.Search.DisableAdultFilter,
		Timeout:            config.Duration("search.timeout", cfg.Search.Timeout, 20*time.Second),
		Logger:             logger,
	})
	slog.Info("search sites loaded", "count", len(sites))

	asst := assistant.New(assistant.Deps{
		Sites:     searcher,
		History:   store,
		Catalog:   douban,
		Generator: sw.Current,
		Profiles:  profiles,
		Logger:    logger,
		Options: assistant.Options{
			PageLimit:       cfg.Discover.PageLimit,
			CriteriaTimeout: aiTimeout,
		},
	})

	// Background jobs: discovery refreshes, profile builds and, for the
	// sqlite cache, expiry cleanup.
	wd := worker.Deps{
		Store:        store,
		Refresher:    disc,
		Profiles:     profiles,
		Logger:       logger,
		PollInterval: config.Duration("worker.poll_interval", cfg.Worker.PollInterval, time.Second),
	}
	if cfg.Cache.Backend == "sqlite" {
		wd.Purger = store
	}
	go worker.NewWorker(wd).Run(ctx)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Discover:    disc,
		Assistant:   asst,
		Douban:      douban,
		Profiles:    profiles,
		DefaultUser: cfg.Server.DefaultUser,
	}, version)
	if mcpStdio {
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	handler := api.NewRouter(api.Deps{
		Store:       store,
		Discover:    disc,
		Assistant:   asst,
		Sites:       searcher,
		Douban:      douban,
		Profiles:    profiles,
		AI:          ai,
		Generator:   sw.Current,
		MCP:         server.NewStreamableHTTPServer(mcpSrv),
		Token:       apiToken,
		UserHeader:  cfg.Server.UserHeader,
		DefaultUser: cfg.Server.DefaultUser,
		Logger:      logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "cinesense listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cinesense is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cinesense (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cinesense (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// The running server may carry admin overrides; prefer its view.
	settings := engine.SettingsFromConfig(cfg)
	apiToken, tokenErr := config.GetAPIToken(cfg)
	if running && tokenErr == nil {
		if r, err := apiGet(client, serverURL+"/api/admin/ai", apiToken); err == nil {
			if r.StatusCode == http.StatusOK {
				json.NewDecoder(r.Body).Decode(&settings)
			}
			r.Body.Close()
		}
	}

	if !settings.Enabled {
		printStatus("AI", "disabled")
	} else {
		model := settings.OllamaModel
		if settings.Provider == "openrouter" {
			model = settings.OpenRouterModel
		}
		printStatus("AI", "%s (%s)", settings.Provider, model)
		if settings.FallbackProvider != "" {
			printStatus("AI fallback", "%s", settings.FallbackProvider)
		}
	}

	if settings.Provider == "ollama" || settings.FallbackProvider == "ollama" {
		ollamaResp, err := client.Get(settings.OllamaHost + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", settings.OllamaHost)
		}
	}

	proxy := cfg.Douban.ProxyType
	if proxy == "" {
		proxy = "direct"
	}
	printStatus("Douban", "%s", proxy)
	printStatus("Cache", "%s", cfg.Cache.Backend)

	if running && tokenErr == nil {
		for _, c := range []struct{ label, path string }{
			{"Play records", "/api/playrecords"},
			{"Favorites", "/api/favorites"},
		} {
			r, err := apiGet(client, serverURL+c.path, apiToken)
			if err != nil {
				continue
			}
			var items map[string]json.RawMessage
			if r.StatusCode == http.StatusOK && json.NewDecoder(r.Body).Decode(&items) == nil {
				printStatus(c.label, "%s", countLabel(len(items), 100))
			}
			r.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
