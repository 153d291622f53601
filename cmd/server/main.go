package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shortkit/redirector/internal/cache"
	"github.com/shortkit/redirector/internal/cache/memory"
	"github.com/shortkit/redirector/internal/cache/redis"
	"github.com/shortkit/redirector/internal/config"
	"github.com/shortkit/redirector/internal/events/nats"
	"github.com/shortkit/redirector/internal/geo"
	"github.com/shortkit/redirector/internal/guard"
	"github.com/shortkit/redirector/internal/metrics"
	"github.com/shortkit/redirector/internal/service"
	"github.com/shortkit/redirector/internal/store/sqlite"
	httpTransport "github.com/shortkit/redirector/internal/transport/http"
)

var rootCmd = &cobra.Command{
	Use:   "redirector",
	Short: "The redirect core of a URL shortening system",
	Long:  "Resolves short codes against a cache-aside store, applies abuse guarding and geo rules, and exchanges creation/click events over a durable broker",
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the redirect server",
	RunE:  runServer,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [SHORT_CODE]",
	Short: "Ask a running server to re-read a record and repopulate its cache entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefresh,
}

func init() {
	// Load .env before flag defaults are computed; a missing file is fine
	_ = godotenv.Load()
}

func init() {
	// Server command flags; env vars (optionally from .env) provide defaults
	serverCmd.Flags().StringP("port", "p", envOr("PORT", "8080"), "Server port")
	serverCmd.Flags().String("db-path", envOr("DB_PATH", "urls.db"), "Database file path")
	serverCmd.Flags().Duration("store-timeout", 2*time.Second, "Per-call store timeout")

	serverCmd.Flags().String("cache-backend", envOr("CACHE_BACKEND", config.CacheBackendRedis), "Cache backend (redis or memory)")
	serverCmd.Flags().String("cache-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
	serverCmd.Flags().String("cache-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	serverCmd.Flags().Int("cache-db", 0, "Redis logical database")
	serverCmd.Flags().Duration("cache-ttl", time.Hour, "Cache entry TTL")
	serverCmd.Flags().Duration("cache-timeout", 500*time.Millisecond, "Per-call cache timeout")
	serverCmd.Flags().Int("cache-warm-count", 100, "Records to pre-warm at startup")

	serverCmd.Flags().String("broker-url", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	serverCmd.Flags().String("broker-stream", "URLS", "JetStream stream name")
	serverCmd.Flags().String("broker-source", "redirector", "Source tag for published events")
	serverCmd.Flags().Duration("publish-timeout", 2*time.Second, "Per-event publish timeout")

	serverCmd.Flags().Int64("guard-human-limit", 120, "Requests per window for human traffic")
	serverCmd.Flags().Int64("guard-bot-limit", 10, "Requests per window for bot traffic")
	serverCmd.Flags().Duration("guard-window", time.Minute, "Rate limit window")

	serverCmd.Flags().String("geo-rules", os.Getenv("GEO_RULES_PATH"), "Geo rule table JSON file (optional)")
	serverCmd.Flags().String("geo-mmdb", os.Getenv("GEO_MMDB_PATH"), "MaxMind database file (optional)")

	serverCmd.Flags().Int("workers", 4, "Background bookkeeping workers")
	serverCmd.Flags().Int("queue-size", 1024, "Background task queue size")

	serverCmd.Flags().BoolP("verbose", "v", false, "Enable verbose request logging")

	refreshCmd.Flags().StringP("server-url", "u", envOr("SERVER_URL", "http://localhost:8080"), "Server URL")

	rootCmd.AddCommand(serverCmd, refreshCmd)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	port, _ := cmd.Flags().GetString("port")
	dbPath, _ := cmd.Flags().GetString("db-path")
	storeTimeout, _ := cmd.Flags().GetDuration("store-timeout")
	cacheBackend, _ := cmd.Flags().GetString("cache-backend")
	cacheAddr, _ := cmd.Flags().GetString("cache-addr")
	cachePassword, _ := cmd.Flags().GetString("cache-password")
	cacheDB, _ := cmd.Flags().GetInt("cache-db")
	cacheTTL, _ := cmd.Flags().GetDuration("cache-ttl")
	cacheTimeout, _ := cmd.Flags().GetDuration("cache-timeout")
	warmCount, _ := cmd.Flags().GetInt("cache-warm-count")
	brokerURL, _ := cmd.Flags().GetString("broker-url")
	brokerStream, _ := cmd.Flags().GetString("broker-stream")
	brokerSource, _ := cmd.Flags().GetString("broker-source")
	publishTimeout, _ := cmd.Flags().GetDuration("publish-timeout")
	humanLimit, _ := cmd.Flags().GetInt64("guard-human-limit")
	botLimit, _ := cmd.Flags().GetInt64("guard-bot-limit")
	guardWindow, _ := cmd.Flags().GetDuration("guard-window")
	geoRules, _ := cmd.Flags().GetString("geo-rules")
	geoMMDB, _ := cmd.Flags().GetString("geo-mmdb")
	workers, _ := cmd.Flags().GetInt("workers")
	queueSize, _ := cmd.Flags().GetInt("queue-size")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := &config.Config{
		Server: config.ServerConfig{Port: port},
		Store:  config.StoreConfig{Path: dbPath, Timeout: storeTimeout},
		Cache: config.CacheConfig{
			Backend:   cacheBackend,
			Addr:      cacheAddr,
			Password:  cachePassword,
			DB:        cacheDB,
			TTL:       cacheTTL,
			Timeout:   cacheTimeout,
			WarmCount: warmCount,
		},
		Broker: config.BrokerConfig{
			URL:            brokerURL,
			Stream:         brokerStream,
			Source:         brokerSource,
			PublishTimeout: publishTimeout,
		},
		Guard: config.GuardConfig{
			HumanLimit: humanLimit,
			BotLimit:   botLimit,
			Window:     guardWindow,
		},
		Geo:     config.GeoConfig{RulesPath: geoRules, MMDBPath: geoMMDB},
		Workers: config.WorkerConfig{Count: workers, QueueSize: queueSize},
		Logging: config.LoggingConfig{Verbose: verbose},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	log.Printf("Starting redirect server with config: port=%s cache=%s", cfg.Server.Port, cfg.Cache.Backend)

	// Authoritative store
	urlStore, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	// Cache layer
	var urlCache cache.Cache
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		urlCache, err = redis.Connect(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.Timeout)
		if err != nil {
			return fmt.Errorf("failed to connect to cache: %w", err)
		}
	default:
		urlCache = memory.New()
	}

	// Geo rules and country resolution
	rules := geo.NewRuleTable(nil)
	if cfg.Geo.RulesPath != "" {
		rules, err = geo.LoadRules(cfg.Geo.RulesPath)
		if err != nil {
			return fmt.Errorf("failed to load geo rules: %w", err)
		}
		log.Printf("Loaded %d geo rules", rules.Len())
	}

	var locator geo.Locator = geo.HeaderLocator{}
	if cfg.Geo.MMDBPath != "" {
		maxmind, err := geo.OpenMaxMind(cfg.Geo.MMDBPath)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		locator = maxmind
	}
	defer func() {
		if err := locator.Close(); err != nil {
			log.Printf("Error closing geo locator: %v", err)
		}
	}()

	// Event gateway
	gateway := nats.New(nats.Config{
		URL:    cfg.Broker.URL,
		Stream: cfg.Broker.Stream,
		Source: cfg.Broker.Source,
	})

	m := metrics.New()
	abuseGuard := guard.New(guard.Config{
		HumanLimit: cfg.Guard.HumanLimit,
		BotLimit:   cfg.Guard.BotLimit,
		Window:     cfg.Guard.Window,
	})

	redirector := service.New(urlStore, urlCache, abuseGuard, rules, gateway, m, service.Config{
		CacheTTL:       cfg.Cache.TTL,
		StoreTimeout:   cfg.Store.Timeout,
		PublishTimeout: cfg.Broker.PublishTimeout,
		WarmCount:      cfg.Cache.WarmCount,
		Workers:        cfg.Workers.Count,
		QueueSize:      cfg.Workers.QueueSize,
	})

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := redirector.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start redirector: %w", err)
	}
	defer func() {
		if err := redirector.Close(); err != nil {
			log.Printf("Error closing redirector: %v", err)
		}
	}()

	// Create and start HTTP server
	server := httpTransport.NewServer(redirector, locator, m, cfg.Server.Port, cfg.Logging.Verbose)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
	}

	log.Println("Server stopped")
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/urls/%s/refresh-cache", serverURL, args[0])
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to refresh cache: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	fmt.Println(string(body))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
