package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"brleiloes/superbidworker/config"
	"brleiloes/superbidworker/helpers"
	"brleiloes/superbidworker/internal/crawler"
	"brleiloes/superbidworker/logger"
	"brleiloes/superbidworker/services/cache"
	"brleiloes/superbidworker/services/checkpoint"
	"brleiloes/superbidworker/services/publisher"
	"brleiloes/superbidworker/services/sink"
	"brleiloes/superbidworker/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("category", cfg.Category).
		Dur("max_execution", cfg.MaxExecutionTime).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling: cancellation stops the crawl between pages,
	// and the worker still flushes what it accumulated before exiting
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	}()

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	source := &crawler.SourceClient{
		APIURL:    cfg.APIURL,
		SiteURL:   cfg.SiteURL,
		PageSize:  cfg.PageSize,
		PortalIDs: cfg.PortalIDs,
		TimeZone:  cfg.TimeZone,
		Client:    helpers.NewHTTPClient(cfg.RequestTimeout),
	}

	w := worker.New(cfg, source.FetchPage, services.Sink, services.Publisher, services.Store, services.Cache)
	stats := w.Run(ctx)

	if stats.Upsert.Errors > 0 || stats.Abandoned > 0 {
		log.Warn().
			Int("sink_errors", stats.Upsert.Errors).
			Int("abandoned", stats.Abandoned).
			Msg("Run finished with errors")
	}
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Sink      sink.Sink
	Store     *checkpoint.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services. The sink and the
// checkpoint store are mandatory; the memcache guard and the Redis
// publisher stay disabled when not configured.
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	supabase, err := sink.NewSupabaseSink(ctx, cfg.SupabaseURL, cfg.SupabaseServiceKey)
	if err != nil {
		return nil, err
	}
	services.Sink = supabase

	logger.Info("Supabase sink ready in %s mode", supabase.Mode())

	store, err := checkpoint.NewStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	services.Store = store

	if cfg.MemcacheAddr != "" {
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	if cfg.PublishEnabled {
		services.Publisher = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services, nil
}
