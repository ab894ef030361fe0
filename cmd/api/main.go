package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"servicenest/internal/api"
	"servicenest/internal/auth"
	"servicenest/internal/config"
	"servicenest/internal/database"
	"servicenest/internal/events"
	"servicenest/internal/logging"
	"servicenest/internal/metrics"
	"servicenest/internal/models"
	"servicenest/internal/repository"
	"servicenest/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for role:id (e.g. worker:alice) and exit")
	flag.Parse()

	if err := run(*issueToken); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(issueToken string) error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	tokens := auth.NewTokens(cfg.API.Auth.JWTSecret, cfg.API.Auth.Issuer, cfg.API.Auth.TokenLifetime())
	if issueToken != "" {
		return printToken(tokens, issueToken)
	}

	loadCatalog(cfg, &logger)

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	logBookingCounts(db, &logger)

	redisClient := initRedis(cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	subscribeAudit(eventBus, &logger)
	if redisClient != nil {
		snapshots := repository.NewRedisSnapshotRepository(redisClient, cfg.Client.SnapshotLifetime())
		repository.SubscribeInvalidation(eventBus, snapshots, &logger)
	}

	bookingService := service.NewBookingService(db, eventBus, &logger)
	httpServer := api.NewHTTPServer(cfg.API, bookingService, db, tokens, &logger)

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup, &logger)
		go backups.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func printToken(tokens *auth.Tokens, roleID string) error {
	role, id, ok := strings.Cut(roleID, ":")
	if !ok {
		return fmt.Errorf("issue-token expects role:id, got %q", roleID)
	}
	token, err := tokens.Issue(models.Actor{Role: models.Role(role), ID: id})
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func loadCatalog(cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Catalog.Path == "" {
		return
	}
	prices, err := config.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Str("catalog_path", cfg.Catalog.Path).Msg("catalog not found, using built-in prices")
			return
		}
		logger.Error().Err(err).Str("catalog_path", cfg.Catalog.Path).Msg("catalog invalid, using built-in prices")
		return
	}
	models.SetPriceCatalog(prices)
	logger.Info().Int("services", len(prices)).Msg("price catalog loaded")
}

func logBookingCounts(db *database.DB, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := db.CountByStatus(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("count bookings")
		return
	}
	ev := logger.Info()
	for _, st := range models.AllStatuses {
		ev = ev.Int(string(st), counts[st])
	}
	ev.Msg("bookings by status")
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// subscribeAudit writes every booking event to the log.
func subscribeAudit(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logger.With().Str("component", "audit").Logger()
	bus.Subscribe(events.AllEvents, func(ev *events.Event) error {
		audit.Info().
			Str("event_id", ev.ID).
			Str("event", ev.Type).
			RawJSON("payload", ev.Payload).
			Msg("booking event")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("auth", cfg.API.Auth.Enabled).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
