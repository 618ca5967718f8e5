package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/soniam4/carbonfootprint-tracker/internal/api"
	"github.com/soniam4/carbonfootprint-tracker/internal/auth"
	"github.com/soniam4/carbonfootprint-tracker/internal/catalog"
	"github.com/soniam4/carbonfootprint-tracker/internal/config"
	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
	"github.com/soniam4/carbonfootprint-tracker/internal/logging"
	"github.com/soniam4/carbonfootprint-tracker/internal/outbox"
	persistence "github.com/soniam4/carbonfootprint-tracker/internal/persistence/postgres"
	httptransport "github.com/soniam4/carbonfootprint-tracker/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	if err := bootstrapCatalog(ctx, repo, cfg.CatalogPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap reference catalog")
	}

	refresher := catalog.NewRefresher(repo, cfg.CatalogRefreshInterval,
		catalog.WithLogger(logging.Component(logger, "catalog")))
	if err := refresher.Refresh(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load emission factors")
	}
	go refresher.Start(ctx)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	if ids, err := registry.RegisterEventSchemas(ctx); err != nil {
		logger.Warn().Err(err).Msg("event schemas not registered yet, dispatcher will retry")
	} else {
		logger.Info().Interface("schema_ids", ids).Msg("event schemas registered")
	}

	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logging.Component(logger, "outbox")))
	go dispatcher.Start(ctx)

	recommenderCfg := domain.DefaultRecommenderConfig()
	recommenderCfg.Cooldown = cfg.RecommendationCooldown
	recommenderCfg.StarterSetSize = cfg.StarterSetSize
	recommender := domain.NewRecommender(repo, recommenderCfg,
		domain.WithRecommenderLogger(logging.Component(logger, "recommender")))

	service := domain.NewService(repo, refresher,
		domain.WithLogger(logging.Component(logger, "service")),
		domain.WithHook("recommendations", recommender),
	)

	handler := api.NewHandler(service, logging.Component(logger, "api"))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(authMiddleware.Wrap(mux),
		httptransport.RequestLogger(logging.Component(logger, "http")),
		httptransport.CORS(cfg.CORSOrigin),
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Msg("carbon tracker api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	dispatcher.Wait()
	refresher.Wait()
}

// bootstrapCatalog applies the configured catalog when the database has none yet.
func bootstrapCatalog(ctx context.Context, repo *persistence.Repository, path string, logger zerolog.Logger) error {
	version, err := repo.CatalogVersion(ctx)
	if err != nil {
		return err
	}
	if version != "" {
		return nil
	}
	c, err := catalog.Load(path)
	if err != nil {
		return err
	}
	if err := repo.ApplyCatalog(ctx, c); err != nil {
		return err
	}
	logger.Info().Str("version", c.Version).Msg("reference catalog applied")
	return nil
}
