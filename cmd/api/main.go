package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/calmpulse/internal/api"
	"example.com/calmpulse/internal/auth"
	"example.com/calmpulse/internal/cache"
	"example.com/calmpulse/internal/calendar"
	"example.com/calmpulse/internal/community"
	"example.com/calmpulse/internal/config"
	"example.com/calmpulse/internal/consumer"
	"example.com/calmpulse/internal/domain"
	"example.com/calmpulse/internal/media"
	"example.com/calmpulse/internal/outbox"
	persistence "example.com/calmpulse/internal/persistence/postgres"
	"example.com/calmpulse/internal/progress"
	httptransport "example.com/calmpulse/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock, err := calendar.LoadClock(cfg.TimeZone)
	if err != nil {
		log.Fatalf("failed to load time zone: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool, persistence.WithTopic(cfg.SessionTopic))
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	days, err := cache.NewDaySetCache(cfg.DaySetCacheSize)
	if err != nil {
		log.Fatalf("failed to create day-set cache: %v", err)
	}
	invalidators := cache.Chain{days}
	if cfg.EdgePurgeURL != "" {
		invalidators = append(invalidators, cache.NewHTTPInvalidator(cfg.EdgePurgeURL, cfg.EdgePurgeToken, 5*time.Second))
	}

	service := domain.NewService(repo, repo, repo, clock,
		domain.WithTargetDuration(cfg.TargetDurationSec),
		domain.WithFloor(cfg.DataFloor),
		domain.WithInvalidator(invalidators),
	)
	tracker := progress.NewTracker(service, days, progress.WithFloor(cfg.DataFloor))

	poller := community.NewPoller(service, community.WithInterval(cfg.CommunityRefreshInterval))
	go poller.Run(ctx)

	var resolver *media.Resolver
	if cfg.Cloudinary.Enabled() {
		locator, err := media.NewCloudinaryLocator(media.CloudinaryConfig{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		})
		if err != nil {
			log.Fatalf("failed to configure asset store: %v", err)
		}
		resolver = media.NewResolver(media.NewCachingLocator(locator, 256, cfg.AssetCacheTTL), clock,
			media.WithLookback(cfg.MeditationLookbackDays))
	} else {
		log.Printf("cloudinary credentials missing; media endpoints disabled")
	}

	// Each instance reads every completion so its local day-set cache drops the user's entry.
	groupID := cfg.InvalidationGroupPrefix + "-" + uuid.NewString()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        groupID,
		Topic:          cfg.SessionTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	invalidation := consumer.NewProcessor(reader, consumer.NewCacheInvalidationHandler(days, nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()
		log.Printf("cache invalidation consumer started (topic=%s, group=%s)", cfg.SessionTopic, groupID)
		if err := invalidation.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("cache invalidation consumer stopped: %v", err)
		}
	}()

	handler := api.NewHandler(service, tracker, poller, resolver)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	cors := httptransport.CORS(cfg.CORSAllowedOrigins)
	logger := httptransport.RequestLogger(nil)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, logger(cors(authMiddleware.Wrap(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("calmpulse api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
	poller.Wait()
	tracker.Wait()
	wg.Wait()
}
