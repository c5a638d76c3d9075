package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/chat-moderation/internal/admincache"
	"github.com/whisper/chat-moderation/internal/config"
	"github.com/whisper/chat-moderation/internal/database"
	"github.com/whisper/chat-moderation/internal/ledger"
	"github.com/whisper/chat-moderation/internal/messaging"
	"github.com/whisper/chat-moderation/internal/metrics"
	"github.com/whisper/chat-moderation/internal/moderation"
	"github.com/whisper/chat-moderation/internal/orchestrator"
	"github.com/whisper/chat-moderation/internal/ratelimit"
	"github.com/whisper/chat-moderation/internal/settings"
	"github.com/whisper/chat-moderation/internal/transport"
	"github.com/whisper/chat-moderation/internal/users"
)

const drainTimeout = 30 * time.Second

func main() {
	log.Println("Starting chat moderation service...")

	cfg := config.Load()

	// PostgreSQL setup.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if cfg.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	}

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Admin lookups fall through to the bridge while Redis is down.
		log.Printf("[moderator] redis unavailable, admin cache degraded: %v", err)
	}
	cancel()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "chat-moderator"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	var classifier moderation.Classifier
	switch cfg.ClassifierMode {
	case config.ClassifierLocal:
		classifier = moderation.NewHeuristic()
	default:
		classifier = moderation.NewRemote(natsClient)
	}

	bridge := transport.NewNATS(natsClient, cfg.TransportTimeout)

	orch := orchestrator.New(orchestrator.Deps{
		Users:      users.NewStore(db),
		Settings:   settings.NewResolver(settings.NewStore(db)),
		Admins:     admincache.New(rdb, bridge, cfg.AdminCacheTTL),
		Classifier: moderation.NewAdapter(classifier, cfg.ClassifierTimeout),
		Ledger:     ledger.NewLedger(db),
		Audit:      ledger.NewAuditTrail(db),
		Transport:  bridge,
		Events:     natsClient,
		Warnings:   ratelimit.NewLimiter(rdb, ratelimit.RuleWarning),
	})
	pool := orchestrator.NewPool(orch, cfg.MaxConcurrentMessages)

	// In-flight messages keep running on this context until drained.
	procCtx, stopProcessing := context.WithCancel(context.Background())
	defer stopProcessing()

	if err := natsClient.SubscribeInbound(func(data []byte) {
		pool.Submit(procCtx, data)
	}); err != nil {
		log.Fatalf("failed to subscribe to inbound messages: %v", err)
	}

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	log.Printf("Chat moderation service running")
	log.Printf("  classifier:   %s", cfg.ClassifierMode)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  metrics_addr: %s", cfg.MetricsAddr)
	log.Printf("  max_inflight: %d", cfg.MaxConcurrentMessages)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	if err := natsClient.UnsubscribeInbound(); err != nil {
		log.Printf("[moderator] unsubscribe inbound: %v", err)
	}
	if !pool.Drain(drainTimeout) {
		log.Printf("[moderator] drain timed out after %v, cancelling in-flight messages", drainTimeout)
		stopProcessing()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[metrics] shutdown: %v", err)
	}
	shutdownCancel()

	natsClient.Close()
	rdb.Close()
	db.Close()
}
