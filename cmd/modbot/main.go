package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinel/mod-bot/internal/alert"
	"github.com/sentinel/mod-bot/internal/classifier"
	"github.com/sentinel/mod-bot/internal/commands"
	"github.com/sentinel/mod-bot/internal/gateway"
	"github.com/sentinel/mod-bot/internal/messaging"
	"github.com/sentinel/mod-bot/internal/metrics"
	"github.com/sentinel/mod-bot/internal/moderation"
	"github.com/sentinel/mod-bot/internal/store"
)

func main() {
	log.Println("Starting moderation bot...")

	// --- Configuration ---
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	apiKey := os.Getenv("MISTRAL_API_KEY")
	if apiKey == "" {
		log.Fatal("MISTRAL_API_KEY is required")
	}

	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	alertChannel := envOr("MOD_ALERT_CHANNEL", "mod-alerts")
	auditPath := envOr("AUDIT_LOG_PATH", "moderation_log.txt")
	metricsAddr := envOr("METRICS_ADDR", ":9100")

	threshold := envIntOr("SCORE_ALERT_THRESHOLD", store.DefaultAlertThreshold)
	cooldown := time.Duration(envIntOr("ALERT_COOLDOWN_SECONDS", 3600)) * time.Second
	windowDelay := time.Duration(envIntOr("WINDOW_DELAY_SECONDS", 180)) * time.Second

	engineConfig := moderation.DefaultConfig()
	engineConfig.WindowDelay = windowDelay
	if v := os.Getenv("COMMAND_PREFIX"); v != "" {
		engineConfig.CommandPrefix = v
	}

	gatewayConfig := gateway.DefaultServerConfig()
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		gatewayConfig.ListenAddr = v
	}

	// --- PostgreSQL ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(ctx, databaseURL, threshold)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if err := st.Migrate(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Core wiring ---
	audit, err := moderation.OpenAuditLog(auditPath)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}

	clf := classifier.NewClient(classifier.Config{
		BaseURL: os.Getenv("MISTRAL_BASE_URL"),
		APIKey:  apiKey,
		Model:   os.Getenv("MODEL"),
	})

	throttle := alert.NewThrottle(rdb, natsClient, alertChannel, cooldown)
	engine := moderation.NewEngine(st, clf, natsClient, throttle, audit, engineConfig)
	router := commands.NewRouter(engineConfig.CommandPrefix, engine, st, natsClient)

	// ingest routes one inbound message event: every message lands in its
	// channel's window (commands are filtered again at dispatch), and
	// command invocations additionally run their handler.
	ingest := func(msg messaging.InboundMessage) {
		engine.OnMessage(msg.ChannelID, msg.Message())
		if router.IsCommand(msg.Text) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			router.Handle(ctx, msg.ChannelID, msg.Text)
		}
	}

	if err := natsClient.SubscribeInboundMessages(ingest); err != nil {
		log.Fatalf("failed to subscribe to inbound messages: %v", err)
	}

	gw := gateway.NewServer(gatewayConfig, ingest)
	go func() {
		if err := gw.Start(); err != nil {
			log.Fatalf("gateway failed: %v", err)
		}
	}()

	// --- Metrics endpoint ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("Moderation bot running")
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  listen_addr:     %s", gatewayConfig.ListenAddr)
	log.Printf("  metrics_addr:    %s", metricsAddr)
	log.Printf("  alert_channel:   %s", alertChannel)
	log.Printf("  alert_threshold: %d", threshold)
	log.Printf("  alert_cooldown:  %s", cooldown)
	log.Printf("  window_delay:    %s", windowDelay)
	log.Printf("  command_prefix:  %q", engineConfig.CommandPrefix)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway shutdown: %v", err)
	}
	engine.Stop()
	natsClient.Close()
	rdb.Close()
	if err := audit.Close(); err != nil {
		log.Printf("audit close: %v", err)
	}
	if err := st.Close(); err != nil {
		log.Printf("store close: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("ignoring invalid %s=%q", key, v)
	}
	return fallback
}
