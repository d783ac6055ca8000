package main

import (
	"context"
	"runtime"
	"strings"
	"time"

	"lighthouse/internal/cloudfallback"
	"lighthouse/internal/domain"
	"lighthouse/internal/escalation"
	"lighthouse/internal/gateway"
	"lighthouse/internal/inference"
	"lighthouse/internal/notify"
	"lighthouse/internal/pipeline"
	"lighthouse/internal/profiles"
	"lighthouse/internal/review"
	"lighthouse/internal/signaling"
	"lighthouse/internal/store"
	"lighthouse/internal/streams"
	"lighthouse/pkg/config"
	"lighthouse/pkg/database"
	"lighthouse/pkg/logging"
	"lighthouse/pkg/monitoring"
	pkgredis "lighthouse/pkg/redis"
	"lighthouse/pkg/server"
	"lighthouse/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("lighthouse")
	config.LoadEnv(logger)

	logger.Info("Starting Lighthouse (Video Monitoring Backend)")

	healthChecker := monitoring.NewHealthChecker("lighthouse", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("lighthouse", version.Version, version.GitCommit)

	st, err := store.Connect(database.Config{
		URL:             config.RequireEnv("DATABASE_URL"),
		MaxOpenConns:    config.GetEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    config.GetEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: 5 * time.Minute,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to store")
	}
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(st.DB()))

	profileRegistry := profiles.NewRegistry()

	streamManager := streams.New(st, logger, metricsCollector, streams.DefaultConfig())
	go streamManager.RunLivenessSweeper(context.Background(), 30*time.Second)

	inferenceClient := inference.New(config.GetEnv("INFERENCE_BASE_URL", "http://localhost:11434"))

	cloudProviders := loadCloudProviders(logger)
	cloudClient := cloudfallback.New(cloudProviders, logger)

	// Constructed ahead of both the Escalation Engine and the Gateway, so
	// both can be wired to the same broadcaster before Handlers exists.
	broadcaster := gateway.NewBroadcaster()

	notifier := buildNotifier(st, logger)

	engine := escalation.New(logger, func(ev escalation.Event) {
		broadcaster.PushEscalation(ev)

		target, ok := streamManager.Get(ev.StreamID)
		if !ok || len(ev.Channels) == 0 {
			return
		}
		notifier.Dispatch(context.Background(), domain.NotificationPayload{
			Title:    "Lighthouse alert",
			Body:     soundToBody(ev.Sound),
			StreamID: ev.StreamID,
			AlertID:  ev.AlertID,
		}, target.UserID, ev.Channels)
	})

	pl := pipeline.New(streamManager, st, inferenceClient, cloudClient, profileRegistry, engine,
		logger, pipeline.DefaultConfig(runtime.GOMAXPROCS(0)))
	pl.OnAlert(broadcaster.PushAlert)

	dispatcher := pipeline.NewDispatcher(pl)
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()
	go dispatcher.Run(dispatchCtx, config.GetEnvInt("PIPELINE_WORKERS", runtime.GOMAXPROCS(0)))

	reviewQueue := review.New(st, streamManager, logger, review.DefaultConfig())
	reviewDone := make(chan struct{})
	defer close(reviewDone)
	go reviewQueue.RunLeaseSweeper(context.Background(), 30*time.Second, reviewDone)

	signalingSwitch := signaling.New(logger, signaling.DefaultConfig())
	signalingDone := make(chan struct{})
	defer close(signalingDone)
	go signalingSwitch.RunStaleRoomSweeper(30*time.Second, signalingDone)

	jwtSecret := []byte(config.GetEnv("REVIEWER_JWT_SECRET", "lighthouse-dev-secret"))
	handlers := gateway.New(st, streamManager, pl, profileRegistry, reviewQueue, notifier, engine,
		signalingSwitch, broadcaster, jwtSecret, logger)

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"INFERENCE_BASE_URL": config.GetEnv("INFERENCE_BASE_URL", "http://localhost:11434"),
	}))

	router := server.SetupServiceRouter(logger, "lighthouse", healthChecker, metricsCollector)
	handlers.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("lighthouse", "8090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("HTTP server startup failed")
	}
}

// loadCloudProviders reads a best-quality-first provider chain from
// CLOUD_PROVIDERS (name:base_url:api_key_env, comma-separated), per
// spec.md §4.3's default ordering.
func loadCloudProviders(logger logging.Logger) []cloudfallback.Provider {
	raw := config.GetEnv("CLOUD_PROVIDERS", "")
	if raw == "" {
		return nil
	}

	var providers []cloudfallback.Provider
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) < 2 {
			logger.WithField("entry", entry).Warn("lighthouse: skipping malformed CLOUD_PROVIDERS entry")
			continue
		}
		p := cloudfallback.Provider{Name: parts[0], BaseURL: parts[1]}
		if len(parts) == 3 {
			p.APIKey = config.GetEnv(parts[2], "")
		}
		providers = append(providers, p)
	}
	return providers
}

// buildNotifier wires whichever channels have credentials configured;
// an absent credential set just leaves that channel Available() == false.
func buildNotifier(st *store.Store, logger logging.Logger) *notify.Notifier {
	var limiter *notify.SlidingWindowLimiter
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := pkgredis.NewClientFromURL(context.Background(), redisURL)
		if err != nil {
			logger.WithError(err).Warn("lighthouse: redis unavailable, SMS rate limiting disabled")
		} else {
			limiter = notify.NewSlidingWindowLimiter(client, config.GetEnvInt("SMS_RATE_LIMIT", 3), 10*time.Minute)
		}
	}

	pushChannel := notify.NewPushChannel(
		config.GetEnv("VAPID_PUBLIC_KEY", ""),
		config.GetEnv("VAPID_PRIVATE_KEY", ""),
		config.GetEnv("VAPID_SUBJECT", "mailto:ops@lighthouse.example"),
	)
	smsChannel := notify.NewSMSChannel(
		config.GetEnv("TWILIO_ACCOUNT_SID", ""),
		config.GetEnv("TWILIO_AUTH_TOKEN", ""),
		config.GetEnv("TWILIO_FROM_NUMBER", ""),
		limiter,
	)

	channels := []notify.Channel{pushChannel, smsChannel}
	if token := config.GetEnv("TELEGRAM_BOT_TOKEN", ""); token != "" {
		chatChannel, err := notify.NewChatBotChannel(token)
		if err != nil {
			logger.WithError(err).Warn("lighthouse: telegram bot init failed, chat channel disabled")
		} else {
			channels = append(channels, chatChannel)
		}
	}

	return notify.New(st, logger, int64(config.GetEnvInt("NOTIFY_MAX_CONCURRENT", 16)), channels...)
}

func soundToBody(sound string) string {
	switch sound {
	case "chime":
		return "A new event needs your attention."
	case "alert":
		return "An alert is still unacknowledged."
	case "alarm":
		return "This alert has gone unacknowledged for a while."
	case "critical":
		return "Critical: this alert requires immediate attention."
	default:
		return "Escalation update."
	}
}
