package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akmatori/incidentwatch/internal/config"
	"github.com/akmatori/incidentwatch/internal/database"
	"github.com/akmatori/incidentwatch/internal/detection"
	"github.com/akmatori/incidentwatch/internal/handlers"
	"github.com/akmatori/incidentwatch/internal/jobs"
	"github.com/akmatori/incidentwatch/internal/llm"
	"github.com/akmatori/incidentwatch/internal/middleware"
	"github.com/akmatori/incidentwatch/internal/services"
	slackutil "github.com/akmatori/incidentwatch/internal/slack"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection pipeline and review API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not run schema migrations on startup")
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer database.Close(db)

	if !skipMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
	}

	incidentService := services.NewIncidentService(db, database.NewRetrier(cfg.DBRetryAttempts, cfg.DBRetryBackoff))

	slackManager := slackutil.NewManager(slackutil.Config{
		BotToken:   cfg.SlackBotToken,
		AppToken:   cfg.SlackAppToken,
		SocketMode: cfg.SlackSocketMode,
	})
	client := slackManager.GetClient()
	if client == nil {
		return errors.New("SLACK_BOT_TOKEN is required")
	}
	if !cfg.SlackSocketMode && cfg.SlackSigningSecret == "" {
		return errors.New("SLACK_SIGNING_SECRET is required for HTTP event delivery")
	}

	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, every thread will be classified as not an incident")
	}
	gateway := detection.NewGateway(llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.LLMTimeout,
	}))

	reader := slackutil.NewReader(client)
	aggregator := detection.NewAggregator(reader, reader, cfg.ThreadFetchLimit, time.Hour)
	defer aggregator.Close()

	var claimer detection.Claimer
	if cfg.RedisURL != "" {
		redisClaimer, err := detection.NewRedisClaimerFromURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClaimer.Close()
		if err := redisClaimer.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, analysis claims fall back to this replica", "error", err)
		}
		claimer = redisClaimer
	}
	scheduler := detection.NewScheduler(cfg.AnalysisDebounce, cfg.ScheduleRetention, claimer)

	channels := slackutil.NewChannelResolver(client)
	notifier := detection.NewNotifier(
		slackutil.NewPoster(client),
		channels,
		detection.NotifierConfig{
			Enabled:           cfg.NotificationEnabled,
			SeverityThreshold: cfg.HighSeverityThreshold,
			TargetChannel:     cfg.NotificationChannelID,
		},
	)

	pipeline := detection.NewPipeline(incidentService, aggregator, gateway, scheduler, notifier, detection.Options{
		MinConfidence:   cfg.MinConfidenceForAutoCreate,
		MonitorChannels: cfg.MonitorChannels,
	})

	sweeper, err := jobs.NewSweeper(scheduler, cfg.ScheduleSweep)
	if err != nil {
		return err
	}
	sweeper.Start()

	slackHandler := handlers.NewSlackHandler(pipeline, cfg.SlackSigningSecret)
	slackManager.SetEventHandler(slackHandler.HandleSocketMode)
	if err := slackManager.Start(ctx); err != nil {
		return err
	}
	slackHandler.SetBotUserID(slackManager.BotUserID())

	jwtAuth, err := newJWTAuth(cfg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.NewHTTPHandler(db).SetupRoutes(mux)
	handlers.NewAuthHandler(jwtAuth).SetupRoutes(mux)
	handlers.NewIncidentsHandler(incidentService).SetupRoutes(mux)
	handlers.NewMonitoringHandler(cfg, channels).SetupRoutes(mux)
	slackHandler.SetupRoutes(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           middleware.RequestIDMiddleware(middleware.AccessLog(jwtAuth.Wrap(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", server.Addr, "socket_mode", slackManager.IsRunning())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			slog.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown", "error", err)
	}
	slackManager.Stop()
	slackHandler.Wait()
	sweeper.Stop(shutdownCtx)
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		slog.Warn("pending analyses did not finish", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func newJWTAuth(cfg *config.Config) (*middleware.JWTAuthMiddleware, error) {
	authCfg := middleware.JWTAuthConfig{
		Enabled:       cfg.AdminPassword != "",
		AdminUsername: cfg.AdminUsername,
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      time.Duration(cfg.JWTExpiryHours) * time.Hour,
		SkipPaths:     []string{"/health", "/auth/login", "/slack/*"},
	}
	if !authCfg.Enabled {
		slog.Warn("ADMIN_PASSWORD not set, review API is unauthenticated")
		return middleware.NewJWTAuthMiddleware(authCfg), nil
	}

	hash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	authCfg.AdminPasswordHash = hash
	slog.Info("jwt authentication enabled", "user", cfg.AdminUsername)
	return middleware.NewJWTAuthMiddleware(authCfg), nil
}
