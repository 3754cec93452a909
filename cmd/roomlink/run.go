package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vntrieu/roomlink/internal/config"
	"github.com/vntrieu/roomlink/internal/httpapi"
	"github.com/vntrieu/roomlink/internal/metrics"
	"github.com/vntrieu/roomlink/internal/ratelimit"
	"github.com/vntrieu/roomlink/internal/session"
	"github.com/vntrieu/roomlink/internal/websocket"
)

func runCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the coordination server and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if serverURL != "" {
				settings.ServerURL = serverURL
				if err := settings.Validate(); err != nil {
					return err
				}
			}
			return run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "coordination server URL (overrides ROOMLINK_SERVER_URL)")

	return cmd
}

func run(ctx context.Context, settings config.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(settings)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	conn := websocket.NewClient(
		websocket.WithConfig(websocket.Config{
			ConnectTimeout:    settings.ConnectTimeout,
			AuthTimeout:       settings.AuthTimeout,
			RequestTimeout:    settings.RequestTimeout,
			HeartbeatInterval: settings.HeartbeatInterval,
		}),
		websocket.WithLogger(logger),
		websocket.WithMetrics(m),
	)

	player := session.NewLocalPlayer(websocket.PlayerInfo{
		Name:    settings.Player.Name,
		WorldID: settings.Player.WorldID,
		Job:     settings.Player.Job,
		Profile: settings.Player.Profile,
	}, settings.Player.ActivationCode)

	commandLimiter := ratelimit.NewTokenBucket(settings.CommandRate, settings.CommandBurst)
	mgr := session.NewManager(conn, player, session.Options{
		ServerURL:         settings.ServerURL,
		AutoConnect:       settings.AutoConnect,
		AutoReconnect:     settings.AutoReconnect,
		ReconnectInterval: settings.ReconnectInterval,
		PollInterval:      settings.PollInterval,
		CommandLimiter:    commandLimiter,
	}, logger, m)
	registerCommands(mgr.Commands(), player, logger)

	apiLimiter := httpapi.DefaultRateLimiter(settings.APIRateLimit)
	router := httpapi.NewRouter(mgr, httpapi.Options{
		Secret:         []byte(settings.APISecret),
		AllowedOrigins: settings.AllowedOrigins,
		RateLimiter:    apiLimiter,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Player:         player,
		Logger:         logger,
	})
	if settings.APISecret == "" {
		logger.Warn().Msg("ROOMLINK_API_SECRET not set; control API is unauthenticated")
	}

	srv := &http.Server{
		Addr:         settings.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", settings.HTTPAddr).Msg("control API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()

	mgr.Start(ctx)

	// Idle limiter keys are dropped so per-IP and per-target state stays bounded.
	go ratelimit.RunPruner(ctx, commandLimiter, time.Minute)
	if p, ok := apiLimiter.(ratelimit.Pruner); ok {
		go ratelimit.RunPruner(ctx, p, time.Minute)
	}

	// The session tick runs on this goroutine only.
	ticker := time.NewTicker(settings.TickInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case now := <-ticker.C:
			mgr.Tick(now)
		case runErr = <-serveErr:
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	if err := mgr.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("session close failed")
	}
	return runErr
}
