package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/annotation-sync/internal/broadcast"
	"github.com/example/annotation-sync/internal/config"
	"github.com/example/annotation-sync/internal/metadata"
	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/observability"
	"github.com/example/annotation-sync/internal/session"
	"github.com/example/annotation-sync/internal/types"
	"github.com/example/annotation-sync/internal/uibridge"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := log.With().Str("app", cfg.AppName).Logger()
	observability.RegisterRuntimeCollectors()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := observability.Start(ctx, observability.Config{
		ServiceName:    cfg.AppName,
		ServiceVersion: version,
		MetricsAddr:    cfg.MetricsAddr,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRatio:    cfg.OTELSampleRatio,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer telemetryShutdown(context.Background())

	resources, err := config.NewResources(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize resources")
	}
	defer resources.Close()

	if err := run(ctx, cfg, resources, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("annotation sync stopped")
		resources.Close()
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, resources *config.Resources, logger zerolog.Logger) error {
	// local reaches this process's collaborators only; outbound additionally
	// publishes to redis so the relay never echoes remote events back out.
	var sess *session.Session
	hub := uibridge.NewHub(func(track types.TrackID) ([]types.Feature, bool) {
		if sess == nil {
			return nil, false
		}
		return sess.Snapshot(track)
	}, logger)
	local := notify.NewFanout(notify.Log{Logger: logger}, hub)
	outbound := notify.NewFanout(local)

	origin := cfg.AppName + "-" + uuid.NewString()
	var publisher *broadcast.RedisNotifier
	if resources.Redis != nil {
		publisher = broadcast.NewRedisNotifier(resources.Redis, cfg.RedisChannelPrefix, origin, logger)
		outbound.Subscribe(publisher)
	}

	sess, err := session.New(session.Config{
		BaseURL:     cfg.ServerURL,
		PollTimeout: cfg.PollTimeout,
		EditTimeout: cfg.EditTimeout,
		HTTPClient:  resources.HTTP,
	}, outbound, nil, logger)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer sess.Close()

	meta := metadata.New(sess.Dispatcher(), cfg.MetadataCacheSize, logger)
	local.Subscribe(meta)

	g, ctx := errgroup.WithContext(ctx)

	if publisher != nil {
		relay := broadcast.NewRelay(resources.Redis, cfg.RedisChannelPrefix, origin, local, logger)
		g.Go(func() error { return publisher.Run(ctx) })
		g.Go(func() error { return relay.Run(ctx) })
	}

	bridge := &http.Server{
		Addr:              cfg.BridgeListenAddr,
		Handler:           uibridge.NewGateway(hub, logger, uibridge.GatewayConfig{}).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info().Str("addr", cfg.BridgeListenAddr).Msg("ui bridge starting")
		if err := bridge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ui bridge: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return bridge.Shutdown(shutdownCtx)
	})

	for _, id := range cfg.Tracks {
		track, err := sess.OpenTrack(ctx, id)
		if err != nil {
			logger.Error().Err(err).Str("track", string(id)).Msg("failed to open track")
			continue
		}
		g.Go(func() error { return watchTrack(ctx, track) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.HealthcheckProbe)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := resources.HealthCheck(ctx); err != nil {
					logger.Error().Err(err).Msg("dependency healthcheck failed")
				} else {
					logger.Debug().Int("tracks", len(sess.Tracks())).Int("ui_clients", hub.Total()).Msg("dependency healthcheck ok")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	logger.Info().Int("tracks", len(sess.Tracks())).Msg("annotation sync running")
	return g.Wait()
}

// watchTrack fails the group once the track's change feed stops fatally, so
// a logged out session ends the process.
func watchTrack(ctx context.Context, track *session.Track) error {
	select {
	case <-ctx.Done():
		return nil
	case <-track.Done():
	}
	if track.State() == types.FatallyFailed {
		return fmt.Errorf("track %s: %w", track.ID, track.Err())
	}
	return nil
}
