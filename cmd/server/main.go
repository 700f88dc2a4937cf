// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

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

	"github.com/tomtom215/highscore/internal/api"
	"github.com/tomtom215/highscore/internal/config"
	"github.com/tomtom215/highscore/internal/logging"
	"github.com/tomtom215/highscore/internal/ratelimit"
	"github.com/tomtom215/highscore/internal/scores"
	"github.com/tomtom215/highscore/internal/supervisor"
	"github.com/tomtom215/highscore/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Server stopped")
}

// run wires the components, serves until a signal arrives and releases
// everything in reverse order.
func run(cfg *config.Config) error {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_driver", cfg.Database.Driver).
		Str("kv_backend", cfg.KV.Backend).
		Bool("replace_on_tie", cfg.Scores.ReplaceOnTie).
		Msg("Starting highscore")

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin outside development; set CORS_ORIGINS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLogged("store", store)

	if cfg.Database.SeedMockData {
		if err := seedStore(ctx, store.Store, cfg.Database.SeedDevices); err != nil {
			return err
		}
	}

	remote, err := openRemote(cfg)
	if err != nil {
		return err
	}
	if remote != nil {
		defer closeLogged("kv", remote)
	}

	c := newCache(cfg, remote)
	defer closeLogged("cache", c)

	loc, err := cfg.Ranking.Location()
	if err != nil {
		return fmt.Errorf("ranking timezone: %w", err)
	}
	svc, err := scores.NewService(store.Store, c, scores.ServiceOptions{
		Ledger: scores.LedgerOptions{
			MaxScore:     cfg.Scores.MaxScore,
			ReplaceOnTie: cfg.Scores.ReplaceOnTie,
		},
		Location: loc,
		TTLs: scores.TTLs{
			Ranking: cfg.Cache.RankingTTL,
			Stats:   cfg.Cache.StatsTTL,
			Rank:    cfg.Cache.RankTTL,
			History: cfg.Cache.HistoryTTL,
		},
		Codec: cfg.Cache.Codec,
	})
	if err != nil {
		return fmt.Errorf("scores service: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		// the limiter fails open on a nil store
		limiter = ratelimit.New(remote, cfg.RateLimit.Window, cfg.RateLimit.Timeout, limiterEscalation(cfg))
	}

	handler := api.NewHandler(svc, c, limiter, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(chiConfig(cfg)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	addMaintenance(tree, cfg, store, remote, c)

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, u := range report {
			logging.Warn().Str("service", u.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	return nil
}

func chiConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mc := api.DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mc.HealthRequests = cfg.Security.HealthRateLimit
	return mc
}

type closer interface{ Close() error }

func closeLogged(name string, c closer) {
	if err := c.Close(); err != nil {
		logging.Error().Err(err).Str("resource", name).Msg("Error during close")
	}
}
