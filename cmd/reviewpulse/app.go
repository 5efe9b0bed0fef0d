package main

import (
	"context"
	"log/slog"
	"os"

	githubadapter "github.com/ericfisherdev/reviewpulse/internal/adapter/driven/github"
	redisadapter "github.com/ericfisherdev/reviewpulse/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/reviewpulse/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/reviewpulse/internal/application"
	"github.com/ericfisherdev/reviewpulse/internal/config"
	"github.com/ericfisherdev/reviewpulse/internal/domain/port/driven"
)

// app holds the adapters and services shared by every command.
type app struct {
	cfg   *config.Config
	db    *sqliteadapter.DB
	cache *redisadapter.Cache // nil when REVIEWPULSE_REDIS_URL is unset

	users *sqliteadapter.UserRepo
	repos *sqliteadapter.RepoRepo

	sync    *application.SyncService
	metrics *application.MetricsService
	roster  *application.RosterService
	coord   *application.RefreshCoordinator
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openApp loads configuration, opens and migrates the database, connects the
// optional metrics cache and wires the services.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(cfg))
	slog.Debug("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tracking_since", cfg.TrackingSince,
		"tracking_until", cfg.TrackingUntil,
		"refresh_interval", cfg.RefreshInterval,
	)

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("database ready", "path", db.Path(), "schema_version", version)

	a := &app{cfg: cfg, db: db}

	// The metrics cache is optional; a nil interface disables it.
	var metricsCache driven.MetricsCache
	if cfg.RedisURL != "" {
		cache, err := redisadapter.New(ctx, cfg.RedisURL, cfg.MetricsCacheTTL)
		if err != nil {
			slog.Warn("metrics cache unavailable, continuing without it", "error", err)
		} else {
			a.cache = cache
			metricsCache = cache
		}
	}

	if !cfg.HasGitHubToken() {
		slog.Warn("REVIEWPULSE_GITHUB_TOKEN is not set, GitHub requests are unauthenticated and heavily rate limited")
	}
	ghClient := githubadapter.NewClient(cfg.GitHubToken)

	a.users = sqliteadapter.NewUserRepo(db)
	a.repos = sqliteadapter.NewRepoRepo(db)
	owners := sqliteadapter.NewOwnerRepo(db)
	prs := sqliteadapter.NewPRRepo(db)

	a.sync = application.NewSyncService(ghClient, a.users, owners, a.repos, prs, metricsCache, application.SyncWindow{
		Since: cfg.TrackingSince,
		Until: cfg.TrackingUntil,
	})
	a.metrics = application.NewMetricsService(prs, a.repos, a.users, owners, metricsCache, nil)
	a.roster = application.NewRosterService(ghClient, a.users, nil)
	a.coord = application.NewRefreshCoordinator(a.sync, a.users, metricsCache, application.RefreshConfig{
		Cooldown:  cfg.RefreshCooldown,
		UserDelay: cfg.RefreshUserDelay,
	})

	return a, nil
}

// Close stops any refresh run and releases the cache and database.
func (a *app) Close() {
	a.coord.Close()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("error closing metrics cache", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
