package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/promptlib/internal/cloudsync"
	"github.com/thebtf/promptlib/internal/config"
	dbgorm "github.com/thebtf/promptlib/internal/db/gorm"
	"github.com/thebtf/promptlib/internal/library"
	"github.com/thebtf/promptlib/internal/remote"
	"github.com/thebtf/promptlib/internal/remote/memory"
	"github.com/thebtf/promptlib/internal/remote/supabase"
	"github.com/thebtf/promptlib/internal/search"
	"github.com/thebtf/promptlib/internal/templates"
)

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	store   *dbgorm.Store
	lib     *library.Library
	outbox  *cloudsync.Outbox
	catalog *templates.Catalog
}

func loadConfig() (*config.Config, error) {
	if err := config.EnsureAll(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*dbgorm.Store, error) {
	return dbgorm.NewStore(dbgorm.Config{
		Driver:   cfg.DBDriver,
		Path:     cfg.DBPath,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
}

// openApp opens local storage and loads the library. The library starts
// Local-Only; changes made here reach the remote through the sign-in merge.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	outbox := cloudsync.NewOutbox(dbgorm.NewOutboxStore(store))
	engine := search.NewEngine(search.WithScorer(search.NewScorer(cfg.Scorer, cfg.SearchThreshold)))
	lib := library.New(dbgorm.NewLocalStore(store),
		library.WithMirror(outbox),
		library.WithEngine(engine),
	)
	lib.Load(ctx)

	catalog, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.TemplatesPath).Msg("Ignoring user templates")
		if catalog, err = templates.Default(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return &app{cfg: cfg, store: store, lib: lib, outbox: outbox, catalog: catalog}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

// remoteStore returns the configured remote behind a circuit breaker, or nil
// when sync is not configured.
func remoteStore(cfg *config.Config, offline bool) (remote.Store, error) {
	var rs remote.Store
	name := "supabase"
	switch {
	case offline:
		rs, name = memory.New(), "memory"
	case cfg.RemoteEnabled():
		s, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		rs = s
	default:
		return nil, nil
	}
	return remote.NewBreaker(rs, remote.DefaultBreakerConfig(name)), nil
}
