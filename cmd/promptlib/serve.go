package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/promptlib/internal/bridge"
	"github.com/thebtf/promptlib/internal/cloudsync"
	"github.com/thebtf/promptlib/internal/config"
	dbgorm "github.com/thebtf/promptlib/internal/db/gorm"
	"github.com/thebtf/promptlib/internal/remote"
	"github.com/thebtf/promptlib/internal/watcher"
)

func runServe(args []string) error {
	fs, debug := newFlagSet("serve")
	port := fs.Int("port", 0, "Bridge port (default from config)")
	offline := fs.Bool("offline-remote", false, "Sync against an in-process remote instead of Supabase")
	noBridge := fs.Bool("no-bridge", false, "Do not start the extension bridge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	rs, err := remoteStore(a.cfg, *offline)
	if err != nil {
		a.Close()
		return err
	}

	rt := &runtime{app: a, remote: rs}
	defer rt.close()

	var reconciler *cloudsync.Reconciler
	syncStatus := func() string { return cloudsync.LocalOnly.String() }
	if rs != nil {
		if err := rt.startDrainer(ctx); err != nil {
			return err
		}
		reconciler = cloudsync.NewReconciler(a.lib, rs,
			cloudsync.WithTimeout(a.cfg.SyncTimeout),
			cloudsync.WithPolicy(cloudsync.MigrationPolicy(a.cfg.MigrationPolicy)),
		)
		syncStatus = func() string { return reconciler.State().String() }

		if a.cfg.UserID != "" {
			if err := reconciler.SignIn(ctx, a.cfg.UserID); err != nil {
				log.Warn().Err(err).Msg("Continuing without sync")
			}
		}
	}

	if a.cfg.WatchDB && a.cfg.DBDriver == dbgorm.DriverSQLite {
		w, err := watcher.New(a.cfg.DBPath, func() { rt.recreate(ctx) })
		if err != nil {
			log.Warn().Err(err).Msg("Database watcher unavailable")
		} else {
			if err := w.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to start database watcher")
			}
			defer w.Stop()
		}
	}

	log.Info().
		Str("version", Version).
		Int("prompts", len(a.lib.Prompts())).
		Str("sync", syncStatus()).
		Msg("promptlib started")

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.BridgeEnabled && !*noBridge {
		if *port == 0 {
			*port = a.cfg.BridgePort
		}
		srv := bridge.New(a.lib,
			bridge.WithVersion(Version),
			bridge.WithSyncStatus(syncStatus),
			bridge.WithAllowedOrigins(a.cfg.BridgeOrigins...),
			bridge.WithToken(a.cfg.BridgeToken),
		)
		addr := fmt.Sprintf("127.0.0.1:%d", *port)
		g.Go(func() error { return srv.Serve(gctx, addr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Shutting down")
	if rs != nil && reconciler != nil && reconciler.State() == cloudsync.Synced {
		rt.flush()
	}
	return err
}

// runtime owns the storage-bound parts of serve so they can be rebuilt when
// the database file disappears.
type runtime struct {
	app    *app
	remote remote.Store

	mu          sync.Mutex
	drainer     *cloudsync.Drainer
	stopDrainer context.CancelFunc
	drainerDone chan struct{}
}

func (rt *runtime) startDrainer(ctx context.Context) error {
	cfg := cloudsync.DefaultDrainerConfig()
	cfg.Interval = rt.app.cfg.OutboxInterval
	cfg.MaxAttempts = rt.app.cfg.OutboxMaxAttempts
	cfg.Concurrency = rt.app.cfg.OutboxConcurrency

	d, err := cloudsync.NewDrainer(dbgorm.NewOutboxStore(rt.app.store), rt.remote, cfg)
	if err != nil {
		return err
	}
	dctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(dctx)
	}()

	rt.drainer = d
	rt.stopDrainer = cancel
	rt.drainerDone = done
	return nil
}

func (rt *runtime) haltDrainer() {
	if rt.stopDrainer == nil {
		return
	}
	rt.stopDrainer()
	<-rt.drainerDone
	rt.stopDrainer = nil
}

// recreate opens a fresh database at the configured path and writes the
// in-memory library into it. Operations queued in the lost file are gone;
// the next sign-in merge covers them.
func (rt *runtime) recreate(ctx context.Context) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	log.Warn().Str("path", rt.app.cfg.DBPath).Msg("Database removed, recreating it")
	rt.haltDrainer()
	if err := rt.app.store.Close(); err != nil {
		log.Debug().Err(err).Msg("Closing removed database")
	}

	if err := config.EnsureDataDir(); err != nil {
		log.Error().Err(err).Msg("Failed to recreate data directory")
		return
	}
	store, err := openStore(rt.app.cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to recreate database")
		return
	}
	rt.app.store = store
	rt.app.outbox = cloudsync.NewOutbox(dbgorm.NewOutboxStore(store))
	rt.app.lib.Rebind(ctx, dbgorm.NewLocalStore(store), rt.app.outbox)

	if rt.remote != nil {
		if err := rt.startDrainer(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to restart outbox drainer")
		}
	}
}

// flush makes a last delivery pass before exit.
func (rt *runtime) flush() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.haltDrainer()
	if rt.drainer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.app.cfg.SyncTimeout)
	defer cancel()
	if n, err := rt.drainer.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("Final outbox flush failed")
	} else if n > 0 {
		log.Info().Int("delivered", n).Msg("Outbox flushed")
	}
}

func (rt *runtime) close() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.haltDrainer()
	rt.app.Close()
}
