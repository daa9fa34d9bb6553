// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/api"
	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/database"
	"github.com/EVE-KILL/Thessia-sub001/internal/enrich"
	"github.com/EVE-KILL/Thessia-sub001/internal/esi"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
	"github.com/EVE-KILL/Thessia-sub001/internal/supervisor"
	"github.com/EVE-KILL/Thessia-sub001/internal/supervisor/services"
	ws "github.com/EVE-KILL/Thessia-sub001/internal/websocket"
	"github.com/EVE-KILL/Thessia-sub001/internal/worker"
	"github.com/EVE-KILL/Thessia-sub001/internal/zkb"
)

const (
	// referenceTTL bounds how long static reference rows stay cached.
	referenceTTL = time.Hour
	// referenceSweep is how often expired reference entries are dropped.
	referenceSweep = 5 * time.Minute
	// placeholderRetry is how long an exhausted killmail waits before the
	// delayed sweep queues it again.
	placeholderRetry = time.Hour
)

func main() {
	backfillFrom := flag.String("backfill-from", "", "replay zKillboard history from this day (YYYY-MM-DD) and exit")
	backfillTo := flag.String("backfill-to", "", "last day of the backfill range (YYYY-MM-DD), defaults to -backfill-from")
	flag.Parse()

	// Load configuration first to get logging settings
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

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if *backfillFrom != "" {
		err = runBackfill(ctx, cfg, *backfillFrom, *backfillTo)
	} else {
		err = run(ctx, cfg)
	}
	if err != nil {
		logging.Error().Err(err).Msg("Thessia exited with error")
		os.Exit(1)
	}
}

// infrastructure is what both server and backfill modes open.
type infrastructure struct {
	db         *database.DB
	store      *queue.Store
	killmails  *queue.Queue
	characters *queue.Queue
}

func openInfrastructure(cfg *config.Config) (*infrastructure, error) {
	var tokens *config.TokenEncryptor
	if cfg.Security.TokenSecret != "" {
		enc, err := config.NewTokenEncryptor(cfg.Security.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("token encryption: %w", err)
		}
		tokens = enc
	} else {
		logging.Warn().Msg("security.token_secret is empty, SSO tokens are stored unencrypted")
	}

	db, err := database.New(&cfg.Database, tokens)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := queue.Open(queue.Config{
		Path:          cfg.Queue.Path,
		InMemory:      cfg.Queue.InMemory,
		SyncWrites:    cfg.Queue.SyncWrites,
		LeaseDuration: cfg.Queue.LeaseDuration,
		GCInterval:    cfg.Queue.GCInterval,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		Backoff:       cfg.Queue.Backoff,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open job queue: %w", err)
	}

	infra := &infrastructure{db: db, store: store}
	if infra.killmails, err = store.Queue(models.QueueKillmails); err == nil {
		infra.characters, err = store.Queue(models.QueueCharacters)
	}
	if err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

func (i *infrastructure) Close() {
	if err := i.store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing job queue")
	}
	if err := i.db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}

//nolint:gocyclo // sequential wiring of every component
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().Msg("Starting Thessia with supervisor tree")

	infra, err := openInfrastructure(cfg)
	if err != nil {
		return err
	}
	defer infra.Close()
	logging.Info().Str("db_path", cfg.Database.Path).Str("queue_path", cfg.Queue.Path).Msg("Storage initialized")

	esiClient := esi.NewClient(cfg.ESI)
	ssoClient := esi.NewSSOClient(cfg.SSO)

	reference := enrich.NewCachedReference(infra.db, referenceTTL)
	engine := enrich.NewEngine(reference, infra.db, infra.characters)

	bus, err := initBus(cfg)
	if err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// === DATA LAYER ===
	tree.AddDataService(services.NewFuncService("queue-gc", infra.store.RunGC))
	tree.AddDataService(services.NewFuncService("reference-cache", func(ctx context.Context) error {
		reference.Run(ctx, referenceSweep)
		return ctx.Err()
	}))
	if cfg.Worker.Enabled {
		killmails := worker.NewKillmailProcessor(esiClient, engine, infra.db, bus.publisher)
		characters := worker.NewCharacterProcessor(esiClient, infra.db, reference)
		infra.killmails.OnDrop(worker.ReleasePlaceholders(infra.db, placeholderRetry))
		tree.AddDataService(worker.NewPool(infra.killmails, killmails, cfg.Worker))
		tree.AddDataService(worker.NewPool(infra.characters, characters, cfg.Worker))
		logging.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("Worker pools added to supervisor tree")
	} else {
		logging.Warn().Msg("Workers disabled (worker.enabled=false), queued jobs will not be processed")
	}

	// === INGEST LAYER ===
	addSources(tree, cfg, sourceDeps{
		db:      infra.db,
		queue:   infra.killmails,
		esi:     esiClient,
		sso:     ssoClient,
		redisq:  zkb.NewRedisQClient(cfg.ZKB, cfg.Sources.RedisQInterval),
		feed:    zkb.NewFeed(cfg.ZKB),
		history: zkb.NewHistoryClient(cfg.ZKB),
	})

	// === MESSAGING LAYER ===
	bus.addTo(tree)

	var hub *ws.Hub
	if cfg.Gateway.Enabled {
		hub = ws.NewHub(ws.NewRegistry(), cfg.Gateway.SendBuffer)
		tree.AddMessagingService(hub)
		tree.AddMessagingService(ws.NewBridge(bus.bus, hub))
		logging.Info().Msg("WebSocket gateway added to supervisor tree")
	}

	// === API LAYER ===
	handler := api.NewHandler(hub, infra.db, []api.QueueStats{infra.killmails, infra.characters}, cfg.Gateway.AllowedOrigins)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(cfg.Gateway, handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===
	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// errCh receives exactly once and is never closed.
	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
	return nil
}
