package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/config"
	"github.com/kailas-cloud/swarmkb/internal/db"
	"github.com/kailas-cloud/swarmkb/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/swarmkb/internal/db/redis"
	logpkg "github.com/kailas-cloud/swarmkb/internal/logger"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
	budgetrepo "github.com/kailas-cloud/swarmkb/internal/repository/budget"
	documentrepo "github.com/kailas-cloud/swarmkb/internal/repository/document"
	metadatarepo "github.com/kailas-cloud/swarmkb/internal/repository/metadata"
	mirrorrepo "github.com/kailas-cloud/swarmkb/internal/repository/mirror"
	"github.com/kailas-cloud/swarmkb/internal/repository/snapshot"
	chiTransport "github.com/kailas-cloud/swarmkb/internal/transport/chi"
	openaiExt "github.com/kailas-cloud/swarmkb/internal/transport/openai"
	"github.com/kailas-cloud/swarmkb/internal/transport/peer"
	cataloguc "github.com/kailas-cloud/swarmkb/internal/usecase/catalog"
	"github.com/kailas-cloud/swarmkb/internal/usecase/enrichment"
	"github.com/kailas-cloud/swarmkb/internal/usecase/evaluator"
	healthuc "github.com/kailas-cloud/swarmkb/internal/usecase/health"
	queryuc "github.com/kailas-cloud/swarmkb/internal/usecase/query"
	"github.com/kailas-cloud/swarmkb/internal/usecase/verifier"
	"github.com/kailas-cloud/swarmkb/internal/version"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the node HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			base, err := logpkg.NewLogger(flags.env, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			logger := logpkg.WithNode(base, cfg.Cluster.NodeID, cfg.Cluster.Context)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting swarmkb node",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Int("peers", len(cfg.Cluster.Peers)),
		zap.Bool("mirror", cfg.Mirror.DSN != ""),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,

		ClientName: "swarmkb-" + cfg.Cluster.NodeID,
	})
	if err != nil {
		return fmt.Errorf("create log store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("log store not ready: %w", err)
	}
	logger.Info("Connected to log store")

	metrics.RegisterCatalogMetrics()

	mirrorDB, err := openMirror(ctx, cfg.Mirror, logger)
	if err != nil {
		return err
	}
	if mirrorDB != nil {
		defer func() { _ = mirrorDB.Close() }()
	}

	// Pass nil interfaces (not typed nil pointers) when the mirror is absent.
	var (
		mirror       enrichment.Mirror
		templates    cataloguc.TemplateIndex
		schema       verifier.SchemaInspector
		sqlRunner    chiTransport.SQLRunner
		mirrorPinger healthuc.MirrorPinger
	)
	if mirrorDB != nil {
		repo := mirrorrepo.New(mirrorDB)
		mirror, templates, schema, sqlRunner, mirrorPinger = repo, repo, repo, repo, mirrorDB
	}

	snap := snapshot.New()
	docRepo := documentrepo.New(store).WithCache(snap)
	metaRepo := metadatarepo.New(docRepo, store)
	evalSvc := evaluator.New(snap)

	pipeline := enrichment.New(metaRepo, mirror, buildExtractor(ctx, cfg.Enrichment, store, logger), logger).
		WithRetry(enrichment.RetryPolicy{
			MaxAttempts:    cfg.Enrichment.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Enrichment.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Enrichment.MaxBackoffMS) * time.Millisecond,
		}).
		WithWorkers(cfg.Enrichment.Workers).
		WithWriteTimeout(time.Duration(cfg.Enrichment.WriteTimeoutMS) * time.Millisecond).
		WithNodeID(cfg.Cluster.NodeID)

	catalogSvc := cataloguc.New(docRepo, evalSvc, snap, logger).
		WithEnricher(pipeline).
		WithTemplateIndex(templates).
		WithNodeID(cfg.Cluster.NodeID)

	warmed, err := catalogSvc.Warm(ctx, nil)
	if err != nil {
		return fmt.Errorf("warm snapshot: %w", err)
	}
	logger.Info("Snapshot warmed", zap.Int("documents", warmed))

	peerTimeout := time.Duration(cfg.Cluster.PeerTimeoutMS) * time.Millisecond
	remotes, err := peer.FromConfig(cfg.Cluster.Peers, cfg.Cluster.Context, peerTimeout, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("configure peers: %w", err)
	}

	querySvc := queryuc.New(evalSvc, peer.QueryPeers(remotes), logger).
		WithBudget(time.Duration(cfg.Cluster.TimeBudgetMS) * time.Millisecond).
		WithPeerTimeout(peerTimeout).
		WithQuorum(cfg.Cluster.QuorumN)

	verifierSvc := verifier.New(schema, logger).WithTimeout(peerTimeout)
	replicas := append(
		[]verifier.Peer{verifier.LocalPeer{NodeID: cfg.Cluster.NodeID, Finder: metaRepo}},
		peer.VerifierPeers(remotes)...,
	)

	go pipeline.RunReconciler(ctx, time.Duration(cfg.Enrichment.ReconcileIntervalSec)*time.Second)

	server := chiTransport.NewServer(chiTransport.Services{
		Catalog:    catalogSvc,
		Query:      querySvc,
		Metadata:   pipeline,
		SQL:        sqlRunner,
		Verifier:   verifierSvc,
		Replicas:   replicas,
		Health:     healthuc.New(store, mirrorPinger).WithBacklog(pipeline, healthBacklogThreshold),
		Enrichment: pipeline,
	}, cfg.Cluster.NodeID, logger).
		WithMaxBodyBytes(int64(cfg.HTTP.MaxBodyMB) << 20)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(cfg.Cluster.Context, cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr), zap.String("context", cfg.Cluster.Context))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := pipeline.Close(shutdownCtx); err != nil {
		logger.Warn("Enrichment tasks still running at shutdown", zap.Error(err))
	}

	logger.Info("Node stopped gracefully")
	return nil
}

// openMirror connects the relational mirror, or returns nil when none is configured.
func openMirror(ctx context.Context, cfg config.MirrorConfig, logger *zap.Logger) (*sql.DB, error) {
	if cfg.DSN == "" {
		logger.Info("Relational mirror disabled")
		return nil, nil
	}
	conn, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DSN, MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	if cfg.AutoMigrate {
		if err := postgres.Migrate(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate mirror: %w", err)
		}
		logger.Info("Mirror schema is current")
	}
	return conn, nil
}

// healthBacklogThreshold is the mirror repair backlog above which the node reports degraded.
const healthBacklogThreshold = 1000

// buildExtractor picks the LLM extractor when a provider key is configured.
// Token counters live in the primary store so restarts keep the spend.
func buildExtractor(ctx context.Context, cfg config.EnrichmentConfig, store db.Store, logger *zap.Logger) enrichment.Extractor {
	if cfg.LLM.APIKey == "" {
		return enrichment.RuleExtractor{}
	}
	logger.Info("LLM metadata extraction enabled", zap.String("model", cfg.LLM.Model))

	extCfg := &openaiExt.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	}
	if cfg.LLM.DailyTokenLimit > 0 || cfg.LLM.MonthlyTokenLimit > 0 || cfg.LLM.StoreDailyTokenLimit > 0 {
		action, err := enrichment.ParseBudgetAction(cfg.LLM.BudgetAction)
		if err != nil {
			action = enrichment.BudgetActionWarn
		}
		budget := enrichment.NewExtractionBudget(cfg.LLM.Model, enrichment.BudgetLimits{
			Daily:      cfg.LLM.DailyTokenLimit,
			Monthly:    cfg.LLM.MonthlyTokenLimit,
			StoreDaily: cfg.LLM.StoreDailyTokenLimit,
			Action:     action,
		}, logger).WithStore(budgetrepo.New(store))
		logger.Info("llm token budget", zap.Any("used", budget.Used(ctx, "")))
		extCfg.Budget = budget
	}
	return openaiExt.NewExtractor(enrichment.RuleExtractor{}, extCfg)
}
