// Recalld is the entity recall daemon: a denormalized, self-healing
// cache over normalized entity tables with exact, fuzzy, vector and
// graph retrieval over one shared index.
//
// Usage:
//
//	# Start with defaults (~/.config/recalld/config.yaml if present)
//	recalld serve
//
//	# Configure via environment
//	RECALLD_SERVER_PORT=9190 RECALLD_STORE_PATH=/var/lib/recalld recalld serve
//
//	# Force a full rebuild of the recall index and exit
//	recalld rebuild --scope acme
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embedding"
	recallhttp "github.com/fyrsmithlabs/recalld/internal/http"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/query"
	"github.com/fyrsmithlabs/recalld/internal/rebuild"
	"github.com/fyrsmithlabs/recalld/internal/source"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "recalld",
		Short: "recalld - self-healing entity recall daemon",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/recalld/config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("recalld %s (%s)\n", version, gitCommit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recall daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.AddCommand(serveCmd)

	var rebuildScope string
	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the recall index from the source store and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(configPath, rebuildScope)
		},
	}
	rebuildCmd.Flags().StringVar(&rebuildScope, "scope", "", "rebuild only this scope (default: all scopes)")
	rootCmd.AddCommand(rebuildCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// components wires the full daemon from config.
type components struct {
	logger   *zap.Logger
	store    *source.Store
	index    *cache.Store
	vectors  *embedding.Index
	engine   *query.Engine
	state    *rebuild.State
	executor *rebuild.Executor
	local    *rebuild.LocalNotifier
	coord    *rebuild.Coordinator
	cfg      *config.Config
}

func wire(configPath string) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry := source.NewRegistry()
	for _, kind := range source.DefaultKinds() {
		if err := registry.Register(kind); err != nil {
			return nil, err
		}
	}

	index := cache.NewStore()
	store, err := source.Open(source.Config{Path: cfg.Store.Path, InMemory: cfg.Store.InMemory}, registry, index, logger.Named("source"))
	if err != nil {
		return nil, err
	}

	vectorIndex, err := embedding.NewIndex(embedding.Config{Path: cfg.Vectors.Path, Compress: cfg.Vectors.Compress}, logger.Named("vectors"))
	if err != nil {
		store.Close()
		return nil, err
	}

	state := rebuild.NewState()
	executor, err := rebuild.NewExecutor(store, index, state, logger.Named("rebuild"))
	if err != nil {
		store.Close()
		return nil, err
	}
	local := rebuild.NewLocalNotifier(executor, logger.Named("rebuild"))

	// Dispatch order: remote rebuild service first when configured,
	// local background executor as fallback.
	var notifiers []rebuild.Notifier
	if cfg.Rebuild.RemoteEndpoint != "" {
		notifiers = append(notifiers, rebuild.NewRemoteNotifier(cfg.Rebuild.RemoteEndpoint, cfg.Rebuild.Secret))
	}
	notifiers = append(notifiers, local)

	coord := rebuild.NewCoordinator(index, state, notifiers, cfg.Rebuild.DebounceWindow.Duration(), logger.Named("rebuild"))
	coord.SetGlobal(cfg.Rebuild.Global)

	engine, err := query.NewEngine(index, store, vectorIndex, coord, query.Options{
		FuzzyThreshold: cfg.Query.FuzzyThreshold,
		FuzzyLimit:     cfg.Query.FuzzyLimit,
		MinSimilarity:  cfg.Query.MinSimilarity,
		SearchLimit:    cfg.Query.SearchLimit,
		MaxDepth:       cfg.Query.MaxDepth,
	}, logger.Named("query"))
	if err != nil {
		store.Close()
		return nil, err
	}

	return &components{
		logger:   logger,
		store:    store,
		index:    index,
		vectors:  vectorIndex,
		engine:   engine,
		state:    state,
		executor: executor,
		local:    local,
		coord:    coord,
		cfg:      cfg,
	}, nil
}

func runServe(configPath string) error {
	c, err := wire(configPath)
	if err != nil {
		return err
	}
	defer c.store.Close()
	defer c.logger.Sync() //nolint:errcheck

	// The index is empty on every start; warm it before serving so the
	// first queries do not all report structural misses.
	if _, err := c.executor.Rebuild(context.Background(), ""); err != nil {
		c.logger.Warn("initial index warmup incomplete", zap.Error(err))
	}

	server, err := recallhttp.NewServer(recallhttp.Deps{
		Engine:  c.engine,
		Store:   c.store,
		Vectors: c.vectors,
		Trigger: c.local,
		State:   c.state,
		Secret:  c.cfg.Rebuild.Secret,
	}, c.logger.Named("http"), &recallhttp.Config{
		Host: c.cfg.Server.Host,
		Port: c.cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Drain any in-flight background rebuild before closing the store.
	c.local.Wait()
	return nil
}

func runRebuild(configPath, scopeID string) error {
	c, err := wire(configPath)
	if err != nil {
		return err
	}
	defer c.store.Close()
	defer c.logger.Sync() //nolint:errcheck

	report, err := c.executor.Rebuild(context.Background(), scopeID)
	if err != nil {
		return err
	}
	fmt.Printf("rebuilt %d entries in %s\n", report.Projected, report.Duration)
	return nil
}
