package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luminara-labs/luminara/internal/assistant/gemini"
	"github.com/luminara-labs/luminara/internal/controlplane"
	"github.com/luminara-labs/luminara/internal/executor"
	"github.com/luminara-labs/luminara/internal/persist"
	"github.com/luminara-labs/luminara/internal/scheduler"
	"github.com/luminara-labs/luminara/internal/store"
)

var (
	listenAddr       string
	dbPath           string
	geminiAPIKey     string
	geminiModel      string
	schedulerConfig  string
	snapshotInterval time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Luminara daemon",
	Long:  `Starts the Luminara daemon which provides the HTTP API for agents, chat, and task execution.`,
	RunE:  runDaemon,
}

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".luminara", "luminara.db")

	daemonCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8090", "Listen address for the API server")
	daemonCmd.Flags().StringVar(&dbPath, "db", defaultDB, "Path to SQLite database")
	daemonCmd.Flags().StringVar(&geminiAPIKey, "api-key", "", "Gemini API key (defaults to GEMINI_API_KEY)")
	daemonCmd.Flags().StringVar(&geminiModel, "model", gemini.DefaultModel, "Gemini model name")
	daemonCmd.Flags().StringVar(&schedulerConfig, "scheduler-config", "", "Path to scheduler YAML config")
	daemonCmd.Flags().DurationVar(&snapshotInterval, "snapshot-interval", 30*time.Second, "How often agent snapshots are persisted")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	apiKey := geminiAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("gemini api key required: set --api-key or GEMINI_API_KEY")
	}

	db, err := persist.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open snapshot db: %w", err)
	}

	s := store.New()
	agents, err := db.LoadAgents()
	if err != nil {
		db.Close()
		return fmt.Errorf("load agents: %w", err)
	}
	for _, agent := range agents {
		s.Add(agent)
	}
	logger.Info("loaded agent snapshots", zap.Int("count", len(agents)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asst, err := gemini.New(ctx, apiKey, geminiModel, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("init gemini client: %w", err)
	}

	exec := executor.New(s, executor.NewSimulated(), logger)
	service := controlplane.NewService(s, asst, exec, controlplane.Defaults{}, logger)
	server := controlplane.NewServer(service, listenAddr, logger)

	schedCfg := scheduler.DefaultConfig()
	if schedulerConfig != "" {
		schedCfg, err = scheduler.LoadConfig(schedulerConfig)
		if err != nil {
			db.Close()
			return err
		}
	}
	sched := scheduler.New(s, exec, schedCfg, logger)
	sched.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snapshotAll(s, db, logger)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()

	sched.Stop()
	snapshotAll(s, db, logger)

	if closeErr := db.Close(); closeErr != nil {
		logger.Warn("close snapshot db", zap.Error(closeErr))
	}

	logger.Info("shutdown complete")
	return err
}

// snapshotAll persists the full agent set, archived agents included.
func snapshotAll(s *store.Store, db *persist.DB, logger *zap.Logger) {
	for _, agent := range s.List() {
		if err := db.SaveAgent(agent); err != nil {
			logger.Warn("persist agent snapshot",
				zap.String("agent_id", agent.ID),
				zap.Error(err))
		}
	}
}
