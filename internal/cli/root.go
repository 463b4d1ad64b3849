// Package cli defines the Cobra commands of the interview terminal client.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ashureev/mock-interview/internal/agent"
	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/ashureev/mock-interview/internal/config"
	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/ashureev/mock-interview/internal/scene"
	"github.com/ashureev/mock-interview/internal/store"
	"github.com/spf13/cobra"
)

// OwnerID is the storage owner used for sessions created from the terminal.
const OwnerID = "cli"

type rootOptions struct {
	dbPath     string
	scenesPath string
	owner      string
	verbose    bool
}

// NewRootCmd creates the interview command tree. cfg supplies flag defaults
// and the reply delay.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "interview",
		Short: "Practice technical interviews from the terminal",
		Long: `interview drives the mock-interview chat engine against the same
SQLite database as the web server. Sessions created here are stored under
their own owner id and survive restarts.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", cfg.DBPath, "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&opts.scenesPath, "scenes", cfg.ScenesPath, "Scene catalog YAML (embedded catalog if empty)")
	rootCmd.PersistentFlags().StringVar(&opts.owner, "owner", OwnerID, "Owner id the sessions are stored under")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Log engine activity to stderr")

	rootCmd.AddCommand(newScenesCmd(opts))
	rootCmd.AddCommand(newSessionsCmd(cfg, opts))
	rootCmd.AddCommand(newClearCmd(cfg, opts))
	rootCmd.AddCommand(newChatCmd(cfg, opts))

	return rootCmd
}

// workspace is an orchestrator opened on the SQLite database.
type workspace struct {
	catalog *scene.Catalog
	orch    *chat.Orchestrator
	repo    store.Repository
}

func openWorkspace(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *rootOptions, sceneID string) (*workspace, error) {
	logger := newLogger(cmd.ErrOrStderr(), opts.verbose)

	catalog, err := scene.Load(opts.scenesPath)
	if err != nil {
		return nil, err
	}
	if sceneID == "" {
		sceneID = cfg.DefaultScene
	}
	if sceneID == "" {
		sceneID = catalog.DefaultSceneID()
	}
	if !catalog.Has(sceneID) {
		return nil, fmt.Errorf("scene %q is not in the catalog", sceneID)
	}

	repo, err := store.NewSQLite(opts.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	now := time.Now()
	if err := repo.UpsertUser(ctx, &domain.User{
		UserID:     opts.owner,
		Username:   opts.owner,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("register owner: %w", err)
	}

	replier := agent.NewService(
		agent.NewCannedReplier(catalog, agent.DelayConfig{Min: cfg.ReplyDelay.Min, Max: cfg.ReplyDelay.Max}),
		cfg.ReplyDelay.Timeout,
		logger,
	)
	sessions := chat.NewStore(catalog, store.NewOwnerStorage(repo, opts.owner),
		chat.WithStoreLogger(logger),
		chat.WithSyncPersistence(),
	)
	orch := chat.NewOrchestrator(sessions, replier, catalog,
		chat.WithLogger(logger),
		chat.WithInitialScene(sceneID),
	)
	orch.Restore(ctx)

	return &workspace{catalog: catalog, orch: orch, repo: repo}, nil
}

func (w *workspace) Close() error {
	orchErr := w.orch.Close()
	if err := w.repo.Close(); err != nil {
		return err
	}
	return orchErr
}

func newLogger(out io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
