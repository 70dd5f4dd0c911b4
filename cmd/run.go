// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/browser"
	"github.com/xkilldash9x/dowser-cli/internal/explorer"
	"github.com/xkilldash9x/dowser-cli/internal/knowledge"
	"github.com/xkilldash9x/dowser-cli/internal/observability"
	"github.com/xkilldash9x/dowser-cli/internal/orchestrator"
	"github.com/xkilldash9x/dowser-cli/internal/reasoning"
	"github.com/xkilldash9x/dowser-cli/internal/store"
)

// newRunCmd creates the `run` command, which explores one target until the
// reasoning core decides to stop.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <target_url>",
		Short: "Explore a target UI and record coherence anomalies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			target := args[0]

			// Flag overrides on top of file/env configuration.
			if headful, _ := cmd.Flags().GetBool("headful"); headful {
				cfg.Browser.Headless = false
			}
			if steps, _ := cmd.Flags().GetInt("max-steps"); cmd.Flags().Changed("max-steps") {
				cfg.Explorer.MaxSteps = steps
			}
			if dir, _ := cmd.Flags().GetString("artifact-dir"); cmd.Flags().Changed("artifact-dir") {
				cfg.Artifact.Dir = dir
			}

			kb, closeKB, err := knowledge.NewClient(ctx, cfg.Knowledge, logger)
			if err != nil {
				return fmt.Errorf("failed to set up knowledge client: %w", err)
			}
			defer closeKB()

			artifacts, closeStores, err := buildArtifactStores(cmd, logger)
			if err != nil {
				return err
			}
			defer closeStores()

			ui := browser.New(ctx, cfg.Browser, logger)
			defer ui.Close()

			engine := reasoning.NewEngine(kb, reasoning.EngineOptions{
				SearchTopK:    cfg.Knowledge.SearchTopK,
				SearchTimeout: cfg.Knowledge.Timeout,
				CoverageSteps: cfg.Explorer.CoverageSteps,
			}, logger)
			driver := explorer.NewDriver(cfg.Explorer, logger)

			orch, err := orchestrator.New(cfg, ui, engine, driver, artifacts, logger)
			if err != nil {
				return err
			}

			artifact, err := orch.Run(ctx, target)
			if err != nil {
				return err
			}

			cmd.Printf("run %s finished: %s (%d steps, %d anomalies)\n",
				artifact.RunID, artifact.StopReason, len(artifact.Steps), len(artifact.Anomalies))
			return nil
		},
	}

	runCmd.Flags().Bool("headful", false, "run the browser with a visible window")
	runCmd.Flags().Int("max-steps", 0, "override the per-run step ceiling")
	runCmd.Flags().String("artifact-dir", "", "override the run artifact directory")
	return runCmd
}

// buildArtifactStores assembles the file store, plus the postgres store when
// database persistence is enabled and a connection string is configured.
func buildArtifactStores(cmd *cobra.Command, logger *zap.Logger) (schemas.ArtifactStore, func(), error) {
	fileStore, err := store.NewFileStore(cfg.Artifact.Dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up artifact store: %w", err)
	}

	if !cfg.Artifact.PersistToDatabase {
		return fileStore, func() {}, nil
	}
	if cfg.Knowledge.URL == "" {
		logger.Warn("artifact.persist_to_database is set but no knowledge.url is configured, writing files only")
		return fileStore, func() {}, nil
	}

	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, cfg.Knowledge.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to artifact database: %w", err)
	}
	pgStore, err := store.NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to set up postgres artifact store: %w", err)
	}
	return store.Combine(fileStore, pgStore), pool.Close, nil
}
