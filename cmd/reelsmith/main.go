package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/config"
	"github.com/TobiSchelling/reelsmith/internal/database"
	"github.com/TobiSchelling/reelsmith/internal/logging"
	"github.com/TobiSchelling/reelsmith/internal/moderate"
	"github.com/TobiSchelling/reelsmith/internal/pipeline"
	"github.com/TobiSchelling/reelsmith/internal/server"
	"github.com/TobiSchelling/reelsmith/internal/worker"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reelsmith",
	Short:   "Turn trending posts into short vertical videos",
	Long:    "Reelsmith collects, scores, sanitizes and moderates social posts, then scripts, narrates and renders them as short videos.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(flaggedCmd)
	rootCmd.AddCommand(cleanupCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reelsmith", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/reelsmith/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure channels and feeds. API keys are read from the environment (GEMINI_API_KEY or GEMINI_API_KEYS_FILE).")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and workspace status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ws, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Data: %s\n\n", cfg.GetDataDir())
		fmt.Println("Candidates:")
		fmt.Printf("  Total: %d\n", stats.TotalCandidates)
		fmt.Printf("  Unreviewed: %d\n", stats.Unreviewed)
		fmt.Printf("  Passed: %d\n", stats.Passed)
		fmt.Printf("  Flagged: %d (%d awaiting review)\n", stats.Flagged, stats.OpenFlags)
		fmt.Println("\nOutput:")
		fmt.Printf("  Scripts: %d\n", stats.Scripts)

		videos, err := ws.ListFiles(workspace.Output, ".mp4")
		if err != nil {
			return err
		}
		var total int64
		for _, v := range videos {
			total += v.Size
		}
		fmt.Printf("  Videos: %d (%s)\n", len(videos), humanize.Bytes(uint64(total)))

		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		if stats.LastRunAt != nil {
			if t, err := time.Parse(time.RFC3339, *stats.LastRunAt); err == nil {
				fmt.Printf("  Last: %s\n", humanize.Time(t))
			}
		}
		return nil
	},
}

// --- run command ---

var force bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline once: " + strings.Join(pipeline.Stages, " -> "),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, ws, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.Build(cfg, db, ws, logger)
		if err != nil {
			return err
		}
		result, err := pipe.Run(ctx, pipeline.Options{Force: force})
		if err != nil {
			return err
		}

		for i, step := range result.Steps {
			printStep(i+1, len(result.Steps), step)
		}
		fmt.Printf("\nRun %s complete. Run 'reelsmith serve' to review the output.\n", result.RunID)
		return nil
	},
}

var stageCmd = &cobra.Command{
	Use:       "stage [name]",
	Short:     "Run a single pipeline stage",
	Args:      cobra.ExactArgs(1),
	ValidArgs: pipeline.Stages,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, ws, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.Build(cfg, db, ws, logger)
		if err != nil {
			return err
		}
		step, err := pipe.RunStage(ctx, args[0], pipeline.Options{Force: force})
		if err != nil {
			return err
		}
		printStep(1, 1, step)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&force, "force", false, "Regenerate outputs that already exist")
	stageCmd.Flags().BoolVar(&force, "force", false, "Regenerate outputs that already exist")
}

func printStep(n, total int, step pipeline.StepResult) {
	fmt.Printf("\nStep %d/%d: %s\n", n, total, step.Name)
	if step.Summary != "" {
		fmt.Printf("  %s\n", step.Summary)
	}
	if step.Err != nil {
		fmt.Printf("  Error: %v\n", step.Err)
	}
}

// --- worker command ---

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline now and then on the configured interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, ws, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.Build(cfg, db, ws, logger)
		if err != nil {
			return err
		}
		return worker.New(pipe, cfg.Worker.Interval, logger.Named("worker")).Start(ctx)
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local review dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		db, ws, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv, err := server.NewHTTPServer(db, ws, port, logger.Named("server"))
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- flagged command ---

var flaggedCmd = &cobra.Command{
	Use:   "flagged",
	Short: "Review quarantined candidates",
}

var flaggedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flagged candidates awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		flags, err := db.ListFlags()
		if err != nil {
			return err
		}
		if len(flags) == 0 {
			fmt.Println("Nothing in quarantine.")
			return nil
		}

		fmt.Println("Flagged:")
		fmt.Println()
		for _, f := range flags {
			title := ""
			if c, err := db.GetCandidate(f.CandidateID); err == nil && c != nil {
				title = c.Title
				if len(title) > 60 {
					title = title[:60] + "..."
				}
			}
			fmt.Printf("  [%s] %s\n", f.CandidateID, title)
			fmt.Printf("        %s\n", strings.Join(f.Reasons, "; "))
		}
		return nil
	},
}

var flaggedResolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Discard a flagged candidate after review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, ws, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := moderate.Resolve(db, ws, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("flag %s not found", args[0])
		}
		fmt.Printf("Resolved [%s]\n", args[0])
		return nil
	},
}

func init() {
	flaggedCmd.AddCommand(flaggedListCmd)
	flaggedCmd.AddCommand(flaggedResolveCmd)
}

// --- cleanup command ---

var maxAgeHours float64

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete workspace files older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspace.New(cfg.WorkspaceDir())
		if err != nil {
			return err
		}
		hours := cfg.Retention.MaxAgeHours
		if cmd.Flags().Changed("max-age-hours") {
			hours = maxAgeHours
		}
		r := ws.Cleanup(time.Duration(hours*float64(time.Hour)), time.Now(), logger)
		fmt.Printf("Deleted %d files, removed %d directories (%d errors)\n", r.FilesDeleted, r.DirsRemoved, r.Errors)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Float64Var(&maxAgeHours, "max-age-hours", 168, "Delete files older than this many hours")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore() (*database.DB, *workspace.Workspace, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(cfg.DatabasePath(), logger.Named("database"))
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.New(cfg.WorkspaceDir())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, ws, nil
}
