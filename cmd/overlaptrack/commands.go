package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/banshee-data/overlaptrack/internal/config"
	"github.com/banshee-data/overlaptrack/internal/db"
	"github.com/banshee-data/overlaptrack/internal/ingest"
	"github.com/banshee-data/overlaptrack/internal/monitoring"
	"github.com/banshee-data/overlaptrack/internal/overlap"
	"github.com/banshee-data/overlaptrack/internal/overlap/export"
	"github.com/banshee-data/overlaptrack/internal/storage/sqlite"
	"github.com/banshee-data/overlaptrack/internal/version"
)

type runOptions struct {
	input      string
	configPath string
	dbPath     string
	out        string
	label      string
	metricsOut string
	tolerance  float64
	attribute  string
	threads    int
	allCores   bool
	debug      int
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "overlaptrack",
		Short:        "Track labelled point regions across snapshots by spatial overlap",
		Version:      version.String(),
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newRunsCmd(), newShowCmd(), newDeleteCmd(), newMigrateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a snapshot file and write the tracking graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runTracking(ctx, cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.input, "input", "", "snapshot file (.json, .ndjson or .jsonl)")
	f.StringVar(&opts.configPath, "config", "", "tracking config JSON file")
	f.StringVar(&opts.dbPath, "db", "", "sqlite database to store the run in")
	f.StringVar(&opts.out, "out", "", "output file for the mesh JSON (default stdout)")
	f.StringVar(&opts.label, "label", "", "label recorded with the stored run")
	f.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus metrics in text format to this file")
	f.Float64Var(&opts.tolerance, "tolerance", 0, "override spatial_tolerance")
	f.StringVar(&opts.attribute, "attribute", "", "override label_attribute_name")
	f.IntVar(&opts.threads, "threads", 0, "override thread_number")
	f.BoolVar(&opts.allCores, "all-cores", false, "override use_all_cores")
	f.IntVar(&opts.debug, "debug", 0, "override debug_level")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(cmd *cobra.Command, opts *runOptions) (*config.TrackingConfig, error) {
	cfg := config.DefaultTrackingConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadTrackingConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(loaded)
	}

	override := config.EmptyTrackingConfig()
	flags := cmd.Flags()
	if flags.Changed("tolerance") {
		override.SpatialTolerance = &opts.tolerance
	}
	if flags.Changed("attribute") {
		override.LabelAttributeName = &opts.attribute
	}
	if flags.Changed("threads") {
		override.ThreadNumber = &opts.threads
	}
	if flags.Changed("all-cores") {
		override.UseAllCores = &opts.allCores
	}
	if flags.Changed("debug") {
		override.DebugLevel = &opts.debug
	}
	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runTracking(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}
	monitoring.SetDebugLevel(cfg.GetDebugLevel())

	inputs, err := ingest.ReadFile(opts.input, cfg.GetLabelAttributeName())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	tracker, err := overlap.New(overlap.ConfigFromTracking(cfg),
		overlap.WithMetrics(monitoring.NewMetrics(reg)),
		overlap.WithProgress(func(p float64) {
			monitoring.Debugf(2, "[overlaptrack] progress %.0f%%", 100*p)
		}),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := tracker.ProcessSequence(ctx, inputs); err != nil {
		return err
	}
	mesh, err := tracker.Finalize()
	if err != nil {
		return err
	}
	monitoring.Logf("[overlaptrack] %d snapshots -> %d nodes, %d edges in %s",
		len(inputs), mesh.NodeCount(), mesh.EdgeCount(), time.Since(start).Round(time.Millisecond))

	if opts.metricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.metricsOut, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if opts.dbPath != "" {
		cfgJSON, err := cfg.JSON()
		if err != nil {
			return err
		}
		runID, err := saveRun(ctx, opts.dbPath, opts.label, cfgJSON, mesh)
		if err != nil {
			return err
		}
		monitoring.Logf("[overlaptrack] stored run %s", runID)
	}

	return writeMesh(cmd.OutOrStdout(), opts.out, mesh)
}

func saveRun(ctx context.Context, dbPath, label, cfgJSON string, mesh *export.Mesh) (string, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer database.Close()
	return sqlite.NewGraphStore(database.DB).SaveRun(ctx, label, cfgJSON, mesh)
}

func writeMesh(stdout io.Writer, path string, mesh *export.Mesh) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(mesh); err != nil {
		return fmt.Errorf("encode mesh: %w", err)
	}
	return nil
}

func withStore(dbPath string, fn func(*sqlite.GraphStore) error) error {
	if dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	database, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(sqlite.NewGraphStore(database.DB))
}

func newRunsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored tracking runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(dbPath, func(store *sqlite.GraphStore) error {
				runs, err := store.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN ID\tLABEL\tNODES\tEDGES\tCREATED")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.RunID, r.Label, r.NodeCount, r.EdgeCount,
						time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	return cmd
}

func newShowCmd() *cobra.Command {
	var dbPath, runID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored tracking graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(dbPath, func(store *sqlite.GraphStore) error {
				mesh, err := store.LoadRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return writeMesh(cmd.OutOrStdout(), "", mesh)
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var dbPath, runID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stored tracking run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(dbPath, func(store *sqlite.GraphStore) error {
				if err := store.DeleteRun(cmd.Context(), runID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", runID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			database, err := db.OpenDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			fsys := db.MigrationsFS()

			switch action {
			case "up":
				if err := database.MigrateUp(fsys); err != nil {
					return err
				}
			case "down":
				if err := database.MigrateDown(fsys); err != nil {
					return err
				}
			}

			current, dirty, err := database.MigrateVersion(fsys)
			if err != nil {
				return err
			}
			latest, err := db.LatestMigrationVersion(fsys)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d (dirty: %t)\n", current, latest, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	return cmd
}
