package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/simbench/internal/command"
	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/docker"
	"github.com/signalnine/simbench/internal/engine"
	"github.com/signalnine/simbench/internal/matrix"
	"github.com/signalnine/simbench/internal/process"
	"github.com/signalnine/simbench/internal/report"
	"github.com/signalnine/simbench/internal/result"
	"github.com/signalnine/simbench/internal/runner"
)

var (
	flagEngine    string
	flagCategory  string
	flagSteps     int
	flagTimeout   time.Duration
	flagOutput    string
	flagRunFormat string
	flagDryRun    bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark sweep",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagEngine, "engine", "", "filter to one engine (name or name/model_type)")
	cmd.Flags().StringVar(&flagCategory, "category", "", "filter to ModelScaling or WorldScaling")
	cmd.Flags().IntVar(&flagSteps, "steps", 0, "override step count for every engine")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "override per-scenario timeout")
	cmd.Flags().StringVar(&flagOutput, "output", "", "copy the CSV report to this path")
	cmd.Flags().StringVar(&flagRunFormat, "format", "", "summary format printed to stdout (csv, table, markdown, json)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the scenario plan without running anything")
	return cmd
}

// plan loads the configuration and enumerates the filtered scenarios.
func plan(engineFilter, categoryFilter string) (*config.Config, *engine.Registry, []*matrix.RunContext, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	applyOverrides(cfg, flagSteps, flagTimeout)
	reg, err := engine.FromConfig(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	engines := reg.Select(engineFilter)
	if engineFilter != "" && len(engines) == 0 {
		return nil, nil, nil, fmt.Errorf("no enabled engine matches %q", engineFilter)
	}
	category, err := matrix.ParseCategory(categoryFilter)
	if err != nil {
		return nil, nil, nil, err
	}
	scenarios, err := matrix.FromConfig(cfg).Enumerate(engines, matrix.Filter{Category: category})
	if err != nil {
		logger.Warn().Err(err).Msg("model discovery")
	}
	return cfg, reg, scenarios, nil
}

func applyOverrides(cfg *config.Config, steps int, timeout time.Duration) {
	if steps > 0 {
		cfg.Steps = steps
		for i := range cfg.Engines {
			cfg.Engines[i].Steps = 0
		}
	}
	if timeout > 0 {
		cfg.SetTimeout(timeout)
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, _, scenarios, err := plan(flagEngine, flagCategory)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios to run")
	}
	env := process.SnapshotEnviron()
	if flagDryRun {
		return printPlan(os.Stdout, scenarios, env)
	}
	if cmd.Flags().Changed("output") {
		cfg.SetOutput(flagOutput)
	}
	format := cfg.Report.Format
	if flagRunFormat != "" {
		format = flagRunFormat
	}
	if err := config.CheckFormat(format); err != nil {
		return fmt.Errorf("--format: %w", err)
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	logger.Info().Str("run_dir", runDir).Int("scenarios", len(scenarios)).Msg("starting sweep")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner.Runner{
		Local:           &process.Local{},
		Container:       &docker.Executor{Log: logger},
		Env:             env,
		Log:             logger,
		RunDir:          runDir,
		DiagnosticLimit: cfg.Report.DiagnosticLimit,
	}
	agg := result.NewAggregator()
	sweepErr := r.Sweep(ctx, scenarios, agg)
	if len(agg.Rows()) == 0 {
		return fmt.Errorf("no scenario produced a row")
	}

	table := report.FromAggregator(agg, cfg.Report.Missing)
	if err := report.WriteCSVFile(table, filepath.Join(runDir, result.ReportFile)); err != nil {
		return err
	}
	if out := cfg.Output(); out != "" {
		if err := report.WriteCSVFile(table, out); err != nil {
			return err
		}
		logger.Info().Str("path", out).Msg("wrote report")
	}
	if err := report.Write(table, format, os.Stdout); err != nil {
		return err
	}
	logger.Info().
		Int("rows", len(agg.Rows())).
		Int("failed", agg.Failures()).
		Int("columns", len(table.Columns)).
		Msg("sweep finished")

	if sweepErr != nil && runner.Interrupted(sweepErr) {
		return fmt.Errorf("interrupted after %d of %d scenarios", len(agg.Rows()), len(scenarios))
	}
	return nil
}

func printPlan(w io.Writer, scenarios []*matrix.RunContext, env process.Environ) error {
	for _, rc := range scenarios {
		inv, err := rc.Engine.Invocation(rc.Params("dry-run"), env)
		if err != nil {
			return err
		}
		line := command.Quote(inv.Argv)
		if inv.Image != "" {
			line = "[" + inv.Image + "] " + line
		}
		var extra []string
		if rc.Engine.LaunchQueue != nil && rc.Scale != matrix.NotApplicable {
			extra = append(extra, rc.Engine.LaunchQueue.Env+"="+rc.Scale)
		}
		if len(extra) > 0 {
			line = strings.Join(extra, " ") + " " + line
		}
		fmt.Fprintf(w, "%s\n    %s\n", rc, line)
	}
	return nil
}
