package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/report"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Render the report of a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			missing := config.DefaultMissing
			format := flagFormat
			cfg, err := config.Load(cfgFile)
			switch {
			case err == nil:
				missing = cfg.Report.Missing
				if format == "" {
					format = cfg.Report.Format
				}
			case len(args) == 0:
				return err
			default:
				logger.Debug().Err(err).Msg("no usable config, using defaults")
			}

			var runDir string
			if len(args) > 0 {
				runDir = args[0]
			} else {
				runDir = filepath.Join(cfg.Results.Dir, "latest")
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			return report.Generate(resolved, format, missing, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "", "output format (csv, table, markdown, json)")
	return cmd
}
