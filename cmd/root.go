package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signalnine/simbench/internal/logging"
)

var (
	cfgFile     string
	flagVerbose bool
	logger      = zerolog.Nop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "simbench",
		Short:         "Benchmark harness for physics simulation engines",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(flagVerbose)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "simbench.yaml", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
