package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var engineFilter, categoryFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List engines and the scenario matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, scenarios, err := plan(engineFilter, categoryFilter)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENGINE\tLAUNCH\tDIALECT\tENABLED\tWORLD MODE\tLAUNCH QUEUE")
			for _, s := range reg.All() {
				world, queue := "-", "-"
				if s.World != nil {
					world = string(s.World.Mode)
				}
				if s.LaunchQueue != nil {
					queue = fmt.Sprintf("%s=%v", s.LaunchQueue.Env, s.LaunchQueue.Scales)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", s.ID(), s.Launch.Kind(), s.Dialect.Name, s.Enabled, world, queue)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Printf("\nScenarios (%d):\n", len(scenarios))
			tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tENGINE\tCATEGORY\tPOPULATION\tWORLDS\tMODEL\tSTEPS\tSCALE")
			for _, rc := range scenarios {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%d\t%s\n",
					rc.Seq, rc.Engine.ID(), rc.Category, rc.Population, rc.Worlds, rc.ModelFile, rc.Steps, rc.Scale)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&engineFilter, "engine", "", "filter to one engine")
	cmd.Flags().StringVar(&categoryFilter, "category", "", "filter to ModelScaling or WorldScaling")
	return cmd
}
