package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/simbench/internal/config"
	"github.com/signalnine/simbench/internal/docker"
	"github.com/signalnine/simbench/internal/engine"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and every engine's paths",
		Long:  "Load the config, parse every command template and run each engine's pre-flight check, including a local image lookup for container engines. Pre-flight failures are reported but only an invalid config fails the command.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			reg, err := engine.FromConfig(cfg)
			if err != nil {
				return fmt.Errorf("invalid config %s: %w", cfgFile, err)
			}
			out := cmd.OutOrStdout()
			images := &docker.Executor{Log: logger}
			fmt.Fprintf(out, "config %s: ok (%d engines)\n", cfgFile, len(reg.All()))
			for _, s := range reg.All() {
				if !s.Enabled {
					fmt.Fprintf(out, "  %-24s disabled\n", s.ID())
					continue
				}
				err := s.Preflight()
				if c, ok := s.Launch.(*engine.ContainerLaunch); ok && err == nil {
					err = images.CheckImage(cmd.Context(), c.Image)
				}
				if err != nil {
					fmt.Fprintf(out, "  %-24s FAIL  %v\n", s.ID(), err)
					continue
				}
				fmt.Fprintf(out, "  %-24s ok    %s\n", s.ID(), s.Launch.Describe())
			}
			return nil
		},
	}
}
