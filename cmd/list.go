package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/runner"
	"github.com/signalnine/hpobench/internal/surrogate"
	"github.com/signalnine/hpobench/internal/yahpo"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List benchmarks, scenarios and configured sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			so, err := runner.SurrogateOptions(appCfg)
			if err != nil {
				return err
			}
			catalog := so.Catalog
			if catalog == nil {
				catalog = surrogate.DefaultCatalog()
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Benchmarks:")
			fmt.Fprintf(out, "  - %s\n  - %s\n", yahpo.BenchmarkName, yahpo.RBv2BenchmarkName)

			fmt.Fprintf(out, "\nScenarios (%s):\n", appCfg.DataDir)
			for _, name := range catalog.Names() {
				set, err := surrogate.Open(name, so)
				if err != nil {
					fmt.Fprintf(out, "  - %s (no data)\n", name)
					continue
				}
				fmt.Fprintf(out, "  - %s (%d instances)\n", name, len(set.Instances()))
				set.Close()
			}

			if len(appCfg.Sweeps) > 0 {
				fmt.Fprintln(out, "\nSweeps:")
				for _, s := range appCfg.Sweeps {
					fmt.Fprintf(out, "  - %s: %s %v x %d samples\n", s.Name, s.Scenario, s.Instances, s.Samples)
				}
			}
			return nil
		},
	}
}
