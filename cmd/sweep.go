package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/config"
	"github.com/signalnine/hpobench/internal/report"
	"github.com/signalnine/hpobench/internal/result"
	"github.com/signalnine/hpobench/internal/runner"
)

var (
	flagSweepScenario  string
	flagSweepParallel  int
	flagSweepSamples   int
	flagSweepContainer bool
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the configured random-search sweeps",
		RunE:  runSweeps,
	}
	cmd.Flags().StringVar(&flagSweepScenario, "scenario", "", "only run sweeps over this scenario")
	cmd.Flags().IntVar(&flagSweepParallel, "parallel", 1, "max concurrent targets")
	cmd.Flags().IntVar(&flagSweepSamples, "samples", 0, "override samples per instance")
	cmd.Flags().BoolVar(&flagSweepContainer, "container", false, "run every sweep in containers")
	return cmd
}

func runSweeps(cmd *cobra.Command, args []string) error {
	sweeps := filterSweeps(appCfg.Sweeps, flagSweepScenario)
	if len(sweeps) == 0 {
		return fmt.Errorf("no sweeps configured in %s", cfgFile)
	}
	for i := range sweeps {
		if flagSweepSamples > 0 {
			sweeps[i].Samples = flagSweepSamples
		}
		if flagSweepContainer {
			sweeps[i].Container = true
		}
	}

	opener, err := runner.NewOpener(appCfg)
	if err != nil {
		return err
	}
	runDir, err := result.CreateRunDir(appCfg.Results.Dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run directory: %s\n", runDir)

	store, err := result.OpenStore(filepath.Join(runDir, result.DatabaseFile))
	if err != nil {
		return err
	}
	defer store.Close()

	var jobs []runner.Job
	for i := range sweeps {
		sw := &sweeps[i]
		for _, inst := range sw.Instances {
			inst := inst
			jobs = append(jobs, func(ctx context.Context) error {
				log.Infof("Running %s on %s/%s (%d samples)", sw.Name, sw.Scenario, inst, sw.Samples)
				_, err := runner.RunSweep(ctx, &runner.SweepOpts{
					Sweep:    sw,
					Instance: inst,
					RunDir:   runDir,
					Store:    store,
					Open:     opener,
				})
				if err != nil {
					return fmt.Errorf("%s/%s: %w", sw.Name, inst, err)
				}
				return nil
			})
		}
	}
	for _, err := range runner.RunPool(cmd.Context(), flagSweepParallel, jobs) {
		fmt.Fprintf(out, "  ERROR: %v\n", err)
	}

	fmt.Fprintln(out, "\n--- Results ---")
	return report.Generate(runDir, "table", out)
}

func filterSweeps(sweeps []config.Sweep, scenario string) []config.Sweep {
	var filtered []config.Sweep
	for _, s := range sweeps {
		if scenario != "" && s.Scenario != scenario {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}
