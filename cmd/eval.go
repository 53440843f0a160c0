package cmd

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/benchmark"
)

func newEvalCmd() *cobra.Command {
	var (
		tf           targetFlags
		configJSON   string
		fidelityJSON string
		sample       bool
		test         bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one configuration",
		Long: "Evaluate a configuration given as JSON, or one sampled from the seeded configuration space, " +
			"and print the result record.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (configJSON == "") == !sample {
				return errors.New("exactly one of --config-json and --sample is required")
			}
			cfg, err := parseConfiguration(configJSON)
			if err != nil {
				return err
			}
			fidelity, err := parseConfiguration(fidelityJSON)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			b, release, err := tf.open(ctx)
			if err != nil {
				return err
			}
			defer release()

			if sample {
				cs, err := b.ConfigurationSpace(ctx, tf.seed)
				if err != nil {
					return err
				}
				cfg = cs.Sample()
				log.WithField("configuration", cfg).Debug("Sampled configuration")
			}

			eval := b.ObjectiveFunction
			if test {
				eval = b.ObjectiveFunctionTest
			}
			res, err := eval(ctx, cfg, fidelity, benchmark.WithSeed(tf.seed))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Configuration map[string]any `json:"configuration"`
				*benchmark.Result
			}{cfg, res})
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVar(&configJSON, "config-json", "", "configuration as a JSON object")
	cmd.Flags().StringVar(&fidelityJSON, "fidelity-json", "", "fidelity as a JSON object; missing values take defaults")
	cmd.Flags().BoolVar(&sample, "sample", false, "sample the configuration from the space seeded with --seed")
	cmd.Flags().BoolVar(&test, "test", false, "use the test objective")
	return cmd
}
