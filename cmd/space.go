package cmd

import (
	"github.com/spf13/cobra"
)

func newSpaceCmd() *cobra.Command {
	var (
		tf       targetFlags
		fidelity bool
	)
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Print the configuration or fidelity space of an instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, release, err := tf.open(ctx)
			if err != nil {
				return err
			}
			defer release()

			get := b.ConfigurationSpace
			if fidelity {
				get = b.FidelitySpace
			}
			space, err := get(ctx, tf.seed)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), space)
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&fidelity, "fidelity", false, "print the fidelity space instead")
	return cmd
}
