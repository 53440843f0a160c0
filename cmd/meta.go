package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/yahpo"
)

func newMetaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meta",
		Short: "Print the benchmark meta information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), yahpo.MetaInformation())
		},
	}
}
