package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/config"
	"github.com/signalnine/hpobench/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	appCfg   *config.Config
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hpobench",
		Short:        "YAHPO Gym surrogate benchmarks, in-process or in containers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			// An explicit --config must exist.
			if cmd.Flags().Changed("config") {
				appCfg, err = config.Load(cfgFile)
			} else {
				appCfg, err = config.LoadOrDefault(cfgFile)
			}
			if err != nil {
				return err
			}
			level := appCfg.Log.Level
			if logLevel != "" {
				level = logLevel
			}
			return logging.Setup(cmd.ErrOrStderr(), level, appCfg.Log.Format)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	root.AddCommand(newListCmd())
	root.AddCommand(newMetaCmd())
	root.AddCommand(newSpaceCmd())
	root.AddCommand(newEvalCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newReportCmd())
	return root
}
