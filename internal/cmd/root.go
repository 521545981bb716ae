// Package cmd provides CLI command implementations.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cdviz-collector/cdviz-collector/internal/logging"
)

// Global flags shared by every subcommand.
var (
	configFlag  string
	verboseFlag bool
)

// ConfigPathEnvVar is the environment variable consulted when --config is
// not set.
const ConfigPathEnvVar = "CDVIZ_COLLECTOR_CONFIG"

// NewRootCmd creates the root command for the cdviz-collector CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cdviz-collector",
		Short:         "Collect CDEvents from many sources and relay them to many sinks",
		Long:          `cdviz-collector extracts CDEvents from configured sources, transforms them, and relays them to configured sinks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup(verboseFlag)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (env: "+ConfigPathEnvVar+")")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newTransformCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// resolveConfigPath applies flag-over-env precedence for the config path.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return os.Getenv(ConfigPathEnvVar)
}
