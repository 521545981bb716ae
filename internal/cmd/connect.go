package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cdviz-collector/cdviz-collector/internal/connect"
)

func newConnectCmd() *cobra.Command {
	var directory string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run sources and sinks against a shared bus until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return connect.Run(cmd.Context(), connect.Options{
				ConfigPath: resolveConfigPath(),
				Directory:  directory,
			})
		},
	}

	cmd.Flags().StringVarP(&directory, "directory", "C", "", "change to this directory after loading config")
	return cmd
}
