package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/transform"
)

func newTransformCmd() *cobra.Command {
	var (
		transformerRefs []string
		input           string
		output          string
		mode            string
	)

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Run a transformer chain over a directory of JSON fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := transform.Run(cmd.Context(), transform.Options{
				ConfigPath:      resolveConfigPath(),
				TransformerRefs: transformerRefs,
				Input:           input,
				Output:          output,
				Mode:            transform.Mode(mode),
			})
			if err != nil {
				return err
			}
			if !ok {
				return errs.NewExitError(fmt.Errorf("transform: unresolved differences"), errs.ExitDiffDetected)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&transformerRefs, "transformer-refs", "t", []string{"passthrough"}, "transformer chain to run, by name")
	cmd.Flags().StringVarP(&input, "input", "i", ".", "input directory of JSON fixtures")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "output directory for generated and baseline fixtures")
	cmd.Flags().StringVarP(&mode, "mode", "m", "review", "reconciliation mode: review, overwrite, or check")
	return cmd
}
