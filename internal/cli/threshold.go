package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newThresholdCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Read or change the base match threshold",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the base match threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			v, err := c.Threshold(cmd.Context())
			if err != nil {
				return fmt.Errorf("get threshold: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(v, 'f', -1, 64))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Set the base match threshold, a value in [0,1]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil || v < 0 || v > 1 {
				return fmt.Errorf("threshold must be a number in [0,1], got %q", args[0])
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.SetThreshold(cmd.Context(), v); err != nil {
				return fmt.Errorf("set threshold: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "threshold set to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
