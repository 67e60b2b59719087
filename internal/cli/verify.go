package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVerifyCommand(opts *options) *cobra.Command {
	var attemptID, eyePath, thumbPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an eye and thumb capture against the enrolled gallery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eye, thumb, err := readCaptures(eyePath, thumbPath)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			v, err := c.Verify(cmd.Context(), attemptID, eye, thumb)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, v.Message)
			fmt.Fprintf(out, "attempt %s: eye %.1f%%, thumb %.1f%%, total %.1f%%\n",
				v.AttemptID, v.EyeScore, v.ThumbScore, v.TotalScore)
			if v.Matched && v.Identity != nil {
				fmt.Fprintf(out, "matched identity %d (%s, %s) with %s confidence via %s\n",
					v.Identity.IdentityID, v.Identity.RegistrationNumber, v.Identity.Name, v.Confidence, v.Rule)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&attemptID, "attempt-id", "", "idempotency key; generated by the server when empty")
	addCaptureFlags(cmd, &eyePath, &thumbPath)
	return cmd
}

func newAttendanceCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Show recent attendance records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			recs, err := c.Attendance(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("attendance: %w", err)
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No attendance records.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tIDENTITY\tSTATUS\tEYE\tTHUMB\tTIME")
			for _, r := range recs {
				identity := "-"
				if r.IdentityID != nil {
					identity = fmt.Sprint(*r.IdentityID)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%.1f\t%s\n", r.ID, identity, r.Status,
					r.EyeScore, r.ThumbScore, r.Timestamp.Local().Format(timeLayout))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")
	return cmd
}
