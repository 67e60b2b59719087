package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

func newEnrollCommand(opts *options) *cobra.Command {
	var regNo, name, eyePath, thumbPath string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a new identity from an eye and a thumb capture",
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
			id, err := c.Enroll(cmd.Context(), regNo, name, eye, thumb)
			if err != nil {
				return fmt.Errorf("enroll: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: identity %d (%s, %s)\n",
				id.Message, id.IdentityID, id.RegistrationNumber, id.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&regNo, "reg", "", "registration number")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("reg")
	_ = cmd.MarkFlagRequired("name")
	addCaptureFlags(cmd, &eyePath, &thumbPath)
	return cmd
}

func newReenrollCommand(opts *options) *cobra.Command {
	var eyePath, thumbPath string

	cmd := &cobra.Command{
		Use:   "reenroll <identity-id>",
		Short: "Replace both templates of an enrolled identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid identity id %q", args[0])
			}
			eye, thumb, err := readCaptures(eyePath, thumbPath)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ident, err := c.Reenroll(cmd.Context(), id, eye, thumb)
			if err != nil {
				return fmt.Errorf("reenroll: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: identity %d\n", ident.Message, ident.IdentityID)
			return nil
		},
	}
	addCaptureFlags(cmd, &eyePath, &thumbPath)
	return cmd
}

func newIdentitiesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "identities",
		Short: "List enrolled identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ids, err := c.Identities(cmd.Context())
			if err != nil {
				return fmt.Errorf("list identities: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No identities enrolled.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tREGISTRATION\tNAME\tENROLLED")
			for _, id := range ids {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", id.IdentityID, id.RegistrationNumber, id.Name,
					id.CreatedAt.Local().Format(timeLayout))
			}
			return w.Flush()
		},
	}
}
