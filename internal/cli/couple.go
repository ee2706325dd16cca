package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tingold/geocouple/internal/session"
)

func newCoupleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "couple",
		Short: "Add, list and remove couples",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Add an empty couple",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			c, n, err := a.session.AddCouple()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Couple %d added (%s)\n", n, c.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List couples and the state of their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			couples := a.session.Couples()
			if len(couples) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No couples yet. Add one with: geocouple couple add")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COUPLE\tZONE\tPOINTS\tFIELD")
			for i, c := range couples {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, describe(c.Zone), describe(c.Points), c.Points.Field)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <n>",
		Short: "Remove a couple, its files and manifest entry",
		Long: `Remove a couple, its files and manifest entry. Couples after it move
down one number and their files are renamed to match.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseCouple(args[0])
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			if err := a.session.RemoveCouple(n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Couple %d removed, %d left\n", n, a.session.Len())
			return nil
		},
	})

	return cmd
}

func describe(r session.RoleEntry) string {
	if r.Source.Location == "" {
		return "-"
	}
	state := "pending"
	if r.Verified {
		state = "verified"
	}
	name := r.Name
	if name == "" {
		name = r.Source.Location
	}
	return fmt.Sprintf("%s (%s)", name, state)
}
