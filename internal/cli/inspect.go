package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tingold/geocouple/internal/geodata"
)

func newInspectCmd(e *env) *cobra.Command {
	var src descriptorFlags
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the fields and geometry kinds of a source",
		Long: `Acquire a source without saving it and print what it holds: feature
count, CRS, geometry kinds, the roles it can fill and its attribute names.
Use it to pick the --field of a points role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := src.descriptor()
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			ds, err := a.acquirer.Acquire(cmd.Context(), d)
			if err != nil {
				return err
			}

			var roles []string
			for _, r := range geodata.Roles {
				if geodata.MatchesRole(ds, r) {
					roles = append(roles, string(r))
				}
			}
			if len(roles) == 0 {
				roles = []string{"none"}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source:   %s\n", d)
			fmt.Fprintf(out, "Features: %d\n", ds.Len())
			fmt.Fprintf(out, "CRS:      %s\n", ds.CRS)
			fmt.Fprintf(out, "Kinds:    %s\n", strings.Join(geodata.Kinds(ds), ", "))
			fmt.Fprintf(out, "Roles:    %s\n", strings.Join(roles, ", "))
			fmt.Fprintln(out, "Fields:")
			for _, f := range ds.Fields() {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}
	src.register(cmd)
	return cmd
}
