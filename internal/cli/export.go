package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the manifest of every verified role",
		Long: `Write data/report.json from the verified roles of every couple. The
manifest is written even when some couples are incomplete; those are
reported on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			if !a.session.Complete() {
				for i, c := range a.session.Couples() {
					if !c.Complete() {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: couple %d is not fully verified\n", i+1)
					}
				}
				if a.session.Len() == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: no couples to export")
				}
			}
			m, err := a.session.Export()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Manifest written to %s (%d couples)\n", a.ws.ManifestPath(), m.Len())
			return nil
		},
	}
}
