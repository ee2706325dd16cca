package cli

import (
	"github.com/spf13/cobra"
	"github.com/tingold/geocouple/internal/preview"
)

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the working directory for map previews",
		Long: `Serve the manifest and FlatGeobuf files of the working directory over
HTTP with CORS enabled, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			return preview.New(a.ws, a.manifest, e.log).ListenAndServe(cmd.Context(), e.cfg.Serve.Addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = e.v.BindPFlag("serve.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
