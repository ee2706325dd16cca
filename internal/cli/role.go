package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/session"
	"github.com/tingold/geocouple/internal/source"
)

// errVerifyFailed is returned after a failed verification has been
// reported, so the process exits non-zero.
var errVerifyFailed = errors.New("verification failed")

// descriptorFlags are the flags describing a source.
type descriptorFlags struct {
	kind     string
	location string
	params   map[string]string
}

func (f *descriptorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "kind", string(source.Local), "source kind: local, url or api")
	cmd.Flags().StringVar(&f.location, "source", "", "file path, URL or API endpoint")
	cmd.Flags().StringToStringVar(&f.params, "param", nil, "API parameter key=value (repeatable; method=GET|POST selects the method)")
	_ = cmd.MarkFlagRequired("source")
}

func (f *descriptorFlags) descriptor() (source.Descriptor, error) {
	kind, err := source.ParseKind(f.kind)
	if err != nil {
		return source.Descriptor{}, err
	}
	d := source.Descriptor{Kind: kind, Location: f.location}
	if len(f.params) > 0 {
		d.Params = f.params
	}
	return d, nil
}

func parseTarget(args []string) (int, geodata.Role, error) {
	n, err := parseCouple(args[0])
	if err != nil {
		return 0, "", err
	}
	role, err := geodata.ParseRole(args[1])
	if err != nil {
		return 0, "", err
	}
	return n, role, nil
}

func newRoleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Set, verify and clear the zone or points of a couple",
	}
	cmd.AddCommand(newRoleSetCmd(e), newRoleVerifyCmd(e), newRoleClearCmd(e))
	return cmd
}

func newRoleSetCmd(e *env) *cobra.Command {
	var (
		name  string
		field string
		src   descriptorFlags
	)
	cmd := &cobra.Command{
		Use:   "set <n> <zone|points>",
		Short: "Set the source of a role",
		Long: `Set the source of a role. Changing the source of a verified role
deletes its file and manifest entry; changing a zone also resets the
points clipped against it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, role, err := parseTarget(args)
			if err != nil {
				return err
			}
			d, err := src.descriptor()
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			in := session.Input{Name: name, Source: d, Field: field}
			if err := a.session.SetRole(n, role, in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Couple %d %s set to %s\n", n, role, d)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name written to the manifest")
	cmd.Flags().StringVar(&field, "field", "", "attribute kept as name (points only)")
	src.register(cmd)
	return cmd
}

func newRoleVerifyCmd(e *env) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "verify <n> <zone|points>",
		Short: "Acquire, check and save a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, role, err := parseTarget(args)
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			res, err := a.session.Verify(cmd.Context(), n, role, field)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.Success {
				return errVerifyFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "attribute kept as name (points only)")
	return cmd
}

func newRoleClearCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <n> <zone|points>",
		Short: "Forget a role's source and delete its file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, role, err := parseTarget(args)
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			if err := a.session.ClearRole(n, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Couple %d %s cleared\n", n, role)
			return nil
		},
	}
}
