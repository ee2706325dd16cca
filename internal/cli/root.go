// Package cli implements the geocouple command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tingold/geocouple/internal/config"
	"github.com/tingold/geocouple/internal/geodata"
	"github.com/tingold/geocouple/internal/logger"
	"github.com/tingold/geocouple/internal/pipeline"
	"github.com/tingold/geocouple/internal/session"
	"github.com/tingold/geocouple/internal/source"
	"github.com/tingold/geocouple/internal/store"
)

// env is the state shared by every command of one invocation.
type env struct {
	v       *viper.Viper
	cfgFile string
	cfgUsed string
	cfg     config.Config
	log     *slog.Logger
}

// app is the wired component graph for the configured working directory.
type app struct {
	ws       *store.Workspace
	persist  *store.Persister
	manifest *store.ManifestStore
	acquirer *source.Acquirer
	session  *session.Session
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	e := &env{v: config.New()}

	root := &cobra.Command{
		Use:   "geocouple",
		Short: "Ingest, verify and package zone/points dataset couples",
		Long: `geocouple pairs a polygon "zone" dataset with a "points" dataset,
clips the points to the zone and writes both as FlatGeobuf files together
with a JSON manifest for web maps.

Sources can be local files (GeoJSON, Shapefile, KML/KMZ, FlatGeobuf, zip
archives), remote URLs or HTTP APIs.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.cfgFile, "config", "", "config file (default: $HOME/.geocouple/config.yaml)")
	flags.String("workdir", "", "working directory (default: temp)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	_ = e.v.BindPFlag("workdir", flags.Lookup("workdir"))
	_ = e.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = e.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newCoupleCmd(e),
		newRoleCmd(e),
		newInspectCmd(e),
		newExportCmd(e),
		newServeCmd(e),
		newCleanCmd(e),
		newConfigCmd(e),
		newVersionCmd(),
	)
	return root
}

func (e *env) load() error {
	used, err := config.ReadFile(e.v, e.cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Decode(e.v)
	if err != nil {
		return err
	}
	e.cfgUsed = used
	e.cfg = cfg
	e.log = logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if used != "" {
		e.log.Debug("config_loaded", "file", used)
	}
	return nil
}

func (e *env) open() (*app, error) {
	ws, err := store.Open(e.cfg.Workdir)
	if err != nil {
		return nil, err
	}
	policy, err := geodata.ParseClipPolicy(e.cfg.Pipeline.ClipPolicy)
	if err != nil {
		return nil, err
	}

	persist := store.NewPersister(ws, e.log)
	manifest := store.NewManifestStore(ws, persist, e.log)
	acq := source.New(source.Options{
		Timeout:   e.cfg.HTTP.Timeout,
		UserAgent: e.cfg.HTTP.UserAgent,
		MaxBytes:  e.cfg.HTTP.MaxBytes,
		TempDir:   ws.TempDir(),
		Logger:    e.log,
	})
	pl := pipeline.New(acq, persist, pipeline.Options{
		Tolerance:  e.cfg.Pipeline.SimplifyTolerance,
		ClipPolicy: policy,
		Logger:     e.log,
	})
	sess, err := session.Open(ws, pl, persist, manifest, e.log)
	if err != nil {
		return nil, err
	}
	return &app{ws: ws, persist: persist, manifest: manifest, acquirer: acq, session: sess}, nil
}

func parseCouple(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("couple number must be a positive integer, got %q", s)
	}
	return n, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "geocouple v%s\n", config.Version)
		},
	}
}
