package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/dispatcher"
	"github.com/OCAP2/partswitch/internal/handlers"
	"github.com/OCAP2/partswitch/internal/influx"
	"github.com/OCAP2/partswitch/internal/parser"
	"github.com/OCAP2/partswitch/internal/registry"
	"github.com/OCAP2/partswitch/internal/switcher"
	"github.com/OCAP2/partswitch/pkg/hostinterface"
)

var runOpts = simOptions{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate hosts and answer commands read from stdin",
	Long: `Simulate one or more hosts and answer protocol lines read from stdin.

Each line is "command|arg|arg"; each reply is a JSON array on stdout.
Stored states are loaded at start and every host is saved on exit.

Examples:
  # Cycle one host through its templates
  printf ':SWITCH:NEXT:|host-1\n:STATUS:|host-1\n' | partswitch run

  # Two symmetric hosts with a funded pool and an engineer aboard
  partswitch run --host left --host right --symmetric \
    --pool MaterialKits=1000 --crew Bill:Engineer:2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runSimulation(ctx, cmd)
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runOpts.Hosts, "host", []string{"host-1"}, "host ID to simulate (repeatable)")
	runCmd.Flags().BoolVar(&runOpts.Symmetric, "symmetric", false, "make every host a symmetry counterpart of the others")
	runCmd.Flags().StringArrayVar(&runOpts.Pools, "pool", []string{"MaterialKits=1000"}, "reachable resource pool Resource=amount[/capacity] (repeatable)")
	runCmd.Flags().StringArrayVar(&runOpts.Crew, "crew", nil, "crew member Name:Skill[:level] (repeatable)")
	runCmd.Flags().StringVar(&runOpts.External, "operator", "", "external operator Name:Skill[:level]")
	runCmd.Flags().StringArrayVar(&runOpts.Packages, "package", nil, "installed package (repeatable)")
	runCmd.Flags().StringArrayVar(&runOpts.Unlocked, "unlock", nil, "unlocked tech node (repeatable)")
	runCmd.Flags().BoolVar(&runOpts.Editor, "editor", false, "simulate design time")
	rootCmd.AddCommand(runCmd)
}

func runSimulation(ctx context.Context, cmd *cobra.Command) error {
	loader, err := newLoader(runOpts.Packages)
	if err != nil {
		return err
	}

	backend, err := openStorage()
	if err != nil {
		return err
	}

	sinks := switcher.MultiSink{backend}
	influxManager := influx.NewManager(zerologFor("influx"), config.Influx(),
		filepath.Join(viper.GetString("logsDir"), AppName+"_influx_backup.log.gz"))
	switch err := influxManager.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
		Logger.Debug("InfluxDB sink disabled")
	case err != nil:
		Logger.Warn("InfluxDB sink unavailable", "error", err)
	default:
		sinks = append(sinks, influxManager)
	}

	fleet, _, err := buildFleet(runOpts, loader, sinks, SlogManager.Component("switcher"))
	if err != nil {
		return errors.Join(err, backend.Close(), influxManager.Close())
	}

	svc := handlers.NewService(ctx, handlers.Dependencies{
		Fleet:   fleet,
		Storage: backend,
		Logger:  SlogManager.Component("handlers"),
	})
	for _, id := range fleet.IDs() {
		if _, err := svc.Load([]string{id}); err != nil {
			Logger.Error("Failed to settle host", "host", id, "error", err)
		}
	}

	d, err := dispatcher.New(dispatcher.Dependencies{Logger: SlogManager.Component("dispatcher")})
	if err != nil {
		return errors.Join(err, backend.Close(), influxManager.Close())
	}
	svc.Register(d)
	Logger.Info("Simulation ready", "hosts", fleet.IDs(), "commands", len(d.Commands()))

	serveErr := hostinterface.New(d, Version).Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}
	d.Close()

	if _, err := svc.Save(nil); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("saving hosts: %w", err))
	}
	return errors.Join(serveErr, backend.Close(), influxManager.Close())
}

// newLoader reads the content database and prepares the template loader.
func newLoader(packages []string) (*registry.Loader, error) {
	dir := viper.GetString("contentDir")
	db, err := parser.LoadDatabase(dir)
	if err != nil {
		return nil, err
	}
	Logger.Info("Content database loaded", "dir", dir, "files", len(db.Files()), "groups", db.Groups())
	p := parser.NewParser(SlogManager.Component("parser"), parser.Packages(packages...))
	return registry.NewLoader(db, p, SlogManager.Component("registry")), nil
}
