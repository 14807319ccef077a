package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/OCAP2/partswitch/internal/storage"
	"github.com/OCAP2/partswitch/pkg/core"
)

var inspectEvents bool

// inspection is the printed content of the inspect command.
type inspection struct {
	States []core.HostState   `yaml:"states"`
	Events []core.SwitchEvent `yaml:"events,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [host...]",
	Short: "Print stored host states as YAML",
	Long: `Print the host states held by the configured storage backend.
Without arguments every stored host is printed.

Examples:
  partswitch inspect
  partswitch inspect host-1 --events`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		backend, err := openStorage()
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, backend.Close()) }()

		out, err := collectInspection(backend, args, inspectEvents)
		if err != nil {
			return err
		}
		return writeInspection(cmd.OutOrStdout(), out)
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectEvents, "events", false, "include recorded switch events")
	rootCmd.AddCommand(inspectCmd)
}

func collectInspection(backend storage.Backend, hostIDs []string, withEvents bool) (inspection, error) {
	var out inspection
	if len(hostIDs) == 0 {
		states, err := backend.ListHostStates()
		if err != nil {
			return out, err
		}
		out.States = states
	}
	for _, id := range hostIDs {
		s, err := backend.LoadHostState(id)
		if err != nil {
			return out, fmt.Errorf("host %s: %w", id, err)
		}
		out.States = append(out.States, *s)
	}

	if !withEvents {
		return out, nil
	}
	history, ok := backend.(storage.EventHistory)
	if !ok {
		return out, fmt.Errorf("storage backend %T does not keep switch events", backend)
	}
	if len(hostIDs) == 0 {
		hostIDs = []string{""}
	}
	for _, id := range hostIDs {
		events, err := history.SwitchEvents(id)
		if err != nil {
			return out, err
		}
		out.Events = append(out.Events, events...)
	}
	return out, nil
}

func writeInspection(w io.Writer, out inspection) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
