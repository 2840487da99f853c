package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mixer-agent/internal/app/registry"
)

func newInstrumentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "List the instrument catalog and its channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := registry.New(opts.cfg.Instruments, opts.cfg.Synonyms); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, inst := range opts.cfg.Instruments {
				fmt.Fprintf(out, "%-12s channel %d\n", inst.Name, inst.Channel)
			}
			for _, alias := range slices.Sorted(maps.Keys(opts.cfg.Synonyms)) {
				fmt.Fprintf(out, "  %s -> %s\n", alias, opts.cfg.Synonyms[alias])
			}
			return nil
		},
	}
}
