package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	firestorestore "github.com/PabloGalante/mixer-agent/internal/adapters/storage/firestore"
)

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete Firestore conversations idle for longer than the history TTL",
		Long: `Firestore has no per-document expiry in this setup, so stale conversations
are removed by a periodic prune. The memory and redis backends expire on
their own and need no pruning.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.History.Backend != "firestore" {
				return fmt.Errorf("prune only applies to the firestore backend (configured: %s)", opts.cfg.History.Backend)
			}
			if olderThan <= 0 {
				olderThan = opts.cfg.History.TTL
			}

			ctx := cmd.Context()
			store, err := firestorestore.NewStore(ctx, opts.cfg.GCP.Project, opts.cfg.History.MaxTurns)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d conversations\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "idle age to delete (default history.ttl)")
	return cmd
}
