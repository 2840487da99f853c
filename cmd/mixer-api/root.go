package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mixer-agent/internal/config"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "mixer-api",
		Short:         "Control mixer channels with Spanish natural-language commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			observability.Setup(os.Stdout, cfg.Log.Level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./config.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newInstrumentsCmd(opts),
		newPruneCmd(opts),
	)
	return cmd
}
