package commands

import (
	"github.com/spf13/cobra"

	"github.com/open-condo-software/gitexporter/pkg/config"
	"github.com/open-condo-software/gitexporter/pkg/exportlog"
	"github.com/open-condo-software/gitexporter/pkg/persist"
)

const formatTable = "table"

func newLogCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "log <config>",
		Short: "Print the export log of a target",
		Long:  "Print the commit entries and accumulated path sets of the export log as a table, JSON or YAML.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return err
			}

			store := exportlog.NewStore(cfg.LogPath())

			doc, err := store.Load()
			if err != nil {
				return err
			}

			if format == formatTable {
				renderLogTable(cmd.OutOrStdout(), store.Path(), doc)

				return nil
			}

			codec, err := persist.CodecFor(format)
			if err != nil {
				return err
			}

			return codec.Encode(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table, json, yaml")

	return cmd
}
