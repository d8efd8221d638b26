package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tideflow/internal/statequery"
	"tideflow/internal/storage"
)

func newQueryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "query <prefix>",
		Short: "List published objects under a storage prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			broker, err := storage.NewBroker(cmd.Context(), cfg.Storage.UploadURI, cfg.Storage.S3Region)
			if err != nil {
				return err
			}

			remote, err := statequery.New(broker).QueryStorage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if remote.Len() == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no objects under prefix %q\n", args[0])
				return nil
			}

			rows := make([][]string, 0, remote.Len())
			for _, path := range remote.DestPaths() {
				f, _ := remote.Get(path)
				rows = append(rows, []string{
					f.DestPath,
					fmt.Sprintf("%d", f.Size),
					f.LastModified.Format("2006-01-02 15:04:05 MST"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]tableColumn{
				{title: "Key"}, {title: "Size", numeric: true}, {title: "Last Modified"},
			}, rows))
			return nil
		},
	}
}
